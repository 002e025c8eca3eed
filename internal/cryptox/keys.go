package cryptox

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/dmitrijs2005/geoupload/internal/common"
	"github.com/dmitrijs2005/geoupload/internal/logging"
)

// KeyPair is a loaded signing identity.
type KeyPair struct {
	Private *ecdsa.PrivateKey
	Public  *ecdsa.PublicKey
	// Generated is true when the pair was created at startup in the
	// development profile and exists only in memory.
	Generated bool
}

// ResolvePEM turns a config value into PEM text. The value is either inline
// PEM (escaped "\n" sequences from .env files are expanded) or a path to a
// PEM file. Empty input stays empty.
func ResolvePEM(value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", nil
	}
	if strings.HasPrefix(value, "-----BEGIN") {
		return strings.TrimSpace(strings.ReplaceAll(value, `\n`, "\n")), nil
	}
	b, err := os.ReadFile(value)
	if err != nil {
		return "", fmt.Errorf("read key file: %w", err)
	}
	return string(b), nil
}

// LoadKeyPair loads the signing key pair for a service.
//
// With both PEMs present they are parsed and checked to belong together.
// With keys missing, the production profile fails with
// common.ErrMissingSigningKey; the development profile generates an
// in-memory pair and logs its public half so a peer can be configured.
func LoadKeyPair(ctx context.Context, log logging.Logger, profile, service, privatePEM, publicPEM string) (*KeyPair, error) {
	if privatePEM != "" && publicPEM != "" {
		priv, err := ParsePrivateKeyPEM(privatePEM)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", service, err)
		}
		pub, err := ParsePublicKeyPEM(publicPEM)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", service, err)
		}
		if !priv.PublicKey.Equal(pub) {
			return nil, fmt.Errorf("%s: public key does not match private key", service)
		}
		log.Info(ctx, "loaded signing keys", "service", service)
		return &KeyPair{Private: priv, Public: pub}, nil
	}

	switch profile {
	case common.ProfileProduction:
		return nil, fmt.Errorf("%s: %w", service, common.ErrMissingSigningKey)
	case common.ProfileDevelopment:
		priv, err := GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		pubPEM, err := EncodePublicKeyPEM(&priv.PublicKey)
		if err != nil {
			return nil, err
		}
		log.Warn(ctx, "no signing keys configured, generated temporary development keys",
			"service", service, "public_key_pem", pubPEM)
		return &KeyPair{Private: priv, Public: &priv.PublicKey, Generated: true}, nil
	default:
		return nil, fmt.Errorf("%s: unknown profile %q", service, profile)
	}
}
