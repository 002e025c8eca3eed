// Package auth mints and verifies the ES256 tokens exchanged between the
// Authority and the Worker, and verifies HS256 session tokens on the
// Authority.
package auth

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/geoupload/internal/common"
	"github.com/dmitrijs2005/geoupload/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

// DefaultTTL is the lifetime of upload authorizations and worker results.
const DefaultTTL = 60 * time.Minute

// UploadAuthorizationClaims bind one photo id to one user and one client key.
type UploadAuthorizationClaims struct {
	jwt.RegisteredClaims
	PhotoID           string `json:"photo_id"`
	UserID            string `json:"user_id"`
	ClientPublicKeyID string `json:"client_public_key_id"`
	Type              string `json:"type"`
}

// WorkerResultClaims carry the processing result itself, flattened into the
// token payload, plus the worker's audit label.
type WorkerResultClaims struct {
	jwt.RegisteredClaims
	models.ProcessingResult
	Type           string `json:"type"`
	WorkerIdentity string `json:"worker_identity"`
}

// Codec signs with its own private key and verifies with the peer's public
// key. Either key may be nil when that direction is unused.
type Codec struct {
	signingKey *ecdsa.PrivateKey
	verifyKey  *ecdsa.PublicKey
	ttl        time.Duration
	now        func() time.Time
}

func NewCodec(signingKey *ecdsa.PrivateKey, verifyKey *ecdsa.PublicKey, ttl time.Duration) *Codec {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Codec{signingKey: signingKey, verifyKey: verifyKey, ttl: ttl, now: time.Now}
}

func (c *Codec) sign(claims jwt.Claims) (string, error) {
	if c.signingKey == nil {
		return "", common.ErrMissingSigningKey
	}
	return jwt.NewWithClaims(jwt.SigningMethodES256, claims).SignedString(c.signingKey)
}

func (c *Codec) parse(token string, claims jwt.Claims) error {
	if c.verifyKey == nil {
		return fmt.Errorf("%w: no verification key", common.ErrInvalidToken)
	}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return c.verifyKey, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodES256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	return mapJWTError(err)
}

func mapJWTError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, jwt.ErrTokenExpired):
		return common.ErrTokenExpired
	default:
		return fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}
}

func (c *Codec) registered(now time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
}

// IssueUploadAuthorization mints a token for exactly one
// (photo, user, client key) triple and returns it with its expiry.
func (c *Codec) IssueUploadAuthorization(photoID, userID, keyID string) (string, time.Time, error) {
	now := c.now()
	claims := UploadAuthorizationClaims{
		RegisteredClaims:  c.registered(now),
		PhotoID:           photoID,
		UserID:            userID,
		ClientPublicKeyID: keyID,
		Type:              common.TokenTypeUploadAuthorization,
	}
	tok, err := c.sign(claims)
	if err != nil {
		return "", time.Time{}, err
	}
	return tok, claims.ExpiresAt.Time, nil
}

// VerifyUploadAuthorization checks signature, expiry, token type and the
// presence of every bound identifier.
func (c *Codec) VerifyUploadAuthorization(token string) (*UploadAuthorizationClaims, error) {
	claims := &UploadAuthorizationClaims{}
	if err := c.parse(token, claims); err != nil {
		return nil, err
	}
	if claims.Type != common.TokenTypeUploadAuthorization {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidTokenType, claims.Type)
	}

	var missing []string
	if claims.PhotoID == "" {
		missing = append(missing, "photo_id")
	}
	if claims.UserID == "" {
		missing = append(missing, "user_id")
	}
	if claims.ClientPublicKeyID == "" {
		missing = append(missing, "client_public_key_id")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", common.ErrMissingClaim, strings.Join(missing, ", "))
	}
	return claims, nil
}

// SignWorkerResult signs a processing result on behalf of the worker.
func (c *Codec) SignWorkerResult(result models.ProcessingResult, workerIdentity string) (string, error) {
	return c.sign(WorkerResultClaims{
		RegisteredClaims: c.registered(c.now()),
		ProcessingResult: result,
		Type:             common.TokenTypeWorkerResult,
		WorkerIdentity:   workerIdentity,
	})
}

func (c *Codec) VerifyWorkerResult(token string) (*WorkerResultClaims, error) {
	claims := &WorkerResultClaims{}
	if err := c.parse(token, claims); err != nil {
		return nil, err
	}
	if claims.Type != common.TokenTypeWorkerResult {
		return nil, fmt.Errorf("%w: %q", common.ErrInvalidTokenType, claims.Type)
	}
	if claims.PhotoID == "" {
		return nil, fmt.Errorf("%w: photo_id", common.ErrMissingClaim)
	}
	return claims, nil
}
