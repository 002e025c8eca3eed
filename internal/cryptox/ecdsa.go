// Package cryptox wraps the ECDSA P-256 primitives used by the upload
// protocol: key generation, PEM encoding and the client upload signature.
package cryptox

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"

	"github.com/dmitrijs2005/geoupload/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// GenerateKeyPair creates a fresh P-256 key pair.
func GenerateKeyPair() (*ecdsa.PrivateKey, error) {
	return ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
}

// EncodePrivateKeyPEM serializes a private key as PKCS#8 PEM.
func EncodePrivateKeyPEM(key *ecdsa.PrivateKey) (string, error) {
	der, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(der)
	return string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})), nil
}

// EncodePublicKeyPEM serializes a public key as SubjectPublicKeyInfo PEM.
func EncodePublicKeyPEM(key *ecdsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		return "", err
	}
	return string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})), nil
}

// ParsePrivateKeyPEM accepts PKCS#8 or SEC1 PEM and insists on P-256.
func ParsePrivateKeyPEM(data string) (*ecdsa.PrivateKey, error) {
	key, err := jwt.ParseECPrivateKeyFromPEM([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("parse private key: curve %s is not P-256", key.Curve.Params().Name)
	}
	return key, nil
}

// ParsePublicKeyPEM parses a PKIX public key PEM. Anything that is not an
// ECDSA P-256 key yields common.ErrInvalidPublicKey.
func ParsePublicKeyPEM(data string) (*ecdsa.PublicKey, error) {
	key, err := jwt.ParseECPublicKeyFromPEM([]byte(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidPublicKey, err)
	}
	if key.Curve != elliptic.P256() {
		return nil, fmt.Errorf("%w: curve %s is not P-256", common.ErrInvalidPublicKey, key.Curve.Params().Name)
	}
	return key, nil
}

type uploadMessage struct {
	PhotoID   string `json:"photo_id"`
	Filename  string `json:"filename"`
	Timestamp int64  `json:"timestamp"`
}

// UploadMessage is the canonical byte string a client signs before handing
// a file to the worker: compact JSON {"photo_id","filename","timestamp"}.
func UploadMessage(photoID, filename string, timestamp int64) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(uploadMessage{PhotoID: photoID, Filename: filename, Timestamp: timestamp})
	return bytes.TrimRight(buf.Bytes(), "\n")
}

// SignMessage returns base64(ASN.1 ECDSA-SHA256 signature) over msg.
func SignMessage(key *ecdsa.PrivateKey, msg []byte) (string, error) {
	digest := sha256.Sum256(msg)
	sig, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// VerifyMessage checks a signature produced by SignMessage (or by a browser
// client using the same ASN.1 encoding).
func VerifyMessage(key *ecdsa.PublicKey, msg []byte, signature string) error {
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidSignature, err)
	}
	digest := sha256.Sum256(msg)
	if !ecdsa.VerifyASN1(key, digest[:], sig) {
		return common.ErrInvalidSignature
	}
	return nil
}
