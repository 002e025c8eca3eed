// Package models holds the records shared by the Authority and the Worker.
package models

import (
	"encoding/json"
	"time"
)

// ClientKey is a user's registered ECDSA P-256 public key. Keys are
// deactivated, never deleted, and the PEM never changes after creation.
type ClientKey struct {
	KeyID        string
	UserID       string
	PublicKeyPEM string
	CreatedAt    time.Time
	IsActive     bool
}

type PhotoStatus string

const (
	PhotoStatusAuthorized PhotoStatus = "authorized"
	PhotoStatusCompleted  PhotoStatus = "completed"
	PhotoStatusError      PhotoStatus = "error"
)

// Photo is the Authority's record of an authorized upload and, once the
// worker reports back, of its outcome.
type Photo struct {
	ID                string
	UserID            string
	ClientKeyID       string
	Filename          string
	Status            PhotoStatus
	Error             string
	RetryAfterMinutes *int
	ClientSignature   string
	WorkerIdentity    string
	Result            json.RawMessage
	AuthorizedAt      time.Time
	ProcessedAt       *time.Time
}
