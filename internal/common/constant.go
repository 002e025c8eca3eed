// Package common contains shared constants and sentinel errors used across
// the Authority and Worker components.
package common

const (
	// AuthorizationHeaderName carries bearer tokens on inbound HTTP requests.
	AuthorizationHeaderName = "Authorization"

	// BearerPrefix precedes the token inside the Authorization header.
	BearerPrefix = "Bearer "

	// TokenTypeUploadAuthorization marks tokens minted by the Authority for a single upload.
	TokenTypeUploadAuthorization = "upload_authorization"

	// TokenTypeWorkerResult marks tokens the Worker signs over a processing result.
	TokenTypeWorkerResult = "worker_result"

	// ProfileDevelopment and ProfileProduction select how signing keys are loaded.
	ProfileDevelopment = "development"
	ProfileProduction  = "production"
)

// MaxUploadBytes caps the size of a single uploaded image (50 MiB).
const MaxUploadBytes int64 = 50 << 20
