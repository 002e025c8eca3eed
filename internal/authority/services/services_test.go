package services

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/geoupload/internal/auth"
	"github.com/dmitrijs2005/geoupload/internal/authority/ratelimit"
	"github.com/dmitrijs2005/geoupload/internal/authority/repositories/repomanager"
	"github.com/dmitrijs2005/geoupload/internal/common"
	"github.com/dmitrijs2005/geoupload/internal/cryptox"
	"github.com/dmitrijs2005/geoupload/internal/logging"
	"github.com/dmitrijs2005/geoupload/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	repos       *repomanager.InMemoryRepositoryManager
	keys        *KeyService
	uploads     *UploadService
	results     *ResultService
	workerCodec *auth.Codec
	clientKey   *ecdsa.PrivateKey
	clientPEM   string
}

func newFixture(t *testing.T, limit ratelimit.Config) *fixture {
	t.Helper()
	authorityKey, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)
	workerKey, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)
	clientKey, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)
	clientPEM, err := cryptox.EncodePublicKeyPEM(&clientKey.PublicKey)
	require.NoError(t, err)

	limiter, err := ratelimit.New(limit)
	require.NoError(t, err)

	repos := repomanager.NewInMemoryRepositoryManager()
	authorityCodec := auth.NewCodec(authorityKey, &workerKey.PublicKey, time.Hour)
	log := logging.Discard()

	return &fixture{
		repos:       repos,
		keys:        NewKeyService(repos, log),
		uploads:     NewUploadService(repos, authorityCodec, limiter, "http://worker:8001/", log),
		results:     NewResultService(repos, authorityCodec, log),
		workerCodec: auth.NewCodec(workerKey, &authorityKey.PublicKey, time.Hour),
		clientKey:   clientKey,
		clientPEM:   clientPEM,
	}
}

func (f *fixture) authorize(t *testing.T, userID, filename string) *Authorization {
	t.Helper()
	a, err := f.uploads.AuthorizeUpload(context.Background(), userID, AuthorizeRequest{Filename: filename, FileSize: 1024})
	require.NoError(t, err)
	return a
}

func (f *fixture) sign(t *testing.T, a *Authorization, filename string) string {
	t.Helper()
	sig, err := cryptox.SignMessage(f.clientKey, cryptox.UploadMessage(a.PhotoID, filename, a.UploadAuthorizedAt.Unix()))
	require.NoError(t, err)
	return sig
}

func (f *fixture) report(t *testing.T, result models.ProcessingResult) (json.RawMessage, string) {
	t.Helper()
	raw, err := json.Marshal(result)
	require.NoError(t, err)
	tok, err := f.workerCodec.SignWorkerResult(result, "host-1-deadbeef")
	require.NoError(t, err)
	return raw, tok
}

func TestRegisterKey(t *testing.T) {
	f := newFixture(t, ratelimit.Config{})
	ctx := context.Background()

	key, err := f.keys.RegisterKey(ctx, "u1", "k1", f.clientPEM)
	require.NoError(t, err)
	assert.True(t, key.IsActive)
	assert.False(t, key.CreatedAt.IsZero())

	_, err = f.keys.RegisterKey(ctx, "u1", "k1", f.clientPEM)
	assert.ErrorIs(t, err, common.ErrAlreadyExists)

	_, err = f.keys.RegisterKey(ctx, "u1", "k2", "garbage")
	assert.ErrorIs(t, err, common.ErrInvalidPublicKey)

	_, err = f.keys.RegisterKey(ctx, "u1", "  ", f.clientPEM)
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestRegisterKey_KeyIDCharset(t *testing.T) {
	f := newFixture(t, ratelimit.Config{})
	ctx := context.Background()

	for _, id := range []string{"laptop key_1", "key/1", strings.Repeat("a", 101)} {
		_, err := f.keys.RegisterKey(ctx, "u1", id, f.clientPEM)
		if !errors.Is(err, common.ErrValidation) {
			t.Fatalf("RegisterKey(%q) error = %v, want ErrValidation", id, err)
		}
	}

	// Whatever the authority accepts must pass the worker's claim check.
	key, err := f.keys.RegisterKey(ctx, "u1", " laptop-key-1 ", f.clientPEM)
	require.NoError(t, err)
	assert.Equal(t, "laptop-key-1", key.KeyID)
	a := f.authorize(t, "u1", "a.jpg")
	claims, err := f.workerCodec.VerifyUploadAuthorization(a.UploadJWT)
	require.NoError(t, err)
	assert.True(t, common.IsValidIdentifier(claims.ClientPublicKeyID))
}

func TestAuthorizeUpload(t *testing.T) {
	f := newFixture(t, ratelimit.Config{})
	ctx := context.Background()

	_, err := f.uploads.AuthorizeUpload(ctx, "u1", AuthorizeRequest{Filename: "a.jpg"})
	require.ErrorIs(t, err, common.ErrNoActiveKey)

	_, err = f.keys.RegisterKey(ctx, "u1", "k1", f.clientPEM)
	require.NoError(t, err)

	a := f.authorize(t, "u1", "a.jpg")
	assert.Equal(t, "http://worker:8001", a.WorkerURL)
	assert.NotEmpty(t, a.PhotoID)
	assert.True(t, a.ExpiresAt.After(a.UploadAuthorizedAt))
	assert.Zero(t, a.UploadAuthorizedAt.Nanosecond())

	claims, err := f.workerCodec.VerifyUploadAuthorization(a.UploadJWT)
	require.NoError(t, err)
	assert.Equal(t, a.PhotoID, claims.PhotoID)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "k1", claims.ClientPublicKeyID)

	photo, err := f.repos.Photos().Get(ctx, a.PhotoID)
	require.NoError(t, err)
	assert.Equal(t, models.PhotoStatusAuthorized, photo.Status)
	assert.Equal(t, "a.jpg", photo.Filename)

	// Two authorizations never share a photo id.
	b := f.authorize(t, "u1", "a.jpg")
	assert.NotEqual(t, a.PhotoID, b.PhotoID)
}

func TestAuthorizeUpload_Validation(t *testing.T) {
	f := newFixture(t, ratelimit.Config{})
	ctx := context.Background()
	_, err := f.keys.RegisterKey(ctx, "u1", "k1", f.clientPEM)
	require.NoError(t, err)

	_, err = f.uploads.AuthorizeUpload(ctx, "u1", AuthorizeRequest{Filename: " "})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = f.uploads.AuthorizeUpload(ctx, "u1", AuthorizeRequest{Filename: "a.jpg", FileSize: common.MaxUploadBytes + 1})
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestAuthorizeUpload_UsesNewestActiveKey(t *testing.T) {
	f := newFixture(t, ratelimit.Config{})
	ctx := context.Background()

	_, err := f.keys.RegisterKey(ctx, "u1", "old", f.clientPEM)
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	_, err = f.keys.RegisterKey(ctx, "u1", "new", f.clientPEM)
	require.NoError(t, err)

	a := f.authorize(t, "u1", "a.jpg")
	claims, err := f.workerCodec.VerifyUploadAuthorization(a.UploadJWT)
	require.NoError(t, err)
	assert.Equal(t, "new", claims.ClientPublicKeyID)

	require.NoError(t, f.repos.ClientKeys().Deactivate(ctx, "u1", "new"))
	a = f.authorize(t, "u1", "a.jpg")
	claims, err = f.workerCodec.VerifyUploadAuthorization(a.UploadJWT)
	require.NoError(t, err)
	assert.Equal(t, "old", claims.ClientPublicKeyID)
}

func TestAuthorizeUpload_RateLimited(t *testing.T) {
	f := newFixture(t, ratelimit.Config{RequestsPerMinute: 10, Burst: 2})
	ctx := context.Background()
	_, err := f.keys.RegisterKey(ctx, "u1", "k1", f.clientPEM)
	require.NoError(t, err)

	f.authorize(t, "u1", "a.jpg")
	f.authorize(t, "u1", "b.jpg")
	_, err = f.uploads.AuthorizeUpload(ctx, "u1", AuthorizeRequest{Filename: "c.jpg"})
	assert.ErrorIs(t, err, common.ErrRateLimited)
}

func completedResult(photoID, sig string) models.ProcessingResult {
	lat, lon, bearing := 50.0755, 14.4378, 90.0
	return models.ProcessingResult{
		PhotoID:         photoID,
		Status:          models.ResultStatusCompleted,
		Filename:        "a.jpg",
		Width:           400,
		Height:          300,
		Latitude:        &lat,
		Longitude:       &lon,
		CompassAngle:    &bearing,
		Sizes:           map[string]models.SizeVariant{"full": {Width: 400, Height: 300, Path: "x.jpg"}},
		DetectedObjects: []models.Detection{{ClassID: 0, ClassName: "person", BlurKernelSize: 151}},
		ClientSignature: sig,
	}
}

func TestAcceptProcessed_Completed(t *testing.T) {
	f := newFixture(t, ratelimit.Config{})
	ctx := context.Background()
	_, err := f.keys.RegisterKey(ctx, "u1", "k1", f.clientPEM)
	require.NoError(t, err)

	a := f.authorize(t, "u1", "a.jpg")
	raw, tok := f.report(t, completedResult(a.PhotoID, f.sign(t, a, "a.jpg")))

	photo, err := f.results.AcceptProcessed(ctx, raw, tok)
	require.NoError(t, err)
	assert.Equal(t, models.PhotoStatusCompleted, photo.Status)
	assert.Equal(t, "host-1-deadbeef", photo.WorkerIdentity)
	require.NotNil(t, photo.ProcessedAt)

	var stored models.ProcessingResult
	require.NoError(t, json.Unmarshal(photo.Result, &stored))
	assert.Equal(t, 90.0, *stored.CompassAngle)
	assert.Len(t, stored.DetectedObjects, 1)

	// Redelivery is accepted.
	again, err := f.results.AcceptProcessed(ctx, raw, tok)
	require.NoError(t, err)
	assert.Equal(t, models.PhotoStatusCompleted, again.Status)
}

func TestAcceptProcessed_ErrorResultKeepsRetryHint(t *testing.T) {
	f := newFixture(t, ratelimit.Config{})
	ctx := context.Background()
	_, err := f.keys.RegisterKey(ctx, "u1", "k1", f.clientPEM)
	require.NoError(t, err)
	a := f.authorize(t, "u1", "a.jpg")

	retry := 5
	raw, tok := f.report(t, models.ProcessingResult{
		PhotoID: a.PhotoID, Status: models.ResultStatusError,
		Error: "timed out waiting for free memory", RetryAfterMinutes: &retry,
	})
	photo, err := f.results.AcceptProcessed(ctx, raw, tok)
	require.NoError(t, err)
	assert.Equal(t, models.PhotoStatusError, photo.Status)
	require.NotNil(t, photo.RetryAfterMinutes)
	assert.Equal(t, 5, *photo.RetryAfterMinutes)
}

func TestAcceptProcessed_CompletedIsNotDowngraded(t *testing.T) {
	f := newFixture(t, ratelimit.Config{})
	ctx := context.Background()
	_, err := f.keys.RegisterKey(ctx, "u1", "k1", f.clientPEM)
	require.NoError(t, err)
	a := f.authorize(t, "u1", "a.jpg")

	raw, tok := f.report(t, completedResult(a.PhotoID, f.sign(t, a, "a.jpg")))
	_, err = f.results.AcceptProcessed(ctx, raw, tok)
	require.NoError(t, err)

	raw, tok = f.report(t, models.ProcessingResult{PhotoID: a.PhotoID, Status: models.ResultStatusError, Error: "late"})
	photo, err := f.results.AcceptProcessed(ctx, raw, tok)
	require.NoError(t, err)
	assert.Equal(t, models.PhotoStatusCompleted, photo.Status)
}

func TestAcceptProcessed_Rejections(t *testing.T) {
	f := newFixture(t, ratelimit.Config{})
	ctx := context.Background()
	_, err := f.keys.RegisterKey(ctx, "u1", "k1", f.clientPEM)
	require.NoError(t, err)
	a := f.authorize(t, "u1", "a.jpg")

	t.Run("bad worker signature", func(t *testing.T) {
		raw, _ := f.report(t, completedResult(a.PhotoID, f.sign(t, a, "a.jpg")))
		_, err := f.results.AcceptProcessed(ctx, raw, "not-a-token")
		assert.ErrorIs(t, err, common.ErrInvalidToken)
	})

	t.Run("photo id mismatch", func(t *testing.T) {
		_, tok := f.report(t, completedResult(a.PhotoID, f.sign(t, a, "a.jpg")))
		raw, _ := f.report(t, completedResult("other", ""))
		_, err := f.results.AcceptProcessed(ctx, raw, tok)
		assert.ErrorIs(t, err, common.ErrInvalidToken)
	})

	t.Run("client signed another filename", func(t *testing.T) {
		raw, tok := f.report(t, completedResult(a.PhotoID, f.sign(t, a, "b.jpg")))
		_, err := f.results.AcceptProcessed(ctx, raw, tok)
		assert.ErrorIs(t, err, common.ErrInvalidSignature)
	})

	t.Run("completed without client signature", func(t *testing.T) {
		raw, tok := f.report(t, completedResult(a.PhotoID, ""))
		_, err := f.results.AcceptProcessed(ctx, raw, tok)
		assert.ErrorIs(t, err, common.ErrInvalidSignature)
	})

	t.Run("unknown photo", func(t *testing.T) {
		raw, tok := f.report(t, completedResult("00000000-0000-0000-0000-000000000000", "x"))
		_, err := f.results.AcceptProcessed(ctx, raw, tok)
		assert.ErrorIs(t, err, common.ErrorNotFound)
	})

	t.Run("malformed processed_data", func(t *testing.T) {
		_, tok := f.report(t, completedResult(a.PhotoID, ""))
		_, err := f.results.AcceptProcessed(ctx, json.RawMessage(`{`), tok)
		assert.ErrorIs(t, err, common.ErrValidation)
	})

	photo, err := f.repos.Photos().Get(ctx, a.PhotoID)
	require.NoError(t, err)
	assert.Equal(t, models.PhotoStatusAuthorized, photo.Status)
}
