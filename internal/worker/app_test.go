package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/jpeg"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/dmitrijs2005/geoupload/internal/auth"
	authorityapi "github.com/dmitrijs2005/geoupload/internal/authority/httpapi"
	"github.com/dmitrijs2005/geoupload/internal/authority/ratelimit"
	"github.com/dmitrijs2005/geoupload/internal/authority/repositories/repomanager"
	"github.com/dmitrijs2005/geoupload/internal/authority/services"
	"github.com/dmitrijs2005/geoupload/internal/common"
	"github.com/dmitrijs2005/geoupload/internal/cryptox"
	"github.com/dmitrijs2005/geoupload/internal/logging"
	"github.com/dmitrijs2005/geoupload/internal/models"
	"github.com/dmitrijs2005/geoupload/internal/worker/config"
	"github.com/dmitrijs2005/geoupload/internal/worker/exifmeta"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sessionSecret = "session-secret"

func pemPair(t *testing.T) (priv, pub string) {
	t.Helper()
	key, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)
	priv, err = cryptox.EncodePrivateKeyPEM(key)
	require.NoError(t, err)
	pub, err = cryptox.EncodePublicKeyPEM(&key.PublicKey)
	require.NoError(t, err)
	return priv, pub
}

func TestNewApp_DevelopmentDefaults(t *testing.T) {
	var c config.Config
	c.LoadDefaults()
	c.WorkDir = filepath.Join(t.TempDir(), "work")
	c.PublicDir = filepath.Join(t.TempDir(), "public")

	app, err := NewApp(context.Background(), &c)
	require.NoError(t, err)
	require.NotNil(t, app.server)
	assert.NotEmpty(t, app.identity)
}

func TestNewApp_ProductionRequiresAuthorityKey(t *testing.T) {
	var c config.Config
	c.LoadDefaults()
	c.Profile = common.ProfileProduction
	c.WorkDir = t.TempDir()
	c.PrivateKey, c.PublicKey = pemPair(t)

	_, err := NewApp(context.Background(), &c)
	assert.ErrorIs(t, err, common.ErrMissingSigningKey)
}

func TestNewApp_UnknownStorageBackend(t *testing.T) {
	var c config.Config
	c.LoadDefaults()
	c.WorkDir = t.TempDir()
	c.StorageBackend = "tape"

	_, err := NewApp(context.Background(), &c)
	assert.ErrorContains(t, err, "unknown storage backend")
}

func gpsJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 400, 300))
	for y := 0; y < 300; y++ {
		for x := 0; x < 400; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 80, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))

	lat, lon, bearing := 50.0755, 14.4378, 90.0
	data, err := exifmeta.Reattach(buf.Bytes(), exifmeta.Build(exifmeta.GPS{
		Latitude:  &lat,
		Longitude: &lon,
		Bearing:   &bearing,
	}))
	require.NoError(t, err)
	return data
}

func postJSON(t *testing.T, url, token string, body, out any) int {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req, err := http.NewRequest(http.MethodPost, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestUploadFlow_EndToEnd(t *testing.T) {
	gin.SetMode(gin.TestMode)
	ctx := context.Background()
	log := logging.Discard()

	authorityPriv, authorityPub := pemPair(t)
	workerPriv, workerPub := pemPair(t)
	clientKey, err := cryptox.GenerateKeyPair()
	require.NoError(t, err)
	clientPEM, err := cryptox.EncodePublicKeyPEM(&clientKey.PublicKey)
	require.NoError(t, err)

	authorityKey, err := cryptox.ParsePrivateKeyPEM(authorityPriv)
	require.NoError(t, err)
	workerPubKey, err := cryptox.ParsePublicKeyPEM(workerPub)
	require.NoError(t, err)

	repos := repomanager.NewInMemoryRepositoryManager()
	limiter, err := ratelimit.New(ratelimit.Config{RequestsPerMinute: 60, Burst: 10})
	require.NoError(t, err)
	codec := auth.NewCodec(authorityKey, workerPubKey, time.Hour)
	authoritySrv := httptest.NewServer(authorityapi.NewHTTPServer(":0", log,
		services.NewKeyService(repos, log),
		services.NewUploadService(repos, codec, limiter, "http://worker", log),
		services.NewResultService(repos, codec, log),
		sessionSecret).Router())
	defer authoritySrv.Close()

	detectorSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"detections": []models.Detection{
			{ClassID: 0, BBox: models.BBox{X1: 10, Y1: 10, X2: 50, Y2: 50}, Confidence: 0.9},
		}})
	}))
	defer detectorSrv.Close()

	var c config.Config
	c.LoadDefaults()
	c.AuthorityURL = authoritySrv.URL
	c.AuthorityPublicKey = authorityPub
	c.PrivateKey, c.PublicKey = workerPriv, workerPub
	c.WorkDir = filepath.Join(t.TempDir(), "work")
	c.PublicDir = filepath.Join(t.TempDir(), "public")
	c.PicsURL = "http://worker/pics/"
	c.DetectorURL = detectorSrv.URL
	c.RequiredMemoryMB = 0
	c.AdmissionInterval = 0
	c.NotifyTimeout = 5 * time.Second

	app, err := NewApp(ctx, &c)
	require.NoError(t, err)
	workerSrv := httptest.NewServer(app.server.Router())
	defer workerSrv.Close()

	session, err := auth.GenerateSessionToken("user-1", []byte(sessionSecret), time.Hour)
	require.NoError(t, err)

	status := postJSON(t, authoritySrv.URL+"/auth/register-client-key", session,
		map[string]string{"public_key_pem": clientPEM, "key_id": "key-1"}, nil)
	require.Equal(t, http.StatusCreated, status)

	var authz struct {
		UploadJWT          string    `json:"upload_jwt"`
		PhotoID            string    `json:"photo_id"`
		UploadAuthorizedAt time.Time `json:"upload_authorized_at"`
	}
	status = postJSON(t, authoritySrv.URL+"/photos/authorize-upload", session,
		map[string]any{"filename": "a.jpg", "file_size": 1024}, &authz)
	require.Equal(t, http.StatusOK, status)

	sig, err := cryptox.SignMessage(clientKey, cryptox.UploadMessage(authz.PhotoID, "a.jpg", authz.UploadAuthorizedAt.Unix()))
	require.NoError(t, err)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "a.jpg")
	require.NoError(t, err)
	_, err = fw.Write(gpsJPEG(t))
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("client_signature", sig))
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, workerSrv.URL+"/upload", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+authz.UploadJWT)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var up struct {
		Success bool   `json:"success"`
		PhotoID string `json:"photo_id"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&up))
	require.Equal(t, http.StatusOK, resp.StatusCode, up.Error)
	require.True(t, up.Success, up.Error)
	assert.Equal(t, authz.PhotoID, up.PhotoID)

	photo, err := repos.Photos().Get(ctx, authz.PhotoID)
	require.NoError(t, err)
	assert.Equal(t, models.PhotoStatusCompleted, photo.Status)
	assert.Equal(t, sig, photo.ClientSignature)

	var stored models.ProcessingResult
	require.NoError(t, json.Unmarshal(photo.Result, &stored))
	assert.Contains(t, stored.Sizes, "full")
	require.Len(t, stored.DetectedObjects, 1)
	assert.Equal(t, "person", stored.DetectedObjects[0].ClassName)
	assert.InDelta(t, 50.0755, *stored.Latitude, 1e-6)
	assert.InDelta(t, 90.0, *stored.CompassAngle, 1e-9)
}
