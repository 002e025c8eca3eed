package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/geoupload/internal/auth"
	"github.com/dmitrijs2005/geoupload/internal/authority/ratelimit"
	"github.com/dmitrijs2005/geoupload/internal/authority/repositories/repomanager"
	"github.com/dmitrijs2005/geoupload/internal/common"
	"github.com/dmitrijs2005/geoupload/internal/logging"
	"github.com/dmitrijs2005/geoupload/internal/models"
	"github.com/google/uuid"
)

// AuthorizeRequest describes the file a client intends to upload.
type AuthorizeRequest struct {
	Filename    string
	ContentType string
	FileSize    int64
	FileMD5     string
	Description string
	IsPublic    *bool
}

// Authorization is what the client needs to talk to the worker. The client
// signs UploadAuthorizedAt.Unix() together with the photo id and filename.
type Authorization struct {
	UploadJWT          string
	WorkerURL          string
	PhotoID            string
	ExpiresAt          time.Time
	UploadAuthorizedAt time.Time
}

// UploadService issues single-use upload authorizations.
type UploadService struct {
	repomanager repomanager.RepositoryManager
	codec       *auth.Codec
	limiter     *ratelimit.Limiter
	workerURL   string
	log         logging.Logger
	now         func() time.Time
}

func NewUploadService(m repomanager.RepositoryManager, codec *auth.Codec, limiter *ratelimit.Limiter, workerURL string, log logging.Logger) *UploadService {
	return &UploadService{
		repomanager: m,
		codec:       codec,
		limiter:     limiter,
		workerURL:   strings.TrimRight(workerURL, "/"),
		log:         log.With("module", "uploads"),
		now:         time.Now,
	}
}

// AuthorizeUpload binds a fresh photo id to the user's newest active key,
// records the photo and returns a signed upload token.
func (s *UploadService) AuthorizeUpload(ctx context.Context, userID string, req AuthorizeRequest) (*Authorization, error) {
	if !s.limiter.Allow(userID) {
		return nil, common.ErrRateLimited
	}

	if strings.TrimSpace(req.Filename) == "" {
		return nil, fmt.Errorf("%w: filename is required", common.ErrValidation)
	}
	if req.FileSize < 0 || req.FileSize > common.MaxUploadBytes {
		return nil, fmt.Errorf("%w: file_size must be between 0 and %d", common.ErrValidation, common.MaxUploadBytes)
	}

	key, err := s.repomanager.ClientKeys().LatestActive(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrNoActiveKey
		}
		return nil, fmt.Errorf("error loading client key: %w", err)
	}

	photoID := uuid.NewString()
	// Clients sign whole seconds.
	authorizedAt := s.now().UTC().Truncate(time.Second)

	token, expiresAt, err := s.codec.IssueUploadAuthorization(photoID, userID, key.KeyID)
	if err != nil {
		return nil, fmt.Errorf("error signing upload token: %w", err)
	}

	photo := &models.Photo{
		ID:           photoID,
		UserID:       userID,
		ClientKeyID:  key.KeyID,
		Filename:     req.Filename,
		Status:       models.PhotoStatusAuthorized,
		AuthorizedAt: authorizedAt,
	}
	if err := s.repomanager.Photos().Create(ctx, photo); err != nil {
		return nil, fmt.Errorf("error recording photo: %w", err)
	}

	s.log.Info(ctx, "upload authorized", "photo_id", photoID, "user_id", userID, "key_id", key.KeyID)

	return &Authorization{
		UploadJWT:          token,
		WorkerURL:          s.workerURL,
		PhotoID:            photoID,
		ExpiresAt:          expiresAt,
		UploadAuthorizedAt: authorizedAt,
	}, nil
}
