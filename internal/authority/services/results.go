package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/geoupload/internal/auth"
	"github.com/dmitrijs2005/geoupload/internal/authority/repositories/repomanager"
	"github.com/dmitrijs2005/geoupload/internal/common"
	"github.com/dmitrijs2005/geoupload/internal/cryptox"
	"github.com/dmitrijs2005/geoupload/internal/logging"
	"github.com/dmitrijs2005/geoupload/internal/models"
)

// ResultService accepts processing results reported by workers.
type ResultService struct {
	repomanager repomanager.RepositoryManager
	codec       *auth.Codec
	log         logging.Logger
	now         func() time.Time
}

func NewResultService(m repomanager.RepositoryManager, codec *auth.Codec, log logging.Logger) *ResultService {
	return &ResultService{repomanager: m, codec: codec, log: log.With("module", "results"), now: time.Now}
}

// AcceptProcessed verifies the worker's signature over the result and the
// client's signature over the upload, then stores the outcome.
//
// The signed copy of the result is what gets stored; processedData only has
// to agree with it on photo id. Redelivery is accepted. A completed photo is
// never downgraded by a later error report.
func (s *ResultService) AcceptProcessed(ctx context.Context, processedData json.RawMessage, workerSignature string) (*models.Photo, error) {
	claims, err := s.codec.VerifyWorkerResult(workerSignature)
	if err != nil {
		return nil, err
	}

	var data models.ProcessingResult
	if err := json.Unmarshal(processedData, &data); err != nil {
		return nil, fmt.Errorf("%w: processed_data: %v", common.ErrValidation, err)
	}
	if data.PhotoID != claims.PhotoID {
		return nil, fmt.Errorf("%w: photo_id does not match worker signature", common.ErrInvalidToken)
	}
	result := claims.ProcessingResult

	var saved *models.Photo
	err = s.repomanager.InTx(ctx, func(ctx context.Context, m repomanager.RepositoryManager) error {
		photo, err := m.Photos().Get(ctx, result.PhotoID)
		if err != nil {
			return err
		}

		if err := s.verifyClientSignature(ctx, m, photo, result); err != nil {
			return err
		}

		if photo.Status == models.PhotoStatusCompleted && !result.Completed() {
			s.log.Warn(ctx, "ignoring error report for completed photo", "photo_id", photo.ID, "worker", claims.WorkerIdentity)
			saved = photo
			return nil
		}

		raw, err := json.Marshal(result)
		if err != nil {
			return err
		}
		processedAt := s.now().UTC()

		photo.Status = models.PhotoStatusError
		if result.Completed() {
			photo.Status = models.PhotoStatusCompleted
		}
		photo.Error = result.Error
		photo.RetryAfterMinutes = result.RetryAfterMinutes
		photo.ClientSignature = result.ClientSignature
		photo.WorkerIdentity = claims.WorkerIdentity
		photo.Result = raw
		photo.ProcessedAt = &processedAt

		if err := m.Photos().SaveResult(ctx, photo); err != nil {
			return err
		}
		saved = photo
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info(ctx, "processing result stored", "photo_id", saved.ID, "status", saved.Status, "worker", claims.WorkerIdentity)
	return saved, nil
}

// verifyClientSignature checks the client's signature over
// {photo_id, filename, timestamp}, where filename and timestamp are the
// ones recorded at authorization. Completed results must carry one.
func (s *ResultService) verifyClientSignature(ctx context.Context, m repomanager.RepositoryManager, photo *models.Photo, result models.ProcessingResult) error {
	if result.ClientSignature == "" {
		if result.Completed() {
			return fmt.Errorf("%w: client signature missing", common.ErrInvalidSignature)
		}
		return nil
	}

	key, err := m.ClientKeys().Get(ctx, photo.UserID, photo.ClientKeyID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("%w: client key %s not found", common.ErrInvalidSignature, photo.ClientKeyID)
		}
		return err
	}
	pub, err := cryptox.ParsePublicKeyPEM(key.PublicKeyPEM)
	if err != nil {
		return err
	}

	msg := cryptox.UploadMessage(photo.ID, photo.Filename, photo.AuthorizedAt.Unix())
	if err := cryptox.VerifyMessage(pub, msg, result.ClientSignature); err != nil {
		s.log.Warn(ctx, "client signature rejected", "photo_id", photo.ID, "key_id", photo.ClientKeyID)
		return err
	}
	return nil
}
