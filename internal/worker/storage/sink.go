package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"github.com/dmitrijs2005/geoupload/internal/filex"
	"github.com/dmitrijs2005/geoupload/internal/logging"
	"github.com/dmitrijs2005/geoupload/internal/models"
	"github.com/dmitrijs2005/geoupload/internal/worker/derivative"
)

// Sink publishes a photo's variants all or nothing.
type Sink struct {
	backend      Backend
	buildBackoff func() backoff.BackOff
	logger       logging.Logger
}

// NewSink wraps backend with retries. A nil factory retries with exponential
// backoff for up to ten seconds.
func NewSink(backend Backend, factory func() backoff.BackOff, logger logging.Logger) *Sink {
	if factory == nil {
		factory = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxElapsedTime = 10 * time.Second
			return b
		}
	}
	return &Sink{backend: backend, buildBackoff: factory, logger: logger.With("module", "storage")}
}

// Store puts every variant under photos/<photoID>/. If any put finally fails,
// the keys already written are deleted and the error is returned.
func (s *Sink) Store(ctx context.Context, photoID string, variants []derivative.Variant) (map[string]models.SizeVariant, error) {
	out := make(map[string]models.SizeVariant, len(variants))
	var stored []string

	for _, v := range variants {
		key := Key(photoID, v.Rel)

		var url string
		err := s.retry(ctx, func() error {
			u, err := s.backend.Put(ctx, v.LocalPath, key)
			if err != nil {
				if errors.Is(err, filex.ErrPathEscape) {
					return backoff.Permanent(err)
				}
				s.logger.Warn(ctx, "put failed, retrying", "key", key, "error", err)
				return err
			}
			url = u
			return nil
		})
		if err != nil {
			s.rollback(ctx, stored)
			return nil, fmt.Errorf("store %s: %w", v.Name, err)
		}

		stored = append(stored, key)
		out[v.Name] = models.SizeVariant{Width: v.Width, Height: v.Height, Path: v.Rel, URL: url}
	}

	s.logger.Info(ctx, "variants stored", "photo_id", photoID, "count", len(stored))
	return out, nil
}

func (s *Sink) rollback(ctx context.Context, keys []string) {
	ctx = context.WithoutCancel(ctx)
	for _, key := range keys {
		if err := s.backend.Delete(ctx, key); err != nil {
			s.logger.Error(ctx, "rollback delete failed", "key", key, "error", err)
		}
	}
}

func (s *Sink) retry(ctx context.Context, fn func() error) error {
	return backoff.Retry(fn, backoff.WithContext(s.buildBackoff(), ctx))
}
