package photos

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/geoupload/internal/common"
	"github.com/dmitrijs2005/geoupload/internal/models"
)

type MemoryRepository struct {
	mu     sync.RWMutex
	photos map[string]models.Photo
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{photos: make(map[string]models.Photo)}
}

func (r *MemoryRepository) Create(ctx context.Context, photo *models.Photo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.photos[photo.ID]; ok {
		return common.ErrAlreadyExists
	}
	r.photos[photo.ID] = *photo
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, id string) (*models.Photo, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.photos[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) SaveResult(ctx context.Context, photo *models.Photo) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.photos[photo.ID]
	if !ok {
		return common.ErrorNotFound
	}
	p.Status = photo.Status
	p.Error = photo.Error
	p.RetryAfterMinutes = photo.RetryAfterMinutes
	p.ClientSignature = photo.ClientSignature
	p.WorkerIdentity = photo.WorkerIdentity
	p.Result = photo.Result
	p.ProcessedAt = photo.ProcessedAt
	r.photos[photo.ID] = p
	return nil
}
