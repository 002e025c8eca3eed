package clientkeys

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/geoupload/internal/common"
	"github.com/dmitrijs2005/geoupload/internal/models"
)

// MemoryRepository keeps keys in process memory. Used when no database DSN
// is configured and in tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	keys map[string]map[string]models.ClientKey
	now  func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{keys: make(map[string]map[string]models.ClientKey), now: time.Now}
}

func (r *MemoryRepository) Create(ctx context.Context, key *models.ClientKey) (*models.ClientKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	byUser := r.keys[key.UserID]
	if byUser == nil {
		byUser = make(map[string]models.ClientKey)
		r.keys[key.UserID] = byUser
	}
	if _, ok := byUser[key.KeyID]; ok {
		return nil, common.ErrAlreadyExists
	}

	key.CreatedAt = r.now().UTC()
	key.IsActive = true
	byUser[key.KeyID] = *key
	return key, nil
}

func (r *MemoryRepository) Get(ctx context.Context, userID, keyID string) (*models.ClientKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	k, ok := r.keys[userID][keyID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &k, nil
}

func (r *MemoryRepository) LatestActive(ctx context.Context, userID string) (*models.ClientKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest *models.ClientKey
	for _, k := range r.keys[userID] {
		if !k.IsActive {
			continue
		}
		if latest == nil || k.CreatedAt.After(latest.CreatedAt) {
			latest = &k
		}
	}
	if latest == nil {
		return nil, common.ErrorNotFound
	}
	return latest, nil
}

func (r *MemoryRepository) Deactivate(ctx context.Context, userID, keyID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	k, ok := r.keys[userID][keyID]
	if !ok {
		return common.ErrorNotFound
	}
	k.IsActive = false
	r.keys[userID][keyID] = k
	return nil
}
