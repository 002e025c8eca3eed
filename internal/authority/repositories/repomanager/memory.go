package repomanager

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/geoupload/internal/authority/repositories/clientkeys"
	"github.com/dmitrijs2005/geoupload/internal/authority/repositories/photos"
)

// InMemoryRepositoryManager keeps everything in process memory. InTx
// serializes callers instead of providing rollback.
type InMemoryRepositoryManager struct {
	txMu       *sync.Mutex
	clientKeys *clientkeys.MemoryRepository
	photos     *photos.MemoryRepository
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{
		txMu:       &sync.Mutex{},
		clientKeys: clientkeys.NewMemoryRepository(),
		photos:     photos.NewMemoryRepository(),
	}
}

func (m *InMemoryRepositoryManager) RunMigrations(ctx context.Context) error {
	return nil
}

func (m *InMemoryRepositoryManager) ClientKeys() clientkeys.Repository {
	return m.clientKeys
}

func (m *InMemoryRepositoryManager) Photos() photos.Repository {
	return m.photos
}

func (m *InMemoryRepositoryManager) InTx(ctx context.Context, fn func(ctx context.Context, m RepositoryManager) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()
	return fn(ctx, m)
}

func (m *InMemoryRepositoryManager) Close() error {
	return nil
}
