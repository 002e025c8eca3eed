// Package repomanager wires the Authority repositories to a storage backend:
// PostgreSQL (pgx + goose migrations) or process memory.
package repomanager

import (
	"context"

	"github.com/dmitrijs2005/geoupload/internal/authority/repositories/clientkeys"
	"github.com/dmitrijs2005/geoupload/internal/authority/repositories/photos"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context) error
	ClientKeys() clientkeys.Repository
	Photos() photos.Repository
	// InTx runs fn with a manager whose repositories share one transaction.
	InTx(ctx context.Context, fn func(ctx context.Context, m RepositoryManager) error) error
	Close() error
}
