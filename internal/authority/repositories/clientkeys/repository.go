// Package clientkeys stores the ECDSA public keys clients register with the
// Authority.
package clientkeys

import (
	"context"

	"github.com/dmitrijs2005/geoupload/internal/models"
)

type Repository interface {
	// Create inserts a new active key. A duplicate (user_id, key_id) yields
	// common.ErrAlreadyExists.
	Create(ctx context.Context, key *models.ClientKey) (*models.ClientKey, error)
	Get(ctx context.Context, userID, keyID string) (*models.ClientKey, error)
	// LatestActive returns the most recently created active key of a user,
	// or common.ErrorNotFound.
	LatestActive(ctx context.Context, userID string) (*models.ClientKey, error)
	Deactivate(ctx context.Context, userID, keyID string) error
}
