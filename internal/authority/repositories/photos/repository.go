// Package photos stores the Authority's photo records: one row per upload
// authorization, later completed with the worker's processing result.
package photos

import (
	"context"

	"github.com/dmitrijs2005/geoupload/internal/models"
)

type Repository interface {
	Create(ctx context.Context, photo *models.Photo) error
	// Get returns common.ErrorNotFound for unknown ids.
	Get(ctx context.Context, id string) (*models.Photo, error)
	// SaveResult stores the outcome fields of photo. Saving the same result
	// twice is allowed.
	SaveResult(ctx context.Context, photo *models.Photo) error
}
