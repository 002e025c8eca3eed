package photos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/geoupload/internal/common"
	"github.com/dmitrijs2005/geoupload/internal/dbx"
	"github.com/dmitrijs2005/geoupload/internal/models"
)

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, photo *models.Photo) error {
	query := `
		INSERT INTO photos (id, user_id, client_key_id, filename, status, authorized_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		photo.ID, photo.UserID, photo.ClientKeyID, photo.Filename, photo.Status, photo.AuthorizedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Photo, error) {
	query := `
		SELECT id, user_id, client_key_id, filename, status, error, retry_after_minutes,
			client_signature, worker_identity, result, authorized_at, processed_at
		FROM photos
		WHERE id = $1
	`

	p := &models.Photo{}
	var (
		retry       sql.NullInt64
		result      []byte
		processedAt sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.UserID, &p.ClientKeyID, &p.Filename, &p.Status, &p.Error, &retry,
		&p.ClientSignature, &p.WorkerIdentity, &result, &p.AuthorizedAt, &processedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if retry.Valid {
		v := int(retry.Int64)
		p.RetryAfterMinutes = &v
	}
	if len(result) > 0 {
		p.Result = result
	}
	if processedAt.Valid {
		t := processedAt.Time
		p.ProcessedAt = &t
	}
	return p, nil
}

// SaveResult updates the outcome columns. Exactly one row must be affected.
func (r *PostgresRepository) SaveResult(ctx context.Context, photo *models.Photo) error {
	query := `
		UPDATE photos SET
			status = $2,
			error = $3,
			retry_after_minutes = $4,
			client_signature = $5,
			worker_identity = $6,
			result = $7,
			processed_at = $8
		WHERE id = $1
	`

	var retry sql.NullInt64
	if photo.RetryAfterMinutes != nil {
		retry = sql.NullInt64{Int64: int64(*photo.RetryAfterMinutes), Valid: true}
	}
	var result any
	if len(photo.Result) > 0 {
		result = []byte(photo.Result)
	}

	res, err := r.db.ExecContext(ctx, query,
		photo.ID, photo.Status, photo.Error, retry, photo.ClientSignature, photo.WorkerIdentity, result, photo.ProcessedAt)
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("wrong rows affected count: %d", n)
	}
}
