package clientkeys

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/geoupload/internal/common"
	"github.com/dmitrijs2005/geoupload/internal/dbx"
	"github.com/dmitrijs2005/geoupload/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, key *models.ClientKey) (*models.ClientKey, error) {
	query :=
		`INSERT INTO client_keys (user_id, key_id, public_key_pem)
		 VALUES ($1, $2, $3)
		 RETURNING created_at, is_active
		 `

	err := r.db.QueryRowContext(ctx, query,
		key.UserID, key.KeyID, key.PublicKeyPEM).Scan(&key.CreatedAt, &key.IsActive)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return nil, common.ErrAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return key, nil
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.ClientKey, error) {
	key := &models.ClientKey{}
	err := row.Scan(&key.UserID, &key.KeyID, &key.PublicKeyPEM, &key.CreatedAt, &key.IsActive)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return key, nil
}

func (r *PostgresRepository) Get(ctx context.Context, userID, keyID string) (*models.ClientKey, error) {
	query :=
		`SELECT user_id, key_id, public_key_pem, created_at, is_active FROM client_keys
		 WHERE user_id = $1 AND key_id = $2
		 `
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID, keyID))
}

func (r *PostgresRepository) LatestActive(ctx context.Context, userID string) (*models.ClientKey, error) {
	query :=
		`SELECT user_id, key_id, public_key_pem, created_at, is_active FROM client_keys
		 WHERE user_id = $1 AND is_active
		 ORDER BY created_at DESC
		 LIMIT 1
		 `
	return r.scanOne(r.db.QueryRowContext(ctx, query, userID))
}

// Deactivate flips is_active off. Exactly one row must be affected.
func (r *PostgresRepository) Deactivate(ctx context.Context, userID, keyID string) error {
	query := `UPDATE client_keys SET is_active = FALSE WHERE user_id = $1 AND key_id = $2`
	res, err := r.db.ExecContext(ctx, query, userID, keyID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
