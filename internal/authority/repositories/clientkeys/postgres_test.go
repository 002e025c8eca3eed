package clientkeys

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/geoupload/internal/common"
	"github.com/dmitrijs2005/geoupload/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

const insertQ = `(?s)^INSERT\s+INTO\s+client_keys\s*\(user_id,\s*key_id,\s*public_key_pem\)\s*VALUES\s*\(\$1,\s*\$2,\s*\$3\)\s*RETURNING\s+created_at,\s*is_active\s*$`

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	created := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	mock.ExpectQuery(insertQ).
		WithArgs("u1", "k1", "PEM").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "is_active"}).AddRow(created, true))

	got, err := repo.Create(context.Background(), &models.ClientKey{UserID: "u1", KeyID: "k1", PublicKeyPEM: "PEM"})
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if !got.CreatedAt.Equal(created) || !got.IsActive {
		t.Fatalf("unexpected key: %+v", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_Duplicate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQ).
		WithArgs("u1", "k1", "PEM").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	_, err := repo.Create(context.Background(), &models.ClientKey{UserID: "u1", KeyID: "k1", PublicKeyPEM: "PEM"})
	if !errors.Is(err, common.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists, got %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQ).
		WithArgs("u1", "k1", "PEM").
		WillReturnError(errors.New("db down"))

	_, err := repo.Create(context.Background(), &models.ClientKey{UserID: "u1", KeyID: "k1", PublicKeyPEM: "PEM"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestLatestActive(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+user_id,\s*key_id,\s*public_key_pem,\s*created_at,\s*is_active\s+FROM\s+client_keys\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+is_active\s+ORDER\s+BY\s+created_at\s+DESC\s+LIMIT\s+1\s*$`
	now := time.Now()
	mock.ExpectQuery(q).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "key_id", "public_key_pem", "created_at", "is_active"}).
			AddRow("u1", "k2", "PEM2", now, true))

	got, err := repo.LatestActive(context.Background(), "u1")
	if err != nil {
		t.Fatalf("LatestActive error: %v", err)
	}
	if got.KeyID != "k2" || got.PublicKeyPEM != "PEM2" {
		t.Fatalf("unexpected key: %+v", got)
	}

	mock.ExpectQuery(q).WithArgs("ghost").WillReturnError(sql.ErrNoRows)
	if _, err := repo.LatestActive(context.Background(), "ghost"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `(?s)^SELECT\s+user_id,.*FROM\s+client_keys\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+key_id\s*=\s*\$2\s*$`
	mock.ExpectQuery(q).WithArgs("u1", "nope").WillReturnError(sql.ErrNoRows)

	if _, err := repo.Get(context.Background(), "u1", "nope"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}
}

func TestDeactivate(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := `^UPDATE\s+client_keys\s+SET\s+is_active\s*=\s*FALSE\s+WHERE\s+user_id\s*=\s*\$1\s+AND\s+key_id\s*=\s*\$2$`

	mock.ExpectExec(q).WithArgs("u1", "k1").WillReturnResult(sqlmock.NewResult(0, 1))
	if err := repo.Deactivate(context.Background(), "u1", "k1"); err != nil {
		t.Fatalf("Deactivate error: %v", err)
	}

	mock.ExpectExec(q).WithArgs("u1", "k9").WillReturnResult(sqlmock.NewResult(0, 0))
	if err := repo.Deactivate(context.Background(), "u1", "k9"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want ErrorNotFound, got %v", err)
	}

	mock.ExpectExec(q).WithArgs("u1", "k1").WillReturnError(errors.New("boom"))
	if err := repo.Deactivate(context.Background(), "u1", "k1"); err == nil {
		t.Fatal("expected error")
	}
}
