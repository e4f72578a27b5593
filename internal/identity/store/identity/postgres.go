package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"veris/internal/identity/models"
	"veris/pkg/domain"
	"veris/pkg/platform/sentinel"
)

// Postgres persists identities with a unique primary index on the identifier
// and a unique secondary index on the anchor. Mutations run inside a
// transaction with a row lock so validate-then-mutate is atomic, matching the
// in-memory store's contract.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// EnsureSchema creates the identities table if it is missing. Idempotent.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS identities (
			identifier    BYTEA PRIMARY KEY,
			nonce         BIGINT NOT NULL,
			name          TEXT NOT NULL,
			metadata      JSONB,
			owner         BYTEA NOT NULL,
			pending_owner BYTEA NOT NULL,
			anchor        BYTEA NOT NULL UNIQUE,
			created_at    TIMESTAMPTZ NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL
		);
	`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure identities schema: %w", err)
	}
	return nil
}

const identityColumns = "identifier, nonce, name, metadata, owner, pending_owner, anchor, created_at, updated_at"

func (s *Postgres) CreateIfVacant(ctx context.Context, rec *models.Identity) error {
	const query = `
		INSERT INTO identities (` + identityColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		rec.Identifier, int64(rec.Nonce), rec.Name, nullableJSON(rec.Metadata),
		rec.Owner, rec.PendingOwner, rec.Anchor, rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("create identity: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create identity: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, id domain.Identifier) (*models.Identity, error) {
	const query = `SELECT ` + identityColumns + ` FROM identities WHERE identifier = $1`
	return scanIdentity(s.db.QueryRowContext(ctx, query, id))
}

func (s *Postgres) FindByAnchor(ctx context.Context, anchor domain.Address) (*models.Identity, error) {
	const query = `SELECT ` + identityColumns + ` FROM identities WHERE anchor = $1`
	return scanIdentity(s.db.QueryRowContext(ctx, query, anchor))
}

// Execute loads the record under FOR UPDATE, applies validate-then-mutate,
// and writes every changed field back before committing. The row lock plus
// the unique anchor index give the same atomicity as the in-memory store.
func (s *Postgres) Execute(
	ctx context.Context,
	id domain.Identifier,
	validate func(*models.Identity) error,
	mutate func(*models.Identity),
) (*models.Identity, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin identity update: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const query = `SELECT ` + identityColumns + ` FROM identities WHERE identifier = $1 FOR UPDATE`
	rec, err := scanIdentity(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}

	if err := validate(rec); err != nil {
		return nil, err
	}
	mutate(rec)

	const update = `
		UPDATE identities
		SET name = $2, metadata = $3, owner = $4, pending_owner = $5, anchor = $6, updated_at = $7
		WHERE identifier = $1
	`
	if _, err := tx.ExecContext(ctx, update,
		rec.Identifier, rec.Name, nullableJSON(rec.Metadata),
		rec.Owner, rec.PendingOwner, rec.Anchor, rec.UpdatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return nil, sentinel.ErrConflict
		}
		return nil, fmt.Errorf("update identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit identity update: %w", err)
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (*models.Identity, error) {
	var rec models.Identity
	var nonce int64
	var metadata []byte
	err := row.Scan(&rec.Identifier, &nonce, &rec.Name, &metadata,
		&rec.Owner, &rec.PendingOwner, &rec.Anchor, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan identity: %w", err)
	}
	rec.Nonce = uint64(nonce)
	rec.Metadata = metadata
	return &rec, nil
}

// isUniqueViolation reports whether err is a unique index violation, which on
// update can only mean the new anchor is already held by another record.
// Connections go through the pgx stdlib driver, so the error surfaces as a
// *pgconn.PgError.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrUniqueViolation
}

// SQLSTATE class 23 integrity violation, unique constraint.
const pgerrUniqueViolation = "23505"

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
