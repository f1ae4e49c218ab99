package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"amparo/pkg/platform/sentinel"
	"amparo/pkg/platform/tx"
)

// PostgresStore persists the singleton settings row in PostgreSQL.
// The table is keyed by a constant id so Save is a plain upsert.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed settings store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const settingsRowID = 1

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if txn, ok := tx.From(ctx); ok {
		return txn
	}
	return s.db
}

func (s *PostgresStore) Get(ctx context.Context) (*Settings, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT min_passing_score, available_slots, updated_at
		FROM settings
		WHERE id = $1
	`, settingsRowID)

	var out Settings
	err := row.Scan(&out.MinPassingScore, &out.AvailableSlots, &out.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return &out, nil
}

func (s *PostgresStore) Save(ctx context.Context, settings *Settings) error {
	if settings == nil {
		return fmt.Errorf("settings is required")
	}
	settings.UpdatedAt = time.Now()

	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO settings (id, min_passing_score, available_slots, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			min_passing_score = EXCLUDED.min_passing_score,
			available_slots = EXCLUDED.available_slots,
			updated_at = EXCLUDED.updated_at
	`, settingsRowID, settings.MinPassingScore, settings.AvailableSlots, settings.UpdatedAt)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
