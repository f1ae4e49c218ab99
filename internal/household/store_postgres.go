package household

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "amparo/pkg/domain"
	"amparo/pkg/platform/sentinel"
	"amparo/pkg/platform/tx"
)

// PostgresStore persists households and members in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed household store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// q returns the context transaction when one is in flight, so bulk cascades
// run all their writes atomically.
func (s *PostgresStore) q(ctx context.Context) querier {
	if txn, ok := tx.From(ctx); ok {
		return txn
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, h *Household) error {
	if h == nil {
		return fmt.Errorf("household is required")
	}
	now := time.Now()
	h.CreatedAt = now
	h.UpdatedAt = now

	q := s.q(ctx)
	_, err := q.ExecContext(ctx, `
		INSERT INTO households (
			id, code, updated_on, avg_income_cents, total_income_cents,
			street, street_number, neighborhood, postal_code,
			declared_members, source_batch, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`, uuid.UUID(h.ID), h.Code, h.UpdatedOn, h.AvgIncomeCents, h.TotalIncomeCents,
		h.Street, h.StreetNumber, h.Neighborhood, h.PostalCode,
		h.DeclaredMembers, h.SourceBatch, h.CreatedAt, h.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert household: %w", err)
	}

	for _, m := range h.Members {
		m.HouseholdID = h.ID
		if err := s.insertMember(ctx, q, m, now); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, householdID id.HouseholdID) (*Household, error) {
	q := s.q(ctx)
	row := q.QueryRowContext(ctx, `
		SELECT id, code, updated_on, avg_income_cents, total_income_cents,
		       street, street_number, neighborhood, postal_code,
		       declared_members, source_batch, created_at, updated_at
		FROM households
		WHERE id = $1
	`, uuid.UUID(householdID))

	h, err := scanHousehold(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get household: %w", err)
	}
	if err := s.loadMembers(ctx, q, h); err != nil {
		return nil, err
	}
	return h, nil
}

func (s *PostgresStore) GetByCode(ctx context.Context, code string) (*Household, error) {
	q := s.q(ctx)
	row := q.QueryRowContext(ctx, `
		SELECT id, code, updated_on, avg_income_cents, total_income_cents,
		       street, street_number, neighborhood, postal_code,
		       declared_members, source_batch, created_at, updated_at
		FROM households
		WHERE code = $1
	`, code)

	h, err := scanHousehold(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get household by code: %w", err)
	}
	if err := s.loadMembers(ctx, q, h); err != nil {
		return nil, err
	}
	return h, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Household, error) {
	q := s.q(ctx)
	rows, err := q.QueryContext(ctx, `
		SELECT id, code, updated_on, avg_income_cents, total_income_cents,
		       street, street_number, neighborhood, postal_code,
		       declared_members, source_batch, created_at, updated_at
		FROM households
		ORDER BY code
	`)
	if err != nil {
		return nil, fmt.Errorf("list households: %w", err)
	}
	defer rows.Close()

	byID := make(map[id.HouseholdID]*Household)
	var out []*Household
	for rows.Next() {
		h, err := scanHousehold(rows)
		if err != nil {
			return nil, fmt.Errorf("scan household: %w", err)
		}
		byID[h.ID] = h
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list households: %w", err)
	}

	memberRows, err := q.QueryContext(ctx, `
		SELECT id, household_id, name, registry_id, tax_id, birth_date,
		       sex, kinship, created_at, updated_at
		FROM household_members
		ORDER BY household_id, kinship, name
	`)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer memberRows.Close()

	for memberRows.Next() {
		m, err := scanMember(memberRows)
		if err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		if h, ok := byID[m.HouseholdID]; ok {
			h.Members = append(h.Members, m)
		}
	}
	if err := memberRows.Err(); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) AddMember(ctx context.Context, m *Member) error {
	if m == nil {
		return fmt.Errorf("member is required")
	}
	q := s.q(ctx)

	var exists bool
	err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM households WHERE id = $1)`,
		uuid.UUID(m.HouseholdID)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("check household: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return s.insertMember(ctx, q, m, time.Now())
}

func (s *PostgresStore) Delete(ctx context.Context, householdID id.HouseholdID) error {
	q := s.q(ctx)
	result, err := q.ExecContext(ctx, `DELETE FROM households WHERE id = $1`, uuid.UUID(householdID))
	if err != nil {
		return fmt.Errorf("delete household: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete household: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) insertMember(ctx context.Context, q querier, m *Member, now time.Time) error {
	m.CreatedAt = now
	m.UpdatedAt = now
	_, err := q.ExecContext(ctx, `
		INSERT INTO household_members (
			id, household_id, name, registry_id, tax_id, birth_date,
			sex, kinship, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, uuid.UUID(m.ID), uuid.UUID(m.HouseholdID), m.Name, m.RegistryID,
		nullString(m.TaxID), nullTime(m.BirthDate), string(m.Sex), int(m.Kinship),
		m.CreatedAt, m.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert member: %w", err)
	}
	return nil
}

func (s *PostgresStore) loadMembers(ctx context.Context, q querier, h *Household) error {
	rows, err := q.QueryContext(ctx, `
		SELECT id, household_id, name, registry_id, tax_id, birth_date,
		       sex, kinship, created_at, updated_at
		FROM household_members
		WHERE household_id = $1
		ORDER BY kinship, name
	`, uuid.UUID(h.ID))
	if err != nil {
		return fmt.Errorf("load members: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return fmt.Errorf("scan member: %w", err)
		}
		h.Members = append(h.Members, m)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("load members: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanHousehold(row rowScanner) (*Household, error) {
	var h Household
	var householdID uuid.UUID
	err := row.Scan(&householdID, &h.Code, &h.UpdatedOn, &h.AvgIncomeCents, &h.TotalIncomeCents,
		&h.Street, &h.StreetNumber, &h.Neighborhood, &h.PostalCode,
		&h.DeclaredMembers, &h.SourceBatch, &h.CreatedAt, &h.UpdatedAt)
	if err != nil {
		return nil, err
	}
	h.ID = id.HouseholdID(householdID)
	return &h, nil
}

func scanMember(row rowScanner) (*Member, error) {
	var m Member
	var memberID, householdID uuid.UUID
	var taxID sql.NullString
	var birthDate sql.NullTime
	var sex string
	var kinship int
	err := row.Scan(&memberID, &householdID, &m.Name, &m.RegistryID, &taxID, &birthDate,
		&sex, &kinship, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.ID = id.MemberID(memberID)
	m.HouseholdID = id.HouseholdID(householdID)
	m.TaxID = taxID.String
	if birthDate.Valid {
		birth := birthDate.Time
		m.BirthDate = &birth
	}
	m.Sex = Sex(sex)
	m.Kinship = Kinship(kinship)
	return &m, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}

func nullTime(value *time.Time) sql.NullTime {
	if value == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *value, Valid: true}
}
