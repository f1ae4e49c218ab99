package criteria

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"amparo/internal/household"
	id "amparo/pkg/domain"
	"amparo/pkg/platform/sentinel"
	"amparo/pkg/platform/tx"
)

// PostgresStore persists categories and criteria in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed criteria store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) q(ctx context.Context) querier {
	if txn, ok := tx.From(ctx); ok {
		return txn
	}
	return s.db
}

func (s *PostgresStore) CreateCategory(ctx context.Context, category *Category) error {
	now := time.Now()
	category.CreatedAt = now
	category.UpdatedAt = now
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO categories (id, code, name, description, display_order, icon, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, uuid.UUID(category.ID), category.Code, category.Name, category.Description,
		category.DisplayOrder, category.Icon, category.Active, category.CreatedAt, category.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCategory(ctx context.Context, categoryID id.CategoryID) (*Category, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT id, code, name, description, display_order, icon, active, created_at, updated_at
		FROM categories
		WHERE id = $1
	`, uuid.UUID(categoryID))
	category, err := scanCategory(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get category: %w", err)
	}
	return category, nil
}

func (s *PostgresStore) ListCategories(ctx context.Context) ([]*Category, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, code, name, description, display_order, icon, active, created_at, updated_at
		FROM categories
		ORDER BY display_order, code
	`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	defer rows.Close()

	var out []*Category
	for rows.Next() {
		category, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return out, nil
}

const criterionColumns = `
	id, category_id, code, description, active, base_points, weight,
	applies_to_childless, applies_to_male_head, applies_to_single_member,
	min_age, max_age, required_sex, allowed_kinship, created_at, updated_at
`

func (s *PostgresStore) CreateCriterion(ctx context.Context, criterion *Criterion) error {
	now := time.Now()
	criterion.CreatedAt = now
	criterion.UpdatedAt = now
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO criteria (`+criterionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`, criterionArgs(criterion)...)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert criterion: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateCriterion(ctx context.Context, criterion *Criterion) error {
	criterion.UpdatedAt = time.Now()
	result, err := s.q(ctx).ExecContext(ctx, `
		UPDATE criteria SET
			category_id = $2, code = $3, description = $4, active = $5,
			base_points = $6, weight = $7,
			applies_to_childless = $8, applies_to_male_head = $9, applies_to_single_member = $10,
			min_age = $11, max_age = $12, required_sex = $13, allowed_kinship = $14,
			updated_at = $16
		WHERE id = $1
	`, criterionArgs(criterion)...)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("update criterion: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update criterion: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresStore) GetCriterion(ctx context.Context, criterionID id.CriterionID) (*Criterion, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT `+criterionColumns+`
		FROM criteria
		WHERE id = $1
	`, uuid.UUID(criterionID))
	criterion, err := scanCriterion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get criterion: %w", err)
	}
	return criterion, nil
}

func (s *PostgresStore) GetCriterionByCode(ctx context.Context, code string) (*Criterion, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT `+criterionColumns+`
		FROM criteria
		WHERE code = $1
	`, code)
	criterion, err := scanCriterion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get criterion by code: %w", err)
	}
	return criterion, nil
}

func (s *PostgresStore) ListCriteria(ctx context.Context, activeOnly bool) ([]*Criterion, error) {
	query := `
		SELECT c.id, c.category_id, c.code, c.description, c.active, c.base_points, c.weight,
		       c.applies_to_childless, c.applies_to_male_head, c.applies_to_single_member,
		       c.min_age, c.max_age, c.required_sex, c.allowed_kinship, c.created_at, c.updated_at
		FROM criteria c
		LEFT JOIN categories cat ON cat.id = c.category_id
	`
	if activeOnly {
		query += ` WHERE c.active`
	}
	query += ` ORDER BY cat.display_order NULLS LAST, c.code`

	rows, err := s.q(ctx).QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list criteria: %w", err)
	}
	defer rows.Close()

	var out []*Criterion
	for rows.Next() {
		criterion, err := scanCriterion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan criterion: %w", err)
		}
		out = append(out, criterion)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list criteria: %w", err)
	}
	return out, nil
}

func criterionArgs(c *Criterion) []any {
	return []any{
		uuid.UUID(c.ID), uuid.UUID(c.CategoryID), c.Code, c.Description, c.Active,
		c.BasePoints, c.Weight,
		c.AppliesToChildless, c.AppliesToMaleHead, c.AppliesToSingleMember,
		nullInt(c.MinAge), nullInt(c.MaxAge), nullString(string(c.RequiredSex)), c.AllowedKinship,
		c.CreatedAt, c.UpdatedAt,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCategory(row rowScanner) (*Category, error) {
	var category Category
	var categoryID uuid.UUID
	err := row.Scan(&categoryID, &category.Code, &category.Name, &category.Description,
		&category.DisplayOrder, &category.Icon, &category.Active, &category.CreatedAt, &category.UpdatedAt)
	if err != nil {
		return nil, err
	}
	category.ID = id.CategoryID(categoryID)
	return &category, nil
}

func scanCriterion(row rowScanner) (*Criterion, error) {
	var c Criterion
	var criterionID, categoryID uuid.UUID
	var minAge, maxAge sql.NullInt64
	var requiredSex sql.NullString
	err := row.Scan(&criterionID, &categoryID, &c.Code, &c.Description, &c.Active,
		&c.BasePoints, &c.Weight,
		&c.AppliesToChildless, &c.AppliesToMaleHead, &c.AppliesToSingleMember,
		&minAge, &maxAge, &requiredSex, &c.AllowedKinship, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.ID = id.CriterionID(criterionID)
	c.CategoryID = id.CategoryID(categoryID)
	if minAge.Valid {
		age := int(minAge.Int64)
		c.MinAge = &age
	}
	if maxAge.Valid {
		age := int(maxAge.Int64)
		c.MaxAge = &age
	}
	if requiredSex.Valid {
		c.RequiredSex = household.Sex(requiredSex.String)
	}
	return &c, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func nullInt(value *int) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*value), Valid: true}
}

func nullString(value string) sql.NullString {
	if value == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: value, Valid: true}
}
