package evaluation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	id "amparo/pkg/domain"
	"amparo/pkg/platform/sentinel"
	"amparo/pkg/platform/tx"
)

// PostgresStore persists evaluations, links, and history in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed evaluation store.
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

const evaluationColumns = `
	id, household_id, status, score, notes,
	locked_by, lock_started_at, finalized_at, finalized_by,
	created_at, updated_at
`

func (s *PostgresStore) Create(ctx context.Context, e *Evaluation) error {
	now := time.Now()
	e.CreatedAt = now
	e.UpdatedAt = now
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO evaluations (`+evaluationColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, uuid.UUID(e.ID), uuid.UUID(e.HouseholdID), string(e.Status), e.Score, e.Notes,
		nullReviewer(e.LockedBy), nullTime(e.LockStartedAt),
		nullTime(e.FinalizedAt), nullReviewer(e.FinalizedBy),
		e.CreatedAt, e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert evaluation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, evaluationID id.EvaluationID) (*Evaluation, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT `+evaluationColumns+`
		FROM evaluations
		WHERE id = $1
	`, uuid.UUID(evaluationID))
	e, err := scanEvaluation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get evaluation: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) GetByHousehold(ctx context.Context, householdID id.HouseholdID) (*Evaluation, error) {
	row := s.q(ctx).QueryRowContext(ctx, `
		SELECT `+evaluationColumns+`
		FROM evaluations
		WHERE household_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`, uuid.UUID(householdID))
	e, err := scanEvaluation(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get evaluation by household: %w", err)
	}
	return e, nil
}

func (s *PostgresStore) List(ctx context.Context, statuses ...Status) ([]*Evaluation, error) {
	query := `SELECT ` + evaluationColumns + ` FROM evaluations`
	var args []any
	if len(statuses) > 0 {
		raw := make([]string, len(statuses))
		for i, status := range statuses {
			raw[i] = string(status)
		}
		query += ` WHERE status = ANY($1)`
		args = append(args, pq.Array(raw))
	}
	query += ` ORDER BY created_at`

	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	defer rows.Close()

	var out []*Evaluation
	for rows.Next() {
		e, err := scanEvaluation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan evaluation: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list evaluations: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Update(ctx context.Context, e *Evaluation) error {
	e.UpdatedAt = time.Now()
	result, err := s.q(ctx).ExecContext(ctx, `
		UPDATE evaluations SET
			status = $2, score = $3, notes = $4,
			locked_by = $5, lock_started_at = $6,
			finalized_at = $7, finalized_by = $8,
			updated_at = $9
		WHERE id = $1
	`, uuid.UUID(e.ID), string(e.Status), e.Score, e.Notes,
		nullReviewer(e.LockedBy), nullTime(e.LockStartedAt),
		nullTime(e.FinalizedAt), nullReviewer(e.FinalizedBy),
		e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update evaluation: %w", err)
	}
	return checkAffected(result, "update evaluation")
}

func (s *PostgresStore) UpdateScore(ctx context.Context, evaluationID id.EvaluationID, score int) error {
	result, err := s.q(ctx).ExecContext(ctx, `
		UPDATE evaluations SET score = $2, updated_at = $3 WHERE id = $1
	`, uuid.UUID(evaluationID), score, time.Now())
	if err != nil {
		return fmt.Errorf("update evaluation score: %w", err)
	}
	return checkAffected(result, "update evaluation score")
}

const linkColumns = `
	id, evaluation_id, criterion_id, satisfied, applicable, note, document_ref,
	created_at, updated_at
`

func (s *PostgresStore) CreateLink(ctx context.Context, link *CriterionLink) error {
	now := time.Now()
	link.CreatedAt = now
	link.UpdatedAt = now
	_, err := s.q(ctx).ExecContext(ctx, `
		INSERT INTO criterion_links (`+linkColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, uuid.UUID(link.ID), uuid.UUID(link.EvaluationID), uuid.UUID(link.CriterionID),
		link.Satisfied, link.Applicable, link.Note, nullString(link.DocumentRef),
		link.CreatedAt, link.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrConflict
		}
		if isForeignKeyViolation(err) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("insert criterion link: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateLink(ctx context.Context, link *CriterionLink) error {
	link.UpdatedAt = time.Now()
	result, err := s.q(ctx).ExecContext(ctx, `
		UPDATE criterion_links SET
			satisfied = $2, applicable = $3, note = $4, document_ref = $5, updated_at = $6
		WHERE id = $1
	`, uuid.UUID(link.ID), link.Satisfied, link.Applicable, link.Note,
		nullString(link.DocumentRef), link.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update criterion link: %w", err)
	}
	return checkAffected(result, "update criterion link")
}

func (s *PostgresStore) ListLinks(ctx context.Context, evaluationID id.EvaluationID) ([]*CriterionLink, error) {
	return s.listLinks(ctx, `evaluation_id = $1`, uuid.UUID(evaluationID))
}

func (s *PostgresStore) ListLinksByCriterion(ctx context.Context, criterionID id.CriterionID) ([]*CriterionLink, error) {
	return s.listLinks(ctx, `criterion_id = $1`, uuid.UUID(criterionID))
}

func (s *PostgresStore) listLinks(ctx context.Context, where string, arg any) ([]*CriterionLink, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT `+linkColumns+`
		FROM criterion_links
		WHERE `+where+`
		ORDER BY created_at
	`, arg)
	if err != nil {
		return nil, fmt.Errorf("list criterion links: %w", err)
	}
	defer rows.Close()

	var out []*CriterionLink
	for rows.Next() {
		link, err := scanLink(rows)
		if err != nil {
			return nil, fmt.Errorf("scan criterion link: %w", err)
		}
		out = append(out, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list criterion links: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) AddHistory(ctx context.Context, entry *HistoryEntry) error {
	fieldChanges, err := json.Marshal(entry.FieldChanges)
	if err != nil {
		return fmt.Errorf("marshal field changes: %w", err)
	}
	criterionChanges, err := json.Marshal(entry.CriterionChanges)
	if err != nil {
		return fmt.Errorf("marshal criterion changes: %w", err)
	}
	_, err = s.q(ctx).ExecContext(ctx, `
		INSERT INTO evaluation_history (
			id, evaluation_id, edited_by, justification,
			field_changes, criterion_changes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, uuid.UUID(entry.ID), uuid.UUID(entry.EvaluationID), uuid.UUID(entry.EditedBy),
		entry.Justification, fieldChanges, criterionChanges, entry.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return sentinel.ErrNotFound
		}
		return fmt.Errorf("insert history entry: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListHistory(ctx context.Context, evaluationID id.EvaluationID) ([]*HistoryEntry, error) {
	rows, err := s.q(ctx).QueryContext(ctx, `
		SELECT id, evaluation_id, edited_by, justification,
		       field_changes, criterion_changes, created_at
		FROM evaluation_history
		WHERE evaluation_id = $1
		ORDER BY created_at DESC
	`, uuid.UUID(evaluationID))
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []*HistoryEntry
	for rows.Next() {
		var entry HistoryEntry
		var entryID, evalID, editedBy uuid.UUID
		var fieldChanges, criterionChanges []byte
		err := rows.Scan(&entryID, &evalID, &editedBy, &entry.Justification,
			&fieldChanges, &criterionChanges, &entry.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		entry.ID = id.HistoryID(entryID)
		entry.EvaluationID = id.EvaluationID(evalID)
		entry.EditedBy = id.ReviewerID(editedBy)
		if err := json.Unmarshal(fieldChanges, &entry.FieldChanges); err != nil {
			return nil, fmt.Errorf("unmarshal field changes: %w", err)
		}
		if err := json.Unmarshal(criterionChanges, &entry.CriterionChanges); err != nil {
			return nil, fmt.Errorf("unmarshal criterion changes: %w", err)
		}
		out = append(out, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvaluation(row rowScanner) (*Evaluation, error) {
	var e Evaluation
	var evalID, householdID uuid.UUID
	var status string
	var lockedBy, finalizedBy uuid.NullUUID
	var lockStartedAt, finalizedAt sql.NullTime
	err := row.Scan(&evalID, &householdID, &status, &e.Score, &e.Notes,
		&lockedBy, &lockStartedAt, &finalizedAt, &finalizedBy,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	e.ID = id.EvaluationID(evalID)
	e.HouseholdID = id.HouseholdID(householdID)
	e.Status = Status(status)
	if lockedBy.Valid {
		reviewer := id.ReviewerID(lockedBy.UUID)
		e.LockedBy = &reviewer
	}
	if lockStartedAt.Valid {
		started := lockStartedAt.Time
		e.LockStartedAt = &started
	}
	if finalizedAt.Valid {
		finalized := finalizedAt.Time
		e.FinalizedAt = &finalized
	}
	if finalizedBy.Valid {
		reviewer := id.ReviewerID(finalizedBy.UUID)
		e.FinalizedBy = &reviewer
	}
	return &e, nil
}

func scanLink(row rowScanner) (*CriterionLink, error) {
	var link CriterionLink
	var linkID, evalID, criterionID uuid.UUID
	var documentRef sql.NullString
	err := row.Scan(&linkID, &evalID, &criterionID, &link.Satisfied, &link.Applicable,
		&link.Note, &documentRef, &link.CreatedAt, &link.UpdatedAt)
	if err != nil {
		return nil, err
	}
	link.ID = id.LinkID(linkID)
	link.EvaluationID = id.EvaluationID(evalID)
	link.CriterionID = id.CriterionID(criterionID)
	link.DocumentRef = documentRef.String
	return &link, nil
}

func checkAffected(result sql.Result, op string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23503"
}

func nullReviewer(reviewer *id.ReviewerID) uuid.NullUUID {
	if reviewer == nil {
		return uuid.NullUUID{}
	}
	return uuid.NullUUID{UUID: uuid.UUID(*reviewer), Valid: true}
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
