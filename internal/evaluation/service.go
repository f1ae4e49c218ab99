package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"amparo/internal/criteria"
	"amparo/internal/evaluation/metrics"
	id "amparo/pkg/domain"
	dErrors "amparo/pkg/domain-errors"
	"amparo/pkg/platform/sentinel"
	"amparo/pkg/platform/tx"
	"amparo/pkg/requestcontext"
)

// DefaultLockTimeout is the review lock's availability window.
const DefaultLockTimeout = 30 * time.Minute

// Service drives the review workflow: lock handling, link mutation,
// finalization, threshold reclassification, and the finalized-edit path.
type Service struct {
	store       Store
	criteria    criteria.Store
	associator  *Associator
	runner      tx.Runner
	lockTimeout time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

func NewService(store Store, criteriaStore criteria.Store, associator *Associator, runner tx.Runner, lockTimeout time.Duration, metrics *metrics.Metrics, logger *slog.Logger) *Service {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Service{
		store:       store,
		criteria:    criteriaStore,
		associator:  associator,
		runner:      runner,
		lockTimeout: lockTimeout,
		metrics:     metrics,
		logger:      logger,
	}
}

// OpenForHousehold creates the pending evaluation for a newly ingested
// household. Implements the ingestion-side contract of the household
// service.
func (s *Service) OpenForHousehold(ctx context.Context, householdID id.HouseholdID) error {
	e := &Evaluation{
		ID:          id.NewEvaluationID(),
		HouseholdID: householdID,
		Status:      StatusPending,
	}
	if err := s.store.Create(ctx, e); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "create evaluation")
	}
	return nil
}

// Get fetches one evaluation.
func (s *Service) Get(ctx context.Context, evaluationID id.EvaluationID) (*Evaluation, error) {
	return s.load(ctx, evaluationID)
}

// GetByHousehold fetches a household's current evaluation.
func (s *Service) GetByHousehold(ctx context.Context, householdID id.HouseholdID) (*Evaluation, error) {
	e, err := s.store.GetByHousehold(ctx, householdID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "evaluation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get evaluation")
	}
	return e, nil
}

// List returns evaluations, optionally narrowed by status. The review
// queue view reads pending plus under_review.
func (s *Service) List(ctx context.Context, statuses ...Status) ([]*Evaluation, error) {
	evaluations, err := s.store.List(ctx, statuses...)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list evaluations")
	}
	return evaluations, nil
}

// Links returns the evaluation's criterion links.
func (s *Service) Links(ctx context.Context, evaluationID id.EvaluationID) ([]*CriterionLink, error) {
	links, err := s.store.ListLinks(ctx, evaluationID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list links")
	}
	return links, nil
}

// StartReview takes the review lock and moves the evaluation under
// review, lazily associating any active criteria not yet linked and
// rescoring. A lock held by another reviewer past its timeout is stolen.
func (s *Service) StartReview(ctx context.Context, evaluationID id.EvaluationID, reviewer id.ReviewerID) (*Evaluation, error) {
	e, err := s.load(ctx, evaluationID)
	if err != nil {
		return nil, err
	}
	if e.Status.Finalized() {
		return nil, dErrors.New(dErrors.CodeConflict, "finalized evaluations re-enter review only through the edit workflow")
	}

	now := requestcontext.Now(ctx)
	if !e.IsAvailable(reviewer, s.lockTimeout, now) {
		s.metrics.IncrementLockEvent("denied")
		return nil, dErrors.New(dErrors.CodeLocked, "evaluation is being reviewed by another user")
	}
	stolen := e.LockedBy != nil && *e.LockedBy != reviewer

	e.StartReview(reviewer, now)
	if err := s.store.Update(ctx, e); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist review lock")
	}
	if stolen {
		s.metrics.IncrementLockEvent("stolen")
	} else {
		s.metrics.IncrementLockEvent("acquired")
	}

	if _, err := s.associator.Associate(ctx, e); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "associate criteria")
	}
	score, err := s.associator.Rescore(ctx, e.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "rescore evaluation")
	}
	e.Score = score

	s.logger.Info("review started",
		"evaluation_id", e.ID.String(),
		"reviewer_id", reviewer.String(),
		"lock_stolen", stolen)
	return e, nil
}

// LinkEdit mutates one criterion link's review fields.
type LinkEdit struct {
	LinkID      id.LinkID
	Satisfied   bool
	Note        *string
	DocumentRef *string
}

// SaveProgress applies link edits and notes while the reviewer holds the
// lock, then rescores. The evaluation stays under review.
func (s *Service) SaveProgress(ctx context.Context, evaluationID id.EvaluationID, reviewer id.ReviewerID, edits []LinkEdit, notes *string) (*Evaluation, error) {
	e, err := s.load(ctx, evaluationID)
	if err != nil {
		return nil, err
	}
	if e.Status != StatusUnderReview {
		return nil, dErrors.New(dErrors.CodeConflict, "evaluation is not under review")
	}
	if err := s.requireHolder(ctx, e, reviewer); err != nil {
		return nil, err
	}

	if err := s.applyLinkEdits(ctx, e.ID, edits); err != nil {
		return nil, err
	}
	if notes != nil {
		e.Notes = *notes
		if err := s.store.Update(ctx, e); err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist notes")
		}
	}
	score, err := s.associator.Rescore(ctx, e.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "rescore evaluation")
	}
	e.Score = score
	return e, nil
}

// DetailedScore returns the per-category breakdown for display.
func (s *Service) DetailedScore(ctx context.Context, evaluationID id.EvaluationID) (map[id.CategoryID]CategoryScore, error) {
	breakdown, err := s.associator.DetailedScore(ctx, evaluationID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "compute detailed score")
	}
	return breakdown, nil
}

// Finalize classifies the evaluation against the passing threshold,
// stamps the finalizing reviewer, and releases the lock. The threshold is
// passed explicitly; callers read it from settings.
func (s *Service) Finalize(ctx context.Context, evaluationID id.EvaluationID, reviewer id.ReviewerID, minPassingScore int) (*Evaluation, error) {
	e, err := s.load(ctx, evaluationID)
	if err != nil {
		return nil, err
	}
	if e.Status != StatusUnderReview {
		return nil, dErrors.New(dErrors.CodeConflict, "only evaluations under review can be finalized")
	}
	if err := s.requireHolder(ctx, e, reviewer); err != nil {
		return nil, err
	}

	score, err := s.associator.Rescore(ctx, e.ID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "rescore evaluation")
	}
	e.Score = score
	e.Status = classify(score, minPassingScore)
	now := requestcontext.Now(ctx)
	e.FinalizedAt = &now
	e.FinalizedBy = &reviewer
	e.ReleaseLock()

	if err := s.store.Update(ctx, e); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist finalization")
	}
	s.metrics.IncrementFinalization(string(e.Status))
	s.metrics.IncrementLockEvent("released")
	s.logger.Info("evaluation finalized",
		"evaluation_id", e.ID.String(),
		"reviewer_id", reviewer.String(),
		"status", string(e.Status),
		"score", score)
	return e, nil
}

// Release drops the reviewer's lock, leaving status untouched.
func (s *Service) Release(ctx context.Context, evaluationID id.EvaluationID, reviewer id.ReviewerID) error {
	e, err := s.load(ctx, evaluationID)
	if err != nil {
		return err
	}
	if e.LockedBy == nil {
		return nil
	}
	if err := s.requireHolder(ctx, e, reviewer); err != nil {
		return err
	}
	e.ReleaseLock()
	if err := s.store.Update(ctx, e); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "persist lock release")
	}
	s.metrics.IncrementLockEvent("released")
	return nil
}

// Transfer hands the lock to another reviewer. Only the current holder
// may transfer.
func (s *Service) Transfer(ctx context.Context, evaluationID id.EvaluationID, from, to id.ReviewerID) error {
	e, err := s.load(ctx, evaluationID)
	if err != nil {
		return err
	}
	if e.LockedBy == nil || *e.LockedBy != from {
		return dErrors.New(dErrors.CodeForbidden, "only the current lock holder may transfer the lock")
	}
	e.TransferLock(to, requestcontext.Now(ctx))
	if err := s.store.Update(ctx, e); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "persist lock transfer")
	}
	s.metrics.IncrementLockEvent("transferred")
	s.logger.Info("review lock transferred",
		"evaluation_id", e.ID.String(),
		"from", from.String(),
		"to", to.String())
	return nil
}

// ReclassifyResult reports the outcome of a threshold cascade.
type ReclassifyResult struct {
	ApprovedToRejected int
	RejectedToApproved int
}

// Reclassify re-applies a changed passing threshold to every finalized
// evaluation, in a single transaction. Pending and under-review
// evaluations are untouched.
func (s *Service) Reclassify(ctx context.Context, minPassingScore int) (ReclassifyResult, error) {
	var result ReclassifyResult
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		finalized, err := s.store.List(ctx, StatusApproved, StatusRejected)
		if err != nil {
			return fmt.Errorf("list finalized evaluations: %w", err)
		}
		for _, e := range finalized {
			newStatus := classify(e.Score, minPassingScore)
			if newStatus == e.Status {
				continue
			}
			if e.Status == StatusApproved {
				result.ApprovedToRejected++
			} else {
				result.RejectedToApproved++
			}
			e.Status = newStatus
			if err := s.store.Update(ctx, e); err != nil {
				return fmt.Errorf("persist reclassification: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return ReclassifyResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "reclassify evaluations")
	}
	s.metrics.AddReclassifications("approved_to_rejected", result.ApprovedToRejected)
	s.metrics.AddReclassifications("rejected_to_approved", result.RejectedToApproved)
	s.logger.Info("threshold reclassification completed",
		"min_passing_score", minPassingScore,
		"approved_to_rejected", result.ApprovedToRejected,
		"rejected_to_approved", result.RejectedToApproved)
	return result, nil
}

// EditInput carries an edit to a finalized evaluation.
type EditInput struct {
	Justification   string
	Notes           *string
	Links           []LinkEdit
	MinPassingScore int
}

// EditFinalized applies a post-finalization edit: only the original
// finalizing reviewer may edit, and not while another reviewer holds the
// lock. The evaluation is rescored, re-classified against the threshold,
// and the diff is recorded as a history entry. Returns nil when the edit
// changed nothing.
func (s *Service) EditFinalized(ctx context.Context, evaluationID id.EvaluationID, editor id.ReviewerID, input EditInput) (*HistoryEntry, error) {
	var entry *HistoryEntry
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		e, err := s.load(ctx, evaluationID)
		if err != nil {
			return err
		}
		if !e.Status.Finalized() {
			return dErrors.New(dErrors.CodeConflict, "only finalized evaluations can be edited")
		}
		if e.FinalizedBy == nil || *e.FinalizedBy != editor {
			return dErrors.New(dErrors.CodeForbidden, "only the finalizing reviewer may edit this evaluation")
		}
		now := requestcontext.Now(ctx)
		if e.LockedByOther(editor, s.lockTimeout, now) {
			return dErrors.New(dErrors.CodeLocked, "evaluation is being reviewed by another user")
		}

		links, err := s.store.ListLinks(ctx, e.ID)
		if err != nil {
			return fmt.Errorf("list links: %w", err)
		}
		descriptions, err := s.criterionDescriptions(ctx)
		if err != nil {
			return err
		}
		prior := CaptureState(e, links, descriptions)

		if err := s.applyLinkEdits(ctx, e.ID, input.Links); err != nil {
			return err
		}
		if input.Notes != nil {
			e.Notes = *input.Notes
		}
		score, err := s.associator.Rescore(ctx, e.ID)
		if err != nil {
			return fmt.Errorf("rescore evaluation: %w", err)
		}
		e.Score = score
		e.Status = classify(score, input.MinPassingScore)
		if err := s.store.Update(ctx, e); err != nil {
			return fmt.Errorf("persist edit: %w", err)
		}

		current, err := s.store.ListLinks(ctx, e.ID)
		if err != nil {
			return fmt.Errorf("list links: %w", err)
		}
		entry = RecordEdit(e, prior, current, descriptions, editor, input.Justification, now)
		if entry == nil {
			return nil
		}
		if err := s.store.AddHistory(ctx, entry); err != nil {
			return fmt.Errorf("persist history entry: %w", err)
		}
		return nil
	})
	if err != nil {
		var domainErr *dErrors.Error
		if errors.As(err, &domainErr) {
			return nil, err
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "edit finalized evaluation")
	}
	if entry != nil {
		s.logger.Info("finalized evaluation edited",
			"evaluation_id", evaluationID.String(),
			"editor_id", editor.String(),
			"field_changes", len(entry.FieldChanges),
			"criterion_changes", len(entry.CriterionChanges))
	}
	return entry, nil
}

// History returns the evaluation's audit entries, newest first.
func (s *Service) History(ctx context.Context, evaluationID id.EvaluationID) ([]*HistoryEntry, error) {
	entries, err := s.store.ListHistory(ctx, evaluationID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list history")
	}
	return entries, nil
}

func (s *Service) load(ctx context.Context, evaluationID id.EvaluationID) (*Evaluation, error) {
	e, err := s.store.Get(ctx, evaluationID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "evaluation not found")
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get evaluation")
	}
	return e, nil
}

func (s *Service) requireHolder(ctx context.Context, e *Evaluation, reviewer id.ReviewerID) error {
	if e.LockedBy == nil || *e.LockedBy != reviewer {
		return dErrors.New(dErrors.CodeLocked, "evaluation is locked by another reviewer")
	}
	return nil
}

func (s *Service) applyLinkEdits(ctx context.Context, evaluationID id.EvaluationID, edits []LinkEdit) error {
	if len(edits) == 0 {
		return nil
	}
	links, err := s.store.ListLinks(ctx, evaluationID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "list links")
	}
	byID := make(map[id.LinkID]*CriterionLink, len(links))
	for _, link := range links {
		byID[link.ID] = link
	}
	for _, edit := range edits {
		link, ok := byID[edit.LinkID]
		if !ok {
			return dErrors.New(dErrors.CodeNotFound, "criterion link not found on this evaluation")
		}
		link.Satisfied = edit.Satisfied
		if edit.Note != nil {
			link.Note = *edit.Note
		}
		if edit.DocumentRef != nil {
			link.DocumentRef = *edit.DocumentRef
		}
		if err := s.store.UpdateLink(ctx, link); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "update link")
		}
	}
	return nil
}

func (s *Service) criterionDescriptions(ctx context.Context) (map[id.CriterionID]string, error) {
	all, err := s.criteria.ListCriteria(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list criteria: %w", err)
	}
	descriptions := make(map[id.CriterionID]string, len(all))
	for _, criterion := range all {
		descriptions[criterion.ID] = criterion.Description
	}
	return descriptions, nil
}

func classify(score, minPassingScore int) Status {
	if score >= minPassingScore {
		return StatusApproved
	}
	return StatusRejected
}
