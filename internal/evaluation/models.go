// Package evaluation implements the eligibility review workflow: criterion
// association, score aggregation, the time-boxed review lock, and the audit
// history of finalized edits.
package evaluation

import (
	"time"

	id "amparo/pkg/domain"
)

// Status is the review workflow state of an evaluation.
type Status string

const (
	StatusPending     Status = "pending"
	StatusUnderReview Status = "under_review"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
)

// Finalized reports whether the status is a terminal review outcome.
func (s Status) Finalized() bool {
	return s == StatusApproved || s == StatusRejected
}

// Evaluation is one household's pass through the review workflow. A
// household has one live evaluation; re-imports may create historical
// multiples.
type Evaluation struct {
	ID          id.EvaluationID
	HouseholdID id.HouseholdID
	Status      Status
	Score       int
	Notes       string

	// Advisory time-boxed lock. No row-level lock backs it; two reviewers
	// racing past an expired timeout can both take it (last write wins).
	LockedBy      *id.ReviewerID
	LockStartedAt *time.Time

	FinalizedAt *time.Time
	FinalizedBy *id.ReviewerID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsAvailable reports whether a reviewer may enter review: the evaluation
// is unlocked, locked by the reviewer themself, or the lock has aged past
// the timeout.
func (e *Evaluation) IsAvailable(reviewer id.ReviewerID, timeout time.Duration, now time.Time) bool {
	if e.LockedBy == nil {
		return true
	}
	if *e.LockedBy == reviewer {
		return true
	}
	if e.LockStartedAt != nil && now.Sub(*e.LockStartedAt) > timeout {
		return true
	}
	return false
}

// StartReview takes the lock and moves the evaluation under review. It
// does not re-check availability; callers must check IsAvailable first.
// That omission is what lets a reviewer steal an expired lock.
func (e *Evaluation) StartReview(reviewer id.ReviewerID, now time.Time) {
	e.LockedBy = &reviewer
	e.LockStartedAt = &now
	e.Status = StatusUnderReview
}

// ReleaseLock clears the lock fields and leaves status untouched.
func (e *Evaluation) ReleaseLock() {
	e.LockedBy = nil
	e.LockStartedAt = nil
}

// TransferLock hands the lock to another reviewer and restarts the clock.
// Only the current holder may transfer; callers enforce that.
func (e *Evaluation) TransferLock(newReviewer id.ReviewerID, now time.Time) {
	e.LockedBy = &newReviewer
	e.LockStartedAt = &now
}

// LockedByOther reports whether a different reviewer holds a live lock.
func (e *Evaluation) LockedByOther(reviewer id.ReviewerID, timeout time.Duration, now time.Time) bool {
	return !e.IsAvailable(reviewer, timeout, now)
}

// CriterionLink records one criterion's applicability and satisfaction for
// one evaluation. At most one link exists per (evaluation, criterion).
//
// A criterion that does not apply to the household gets full credit:
// applicable=false always pairs with satisfied=true after association or a
// rule-change cascade.
type CriterionLink struct {
	ID           id.LinkID
	EvaluationID id.EvaluationID
	CriterionID  id.CriterionID
	Satisfied    bool
	Applicable   bool
	// Note carries the applicability reason, or reviewer commentary.
	Note string
	// DocumentRef optionally points at a supporting document in external
	// storage.
	DocumentRef string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
