// Package domain defines typed identifiers shared across features.
//
// Every entity id is a distinct UUID-backed type so the compiler rejects
// cross-entity assignment (passing a CriterionID where an EvaluationID is
// expected). Parse* constructors enforce the trust-boundary invariant:
// ids must be valid, non-empty, non-nil UUIDs.
package domain

import (
	"github.com/google/uuid"

	dErrors "amparo/pkg/domain-errors"
)

type (
	// ReviewerID identifies the human reviewer acting on an evaluation.
	ReviewerID uuid.UUID
	// HouseholdID identifies a household (família) record.
	HouseholdID uuid.UUID
	// MemberID identifies a household member.
	MemberID uuid.UUID
	// CategoryID identifies a criteria category.
	CategoryID uuid.UUID
	// CriterionID identifies an eligibility criterion.
	CriterionID uuid.UUID
	// EvaluationID identifies a household's evaluation record.
	EvaluationID uuid.UUID
	// LinkID identifies an evaluation-criterion link record.
	LinkID uuid.UUID
	// HistoryID identifies an evaluation history entry.
	HistoryID uuid.UUID
)

func (id ReviewerID) String() string   { return uuid.UUID(id).String() }
func (id HouseholdID) String() string  { return uuid.UUID(id).String() }
func (id MemberID) String() string     { return uuid.UUID(id).String() }
func (id CategoryID) String() string   { return uuid.UUID(id).String() }
func (id CriterionID) String() string  { return uuid.UUID(id).String() }
func (id EvaluationID) String() string { return uuid.UUID(id).String() }
func (id LinkID) String() string       { return uuid.UUID(id).String() }
func (id HistoryID) String() string    { return uuid.UUID(id).String() }

// IsZero reports whether the id is the nil UUID.
func (id ReviewerID) IsZero() bool   { return uuid.UUID(id) == uuid.Nil }
func (id HouseholdID) IsZero() bool  { return uuid.UUID(id) == uuid.Nil }
func (id CategoryID) IsZero() bool   { return uuid.UUID(id) == uuid.Nil }
func (id CriterionID) IsZero() bool  { return uuid.UUID(id) == uuid.Nil }
func (id EvaluationID) IsZero() bool { return uuid.UUID(id) == uuid.Nil }

// NewReviewerID returns a fresh random reviewer id.
func NewReviewerID() ReviewerID { return ReviewerID(uuid.New()) }

// NewHouseholdID returns a fresh random household id.
func NewHouseholdID() HouseholdID { return HouseholdID(uuid.New()) }

// NewMemberID returns a fresh random member id.
func NewMemberID() MemberID { return MemberID(uuid.New()) }

// NewCategoryID returns a fresh random category id.
func NewCategoryID() CategoryID { return CategoryID(uuid.New()) }

// NewCriterionID returns a fresh random criterion id.
func NewCriterionID() CriterionID { return CriterionID(uuid.New()) }

// NewEvaluationID returns a fresh random evaluation id.
func NewEvaluationID() EvaluationID { return EvaluationID(uuid.New()) }

// NewLinkID returns a fresh random criterion-link id.
func NewLinkID() LinkID { return LinkID(uuid.New()) }

// NewHistoryID returns a fresh random history-entry id.
func NewHistoryID() HistoryID { return HistoryID(uuid.New()) }

func parseUUID(raw, kind string) (uuid.UUID, error) {
	if raw == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id must not be empty")
	}
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id is not a valid UUID")
	}
	if parsed == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, kind+" id must not be the nil UUID")
	}
	return parsed, nil
}

// ParseReviewerID parses and validates a reviewer id.
func ParseReviewerID(raw string) (ReviewerID, error) {
	parsed, err := parseUUID(raw, "reviewer")
	return ReviewerID(parsed), err
}

// ParseHouseholdID parses and validates a household id.
func ParseHouseholdID(raw string) (HouseholdID, error) {
	parsed, err := parseUUID(raw, "household")
	return HouseholdID(parsed), err
}

// ParseMemberID parses and validates a member id.
func ParseMemberID(raw string) (MemberID, error) {
	parsed, err := parseUUID(raw, "member")
	return MemberID(parsed), err
}

// ParseCategoryID parses and validates a category id.
func ParseCategoryID(raw string) (CategoryID, error) {
	parsed, err := parseUUID(raw, "category")
	return CategoryID(parsed), err
}

// ParseCriterionID parses and validates a criterion id.
func ParseCriterionID(raw string) (CriterionID, error) {
	parsed, err := parseUUID(raw, "criterion")
	return CriterionID(parsed), err
}

// ParseEvaluationID parses and validates an evaluation id.
func ParseEvaluationID(raw string) (EvaluationID, error) {
	parsed, err := parseUUID(raw, "evaluation")
	return EvaluationID(parsed), err
}

// ParseLinkID parses and validates a criterion-link id.
func ParseLinkID(raw string) (LinkID, error) {
	parsed, err := parseUUID(raw, "link")
	return LinkID(parsed), err
}
