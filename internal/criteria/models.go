// Package criteria holds the registry of categorized eligibility rules and
// the applicability evaluator that decides which rules bind a household.
package criteria

import (
	"math"
	"strconv"
	"strings"
	"time"

	"amparo/internal/household"
	id "amparo/pkg/domain"
)

// Category groups criteria for display and for the per-category score cap.
type Category struct {
	ID           id.CategoryID
	Code         string
	Name         string
	Description  string
	DisplayOrder int
	// Icon is a hint for management UIs; the engine ignores it.
	Icon      string
	Active    bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Criterion is a scored, conditionally-applicable eligibility rule.
//
// The three applies-to toggles default to true; a false toggle skips the
// criterion for households matching that condition. The advanced member
// filters, when any is set, require at least one member matching all of
// them simultaneously.
type Criterion struct {
	ID          id.CriterionID
	CategoryID  id.CategoryID
	Code        string
	Description string
	Active      bool
	BasePoints  int
	Weight      float64

	AppliesToChildless    bool
	AppliesToMaleHead     bool
	AppliesToSingleMember bool

	MinAge      *int
	MaxAge      *int
	RequiredSex household.Sex
	// AllowedKinship is a comma-separated list of kinship codes, e.g. "1,2"
	// for head and spouse. Empty means no kinship filter.
	AllowedKinship string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Points returns the criterion's contribution when satisfied: base points
// times weight, truncated per criterion.
func (c *Criterion) Points() int {
	return int(math.Floor(float64(c.BasePoints) * c.Weight))
}

// HasMemberFilters reports whether any advanced member filter is set.
func (c *Criterion) HasMemberFilters() bool {
	return c.MinAge != nil || c.MaxAge != nil || c.RequiredSex != "" || c.AllowedKinship != ""
}

// AllowedKinshipCodes parses the comma-separated kinship list. Malformed
// entries are skipped silently; they can never match a member.
func (c *Criterion) AllowedKinshipCodes() []household.Kinship {
	if c.AllowedKinship == "" {
		return nil
	}
	parts := strings.Split(c.AllowedKinship, ",")
	codes := make([]household.Kinship, 0, len(parts))
	for _, part := range parts {
		code, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		codes = append(codes, household.Kinship(code))
	}
	return codes
}
