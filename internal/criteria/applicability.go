package criteria

import (
	"time"

	"amparo/internal/household"
)

// Applicability reasons recorded on criterion links when a rule is skipped.
const (
	ReasonNoMinors      = "household has no minors"
	ReasonMaleHead      = "head of household is male"
	ReasonSingleMember  = "single-member household"
	ReasonNoMemberMatch = "no member meets requirements"
)

// CheckApplicability decides whether a criterion binds a household. Pure
// and deterministic given the household state and the reference date.
//
// The toggles short-circuit in order; the advanced member filters run only
// when every toggle passes.
func CheckApplicability(c *Criterion, h *household.Household, on time.Time) (bool, string) {
	if !c.AppliesToChildless && !h.HasMinors(on) {
		return false, ReasonNoMinors
	}
	if !c.AppliesToMaleHead && h.MaleHead() {
		return false, ReasonMaleHead
	}
	if !c.AppliesToSingleMember && h.SingleMember() {
		return false, ReasonSingleMember
	}
	if c.HasMemberFilters() {
		for _, member := range h.Members {
			if memberMatches(c, member, on) {
				return true, ""
			}
		}
		return false, ReasonNoMemberMatch
	}
	return true, ""
}

// memberMatches reports whether one member satisfies all advanced filters
// at once. Members without a birth date never satisfy an age bound.
func memberMatches(c *Criterion, m *household.Member, on time.Time) bool {
	if c.RequiredSex != "" && m.Sex != c.RequiredSex {
		return false
	}
	if c.AllowedKinship != "" && !kinshipAllowed(c.AllowedKinshipCodes(), m.Kinship) {
		return false
	}
	if c.MinAge != nil || c.MaxAge != nil {
		age, known := m.AgeOn(on)
		if !known {
			return false
		}
		if c.MinAge != nil && age < *c.MinAge {
			return false
		}
		if c.MaxAge != nil && age > *c.MaxAge {
			return false
		}
	}
	return true
}

func kinshipAllowed(allowed []household.Kinship, kinship household.Kinship) bool {
	for _, code := range allowed {
		if code == kinship {
			return true
		}
	}
	return false
}
