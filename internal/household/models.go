// Package household models the family units under evaluation and the
// derived predicates criteria applicability depends on.
package household

import (
	"time"

	id "amparo/pkg/domain"
)

// Sex codes follow the census extract encoding.
type Sex string

const (
	SexMale   Sex = "1"
	SexFemale Sex = "2"
)

// Kinship encodes a member's relationship to the head of household,
// following the census extract code table.
type Kinship int

const (
	KinshipHead         Kinship = 1
	KinshipSpouse       Kinship = 2
	KinshipChild        Kinship = 3
	KinshipStepchild    Kinship = 4
	KinshipGrandchild   Kinship = 5
	KinshipParent       Kinship = 6
	KinshipParentInLaw  Kinship = 7
	KinshipSibling      Kinship = 8
	KinshipChildInLaw   Kinship = 9
	KinshipOtherRelated Kinship = 10
	KinshipNonRelative  Kinship = 11
)

// Valid reports whether k is one of the known kinship codes.
func (k Kinship) Valid() bool {
	return k >= KinshipHead && k <= KinshipNonRelative
}

// Member is a person belonging to exactly one household.
type Member struct {
	ID          id.MemberID
	HouseholdID id.HouseholdID
	Name        string
	// RegistryID is the social-registry identifier (NIS), unique within
	// the household.
	RegistryID string
	// TaxID is the national tax id (CPF); optional.
	TaxID     string
	BirthDate *time.Time
	Sex       Sex
	Kinship   Kinship
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AgeOn returns the member's age in whole years at the given date, with
// month/day boundary truncation (a birthday later in the year has not
// happened yet). Returns false when the birth date is unknown.
func (m *Member) AgeOn(t time.Time) (int, bool) {
	if m.BirthDate == nil {
		return 0, false
	}
	birth := *m.BirthDate
	age := t.Year() - birth.Year()
	if t.Month() < birth.Month() || (t.Month() == birth.Month() && t.Day() < birth.Day()) {
		age--
	}
	return age, true
}

// Household is a family unit identified by a business code, the unit of
// eligibility evaluation. It owns its members; deleting a household
// cascades to them.
type Household struct {
	ID   id.HouseholdID
	Code string
	// UpdatedOn is the registration-update date from the census extract,
	// distinct from the row timestamp.
	UpdatedOn time.Time
	// Income figures are stored in centavos.
	AvgIncomeCents   int64
	TotalIncomeCents int64
	Street           string
	StreetNumber     string
	Neighborhood     string
	PostalCode       string
	// DeclaredMembers is the member count declared by the extract. It is
	// advisory: it should match len(Members) but is not enforced.
	DeclaredMembers int
	SourceBatch     string
	Members         []*Member
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasMinors reports whether any member is under 18 on the given date.
// Members without a birth date are excluded.
func (h *Household) HasMinors(on time.Time) bool {
	for _, member := range h.Members {
		if age, ok := member.AgeOn(on); ok && age < 18 {
			return true
		}
	}
	return false
}

// HeadOfHousehold returns the member holding the head role, or nil.
func (h *Household) HeadOfHousehold() *Member {
	for _, member := range h.Members {
		if member.Kinship == KinshipHead {
			return member
		}
	}
	return nil
}

// MaleHead reports whether the head of household is male. Households
// without a head are not male-headed.
func (h *Household) MaleHead() bool {
	head := h.HeadOfHousehold()
	return head != nil && head.Sex == SexMale
}

// SingleMember reports whether the household has exactly one person, by
// declared count or by collection size, whichever source says so.
func (h *Household) SingleMember() bool {
	return h.DeclaredMembers == 1 || len(h.Members) == 1
}
