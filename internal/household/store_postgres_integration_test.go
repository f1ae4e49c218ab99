//go:build integration

package household_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"amparo/internal/household"
	id "amparo/pkg/domain"
	"amparo/pkg/platform/sentinel"
	"amparo/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *household.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = household.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx, "household_members", "households")
	s.Require().NoError(err)
}

func newTestHousehold(code string) *household.Household {
	h := &household.Household{
		ID:              id.NewHouseholdID(),
		Code:            code,
		UpdatedOn:       time.Now().Truncate(time.Second),
		AvgIncomeCents:  120_00,
		DeclaredMembers: 2,
		Neighborhood:    "CENTRO",
	}
	h.Members = []*household.Member{
		{
			ID:          id.NewMemberID(),
			HouseholdID: h.ID,
			Name:        "Maria",
			RegistryID:  code + "-1",
			Sex:         household.SexFemale,
			Kinship:     household.KinshipHead,
		},
		{
			ID:          id.NewMemberID(),
			HouseholdID: h.ID,
			Name:        "Ana",
			RegistryID:  code + "-2",
			Sex:         household.SexFemale,
			Kinship:     household.KinshipChild,
		},
	}
	return h
}

func (s *PostgresStoreSuite) TestCreateAndGetRoundTrip() {
	ctx := context.Background()
	h := newTestHousehold("HH-001")

	s.Require().NoError(s.store.Create(ctx, h))

	got, err := s.store.Get(ctx, h.ID)
	s.Require().NoError(err)
	s.Equal(h.Code, got.Code)
	s.Equal(h.Neighborhood, got.Neighborhood)
	s.Len(got.Members, 2)
	s.Equal(household.KinshipHead, got.Members[0].Kinship)

	byCode, err := s.store.GetByCode(ctx, "HH-001")
	s.Require().NoError(err)
	s.Equal(h.ID, byCode.ID)
}

func (s *PostgresStoreSuite) TestDuplicateCodeConflicts() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, newTestHousehold("HH-001")))

	err := s.store.Create(ctx, newTestHousehold("HH-001"))
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestDuplicateRegistryIDWithinHouseholdConflicts() {
	ctx := context.Background()
	h := newTestHousehold("HH-001")
	s.Require().NoError(s.store.Create(ctx, h))

	err := s.store.AddMember(ctx, &household.Member{
		ID:          id.NewMemberID(),
		HouseholdID: h.ID,
		Name:        "Clone",
		RegistryID:  "HH-001-1",
		Sex:         household.SexMale,
		Kinship:     household.KinshipSibling,
	})
	s.ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestAddMemberToMissingHousehold() {
	ctx := context.Background()
	err := s.store.AddMember(ctx, &household.Member{
		ID:          id.NewMemberID(),
		HouseholdID: id.NewHouseholdID(),
		Name:        "Ghost",
		RegistryID:  "X-1",
		Sex:         household.SexMale,
		Kinship:     household.KinshipHead,
	})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestDeleteCascadesMembers() {
	ctx := context.Background()
	h := newTestHousehold("HH-001")
	s.Require().NoError(s.store.Create(ctx, h))

	s.Require().NoError(s.store.Delete(ctx, h.ID))

	_, err := s.store.Get(ctx, h.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	var members int
	err = s.postgres.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM household_members").Scan(&members)
	s.Require().NoError(err)
	s.Zero(members)
}

func (s *PostgresStoreSuite) TestListLoadsMembers() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, newTestHousehold("HH-001")))
	s.Require().NoError(s.store.Create(ctx, newTestHousehold("HH-002")))

	all, err := s.store.List(ctx)
	s.Require().NoError(err)
	s.Len(all, 2)
	s.Equal("HH-001", all[0].Code)
	s.Len(all[0].Members, 2)
}
