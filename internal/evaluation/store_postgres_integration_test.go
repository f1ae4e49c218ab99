//go:build integration

package evaluation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"amparo/internal/criteria"
	"amparo/internal/evaluation"
	"amparo/internal/household"
	id "amparo/pkg/domain"
	"amparo/pkg/platform/sentinel"
	"amparo/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres   *containers.PostgresContainer
	store      *evaluation.PostgresStore
	households *household.PostgresStore
	criteria   *criteria.PostgresStore
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
	s.store = evaluation.NewPostgres(s.postgres.DB)
	s.households = household.NewPostgres(s.postgres.DB)
	s.criteria = criteria.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	err := s.postgres.TruncateTables(ctx,
		"evaluation_history", "criterion_links", "evaluations",
		"criteria", "categories",
		"household_members", "households")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) createHousehold(code string) *household.Household {
	h := &household.Household{
		ID:        id.NewHouseholdID(),
		Code:      code,
		UpdatedOn: time.Now(),
	}
	s.Require().NoError(s.households.Create(context.Background(), h))
	return h
}

func (s *PostgresStoreSuite) createCriterion(code string) *criteria.Criterion {
	ctx := context.Background()
	category := &criteria.Category{
		ID:     id.NewCategoryID(),
		Code:   "CAT-" + code,
		Name:   "Category " + code,
		Active: true,
	}
	s.Require().NoError(s.criteria.CreateCategory(ctx, category))

	c := &criteria.Criterion{
		ID:          id.NewCriterionID(),
		CategoryID:  category.ID,
		Code:        code,
		Description: "Criterion " + code,
		Active:      true,
		BasePoints:  5,
		Weight:      1.0,
	}
	s.Require().NoError(s.criteria.CreateCriterion(ctx, c))
	return c
}

func (s *PostgresStoreSuite) TestCreateAndLockRoundTrip() {
	ctx := context.Background()
	h := s.createHousehold("HH-001")

	e := &evaluation.Evaluation{
		ID:          id.NewEvaluationID(),
		HouseholdID: h.ID,
		Status:      evaluation.StatusPending,
	}
	s.Require().NoError(s.store.Create(ctx, e))

	reviewer := id.NewReviewerID()
	now := time.Now().Truncate(time.Second)
	e.Status = evaluation.StatusUnderReview
	e.LockedBy = &reviewer
	e.LockStartedAt = &now
	s.Require().NoError(s.store.Update(ctx, e))

	got, err := s.store.Get(ctx, e.ID)
	s.Require().NoError(err)
	s.Equal(evaluation.StatusUnderReview, got.Status)
	s.Require().NotNil(got.LockedBy)
	s.Equal(reviewer, *got.LockedBy)
	s.Require().NotNil(got.LockStartedAt)
	s.WithinDuration(now, *got.LockStartedAt, time.Second)
}

func (s *PostgresStoreSuite) TestGetByHouseholdReturnsLatest() {
	ctx := context.Background()
	h := s.createHousehold("HH-001")

	older := &evaluation.Evaluation{ID: id.NewEvaluationID(), HouseholdID: h.ID, Status: evaluation.StatusRejected}
	s.Require().NoError(s.store.Create(ctx, older))
	time.Sleep(10 * time.Millisecond)
	newer := &evaluation.Evaluation{ID: id.NewEvaluationID(), HouseholdID: h.ID, Status: evaluation.StatusPending}
	s.Require().NoError(s.store.Create(ctx, newer))

	got, err := s.store.GetByHousehold(ctx, h.ID)
	s.Require().NoError(err)
	s.Equal(newer.ID, got.ID)
}

func (s *PostgresStoreSuite) TestListFiltersByStatus() {
	ctx := context.Background()
	h1 := s.createHousehold("HH-001")
	h2 := s.createHousehold("HH-002")
	h3 := s.createHousehold("HH-003")

	s.Require().NoError(s.store.Create(ctx, &evaluation.Evaluation{ID: id.NewEvaluationID(), HouseholdID: h1.ID, Status: evaluation.StatusApproved}))
	s.Require().NoError(s.store.Create(ctx, &evaluation.Evaluation{ID: id.NewEvaluationID(), HouseholdID: h2.ID, Status: evaluation.StatusRejected}))
	s.Require().NoError(s.store.Create(ctx, &evaluation.Evaluation{ID: id.NewEvaluationID(), HouseholdID: h3.ID, Status: evaluation.StatusPending}))

	finalized, err := s.store.List(ctx, evaluation.StatusApproved, evaluation.StatusRejected)
	s.Require().NoError(err)
	s.Len(finalized, 2)

	all, err := s.store.List(ctx)
	s.Require().NoError(err)
	s.Len(all, 3)
}

func (s *PostgresStoreSuite) TestDuplicateLinkConflicts() {
	ctx := context.Background()
	h := s.createHousehold("HH-001")
	c := s.createCriterion("CRIT-01")

	e := &evaluation.Evaluation{ID: id.NewEvaluationID(), HouseholdID: h.ID, Status: evaluation.StatusPending}
	s.Require().NoError(s.store.Create(ctx, e))

	link := &evaluation.CriterionLink{
		ID:           id.NewLinkID(),
		EvaluationID: e.ID,
		CriterionID:  c.ID,
		Applicable:   true,
	}
	s.Require().NoError(s.store.CreateLink(ctx, link))

	dup := &evaluation.CriterionLink{
		ID:           id.NewLinkID(),
		EvaluationID: e.ID,
		CriterionID:  c.ID,
		Applicable:   true,
	}
	s.ErrorIs(s.store.CreateLink(ctx, dup), sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestLinkToMissingEvaluation() {
	ctx := context.Background()
	c := s.createCriterion("CRIT-01")

	err := s.store.CreateLink(ctx, &evaluation.CriterionLink{
		ID:           id.NewLinkID(),
		EvaluationID: id.NewEvaluationID(),
		CriterionID:  c.ID,
	})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestHistoryRoundTripNewestFirst() {
	ctx := context.Background()
	h := s.createHousehold("HH-001")
	c := s.createCriterion("CRIT-01")

	e := &evaluation.Evaluation{ID: id.NewEvaluationID(), HouseholdID: h.ID, Status: evaluation.StatusApproved}
	s.Require().NoError(s.store.Create(ctx, e))

	editor := id.NewReviewerID()
	first := &evaluation.HistoryEntry{
		ID:            id.NewHistoryID(),
		EvaluationID:  e.ID,
		EditedBy:      editor,
		Justification: "document arrived late",
		FieldChanges: []evaluation.FieldChange{
			{Field: "score", Before: "10", After: "15"},
		},
		CriterionChanges: []evaluation.CriterionChange{
			{CriterionID: c.ID, Description: "Criterion CRIT-01", Before: false, After: true},
		},
		CreatedAt: time.Now().Add(-time.Minute),
	}
	s.Require().NoError(s.store.AddHistory(ctx, first))

	second := &evaluation.HistoryEntry{
		ID:            id.NewHistoryID(),
		EvaluationID:  e.ID,
		EditedBy:      editor,
		Justification: "typo in notes",
		FieldChanges: []evaluation.FieldChange{
			{Field: "notes", Before: "old", After: "new"},
		},
		CreatedAt: time.Now(),
	}
	s.Require().NoError(s.store.AddHistory(ctx, second))

	entries, err := s.store.ListHistory(ctx, e.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 2)
	s.Equal("typo in notes", entries[0].Justification)
	s.Equal("document arrived late", entries[1].Justification)
	s.Require().Len(entries[1].CriterionChanges, 1)
	s.Equal(c.ID, entries[1].CriterionChanges[0].CriterionID)
	s.True(entries[1].CriterionChanges[0].After)
}

func (s *PostgresStoreSuite) TestUpdateScoreOnly() {
	ctx := context.Background()
	h := s.createHousehold("HH-001")

	e := &evaluation.Evaluation{ID: id.NewEvaluationID(), HouseholdID: h.ID, Status: evaluation.StatusUnderReview}
	s.Require().NoError(s.store.Create(ctx, e))

	s.Require().NoError(s.store.UpdateScore(ctx, e.ID, 42))

	got, err := s.store.Get(ctx, e.ID)
	s.Require().NoError(err)
	s.Equal(42, got.Score)
	s.Equal(evaluation.StatusUnderReview, got.Status)
}
