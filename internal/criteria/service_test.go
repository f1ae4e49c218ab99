package criteria

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "amparo/pkg/domain"
	dErrors "amparo/pkg/domain-errors"
)

type cascadeSpy struct {
	created []string
	updated []string
}

func (c *cascadeSpy) OnCriterionCreated(ctx context.Context, criterion *Criterion) (int, error) {
	c.created = append(c.created, criterion.Code)
	return 0, nil
}

func (c *cascadeSpy) OnCriterionUpdated(ctx context.Context, criterion *Criterion) error {
	c.updated = append(c.updated, criterion.Code)
	return nil
}

func newCriteriaService(t *testing.T) (*Service, *cascadeSpy, id.CategoryID) {
	t.Helper()
	spy := &cascadeSpy{}
	svc := NewService(NewMemoryStore(), spy, nil, slog.New(slog.DiscardHandler))

	category, err := svc.CreateCategory(context.Background(), CategoryInput{
		Code: "health", Name: "Health", DisplayOrder: 1, Active: true,
	})
	require.NoError(t, err)
	return svc, spy, category.ID
}

func criterionInput(categoryID id.CategoryID, code string) CriterionInput {
	return CriterionInput{
		CategoryID:            categoryID,
		Code:                  code,
		Description:           "vaccination up to date",
		Active:                true,
		BasePoints:            10,
		Weight:                1.0,
		AppliesToChildless:    true,
		AppliesToMaleHead:     true,
		AppliesToSingleMember: true,
	}
}

func TestCreateCriterion(t *testing.T) {
	t.Run("creates and cascades association", func(t *testing.T) {
		svc, spy, categoryID := newCriteriaService(t)

		criterion, err := svc.CreateCriterion(context.Background(), criterionInput(categoryID, "vaccination"))
		require.NoError(t, err)
		assert.Equal(t, "vaccination", criterion.Code)
		assert.Equal(t, []string{"vaccination"}, spy.created)
		assert.Empty(t, spy.updated)
	})

	t.Run("inactive criterion skips the cascade", func(t *testing.T) {
		svc, spy, categoryID := newCriteriaService(t)
		input := criterionInput(categoryID, "vaccination")
		input.Active = false

		_, err := svc.CreateCriterion(context.Background(), input)
		require.NoError(t, err)
		assert.Empty(t, spy.created)
	})

	t.Run("rejects missing category", func(t *testing.T) {
		svc, _, _ := newCriteriaService(t)
		input := criterionInput(id.NewCategoryID(), "vaccination")

		_, err := svc.CreateCriterion(context.Background(), input)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})

	t.Run("rejects duplicate code", func(t *testing.T) {
		svc, _, categoryID := newCriteriaService(t)
		_, err := svc.CreateCriterion(context.Background(), criterionInput(categoryID, "vaccination"))
		require.NoError(t, err)

		_, err = svc.CreateCriterion(context.Background(), criterionInput(categoryID, "vaccination"))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeConflict))
	})

	t.Run("rejects inverted age bounds", func(t *testing.T) {
		svc, _, categoryID := newCriteriaService(t)
		input := criterionInput(categoryID, "elderly_care")
		lower, upper := 65, 18
		input.MinAge, input.MaxAge = &lower, &upper

		_, err := svc.CreateCriterion(context.Background(), input)
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func TestUpdateCriterion(t *testing.T) {
	t.Run("updates and cascades the rule change", func(t *testing.T) {
		svc, spy, categoryID := newCriteriaService(t)
		criterion, err := svc.CreateCriterion(context.Background(), criterionInput(categoryID, "vaccination"))
		require.NoError(t, err)

		input := criterionInput(categoryID, "vaccination")
		input.BasePoints = 5
		input.Weight = 2.0
		updated, err := svc.UpdateCriterion(context.Background(), criterion.ID, input)
		require.NoError(t, err)
		assert.Equal(t, 10, updated.Points())
		assert.Equal(t, []string{"vaccination"}, spy.updated)
	})

	t.Run("unknown criterion", func(t *testing.T) {
		svc, _, categoryID := newCriteriaService(t)

		_, err := svc.UpdateCriterion(context.Background(), id.NewCriterionID(), criterionInput(categoryID, "vaccination"))
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func TestAuditCategoryPoints(t *testing.T) {
	svc, _, healthID := newCriteriaService(t)

	input := criterionInput(healthID, "vaccination")
	input.BasePoints = 10
	_, err := svc.CreateCriterion(context.Background(), input)
	require.NoError(t, err)

	input = criterionInput(healthID, "prenatal_care")
	input.BasePoints = 15
	_, err = svc.CreateCriterion(context.Background(), input)
	require.NoError(t, err)

	// Inactive criteria stay out of the audit.
	input = criterionInput(healthID, "dental_care")
	input.Active = false
	input.BasePoints = 50
	_, err = svc.CreateCriterion(context.Background(), input)
	require.NoError(t, err)

	audits, err := svc.AuditCategoryPoints(context.Background())
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, 25, audits[0].Total)
	assert.True(t, audits[0].OnTarget)
}
