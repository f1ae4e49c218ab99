package evaluation

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"amparo/internal/criteria"
	id "amparo/pkg/domain"
)

func scoringFixture() (map[id.CriterionID]*criteria.Criterion, id.CategoryID) {
	categoryID := id.NewCategoryID()
	first := &criteria.Criterion{ID: id.NewCriterionID(), CategoryID: categoryID, BasePoints: 5, Weight: 2.0}
	second := &criteria.Criterion{ID: id.NewCriterionID(), CategoryID: categoryID, BasePoints: 10, Weight: 1.0}
	return map[id.CriterionID]*criteria.Criterion{
		first.ID:  first,
		second.ID: second,
	}, categoryID
}

func linksFor(definitions map[id.CriterionID]*criteria.Criterion, satisfied bool) []*CriterionLink {
	links := make([]*CriterionLink, 0, len(definitions))
	for criterionID := range definitions {
		links = append(links, &CriterionLink{
			ID:          id.NewLinkID(),
			CriterionID: criterionID,
			Satisfied:   satisfied,
			Applicable:  true,
		})
	}
	return links
}

func TestCalculateScore(t *testing.T) {
	t.Run("weighted points accumulate under the cap", func(t *testing.T) {
		definitions, categoryID := scoringFixture()
		links := linksFor(definitions, true)

		assert.Equal(t, 20, CalculateScore(links, definitions))

		detailed := DetailedScore(links, definitions)
		assert.Equal(t, CategoryScore{Total: 20, Effective: 20}, detailed[categoryID])
	})

	t.Run("category total is capped at 25", func(t *testing.T) {
		categoryID := id.NewCategoryID()
		definitions := make(map[id.CriterionID]*criteria.Criterion)
		for range 4 {
			c := &criteria.Criterion{ID: id.NewCriterionID(), CategoryID: categoryID, BasePoints: 10, Weight: 1.0}
			definitions[c.ID] = c
		}
		links := linksFor(definitions, true)

		detailed := DetailedScore(links, definitions)
		assert.Equal(t, CategoryScore{Total: 40, Effective: 25}, detailed[categoryID])
		assert.Equal(t, 25, CalculateScore(links, definitions))
	})

	t.Run("caps apply per category and score sums effectives", func(t *testing.T) {
		firstCategory, secondCategory := id.NewCategoryID(), id.NewCategoryID()
		definitions := map[id.CriterionID]*criteria.Criterion{}
		for _, categoryID := range []id.CategoryID{firstCategory, secondCategory} {
			for range 3 {
				c := &criteria.Criterion{ID: id.NewCriterionID(), CategoryID: categoryID, BasePoints: 10, Weight: 1.0}
				definitions[c.ID] = c
			}
		}
		links := linksFor(definitions, true)

		detailed := DetailedScore(links, definitions)
		sum := 0
		for _, categoryScore := range detailed {
			assert.LessOrEqual(t, categoryScore.Effective, CategoryCap)
			sum += categoryScore.Effective
		}
		assert.Equal(t, sum, CalculateScore(links, definitions))
		assert.Equal(t, 50, sum)
	})

	t.Run("unsatisfied links contribute nothing", func(t *testing.T) {
		definitions, _ := scoringFixture()
		links := linksFor(definitions, false)
		assert.Equal(t, 0, CalculateScore(links, definitions))
		assert.Empty(t, DetailedScore(links, definitions))
	})

	t.Run("per-criterion truncation not fractional summing", func(t *testing.T) {
		categoryID := id.NewCategoryID()
		first := &criteria.Criterion{ID: id.NewCriterionID(), CategoryID: categoryID, BasePoints: 3, Weight: 0.5}
		second := &criteria.Criterion{ID: id.NewCriterionID(), CategoryID: categoryID, BasePoints: 3, Weight: 0.5}
		definitions := map[id.CriterionID]*criteria.Criterion{first.ID: first, second.ID: second}
		links := linksFor(definitions, true)

		// 1.5 + 1.5 truncates to 1 + 1, not to 3.
		assert.Equal(t, 2, CalculateScore(links, definitions))
	})

	t.Run("category-less criteria bucket together", func(t *testing.T) {
		definitions := map[id.CriterionID]*criteria.Criterion{}
		for range 4 {
			c := &criteria.Criterion{ID: id.NewCriterionID(), BasePoints: 10, Weight: 1.0}
			definitions[c.ID] = c
		}
		links := linksFor(definitions, true)

		detailed := DetailedScore(links, definitions)
		assert.Len(t, detailed, 1)
		assert.Equal(t, 25, CalculateScore(links, definitions))
	})
}
