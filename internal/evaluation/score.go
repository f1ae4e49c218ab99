package evaluation

import (
	"amparo/internal/criteria"
	id "amparo/pkg/domain"
)

// CategoryCap is the maximum effective contribution of any one category.
const CategoryCap = 25

// CategoryScore is one category's raw and capped point totals.
type CategoryScore struct {
	Total     int
	Effective int
}

// DetailedScore aggregates satisfied links into per-category totals. Each
// satisfied criterion contributes its truncated points*weight to its
// category's bucket; every bucket is then capped.
//
// Criteria without a category bucket under the zero CategoryID. Links whose
// criterion is missing from the definitions map are skipped.
func DetailedScore(links []*CriterionLink, definitions map[id.CriterionID]*criteria.Criterion) map[id.CategoryID]CategoryScore {
	totals := make(map[id.CategoryID]int)
	for _, link := range links {
		if !link.Satisfied {
			continue
		}
		criterion, ok := definitions[link.CriterionID]
		if !ok {
			continue
		}
		totals[criterion.CategoryID] += criterion.Points()
	}

	scores := make(map[id.CategoryID]CategoryScore, len(totals))
	for categoryID, total := range totals {
		effective := total
		if effective > CategoryCap {
			effective = CategoryCap
		}
		scores[categoryID] = CategoryScore{Total: total, Effective: effective}
	}
	return scores
}

// CalculateScore sums the capped category totals into the final score.
// Pure function of the link states; persistence is the caller's concern.
func CalculateScore(links []*CriterionLink, definitions map[id.CriterionID]*criteria.Criterion) int {
	score := 0
	for _, categoryScore := range DetailedScore(links, definitions) {
		score += categoryScore.Effective
	}
	return score
}
