// Package stats computes household composition aggregates for the
// reporting dashboard: approval breakdowns for solo mothers, single
// member households, childless couples, child-count buckets and
// neighborhoods. Results are cached with a short TTL since the
// underlying scan touches every household.
package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"time"

	"amparo/internal/evaluation"
	"amparo/internal/household"
	id "amparo/pkg/domain"
	dErrors "amparo/pkg/domain-errors"
)

// neighborhoodFallback labels households with no neighborhood on record.
const neighborhoodFallback = "unspecified"

// childCountBuckets are the reported family-size categories.
var childCountBuckets = []string{"2", "3", "4", "5+"}

// StatusBreakdown is the standard per-group result: how many households
// fall in the group and how their evaluations ended.
type StatusBreakdown struct {
	Total        int     `json:"total"`
	Approved     int     `json:"approved"`
	Rejected     int     `json:"rejected"`
	ApprovalRate float64 `json:"approval_rate"`
}

// Overview is the full dashboard payload.
type Overview struct {
	Households       int                        `json:"households"`
	Members          int                        `json:"members"`
	ByStatus         map[string]int             `json:"by_status"`
	SoloMothers      StatusBreakdown            `json:"solo_mothers"`
	SingleMember     StatusBreakdown            `json:"single_member"`
	ChildlessCouples StatusBreakdown            `json:"childless_couples"`
	ByChildCount     map[string]StatusBreakdown `json:"by_child_count"`
	ByNeighborhood   map[string]StatusBreakdown `json:"by_neighborhood"`
	GeneratedAt      time.Time                  `json:"generated_at"`
}

// Filters narrows the aggregate scope.
type Filters struct {
	// Neighborhood restricts the scan to one neighborhood when set.
	Neighborhood string
	// MinPerNeighborhood drops neighborhoods with fewer households from
	// the per-neighborhood breakdown.
	MinPerNeighborhood int
}

// HouseholdLister is the household read surface the aggregator needs.
type HouseholdLister interface {
	List(ctx context.Context) ([]*household.Household, error)
}

// EvaluationLister is the evaluation read surface the aggregator needs.
type EvaluationLister interface {
	List(ctx context.Context, statuses ...evaluation.Status) ([]*evaluation.Evaluation, error)
}

// Service computes overview aggregates with cache-aside semantics.
type Service struct {
	households  HouseholdLister
	evaluations EvaluationLister
	cache       Cache
	ttl         time.Duration
	logger      *slog.Logger
}

func NewService(households HouseholdLister, evaluations EvaluationLister, cache Cache, ttl time.Duration, logger *slog.Logger) *Service {
	return &Service{
		households:  households,
		evaluations: evaluations,
		cache:       cache,
		ttl:         ttl,
		logger:      logger,
	}
}

// Overview returns the dashboard aggregates, served from cache when a
// fresh copy exists. Staleness is bounded by the cache TTL only; the
// dashboard tolerates a few minutes of lag.
func (s *Service) Overview(ctx context.Context, filters Filters) (*Overview, error) {
	key := cacheKey(filters)
	if s.cache != nil {
		payload, ok, err := s.cache.Get(ctx, key)
		if err != nil {
			s.logger.WarnContext(ctx, "stats cache read failed", "key", key, "error", err.Error())
		} else if ok {
			var cached Overview
			if err := json.Unmarshal(payload, &cached); err == nil {
				return &cached, nil
			}
			s.logger.WarnContext(ctx, "stats cache entry corrupt", "key", key)
		}
	}

	overview, err := s.compute(ctx, filters)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		payload, err := json.Marshal(overview)
		if err == nil {
			if err := s.cache.Set(ctx, key, payload, s.ttl); err != nil {
				s.logger.WarnContext(ctx, "stats cache write failed", "key", key, "error", err.Error())
			}
		}
	}
	return overview, nil
}

func (s *Service) compute(ctx context.Context, filters Filters) (*Overview, error) {
	households, err := s.households.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list households for stats")
	}
	evaluations, err := s.evaluations.List(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list evaluations for stats")
	}

	if filters.Neighborhood != "" {
		filtered := households[:0:0]
		for _, h := range households {
			if h.Neighborhood == filters.Neighborhood {
				filtered = append(filtered, h)
			}
		}
		households = filtered
	}

	statusByHousehold := make(map[id.HouseholdID]evaluation.Status, len(evaluations))
	byStatus := map[string]int{
		string(evaluation.StatusPending):     0,
		string(evaluation.StatusUnderReview): 0,
		string(evaluation.StatusApproved):    0,
		string(evaluation.StatusRejected):    0,
	}
	for _, e := range evaluations {
		statusByHousehold[e.HouseholdID] = e.Status
	}

	overview := &Overview{
		Households:     len(households),
		ByStatus:       byStatus,
		ByChildCount:   make(map[string]StatusBreakdown, len(childCountBuckets)),
		ByNeighborhood: make(map[string]StatusBreakdown),
		GeneratedAt:    time.Now(),
	}
	for _, bucket := range childCountBuckets {
		overview.ByChildCount[bucket] = StatusBreakdown{}
	}

	var soloMothers, singleMember, childlessCouples group
	childCounts := make(map[string]*group, len(childCountBuckets))
	for _, bucket := range childCountBuckets {
		childCounts[bucket] = &group{}
	}
	neighborhoods := make(map[string]*group)

	for _, h := range households {
		status, evaluated := statusByHousehold[h.ID]
		if evaluated {
			byStatus[string(status)]++
		}
		overview.Members += len(h.Members)

		if isSoloMother(h) {
			soloMothers.add(status)
		}
		if len(h.Members) == 1 {
			singleMember.add(status)
		}
		children := countChildren(h)
		if len(h.Members) == 2 && children == 0 {
			childlessCouples.add(status)
		}
		if bucket, ok := childBucket(children); ok {
			childCounts[bucket].add(status)
		}

		name := h.Neighborhood
		if name == "" {
			name = neighborhoodFallback
		}
		g, ok := neighborhoods[name]
		if !ok {
			g = &group{}
			neighborhoods[name] = g
		}
		g.add(status)
	}

	overview.SoloMothers = soloMothers.breakdown()
	overview.SingleMember = singleMember.breakdown()
	overview.ChildlessCouples = childlessCouples.breakdown()
	for bucket, g := range childCounts {
		overview.ByChildCount[bucket] = g.breakdown()
	}
	for name, g := range neighborhoods {
		if g.total >= filters.MinPerNeighborhood {
			overview.ByNeighborhood[name] = g.breakdown()
		}
	}
	return overview, nil
}

// group accumulates households and their finalized outcomes.
type group struct {
	total    int
	approved int
	rejected int
}

func (g *group) add(status evaluation.Status) {
	g.total++
	switch status {
	case evaluation.StatusApproved:
		g.approved++
	case evaluation.StatusRejected:
		g.rejected++
	}
}

func (g *group) breakdown() StatusBreakdown {
	rate := 0.0
	if g.total > 0 {
		rate = math.Round(float64(g.approved)/float64(g.total)*100*100) / 100
	}
	return StatusBreakdown{
		Total:        g.total,
		Approved:     g.approved,
		Rejected:     g.rejected,
		ApprovalRate: rate,
	}
}

// isSoloMother reports a female head of household with no spouse on
// record.
func isSoloMother(h *household.Household) bool {
	head := h.HeadOfHousehold()
	if head == nil || head.Sex != household.SexFemale {
		return false
	}
	for _, m := range h.Members {
		if m.Kinship == household.KinshipSpouse {
			return false
		}
	}
	return true
}

func countChildren(h *household.Household) int {
	count := 0
	for _, m := range h.Members {
		if m.Kinship == household.KinshipChild {
			count++
		}
	}
	return count
}

// childBucket maps a child count onto the reported categories. Counts
// below two are not reported.
func childBucket(children int) (string, bool) {
	switch {
	case children >= 5:
		return "5+", true
	case children >= 2:
		return fmt.Sprintf("%d", children), true
	default:
		return "", false
	}
}

func cacheKey(filters Filters) string {
	return fmt.Sprintf("stats:overview:%s:%d", filters.Neighborhood, filters.MinPerNeighborhood)
}
