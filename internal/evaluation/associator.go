package evaluation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"amparo/internal/criteria"
	"amparo/internal/evaluation/metrics"
	"amparo/internal/household"
	id "amparo/pkg/domain"
	"amparo/pkg/platform/sentinel"
	"amparo/pkg/platform/tx"
	"amparo/pkg/requestcontext"
)

// Associator creates and maintains the criterion links of evaluations: the
// initial association of active criteria and the bulk cascades that follow
// criterion definition changes.
type Associator struct {
	store      Store
	criteria   criteria.Store
	households household.Store
	runner     tx.Runner
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewAssociator(store Store, criteriaStore criteria.Store, households household.Store, runner tx.Runner, metrics *metrics.Metrics, logger *slog.Logger) *Associator {
	return &Associator{
		store:      store,
		criteria:   criteriaStore,
		households: households,
		runner:     runner,
		metrics:    metrics,
		logger:     logger,
	}
}

// Associate links every active criterion not yet linked to the evaluation,
// running the applicability check against the household. Idempotent: a
// second run creates nothing. Does not recompute the score; callers
// rescore afterward.
func (a *Associator) Associate(ctx context.Context, e *Evaluation) (int, error) {
	start := time.Now()

	h, err := a.households.Get(ctx, e.HouseholdID)
	if err != nil {
		return 0, fmt.Errorf("load household: %w", err)
	}
	active, err := a.criteria.ListCriteria(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("list active criteria: %w", err)
	}
	links, err := a.store.ListLinks(ctx, e.ID)
	if err != nil {
		return 0, fmt.Errorf("list links: %w", err)
	}
	linked := make(map[id.CriterionID]struct{}, len(links))
	for _, link := range links {
		linked[link.CriterionID] = struct{}{}
	}

	now := requestcontext.Now(ctx)
	created := 0
	for _, criterion := range active {
		if _, exists := linked[criterion.ID]; exists {
			continue
		}
		if err := a.createLink(ctx, e.ID, criterion, h, now); err != nil {
			// A concurrent association already linked it; idempotence holds.
			if errors.Is(err, sentinel.ErrConflict) {
				continue
			}
			return created, err
		}
		created++
	}

	a.metrics.AddLinksCreated(created)
	a.metrics.ObserveAssociateDuration(time.Since(start))
	return created, nil
}

// OnCriterionCreated links a newly saved active criterion to every
// existing evaluation, in one transaction, and rescores the evaluations
// that gained a link.
func (a *Associator) OnCriterionCreated(ctx context.Context, criterion *criteria.Criterion) (int, error) {
	created := 0
	err := a.runner.RunInTx(ctx, func(ctx context.Context) error {
		evaluations, err := a.store.List(ctx)
		if err != nil {
			return fmt.Errorf("list evaluations: %w", err)
		}
		householdsByID, err := a.loadHouseholds(ctx)
		if err != nil {
			return err
		}
		alreadyLinked, err := a.linkedEvaluations(ctx, criterion.ID)
		if err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		for _, e := range evaluations {
			if _, exists := alreadyLinked[e.ID]; exists {
				continue
			}
			h, ok := householdsByID[e.HouseholdID]
			if !ok {
				continue
			}
			if err := a.createLink(ctx, e.ID, criterion, h, now); err != nil {
				return err
			}
			created++
			if err := a.rescore(ctx, e.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	a.metrics.AddLinksCreated(created)
	a.logger.Info("criterion linked to existing evaluations",
		"criterion_code", criterion.Code,
		"links_created", created)
	return created, nil
}

// OnCriterionUpdated re-checks applicability for every evaluation linked
// to the criterion and rescores each one, all inside a single transaction.
//
// When applicability flips, satisfied is reset to track the opt-out rule:
// newly not-applicable links get full credit, newly applicable links lose
// any prior evidence-based satisfaction. The rescore runs even without a
// flip because point or weight values may have changed.
func (a *Associator) OnCriterionUpdated(ctx context.Context, criterion *criteria.Criterion) error {
	return a.runner.RunInTx(ctx, func(ctx context.Context) error {
		links, err := a.store.ListLinksByCriterion(ctx, criterion.ID)
		if err != nil {
			return fmt.Errorf("list links by criterion: %w", err)
		}
		householdsByID, err := a.loadHouseholds(ctx)
		if err != nil {
			return err
		}

		now := requestcontext.Now(ctx)
		for _, link := range links {
			e, err := a.store.Get(ctx, link.EvaluationID)
			if err != nil {
				return fmt.Errorf("load evaluation: %w", err)
			}
			h, ok := householdsByID[e.HouseholdID]
			if !ok {
				continue
			}

			applicable, reason := criteria.CheckApplicability(criterion, h, now)
			if applicable != link.Applicable {
				link.Applicable = applicable
				link.Satisfied = !applicable
			}
			link.Note = reason
			if err := a.store.UpdateLink(ctx, link); err != nil {
				return fmt.Errorf("update link: %w", err)
			}
			if err := a.rescore(ctx, e.ID); err != nil {
				return err
			}
		}
		return nil
	})
}

// Rescore recomputes and persists an evaluation's aggregate score,
// returning the new value.
func (a *Associator) Rescore(ctx context.Context, evaluationID id.EvaluationID) (int, error) {
	if err := a.rescore(ctx, evaluationID); err != nil {
		return 0, err
	}
	e, err := a.store.Get(ctx, evaluationID)
	if err != nil {
		return 0, fmt.Errorf("load evaluation: %w", err)
	}
	return e.Score, nil
}

// DetailedScore computes the per-category breakdown without persisting.
func (a *Associator) DetailedScore(ctx context.Context, evaluationID id.EvaluationID) (map[id.CategoryID]CategoryScore, error) {
	links, err := a.store.ListLinks(ctx, evaluationID)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	definitions, err := a.definitions(ctx)
	if err != nil {
		return nil, err
	}
	return DetailedScore(links, definitions), nil
}

func (a *Associator) createLink(ctx context.Context, evaluationID id.EvaluationID, criterion *criteria.Criterion, h *household.Household, now time.Time) error {
	applicable, reason := criteria.CheckApplicability(criterion, h, now)
	link := &CriterionLink{
		ID:           id.NewLinkID(),
		EvaluationID: evaluationID,
		CriterionID:  criterion.ID,
		// Not-applicable criteria get full credit without evidence.
		Satisfied:  !applicable,
		Applicable: applicable,
		Note:       reason,
	}
	if err := a.store.CreateLink(ctx, link); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("create link: %w", err)
	}
	return nil
}

func (a *Associator) rescore(ctx context.Context, evaluationID id.EvaluationID) error {
	links, err := a.store.ListLinks(ctx, evaluationID)
	if err != nil {
		return fmt.Errorf("list links: %w", err)
	}
	definitions, err := a.definitions(ctx)
	if err != nil {
		return err
	}
	score := CalculateScore(links, definitions)
	if err := a.store.UpdateScore(ctx, evaluationID, score); err != nil {
		return fmt.Errorf("persist score: %w", err)
	}
	return nil
}

// definitions loads every criterion, including inactive ones, so links to
// deactivated criteria keep contributing to scores.
func (a *Associator) definitions(ctx context.Context) (map[id.CriterionID]*criteria.Criterion, error) {
	all, err := a.criteria.ListCriteria(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("list criteria: %w", err)
	}
	definitions := make(map[id.CriterionID]*criteria.Criterion, len(all))
	for _, criterion := range all {
		definitions[criterion.ID] = criterion
	}
	return definitions, nil
}

func (a *Associator) loadHouseholds(ctx context.Context) (map[id.HouseholdID]*household.Household, error) {
	households, err := a.households.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list households: %w", err)
	}
	byID := make(map[id.HouseholdID]*household.Household, len(households))
	for _, h := range households {
		byID[h.ID] = h
	}
	return byID, nil
}

func (a *Associator) linkedEvaluations(ctx context.Context, criterionID id.CriterionID) (map[id.EvaluationID]struct{}, error) {
	links, err := a.store.ListLinksByCriterion(ctx, criterionID)
	if err != nil {
		return nil, fmt.Errorf("list links by criterion: %w", err)
	}
	linked := make(map[id.EvaluationID]struct{}, len(links))
	for _, link := range links {
		linked[link.EvaluationID] = struct{}{}
	}
	return linked, nil
}
