// Package settings holds the program-wide review configuration: the
// passing threshold and the number of benefit slots. A single row backs
// it; changing the threshold cascades a reclassification of every
// finalized evaluation.
package settings

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"amparo/internal/evaluation"
	dErrors "amparo/pkg/domain-errors"
	"amparo/pkg/platform/sentinel"
	"amparo/pkg/platform/tx"
)

// Defaults applied when no settings row exists yet.
const (
	DefaultMinPassingScore = 50
	DefaultAvailableSlots  = 1000
)

// Settings is the singleton review configuration.
type Settings struct {
	MinPassingScore int
	AvailableSlots  int
	UpdatedAt       time.Time
}

// Store persists the singleton settings row.
type Store interface {
	// Get returns the settings, or sentinel.ErrNotFound before first save.
	Get(ctx context.Context) (*Settings, error)
	// Save upserts the singleton row.
	Save(ctx context.Context, s *Settings) error
}

// Reclassifier re-applies a changed threshold across finalized
// evaluations. Implemented by the evaluation service.
type Reclassifier interface {
	Reclassify(ctx context.Context, minPassingScore int) (evaluation.ReclassifyResult, error)
}

// Service reads and updates the settings and drives the threshold
// cascade as one atomic unit.
type Service struct {
	store        Store
	reclassifier Reclassifier
	runner       tx.Runner
	logger       *slog.Logger
}

func NewService(store Store, reclassifier Reclassifier, runner tx.Runner, logger *slog.Logger) *Service {
	return &Service{
		store:        store,
		reclassifier: reclassifier,
		runner:       runner,
		logger:       logger,
	}
}

// Get returns the current settings, falling back to defaults before the
// first save.
func (s *Service) Get(ctx context.Context) (*Settings, error) {
	current, err := s.store.Get(ctx)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return &Settings{
				MinPassingScore: DefaultMinPassingScore,
				AvailableSlots:  DefaultAvailableSlots,
			}, nil
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "get settings")
	}
	return current, nil
}

// MinPassingScore returns the current passing threshold. Finalization
// reads it through here so the value is injected, never globally fetched
// by the workflow itself.
func (s *Service) MinPassingScore(ctx context.Context) (int, error) {
	current, err := s.Get(ctx)
	if err != nil {
		return 0, err
	}
	return current.MinPassingScore, nil
}

// UpdateInput carries a settings change.
type UpdateInput struct {
	MinPassingScore int
	AvailableSlots  int
}

// UpdateResult reports the saved settings and any cascade it triggered.
type UpdateResult struct {
	Settings   *Settings
	Reclassify *evaluation.ReclassifyResult
}

// Update saves the settings and, when the threshold changed, reclassifies
// every finalized evaluation in the same transaction boundary.
func (s *Service) Update(ctx context.Context, input UpdateInput) (*UpdateResult, error) {
	if input.MinPassingScore < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "minimum passing score must not be negative")
	}
	if input.AvailableSlots < 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "available slots must not be negative")
	}

	current, err := s.Get(ctx)
	if err != nil {
		return nil, err
	}
	thresholdChanged := current.MinPassingScore != input.MinPassingScore

	result := &UpdateResult{}
	err = s.runner.RunInTx(ctx, func(ctx context.Context) error {
		updated := &Settings{
			MinPassingScore: input.MinPassingScore,
			AvailableSlots:  input.AvailableSlots,
		}
		if err := s.store.Save(ctx, updated); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "save settings")
		}
		result.Settings = updated

		if thresholdChanged {
			cascade, err := s.reclassifier.Reclassify(ctx, input.MinPassingScore)
			if err != nil {
				return err
			}
			result.Reclassify = &cascade
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("settings updated",
		"min_passing_score", input.MinPassingScore,
		"available_slots", input.AvailableSlots,
		"threshold_changed", thresholdChanged)
	return result, nil
}
