package settings

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"amparo/internal/evaluation"
	dErrors "amparo/pkg/domain-errors"
	"amparo/pkg/platform/tx"
)

type reclassifierSpy struct {
	calls  int
	minArg int
	result evaluation.ReclassifyResult
	err    error
}

func (r *reclassifierSpy) Reclassify(_ context.Context, minPassingScore int) (evaluation.ReclassifyResult, error) {
	r.calls++
	r.minArg = minPassingScore
	return r.result, r.err
}

func newService(t *testing.T) (*Service, *reclassifierSpy) {
	t.Helper()
	spy := &reclassifierSpy{}
	svc := NewService(NewMemory(), spy, tx.NewSerialRunner(), slog.New(slog.DiscardHandler))
	return svc, spy
}

func TestGetReturnsDefaultsBeforeFirstSave(t *testing.T) {
	svc, _ := newService(t)

	current, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, DefaultMinPassingScore, current.MinPassingScore)
	assert.Equal(t, DefaultAvailableSlots, current.AvailableSlots)
}

func TestMinPassingScoreReflectsSavedValue(t *testing.T) {
	svc, _ := newService(t)

	_, err := svc.Update(context.Background(), UpdateInput{MinPassingScore: 65, AvailableSlots: 500})
	require.NoError(t, err)

	threshold, err := svc.MinPassingScore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 65, threshold)
}

func TestUpdateWithChangedThresholdReclassifies(t *testing.T) {
	svc, spy := newService(t)
	spy.result = evaluation.ReclassifyResult{ApprovedToRejected: 3, RejectedToApproved: 1}

	result, err := svc.Update(context.Background(), UpdateInput{MinPassingScore: 70, AvailableSlots: 1000})
	require.NoError(t, err)

	assert.Equal(t, 1, spy.calls)
	assert.Equal(t, 70, spy.minArg)
	require.NotNil(t, result.Reclassify)
	assert.Equal(t, 3, result.Reclassify.ApprovedToRejected)
	assert.Equal(t, 1, result.Reclassify.RejectedToApproved)
}

func TestUpdateWithUnchangedThresholdSkipsCascade(t *testing.T) {
	svc, spy := newService(t)

	_, err := svc.Update(context.Background(), UpdateInput{
		MinPassingScore: DefaultMinPassingScore,
		AvailableSlots:  200,
	})
	require.NoError(t, err)

	assert.Zero(t, spy.calls)

	current, err := svc.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 200, current.AvailableSlots)
}

func TestUpdateRejectsNegativeInputs(t *testing.T) {
	svc, spy := newService(t)

	_, err := svc.Update(context.Background(), UpdateInput{MinPassingScore: -1, AvailableSlots: 10})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = svc.Update(context.Background(), UpdateInput{MinPassingScore: 50, AvailableSlots: -5})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeValidation))

	assert.Zero(t, spy.calls)
}
