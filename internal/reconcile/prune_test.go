package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fieldsync/internal/fault"
)

func TestPrune_CalendarDays(t *testing.T) {
	h := newHarness(t)
	h.addPoint(t, "2025-03-06T23:59:59", true)
	h.addPoint(t, "2025-03-07T00:00:00", false)
	h.addPoint(t, "2025-03-14T08:00:00", false)
	ctx := context.Background()

	preview, err := h.rec.PreviewPrune(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-07", preview.Cutoff)
	assert.Equal(t, int64(1), preview.Stats.Tracking)
	assert.Equal(t, int64(3), h.counts(t).Tracking, "preview deletes nothing")

	rep, err := h.rec.Prune(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-07", rep.Cutoff)
	assert.Equal(t, int64(1), rep.Stats.Total())
	assert.Equal(t, int64(2), h.counts(t).Tracking)
}

func TestPrune_CutoffFollowsCivilDayNotUTC(t *testing.T) {
	h := newHarness(t)
	// 2025-03-14 23:30 UTC is already 2025-03-15 in WIB.
	h.clock.Set(time.Date(2025, 3, 14, 23, 30, 0, 0, time.UTC))

	rep, err := h.rec.Prune(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-14", rep.Cutoff)
}

func TestPrune_NegativeDaysRejected(t *testing.T) {
	h := newHarness(t)
	_, err := h.rec.Prune(context.Background(), -1)
	require.Error(t, err)
	assert.True(t, fault.Is(err, fault.KindValidation))
}
