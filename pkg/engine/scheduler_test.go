package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingResumer struct {
	calls atomic.Int32
	err   error
}

func (r *countingResumer) ResumeDue(_ context.Context, _ time.Time) (int, error) {
	r.calls.Add(1)

	return 1, r.err
}

func TestDelayScheduler_Ticks(t *testing.T) {
	resumer := &countingResumer{}
	scheduler := NewDelayScheduler(resumer, "@every 1s", slog.New(slog.DiscardHandler))

	require.NoError(t, scheduler.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return resumer.calls.Load() > 0
	}, 3*time.Second, 50*time.Millisecond)

	require.NoError(t, scheduler.Stop(context.Background()))
}

func TestDelayScheduler_TickErrorIsLogged(t *testing.T) {
	resumer := &countingResumer{err: errors.New("database down")}
	scheduler := NewDelayScheduler(resumer, "", slog.New(slog.DiscardHandler))
	scheduler.ctx = context.Background()

	scheduler.tick()

	assert.Equal(t, int32(1), resumer.calls.Load())
	assert.Equal(t, DefaultDelaySchedule, scheduler.schedule)
}

func TestDelayScheduler_InvalidSchedule(t *testing.T) {
	scheduler := NewDelayScheduler(&countingResumer{}, "every now and then", slog.New(slog.DiscardHandler))

	err := scheduler.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid delay schedule")
}

func TestDelayScheduler_StopBeforeStart(t *testing.T) {
	scheduler := NewDelayScheduler(&countingResumer{}, "", slog.New(slog.DiscardHandler))

	assert.NoError(t, scheduler.Stop(context.Background()))
}
