package messaging

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kurslab/kurslab-engagement/internal/domain/shared"
	"github.com/kurslab/kurslab-engagement/pkg/logger"
)

func timeNow() time.Time {
	return time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC)
}

func newSyncBus() *InMemoryEventBus {
	return NewInMemoryEventBus(InMemoryEventBusConfig{
		AsyncMode:     false,
		EnableMetrics: true,
		Logger:        logger.New(logger.Options{Output: io.Discard, Level: logger.LevelFatal}),
	})
}

func TestPublish_RoutesByEventType(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	var goalEvents, resetEvents int
	require.NoError(t, bus.Subscribe(shared.EventWeeklyGoalMet, func(shared.Event) error {
		goalEvents++
		return nil
	}))
	require.NoError(t, bus.Subscribe(shared.EventStreakReset, func(shared.Event) error {
		resetEvents++
		return nil
	}))

	userID := "a1b2c3d4-0000-4000-8000-000000000001"
	require.NoError(t, bus.Publish(shared.NewWeeklyGoalMetEvent(userID, timeNow(), 3, 3)))
	require.NoError(t, bus.Publish(shared.NewWeeklyGoalMetEvent(userID, timeNow(), 4, 4)))

	assert.Equal(t, 2, goalEvents)
	assert.Equal(t, 0, resetEvents)
}

func TestSubscribeAll_SeesEveryEvent(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	var all int
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error {
		all++
		return nil
	}))

	userID := "a1b2c3d4-0000-4000-8000-000000000001"
	require.NoError(t, bus.Publish(shared.NewWeeklyGoalMetEvent(userID, timeNow(), 1, 1)))
	require.NoError(t, bus.Publish(shared.NewStreakResetEvent(userID, 3, timeNow())))
	require.NoError(t, bus.Publish(shared.NewBadgeEarnedEvent(userID, "bronze", 4)))

	assert.Equal(t, 3, all)
}

func TestPublish_HandlerErrorDoesNotFailPublisher(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	var secondCalled bool
	require.NoError(t, bus.Subscribe(shared.EventBadgeEarned, func(shared.Event) error {
		return errors.New("consumer is broken")
	}))
	require.NoError(t, bus.Subscribe(shared.EventBadgeEarned, func(shared.Event) error {
		secondCalled = true
		return nil
	}))

	err := bus.Publish(shared.NewBadgeEarnedEvent("a1b2c3d4-0000-4000-8000-000000000001", "gold", 12))
	assert.NoError(t, err)
	assert.True(t, secondCalled)

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.HandlerExecutions)
	assert.Equal(t, int64(1), snap.HandlerFailures)
}

func TestPublish_NilEvent(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()
	assert.Error(t, bus.Publish(nil))
}

func TestSubscribe_NilHandler(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()
	assert.Error(t, bus.Subscribe(shared.EventBadgeEarned, nil))
	assert.Error(t, bus.SubscribeAll(nil))
}

func TestClosedBus(t *testing.T) {
	bus := newSyncBus()
	require.NoError(t, bus.Close())

	err := bus.Publish(shared.NewBadgeEarnedEvent("a1b2c3d4-0000-4000-8000-000000000001", "bronze", 4))
	assert.ErrorIs(t, err, ErrEventBusClosed)

	err = bus.Subscribe(shared.EventBadgeEarned, func(shared.Event) error { return nil })
	assert.ErrorIs(t, err, ErrEventBusClosed)

	// A second Close is a no-op
	assert.NoError(t, bus.Close())
}

func TestMetrics_CountPublishes(t *testing.T) {
	bus := newSyncBus()
	defer bus.Close()

	userID := "a1b2c3d4-0000-4000-8000-000000000001"
	require.NoError(t, bus.SubscribeAll(func(shared.Event) error { return nil }))
	require.NoError(t, bus.Publish(shared.NewBadgeEarnedEvent(userID, "bronze", 4)))
	require.NoError(t, bus.Publish(shared.NewBadgeEarnedEvent(userID, "silver", 8)))

	snap := bus.Metrics().Snapshot()
	assert.Equal(t, int64(2), snap.PublishedTotal[shared.EventBadgeEarned])
}
