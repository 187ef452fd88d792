package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quotefiles/internal/domain"
)

func TestNotificationFeed_TransientExpire(t *testing.T) {
	clock := &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	feed := NewNotificationFeed(FeedConfig{Capacity: 10, TTL: 5 * time.Second}, zap.NewNop()).WithClock(clock.Now)

	feed.Notify(toast(domain.LevelInfo, "saved"))
	feed.Notify(alert("could not delete"))
	require.Len(t, feed.Recent(), 2)

	clock.Advance(5 * time.Second)
	recent := feed.Recent()
	require.Len(t, recent, 1)
	assert.True(t, recent[0].Blocking)
	assert.Equal(t, uint64(2), recent[0].ID)
}

func TestNotificationFeed_Capacity(t *testing.T) {
	feed := NewNotificationFeed(FeedConfig{Capacity: 2}, zap.NewNop())
	feed.Notify(toast(domain.LevelInfo, "1"))
	feed.Notify(toast(domain.LevelInfo, "2"))
	feed.Notify(toast(domain.LevelInfo, "3"))

	recent := feed.Recent()
	require.Len(t, recent, 2)
	assert.Equal(t, "2", recent[0].Message)
	assert.Equal(t, "3", recent[1].Message)
}

func TestNotificationFeed_Subscribe(t *testing.T) {
	feed := NewNotificationFeed(FeedConfig{}, zap.NewNop())
	ch, cancel := feed.Subscribe()

	feed.Notify(toast(domain.LevelSuccess, "done"))
	select {
	case n := <-ch:
		assert.Equal(t, "done", n.Message)
	case <-time.After(time.Second):
		t.Fatal("no notification delivered")
	}

	cancel()
	cancel()
	_, open := <-ch
	assert.False(t, open)
}

func TestOptimistic_RollsBackOnlyOnFailure(t *testing.T) {
	value := "old"
	apply := func() func() {
		prev := value
		value = "new"
		return func() { value = prev }
	}

	err := optimistic(context.Background(), apply, func(context.Context) error { return errors.New("rejected") }, nil)
	require.Error(t, err)
	assert.Equal(t, "old", value)

	err = optimistic(context.Background(), apply, func(context.Context) error { return nil }, nil)
	require.NoError(t, err)
	assert.Equal(t, "new", value)
}

func TestOptimistic_KeepSkipsRollback(t *testing.T) {
	gone := errors.New("gone")
	value := 1
	err := optimistic(context.Background(),
		func() func() { value = 2; return func() { value = 1 } },
		func(context.Context) error { return gone },
		func(err error) bool { return errors.Is(err, gone) },
	)
	assert.ErrorIs(t, err, gone)
	assert.Equal(t, 2, value)
}

func TestPending_RevertOnce(t *testing.T) {
	calls := 0
	p := applyPending(func() func() { return func() { calls++ } })
	p.revert()
	p.revert()
	assert.Equal(t, 1, calls)

	committed := applyPending(func() func() { return func() { calls++ } })
	committed.commit()
	committed.revert()
	assert.Equal(t, 1, calls)
}

func TestValidationError_Message(t *testing.T) {
	err := &ValidationError{Fields: map[string]string{"b": "bad", "a": "missing"}}
	assert.Equal(t, "validation failed: a: missing; b: bad", err.Error())
}
