package feed

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBrokerRoutesByTopic(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()

	a := b.Subscribe(TeamTopic("a"))
	defer a.Close()
	other := b.Subscribe(TeamTopic("b"))
	defer other.Close()

	require.NoError(t, b.Publish(ctx, Event{Topic: TeamTopic("a"), ID: "a", Op: OpPut}))

	select {
	case ev := <-a.Events():
		require.Equal(t, "a", ev.ID)
	default:
		t.Fatal("subscriber did not receive its event")
	}
	select {
	case ev := <-other.Events():
		t.Fatalf("unrelated subscriber received %+v", ev)
	default:
	}
}

func TestSubscriptionCoversSeveralTopics(t *testing.T) {
	b := NewBroker()
	ctx := context.Background()

	sub := b.Subscribe(ScheduleTopic("t1"), TeamTopic("t1"), ScheduleTopic("t1"))
	require.ElementsMatch(t, []string{ScheduleTopic("t1"), TeamTopic("t1")}, sub.Topics())
	require.Equal(t, 1, b.Subscribers(TeamTopic("t1")))
	require.Equal(t, 1, b.Subscribers(ScheduleTopic("t1")))

	require.NoError(t, b.Publish(ctx, Event{Topic: TeamTopic("t1"), ID: "team"}))
	require.NoError(t, b.Publish(ctx, Event{Topic: ScheduleTopic("t1"), ID: "entry"}))
	require.Equal(t, "team", (<-sub.Events()).ID)
	require.Equal(t, "entry", (<-sub.Events()).ID)

	sub.Close()
	require.Equal(t, 0, b.Subscribers(TeamTopic("t1")))
	require.Equal(t, 0, b.Subscribers(ScheduleTopic("t1")))
}

func TestBrokerNeverBlocksOnSlowSubscriber(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe("topic")
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriptionBuffer*4; i++ {
			b.Publish(context.Background(), Event{Topic: "topic"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
	require.Len(t, sub.Events(), subscriptionBuffer)
}

func TestSubscriptionClose(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe("topic")
	require.Equal(t, 1, b.Subscribers("topic"))

	sub.Close()
	sub.Close()
	require.Equal(t, 0, b.Subscribers("topic"))

	_, ok := <-sub.Events()
	require.False(t, ok)
	require.NoError(t, b.Publish(context.Background(), Event{Topic: "topic"}))
}

func TestWatchDeliversInitialSnapshotAndReloads(t *testing.T) {
	b := NewBroker()
	var version atomic.Int64

	s := Watch(context.Background(), b.Subscribe("topic"), func(context.Context) (int64, error) {
		return version.Load(), nil
	})
	defer s.Close()

	require.Equal(t, int64(0), recv(t, s))

	version.Store(1)
	b.Publish(context.Background(), Event{Topic: "topic"})
	require.Equal(t, int64(1), recv(t, s))
}

func TestWatchCoalescesToNewestState(t *testing.T) {
	b := NewBroker()
	var version atomic.Int64

	s := Watch(context.Background(), b.Subscribe("topic"), func(context.Context) (int64, error) {
		return version.Load(), nil
	})
	defer s.Close()

	// The reader is not consuming; several changes happen meanwhile.
	for i := 1; i <= 5; i++ {
		version.Store(int64(i))
		b.Publish(context.Background(), Event{Topic: "topic"})
	}

	// Whatever is delivered first, values never go backwards and the
	// newest state eventually arrives.
	last := int64(-1)
	deadline := time.After(2 * time.Second)
	for last != 5 {
		select {
		case v := <-s.Updates():
			require.GreaterOrEqual(t, v, last)
			last = v
		case <-deadline:
			t.Fatalf("newest state not delivered, last=%d", last)
		}
	}
}

func TestWatchCloseStopsDelivery(t *testing.T) {
	b := NewBroker()
	s := Watch(context.Background(), b.Subscribe("topic"), func(context.Context) (string, error) {
		return "state", nil
	})
	require.Equal(t, "state", recv(t, s))

	s.Close()
	_, ok := <-s.Updates()
	require.False(t, ok)
	require.NoError(t, s.Err())
	require.Equal(t, 0, b.Subscribers("topic"), "closing the stream releases the subscription")
}

func TestWatchEndsWithLoadError(t *testing.T) {
	b := NewBroker()
	boom := errors.New("gone")
	calls := 0
	s := Watch(context.Background(), b.Subscribe("topic"), func(context.Context) (int, error) {
		calls++
		if calls > 1 {
			return 0, boom
		}
		return calls, nil
	})
	defer s.Close()

	require.Equal(t, 1, recv(t, s))
	b.Publish(context.Background(), Event{Topic: "topic"})

	select {
	case _, ok := <-s.Updates():
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("stream did not end")
	}
	require.ErrorIs(t, s.Err(), boom)
}

func TestWatchContextCancel(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	s := Watch(ctx, b.Subscribe("topic"), func(context.Context) (int, error) { return 1, nil })

	cancel()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("stream ignored cancellation")
	}
	require.NoError(t, s.Err())
}

func recv[T any](t *testing.T, s *Stream[T]) T {
	t.Helper()
	select {
	case v, ok := <-s.Updates():
		require.True(t, ok, "stream ended early: %v", s.Err())
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("no update delivered")
	}
	var zero T
	return zero
}
