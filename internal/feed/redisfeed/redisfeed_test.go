package redisfeed

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"

	"github.com/mmynk/teamsync/internal/feed"
)

func TestRelayForwardsAcrossInstances(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx := context.Background()

	client, err := Connect(ctx, srv.Addr(), "", 0)
	require.NoError(t, err)
	defer client.Close()

	// Two instances: each has its own broker and relay.
	brokerA, brokerB := feed.NewBroker(), feed.NewBroker()
	relayA := NewRelay(client, "", brokerA, nil)
	relayB := NewRelay(client, "", brokerB, nil)
	require.NoError(t, relayA.Start(ctx))
	defer relayA.Close()
	require.NoError(t, relayB.Start(ctx))
	defer relayB.Close()

	subB := brokerB.Subscribe(feed.TeamTopic("t1"))
	defer subB.Close()
	subA := brokerA.Subscribe(feed.TeamTopic("t1"))
	defer subA.Close()

	pub := NewPublisher(client, "")
	ev := feed.Event{Topic: feed.TeamTopic("t1"), Collection: "teams", ID: "t1", Op: feed.OpPut}
	require.NoError(t, pub.Publish(ctx, ev))

	for _, sub := range []*feed.Subscription{subA, subB} {
		select {
		case got := <-sub.Events():
			require.Equal(t, ev, got)
		case <-time.After(2 * time.Second):
			t.Fatal("event was not relayed")
		}
	}
}

func TestRelayCloseStopsDelivery(t *testing.T) {
	srv := miniredis.RunT(t)
	ctx := context.Background()

	client, err := Connect(ctx, srv.Addr(), "", 0)
	require.NoError(t, err)
	defer client.Close()

	broker := feed.NewBroker()
	relay := NewRelay(client, "custom", broker, nil)
	require.NoError(t, relay.Start(ctx))
	require.Error(t, relay.Start(ctx), "a relay starts once")
	relay.Close()
	relay.Close()

	sub := broker.Subscribe(feed.ScheduleTopic("t1"))
	defer sub.Close()
	require.NoError(t, NewPublisher(client, "custom").Publish(ctx, feed.Event{Topic: feed.ScheduleTopic("t1")}))

	select {
	case ev := <-sub.Events():
		t.Fatalf("closed relay delivered %+v", ev)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConnectFailsWithoutServer(t *testing.T) {
	srv, err := miniredis.Run()
	require.NoError(t, err)
	addr := srv.Addr()
	srv.Close()

	_, err = Connect(context.Background(), addr, "", 0)
	require.Error(t, err)
}
