package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	events []Event
	err    error
}

func (n *recordingNotifier) Send(_ context.Context, event Event) error {
	n.events = append(n.events, event)
	return n.err
}

func TestRedisNotifierPublishes(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	sub := client.Subscribe(ctx, DefaultChannel)
	t.Cleanup(func() { sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	n := NewRedisNotifier(client, "")
	require.NoError(t, n.Send(ctx, Event{
		Kind:    KindTransfer,
		Subject: "alice.dao",
		Data:    map[string]string{"amount": "100"},
		At:      time.Unix(0, 0).UTC(),
	}))

	select {
	case msg := <-sub.Channel():
		var got Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, KindTransfer, got.Kind)
		assert.Equal(t, "100", got.Data["amount"])
	case <-time.After(2 * time.Second):
		t.Fatal("event not published")
	}
}

func TestMultiDeliversToAll(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("sink down")}
	healthy := &recordingNotifier{}

	err := Multi{failing, nil, healthy}.Send(context.Background(), Event{Kind: KindMint})
	require.Error(t, err)
	assert.Len(t, failing.events, 1)
	assert.Len(t, healthy.events, 1)
}

func TestNilNotifiersAreNoops(t *testing.T) {
	var logger *LoggerNotifier
	assert.NoError(t, logger.Send(context.Background(), Event{}))
	var pub *RedisNotifier
	assert.NoError(t, pub.Send(context.Background(), Event{}))
}
