package voicelive

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBroadcaster_DeliversInOrderToAllSubscribers(t *testing.T) {
	b := NewBroadcaster("test-session", zap.NewNop())
	subA := b.Register()
	subB := b.Register()
	require.Equal(t, 2, b.Len())

	const n = 50
	for i := 0; i < n; i++ {
		b.Publish(NewEvent(EventGeneric, map[string]any{"seq": i}))
	}

	for _, sub := range []*Subscriber{subA, subB} {
		for i := 0; i < n; i++ {
			select {
			case ev := <-sub.Events():
				assert.Equal(t, i, ev.Fields["seq"])
			default:
				t.Fatalf("expected event %d to be buffered", i)
			}
		}
	}
}

func TestBroadcaster_SaturatedQueueDropsOnlyOverflow(t *testing.T) {
	b := NewBroadcaster("test-session", zap.NewNop())
	slow := b.Register()
	healthy := b.Register()

	// Drain the healthy subscriber between publishes so only the slow one
	// saturates.
	total := subscriberQueueSize + 1
	healthyCount := 0
	for i := 0; i < total; i++ {
		b.Publish(NewEvent(EventAssistantAudioDelta, map[string]any{"seq": i}))
		ev := <-healthy.Events()
		assert.Equal(t, i, ev.Fields["seq"])
		healthyCount++
	}
	assert.Equal(t, total, healthyCount, "healthy subscriber sees every event")

	// The slow queue holds exactly its capacity, in original order.
	for i := 0; i < subscriberQueueSize; i++ {
		select {
		case ev := <-slow.Events():
			assert.Equal(t, i, ev.Fields["seq"])
		default:
			t.Fatalf("expected event %d to be buffered", i)
		}
	}
	select {
	case ev := <-slow.Events():
		t.Fatalf("unexpected extra event: %v", ev)
	default:
	}
}

func TestBroadcaster_UnregisterIsIndependentAndIdempotent(t *testing.T) {
	b := NewBroadcaster("test-session", zap.NewNop())
	subA := b.Register()
	subB := b.Register()

	b.Unregister(subA)
	b.Unregister(subA) // second call is a no-op
	require.Equal(t, 1, b.Len())

	b.Publish(NewEvent(EventSpeechStarted, nil))
	ev := <-subB.Events()
	assert.Equal(t, EventSpeechStarted, ev.Type)

	_, open := <-subA.Events()
	assert.False(t, open, "unregistered queue is closed")
}

func TestBroadcaster_CloseRejectsNewSubscribers(t *testing.T) {
	b := NewBroadcaster("test-session", zap.NewNop())
	sub := b.Register()
	b.Close()

	_, open := <-sub.Events()
	assert.False(t, open)

	late := b.Register()
	_, open = <-late.Events()
	assert.False(t, open, "registration after close yields a closed queue")
}

func TestEvent_MarshalFlattensTypeTag(t *testing.T) {
	ev := NewEvent(EventAssistantAudioDelta, map[string]any{"delta": "QUJD"})
	body, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"assistant_audio_delta","delta":"QUJD"}`, string(body))
}

func TestBroadcaster_ConcurrentPublishUnregister(t *testing.T) {
	b := NewBroadcaster("test-session", zap.NewNop())
	subs := make([]*Subscriber, 10)
	for i := range subs {
		subs[i] = b.Register()
	}

	stop := make(chan struct{})
	go func() {
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
				b.Publish(NewEvent(EventGeneric, map[string]any{"seq": fmt.Sprint(i)}))
			}
		}
	}()
	for _, sub := range subs {
		b.Unregister(sub)
	}
	close(stop)
}
