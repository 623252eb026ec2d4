package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mcpq/internal/domain"
)

func TestHub_FanOut(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := hub.SubscribeQueue(ctx)
	second := hub.SubscribeQueue(ctx)

	event := domain.QueueEvent{
		Kind:      domain.QueueEventCompleted,
		RequestID: "req-1",
		Method:    domain.MethodCallTool,
	}
	hub.EmitQueueEvent(event)

	for _, ch := range []<-chan domain.QueueEvent{first, second} {
		select {
		case got := <-ch:
			require.Equal(t, event, got)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestHub_EmitNeverBlocksOnSlowSubscriber(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Never drained: the buffer fills and further events must be dropped.
	hub.SubscribeRegistry(ctx)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 100; i++ {
			hub.EmitRegistryEvent(domain.RegistryEvent{
				Kind:   domain.RegistryEventToolRegistered,
				ToolID: "tool-1",
			})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked on a slow subscriber")
	}
}

func TestHub_UnsubscribeOnContextDone(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())

	ch := hub.SubscribeQueue(ctx)
	cancel()

	require.Eventually(t, func() bool {
		select {
		case _, ok := <-ch:
			return !ok
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)

	// Emitting after unsubscribe is harmless.
	hub.EmitQueueEvent(domain.QueueEvent{Kind: domain.QueueEventEnqueued})
}
