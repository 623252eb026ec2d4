package notifications

import (
	"context"
	"sync"

	"mcpq/internal/domain"
)

const defaultEventBuffer = 8

// Hub fans queue and registry events out to subscribers. Emission never
// blocks: slow subscribers drop events rather than stalling the emitter.
type Hub struct {
	mu           sync.RWMutex
	queueSubs    map[chan domain.QueueEvent]struct{}
	registrySubs map[chan domain.RegistryEvent]struct{}
}

func NewHub() *Hub {
	return &Hub{
		queueSubs:    make(map[chan domain.QueueEvent]struct{}),
		registrySubs: make(map[chan domain.RegistryEvent]struct{}),
	}
}

func (h *Hub) EmitQueueEvent(event domain.QueueEvent) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.queueSubs {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *Hub) EmitRegistryEvent(event domain.RegistryEvent) {
	if h == nil {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.registrySubs {
		select {
		case ch <- event:
		default:
		}
	}
}

// SubscribeQueue delivers queue events until ctx is done.
func (h *Hub) SubscribeQueue(ctx context.Context) <-chan domain.QueueEvent {
	ch := make(chan domain.QueueEvent, defaultEventBuffer)
	if h == nil {
		close(ch)
		return ch
	}
	h.mu.Lock()
	h.queueSubs[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.queueSubs, ch)
		close(ch)
		h.mu.Unlock()
	}()
	return ch
}

// SubscribeRegistry delivers registry events until ctx is done.
func (h *Hub) SubscribeRegistry(ctx context.Context) <-chan domain.RegistryEvent {
	ch := make(chan domain.RegistryEvent, defaultEventBuffer)
	if h == nil {
		close(ch)
		return ch
	}
	h.mu.Lock()
	h.registrySubs[ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		delete(h.registrySubs, ch)
		close(ch)
		h.mu.Unlock()
	}()
	return ch
}

var (
	_ domain.QueueEventEmitter    = (*Hub)(nil)
	_ domain.RegistryEventEmitter = (*Hub)(nil)
)
