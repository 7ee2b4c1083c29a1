package bus

import (
	"context"
	"sync"
)

// MessageBus is the in-process message and event bus connecting channel
// plugins, the agent runtime, and connected gateway clients. Inbound and
// outbound message queues are buffered channels (producer/consumer,
// fan-in/fan-out); event broadcast is a simple id-keyed subscriber map
// guarded by a mutex. No external broker is wired here — every channel
// plugin, the agent loop, and the gateway server all run in this one
// process, so a channel-based queue is the whole bus.
type MessageBus struct {
	inbound  chan InboundMessage
	outbound chan OutboundMessage

	mu   sync.RWMutex
	subs map[string]EventHandler
}

// New builds a MessageBus with reasonably large buffers so a burst of
// channel traffic doesn't block plugin goroutines.
func New() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, 256),
		outbound: make(chan OutboundMessage, 256),
		subs:     make(map[string]EventHandler),
	}
}

// PublishInbound enqueues a message received from a channel plugin.
func (b *MessageBus) PublishInbound(msg InboundMessage) {
	b.inbound <- msg
}

// ConsumeInbound blocks until a message is available or ctx is done. The
// second return value is false once ctx is cancelled.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-b.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// PublishOutbound enqueues a message to be delivered to a channel plugin.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) {
	b.outbound <- msg
}

// SubscribeOutbound blocks until a message is available or ctx is done.
func (b *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-b.outbound:
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

// Subscribe registers handler under id, replacing any existing subscriber
// with the same id. Handlers run synchronously on the Broadcast caller's
// goroutine, so callers that do real work (e.g. channel sends) must hand
// off to their own goroutine.
func (b *MessageBus) Subscribe(id string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[id] = handler
}

// Unsubscribe removes the handler registered under id, if any.
func (b *MessageBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subs, id)
}

// Broadcast delivers event to every subscriber.
func (b *MessageBus) Broadcast(event Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.subs))
	for _, h := range b.subs {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}
