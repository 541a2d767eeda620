package sync

import (
	"context"
	"encoding/json"
	"time"
)

// Entity kinds known to the store and the change feed.
const (
	KindConversation = "conversations"
	KindMessage      = "messages"
	KindContact      = "contacts"
	KindBroadcast    = "broadcasts"
	KindPaymentLink  = "payment_links"
)

// Entity is anything the sync core can reconcile. EntityID is the opaque
// store identity; ClientToken is the idempotency token echoed back by the
// store for optimistic writes, or empty.
type Entity interface {
	EntityID() string
	ClientToken() string
}

// Topic is a (entity kind, scope filter) pair defining one independently
// subscribed, independently ordered stream of entities. An empty scope
// means the whole kind.
type Topic struct {
	Kind  string
	Scope string
}

func (t Topic) Key() string {
	if t.Scope == "" {
		return t.Kind
	}
	return t.Kind + ":" + t.Scope
}

// RoutingKey renders the topic for a broker topic exchange.
func (t Topic) RoutingKey() string {
	if t.Scope == "" {
		return t.Kind + ".all"
	}
	return t.Kind + "." + t.Scope
}

type Op string

const (
	OpInsert Op = "insert"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// ChangeEvent is one change notification from the remote store. Delivery
// is at-least-once and ordered per topic only.
type ChangeEvent struct {
	Topic Topic           `json:"topic"`
	Op    Op              `json:"op"`
	ID    string          `json:"id"`
	Token string          `json:"token,omitempty"`
	Body  json.RawMessage `json:"body,omitempty"`
	At    time.Time       `json:"at"`
}

// Handler consumes change events. It must never block the event source;
// the controller only enqueues from it.
type Handler func(ev ChangeEvent)

// Subscription is a standing change subscription. Close is idempotent and
// no events are delivered after it returns.
type Subscription interface {
	Close() error
}

// EventSource establishes change subscriptions per topic. onDrop is
// invoked when the subscription silently dies (connection loss); events
// missed during the gap are not recoverable from the channel, the caller
// must re-request a snapshot after resubscribing.
type EventSource interface {
	Subscribe(topic Topic, h Handler, onDrop func(error)) (Subscription, error)
}

// EventPublisher emits change events to all subscribed consumers. The
// store publishes after every confirmed mutation.
type EventPublisher interface {
	Publish(ev ChangeEvent)
}

// LoaderFunc fetches an ordered, filtered snapshot of a topic on demand.
// Errors are TransportError.
type LoaderFunc[E Entity] func(ctx context.Context) ([]E, error)

// Tee fans a change event out to several publishers, e.g. the in-process
// bus plus an AMQP exchange shared with other console instances.
func Tee(pubs ...EventPublisher) EventPublisher {
	return teePublisher(pubs)
}

type teePublisher []EventPublisher

func (t teePublisher) Publish(ev ChangeEvent) {
	for _, p := range t {
		p.Publish(ev)
	}
}
