package sync

import (
	"sync"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"
)

// BusFeed is the in-process change feed: store mutations are published on
// an event bus and every subscribed topic controller in the same process
// receives them. The bus never drops a connection, so onDrop is unused.
type BusFeed struct {
	bus EventBus.Bus
}

func NewBusFeed() *BusFeed {
	return &BusFeed{bus: EventBus.New()}
}

func (f *BusFeed) Publish(ev ChangeEvent) {
	f.bus.Publish(ev.Topic.Key(), ev)
}

func (f *BusFeed) Subscribe(topic Topic, h Handler, onDrop func(error)) (Subscription, error) {
	fn := func(ev ChangeEvent) {
		h(ev)
	}
	if err := f.bus.Subscribe(topic.Key(), fn); err != nil {
		return nil, NewTransportError("subscribe "+topic.Key(), err)
	}
	return &busSubscription{feed: f, key: topic.Key(), fn: fn}, nil
}

type busSubscription struct {
	feed *BusFeed
	key  string
	fn   func(ChangeEvent)
	once sync.Once
}

func (s *busSubscription) Close() error {
	s.once.Do(func() {
		if err := s.feed.bus.Unsubscribe(s.key, s.fn); err != nil {
			zap.L().Debug("sync: bus unsubscribe", zap.String("topic", s.key), zap.Error(err))
		}
	})
	return nil
}
