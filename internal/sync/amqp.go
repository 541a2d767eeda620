package sync

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AmqpFeed is the cross-instance change feed: a topic exchange shared by
// every console node, so a human agent and an automated responder writing
// to the same conversation observe each other's mutations. Delivery is
// at-least-once and ordered per routing key.
type AmqpFeed struct {
	url      string
	exchange string

	mu   sync.Mutex
	conn *amqp091.Connection
}

// DialAmqpFeed connects with exponential backoff, respecting ctx for
// shutdown during a long retry run.
func DialAmqpFeed(ctx context.Context, url, exchange string, attempts int, delay time.Duration) (*AmqpFeed, error) {
	var lastErr error
	for i := 1; i <= attempts; i++ {
		conn, err := amqp091.Dial(url)
		if err == nil {
			if i > 1 {
				zap.L().Info("sync: amqp connected", zap.Int("attempt", i))
			}
			f := &AmqpFeed{url: url, exchange: exchange, conn: conn}
			if err := f.declareExchange(); err != nil {
				_ = conn.Close()
				return nil, NewTransportError("declare exchange", err)
			}
			return f, nil
		}
		lastErr = err
		sleep := delay * time.Duration(math.Pow(2, float64(i-1)))
		if sleep > maxBackoff {
			sleep = maxBackoff
		}
		zap.L().Warn("sync: amqp dial failed",
			zap.Int("attempt", i), zap.Duration("sleep", sleep), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, NewTransportError("amqp dial", ctx.Err())
		case <-time.After(sleep):
		}
	}
	return nil, NewTransportError("amqp dial", lastErr)
}

func (f *AmqpFeed) declareExchange() error {
	ch, err := f.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()
	return ch.ExchangeDeclare(f.exchange, "topic", true, false, false, false, nil)
}

// Publish emits the change event to the exchange. Failures are logged,
// not propagated: the in-process feed has already delivered the event and
// remote consumers recover drift through their snapshot refresh.
func (f *AmqpFeed) Publish(ev ChangeEvent) {
	ch, err := f.conn.Channel()
	if err != nil {
		zap.L().Warn("sync: amqp publish channel", zap.Error(err))
		return
	}
	defer ch.Close()

	body, err := codec.Marshal(ev)
	if err != nil {
		zap.L().Error("sync: amqp marshal event", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = ch.PublishWithContext(ctx, f.exchange, ev.Topic.RoutingKey(), false, false,
		amqp091.Publishing{
			ContentType:   "application/json",
			DeliveryMode:  amqp091.Persistent,
			MessageId:     uuid.NewString(),
			CorrelationId: ev.Token,
			Timestamp:     time.Now(),
			Body:          body,
		})
	if err != nil {
		zap.L().Warn("sync: amqp publish failed",
			zap.String("key", ev.Topic.RoutingKey()), zap.Error(err))
	}
}

func (f *AmqpFeed) Subscribe(topic Topic, h Handler, onDrop func(error)) (Subscription, error) {
	ch, err := f.conn.Channel()
	if err != nil {
		return nil, NewTransportError("amqp channel", err)
	}
	if err := ch.ExchangeDeclare(f.exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, NewTransportError("declare exchange", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, NewTransportError("declare queue", err)
	}
	if err := ch.QueueBind(q.Name, topic.RoutingKey(), f.exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, NewTransportError("bind queue", err)
	}
	msgs, err := ch.Consume(q.Name, "", false, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, NewTransportError("consume", err)
	}

	sub := &amqpSubscription{ch: ch}
	closeCh := ch.NotifyClose(make(chan *amqp091.Error, 1))

	go func() {
		for {
			select {
			case amqpErr := <-closeCh:
				if amqpErr != nil && onDrop != nil && !sub.isClosed() {
					onDrop(ErrSubscriptionDropped)
				}
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				var ev ChangeEvent
				if err := codec.Unmarshal(d.Body, &ev); err != nil {
					zap.L().Warn("sync: amqp undecodable event", zap.Error(err))
					_ = d.Nack(false, false)
					continue
				}
				h(ev)
				_ = d.Ack(false)
			}
		}
	}()

	return sub, nil
}

func (f *AmqpFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conn == nil {
		return nil
	}
	err := f.conn.Close()
	f.conn = nil
	return err
}

type amqpSubscription struct {
	ch     *amqp091.Channel
	mu     sync.Mutex
	closed bool
}

func (s *amqpSubscription) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *amqpSubscription) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.ch.Close()
}
