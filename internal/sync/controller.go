package sync

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/wappzakelijk/console/pkg/metrics"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	defaultQueueSize = 256
	baseBackoff      = time.Second
	maxBackoff       = 30 * time.Second
)

type queued struct {
	epoch int64
	ev    ChangeEvent
	drop  bool
}

// Controller owns the full lifecycle of one topic: it opens exactly one
// change subscription, serializes event application onto the engine,
// re-establishes the subscription with backoff when it drops (forcing a
// snapshot, since missed events are unrecoverable), and closes
// idempotently. Events tagged with a stale subscription epoch are
// discarded, so nothing arrives after Close.
type Controller[E Entity] struct {
	topic  Topic
	engine *Engine[E]
	loader LoaderFunc[E]
	source EventSource

	queue chan queued
	done  chan struct{}
	sf    singleflight.Group
	wg    sync.WaitGroup

	mu     sync.Mutex
	sub    Subscription
	epoch  int64
	closed bool
	opened bool
}

func NewController[E Entity](engine *Engine[E], loader LoaderFunc[E], source EventSource) *Controller[E] {
	return &Controller[E]{
		topic:  engine.Topic(),
		engine: engine,
		loader: loader,
		source: source,
		queue:  make(chan queued, defaultQueueSize),
		done:   make(chan struct{}),
	}
}

func (c *Controller[E]) Engine() *Engine[E] { return c.engine }

// Open subscribes and starts the apply loop, then loads the initial
// snapshot. It may be called once.
func (c *Controller[E]) Open(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.opened {
		c.mu.Unlock()
		return nil
	}
	c.opened = true
	c.mu.Unlock()

	if err := c.subscribe(); err != nil {
		// retryable per topic; the apply loop keeps trying in background
		zap.L().Warn("sync: initial subscribe failed, will retry",
			zap.String("topic", c.topic.Key()), zap.Error(err))
		c.enqueueDrop(c.currentEpoch())
	}

	c.wg.Add(1)
	go c.applyLoop()

	return c.Refresh(ctx)
}

func (c *Controller[E]) currentEpoch() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.epoch
}

// subscribe opens the change subscription for the current epoch. The
// handler only enqueues; it never blocks the source. On queue overflow the
// event is dropped and a refresh is forced instead, which is always safe
// under at-least-once semantics.
func (c *Controller[E]) subscribe() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	epoch := c.epoch
	c.mu.Unlock()

	handler := func(ev ChangeEvent) {
		select {
		case c.queue <- queued{epoch: epoch, ev: ev}:
		default:
			zap.L().Warn("sync: event queue full, forcing refresh",
				zap.String("topic", c.topic.Key()))
			c.enqueueDrop(epoch)
		}
	}
	onDrop := func(err error) {
		zap.L().Warn("sync: subscription dropped",
			zap.String("topic", c.topic.Key()), zap.Error(err))
		c.enqueueDrop(epoch)
	}

	sub, err := c.source.Subscribe(c.topic, handler, onDrop)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.closed || c.epoch != epoch {
		c.mu.Unlock()
		_ = sub.Close()
		return ErrClosed
	}
	c.sub = sub
	c.mu.Unlock()
	return nil
}

func (c *Controller[E]) enqueueDrop(epoch int64) {
	select {
	case c.queue <- queued{epoch: epoch, drop: true}:
	default:
	}
}

func (c *Controller[E]) applyLoop() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			return
		case item := <-c.queue:
			if item.epoch != c.currentEpoch() {
				// stale event from a closed subscription handle
				continue
			}
			if item.drop {
				c.recover()
				continue
			}
			c.apply(item.ev)
		}
	}
}

// apply decodes and dispatches one change event onto the engine. Events
// for one topic are applied fully, in order, before the next.
func (c *Controller[E]) apply(ev ChangeEvent) {
	metrics.Inc("sync_event_applied")
	switch ev.Op {
	case OpDelete:
		c.engine.ApplyDelete(ev.ID)
	case OpInsert, OpUpdate:
		entity, err := decodeEntity[E](ev.Body)
		if err != nil {
			zap.L().Error("sync: undecodable change event",
				zap.String("topic", c.topic.Key()), zap.String("id", ev.ID), zap.Error(err))
			return
		}
		if ev.Op == OpInsert {
			c.engine.ApplyInsert(entity)
		} else {
			c.engine.ApplyUpdate(entity)
		}
	default:
		zap.L().Warn("sync: unknown change op", zap.String("op", string(ev.Op)))
	}
}

// recover re-establishes a dropped subscription with exponential backoff
// and then forces a snapshot to cover the gap.
func (c *Controller[E]) recover() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.sub != nil {
		_ = c.sub.Close()
		c.sub = nil
	}
	c.epoch++
	c.mu.Unlock()

	metrics.Inc("sync_resubscribe")
	backoff := baseBackoff
	for {
		err := c.subscribe()
		if err == nil {
			break
		}
		if err == ErrClosed {
			return
		}
		zap.L().Warn("sync: resubscribe failed",
			zap.String("topic", c.topic.Key()),
			zap.Duration("backoff", backoff), zap.Error(err))
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.Refresh(ctx); err != nil {
		zap.L().Warn("sync: post-resubscribe refresh failed",
			zap.String("topic", c.topic.Key()), zap.Error(err))
	}
}

// Refresh loads a fresh snapshot and applies it atomically. Concurrent
// calls for the same topic are coalesced. This is also the explicit drift
// recovery escape hatch exposed to the presentation layer.
func (c *Controller[E]) Refresh(ctx context.Context) error {
	_, err, _ := c.sf.Do("refresh", func() (interface{}, error) {
		entities, err := c.loader(ctx)
		if err != nil {
			c.engine.SetStatus(false, NewTransportError("snapshot "+c.topic.Key(), err))
			return nil, err
		}
		c.engine.ApplySnapshot(entities)
		return nil, nil
	})
	return err
}

// Close tears the subscription down. It is idempotent, and any event
// still in flight is discarded by the epoch check.
func (c *Controller[E]) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.epoch++
	sub := c.sub
	c.sub = nil
	opened := c.opened
	c.mu.Unlock()

	if sub != nil {
		_ = sub.Close()
	}
	close(c.done)
	if opened {
		c.wg.Wait()
	}
	return nil
}

func decodeEntity[E Entity](body json.RawMessage) (E, error) {
	var entity E
	err := codec.Unmarshal(body, &entity)
	return entity, err
}
