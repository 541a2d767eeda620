package sync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// PersistFunc writes the draft entity to the remote store and returns the
// confirmed entity carrying the server-assigned identity and all
// server-computed fields.
type PersistFunc[E Entity] func(ctx context.Context, draft E) (E, error)

// Handle tracks one outbound write from optimistic insert to confirmation
// or failure.
type Handle[E Entity] struct {
	TempID string
	Token  string

	mu        sync.Mutex
	done      chan struct{}
	confirmed E
	err       error
}

// Wait blocks until the write is confirmed or failed.
func (h *Handle[E]) Wait(ctx context.Context) (E, error) {
	select {
	case <-ctx.Done():
		var zero E
		return zero, NewTransportError("wait", ctx.Err())
	case <-h.done:
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.confirmed, h.err
}

func (h *Handle[E]) finish(confirmed E, err error) {
	h.mu.Lock()
	h.confirmed = confirmed
	h.err = err
	h.mu.Unlock()
	close(h.done)
}

// Coordinator performs optimistic writes: the provisional entity becomes
// visible immediately, persistence runs in the background, and the
// confirmed entity is reconciled back in place. Failures leave the entity
// visible in a failed state so the attempted action is never silently
// lost.
type Coordinator[E Entity] struct {
	engine  *Engine[E]
	persist PersistFunc[E]
	// AfterConfirm runs secondary writes and the fire-and-forget downstream
	// delivery; its failure never rolls the message back.
	afterConfirm func(ctx context.Context, confirmed E)
	timeout      time.Duration
}

func NewCoordinator[E Entity](engine *Engine[E], persist PersistFunc[E],
	afterConfirm func(ctx context.Context, confirmed E)) *Coordinator[E] {
	return &Coordinator[E]{
		engine:       engine,
		persist:      persist,
		afterConfirm: afterConfirm,
		timeout:      30 * time.Second,
	}
}

// Submit makes the provisional entity visible at its sort position and
// persists it asynchronously.
func (c *Coordinator[E]) Submit(ctx context.Context, temp E) *Handle[E] {
	h := &Handle[E]{
		TempID: temp.EntityID(),
		Token:  temp.ClientToken(),
		done:   make(chan struct{}),
	}
	c.engine.BeginWrite(temp)
	go c.run(ctx, temp, h)
	return h
}

// Retry re-persists a previously failed optimistic entity, reusing its
// temporary identity and token.
func (c *Coordinator[E]) Retry(ctx context.Context, temp E) (*Handle[E], bool) {
	if !c.engine.RetryWrite(temp.EntityID()) {
		return nil, false
	}
	h := &Handle[E]{
		TempID: temp.EntityID(),
		Token:  temp.ClientToken(),
		done:   make(chan struct{}),
	}
	go c.run(ctx, temp, h)
	return h, true
}

// Discard removes a failed optimistic entity on user request.
func (c *Coordinator[E]) Discard(tempID string) {
	c.engine.Dismiss(tempID)
}

func (c *Coordinator[E]) run(ctx context.Context, temp E, h *Handle[E]) {
	// detach from the submitting request's lifetime: an aborted UI request
	// must not abort a write the user already sees as pending
	if ctx == nil {
		ctx = context.Background()
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
	defer cancel()

	confirmed, err := c.persist(pctx, temp)
	if err != nil {
		c.engine.FailWrite(h.TempID, err)
		var zero E
		h.finish(zero, err)
		return
	}

	c.engine.ConfirmWrite(h.TempID, confirmed)
	if c.afterConfirm != nil {
		c.afterConfirm(pctx, confirmed)
	}
	h.finish(confirmed, nil)
}

// LogWriteOutcome is a small helper for call sites that submit and do not
// wait: it logs the asynchronous outcome once available.
func LogWriteOutcome[E Entity](h *Handle[E], topic Topic) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := h.Wait(ctx); err != nil {
			zap.L().Warn("sync: outbound write failed",
				zap.String("topic", topic.Key()),
				zap.String("temp_id", h.TempID), zap.Error(err))
		}
	}()
}
