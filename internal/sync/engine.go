package sync

import (
	"sync"
	"time"

	"github.com/google/btree"

	"github.com/wappzakelijk/console/pkg/metrics"
)

// EntityState is the per-entity reconciliation state.
type EntityState string

const (
	// StateConfirmed came from a snapshot or a confirmed live event.
	StateConfirmed EntityState = "confirmed"
	// StatePending was written locally and awaits store confirmation.
	StatePending EntityState = "pending"
	// StateFailed was rejected or timed out; it stays visible until the
	// user retries or dismisses it.
	StateFailed EntityState = "failed"
)

// RevisionSource records how an entity's current value was established.
type RevisionSource string

const (
	FromSnapshot RevisionSource = "snapshot"
	FromLive     RevisionSource = "live"
	FromLocal    RevisionSource = "local"
)

type Revision struct {
	Source RevisionSource
	At     time.Time
}

// Versioned is one visible entity plus its reconciliation metadata. Err
// carries the write rejection for failed optimistic entities.
type Versioned[E Entity] struct {
	Entity E
	State  EntityState
	Rev    Revision
	Err    error
}

// Status is the per-topic loading/error flag surfaced to the presentation
// layer. Transport errors never escalate beyond this.
type Status struct {
	Loading bool
	Err     error
}

// View is the materialized output of one topic: the ordered visible
// sequence plus the status flag.
type View[E Entity] struct {
	Entities []Versioned[E]
	Status   Status
}

// Options configure an engine for one topic.
type Options[E Entity] struct {
	// Less defines the visible ordering. It must tie-break by identity so
	// the sequence is a deterministic total order.
	Less func(a, b E) bool
	// Match is the topic's filter predicate; a live event whose entity no
	// longer matches removes it from the view. Nil matches everything.
	Match func(E) bool
	// Correlate is the heuristic fallback used to pair a pending
	// optimistic entity with an incoming confirmed one when the incoming
	// entity carries no client token.
	Correlate func(pending, incoming E) bool
}

// Engine reconciles snapshot results, live change events and local
// optimistic writes into one consistent ordered state for a single topic.
// All mutation goes through the transition methods; operations on one
// engine are serialized by its lock, and every transition ends with a
// publish to the registered view subscribers.
type Engine[E Entity] struct {
	topic Topic
	opt   Options[E]

	mu      sync.Mutex
	records map[string]*Versioned[E]
	tokens  map[string]string // client token -> pending entity id
	order   *btree.BTreeG[E]
	status  Status

	subsMu sync.Mutex
	subs   map[int64]func(View[E])
	nextID int64
}

func NewEngine[E Entity](topic Topic, opt Options[E]) *Engine[E] {
	if opt.Less == nil {
		panic("sync: engine requires a Less ordering")
	}
	e := &Engine[E]{
		topic:   topic,
		opt:     opt,
		records: make(map[string]*Versioned[E]),
		tokens:  make(map[string]string),
		subs:    make(map[int64]func(View[E])),
		status:  Status{Loading: true},
	}
	e.order = btree.NewG[E](8, btree.LessFunc[E](opt.Less))
	return e
}

func (e *Engine[E]) Topic() Topic { return e.topic }

// Subscribe registers a view subscriber and returns its cancel func. The
// subscriber is immediately called with the current view.
func (e *Engine[E]) Subscribe(fn func(View[E])) func() {
	e.subsMu.Lock()
	id := e.nextID
	e.nextID++
	e.subs[id] = fn
	e.subsMu.Unlock()
	fn(e.CurrentView())
	return func() {
		e.subsMu.Lock()
		delete(e.subs, id)
		e.subsMu.Unlock()
	}
}

// CurrentView snapshots the visible ordered sequence and status.
func (e *Engine[E]) CurrentView() View[E] {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.viewLocked()
}

func (e *Engine[E]) viewLocked() View[E] {
	out := make([]Versioned[E], 0, e.order.Len())
	e.order.Ascend(func(item E) bool {
		if rec, ok := e.records[item.EntityID()]; ok {
			out = append(out, *rec)
		}
		return true
	})
	return View[E]{Entities: out, Status: e.status}
}

func (e *Engine[E]) publish(v View[E]) {
	e.subsMu.Lock()
	fns := make([]func(View[E]), 0, len(e.subs))
	for _, fn := range e.subs {
		fns = append(fns, fn)
	}
	e.subsMu.Unlock()
	for _, fn := range fns {
		fn(v)
	}
}

func (e *Engine[E]) match(entity E) bool {
	if e.opt.Match == nil {
		return true
	}
	return e.opt.Match(entity)
}

// removeLocked drops an entity from both the index and the order.
func (e *Engine[E]) removeLocked(id string) {
	rec, ok := e.records[id]
	if !ok {
		return
	}
	delete(e.records, id)
	if tok := rec.Entity.ClientToken(); tok != "" {
		if e.tokens[tok] == id {
			delete(e.tokens, tok)
		}
	}
	e.order.Delete(rec.Entity)
}

func (e *Engine[E]) putLocked(entity E, state EntityState, rev Revision, cause error) {
	id := entity.EntityID()
	if old, ok := e.records[id]; ok {
		e.order.Delete(old.Entity)
	}
	e.records[id] = &Versioned[E]{Entity: entity, State: state, Rev: rev, Err: cause}
	if state == StatePending {
		if tok := entity.ClientToken(); tok != "" {
			e.tokens[tok] = id
		}
	}
	e.order.ReplaceOrInsert(entity)
}

// replaceLocked swaps the entity stored under oldID for the confirmed one,
// collapsing a correlated optimistic/confirmed pair into a single visible
// entity.
func (e *Engine[E]) replaceLocked(oldID string, confirmed E, rev Revision) {
	e.removeLocked(oldID)
	e.removeLocked(confirmed.EntityID())
	e.putLocked(confirmed, StateConfirmed, rev, nil)
}

// ApplySnapshot atomically replaces the confirmed set for the topic.
// Optimistic pending and failed entities absent from the snapshot survive
// the replacement; the store write may simply not have been observed by
// the snapshot query yet.
func (e *Engine[E]) ApplySnapshot(entities []E) {
	now := time.Now()
	e.mu.Lock()
	kept := make(map[string]*Versioned[E])
	for id, rec := range e.records {
		if rec.State == StatePending || rec.State == StateFailed {
			kept[id] = rec
		}
	}
	e.records = make(map[string]*Versioned[E], len(entities)+len(kept))
	e.tokens = make(map[string]string)
	e.order = btree.NewG[E](8, btree.LessFunc[E](e.opt.Less))
	rev := Revision{Source: FromSnapshot, At: now}
	for _, entity := range entities {
		if !e.match(entity) {
			continue
		}
		// a snapshot row that echoes a pending token confirms that write
		if tok := entity.ClientToken(); tok != "" {
			for id, rec := range kept {
				if rec.Entity.ClientToken() == tok {
					delete(kept, id)
					break
				}
			}
		}
		e.putLocked(entity, StateConfirmed, rev, nil)
	}
	for _, rec := range kept {
		e.putLocked(rec.Entity, rec.State, rec.Rev, rec.Err)
	}
	e.status = Status{}
	v := e.viewLocked()
	e.mu.Unlock()
	metrics.Inc("sync_snapshot_applied")
	e.publish(v)
}

// ApplyInsert handles a live insert event. If the entity supersedes a
// pending optimistic one (matched by client token or the correlation
// heuristic) that entity is replaced in place; otherwise the entity is
// added in commit order.
func (e *Engine[E]) ApplyInsert(entity E) {
	rev := Revision{Source: FromLive, At: time.Now()}
	e.mu.Lock()
	id := entity.EntityID()
	if !e.match(entity) {
		e.removeLocked(id)
		v := e.viewLocked()
		e.mu.Unlock()
		e.publish(v)
		return
	}
	if tok := entity.ClientToken(); tok != "" {
		if pendingID, ok := e.tokens[tok]; ok {
			e.replaceLocked(pendingID, entity, rev)
			v := e.viewLocked()
			e.mu.Unlock()
			e.publish(v)
			return
		}
	}
	if e.opt.Correlate != nil {
		for pid, rec := range e.records {
			if rec.State != StatePending {
				continue
			}
			if e.opt.Correlate(rec.Entity, entity) {
				e.replaceLocked(pid, entity, rev)
				v := e.viewLocked()
				e.mu.Unlock()
				e.publish(v)
				return
			}
		}
	}
	// at-least-once delivery: an already known id is just a newer value
	e.putLocked(entity, StateConfirmed, rev, nil)
	v := e.viewLocked()
	e.mu.Unlock()
	metrics.Inc("sync_live_insert")
	e.publish(v)
}

// ApplyUpdate replaces the confirmed value at the same identity, and
// no-ops when the identity is unknown (a snapshot is owed and expected).
func (e *Engine[E]) ApplyUpdate(entity E) {
	e.mu.Lock()
	id := entity.EntityID()
	if _, known := e.records[id]; !known {
		e.mu.Unlock()
		return
	}
	if !e.match(entity) {
		e.removeLocked(id)
	} else {
		e.putLocked(entity, StateConfirmed, Revision{Source: FromLive, At: time.Now()}, nil)
	}
	v := e.viewLocked()
	e.mu.Unlock()
	e.publish(v)
}

// ApplyDelete removes the entity from the visible sequence.
func (e *Engine[E]) ApplyDelete(id string) {
	e.mu.Lock()
	if _, ok := e.records[id]; !ok {
		e.mu.Unlock()
		return
	}
	e.removeLocked(id)
	v := e.viewLocked()
	e.mu.Unlock()
	e.publish(v)
}

// BeginWrite inserts an optimistic pending entity at its sort position so
// the UI reflects the action immediately.
func (e *Engine[E]) BeginWrite(temp E) {
	e.mu.Lock()
	e.putLocked(temp, StatePending, Revision{Source: FromLocal, At: time.Now()}, nil)
	v := e.viewLocked()
	e.mu.Unlock()
	metrics.Inc("sync_write_started")
	e.publish(v)
}

// ConfirmWrite replaces the pending temp entity with the server-confirmed
// one in place. It tolerates the live insert having arrived first.
func (e *Engine[E]) ConfirmWrite(tempID string, confirmed E) {
	rev := Revision{Source: FromLive, At: time.Now()}
	e.mu.Lock()
	if _, ok := e.records[tempID]; ok {
		e.replaceLocked(tempID, confirmed, rev)
	} else if _, ok := e.records[confirmed.EntityID()]; !ok {
		e.putLocked(confirmed, StateConfirmed, rev, nil)
	}
	v := e.viewLocked()
	e.mu.Unlock()
	metrics.Inc("sync_write_confirmed")
	e.publish(v)
}

// FailWrite marks the pending entity failed. It remains visible, with the
// rejection attached, until retried or dismissed; no user action is
// silently lost.
func (e *Engine[E]) FailWrite(tempID string, cause error) {
	e.mu.Lock()
	rec, ok := e.records[tempID]
	if !ok || rec.State != StatePending {
		e.mu.Unlock()
		return
	}
	rec.State = StateFailed
	rec.Err = cause
	if tok := rec.Entity.ClientToken(); tok != "" {
		delete(e.tokens, tok)
	}
	v := e.viewLocked()
	e.mu.Unlock()
	metrics.Inc("sync_write_failed")
	e.publish(v)
}

// RetryWrite flips a failed entity back to pending ahead of a new persist
// attempt.
func (e *Engine[E]) RetryWrite(tempID string) bool {
	e.mu.Lock()
	rec, ok := e.records[tempID]
	if !ok || rec.State != StateFailed {
		e.mu.Unlock()
		return false
	}
	rec.State = StatePending
	rec.Err = nil
	if tok := rec.Entity.ClientToken(); tok != "" {
		e.tokens[tok] = tempID
	}
	v := e.viewLocked()
	e.mu.Unlock()
	e.publish(v)
	return true
}

// Dismiss removes a failed optimistic entity on user request.
func (e *Engine[E]) Dismiss(tempID string) {
	e.mu.Lock()
	if rec, ok := e.records[tempID]; !ok || rec.State != StateFailed {
		e.mu.Unlock()
		return
	}
	e.removeLocked(tempID)
	v := e.viewLocked()
	e.mu.Unlock()
	e.publish(v)
}

// SetStatus updates the loading/error flag without touching entities.
func (e *Engine[E]) SetStatus(loading bool, err error) {
	e.mu.Lock()
	e.status = Status{Loading: loading, Err: err}
	v := e.viewLocked()
	e.mu.Unlock()
	e.publish(v)
}
