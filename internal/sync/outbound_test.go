package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"testing"
	"time"
)

type fakePersister struct {
	mu    stdsync.Mutex
	calls int
	err   error
	gate  chan struct{} // when set, persist blocks until it is closed
}

func (p *fakePersister) persist(ctx context.Context, draft note) (note, error) {
	p.mu.Lock()
	gate := p.gate
	p.mu.Unlock()
	if gate != nil {
		<-gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return note{}, p.err
	}
	return note{ID: "m1", Token: draft.Token, Text: draft.Text, At: draft.At}, nil
}

func (p *fakePersister) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *fakePersister) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func TestCoordinatorSubmitConfirms(t *testing.T) {
	e := newNoteEngine(t, Options[note]{})
	e.ApplySnapshot(nil)
	gate := make(chan struct{})
	persister := &fakePersister{gate: gate}

	var confirmedID string
	var confirmMu stdsync.Mutex
	co := NewCoordinator[note](e, persister.persist, func(ctx context.Context, confirmed note) {
		confirmMu.Lock()
		confirmedID = confirmed.ID
		confirmMu.Unlock()
	})

	temp := note{ID: "tmp:1", Token: "tok-1", Text: "hallo", At: ts(5)}
	h := co.Submit(context.Background(), temp)

	// visible immediately, before persistence finishes
	if got := viewIDs(e.CurrentView()); len(got) != 1 || got[0] != "tmp:1" {
		t.Fatalf("optimistic entity not visible: %v", got)
	}
	if got := e.CurrentView().Entities[0].State; got != StatePending {
		t.Fatalf("state = %s, want pending", got)
	}
	close(gate)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	confirmed, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if confirmed.ID != "m1" {
		t.Fatalf("confirmed id = %s, want m1", confirmed.ID)
	}

	assertIDs(t, e.CurrentView(), "m1")
	confirmMu.Lock()
	defer confirmMu.Unlock()
	if confirmedID != "m1" {
		t.Fatalf("afterConfirm got %q, want m1", confirmedID)
	}
}

func TestCoordinatorFailureKeepsEntityVisible(t *testing.T) {
	e := newNoteEngine(t, Options[note]{})
	e.ApplySnapshot(nil)
	persister := &fakePersister{err: &WriteRejected{Reason: "blocked recipient"}}
	co := NewCoordinator[note](e, persister.persist, nil)

	temp := note{ID: "tmp:1", Token: "tok-1", Text: "hallo", At: ts(5)}
	h := co.Submit(context.Background(), temp)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := h.Wait(ctx); !IsWriteRejected(err) {
		t.Fatalf("wait error = %v, want write rejection", err)
	}

	v := e.CurrentView()
	assertIDs(t, v, "tmp:1")
	if v.Entities[0].State != StateFailed {
		t.Fatalf("state = %s, want failed", v.Entities[0].State)
	}
	if !IsWriteRejected(v.Entities[0].Err) {
		t.Fatalf("entity error = %v, want write rejection", v.Entities[0].Err)
	}
}

func TestCoordinatorRetryAfterFailure(t *testing.T) {
	e := newNoteEngine(t, Options[note]{})
	e.ApplySnapshot(nil)
	persister := &fakePersister{err: NewTransportError("create", errors.New("timeout"))}
	co := NewCoordinator[note](e, persister.persist, nil)

	temp := note{ID: "tmp:1", Token: "tok-1", Text: "hallo", At: ts(5)}
	h := co.Submit(context.Background(), temp)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := h.Wait(ctx); err == nil {
		t.Fatal("first attempt must fail")
	}

	// retry before the failure is cleared succeeds with the same identity
	persister.setErr(nil)
	h2, ok := co.Retry(context.Background(), temp)
	if !ok {
		t.Fatal("retry rejected for a failed write")
	}
	confirmed, err := h2.Wait(ctx)
	if err != nil {
		t.Fatalf("retry wait: %v", err)
	}
	if confirmed.Token != "tok-1" {
		t.Fatalf("retry lost the client token: %q", confirmed.Token)
	}
	assertIDs(t, e.CurrentView(), "m1")
	if persister.callCount() != 2 {
		t.Fatalf("persist calls = %d, want 2", persister.callCount())
	}
}

func TestCoordinatorRetryRequiresFailedState(t *testing.T) {
	e := newNoteEngine(t, Options[note]{})
	persister := &fakePersister{}
	co := NewCoordinator[note](e, persister.persist, nil)

	if _, ok := co.Retry(context.Background(), note{ID: "tmp:ghost"}); ok {
		t.Fatal("retry of an unknown entity must be rejected")
	}
}

func TestCoordinatorDiscard(t *testing.T) {
	e := newNoteEngine(t, Options[note]{})
	e.ApplySnapshot(nil)
	persister := &fakePersister{err: &WriteRejected{Reason: "blocked"}}
	co := NewCoordinator[note](e, persister.persist, nil)

	temp := note{ID: "tmp:1", Token: "tok-1", Text: "hallo", At: ts(5)}
	h := co.Submit(context.Background(), temp)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, _ = h.Wait(ctx)

	co.Discard("tmp:1")
	assertIDs(t, e.CurrentView())
}

func TestCoordinatorDetachedFromRequestContext(t *testing.T) {
	e := newNoteEngine(t, Options[note]{})
	e.ApplySnapshot(nil)
	persister := &fakePersister{}
	co := NewCoordinator[note](e, persister.persist, nil)

	reqCtx, cancelReq := context.WithCancel(context.Background())
	temp := note{ID: "tmp:1", Token: "tok-1", Text: "hallo", At: ts(5)}
	h := co.Submit(reqCtx, temp)
	cancelReq() // the submitting request aborts immediately

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	confirmed, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if confirmed.ID != "m1" {
		t.Fatalf("confirmed id = %s, want m1", confirmed.ID)
	}
}
