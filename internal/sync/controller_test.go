package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"testing"
	"time"
)

type fakeSub struct {
	closed func()
}

func (s *fakeSub) Close() error {
	if s.closed != nil {
		s.closed()
	}
	return nil
}

// fakeSource hands the test direct control of the subscription handler
// and drop callback.
type fakeSource struct {
	mu         stdsync.Mutex
	subscribes int
	failNext   int
	handler    Handler
	onDrop     func(error)
}

func (f *fakeSource) Subscribe(topic Topic, h Handler, onDrop func(error)) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribes++
	if f.failNext > 0 {
		f.failNext--
		return nil, errors.New("broker unavailable")
	}
	f.handler = h
	f.onDrop = onDrop
	return &fakeSub{}, nil
}

func (f *fakeSource) emit(ev ChangeEvent) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func (f *fakeSource) drop(err error) {
	f.mu.Lock()
	cb := f.onDrop
	f.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

func (f *fakeSource) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.subscribes
}

type fakeLoader struct {
	mu    stdsync.Mutex
	calls int
	notes []note
	err   error
}

func (l *fakeLoader) load(ctx context.Context) ([]note, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return nil, l.err
	}
	out := make([]note, len(l.notes))
	copy(out, l.notes)
	return out, nil
}

func (l *fakeLoader) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

func noteEvent(op Op, n note) ChangeEvent {
	body, _ := codec.Marshal(n)
	return ChangeEvent{
		Topic: Topic{Kind: "notes"},
		Op:    op,
		ID:    n.ID,
		Token: n.Token,
		Body:  body,
		At:    time.Now(),
	}
}

func waitForIDs(t *testing.T, e *Engine[note], want ...string) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		got := viewIDs(e.CurrentView())
		if len(got) == len(want) {
			match := true
			for i := range want {
				if got[i] != want[i] {
					match = false
					break
				}
			}
			if match {
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("view ids = %v, want %v", viewIDs(e.CurrentView()), want)
}

func TestControllerOpenLoadsSnapshot(t *testing.T) {
	source := &fakeSource{}
	loader := &fakeLoader{notes: []note{{ID: "a", At: ts(1)}}}
	ctrl := NewController[note](newNoteEngine(t, Options[note]{}), loader.load, source)
	defer ctrl.Close()

	if err := ctrl.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	assertIDs(t, ctrl.Engine().CurrentView(), "a")
	if source.subscribeCount() != 1 {
		t.Fatalf("subscribes = %d, want 1", source.subscribeCount())
	}
}

func TestControllerAppliesLiveEvents(t *testing.T) {
	source := &fakeSource{}
	loader := &fakeLoader{notes: []note{{ID: "a", At: ts(1)}}}
	ctrl := NewController[note](newNoteEngine(t, Options[note]{}), loader.load, source)
	defer ctrl.Close()

	if err := ctrl.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}

	source.emit(noteEvent(OpInsert, note{ID: "b", At: ts(2)}))
	waitForIDs(t, ctrl.Engine(), "a", "b")

	source.emit(noteEvent(OpUpdate, note{ID: "a", At: ts(9)}))
	waitForIDs(t, ctrl.Engine(), "b", "a")

	source.emit(noteEvent(OpDelete, note{ID: "b"}))
	waitForIDs(t, ctrl.Engine(), "a")
}

func TestControllerLoaderErrorSetsStatus(t *testing.T) {
	source := &fakeSource{}
	loader := &fakeLoader{err: errors.New("connection refused")}
	ctrl := NewController[note](newNoteEngine(t, Options[note]{}), loader.load, source)
	defer ctrl.Close()

	if err := ctrl.Open(context.Background()); err == nil {
		t.Fatal("open must surface the snapshot failure")
	}

	v := ctrl.Engine().CurrentView()
	if !IsTransport(v.Status.Err) {
		t.Fatalf("status error = %v, want transport", v.Status.Err)
	}

	// recovery: the loader works again and an explicit refresh clears it
	loader.mu.Lock()
	loader.err = nil
	loader.notes = []note{{ID: "a", At: ts(1)}}
	loader.mu.Unlock()
	if err := ctrl.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	v = ctrl.Engine().CurrentView()
	assertIDs(t, v, "a")
	if v.Status.Err != nil {
		t.Fatalf("status error not cleared: %v", v.Status.Err)
	}
}

func TestControllerResubscribesAfterDrop(t *testing.T) {
	source := &fakeSource{}
	loader := &fakeLoader{notes: []note{{ID: "a", At: ts(1)}}}
	ctrl := NewController[note](newNoteEngine(t, Options[note]{}), loader.load, source)
	defer ctrl.Close()

	if err := ctrl.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	callsBefore := loader.callCount()

	loader.mu.Lock()
	loader.notes = []note{{ID: "a", At: ts(1)}, {ID: "missed", At: ts(2)}}
	loader.mu.Unlock()
	source.drop(ErrSubscriptionDropped)

	// the dropped subscription forces a resubscribe and a fresh snapshot
	// covering the gap
	waitForIDs(t, ctrl.Engine(), "a", "missed")
	if source.subscribeCount() != 2 {
		t.Fatalf("subscribes = %d, want 2", source.subscribeCount())
	}
	if loader.callCount() != callsBefore+1 {
		t.Fatalf("loader calls = %d, want %d", loader.callCount(), callsBefore+1)
	}
}

func TestControllerDiscardsEventsAfterClose(t *testing.T) {
	source := &fakeSource{}
	loader := &fakeLoader{notes: []note{{ID: "a", At: ts(1)}}}
	ctrl := NewController[note](newNoteEngine(t, Options[note]{}), loader.load, source)

	if err := ctrl.Open(context.Background()); err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := ctrl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := ctrl.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}

	// the old handler reference may still fire; its epoch is stale
	source.emit(noteEvent(OpInsert, note{ID: "late", At: ts(9)}))
	time.Sleep(50 * time.Millisecond)
	assertIDs(t, ctrl.Engine().CurrentView(), "a")
}

func TestControllerOpenAfterCloseRejected(t *testing.T) {
	source := &fakeSource{}
	loader := &fakeLoader{}
	ctrl := NewController[note](newNoteEngine(t, Options[note]{}), loader.load, source)
	if err := ctrl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := ctrl.Open(context.Background()); err != ErrClosed {
		t.Fatalf("open after close = %v, want ErrClosed", err)
	}
}
