package sync

import (
	"errors"
	"testing"
	"time"
)

type note struct {
	ID    string    `json:"id"`
	Token string    `json:"token,omitempty"`
	Text  string    `json:"text"`
	At    time.Time `json:"at"`
}

func (n note) EntityID() string    { return n.ID }
func (n note) ClientToken() string { return n.Token }

func noteLess(a, b note) bool {
	if !a.At.Equal(b.At) {
		return a.At.Before(b.At)
	}
	return a.ID < b.ID
}

func newNoteEngine(t *testing.T, opt Options[note]) *Engine[note] {
	t.Helper()
	if opt.Less == nil {
		opt.Less = noteLess
	}
	return NewEngine[note](Topic{Kind: "notes"}, opt)
}

func viewIDs(v View[note]) []string {
	out := make([]string, 0, len(v.Entities))
	for _, rec := range v.Entities {
		out = append(out, rec.Entity.ID)
	}
	return out
}

func assertIDs(t *testing.T, v View[note], want ...string) {
	t.Helper()
	got := viewIDs(v)
	if len(got) != len(want) {
		t.Fatalf("view ids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("view ids = %v, want %v", got, want)
		}
	}
}

func ts(sec int) time.Time {
	return time.Date(2025, 6, 1, 12, 0, sec, 0, time.UTC)
}

func TestEngineSnapshotOrdering(t *testing.T) {
	e := newNoteEngine(t, Options[note]{})

	e.ApplySnapshot([]note{
		{ID: "b", At: ts(2)},
		{ID: "a", At: ts(1)},
		{ID: "c", At: ts(2)},
	})

	v := e.CurrentView()
	assertIDs(t, v, "a", "b", "c")
	if v.Status.Loading || v.Status.Err != nil {
		t.Fatalf("snapshot did not clear status: %+v", v.Status)
	}
	for _, rec := range v.Entities {
		if rec.State != StateConfirmed {
			t.Fatalf("entity %s state = %s, want confirmed", rec.Entity.ID, rec.State)
		}
	}
}

func TestEngineSnapshotReplacesConfirmed(t *testing.T) {
	e := newNoteEngine(t, Options[note]{})
	e.ApplySnapshot([]note{{ID: "a", At: ts(1)}, {ID: "b", At: ts(2)}})
	e.ApplySnapshot([]note{{ID: "b", At: ts(2)}, {ID: "c", At: ts(3)}})
	assertIDs(t, e.CurrentView(), "b", "c")
}

func TestEnginePendingSurvivesSnapshot(t *testing.T) {
	e := newNoteEngine(t, Options[note]{})
	e.BeginWrite(note{ID: "tmp:1", Token: "tok-1", Text: "hallo", At: ts(5)})

	e.ApplySnapshot([]note{{ID: "a", At: ts(1)}})

	v := e.CurrentView()
	assertIDs(t, v, "a", "tmp:1")
	if v.Entities[1].State != StatePending {
		t.Fatalf("optimistic entity state = %s, want pending", v.Entities[1].State)
	}
}

func TestEngineSnapshotConsumesEchoedToken(t *testing.T) {
	e := newNoteEngine(t, Options[note]{})
	e.BeginWrite(note{ID: "tmp:1", Token: "tok-1", Text: "hallo", At: ts(5)})

	// the store observed the write before the snapshot query ran
	e.ApplySnapshot([]note{{ID: "m1", Token: "tok-1", Text: "hallo", At: ts(5)}})

	v := e.CurrentView()
	assertIDs(t, v, "m1")
	if v.Entities[0].State != StateConfirmed {
		t.Fatalf("state = %s, want confirmed", v.Entities[0].State)
	}
}

func TestEngineInsertCorrelatesByToken(t *testing.T) {
	e := newNoteEngine(t, Options[note]{})
	e.BeginWrite(note{ID: "tmp:1", Token: "tok-1", Text: "hallo", At: ts(5)})

	e.ApplyInsert(note{ID: "m1", Token: "tok-1", Text: "hallo", At: ts(6)})

	v := e.CurrentView()
	assertIDs(t, v, "m1")
	if v.Entities[0].State != StateConfirmed {
		t.Fatalf("state = %s, want confirmed", v.Entities[0].State)
	}
}

func TestEngineInsertCorrelatesByHeuristic(t *testing.T) {
	e := newNoteEngine(t, Options[note]{
		Correlate: func(pending, incoming note) bool {
			return pending.Text == incoming.Text
		},
	})
	e.BeginWrite(note{ID: "tmp:1", Token: "tok-1", Text: "hallo", At: ts(5)})

	// confirmed counterpart arrives without the token echoed
	e.ApplyInsert(note{ID: "m1", Text: "hallo", At: ts(6)})

	assertIDs(t, e.CurrentView(), "m1")
}

func TestEngineInsertWithoutMatchAppends(t *testing.T) {
	e := newNoteEngine(t, Options[note]{})
	e.BeginWrite(note{ID: "tmp:1", Token: "tok-1", Text: "hallo", At: ts(5)})

	// unrelated inbound entity must not consume the pending one
	e.ApplyInsert(note{ID: "m2", Text: "iets anders", At: ts(6)})

	assertIDs(t, e.CurrentView(), "tmp:1", "m2")
}

func TestEngineDuplicateInsertIsIdempotent(t *testing.T) {
	e := newNoteEngine(t, Options[note]{})
	e.ApplySnapshot(nil)

	ev := note{ID: "m1", Text: "hallo", At: ts(1)}
	e.ApplyInsert(ev)
	e.ApplyInsert(ev) // at-least-once redelivery

	assertIDs(t, e.CurrentView(), "m1")
}

func TestEngineUpdateUnknownIsNoop(t *testing.T) {
	e := newNoteEngine(t, Options[note]{})
	e.ApplySnapshot([]note{{ID: "a", At: ts(1)}})

	e.ApplyUpdate(note{ID: "ghost", At: ts(2)})

	assertIDs(t, e.CurrentView(), "a")
}

func TestEngineUpdateOutOfFilterRemoves(t *testing.T) {
	e := newNoteEngine(t, Options[note]{
		Match: func(n note) bool { return n.Text != "closed" },
	})
	e.ApplySnapshot([]note{{ID: "a", Text: "open", At: ts(1)}, {ID: "b", Text: "open", At: ts(2)}})

	e.ApplyUpdate(note{ID: "a", Text: "closed", At: ts(1)})

	assertIDs(t, e.CurrentView(), "b")
}

func TestEngineUpdateReordersEntity(t *testing.T) {
	e := newNoteEngine(t, Options[note]{})
	e.ApplySnapshot([]note{{ID: "a", At: ts(1)}, {ID: "b", At: ts(2)}})

	e.ApplyUpdate(note{ID: "a", At: ts(9)})

	assertIDs(t, e.CurrentView(), "b", "a")
}

func TestEngineDelete(t *testing.T) {
	e := newNoteEngine(t, Options[note]{})
	e.ApplySnapshot([]note{{ID: "a", At: ts(1)}, {ID: "b", At: ts(2)}})

	e.ApplyDelete("a")
	e.ApplyDelete("a") // redelivered

	assertIDs(t, e.CurrentView(), "b")
}

func TestEngineConfirmWriteInPlace(t *testing.T) {
	e := newNoteEngine(t, Options[note]{})
	e.BeginWrite(note{ID: "tmp:1", Token: "tok-1", Text: "hallo", At: ts(5)})

	e.ConfirmWrite("tmp:1", note{ID: "m1", Token: "tok-1", Text: "hallo", At: ts(5)})

	v := e.CurrentView()
	assertIDs(t, v, "m1")
	if v.Entities[0].State != StateConfirmed {
		t.Fatalf("state = %s, want confirmed", v.Entities[0].State)
	}
}

func TestEngineConfirmWriteAfterLiveInsert(t *testing.T) {
	e := newNoteEngine(t, Options[note]{})
	e.BeginWrite(note{ID: "tmp:1", Token: "tok-1", Text: "hallo", At: ts(5)})

	// the change event raced ahead of the write response
	e.ApplyInsert(note{ID: "m1", Token: "tok-1", Text: "hallo", At: ts(5)})
	e.ConfirmWrite("tmp:1", note{ID: "m1", Token: "tok-1", Text: "hallo", At: ts(5)})

	assertIDs(t, e.CurrentView(), "m1")
}

func TestEngineFailedWriteStaysVisible(t *testing.T) {
	e := newNoteEngine(t, Options[note]{})
	e.ApplySnapshot([]note{{ID: "a", At: ts(1)}})
	e.BeginWrite(note{ID: "tmp:1", Token: "tok-1", Text: "hallo", At: ts(5)})

	cause := errors.New("rejected")
	e.FailWrite("tmp:1", cause)

	v := e.CurrentView()
	assertIDs(t, v, "a", "tmp:1")
	rec := v.Entities[1]
	if rec.State != StateFailed {
		t.Fatalf("state = %s, want failed", rec.State)
	}
	if rec.Err == nil {
		t.Fatal("failed entity lost its cause")
	}
}

func TestEngineFailedWriteSurvivesSnapshot(t *testing.T) {
	e := newNoteEngine(t, Options[note]{})
	e.BeginWrite(note{ID: "tmp:1", Token: "tok-1", Text: "hallo", At: ts(5)})
	e.FailWrite("tmp:1", errors.New("rejected"))

	e.ApplySnapshot([]note{{ID: "a", At: ts(1)}})

	v := e.CurrentView()
	assertIDs(t, v, "a", "tmp:1")
	if v.Entities[1].State != StateFailed {
		t.Fatalf("state = %s, want failed", v.Entities[1].State)
	}
}

func TestEngineRetryAndDismiss(t *testing.T) {
	e := newNoteEngine(t, Options[note]{})
	e.BeginWrite(note{ID: "tmp:1", Token: "tok-1", Text: "hallo", At: ts(5)})

	if e.RetryWrite("tmp:1") {
		t.Fatal("retry must be rejected while the write is still pending")
	}
	e.FailWrite("tmp:1", errors.New("rejected"))
	if !e.RetryWrite("tmp:1") {
		t.Fatal("retry of a failed write must succeed")
	}
	if got := e.CurrentView().Entities[0].State; got != StatePending {
		t.Fatalf("state after retry = %s, want pending", got)
	}

	e.FailWrite("tmp:1", errors.New("rejected again"))
	e.Dismiss("tmp:1")
	assertIDs(t, e.CurrentView())
}

func TestEngineDismissIgnoresPending(t *testing.T) {
	e := newNoteEngine(t, Options[note]{})
	e.BeginWrite(note{ID: "tmp:1", Token: "tok-1", Text: "hallo", At: ts(5)})

	e.Dismiss("tmp:1")

	assertIDs(t, e.CurrentView(), "tmp:1")
}

func TestEngineSubscribePublishesTransitions(t *testing.T) {
	e := newNoteEngine(t, Options[note]{})

	var views []View[note]
	cancel := e.Subscribe(func(v View[note]) {
		views = append(views, v)
	})
	defer cancel()

	if len(views) != 1 {
		t.Fatalf("subscriber not called with initial view, calls = %d", len(views))
	}
	if !views[0].Status.Loading {
		t.Fatal("initial status must be loading")
	}

	e.ApplySnapshot([]note{{ID: "a", At: ts(1)}})
	e.ApplyInsert(note{ID: "b", At: ts(2)})

	if len(views) != 3 {
		t.Fatalf("subscriber calls = %d, want 3", len(views))
	}
	assertIDs(t, views[2], "a", "b")

	cancel()
	e.ApplyDelete("a")
	if len(views) != 3 {
		t.Fatal("cancelled subscriber still invoked")
	}
}

func TestEngineTransportErrorKeepsEntities(t *testing.T) {
	e := newNoteEngine(t, Options[note]{})
	e.ApplySnapshot([]note{{ID: "a", At: ts(1)}})

	e.SetStatus(false, NewTransportError("snapshot notes", errors.New("connection refused")))

	v := e.CurrentView()
	assertIDs(t, v, "a")
	if !IsTransport(v.Status.Err) {
		t.Fatalf("status error = %v, want transport", v.Status.Err)
	}
}
