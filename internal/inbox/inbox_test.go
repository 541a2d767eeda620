package inbox

import (
	"testing"
	"time"

	"github.com/wappzakelijk/console/internal/domain"
)

func strptr(s string) *string { return &s }

func TestConversationOrdering(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	older := base.Add(-time.Hour)

	a := domain.Conversation{ID: "a", CreatedAt: older, LastMessageAt: &base}
	b := domain.Conversation{ID: "b", CreatedAt: older}
	c := domain.Conversation{ID: "c", CreatedAt: older, LastMessageAt: &base}

	// most recent activity first
	if !conversationLess(a, b) {
		t.Fatal("conversation with a newer message must sort first")
	}
	// identical activity falls back to the identity tie-break
	if !conversationLess(a, c) || conversationLess(c, a) {
		t.Fatal("equal-activity ordering must be a deterministic total order")
	}
}

func TestMessageOrdering(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	a := domain.Message{ID: "a", CreatedAt: base}
	b := domain.Message{ID: "b", CreatedAt: base.Add(time.Second)}
	c := domain.Message{ID: "c", CreatedAt: base}

	if !messageLess(a, b) || messageLess(b, a) {
		t.Fatal("messages must sort chronologically")
	}
	if !messageLess(a, c) || messageLess(c, a) {
		t.Fatal("same-instant messages must tie-break by identity")
	}
}

func TestCorrelateMessages(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	pending := domain.Message{
		ID:        "tmp:1",
		Direction: domain.DirectionOutbound,
		Content:   strptr("hallo"),
		Token:     "tok-1",
		CreatedAt: base,
	}

	match := domain.Message{
		ID:        "m1",
		Direction: domain.DirectionOutbound,
		Content:   strptr("hallo"),
		CreatedAt: base.Add(5 * time.Second),
	}
	if !correlateMessages(pending, match) {
		t.Fatal("same content within the window must correlate")
	}

	// a token-carrying event uses the token path, never the heuristic
	withToken := match
	withToken.Token = "tok-2"
	if correlateMessages(pending, withToken) {
		t.Fatal("token-carrying events must not use the content heuristic")
	}

	inbound := match
	inbound.Direction = domain.DirectionInbound
	if correlateMessages(pending, inbound) {
		t.Fatal("inbound messages must never correlate with outbound drafts")
	}

	different := match
	different.Content = strptr("iets anders")
	if correlateMessages(pending, different) {
		t.Fatal("different content must not correlate")
	}

	late := match
	late.CreatedAt = base.Add(correlationWindow + time.Minute)
	if correlateMessages(pending, late) {
		t.Fatal("events outside the correlation window must not correlate")
	}
}

func TestSetFilterRejectsUnknownValues(t *testing.T) {
	s := NewService("company-1", nil, nil, nil)
	err := s.SetFilter(nil, "archived")
	if err == nil {
		t.Fatal("unknown filter value must be rejected")
	}
}

func TestThreadSendRejectsEmptyContent(t *testing.T) {
	th := &Thread{conversationID: "c1", drafts: map[string]domain.Message{}}
	if _, err := th.Send(nil, "   "); err == nil {
		t.Fatal("blank message must be rejected before any write starts")
	}
}
