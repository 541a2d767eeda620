package sync

import (
	"testing"
	"time"
)

func TestBusFeedRoutesByTopic(t *testing.T) {
	feed := NewBusFeed()

	var got []ChangeEvent
	sub, err := feed.Subscribe(Topic{Kind: "messages", Scope: "c1"}, func(ev ChangeEvent) {
		got = append(got, ev)
	}, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	feed.Publish(ChangeEvent{Topic: Topic{Kind: "messages", Scope: "c1"}, Op: OpInsert, ID: "m1", At: time.Now()})
	feed.Publish(ChangeEvent{Topic: Topic{Kind: "messages", Scope: "c2"}, Op: OpInsert, ID: "m2", At: time.Now()})
	feed.Publish(ChangeEvent{Topic: Topic{Kind: "conversations"}, Op: OpUpdate, ID: "c1", At: time.Now()})

	if len(got) != 1 {
		t.Fatalf("received %d events, want 1", len(got))
	}
	if got[0].ID != "m1" {
		t.Fatalf("received event %s, want m1", got[0].ID)
	}
}

func TestBusFeedCloseStopsDelivery(t *testing.T) {
	feed := NewBusFeed()

	var got int
	sub, err := feed.Subscribe(Topic{Kind: "contacts"}, func(ev ChangeEvent) {
		got++
	}, nil)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	feed.Publish(ChangeEvent{Topic: Topic{Kind: "contacts"}, Op: OpInsert, ID: "p1"})
	if err := sub.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
	feed.Publish(ChangeEvent{Topic: Topic{Kind: "contacts"}, Op: OpInsert, ID: "p2"})

	if got != 1 {
		t.Fatalf("received %d events, want 1", got)
	}
}

func TestTeePublisherFansOut(t *testing.T) {
	a := NewBusFeed()
	b := NewBusFeed()

	var fromA, fromB int
	subA, _ := a.Subscribe(Topic{Kind: "contacts"}, func(ChangeEvent) { fromA++ }, nil)
	defer subA.Close()
	subB, _ := b.Subscribe(Topic{Kind: "contacts"}, func(ChangeEvent) { fromB++ }, nil)
	defer subB.Close()

	Tee(a, b).Publish(ChangeEvent{Topic: Topic{Kind: "contacts"}, Op: OpInsert, ID: "p1"})

	if fromA != 1 || fromB != 1 {
		t.Fatalf("fan-out delivered a=%d b=%d, want 1/1", fromA, fromB)
	}
}

func TestTopicKeys(t *testing.T) {
	all := Topic{Kind: "conversations"}
	if all.Key() != "conversations" {
		t.Fatalf("key = %s", all.Key())
	}
	if all.RoutingKey() != "conversations.all" {
		t.Fatalf("routing key = %s", all.RoutingKey())
	}

	scoped := Topic{Kind: "messages", Scope: "c1"}
	if scoped.Key() != "messages:c1" {
		t.Fatalf("key = %s", scoped.Key())
	}
	if scoped.RoutingKey() != "messages.c1" {
		t.Fatalf("routing key = %s", scoped.RoutingKey())
	}
}
