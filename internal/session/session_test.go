package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mohammad-safakhou/newsrag/models"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return New(client), mr
}

func TestCreateReturnsUniqueUUIDs(t *testing.T) {
	s, _ := newTestStore(t)
	a, b := s.Create(), s.Create()
	if _, err := uuid.Parse(a); err != nil {
		t.Fatalf("not a uuid: %q", a)
	}
	if a == b {
		t.Fatalf("expected distinct session ids, got %q twice", a)
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	id := s.Create()

	history := []models.ChatTurn{
		{Sender: models.SenderUser, Text: "what happened today?"},
		{Sender: models.SenderBot, Text: "several things."},
	}
	if err := s.Put(ctx, id, history, time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 2 || got[0] != history[0] || got[1] != history[1] {
		t.Fatalf("round trip mismatch: %+v", got)
	}
}

func TestGetMissingSessionIsEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	got, err := s.Get(context.Background(), "never-written")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty history, got %+v", got)
	}
}

func TestClearThenGetIsEmpty(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	id := s.Create()

	if err := s.Put(ctx, id, []models.ChatTurn{{Sender: models.SenderUser, Text: "hi"}}, time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Clear(ctx, id); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty history after clear, got %+v", got)
	}
}

func TestHistoryExpiresAfterTTL(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	id := s.Create()

	if err := s.Put(ctx, id, []models.ChatTurn{{Sender: models.SenderUser, Text: "hi"}}, 60*time.Second); err != nil {
		t.Fatalf("Put: %v", err)
	}
	mr.FastForward(61 * time.Second)

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected expired history to read empty, got %+v", got)
	}
}

func TestPutResetsTTL(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()
	id := s.Create()

	if err := s.Put(ctx, id, []models.ChatTurn{{Sender: models.SenderUser, Text: "one"}}, 60*time.Second); err != nil {
		t.Fatalf("Put: %v", err)
	}
	mr.FastForward(40 * time.Second)
	if err := s.Put(ctx, id, []models.ChatTurn{{Sender: models.SenderUser, Text: "two"}}, 60*time.Second); err != nil {
		t.Fatalf("Put: %v", err)
	}
	mr.FastForward(40 * time.Second)

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 1 || got[0].Text != "two" {
		t.Fatalf("expected rewritten history to survive, got %+v", got)
	}
}

func TestAppendBuildsOrderedHistory(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	id := s.Create()

	if err := s.Append(ctx, id, time.Hour,
		models.ChatTurn{Sender: models.SenderUser, Text: "q1"},
		models.ChatTurn{Sender: models.SenderBot, Text: "a1"},
	); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(ctx, id, time.Hour,
		models.ChatTurn{Sender: models.SenderUser, Text: "q2"},
		models.ChatTurn{Sender: models.SenderBot, Text: "a2"},
	); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got, err := s.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := []string{"q1", "a1", "q2", "a2"}
	if len(got) != len(want) {
		t.Fatalf("expected %d turns, got %d", len(want), len(got))
	}
	for i, text := range want {
		if got[i].Text != text {
			t.Fatalf("turn %d: expected %q, got %q", i, text, got[i].Text)
		}
	}
}
