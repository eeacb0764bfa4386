package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pearlgull/pearlgull/internal/schema"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestThreadLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	th, err := s.CreateThread(ctx, "", "planning chat")
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if th.ID == "" {
		t.Fatal("expected generated id")
	}

	got, err := s.GetThread(ctx, th.ID)
	if err != nil {
		t.Fatalf("GetThread: %v", err)
	}
	if got.Title != "planning chat" {
		t.Errorf("title = %q", got.Title)
	}

	if _, err := s.GetThread(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetThread(missing) = %v, want ErrNotFound", err)
	}

	// EnsureThread creates on first sight, returns the same row after.
	en, err := s.EnsureThread(ctx, "fixed-id")
	if err != nil {
		t.Fatalf("EnsureThread: %v", err)
	}
	again, err := s.EnsureThread(ctx, "fixed-id")
	if err != nil {
		t.Fatalf("EnsureThread second call: %v", err)
	}
	if en.ID != again.ID || en.CreatedAt != again.CreatedAt {
		t.Error("EnsureThread should be idempotent")
	}

	threads, err := s.ListThreads(ctx)
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(threads) != 2 {
		t.Errorf("ListThreads = %d threads, want 2", len(threads))
	}
}

func TestMessageLogOrdering(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	th, err := s.CreateThread(ctx, "t1", "")
	if err != nil {
		t.Fatal(err)
	}

	for i, content := range []string{"first", "second", "third"} {
		role := schema.RoleUser
		if i%2 == 1 {
			role = schema.RoleAssistant
		}
		if _, err := s.AppendMessage(ctx, th.ID, role, content); err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}
	}

	msgs, err := s.Messages(ctx, th.ID, 0)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	for i, m := range msgs {
		if m.Seq != int64(i+1) {
			t.Errorf("message %d has seq %d", i, m.Seq)
		}
	}

	tail, err := s.Messages(ctx, th.ID, 2)
	if err != nil {
		t.Fatalf("Messages(limit): %v", err)
	}
	if len(tail) != 2 || tail[0].Content != "second" || tail[1].Content != "third" {
		t.Errorf("tail = %+v, want last two in order", tail)
	}
}

func TestTierMarksHidePromotedPrefix(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	th, err := s.CreateThread(ctx, "t1", "")
	if err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"p1", "p2", "p3"} {
		p := schema.Pair{ID: id, UserText: "u", AssistantText: "a", Tokens: 2, CreatedAt: time.Now()}
		if err := s.AppendPair(ctx, th.ID, p); err != nil {
			t.Fatalf("AppendPair: %v", err)
		}
	}

	if err := s.MarkPairsPromoted(ctx, th.ID, 2); err != nil {
		t.Fatalf("MarkPairsPromoted: %v", err)
	}

	active, err := s.ActivePairs(ctx, th.ID)
	if err != nil {
		t.Fatalf("ActivePairs: %v", err)
	}
	if len(active) != 1 || active[0].ID != "p3" {
		t.Errorf("active = %+v, want only p3", active)
	}

	state, err := s.MemoryState(ctx, th.ID)
	if err != nil {
		t.Fatalf("MemoryState: %v", err)
	}
	if state.L1Promoted != 2 {
		t.Errorf("L1Promoted = %d, want 2", state.L1Promoted)
	}

	// Marks accumulate across calls.
	if err := s.MarkPairsPromoted(ctx, th.ID, 1); err != nil {
		t.Fatal(err)
	}
	active, err = s.ActivePairs(ctx, th.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(active) != 0 {
		t.Errorf("active = %d pairs after full promotion, want 0", len(active))
	}
}

func TestThesisRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	th, err := s.CreateThread(ctx, "t1", "")
	if err != nil {
		t.Fatal(err)
	}

	in := schema.Thesis{
		ID:            "th-1",
		SourcePairIDs: []string{"p1", "p2"},
		Summary:       "they planned a trip",
		Tokens:        5,
		CreatedAt:     time.Now(),
	}
	if err := s.AppendThesis(ctx, th.ID, in); err != nil {
		t.Fatalf("AppendThesis: %v", err)
	}

	theses, err := s.ActiveTheses(ctx, th.ID)
	if err != nil {
		t.Fatalf("ActiveTheses: %v", err)
	}
	if len(theses) != 1 {
		t.Fatalf("got %d theses", len(theses))
	}
	got := theses[0]
	if got.Summary != in.Summary || len(got.SourcePairIDs) != 2 || got.SourcePairIDs[0] != "p1" {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestThreadSummaryUpdate(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	th, err := s.CreateThread(ctx, "t1", "")
	if err != nil {
		t.Fatal(err)
	}

	th.Summary = "user is planning a move to Lisbon"
	th.SummaryQuality = "ok"
	th.SummarySourceHash = "abc123"
	th.SummaryUpdatedAt = time.Now()
	th.LastSummaryRunAt = time.Now()
	if err := s.UpdateThreadSummary(ctx, th); err != nil {
		t.Fatalf("UpdateThreadSummary: %v", err)
	}

	got, err := s.GetThread(ctx, th.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Summary != th.Summary || got.SummaryQuality != "ok" || got.SummarySourceHash != "abc123" {
		t.Errorf("summary state not persisted: %+v", got)
	}

	missing := schema.Thread{ID: "nope"}
	if err := s.UpdateThreadSummary(ctx, missing); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateThreadSummary(missing) = %v, want ErrNotFound", err)
	}
}

func TestProfileRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	p, err := s.Profile(ctx)
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if p != (schema.Profile{}) {
		t.Errorf("unsaved profile should be zero, got %+v", p)
	}

	want := schema.Profile{DisplayName: "Alex", PreferredLanguage: "en", Timezone: "Europe/Lisbon"}
	if err := s.SaveProfile(ctx, want); err != nil {
		t.Fatalf("SaveProfile: %v", err)
	}
	// Saving again overwrites.
	want.Tone = "casual"
	if err := s.SaveProfile(ctx, want); err != nil {
		t.Fatal(err)
	}

	got, err := s.Profile(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != want {
		t.Errorf("profile = %+v, want %+v", got, want)
	}
}
