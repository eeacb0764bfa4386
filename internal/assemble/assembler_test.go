package assemble

import (
	"strings"
	"testing"
	"time"

	"github.com/pearlgull/pearlgull/internal/schema"
	"github.com/pearlgull/pearlgull/internal/tokens"
)

func budgetWithWork(work int) schema.Budget {
	return schema.Budget{
		CEff:    8192,
		Work:    work,
		TotalIn: work + 400,
	}
}

func pair(id, user, assistant string) schema.Pair {
	return schema.Pair{
		ID:            id,
		UserText:      user,
		AssistantText: assistant,
		Tokens:        tokens.ApproxAll(user, assistant),
		CreatedAt:     time.Now(),
	}
}

func text(tok int) string {
	return strings.Repeat("x", tok*tokens.CharsPerToken)
}

func TestAssembleFitsWithoutSqueeze(t *testing.T) {
	a := New(nil)

	msgs, res, err := a.Assemble(Input{
		Budget:   budgetWithWork(6980),
		Core:     "You are a helpful assistant.\nName: Alex",
		Tools:    "search: web search",
		L1:       []schema.Pair{pair("p1", "hi", "hello"), pair("p2", "how are you", "fine, thanks")},
		UserText: "what's next?",
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if res.Squeezed() {
		t.Errorf("unexpected squeezes: %v", res.Squeezes)
	}
	if res.Total() > 6980 {
		t.Errorf("total %d exceeds working budget", res.Total())
	}

	// system, then two pairs, then the current user message.
	if msgs.Len() != 6 {
		t.Fatalf("got %d messages, want 6", msgs.Len())
	}
	if msgs.Messages[0].Role != schema.RoleSystem {
		t.Errorf("first message role = %q, want system", msgs.Messages[0].Role)
	}
	last := msgs.Messages[msgs.Len()-1]
	if last.Role != schema.RoleUser || last.Content != "what's next?" {
		t.Errorf("last message = %+v, want current user text", last)
	}
}

func TestAssembleDropsToolsUnderPressure(t *testing.T) {
	a := New(nil)

	// Core, capped tools, and the pinned pair overflow the budget; the
	// ladder finds nothing to drop in L1 (only the pin) or L2, so tools
	// go, which is enough.
	in := Input{
		Budget: budgetWithWork(200),
		Core:   text(150),
		Tools:  text(20),
		L1: []schema.Pair{
			pair("old", text(15), text(15)),
			pair("latest", text(20), text(20)),
		},
	}
	_, res, err := a.Assemble(in)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !res.Squeezed() {
		t.Fatal("expected squeezes")
	}
	found := false
	for _, s := range res.Squeezes {
		if s == schema.SqueezeDropTools {
			found = true
		}
		if s == schema.SqueezeShrinkCore {
			t.Error("core should not have been shrunk")
		}
	}
	if !found {
		t.Errorf("squeezes %v missing drop_tools", res.Squeezes)
	}
	if res.Tokens[schema.SegmentTools] != 0 {
		t.Errorf("tools tokens = %d after drop", res.Tokens[schema.SegmentTools])
	}
	if res.Total() > 200 {
		t.Errorf("total %d exceeds working budget after squeeze", res.Total())
	}
}

func TestAssembleRecordsZeroCapToolsDrop(t *testing.T) {
	a := New(nil)

	// The core consumes the entire working budget, so the tools cap
	// resolves to zero. The tools block is omitted and that must show
	// up as drop_tools even though the remaining total already fits.
	_, res, err := a.Assemble(Input{
		Budget: budgetWithWork(100),
		Core:   text(100),
		Tools:  text(400),
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if res.Tokens[schema.SegmentTools] != 0 {
		t.Errorf("tools tokens = %d, want 0 under a zero cap", res.Tokens[schema.SegmentTools])
	}
	found := false
	for _, s := range res.Squeezes {
		if s == schema.SqueezeDropTools {
			found = true
		}
	}
	if !found {
		t.Errorf("squeezes = %v, missing drop_tools for cap-zeroed tools", res.Squeezes)
	}
}

func TestAssembleRecordsZeroCapTierDrops(t *testing.T) {
	a := New(nil)

	// No budget remains past the core, so the L1 and L2 caps are zero.
	// The pinned pair still rides along; the older pair and the thesis
	// are dropped and both drops are recorded.
	_, res, err := a.Assemble(Input{
		Budget: budgetWithWork(100),
		Core:   text(60),
		L1: []schema.Pair{
			pair("old", text(10), text(10)),
			pair("latest", text(10), text(10)),
		},
		L2: []schema.Thesis{{ID: "t1", Summary: text(12), Tokens: 12}},
		Caps: schema.Caps{
			Core: 60,
		},
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	var sawL1, sawL2 bool
	for _, s := range res.Squeezes {
		switch s {
		case schema.SqueezeDropL1:
			sawL1 = true
		case schema.SqueezeDropL2:
			sawL2 = true
		}
	}
	if !sawL1 || !sawL2 {
		t.Errorf("squeezes = %v, want drop_l1 and drop_l2 recorded", res.Squeezes)
	}
	if res.Tokens[schema.SegmentL1] != 20 {
		t.Errorf("L1 tokens = %d, want only the pinned pair (20)", res.Tokens[schema.SegmentL1])
	}
	if res.Tokens[schema.SegmentL2] != 0 {
		t.Errorf("L2 tokens = %d, want 0", res.Tokens[schema.SegmentL2])
	}
}

func TestAssemblePinnedPairSurvives(t *testing.T) {
	a := New(nil)

	old := pair("old", text(50), text(40))
	latest := pair("latest", "just now", "the pinned reply")

	msgs, res, err := a.Assemble(Input{
		Budget: budgetWithWork(120),
		Core:   text(60),
		L1:     []schema.Pair{old, latest},
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	for _, s := range res.Squeezes {
		if s != schema.SqueezeDropL1 && s != schema.SqueezeDropL2 {
			t.Errorf("unexpected squeeze %q", s)
		}
	}

	var sawPinned, sawOld bool
	for _, m := range msgs.Messages {
		if strings.Contains(m.Content, "the pinned reply") {
			sawPinned = true
		}
		if m.Role != schema.RoleSystem && strings.Contains(m.Content, old.UserText) {
			sawOld = true
		}
	}
	if !sawPinned {
		t.Error("pinned latest pair was dropped")
	}
	if sawOld {
		t.Error("older pair should have been squeezed out")
	}
}

func TestAssembleShrinkCoreLastResort(t *testing.T) {
	a := New(nil)

	// Core fills its clamped cap; the pinned pair pushes the total over,
	// and only shrinking the core frees enough.
	_, res, err := a.Assemble(Input{
		Budget: budgetWithWork(80),
		Core:   text(300),
		L1:     []schema.Pair{pair("p1", text(10), text(10))},
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(res.Squeezes) == 0 {
		t.Fatal("expected squeezes")
	}
	last := res.Squeezes[len(res.Squeezes)-1]
	if last != schema.SqueezeShrinkCore {
		t.Errorf("last squeeze = %q, want shrink_core", last)
	}
	if got := res.Tokens[schema.SegmentCore]; got > minCoreSkeleton {
		t.Errorf("core tokens = %d, want <= skeleton %d", got, minCoreSkeleton)
	}
}

func TestAssembleOverBudgetError(t *testing.T) {
	a := New(nil)

	// Even the skeleton core plus pinned pair cannot fit ten tokens.
	_, _, err := a.Assemble(Input{
		Budget: budgetWithWork(10),
		Core:   text(300),
		L1:     []schema.Pair{pair("p1", text(30), text(30))},
	})
	if err == nil {
		t.Fatal("expected error when prompt cannot fit after full squeeze")
	}
}

func TestAssembleNewestFirstWithinTiers(t *testing.T) {
	a := New(nil)

	theses := []schema.Thesis{
		{ID: "t1", Summary: text(40), Tokens: 40},
		{ID: "t2", Summary: "newest thesis survives", Tokens: 6},
	}
	// L2 cap: work 1000, core 60, no tools, remaining 940, l2 = 282.
	// Both fit; shrink the budget so only the newest does.
	in := Input{
		Budget: budgetWithWork(1000),
		Core:   text(60),
		L2:     theses,
	}
	_, res, err := a.Assemble(in)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if res.Tokens[schema.SegmentL2] != 46 {
		t.Errorf("L2 tokens = %d, want both theses (46)", res.Tokens[schema.SegmentL2])
	}

	// Oversize the older thesis so the L2 cap (282) only admits the
	// newest one.
	in.L2 = []schema.Thesis{
		{ID: "t1", Summary: text(280), Tokens: 280},
		{ID: "t2", Summary: "newest thesis survives", Tokens: 6},
	}
	msgs, res, err := a.Assemble(in)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if res.Tokens[schema.SegmentL2] != 6 {
		t.Errorf("L2 tokens = %d, want newest-only (6)", res.Tokens[schema.SegmentL2])
	}
	if !strings.Contains(msgs.Messages[0].Content, "newest thesis survives") {
		t.Error("newest thesis missing from system message")
	}
}
