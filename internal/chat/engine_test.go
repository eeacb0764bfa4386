package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/pearlgull/pearlgull/internal/assemble"
	"github.com/pearlgull/pearlgull/internal/budget"
	"github.com/pearlgull/pearlgull/internal/bus"
	"github.com/pearlgull/pearlgull/internal/memory"
	"github.com/pearlgull/pearlgull/internal/schema"
	"github.com/pearlgull/pearlgull/internal/store"
)

// fakeModel is a scriptable ModelClient.
type fakeModel struct {
	deltas    []string
	streamErr error
	genOut    string
	genErr    error
}

func (f *fakeModel) ListModels(context.Context) ([]schema.ModelInfo, error) {
	return []schema.ModelInfo{{ID: "m1", State: schema.ModelStateLoaded}}, nil
}

func (f *fakeModel) ModelInfo(_ context.Context, modelID string) schema.ModelInfo {
	return schema.ModelInfo{ID: modelID, State: schema.ModelStateLoaded, LoadedContext: 8192}
}

func (f *fakeModel) ChatStream(ctx context.Context, _ schema.Messages, _ schema.ChatOptions, onDelta schema.DeltaFunc) (string, schema.Usage, error) {
	var full string
	for _, d := range f.deltas {
		full += d
		if onDelta != nil {
			onDelta(d)
		}
	}
	if f.streamErr != nil {
		return full, schema.Usage{}, f.streamErr
	}
	return full, schema.Usage{PromptTokens: 50, CompletionTokens: 5, TotalTokens: 55}, nil
}

func (f *fakeModel) Generate(context.Context, string, string, schema.ChatOptions) (string, error) {
	return f.genOut, f.genErr
}

type collectedEvents struct {
	events []schema.TurnEvent
}

func (c *collectedEvents) emit(ev schema.TurnEvent) {
	c.events = append(c.events, ev)
}

func (c *collectedEvents) types() []schema.TurnEventType {
	out := make([]schema.TurnEventType, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Type
	}
	return out
}

func newTestEngine(t *testing.T, model *fakeModel) (*Engine, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	mem := memory.NewManager(st, nil, memory.Params{}, nil)
	calc := budget.NewCalculator(budget.Params{}, nil)
	asm := assemble.New(nil)
	eng := NewEngine(Config{DefaultModel: "m1"}, st, mem, calc, asm, model, bus.New(), nil, nil, nil)
	return eng, st
}

func TestRunHappyPathEventOrder(t *testing.T) {
	model := &fakeModel{deltas: []string{"Hel", "lo"}}
	eng, st := newTestEngine(t, model)
	ctx := context.Background()

	var got collectedEvents
	if err := eng.Run(ctx, TurnRequest{ThreadID: "t1", UserText: "hi there"}, got.emit); err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []schema.TurnEventType{
		schema.EventBudget, schema.EventAssembly, schema.EventMemory,
		schema.EventDelta, schema.EventDelta, schema.EventDone,
	}
	types := got.types()
	if len(types) != len(want) {
		t.Fatalf("events = %v, want %v", types, want)
	}
	for i := range want {
		if types[i] != want[i] {
			t.Fatalf("event %d = %q, want %q", i, types[i], want[i])
		}
	}

	done := got.events[len(got.events)-1]
	if done.Status != schema.StatusCompleted {
		t.Errorf("done status = %q", done.Status)
	}
	if done.Usage == nil || done.Usage.TotalTokens != 55 {
		t.Errorf("done usage = %+v", done.Usage)
	}

	budgetEv := got.events[0]
	if budgetEv.Budget == nil || budgetEv.Budget.CEff != 8192 {
		t.Errorf("budget event = %+v", budgetEv.Budget)
	}

	// Completed exchange lands in the log and in L1.
	msgs, err := st.Messages(ctx, "t1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Role != schema.RoleUser || msgs[1].Content != "Hello" {
		t.Errorf("message log = %+v", msgs)
	}
	pairs, err := st.ActivePairs(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 1 || pairs[0].AssistantText != "Hello" {
		t.Errorf("l1 = %+v", pairs)
	}
}

func TestRunBudgetAndAssemblyReportSameCaps(t *testing.T) {
	model := &fakeModel{deltas: []string{"ok"}}
	eng, _ := newTestEngine(t, model)

	var got collectedEvents
	if err := eng.Run(context.Background(), TurnRequest{ThreadID: "t1", UserText: "hi"}, got.emit); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var b *schema.Budget
	var asm *schema.AssemblyResult
	for _, ev := range got.events {
		switch ev.Type {
		case schema.EventBudget:
			b = ev.Budget
		case schema.EventAssembly:
			asm = ev.Assembly
		}
	}
	if b == nil || asm == nil {
		t.Fatal("missing budget or assembly event")
	}

	// The budget event and the assembled prompt come from one cap
	// allocation: the metadata a client sees matches what was built.
	if asm.Caps[schema.SegmentCore] != b.CoreCap {
		t.Errorf("assembly core cap = %d, budget core cap = %d", asm.Caps[schema.SegmentCore], b.CoreCap)
	}
	if b.CoreTokens <= 0 || b.CoreCap < b.CoreTokens {
		t.Errorf("core cap %d should cover the padded core estimate %d", b.CoreCap, b.CoreTokens)
	}
}

func TestRunCancelledTurnIsNotIngested(t *testing.T) {
	model := &fakeModel{deltas: []string{"par", "tial"}, streamErr: context.Canceled}
	eng, st := newTestEngine(t, model)
	ctx := context.Background()

	var got collectedEvents
	if err := eng.Run(ctx, TurnRequest{ThreadID: "t1", UserText: "hi"}, got.emit); err != nil {
		t.Fatalf("Run should treat cancellation as clean, got %v", err)
	}

	done := got.events[len(got.events)-1]
	if done.Type != schema.EventDone || done.Status != schema.StatusCancelled {
		t.Fatalf("last event = %+v, want done/cancelled", done)
	}

	msgs, err := st.Messages(ctx, "t1", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 0 {
		t.Errorf("cancelled turn wrote %d messages", len(msgs))
	}
	pairs, err := st.ActivePairs(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if len(pairs) != 0 {
		t.Errorf("cancelled turn ingested %d pairs", len(pairs))
	}
}

func TestRunStreamErrorEmitsErrorDone(t *testing.T) {
	model := &fakeModel{streamErr: errors.New("connection reset")}
	eng, st := newTestEngine(t, model)
	ctx := context.Background()

	var got collectedEvents
	if err := eng.Run(ctx, TurnRequest{ThreadID: "t1", UserText: "hi"}, got.emit); err == nil {
		t.Fatal("expected error")
	}

	done := got.events[len(got.events)-1]
	if done.Status != schema.StatusError || done.Err == "" {
		t.Errorf("done = %+v, want error status with message", done)
	}

	msgs, _ := st.Messages(ctx, "t1", 0)
	if len(msgs) != 0 {
		t.Errorf("failed turn wrote %d messages", len(msgs))
	}
}

func TestRunMirrorsEventsOnBus(t *testing.T) {
	model := &fakeModel{deltas: []string{"ok"}}
	eng, st := newTestEngine(t, model)
	_ = st

	events := bus.New()
	eng.events = events
	sub := events.Subscribe("t1")
	defer sub.Close()

	if err := eng.Run(context.Background(), TurnRequest{ThreadID: "t1", UserText: "hi"}, nil); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// budget, assembly, memory, delta, done
	if n := len(sub.C); n != 5 {
		t.Errorf("bus got %d events, want 5", n)
	}
}
