// Package chat runs turns: it resolves the context window, computes the
// budget, assembles the prompt, streams the reply, and feeds completed
// exchanges back into memory.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/pearlgull/pearlgull/internal/assemble"
	"github.com/pearlgull/pearlgull/internal/budget"
	"github.com/pearlgull/pearlgull/internal/bus"
	"github.com/pearlgull/pearlgull/internal/memory"
	"github.com/pearlgull/pearlgull/internal/schema"
	"github.com/pearlgull/pearlgull/internal/store"
	"github.com/pearlgull/pearlgull/internal/tokens"
)

// Config are the engine knobs.
type Config struct {
	DefaultModel  string
	SystemPrompt  string
	DefaultWindow int
	Temperature   float64
	// ToolsBlock is the rendered tool descriptions included in prompts,
	// empty when the deployment exposes no tools.
	ToolsBlock string
}

// TurnRequest is one user turn.
type TurnRequest struct {
	ThreadID        string
	UserText        string
	Model           string
	MaxOutputTokens int
}

// EmitFunc receives turn events in order. It is called from the turn's
// goroutine; implementations must not block for long.
type EmitFunc func(schema.TurnEvent)

// loadWaiter is implemented by clients that can briefly poll a loading
// model for its context length before the budget is computed.
type loadWaiter interface {
	WaitForLoad(ctx context.Context, modelID string) schema.ModelInfo
}

// coreEstimatePad is the headroom factor applied to the measured core
// token count, covering chat-template overhead around the system block.
const coreEstimatePad = 1.10

// Engine wires the pipeline together.
type Engine struct {
	cfg        Config
	store      *store.Store
	memory     *memory.Manager
	calculator *budget.Calculator
	assembler  *assemble.Assembler
	client     schema.ModelClient
	events     *bus.Bus
	promoter   *Promoter
	summary    *Autosummarizer
	logger     *slog.Logger
}

func NewEngine(
	cfg Config,
	st *store.Store,
	mem *memory.Manager,
	calc *budget.Calculator,
	asm *assemble.Assembler,
	client schema.ModelClient,
	events *bus.Bus,
	promoter *Promoter,
	summary *Autosummarizer,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DefaultWindow <= 0 {
		cfg.DefaultWindow = 4096
	}
	return &Engine{
		cfg:        cfg,
		store:      st,
		memory:     mem,
		calculator: calc,
		assembler:  asm,
		client:     client,
		events:     events,
		promoter:   promoter,
		summary:    summary,
		logger:     logger,
	}
}

// Run executes one turn, emitting events to emit and mirroring them on
// the event bus.
//
// The exchange is recorded only when the stream completes: a cancelled
// or failed turn leaves the message log and the memory tiers untouched,
// so the next prompt is built as if the turn never happened.
func (e *Engine) Run(ctx context.Context, req TurnRequest, emit EmitFunc) error {
	send := func(ev schema.TurnEvent) {
		if emit != nil {
			emit(ev)
		}
		if e.events != nil {
			e.events.Publish(req.ThreadID, ev)
		}
	}

	fail := func(err error) error {
		send(schema.DoneEvent(schema.StatusError, nil, err.Error()))
		return err
	}

	model := req.Model
	if model == "" {
		model = e.cfg.DefaultModel
	}

	th, err := e.store.EnsureThread(ctx, req.ThreadID)
	if err != nil {
		return fail(fmt.Errorf("ensure thread: %w", err))
	}

	info := e.modelInfo(ctx, model)
	window := schema.ResolveWindow(info.LoadedContext, info.MaxContext, e.cfg.DefaultWindow)

	b := e.calculator.Compute(budget.Request{
		ModelID:            model,
		Window:             window,
		RequestedMaxOutput: req.MaxOutputTokens,
	})

	profile, err := e.store.Profile(ctx)
	if err != nil {
		return fail(fmt.Errorf("load profile: %w", err))
	}
	core := renderCore(e.cfg.SystemPrompt, profile, th.Summary)

	coreTokens := coreEstimate(core)
	caps := assemble.AllocateCaps(b.Work, coreTokens, tokens.Approx(e.cfg.ToolsBlock))
	b.CoreTokens = coreTokens
	b.CoreCap = caps.Core
	send(schema.TurnEvent{Type: schema.EventBudget, Budget: &b})

	view, err := e.memory.View(ctx, req.ThreadID)
	if err != nil {
		return fail(fmt.Errorf("load memory: %w", err))
	}

	msgs, result, err := e.assembler.Assemble(assemble.Input{
		Budget:   b,
		Caps:     caps,
		Core:     core,
		Tools:    e.cfg.ToolsBlock,
		L1:       view.L1,
		L2:       view.L2,
		L3:       view.L3,
		UserText: req.UserText,
	})
	if err != nil {
		return fail(err)
	}
	send(schema.TurnEvent{Type: schema.EventAssembly, Assembly: &result})

	snap, err := e.memory.Snapshot(ctx, req.ThreadID, caps, nil)
	if err != nil {
		return fail(fmt.Errorf("memory snapshot: %w", err))
	}
	send(schema.TurnEvent{Type: schema.EventMemory, Memory: &snap})

	full, usage, err := e.client.ChatStream(ctx, msgs, schema.ChatOptions{
		Model:       model,
		MaxTokens:   b.EffectiveMaxOutput,
		Temperature: e.cfg.Temperature,
	}, func(delta string) {
		send(schema.TurnEvent{Type: schema.EventDelta, Delta: delta})
	})

	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
			e.logger.Info("turn cancelled", "thread", req.ThreadID, "partial_chars", len(full))
			send(schema.DoneEvent(schema.StatusCancelled, nil, ""))
			return nil
		}
		return fail(fmt.Errorf("model stream: %w", err))
	}

	if err := e.recordExchange(ctx, req.ThreadID, req.UserText, full); err != nil {
		// The reply already streamed; losing persistence is a fault worth
		// surfacing but the client keeps the completed status.
		e.logger.Error("record exchange failed", "thread", req.ThreadID, "error", err)
	}

	send(schema.DoneEvent(schema.StatusCompleted, &usage, ""))

	if e.promoter != nil {
		e.promoter.Schedule(req.ThreadID, caps)
	}
	if e.summary != nil {
		e.summary.Schedule(req.ThreadID, model)
	}
	return nil
}

// MemorySnapshot reports the current tier fill for a thread, using the
// caps a turn on the default model would get right now.
func (e *Engine) MemorySnapshot(ctx context.Context, threadID string) (schema.MemorySnapshot, error) {
	th, err := e.store.GetThread(ctx, threadID)
	if err != nil {
		return schema.MemorySnapshot{}, err
	}

	info := e.client.ModelInfo(ctx, e.cfg.DefaultModel)
	window := schema.ResolveWindow(info.LoadedContext, info.MaxContext, e.cfg.DefaultWindow)
	b := e.calculator.Compute(budget.Request{ModelID: e.cfg.DefaultModel, Window: window})

	profile, err := e.store.Profile(ctx)
	if err != nil {
		return schema.MemorySnapshot{}, fmt.Errorf("load profile: %w", err)
	}
	core := renderCore(e.cfg.SystemPrompt, profile, th.Summary)
	caps := assemble.AllocateCaps(b.Work, coreEstimate(core), tokens.Approx(e.cfg.ToolsBlock))

	return e.memory.Snapshot(ctx, threadID, caps, nil)
}

// modelInfo resolves discovery data, letting clients that support it
// wait for a loading model to report its context length.
func (e *Engine) modelInfo(ctx context.Context, model string) schema.ModelInfo {
	if w, ok := e.client.(loadWaiter); ok {
		return w.WaitForLoad(ctx, model)
	}
	return e.client.ModelInfo(ctx, model)
}

func coreEstimate(core string) int {
	return int(math.Ceil(coreEstimatePad * float64(tokens.Approx(core))))
}

func (e *Engine) recordExchange(ctx context.Context, threadID, userText, assistantText string) error {
	if _, err := e.store.AppendMessage(ctx, threadID, schema.RoleUser, userText); err != nil {
		return err
	}
	if _, err := e.store.AppendMessage(ctx, threadID, schema.RoleAssistant, assistantText); err != nil {
		return err
	}
	if err := e.store.TouchThread(ctx, threadID); err != nil {
		return err
	}
	if _, err := e.memory.Ingest(ctx, threadID, userText, assistantText); err != nil {
		return err
	}
	return nil
}
