package chat

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pearlgull/pearlgull/internal/schema"
	"github.com/pearlgull/pearlgull/internal/store"
	"github.com/pearlgull/pearlgull/internal/tokens"
)

// SummaryParams are the autosummary knobs. Zero values fall back to
// defaults.
type SummaryParams struct {
	// TriggerTokens is the recent-history size past which a refresh
	// runs. MaxAge forces a refresh for a stale summary regardless of
	// size. Debounce is the minimum gap between runs per thread.
	TriggerTokens int
	MaxAge        time.Duration
	Debounce      time.Duration

	// SourceMessages is how many trailing messages feed the summary.
	SourceMessages int
	// MaxSummaryTokens caps the generated summary.
	MaxSummaryTokens int
}

const (
	defaultSummaryTrigger  = 600
	defaultSummaryMaxAge   = time.Hour
	defaultSummaryDebounce = 5 * time.Minute
	defaultSummarySource   = 24
	defaultSummaryTokens   = 200

	summaryQualityOK    = "ok"
	summaryQualityDraft = "draft"
)

func (p SummaryParams) withDefaults() SummaryParams {
	if p.TriggerTokens <= 0 {
		p.TriggerTokens = defaultSummaryTrigger
	}
	if p.MaxAge <= 0 {
		p.MaxAge = defaultSummaryMaxAge
	}
	if p.Debounce <= 0 {
		p.Debounce = defaultSummaryDebounce
	}
	if p.SourceMessages <= 0 {
		p.SourceMessages = defaultSummarySource
	}
	if p.MaxSummaryTokens <= 0 {
		p.MaxSummaryTokens = defaultSummaryTokens
	}
	return p
}

const threadSummaryPrompt = "Summarize this conversation for future context. " +
	"One short paragraph, the conversation's language, keep facts, decisions, " +
	"and open threads. No preamble."

// Autosummarizer maintains the rolling per-thread summary that feeds
// the core context block.
type Autosummarizer struct {
	store  *store.Store
	client schema.ModelClient
	params SummaryParams
	logger *slog.Logger
	clock  func() time.Time

	mu      sync.Mutex
	running map[string]bool
}

func NewAutosummarizer(st *store.Store, client schema.ModelClient, params SummaryParams, logger *slog.Logger) *Autosummarizer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Autosummarizer{
		store:   st,
		client:  client,
		params:  params.withDefaults(),
		logger:  logger,
		clock:   time.Now,
		running: make(map[string]bool),
	}
}

// Schedule runs a summary refresh in the background if the thread needs
// one. Overlapping calls for the same thread collapse into the running
// refresh.
func (a *Autosummarizer) Schedule(threadID, model string) {
	a.mu.Lock()
	if a.running[threadID] {
		a.mu.Unlock()
		return
	}
	a.running[threadID] = true
	a.mu.Unlock()

	go func() {
		defer func() {
			a.mu.Lock()
			delete(a.running, threadID)
			a.mu.Unlock()
		}()
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := a.Refresh(ctx, threadID, model); err != nil {
			a.logger.Warn("thread summary refresh failed", "thread", threadID, "error", err)
		}
	}()
}

// Refresh re-evaluates one thread and rewrites its summary when due.
// A model failure degrades to a draft summary built from the raw tail
// of the conversation rather than leaving the summary stale forever.
func (a *Autosummarizer) Refresh(ctx context.Context, threadID, model string) error {
	th, err := a.store.GetThread(ctx, threadID)
	if err != nil {
		return fmt.Errorf("load thread: %w", err)
	}

	msgs, err := a.store.Messages(ctx, threadID, a.params.SourceMessages)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	if len(msgs) == 0 {
		return nil
	}

	source := renderTranscript(msgs)
	hash := hashSource(source)

	due, reason := a.isDue(th, source, hash)
	if !due {
		a.logger.Debug("summary not due", "thread", threadID, "reason", reason)
		return nil
	}

	now := a.clock()
	th.LastSummaryRunAt = now

	summary, genErr := a.client.Generate(ctx, threadSummaryPrompt, source, schema.ChatOptions{
		Model:       model,
		MaxTokens:   a.params.MaxSummaryTokens,
		Temperature: 0.2,
	})
	summary = strings.TrimSpace(summary)

	if genErr != nil || summary == "" {
		// Draft fallback: the clipped raw tail is better than nothing.
		draft, _ := tokens.CapText(source, a.params.MaxSummaryTokens)
		th.Summary = draft
		th.SummaryQuality = summaryQualityDraft
		a.logger.Warn("summary degraded to draft", "thread", threadID, "error", genErr)
	} else {
		capped, _ := tokens.CapText(summary, a.params.MaxSummaryTokens)
		th.Summary = capped
		th.SummaryQuality = summaryQualityOK
	}
	th.SummarySourceHash = hash
	th.SummaryUpdatedAt = now

	if err := a.store.UpdateThreadSummary(ctx, th); err != nil {
		return fmt.Errorf("persist summary: %w", err)
	}
	a.logger.Info("thread summary refreshed", "thread", threadID, "quality", th.SummaryQuality, "reason", reason)
	return nil
}

// isDue decides whether a refresh should run, and names the trigger.
func (a *Autosummarizer) isDue(th schema.Thread, source, hash string) (bool, string) {
	if hash == th.SummarySourceHash {
		return false, "source unchanged"
	}
	if !th.LastSummaryRunAt.IsZero() && a.clock().Sub(th.LastSummaryRunAt) < a.params.Debounce {
		return false, "debounced"
	}
	if th.Summary == "" {
		return true, "first summary"
	}
	if tokens.Approx(source) >= a.params.TriggerTokens {
		return true, "size trigger"
	}
	if a.clock().Sub(th.SummaryUpdatedAt) > a.params.MaxAge {
		return true, "age trigger"
	}
	return false, "below triggers"
}

func renderTranscript(msgs []schema.StoredMessage) string {
	var b strings.Builder
	for _, m := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	return strings.TrimSpace(b.String())
}

func hashSource(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}
