// Package memory implements the tiered conversation memory: raw
// user/assistant pairs in L1, summarized theses in L2, and micro-thesis
// digests in L3, with promotion flowing oldest-first down the tiers.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pearlgull/pearlgull/internal/schema"
	"github.com/pearlgull/pearlgull/internal/tokens"
)

// Store persists tier entries and the per-thread promotion marks.
// "Active" reads return only entries past the promotion mark, oldest
// first; promoted entries stay in the log for provenance but never
// re-enter a prompt.
type Store interface {
	AppendPair(ctx context.Context, threadID string, p schema.Pair) error
	AppendThesis(ctx context.Context, threadID string, t schema.Thesis) error
	AppendMicroThesis(ctx context.Context, threadID string, mt schema.MicroThesis) error

	ActivePairs(ctx context.Context, threadID string) ([]schema.Pair, error)
	ActiveTheses(ctx context.Context, threadID string) ([]schema.Thesis, error)
	ActiveMicroTheses(ctx context.Context, threadID string) ([]schema.MicroThesis, error)

	// MarkPairsPromoted advances the L1 promotion mark by n entries;
	// MarkThesesPromoted does the same for L2. MarkMicroThesesTrimmed
	// advances the L3 eviction mark.
	MarkPairsPromoted(ctx context.Context, threadID string, n int) error
	MarkThesesPromoted(ctx context.Context, threadID string, n int) error
	MarkMicroThesesTrimmed(ctx context.Context, threadID string, n int) error
}

// Params are the memory knobs. Zero values fall back to defaults.
type Params struct {
	// UserClipTokens and AssistantClipTokens bound each side of a pair
	// at ingest. The full text stays in the message log.
	UserClipTokens      int
	AssistantClipTokens int

	// PromotionTrigger is the tier size, in tokens, past which promotion
	// runs. PromotionBatch is the most entries compressed per run.
	PromotionTrigger int
	PromotionBatch   int

	// L3MaxTokens bounds the micro-thesis tier; the oldest entries are
	// evicted when it overflows.
	L3MaxTokens int
}

const (
	defaultUserClip      = 120
	defaultAssistantClip = 80
	defaultTrigger       = 100
	defaultBatch         = 4
	defaultL3Max         = 600
)

func (p Params) withDefaults() Params {
	if p.UserClipTokens <= 0 {
		p.UserClipTokens = defaultUserClip
	}
	if p.AssistantClipTokens <= 0 {
		p.AssistantClipTokens = defaultAssistantClip
	}
	if p.PromotionTrigger <= 0 {
		p.PromotionTrigger = defaultTrigger
	}
	if p.PromotionBatch <= 0 {
		p.PromotionBatch = defaultBatch
	}
	if p.L3MaxTokens <= 0 {
		p.L3MaxTokens = defaultL3Max
	}
	return p
}

// View is the active tier content handed to the assembler, each slice
// oldest first.
type View struct {
	L1 []schema.Pair
	L2 []schema.Thesis
	L3 []schema.MicroThesis
}

// Manager owns tier reads, ingest, and promotion. All mutation for a
// thread runs under that thread's lock, so concurrent turns on the same
// thread serialize instead of interleaving promotion marks.
type Manager struct {
	store      Store
	summarizer schema.Summarizer
	params     Params
	logger     *slog.Logger

	locks sync.Map // threadID -> *sync.Mutex
}

func NewManager(store Store, summarizer schema.Summarizer, params Params, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:      store,
		summarizer: summarizer,
		params:     params.withDefaults(),
		logger:     logger,
	}
}

func (m *Manager) lock(threadID string) *sync.Mutex {
	mu, _ := m.locks.LoadOrStore(threadID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// View loads the active tier content for a thread.
func (m *Manager) View(ctx context.Context, threadID string) (View, error) {
	l1, err := m.store.ActivePairs(ctx, threadID)
	if err != nil {
		return View{}, fmt.Errorf("load l1: %w", err)
	}
	l2, err := m.store.ActiveTheses(ctx, threadID)
	if err != nil {
		return View{}, fmt.Errorf("load l2: %w", err)
	}
	l3, err := m.store.ActiveMicroTheses(ctx, threadID)
	if err != nil {
		return View{}, fmt.Errorf("load l3: %w", err)
	}
	return View{L1: l1, L2: l2, L3: l3}, nil
}

// Ingest records a completed exchange as a new L1 pair, clipping each
// side to its per-role cap. Cancelled or failed turns never reach here.
func (m *Manager) Ingest(ctx context.Context, threadID, userText, assistantText string) (schema.Pair, error) {
	mu := m.lock(threadID)
	mu.Lock()
	defer mu.Unlock()

	user, userClipped := tokens.CapText(userText, m.params.UserClipTokens)
	assistant, assistantClipped := tokens.CapText(assistantText, m.params.AssistantClipTokens)

	p := schema.Pair{
		ID:            uuid.NewString(),
		UserText:      user,
		AssistantText: assistant,
		Tokens:        tokens.ApproxAll(user, assistant),
		Clipped:       userClipped || assistantClipped,
		CreatedAt:     time.Now().UTC(),
	}
	if err := m.store.AppendPair(ctx, threadID, p); err != nil {
		return schema.Pair{}, fmt.Errorf("append pair: %w", err)
	}
	m.logger.Debug("pair ingested", "thread", threadID, "pair", p.ID, "tokens", p.Tokens, "clipped", p.Clipped)
	return p, nil
}

// Promote runs a promotion sweep for a thread: L1 overflow compresses
// into new L2 theses, L2 overflow into new L3 micro-theses, and an
// overfull L3 evicts its oldest entries. caps are the per-turn segment
// caps: a tier over its cap promotes oldest batches until it fits.
// When a tier's cap is unknown (zero), the fixed trigger gates a single
// batch instead, so idle tiers are not churned. It returns
// human-readable notes for each promotion that happened.
//
// A summarizer failure leaves the affected tier exactly as it was; the
// entries stay active and the next sweep retries them.
func (m *Manager) Promote(ctx context.Context, threadID string, caps schema.Caps) ([]string, error) {
	mu := m.lock(threadID)
	mu.Lock()
	defer mu.Unlock()

	var notes []string

	l1, err := m.promoteL1(ctx, threadID, caps.L1)
	notes = append(notes, l1...)
	if err != nil {
		m.logger.Warn("l1 promotion skipped", "thread", threadID, "error", err)
	}

	l2, err := m.promoteL2(ctx, threadID, caps.L2)
	notes = append(notes, l2...)
	if err != nil {
		m.logger.Warn("l2 promotion skipped", "thread", threadID, "error", err)
	}

	note, err := m.trimL3(ctx, threadID)
	if err != nil {
		return notes, fmt.Errorf("trim l3: %w", err)
	}
	if note != "" {
		notes = append(notes, note)
	}
	return notes, nil
}

// tierNeedsPromotion decides whether another batch should go: always
// while the tier exceeds its known cap, and once per sweep (promoted
// reports prior batches) when only the trigger is exceeded.
func (m *Manager) tierNeedsPromotion(total, tierCap int, promoted bool) bool {
	if tierCap > 0 && total > tierCap {
		return true
	}
	return !promoted && total > m.params.PromotionTrigger
}

func (m *Manager) promoteL1(ctx context.Context, threadID string, tierCap int) ([]string, error) {
	var notes []string
	for {
		pairs, err := m.store.ActivePairs(ctx, threadID)
		if err != nil {
			return notes, fmt.Errorf("load l1: %w", err)
		}
		if !m.tierNeedsPromotion(tierTokensPairs(pairs), tierCap, len(notes) > 0) {
			return notes, nil
		}
		// The newest pair is pinned into every prompt; it never promotes.
		if len(pairs) < 2 {
			return notes, nil
		}
		batch := pairs[:min(m.params.PromotionBatch, len(pairs)-1)]

		texts := make([]string, 0, len(batch)*2)
		ids := make([]string, 0, len(batch))
		for _, p := range batch {
			texts = append(texts, "User: "+p.UserText, "Assistant: "+p.AssistantText)
			ids = append(ids, p.ID)
		}
		summary, err := m.summarizer.Summarize(ctx, texts)
		if err != nil {
			return notes, fmt.Errorf("summarize batch of %d pairs: %w", len(batch), err)
		}

		th := schema.Thesis{
			ID:            uuid.NewString(),
			SourcePairIDs: ids,
			Summary:       summary,
			Tokens:        tokens.Approx(summary),
			CreatedAt:     time.Now().UTC(),
		}
		if err := m.store.AppendThesis(ctx, threadID, th); err != nil {
			return notes, fmt.Errorf("append thesis: %w", err)
		}
		if err := m.store.MarkPairsPromoted(ctx, threadID, len(batch)); err != nil {
			return notes, fmt.Errorf("mark pairs promoted: %w", err)
		}
		m.logger.Info("l1 promoted", "thread", threadID, "pairs", len(batch), "thesis", th.ID, "tokens", th.Tokens)
		notes = append(notes, fmt.Sprintf("l1->l2: %d pairs -> thesis %s", len(batch), th.ID))
	}
}

func (m *Manager) promoteL2(ctx context.Context, threadID string, tierCap int) ([]string, error) {
	var notes []string
	for {
		theses, err := m.store.ActiveTheses(ctx, threadID)
		if err != nil {
			return notes, fmt.Errorf("load l2: %w", err)
		}
		if !m.tierNeedsPromotion(tierTokensTheses(theses), tierCap, len(notes) > 0) {
			return notes, nil
		}
		if len(theses) < 2 {
			return notes, nil
		}
		batch := theses[:min(m.params.PromotionBatch, len(theses)-1)]

		texts := make([]string, 0, len(batch))
		ids := make([]string, 0, len(batch))
		for _, th := range batch {
			texts = append(texts, th.Summary)
			ids = append(ids, th.ID)
		}
		summary, err := m.summarizer.Summarize(ctx, texts)
		if err != nil {
			return notes, fmt.Errorf("summarize batch of %d theses: %w", len(batch), err)
		}

		mt := schema.MicroThesis{
			ID:              uuid.NewString(),
			SourceThesisIDs: ids,
			Summary:         summary,
			Tokens:          tokens.Approx(summary),
			CreatedAt:       time.Now().UTC(),
		}
		if err := m.store.AppendMicroThesis(ctx, threadID, mt); err != nil {
			return notes, fmt.Errorf("append micro-thesis: %w", err)
		}
		if err := m.store.MarkThesesPromoted(ctx, threadID, len(batch)); err != nil {
			return notes, fmt.Errorf("mark theses promoted: %w", err)
		}
		m.logger.Info("l2 promoted", "thread", threadID, "theses", len(batch), "micro", mt.ID, "tokens", mt.Tokens)
		notes = append(notes, fmt.Sprintf("l2->l3: %d theses -> micro-thesis %s", len(batch), mt.ID))
	}
}

func (m *Manager) trimL3(ctx context.Context, threadID string) (string, error) {
	mts, err := m.store.ActiveMicroTheses(ctx, threadID)
	if err != nil {
		return "", fmt.Errorf("load l3: %w", err)
	}
	total := tierTokensMicro(mts)
	drop := 0
	for drop < len(mts) && total > m.params.L3MaxTokens {
		total -= mts[drop].Tokens
		drop++
	}
	if drop == 0 {
		return "", nil
	}
	if err := m.store.MarkMicroThesesTrimmed(ctx, threadID, drop); err != nil {
		return "", fmt.Errorf("mark micro-theses trimmed: %w", err)
	}
	m.logger.Info("l3 trimmed", "thread", threadID, "evicted", drop, "tokens_left", total)
	return fmt.Sprintf("l3 trim: evicted %d oldest", drop), nil
}

// Snapshot computes per-tier fill against the given caps.
func (m *Manager) Snapshot(ctx context.Context, threadID string, caps schema.Caps, promotions []string) (schema.MemorySnapshot, error) {
	v, err := m.View(ctx, threadID)
	if err != nil {
		return schema.MemorySnapshot{}, err
	}
	l1 := tierTokensPairs(v.L1)
	l2 := tierTokensTheses(v.L2)
	l3 := tierTokensMicro(v.L3)
	return schema.MemorySnapshot{
		ThreadID:   threadID,
		L1:         schema.TierFill{Tokens: l1, Cap: caps.L1, FillPct: schema.FillPct(l1, caps.L1)},
		L2:         schema.TierFill{Tokens: l2, Cap: caps.L2, FillPct: schema.FillPct(l2, caps.L2)},
		L3:         schema.TierFill{Tokens: l3, Cap: caps.L3, FillPct: schema.FillPct(l3, caps.L3)},
		Promotions: promotions,
	}, nil
}

func tierTokensPairs(ps []schema.Pair) int {
	t := 0
	for _, p := range ps {
		t += p.Tokens
	}
	return t
}

func tierTokensTheses(ths []schema.Thesis) int {
	t := 0
	for _, th := range ths {
		t += th.Tokens
	}
	return t
}

func tierTokensMicro(mts []schema.MicroThesis) int {
	t := 0
	for _, mt := range mts {
		t += mt.Tokens
	}
	return t
}
