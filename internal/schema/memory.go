package schema

import "time"

// Pair is one raw user/assistant exchange held in the L1 tier.
// Texts are stored already clipped to the per-role token caps; Clipped
// records that the original was longer (the full text lives in the
// message log, not here).
type Pair struct {
	ID            string    `json:"id"`
	UserText      string    `json:"user_text"`
	AssistantText string    `json:"assistant_text"`
	Tokens        int       `json:"tokens"`
	Clipped       bool      `json:"clipped,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Thesis is one L2 entry: a batch of contiguous L1 pairs compressed into a
// short summary. SourcePairIDs is the immutable provenance set.
type Thesis struct {
	ID            string    `json:"id"`
	SourcePairIDs []string  `json:"source_pair_ids"`
	Summary       string    `json:"summary"`
	Tokens        int       `json:"tokens"`
	CreatedAt     time.Time `json:"created_at"`
}

// MicroThesis is one L3 entry: a batch of L2 theses compressed into a
// single line-per-thesis digest.
type MicroThesis struct {
	ID              string    `json:"id"`
	SourceThesisIDs []string  `json:"source_thesis_ids"`
	Summary         string    `json:"summary"`
	Tokens          int       `json:"tokens"`
	CreatedAt       time.Time `json:"created_at"`
}

// TierFill is the budget occupancy of one memory tier.
type TierFill struct {
	Tokens  int     `json:"tokens"`
	Cap     int     `json:"cap"`
	FillPct float64 `json:"fill_pct"`
}

// MemorySnapshot is the per-tier fill state emitted to the transport at
// turn start and again after any post-turn promotion.
type MemorySnapshot struct {
	ThreadID   string   `json:"thread_id"`
	L1         TierFill `json:"l1"`
	L2         TierFill `json:"l2"`
	L3         TierFill `json:"l3"`
	Promotions []string `json:"promotions,omitempty"`
}

// FillPct computes occupancy as a percentage, 0 when cap is zero.
func FillPct(tokens, cap int) float64 {
	if cap <= 0 {
		return 0
	}
	if tokens < 0 {
		tokens = 0
	}
	return 100 * float64(tokens) / float64(cap)
}
