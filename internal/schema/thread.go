package schema

import "time"

// Thread is one persisted conversation.
type Thread struct {
	ID        string    `json:"id"`
	Title     string    `json:"title,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Rolling autosummary state.
	Summary           string    `json:"summary,omitempty"`
	SummaryLang       string    `json:"summary_lang,omitempty"`
	SummaryQuality    string    `json:"summary_quality,omitempty"` // "ok" | "draft"
	SummarySourceHash string    `json:"-"`
	SummaryUpdatedAt  time.Time `json:"summary_updated_at,omitempty"`
	LastSummaryRunAt  time.Time `json:"-"`
}

// MemoryState is the persisted per-thread tier bookkeeping: the logical
// truncation points (entries at or below these marks are promoted and
// excluded from budget counts) and the last known token footprints.
type MemoryState struct {
	ThreadID string `json:"thread_id"`

	// L1Promoted is the number of oldest L1 pairs already compressed into
	// L2 theses. L2Promoted mirrors it for theses compressed into L3.
	// L3Trimmed counts micro-theses evicted when L3 overflowed its cap.
	L1Promoted int `json:"l1_promoted"`
	L2Promoted int `json:"l2_promoted"`
	L3Trimmed  int `json:"l3_trimmed"`

	L1Tokens int `json:"l1_tokens"`
	L2Tokens int `json:"l2_tokens"`
	L3Tokens int `json:"l3_tokens"`

	UpdatedAt time.Time `json:"updated_at"`
}
