package schema

import "context"

// ModelState mirrors the model server's load state for a model.
type ModelState string

const (
	ModelStateLoaded    ModelState = "loaded"
	ModelStateNotLoaded ModelState = "not-loaded"
	ModelStateUnknown   ModelState = ""
)

// ModelInfo is the normalised model-discovery result. LoadedContext and
// MaxContext are zero when the server did not report them.
type ModelInfo struct {
	ID            string     `json:"id"`
	State         ModelState `json:"state"`
	LoadedContext int        `json:"loaded_context_length,omitempty"`
	MaxContext    int        `json:"max_context_length,omitempty"`
	// Defaulted is set when discovery failed and the values are the
	// configured fallback rather than server-reported.
	Defaulted bool `json:"defaulted,omitempty"`
}

// ChatOptions configures a single model call.
type ChatOptions struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// Usage is the token accounting reported by the model server.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// DeltaFunc receives one streamed content fragment.
type DeltaFunc func(delta string)

// ModelClient is the contract with the local model server.
//
// ModelInfo may be served from cache; implementations must tolerate an
// unreachable server by returning a Defaulted ModelInfo rather than an
// error (window discovery failures are informational, not fatal).
type ModelClient interface {
	// ListModels returns the ids of models the server knows about.
	ListModels(ctx context.Context) ([]ModelInfo, error)
	// ModelInfo returns discovery data for one model.
	ModelInfo(ctx context.Context, modelID string) ModelInfo
	// ChatStream runs a streaming chat completion, invoking onDelta for
	// each content fragment, and returns the full text and usage.
	ChatStream(ctx context.Context, messages Messages, opts ChatOptions, onDelta DeltaFunc) (string, Usage, error)
	// Generate runs a blocking system+user completion (summarization).
	Generate(ctx context.Context, system, user string, opts ChatOptions) (string, error)
}

// Summarizer compresses an ordered batch of texts into one shorter text.
// Implementations may fail or time out; callers treat failure as
// "leave the tier unpromoted and retry later".
type Summarizer interface {
	Summarize(ctx context.Context, texts []string) (string, error)
}
