package schema

// WindowSource records which discovery value produced the effective
// context-window size for a turn.
type WindowSource string

const (
	// WindowSourceLoaded means the model server reported the context length
	// the model is actually loaded with.
	WindowSourceLoaded WindowSource = "loaded"
	// WindowSourceMax means only the model's maximum context length was
	// known, so that was used.
	WindowSourceMax WindowSource = "max"
	// WindowSourceDefault means discovery failed or returned nothing usable
	// and the configured default was used.
	WindowSourceDefault WindowSource = "default"
)

// ContextWindow is the usable context size for the current turn.
// Loaded and Max are zero when unknown; Effective is always set.
type ContextWindow struct {
	Effective int          `json:"effective_tokens"`
	Loaded    int          `json:"loaded_tokens,omitempty"`
	Max       int          `json:"max_tokens,omitempty"`
	Source    WindowSource `json:"source"`
}

// ResolveWindow picks the effective window from the discovery values,
// preferring loaded over max over the configured default, and tags the
// result with its source. Non-positive values count as unknown.
func ResolveWindow(loaded, max, fallback int) ContextWindow {
	w := ContextWindow{}
	if loaded > 0 {
		w.Loaded = loaded
	}
	if max > 0 {
		w.Max = max
	}
	switch {
	case loaded > 0:
		w.Effective = loaded
		w.Source = WindowSourceLoaded
	case max > 0:
		w.Effective = max
		w.Source = WindowSourceMax
	default:
		w.Effective = fallback
		w.Source = WindowSourceDefault
	}
	return w
}
