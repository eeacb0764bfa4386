package schema

// Segment names the ordered content blocks of an assembled prompt.
type Segment string

const (
	SegmentCore  Segment = "core"
	SegmentTools Segment = "tools"
	SegmentL3    Segment = "l3"
	SegmentL2    Segment = "l2"
	SegmentL1    Segment = "l1"
)

// SegmentOrder is the fixed priority order used by the assembler.
var SegmentOrder = []Segment{SegmentCore, SegmentTools, SegmentL3, SegmentL2, SegmentL1}

// SqueezeStep names one applied squeeze fallback.
type SqueezeStep string

const (
	SqueezeDropL1     SqueezeStep = "drop_l1"
	SqueezeDropL2     SqueezeStep = "drop_l2"
	SqueezeDropTools  SqueezeStep = "drop_tools"
	SqueezeShrinkCore SqueezeStep = "shrink_core"
)

// AssemblyResult is the per-turn accounting of what made it into the
// prompt. Tokens, caps, and fill reflect the post-squeeze state so callers
// can render accurate utilisation.
type AssemblyResult struct {
	Order    []Segment           `json:"order"`
	Tokens   map[Segment]int     `json:"tokens"`
	Caps     map[Segment]int     `json:"caps"`
	Squeezes []SqueezeStep       `json:"squeezes"`
	FillPct  map[Segment]float64 `json:"fill_pct"`
}

// Squeezed reports whether any squeeze step was applied.
func (r AssemblyResult) Squeezed() bool { return len(r.Squeezes) > 0 }

// Total returns the post-squeeze token total across all segments.
func (r AssemblyResult) Total() int {
	total := 0
	for _, n := range r.Tokens {
		total += n
	}
	return total
}
