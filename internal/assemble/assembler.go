// Package assemble builds the prompt for a turn: it allocates segment
// caps from the working budget, fills the segments in priority order,
// and applies the squeeze ladder when the total still exceeds the
// budget.
package assemble

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/pearlgull/pearlgull/internal/schema"
	"github.com/pearlgull/pearlgull/internal/tokens"
)

// Input carries everything the assembler needs for one turn. Tier
// slices are ordered oldest first; the assembler prefers newest entries
// when a cap forces a choice.
type Input struct {
	Budget schema.Budget

	// Caps are the per-segment ceilings for this turn. A zero value
	// means "allocate here"; callers that already allocated (to report
	// caps in metadata) pass theirs so one split drives both.
	Caps schema.Caps

	// Core is the rendered identity/profile/thread-summary block. Tools
	// is the rendered tool-description block, empty when none.
	Core  string
	Tools string

	L1 []schema.Pair
	L2 []schema.Thesis
	L3 []schema.MicroThesis

	// UserText is the current user message. It rides inside the output
	// and safety reservations, not the working budget.
	UserText string
}

// Assembler builds prompts.
type Assembler struct {
	logger *slog.Logger
}

func New(logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{logger: logger}
}

// draft is the mutable working state while assembling and squeezing.
type draft struct {
	core  string
	tools string
	l3    []schema.MicroThesis
	l2    []schema.Thesis
	l1    []schema.Pair // pinned pair excluded, newest last
	pin   *schema.Pair
}

func (d *draft) tokensBySegment() map[schema.Segment]int {
	m := map[schema.Segment]int{
		schema.SegmentCore:  tokens.Approx(d.core),
		schema.SegmentTools: tokens.Approx(d.tools),
	}
	for _, mt := range d.l3 {
		m[schema.SegmentL3] += mt.Tokens
	}
	for _, th := range d.l2 {
		m[schema.SegmentL2] += th.Tokens
	}
	for _, p := range d.l1 {
		m[schema.SegmentL1] += p.Tokens
	}
	if d.pin != nil {
		m[schema.SegmentL1] += d.pin.Tokens
	}
	return m
}

func (d *draft) total() int {
	t := 0
	for _, n := range d.tokensBySegment() {
		t += n
	}
	return t
}

// Assemble produces the model messages and the accounting for one turn.
//
// Segments fill in the fixed order core, tools, L3, L2, L1, each bound
// by its cap, newest entries first within the memory tiers. The latest
// L1 pair is pinned: it is included regardless of the L1 cap and
// survives every squeeze step. Content a zero cap leaves no room for
// is dropped at fill time and recorded as the matching squeeze step.
// If the filled total still exceeds the working budget, further
// squeeze steps apply in order until it fits; a prompt that cannot fit
// even after shrinking the core is an error.
func (a *Assembler) Assemble(in Input) (schema.Messages, schema.AssemblyResult, error) {
	coreTokens := tokens.Approx(in.Core)
	toolsTokens := tokens.Approx(in.Tools)
	caps := in.Caps
	if caps == (schema.Caps{}) {
		caps = AllocateCaps(in.Budget.Work, coreTokens, toolsTokens)
	}

	d := &draft{}

	d.core = in.Core
	if caps.ShrinkCore || coreTokens > caps.Core {
		d.core, _ = tokens.CapText(in.Core, caps.Core)
	}
	d.tools = in.Tools
	if toolsTokens > caps.Tools {
		d.tools, _ = tokens.CapText(in.Tools, caps.Tools)
	}

	d.l3 = newestMicroTheses(in.L3, caps.L3)
	d.l2 = newestTheses(in.L2, caps.L2)

	if n := len(in.L1); n > 0 {
		pin := in.L1[n-1]
		d.pin = &pin
		d.l1 = newestPairs(in.L1[:n-1], caps.L1)
	}

	forced := forcedSqueezes(in, caps)

	var applied []schema.SqueezeStep
	if d.total() > in.Budget.Work {
		applied = a.squeeze(d, in.Budget.Work)
		if d.total() > in.Budget.Work {
			return schema.Messages{}, schema.AssemblyResult{}, fmt.Errorf(
				"assemble: prompt needs %d tokens after full squeeze, budget is %d",
				d.total(), in.Budget.Work)
		}
	}
	steps := mergeSqueezes(forced, applied)

	res := a.result(d, caps, steps)
	a.logger.Debug("prompt assembled",
		"total_tokens", d.total(),
		"b_work", in.Budget.Work,
		"squeezes", len(steps),
		"l1_pairs", len(d.l1),
		"pinned", d.pin != nil,
	)
	return a.render(d, in.UserText), res, nil
}

func (a *Assembler) result(d *draft, caps schema.Caps, applied []schema.SqueezeStep) schema.AssemblyResult {
	tok := d.tokensBySegment()
	capMap := map[schema.Segment]int{
		schema.SegmentCore:  caps.Core,
		schema.SegmentTools: caps.Tools,
		schema.SegmentL3:    caps.L3,
		schema.SegmentL2:    caps.L2,
		schema.SegmentL1:    caps.L1,
	}
	fill := make(map[schema.Segment]float64, len(capMap))
	for seg, c := range capMap {
		fill[seg] = schema.FillPct(tok[seg], c)
	}
	return schema.AssemblyResult{
		Order:    schema.SegmentOrder,
		Tokens:   tok,
		Caps:     capMap,
		Squeezes: applied,
		FillPct:  fill,
	}
}

// render lays the draft out as model messages: one system message with
// the core, tools, and compressed memory blocks, then the surviving raw
// exchanges oldest first, then the current user message.
func (a *Assembler) render(d *draft, userText string) schema.Messages {
	var sys strings.Builder
	sys.WriteString(d.core)
	if d.tools != "" {
		sys.WriteString("\n\n## Tools\n")
		sys.WriteString(d.tools)
	}
	if len(d.l3) > 0 {
		sys.WriteString("\n\n## Long-term notes\n")
		for _, mt := range d.l3 {
			sys.WriteString("- ")
			sys.WriteString(mt.Summary)
			sys.WriteString("\n")
		}
	}
	if len(d.l2) > 0 {
		sys.WriteString("\n\n## Earlier in this conversation\n")
		for _, th := range d.l2 {
			sys.WriteString("- ")
			sys.WriteString(th.Summary)
			sys.WriteString("\n")
		}
	}

	msgs := schema.Messages{}
	msgs.AddSystem(strings.TrimSpace(sys.String()))
	for _, p := range d.l1 {
		msgs.AddUser(p.UserText)
		msgs.AddAssistant(p.AssistantText)
	}
	if d.pin != nil {
		msgs.AddUser(d.pin.UserText)
		msgs.AddAssistant(d.pin.AssistantText)
	}
	if userText != "" {
		msgs.AddUser(userText)
	}
	return msgs
}

// newestPairs keeps the newest pairs that fit under limit, preserving
// chronological order in the result.
func newestPairs(pairs []schema.Pair, limit int) []schema.Pair {
	used := 0
	start := len(pairs)
	for i := len(pairs) - 1; i >= 0; i-- {
		if used+pairs[i].Tokens > limit {
			break
		}
		used += pairs[i].Tokens
		start = i
	}
	return append([]schema.Pair(nil), pairs[start:]...)
}

func newestTheses(ths []schema.Thesis, limit int) []schema.Thesis {
	used := 0
	start := len(ths)
	for i := len(ths) - 1; i >= 0; i-- {
		if used+ths[i].Tokens > limit {
			break
		}
		used += ths[i].Tokens
		start = i
	}
	return append([]schema.Thesis(nil), ths[start:]...)
}

func newestMicroTheses(mts []schema.MicroThesis, limit int) []schema.MicroThesis {
	used := 0
	start := len(mts)
	for i := len(mts) - 1; i >= 0; i-- {
		if used+mts[i].Tokens > limit {
			break
		}
		used += mts[i].Tokens
		start = i
	}
	return append([]schema.MicroThesis(nil), mts[start:]...)
}
