package assemble

import "github.com/pearlgull/pearlgull/internal/schema"

const (
	// minCoreSkeleton is the floor for the core block. Even a stripped
	// core keeps its identity line and the most important profile facts.
	minCoreSkeleton = 60

	// toolsPctCap bounds the tools block as a fraction of the working
	// budget so descriptions never crowd out conversation.
	toolsPctCap = 0.15

	l1Share = 0.60
	l2Share = 0.30
	l3Share = 0.10
)

// AllocateCaps splits the working budget into per-segment ceilings.
//
// The core gets what its content needs, floored at the skeleton size and
// clamped to the working budget; a clamp sets ShrinkCore. Tools get
// their actual size up to toolsPctCap of the budget. Whatever remains is
// split across the memory tiers by fixed shares, newest history (L1)
// taking the largest slice.
func AllocateCaps(work, coreTokens, toolsTokens int) schema.Caps {
	caps := schema.Caps{}
	if work <= 0 {
		caps.ShrinkCore = coreTokens > 0
		return caps
	}

	core := coreTokens
	if core < minCoreSkeleton {
		core = minCoreSkeleton
	}
	if core > work {
		core = work
		caps.ShrinkCore = true
	}
	caps.Core = core

	toolsCap := int(toolsPctCap * float64(work))
	if toolsTokens < toolsCap {
		toolsCap = toolsTokens
	}
	if avail := work - caps.Core; toolsCap > avail {
		toolsCap = avail
	}
	if toolsCap < 0 {
		toolsCap = 0
	}
	caps.Tools = toolsCap

	remaining := work - caps.Core - caps.Tools
	if remaining <= 0 {
		return caps
	}

	caps.L1 = int(l1Share * float64(remaining))
	caps.L2 = int(l2Share * float64(remaining))
	caps.L3 = int(l3Share * float64(remaining))
	return caps
}
