package assemble

import (
	"github.com/pearlgull/pearlgull/internal/schema"
	"github.com/pearlgull/pearlgull/internal/tokens"
)

// squeezeStep is one fallback: apply mutates the draft to free tokens
// and reports whether it changed anything.
type squeezeStep struct {
	name  schema.SqueezeStep
	apply func(d *draft) bool
}

// squeezeLadder is the fixed escalation order. Cheap context goes
// first: raw history (the pinned pair stays), then compressed history,
// then tool descriptions, and only as a last resort the core itself.
var squeezeLadder = []squeezeStep{
	{schema.SqueezeDropL1, func(d *draft) bool {
		if len(d.l1) == 0 {
			return false
		}
		d.l1 = nil
		return true
	}},
	{schema.SqueezeDropL2, func(d *draft) bool {
		if len(d.l2) == 0 {
			return false
		}
		d.l2 = nil
		return true
	}},
	{schema.SqueezeDropTools, func(d *draft) bool {
		if d.tools == "" {
			return false
		}
		d.tools = ""
		return true
	}},
	{schema.SqueezeShrinkCore, func(d *draft) bool {
		if tokens.Approx(d.core) <= minCoreSkeleton {
			return false
		}
		d.core, _ = tokens.CapText(d.core, minCoreSkeleton)
		return true
	}},
}

// forcedSqueezes reports the drops the caps themselves made at fill
// time: a zero cap over present content removes that content even when
// the filled total fits the budget, and a clamped core is a shrink.
// The pinned L1 pair rides outside the L1 cap, so a lone pair is never
// a drop.
func forcedSqueezes(in Input, caps schema.Caps) []schema.SqueezeStep {
	var steps []schema.SqueezeStep
	if caps.L1 == 0 && len(in.L1) > 1 {
		steps = append(steps, schema.SqueezeDropL1)
	}
	if caps.L2 == 0 && len(in.L2) > 0 {
		steps = append(steps, schema.SqueezeDropL2)
	}
	if caps.Tools == 0 && in.Tools != "" {
		steps = append(steps, schema.SqueezeDropTools)
	}
	if caps.ShrinkCore {
		steps = append(steps, schema.SqueezeShrinkCore)
	}
	return steps
}

// mergeSqueezes combines fill-time drops with applied ladder steps,
// deduplicated and in ladder order.
func mergeSqueezes(forced, applied []schema.SqueezeStep) []schema.SqueezeStep {
	if len(forced) == 0 {
		return applied
	}
	seen := make(map[schema.SqueezeStep]bool, len(forced)+len(applied))
	for _, s := range forced {
		seen[s] = true
	}
	for _, s := range applied {
		seen[s] = true
	}
	var out []schema.SqueezeStep
	for _, step := range squeezeLadder {
		if seen[step.name] {
			out = append(out, step.name)
		}
	}
	return out
}

// squeeze walks the ladder, applying steps until the draft fits the
// working budget, and returns the steps that actually changed the
// draft. It stops as soon as the total fits; callers detect the
// cannot-fit case by re-checking the total.
func (a *Assembler) squeeze(d *draft, work int) []schema.SqueezeStep {
	var applied []schema.SqueezeStep
	for _, step := range squeezeLadder {
		if d.total() <= work {
			break
		}
		if step.apply(d) {
			applied = append(applied, step.name)
			a.logger.Info("squeeze applied", "step", step.name, "total_tokens", d.total(), "b_work", work)
		}
	}
	return applied
}
