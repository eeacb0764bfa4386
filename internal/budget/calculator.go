// Package budget derives the per-turn token budget from the model's
// context window and the configured reservations. The calculation is
// pure: callers resolve the window and pass in the knobs, and get back
// a fully populated schema.Budget.
package budget

import (
	"log/slog"

	"github.com/pearlgull/pearlgull/internal/schema"
)

// Params are the budget knobs. Zero values fall back to the defaults
// below, so a zero Params is usable.
type Params struct {
	// DefaultContextWindow is the effective window when discovery fails.
	DefaultContextWindow int

	// DefaultMaxOutput caps the reply when the request does not ask for a
	// specific max_output_tokens. OutputPctCap bounds either value as a
	// fraction of the effective window.
	DefaultMaxOutput int
	OutputPctCap     float64

	// SysTokens, when positive, reserves exactly that many tokens for the
	// system prompt. Otherwise the reservation is max(SysMinTokens,
	// floor(SysPct * C_eff)).
	SysTokens    int
	SysPct       float64
	SysMinTokens int

	// SafetyTokens, when positive, is the absolute safety margin.
	// Otherwise the margin is ceil(SafetyPct * C_eff).
	SafetyTokens int
	SafetyPct    float64

	// CoreReserved and CoreSysPad are subtracted from the input budget to
	// arrive at the working budget for conversational content.
	CoreReserved int
	CoreSysPad   int
}

const (
	defaultContextWindow = 4096
	defaultMaxOutput     = 512
	defaultOutputPctCap  = 0.25
	defaultSysPct        = 0.05
	defaultSysMinTokens  = 256
	defaultSafetyPct     = 0.10
)

func (p Params) withDefaults() Params {
	if p.DefaultContextWindow <= 0 {
		p.DefaultContextWindow = defaultContextWindow
	}
	if p.DefaultMaxOutput <= 0 {
		p.DefaultMaxOutput = defaultMaxOutput
	}
	if p.OutputPctCap <= 0 {
		p.OutputPctCap = defaultOutputPctCap
	}
	if p.SysPct <= 0 {
		p.SysPct = defaultSysPct
	}
	if p.SysMinTokens <= 0 {
		p.SysMinTokens = defaultSysMinTokens
	}
	if p.SafetyPct <= 0 {
		p.SafetyPct = defaultSafetyPct
	}
	return p
}

// Calculator computes budgets for turns.
type Calculator struct {
	params Params
	logger *slog.Logger
}

func NewCalculator(params Params, logger *slog.Logger) *Calculator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{params: params.withDefaults(), logger: logger}
}

// Request carries the per-turn inputs to the budget calculation.
type Request struct {
	ModelID string
	Window  schema.ContextWindow

	// RequestedMaxOutput is the caller's max_output_tokens, 0 when unset.
	RequestedMaxOutput int
}

// Compute derives the budget for one turn.
//
// The output reservation is the requested (or default) max output,
// bounded by OutputPctCap of the window. The input budget is the window
// minus output, system, and safety reservations, clamped at zero. The
// working budget subtracts the core reservation and pad from the input
// budget; when that would go negative it is clamped and ForcedSqueeze
// is set so the assembler knows the core alone is at risk.
func (c *Calculator) Compute(req Request) schema.Budget {
	p := c.params
	cEff := req.Window.Effective
	if cEff <= 0 {
		cEff = p.DefaultContextWindow
	}

	rOut := req.RequestedMaxOutput
	if rOut <= 0 {
		rOut = p.DefaultMaxOutput
	}
	if outCap := int(p.OutputPctCap * float64(cEff)); rOut > outCap {
		rOut = outCap
	}

	rSys := p.SysTokens
	if rSys <= 0 {
		rSys = int(p.SysPct * float64(cEff))
		if rSys < p.SysMinTokens {
			rSys = p.SysMinTokens
		}
	}

	safety := p.SafetyTokens
	if safety <= 0 {
		safety = ceilFrac(p.SafetyPct, cEff)
	}

	totalIn := cEff - rOut - rSys - safety
	if totalIn < 0 {
		totalIn = 0
	}

	work := totalIn - p.CoreReserved - p.CoreSysPad
	forced := false
	if work < 0 {
		work = 0
		forced = true
	}

	b := schema.Budget{
		ModelID:            req.ModelID,
		Window:             req.Window,
		CEff:               cEff,
		ROut:               rOut,
		RSys:               rSys,
		Safety:             safety,
		TotalIn:            totalIn,
		CoreReserved:       p.CoreReserved,
		CoreSysPad:         p.CoreSysPad,
		Work:               work,
		EffectiveMaxOutput: rOut,
		ForcedSqueeze:      forced,
	}

	c.logger.Debug("budget computed",
		"model", req.ModelID,
		"window_source", req.Window.Source,
		"c_eff", cEff,
		"r_out", rOut,
		"r_sys", rSys,
		"safety", safety,
		"b_total_in", totalIn,
		"b_work", work,
		"forced_squeeze", forced,
	)
	return b
}

func ceilFrac(pct float64, n int) int {
	v := pct * float64(n)
	i := int(v)
	if v > float64(i) {
		i++
	}
	return i
}
