package schema

// Budget is the per-turn token budget derived from the context window and
// the configured reservations. All values are token counts.
//
// TotalIn is the input budget left after output, system, and safety
// reservations. Work is the conversational budget after the core block's
// reservation and pad. Both are clamped so they never go negative;
// ForcedSqueeze is set when Work had to be clamped.
type Budget struct {
	ModelID string       `json:"model_id"`
	Window  ContextWindow `json:"window"`

	CEff   int `json:"c_eff"`
	ROut   int `json:"r_out"`
	RSys   int `json:"r_sys"`
	Safety int `json:"safety"`

	TotalIn int `json:"b_total_in"`

	CoreTokens   int `json:"core_tokens"`
	CoreCap      int `json:"core_cap"`
	CoreReserved int `json:"core_reserved"`
	CoreSysPad   int `json:"core_sys_pad"`

	Work int `json:"b_work"`

	// EffectiveMaxOutput is the output token cap actually granted to the
	// model for this turn (equals ROut).
	EffectiveMaxOutput int `json:"effective_max_output_tokens"`

	ForcedSqueeze bool `json:"forced_squeeze,omitempty"`
}

// Caps are the per-segment token ceilings derived from a Budget.
type Caps struct {
	Core  int `json:"core"`
	Tools int `json:"tools"`
	L1    int `json:"l1"`
	L2    int `json:"l2"`
	L3    int `json:"l3"`

	// ShrinkCore is set when the core content alone exceeded the working
	// budget and the assembler must reduce the core to its skeleton.
	ShrinkCore bool `json:"shrink_core,omitempty"`
}

// Sum returns the total of all segment caps.
func (c Caps) Sum() int { return c.Core + c.Tools + c.L1 + c.L2 + c.L3 }
