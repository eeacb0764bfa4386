package schema

import (
	"fmt"
	"strings"
)

// Profile is the persisted user profile rendered into the core context
// block of every prompt.
type Profile struct {
	DisplayName       string `json:"display_name,omitempty"`
	PreferredLanguage string `json:"preferred_language,omitempty"`
	Tone              string `json:"tone,omitempty"`
	Timezone          string `json:"timezone,omitempty"`
	Region            string `json:"region,omitempty"`
	WorkHours         string `json:"work_hours,omitempty"`
	Goals             string `json:"goals,omitempty"`
	Brevity           string `json:"brevity,omitempty"`
	FormatDefaults    string `json:"format_defaults,omitempty"`
	Interests         string `json:"interests,omitempty"`
	WorkflowTools     string `json:"workflow_tools,omitempty"`
	OS                string `json:"os,omitempty"`
	Runtime           string `json:"runtime,omitempty"`
}

// TextView renders the profile as a stable, ordered text block. The same
// rendering is used for core token counting and for the assembled prompt,
// so counts and content never drift apart.
func (p Profile) TextView() string {
	var b strings.Builder
	add := func(label, v string) {
		if v == "" {
			return
		}
		fmt.Fprintf(&b, "%s: %s\n", label, v)
	}
	add("Name", p.DisplayName)
	add("Language", p.PreferredLanguage)
	add("Tone", p.Tone)
	add("Timezone", p.Timezone)
	add("Region", p.Region)
	add("WorkHours", p.WorkHours)
	add("Goals", p.Goals)
	add("Brevity", p.Brevity)
	add("FormatDefaults", p.FormatDefaults)
	add("Interests", p.Interests)
	add("WorkflowTools", p.WorkflowTools)
	add("OS", p.OS)
	add("Runtime", p.Runtime)
	return strings.TrimSpace(b.String())
}
