package chat

import (
	"strings"

	"github.com/pearlgull/pearlgull/internal/schema"
)

const defaultSystemPrompt = "You are pearlgull, a concise local assistant. " +
	"Answer directly, match the user's language, and say so when unsure."

// renderCore builds the core context block: the identity prompt, the
// user profile, and the rolling thread summary. The exact same text is
// used for token counting and for the assembled prompt.
func renderCore(systemPrompt string, profile schema.Profile, threadSummary string) string {
	if systemPrompt == "" {
		systemPrompt = defaultSystemPrompt
	}

	var b strings.Builder
	b.WriteString(systemPrompt)

	if pv := profile.TextView(); pv != "" {
		b.WriteString("\n\n## About the user\n")
		b.WriteString(pv)
	}
	if threadSummary != "" {
		b.WriteString("\n\n## Conversation so far\n")
		b.WriteString(threadSummary)
	}
	return b.String()
}
