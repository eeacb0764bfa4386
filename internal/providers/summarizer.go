package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/pearlgull/pearlgull/internal/schema"
	"github.com/pearlgull/pearlgull/internal/shared/stringutils"
)

const summarizeSystemPrompt = "You compress conversation fragments. " +
	"Reply with a single dense paragraph in the conversation's language. " +
	"Keep names, decisions, numbers, and open questions. No preamble."

// ModelSummarizer compresses text batches through the model server.
type ModelSummarizer struct {
	client    schema.ModelClient
	model     string
	maxTokens int
}

func NewModelSummarizer(client schema.ModelClient, model string, maxTokens int) *ModelSummarizer {
	if maxTokens <= 0 {
		maxTokens = 160
	}
	return &ModelSummarizer{client: client, model: model, maxTokens: maxTokens}
}

// Summarize implements schema.Summarizer.
func (s *ModelSummarizer) Summarize(ctx context.Context, texts []string) (string, error) {
	if len(texts) == 0 {
		return "", fmt.Errorf("summarize: empty batch")
	}
	out, err := s.client.Generate(ctx, summarizeSystemPrompt, strings.Join(texts, "\n"), schema.ChatOptions{
		Model:       s.model,
		MaxTokens:   s.maxTokens,
		Temperature: 0.2,
	})
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}
	out = strings.TrimSpace(stringutils.StripThink(out))
	if out == "" {
		return "", fmt.Errorf("summarize: model returned empty text")
	}
	return out, nil
}
