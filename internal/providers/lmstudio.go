// Package providers talks to the local model server. The only backend
// is an LM Studio style HTTP API: an OpenAI-compatible /v1 surface for
// completions plus the /api/v0 surface for model discovery.
package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pearlgull/pearlgull/internal/schema"
	"github.com/pearlgull/pearlgull/internal/tokens"
)

// LMStudioClient implements schema.ModelClient against a local server.
type LMStudioClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewLMStudioClient(baseURL string, logger *slog.Logger) *LMStudioClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &LMStudioClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logger,
	}
}

// rawModel is the wire shape of one /api/v0 model entry. Servers and
// model files disagree on the context-length key, so everything else is
// collected into Extra and probed by name.
type rawModel struct {
	ID    string         `json:"id"`
	State string         `json:"state"`
	Extra map[string]any `json:"-"`
}

func (m *rawModel) UnmarshalJSON(data []byte) error {
	var extra map[string]any
	if err := json.Unmarshal(data, &extra); err != nil {
		return err
	}
	if id, ok := extra["id"].(string); ok {
		m.ID = id
	}
	if st, ok := extra["state"].(string); ok {
		m.State = st
	}
	m.Extra = extra
	return nil
}

var (
	loadedContextKeys = []string{"loaded_context_length", "context_length", "context_window", "ctx_window"}
	maxContextKeys    = []string{"max_context_length", "max_context_window", "n_ctx", "max_position_embeddings"}
)

func intKey(extra map[string]any, keys []string) int {
	for _, k := range keys {
		if v, ok := extra[k]; ok {
			if f, ok := v.(float64); ok && f > 0 {
				return int(f)
			}
		}
	}
	return 0
}

func (m rawModel) toInfo() schema.ModelInfo {
	info := schema.ModelInfo{
		ID:            m.ID,
		LoadedContext: intKey(m.Extra, loadedContextKeys),
		MaxContext:    intKey(m.Extra, maxContextKeys),
	}
	switch m.State {
	case "loaded":
		info.State = schema.ModelStateLoaded
	case "not-loaded":
		info.State = schema.ModelStateNotLoaded
	default:
		info.State = schema.ModelStateUnknown
	}
	return info
}

// ListModels fetches /api/v0/models.
func (c *LMStudioClient) ListModels(ctx context.Context) ([]schema.ModelInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v0/models", nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("list models: HTTP %d: %s", resp.StatusCode, truncBody(raw))
	}

	// The list arrives either bare or wrapped in {"data": [...]}.
	var wrapped struct {
		Data []rawModel `json:"data"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil || wrapped.Data == nil {
		var bare []rawModel
		if err := json.Unmarshal(raw, &bare); err != nil {
			return nil, fmt.Errorf("decode model list: %w", err)
		}
		wrapped.Data = bare
	}

	out := make([]schema.ModelInfo, 0, len(wrapped.Data))
	for _, m := range wrapped.Data {
		out = append(out, m.toInfo())
	}
	return out, nil
}

// ModelInfo fetches discovery data for one model. A 404 from the
// per-model endpoint falls back to scanning the list; any other failure
// returns the id with Defaulted set, because window discovery must
// never block a turn.
func (c *LMStudioClient) ModelInfo(ctx context.Context, modelID string) schema.ModelInfo {
	info, err := c.fetchModel(ctx, modelID)
	if err == nil {
		return info
	}
	c.logger.Warn("model discovery failed, using defaults", "model", modelID, "error", err)
	return schema.ModelInfo{ID: modelID, Defaulted: true}
}

func (c *LMStudioClient) fetchModel(ctx context.Context, modelID string) (schema.ModelInfo, error) {
	u := c.baseURL + "/api/v0/models/" + url.PathEscape(modelID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return schema.ModelInfo{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return schema.ModelInfo{}, fmt.Errorf("fetch model: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return schema.ModelInfo{}, fmt.Errorf("read response: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var m rawModel
		if err := json.Unmarshal(raw, &m); err != nil {
			return schema.ModelInfo{}, fmt.Errorf("decode model: %w", err)
		}
		if m.ID == "" {
			m.ID = modelID
		}
		return m.toInfo(), nil
	case http.StatusNotFound:
		// Older servers only expose the list endpoint.
		models, err := c.ListModels(ctx)
		if err != nil {
			return schema.ModelInfo{}, err
		}
		for _, info := range models {
			if info.ID == modelID {
				return info, nil
			}
		}
		return schema.ModelInfo{}, fmt.Errorf("model %q not in server list", modelID)
	default:
		return schema.ModelInfo{}, fmt.Errorf("fetch model: HTTP %d: %s", resp.StatusCode, truncBody(raw))
	}
}

type chatRequest struct {
	Model       string           `json:"model"`
	Messages    []schema.Message `json:"messages"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	Temperature float64          `json:"temperature"`
	Stream      bool             `json:"stream"`
}

type chatChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *schema.Usage `json:"usage"`
}

// ChatStream runs a streaming chat completion over SSE, invoking
// onDelta for each content fragment.
func (c *LMStudioClient) ChatStream(ctx context.Context, messages schema.Messages, opts schema.ChatOptions, onDelta schema.DeltaFunc) (string, schema.Usage, error) {
	body := chatRequest{
		Model:       opts.Model,
		Messages:    messages.Messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stream:      true,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", schema.Usage{}, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", schema.Usage{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", schema.Usage{}, fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return "", schema.Usage{}, fmt.Errorf("chat request: HTTP %d: %s", resp.StatusCode, truncBody(raw))
	}

	var full strings.Builder
	var usage schema.Usage
	sawUsage := false

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "[DONE]" {
			continue
		}

		var chunk chatChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			c.logger.Warn("skipping malformed stream chunk", "error", err)
			continue
		}
		if chunk.Usage != nil {
			usage = *chunk.Usage
			sawUsage = true
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			full.WriteString(choice.Delta.Content)
			if onDelta != nil {
				onDelta(choice.Delta.Content)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		// Context cancellation surfaces here mid-stream.
		if ctx.Err() != nil {
			return full.String(), usage, ctx.Err()
		}
		return full.String(), usage, fmt.Errorf("read stream: %w", err)
	}

	if !sawUsage {
		usage.CompletionTokens = tokens.Approx(full.String())
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	return full.String(), usage, nil
}

// Generate runs one blocking system+user completion. Used for
// summarization, where streaming has no audience.
func (c *LMStudioClient) Generate(ctx context.Context, system, user string, opts schema.ChatOptions) (string, error) {
	msgs := schema.Messages{}
	if system != "" {
		msgs.AddSystem(system)
	}
	msgs.AddUser(user)

	body := chatRequest{
		Model:       opts.Model,
		Messages:    msgs.Messages,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
		Stream:      false,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/chat/completions", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("generate request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generate request: HTTP %d: %s", resp.StatusCode, truncBody(raw))
	}

	var out chatChunk
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("generate: empty choices")
	}
	return out.Choices[0].Message.Content, nil
}

func truncBody(raw []byte) string {
	s := strings.TrimSpace(string(raw))
	if len(s) > 300 {
		return s[:300] + "..."
	}
	return s
}
