package providers

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/pearlgull/pearlgull/internal/schema"
)

const (
	// infoTTL is how long a loaded model's discovery result stays fresh.
	infoTTL = 5 * time.Minute
	// provisionalTTL is the short lease for not-loaded or defaulted
	// results, so a model that loads moments later is picked up quickly.
	provisionalTTL = 2 * time.Second

	loadPollAttempts = 10
	loadPollInterval = 600 * time.Millisecond
)

type cachedInfo struct {
	info    schema.ModelInfo
	expires time.Time
}

// InfoCache wraps a ModelClient with a per-model TTL cache over
// ModelInfo. Concurrent lookups for the same model collapse into one
// upstream request.
type InfoCache struct {
	client schema.ModelClient
	logger *slog.Logger
	clock  func() time.Time

	mu      sync.Mutex
	entries map[string]cachedInfo
	group   singleflight.Group
}

func NewInfoCache(client schema.ModelClient, logger *slog.Logger) *InfoCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &InfoCache{
		client:  client,
		logger:  logger,
		clock:   time.Now,
		entries: map[string]cachedInfo{},
	}
}

func (c *InfoCache) ListModels(ctx context.Context) ([]schema.ModelInfo, error) {
	return c.client.ListModels(ctx)
}

func (c *InfoCache) ChatStream(ctx context.Context, messages schema.Messages, opts schema.ChatOptions, onDelta schema.DeltaFunc) (string, schema.Usage, error) {
	return c.client.ChatStream(ctx, messages, opts, onDelta)
}

func (c *InfoCache) Generate(ctx context.Context, system, user string, opts schema.ChatOptions) (string, error) {
	return c.client.Generate(ctx, system, user, opts)
}

// ModelInfo returns cached discovery data when fresh, otherwise asks
// the upstream client once no matter how many callers arrive together.
func (c *InfoCache) ModelInfo(ctx context.Context, modelID string) schema.ModelInfo {
	c.mu.Lock()
	if e, ok := c.entries[modelID]; ok && c.clock().Before(e.expires) {
		c.mu.Unlock()
		return e.info
	}
	c.mu.Unlock()

	v, _, _ := c.group.Do(modelID, func() (any, error) {
		info := c.client.ModelInfo(ctx, modelID)
		ttl := infoTTL
		if info.Defaulted || info.State != schema.ModelStateLoaded {
			ttl = provisionalTTL
		}
		c.mu.Lock()
		c.entries[modelID] = cachedInfo{info: info, expires: c.clock().Add(ttl)}
		c.mu.Unlock()
		return info, nil
	})
	return v.(schema.ModelInfo)
}

// Invalidate drops one model's cache entry.
func (c *InfoCache) Invalidate(modelID string) {
	c.mu.Lock()
	delete(c.entries, modelID)
	c.mu.Unlock()
}

// Prune drops expired entries. Run periodically by maintenance.
func (c *InfoCache) Prune() int {
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()
	removed := 0
	for id, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, id)
			removed++
		}
	}
	return removed
}

// WaitForLoad polls discovery until the model reports loaded, giving a
// just-started model time to come up. It returns the last observed
// info either way.
func (c *InfoCache) WaitForLoad(ctx context.Context, modelID string) schema.ModelInfo {
	var info schema.ModelInfo
	for attempt := 0; attempt < loadPollAttempts; attempt++ {
		info = c.ModelInfo(ctx, modelID)
		if info.State == schema.ModelStateLoaded && info.LoadedContext > 0 {
			return info
		}
		select {
		case <-ctx.Done():
			return info
		case <-time.After(loadPollInterval):
		}
	}
	c.logger.Warn("model did not report loaded in time", "model", modelID, "state", info.State)
	return info
}
