// Package maintenance runs the fixed background jobs: pruning the
// model-info cache and sweeping threads whose rolling summary went
// stale while nobody was talking.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	robfigcron "github.com/robfig/cron/v3"

	"github.com/pearlgull/pearlgull/internal/chat"
	"github.com/pearlgull/pearlgull/internal/providers"
	"github.com/pearlgull/pearlgull/internal/store"
)

const (
	cachePruneSpec   = "*/5 * * * *" // every 5 minutes
	summarySweepSpec = "*/30 * * * *"

	// sweepIdleWindow bounds the sweep to threads touched recently;
	// threads idle longer than this keep whatever summary they have.
	sweepIdleWindow = 24 * time.Hour
)

// Service owns the cron scheduler.
type Service struct {
	cron    *robfigcron.Cron
	store   *store.Store
	cache   *providers.InfoCache
	summary *chat.Autosummarizer
	model   string
	logger  *slog.Logger
}

func NewService(st *store.Store, cache *providers.InfoCache, summary *chat.Autosummarizer, model string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cron:    robfigcron.New(),
		store:   st,
		cache:   cache,
		summary: summary,
		model:   model,
		logger:  logger,
	}
}

// Start registers the jobs and runs the scheduler until ctx is
// cancelled.
func (s *Service) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(cachePruneSpec, s.pruneCache); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(summarySweepSpec, s.sweepSummaries); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("maintenance scheduler started")

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.logger.Info("maintenance scheduler stopped")
	return ctx.Err()
}

func (s *Service) pruneCache() {
	if s.cache == nil {
		return
	}
	if removed := s.cache.Prune(); removed > 0 {
		s.logger.Debug("model info cache pruned", "removed", removed)
	}
}

// sweepSummaries schedules a summary refresh for recently active
// threads. The autosummarizer's own triggers decide whether each one
// actually runs.
func (s *Service) sweepSummaries() {
	if s.summary == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	threads, err := s.store.ListThreads(ctx)
	if err != nil {
		s.logger.Error("summary sweep: list threads", "error", err)
		return
	}

	cutoff := time.Now().Add(-sweepIdleWindow)
	scheduled := 0
	for _, th := range threads {
		if th.UpdatedAt.Before(cutoff) {
			continue
		}
		s.summary.Schedule(th.ID, s.model)
		scheduled++
	}
	if scheduled > 0 {
		s.logger.Debug("summary sweep scheduled", "threads", scheduled)
	}
}
