// Package dependency wires core pearlgull services using go.uber.org/dig.
package dependency

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"go.uber.org/dig"

	"github.com/pearlgull/pearlgull/internal/assemble"
	"github.com/pearlgull/pearlgull/internal/budget"
	"github.com/pearlgull/pearlgull/internal/bus"
	"github.com/pearlgull/pearlgull/internal/chat"
	"github.com/pearlgull/pearlgull/internal/config"
	"github.com/pearlgull/pearlgull/internal/maintenance"
	"github.com/pearlgull/pearlgull/internal/memory"
	"github.com/pearlgull/pearlgull/internal/providers"
	"github.com/pearlgull/pearlgull/internal/schema"
	"github.com/pearlgull/pearlgull/internal/server"
	"github.com/pearlgull/pearlgull/internal/store"
)

// Container holds the resolved core service singletons.
// Callers use the typed getter methods; they never need to import dig directly.
type Container struct {
	st          *store.Store
	client      schema.ModelClient
	engine      *chat.Engine
	httpServer  *server.Server
	maintenance *maintenance.Service
	events      *bus.Bus
}

func (c *Container) Store() *store.Store              { return c.st }
func (c *Container) ModelClient() schema.ModelClient  { return c.client }
func (c *Container) Engine() *chat.Engine             { return c.engine }
func (c *Container) Server() *server.Server           { return c.httpServer }
func (c *Container) Maintenance() *maintenance.Service { return c.maintenance }
func (c *Container) Events() *bus.Bus                 { return c.events }

// Close releases held resources, currently the database handle.
func (c *Container) Close() error {
	if c.st != nil {
		return c.st.Close()
	}
	return nil
}

// New builds and wires all core services from cfg.
func New(cfg *config.Config) (*Container, error) {
	d := dig.New()

	providersFns := []any{
		func() *config.Config { return cfg },
		newLogger,
		newStore,
		newModelClient,
		newEventBus,
		newSummarizer,
		newMemoryManager,
		newCalculator,
		newAssembler,
		newPromoter,
		newAutosummarizer,
		newEngine,
		newServer,
		newMaintenance,
	}
	for _, fn := range providersFns {
		if err := d.Provide(fn); err != nil {
			return nil, err
		}
	}

	var result *Container
	err := d.Invoke(func(
		st *store.Store,
		client schema.ModelClient,
		engine *chat.Engine,
		httpServer *server.Server,
		maint *maintenance.Service,
		events *bus.Bus,
	) {
		result = &Container{
			st:          st,
			client:      client,
			engine:      engine,
			httpServer:  httpServer,
			maintenance: maint,
			events:      events,
		}
	})
	return result, err
}

func newLogger(cfg *config.Config) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Logging.Level)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func newStore(cfg *config.Config) (*store.Store, error) {
	_ = cfg // data location is fixed under the data dir
	return store.Open(config.DataDir())
}

func newModelClient(cfg *config.Config, logger *slog.Logger) (schema.ModelClient, *providers.InfoCache) {
	base := providers.NewLMStudioClient(cfg.Model.BaseURL, logger)
	cache := providers.NewInfoCache(base, logger)
	return cache, cache
}

func newEventBus() *bus.Bus {
	return bus.New()
}

func newSummarizer(client schema.ModelClient, cfg *config.Config) schema.Summarizer {
	model := cfg.Model.SummaryModel
	if model == "" {
		model = cfg.Model.DefaultModel
	}
	return providers.NewModelSummarizer(client, model, 0)
}

func newMemoryManager(st *store.Store, sum schema.Summarizer, cfg *config.Config, logger *slog.Logger) *memory.Manager {
	return memory.NewManager(st, sum, memory.Params{
		UserClipTokens:      cfg.Memory.UserClipTokens,
		AssistantClipTokens: cfg.Memory.AssistantClipTokens,
		PromotionTrigger:    cfg.Memory.PromotionTriggerTokens,
		PromotionBatch:      cfg.Memory.PromotionBatch,
		L3MaxTokens:         cfg.Memory.L3MaxTokens,
	}, logger)
}

func newCalculator(cfg *config.Config, logger *slog.Logger) *budget.Calculator {
	return budget.NewCalculator(budget.Params{
		DefaultContextWindow: cfg.Model.DefaultContextWindow,
		DefaultMaxOutput:     cfg.Budget.MaxOutputTokens,
		OutputPctCap:         cfg.Budget.OutputPctCap,
		SysTokens:            cfg.Budget.SysTokens,
		SysPct:               cfg.Budget.SysPct,
		SysMinTokens:         cfg.Budget.SysMinTokens,
		SafetyTokens:         cfg.Budget.SafetyTokens,
		SafetyPct:            cfg.Budget.SafetyPct,
		CoreReserved:         cfg.Budget.CoreReservedTokens,
		CoreSysPad:           cfg.Budget.CoreSysPadTokens,
	}, logger)
}

func newAssembler(logger *slog.Logger) *assemble.Assembler {
	return assemble.New(logger)
}

func newPromoter(mem *memory.Manager, events *bus.Bus, logger *slog.Logger) *chat.Promoter {
	return chat.NewPromoter(mem, events, logger)
}

func newAutosummarizer(st *store.Store, client schema.ModelClient, cfg *config.Config, logger *slog.Logger) *chat.Autosummarizer {
	return chat.NewAutosummarizer(st, client, chat.SummaryParams{
		TriggerTokens:    cfg.Summary.TriggerTokens,
		MaxAge:           time.Duration(cfg.Summary.MaxAgeSeconds) * time.Second,
		Debounce:         time.Duration(cfg.Summary.DebounceSeconds) * time.Second,
		SourceMessages:   cfg.Summary.SourceMessages,
		MaxSummaryTokens: cfg.Summary.MaxSummaryTokens,
	}, logger)
}

func newEngine(
	cfg *config.Config,
	st *store.Store,
	mem *memory.Manager,
	calc *budget.Calculator,
	asm *assemble.Assembler,
	client schema.ModelClient,
	events *bus.Bus,
	promoter *chat.Promoter,
	summary *chat.Autosummarizer,
	logger *slog.Logger,
) *chat.Engine {
	return chat.NewEngine(chat.Config{
		DefaultModel:  cfg.Model.DefaultModel,
		SystemPrompt:  cfg.SystemPrompt,
		DefaultWindow: cfg.Model.DefaultContextWindow,
		Temperature:   cfg.Model.Temperature,
	}, st, mem, calc, asm, client, events, promoter, summary, logger)
}

func newServer(
	cfg *config.Config,
	engine *chat.Engine,
	st *store.Store,
	client schema.ModelClient,
	events *bus.Bus,
	logger *slog.Logger,
) *server.Server {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	return server.New(addr, engine, st, client, events, logger)
}

func newMaintenance(
	st *store.Store,
	cache *providers.InfoCache,
	summary *chat.Autosummarizer,
	cfg *config.Config,
	logger *slog.Logger,
) *maintenance.Service {
	return maintenance.NewService(st, cache, summary, cfg.Model.DefaultModel, logger)
}
