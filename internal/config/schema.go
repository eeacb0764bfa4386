// Package config defines the configuration schema for pearlgull.
//
// JSON keys use camelCase. Every field has a usable default, so an
// empty or missing config file yields a working local setup.
package config

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{Host: "127.0.0.1", Port: 8790}
}

// ModelConfig points at the local model server.
type ModelConfig struct {
	// BaseURL is the LM Studio style endpoint root.
	BaseURL              string  `json:"baseUrl"`
	DefaultModel         string  `json:"defaultModel"`
	DefaultContextWindow int     `json:"defaultContextWindow"`
	Temperature          float64 `json:"temperature"`
	SummaryModel         string  `json:"summaryModel,omitempty"`
}

func defaultModelConfig() ModelConfig {
	return ModelConfig{
		BaseURL:              "http://127.0.0.1:1234",
		DefaultModel:         "qwen2.5-7b-instruct",
		DefaultContextWindow: 4096,
		Temperature:          0.7,
	}
}

// BudgetConfig holds the token-budget knobs. The *Tokens fields, when
// positive, pin a reservation to an absolute size; otherwise the
// percentage derivation applies.
type BudgetConfig struct {
	MaxOutputTokens    int     `json:"maxOutputTokens"`
	OutputPctCap       float64 `json:"outputPctCap"`
	SysTokens          int     `json:"sysTokens,omitempty"`
	SysPct             float64 `json:"sysPct"`
	SysMinTokens       int     `json:"sysMinTokens"`
	SafetyTokens       int     `json:"safetyTokens,omitempty"`
	SafetyPct          float64 `json:"safetyPct"`
	CoreReservedTokens int     `json:"coreReservedTokens"`
	CoreSysPadTokens   int     `json:"coreSysPadTokens"`
}

func defaultBudgetConfig() BudgetConfig {
	return BudgetConfig{
		MaxOutputTokens:    512,
		OutputPctCap:       0.25,
		SysPct:             0.05,
		SysMinTokens:       256,
		SafetyPct:          0.10,
		CoreReservedTokens: 300,
		CoreSysPadTokens:   100,
	}
}

// MemoryConfig holds the tiered-memory knobs.
type MemoryConfig struct {
	UserClipTokens         int `json:"userClipTokens"`
	AssistantClipTokens    int `json:"assistantClipTokens"`
	PromotionTriggerTokens int `json:"promotionTriggerTokens"`
	PromotionBatch         int `json:"promotionBatch"`
	L3MaxTokens            int `json:"l3MaxTokens"`
}

func defaultMemoryConfig() MemoryConfig {
	return MemoryConfig{
		UserClipTokens:         120,
		AssistantClipTokens:    80,
		PromotionTriggerTokens: 100,
		PromotionBatch:         4,
		L3MaxTokens:            600,
	}
}

// SummaryConfig holds the thread autosummary knobs.
type SummaryConfig struct {
	TriggerTokens    int `json:"triggerTokens"`
	MaxAgeSeconds    int `json:"maxAgeSeconds"`
	DebounceSeconds  int `json:"debounceSeconds"`
	SourceMessages   int `json:"sourceMessages"`
	MaxSummaryTokens int `json:"maxSummaryTokens"`
}

func defaultSummaryConfig() SummaryConfig {
	return SummaryConfig{
		TriggerTokens:    600,
		MaxAgeSeconds:    3600,
		DebounceSeconds:  300,
		SourceMessages:   24,
		MaxSummaryTokens: 200,
	}
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level string `json:"level"` // "debug" | "info" | "warn" | "error"
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{Level: "info"}
}

// Config is the root configuration.
type Config struct {
	Server  ServerConfig  `json:"server"`
	Model   ModelConfig   `json:"model"`
	Budget  BudgetConfig  `json:"budget"`
	Memory  MemoryConfig  `json:"memory"`
	Summary SummaryConfig `json:"summary"`
	Logging LoggingConfig `json:"logging"`

	// SystemPrompt overrides the built-in identity prompt when set.
	SystemPrompt string `json:"systemPrompt,omitempty"`
}

// DefaultConfig returns the full default configuration.
func DefaultConfig() Config {
	return Config{
		Server:  defaultServerConfig(),
		Model:   defaultModelConfig(),
		Budget:  defaultBudgetConfig(),
		Memory:  defaultMemoryConfig(),
		Summary: defaultSummaryConfig(),
		Logging: defaultLoggingConfig(),
	}
}
