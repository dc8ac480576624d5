// Package ticketflow provides a top-level convenience entry point for creating
// a dialogue engine with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/ticketflow"
//
//	eng, err := ticketflow.New(
//	    ticketflow.WithOpenAI("gpt-4o-mini"),
//	    ticketflow.WithSystemPrompt("You are a support assistant."),
//	)
//	result, err := eng.ProcessTurn(ctx, "my screen is cracked", "session-42")
//
// New wires the session store, the retrying backend gateway, the history
// compactor, and the reply analyzer into a ready-to-use [dialogue.Engine].
// For full control over the individual components, construct them directly
// from the dialogue package.
package ticketflow

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/BaSui01/ticketflow/config"
	"github.com/BaSui01/ticketflow/dialogue"
	"github.com/BaSui01/ticketflow/llm"
	"github.com/BaSui01/ticketflow/llm/providers/openaicompat"
	"github.com/BaSui01/ticketflow/llm/tokenizer"
)

// Option configures the engine created by [New].
type Option func(*options)

type options struct {
	cfg      config.DialogueConfig
	provider llm.Provider
	logger   *zap.Logger

	// Provider shortcut fields, used when provider is nil.
	providerName string
	apiKey       string
	baseURL      string
}

// WithProvider sets a pre-built backend provider.
func WithProvider(p llm.Provider) Option {
	return func(o *options) { o.provider = p }
}

// WithOpenAI creates an OpenAI provider using the given model.
// API key is read from OPENAI_API_KEY environment variable.
func WithOpenAI(model string) Option {
	return func(o *options) {
		o.providerName = "openai"
		o.cfg.Model = model
		if o.apiKey == "" {
			o.apiKey = os.Getenv("OPENAI_API_KEY")
		}
	}
}

// WithDeepSeek creates a DeepSeek provider using the given model.
// API key is read from DEEPSEEK_API_KEY environment variable.
func WithDeepSeek(model string) Option {
	return func(o *options) {
		o.providerName = "deepseek"
		o.cfg.Model = model
		if o.apiKey == "" {
			o.apiKey = os.Getenv("DEEPSEEK_API_KEY")
		}
		if o.baseURL == "" {
			o.baseURL = "https://api.deepseek.com"
		}
	}
}

// WithModel sets the model name. Overrides the model set by provider shortcuts.
func WithModel(model string) Option {
	return func(o *options) { o.cfg.Model = model }
}

// WithSystemPrompt sets the system prompt seeded as the first message of
// every session.
func WithSystemPrompt(prompt string) Option {
	return func(o *options) { o.cfg.SystemPrompt = prompt }
}

// WithLogger sets a custom zap logger. Defaults to zap.NewNop().
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithAPIKey overrides the API key for provider shortcuts (WithOpenAI, etc.).
func WithAPIKey(key string) Option {
	return func(o *options) { o.apiKey = key }
}

// WithBaseURL overrides the backend base URL for provider shortcuts.
// Use this for proxies and self-hosted OpenAI-compatible runtimes.
func WithBaseURL(url string) Option {
	return func(o *options) { o.baseURL = url }
}

// WithDialogueConfig replaces the whole dialogue configuration at once.
// Later options still apply on top of it.
func WithDialogueConfig(cfg config.DialogueConfig) Option {
	return func(o *options) { o.cfg = cfg }
}

// New creates a dialogue engine with minimal configuration.
// At minimum, a backend must be specified via [WithOpenAI], [WithDeepSeek],
// or [WithProvider].
func New(opts ...Option) (*dialogue.Engine, error) {
	o := &options{
		cfg: config.DefaultDialogueConfig(),
	}
	for _, opt := range opts {
		opt(o)
	}

	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	// Resolve provider.
	p := o.provider
	if p == nil {
		if o.providerName == "" {
			return nil, fmt.Errorf("provider is required: use WithProvider, WithOpenAI, or WithDeepSeek")
		}
		if o.apiKey == "" {
			return nil, fmt.Errorf("API key is required for %s: set the environment variable or use WithAPIKey", o.providerName)
		}
		baseURL := o.baseURL
		if baseURL == "" {
			baseURL = "https://api.openai.com"
		}
		p = openaicompat.New(openaicompat.Config{
			ProviderName: o.providerName,
			APIKey:       o.apiKey,
			BaseURL:      baseURL,
			DefaultModel: o.cfg.Model,
		}, o.logger)
	}

	return NewFromConfig(o.cfg, p, o.logger)
}

// NewFromConfig assembles a dialogue engine from an explicit dialogue
// configuration and a pre-built provider. This is what the serve command
// uses after loading the YAML/env configuration.
func NewFromConfig(cfg config.DialogueConfig, provider llm.Provider, logger *zap.Logger) (*dialogue.Engine, error) {
	if provider == nil {
		return nil, fmt.Errorf("provider is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// Exact token accounting for OpenAI-family models; everything else
	// falls back to the heuristic estimator.
	tokenizer.RegisterOpenAITokenizers()

	store := dialogue.NewMemoryStore(cfg.SystemPrompt, logger)

	gateway, err := dialogue.NewGateway(provider, dialogue.GatewayConfig{
		BaseDelay:   cfg.RetryBaseDelay,
		MaxInFlight: cfg.MaxInFlight,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create gateway: %w", err)
	}

	compactor, err := dialogue.NewCompactor(store, gateway, dialogue.CompactorConfig{
		TriggerMessages:    cfg.Compaction.TriggerMessages,
		SummaryMaxTokens:   cfg.Compaction.SummaryMaxTokens,
		SummaryTemperature: cfg.Compaction.SummaryTemperature,
		SummaryPrompt:      cfg.Compaction.SummaryPrompt,
		MaxRetries:         cfg.Compaction.MaxRetries,
		Model:              cfg.Model,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create compactor: %w", err)
	}

	engine, err := dialogue.NewEngine(store, gateway, compactor, dialogue.NewTagAnalyzer(), dialogue.EngineConfig{
		Model:            cfg.Model,
		MaxReplyTokens:   cfg.MaxReplyTokens,
		ReplyTemperature: cfg.ReplyTemperature,
		MaxRetries:       cfg.MaxRetries,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("create engine: %w", err)
	}

	return engine, nil
}
