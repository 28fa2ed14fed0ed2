package llm

import (
	"fmt"
	"strings"
	"sync"

	"github.com/soyeahso/duet/internal/config"
	"github.com/soyeahso/duet/internal/logging"
)

// DefaultOllamaModel is used for an Ollama fallback named without a model.
const DefaultOllamaModel = "llama3.2"

var providerAliases = map[string][]string{
	"claude": {"sonnet", "opus", "haiku", "claude-sonnet", "claude-opus", "claude-haiku"},
	"ollama": {"llama", "llama3", "mistral"},
	"openai": {"gpt", "chatgpt"},
}

// Registry manages LLM provider clients and resolves model references to clients.
type Registry struct {
	mu       sync.RWMutex
	clients  map[string]Client // provider name → client
	aliases  map[string]string // model alias → provider name
	fallback string            // default provider name
	log      *logging.Logger
}

// NewRegistry creates an empty provider registry.
func NewRegistry(log *logging.Logger) *Registry {
	return &Registry{
		clients: make(map[string]Client),
		aliases: make(map[string]string),
		log:     log.Sub("llm.registry"),
	}
}

// Register adds a client under the given provider name.
func (r *Registry) Register(name string, client Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[name] = client
	r.log.Info().Str("provider", name).Msg("registered LLM provider")
}

// Alias maps a model name/alias to a provider.
// e.g., Alias("sonnet", "claude") means "sonnet" resolves to the "claude" provider.
func (r *Registry) Alias(model, provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[model] = provider
}

// SetFallback sets the default provider used when no model/provider match is found.
func (r *Registry) SetFallback(provider string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallback = provider
}

// Resolve returns the Client for the given model reference.
// Resolution order: exact provider name → alias → fallback.
func (r *Registry) Resolve(model string) (Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if c, ok := r.clients[model]; ok {
		return c, nil
	}
	if provider, ok := r.aliases[model]; ok {
		if c, ok := r.clients[provider]; ok {
			return c, nil
		}
	}
	if r.fallback != "" {
		if c, ok := r.clients[r.fallback]; ok {
			return c, nil
		}
	}
	return nil, fmt.Errorf("no LLM provider for model %q", model)
}

// List returns all registered provider names.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.clients))
	for n := range r.clients {
		names = append(names, n)
	}
	return names
}

// NewRegistryFromConfig registers the configured twin provider as the
// fallback, plus one client per entry of cfg.Fallbacks. Fallback entries
// are "provider" or "provider:model" and are registered under the entry
// itself so a FailoverClient can resolve them by name.
func NewRegistryFromConfig(cfg config.TwinConfig, log *logging.Logger) (*Registry, error) {
	reg := NewRegistry(log)

	primary, err := newProvider(cfg.Provider, cfg.Model, cfg)
	if err != nil {
		return nil, err
	}
	reg.Register(primary.Name(), primary)
	reg.SetFallback(primary.Name())
	for _, alias := range providerAliases[primary.Name()] {
		reg.Alias(alias, primary.Name())
	}

	for _, entry := range cfg.Fallbacks {
		provider, model, _ := strings.Cut(entry, ":")
		if provider == cfg.Provider && model == "" {
			continue
		}
		client, err := newProvider(provider, model, cfg)
		if err != nil {
			reg.log.Warn().Err(err).Str("fallback", entry).Msg("skipping fallback provider")
			continue
		}
		reg.Register(entry, client)
	}
	return reg, nil
}

func newProvider(provider, model string, cfg config.TwinConfig) (Client, error) {
	switch strings.ToLower(provider) {
	case "claude":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("claude provider requires twin.apiKey")
		}
		if model == "" {
			model = cfg.Model
		}
		endpoint := ""
		if cfg.Provider == "claude" {
			endpoint = cfg.Endpoint
		}
		return NewClaudeClient(endpoint, cfg.APIKey, model), nil
	case "ollama":
		if model == "" {
			model = cfg.Model
			if cfg.Provider != "ollama" || model == "" {
				model = DefaultOllamaModel
			}
		}
		endpoint := ""
		if cfg.Provider == "ollama" {
			endpoint = cfg.Endpoint
		}
		return NewOllamaClient(endpoint, model), nil
	case "openai":
		key := cfg.OpenAIAPIKey
		if key == "" && cfg.Provider == "openai" {
			key = cfg.APIKey
		}
		if key == "" {
			return nil, fmt.Errorf("openai provider requires twin.openaiApiKey")
		}
		if model == "" {
			model = cfg.Model
			if cfg.Provider != "openai" || model == "" {
				model = DefaultOpenAIModel
			}
		}
		endpoint := ""
		if cfg.Provider == "openai" {
			endpoint = cfg.Endpoint
		}
		return NewOpenAIClient(endpoint, key, model), nil
	}
	return nil, fmt.Errorf("unknown LLM provider %q", provider)
}
