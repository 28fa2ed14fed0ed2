package config

import (
	"fmt"
	"net/url"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

func oneOf(issues []ValidationIssue, path, value string, valid []string) []ValidationIssue {
	if value != "" && !slices.Contains(valid, value) {
		issues = append(issues, ValidationIssue{
			Path:    path,
			Message: fmt.Sprintf("must be one of %v, got %q", valid, value),
		})
	}
	return issues
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// Store
	issues = oneOf(issues, "store.backend", cfg.Store.Backend, []string{"http", "sqlite", "redis"})
	if cfg.Store.Backend == "http" {
		if u, err := url.Parse(cfg.Store.Endpoint); err != nil || u.Scheme == "" || u.Host == "" {
			issues = append(issues, ValidationIssue{
				Path:    "store.endpoint",
				Message: fmt.Sprintf("must be an absolute URL, got %q", cfg.Store.Endpoint),
			})
		}
	}
	if cfg.Store.TimeoutSeconds < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "store.timeoutSeconds",
			Message: "must not be negative",
		})
	}

	// Sync
	issues = oneOf(issues, "sync.dedupeBy", cfg.Sync.DedupeBy, []string{"id", "name"})
	if cfg.Sync.ReconcileDelayMs < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "sync.reconcileDelayMs",
			Message: "must not be negative",
		})
	}
	if cfg.Sync.MaxConcurrentLoads < 0 {
		issues = append(issues, ValidationIssue{
			Path:    "sync.maxConcurrentLoads",
			Message: "must not be negative",
		})
	}

	// Twin (only if enabled)
	if cfg.Twin.Enabled {
		issues = oneOf(issues, "twin.provider", cfg.Twin.Provider, []string{"claude", "ollama", "openai"})
		if cfg.Twin.Provider == "claude" && cfg.Twin.APIKey == "" {
			issues = append(issues, ValidationIssue{
				Path:    "twin.apiKey",
				Message: "required for the claude provider",
			})
		}
		if cfg.Twin.Provider == "openai" && cfg.Twin.APIKey == "" && cfg.Twin.OpenAIAPIKey == "" {
			issues = append(issues, ValidationIssue{
				Path:    "twin.apiKey",
				Message: "required for the openai provider",
			})
		}
		if cfg.Twin.Model == "" {
			issues = append(issues, ValidationIssue{
				Path:    "twin.model",
				Message: "required when twin is enabled",
			})
		}
	}

	// Gateway
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}
	issues = oneOf(issues, "gateway.bind", cfg.Gateway.Bind, []string{"loopback", "lan", "custom"})
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.customBindHost",
			Message: "required when bind is custom",
		})
	}
	issues = oneOf(issues, "gateway.auth.mode", cfg.Gateway.Auth.Mode, []string{"token", "password", "jwt"})

	// Logging
	issues = oneOf(issues, "logging.level", cfg.Logging.Level,
		[]string{"silent", "fatal", "error", "warn", "info", "debug", "trace"})
	issues = oneOf(issues, "logging.consoleStyle", cfg.Logging.ConsoleStyle, []string{"pretty", "json"})

	return issues
}
