package config

import (
	"os"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// envVarPattern matches ${VAR_NAME} patterns in strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnvVars replaces ${VAR} patterns with environment variable values.
// Unset variables are left unchanged.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if val, ok := os.LookupEnv(match[2 : len(match)-1]); ok {
			return val
		}
		return match
	})
}

// expandSensitiveFields lets tokens and keys be stored as ${ENV_VAR}.
func expandSensitiveFields(cfg *Config) {
	cfg.Store.AuthToken = expandEnvVars(cfg.Store.AuthToken)
	cfg.Store.Redis.Password = expandEnvVars(cfg.Store.Redis.Password)
	cfg.Profile.APIKey = expandEnvVars(cfg.Profile.APIKey)
	cfg.Twin.APIKey = expandEnvVars(cfg.Twin.APIKey)
	cfg.Twin.OpenAIAPIKey = expandEnvVars(cfg.Twin.OpenAIAPIKey)
	cfg.Gateway.Auth.Token = expandEnvVars(cfg.Gateway.Auth.Token)
	cfg.Gateway.Auth.Password = expandEnvVars(cfg.Gateway.Auth.Password)
	cfg.Gateway.Auth.JWTSecret = expandEnvVars(cfg.Gateway.Auth.JWTSecret)
}

// Load reads the config file, applies environment overrides, and returns
// a merged Config. Missing files produce defaults only.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnvOverrides(&cfg)
			return cfg, nil
		}
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	expandSensitiveFields(&cfg)
	return cfg, nil
}

// LoadRaw reads the config file into a generic map for path-based access.
func LoadRaw(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]any{}, nil
		}
		return nil, err
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, &ConfigError{Message: "failed to parse config: " + err.Error()}
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return raw, nil
}

// SaveRaw writes a generic map back to a YAML config file.
func SaveRaw(path string, raw map[string]any) error {
	data, err := yaml.Marshal(raw)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// applyDefaults fills zero-value fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.Store.Backend == "" {
		cfg.Store.Backend = "http"
	}
	if cfg.Store.Endpoint == "" {
		cfg.Store.Endpoint = DefaultEndpoint
	}
	if cfg.Store.Context == "" {
		cfg.Store.Context = DefaultContext
	}
	if cfg.Store.MessageSchema == "" {
		cfg.Store.MessageSchema = DefaultMessageSchema
	}
	if cfg.Store.GroupSchema == "" {
		cfg.Store.GroupSchema = DefaultGroupSchema
	}
	if cfg.Store.TimeoutSeconds == 0 {
		cfg.Store.TimeoutSeconds = 15
	}
	if cfg.Store.Redis.Addr == "" {
		cfg.Store.Redis.Addr = "localhost:6379"
	}
	if cfg.Store.Redis.KeyPrefix == "" {
		cfg.Store.Redis.KeyPrefix = "duet"
	}
	if cfg.Sync.ReconcileDelayMs == 0 {
		cfg.Sync.ReconcileDelayMs = 1500
	}
	if cfg.Sync.DedupeBy == "" {
		cfg.Sync.DedupeBy = "id"
	}
	if cfg.Sync.MaxConcurrentLoads == 0 {
		cfg.Sync.MaxConcurrentLoads = 4
	}
	if cfg.Twin.Provider == "" {
		cfg.Twin.Provider = "claude"
	}
	if cfg.Twin.MaxTokens == 0 {
		cfg.Twin.MaxTokens = 512
	}
	if cfg.Twin.History == 0 {
		cfg.Twin.History = 20
	}
	if cfg.Gateway.Port == 0 {
		cfg.Gateway.Port = 18790
	}
	if cfg.Gateway.Bind == "" {
		cfg.Gateway.Bind = "loopback"
	}
	if cfg.Gateway.Auth.Mode == "" {
		cfg.Gateway.Auth.Mode = "token"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.ConsoleStyle == "" {
		cfg.Logging.ConsoleStyle = "pretty"
	}
}

// applyEnvOverrides reads DUET_* environment variables and overrides config values.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DUET_DID"); v != "" {
		cfg.Identity.DID = v
	}
	if v := os.Getenv("DUET_DISPLAY_NAME"); v != "" {
		cfg.Identity.DisplayName = v
	}
	if v := os.Getenv("DUET_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("DUET_STORE_ENDPOINT"); v != "" {
		cfg.Store.Endpoint = v
	}
	if v := os.Getenv("DUET_STORE_TOKEN"); v != "" {
		cfg.Store.AuthToken = v
	}
	if v := os.Getenv("DUET_REDIS_ADDR"); v != "" {
		cfg.Store.Redis.Addr = v
	}
	if v := os.Getenv("DUET_RECONCILE_DELAY_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.Sync.ReconcileDelayMs = ms
		}
	}
	if v := os.Getenv("DUET_GATEWAY_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.Port = port
		}
	}
	if v := os.Getenv("DUET_GATEWAY_BIND"); v != "" {
		cfg.Gateway.Bind = v
	}
	if v := os.Getenv("DUET_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
}
