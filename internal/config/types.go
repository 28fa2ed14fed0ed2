package config

// Config is the root configuration for duet.
type Config struct {
	Identity IdentityConfig `yaml:"identity,omitempty"`
	Store    StoreConfig    `yaml:"store,omitempty"`
	Sync     SyncConfig     `yaml:"sync,omitempty"`
	Profile  ProfileConfig  `yaml:"profile,omitempty"`
	Twin     TwinConfig     `yaml:"twin,omitempty"`
	Gateway  GatewayConfig  `yaml:"gateway,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
}

// IdentityConfig describes the local user.
type IdentityConfig struct {
	DID         string   `yaml:"did,omitempty"`
	DisplayName string   `yaml:"displayName,omitempty"`
	DIDMethods  []string `yaml:"didMethods,omitempty"` // empty accepts any DID method
}

// StoreConfig selects and configures the remote document store.
type StoreConfig struct {
	Backend        string      `yaml:"backend,omitempty"` // "http" | "sqlite" | "redis"
	Endpoint       string      `yaml:"endpoint,omitempty"`
	AuthToken      string      `yaml:"authToken,omitempty"`
	Context        string      `yaml:"context,omitempty"` // application context name on the datastore
	MessageSchema  string      `yaml:"messageSchema,omitempty"`
	GroupSchema    string      `yaml:"groupSchema,omitempty"`
	SQLitePath     string      `yaml:"sqlitePath,omitempty"`
	Redis          RedisConfig `yaml:"redis,omitempty"`
	TimeoutSeconds int         `yaml:"timeoutSeconds,omitempty"`
}

// RedisConfig configures the redis document store backend.
type RedisConfig struct {
	Addr      string `yaml:"addr,omitempty"`
	Password  string `yaml:"password,omitempty"`
	DB        int    `yaml:"db,omitempty"`
	KeyPrefix string `yaml:"keyPrefix,omitempty"`
}

// SyncConfig tunes the conversation synchronizer.
type SyncConfig struct {
	ReconcileDelayMs   int    `yaml:"reconcileDelayMs,omitempty"`
	DedupeBy           string `yaml:"dedupeBy,omitempty"` // "id" | "name"
	MaxConcurrentLoads int    `yaml:"maxConcurrentLoads,omitempty"`
}

// ProfileConfig points at the REST profile service.
type ProfileConfig struct {
	BaseURL string `yaml:"baseUrl,omitempty"`
	APIKey  string `yaml:"apiKey,omitempty"`
}

// TwinConfig configures AI twin reply drafting.
type TwinConfig struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	Provider string `yaml:"provider,omitempty"` // "claude" | "ollama" | "openai"
	APIKey   string `yaml:"apiKey,omitempty"`
	// OpenAIAPIKey lets an openai fallback run next to a claude primary.
	OpenAIAPIKey string   `yaml:"openaiApiKey,omitempty"`
	Model        string   `yaml:"model,omitempty"`
	Endpoint     string   `yaml:"endpoint,omitempty"` // custom API endpoint (for Ollama)
	MaxTokens    int      `yaml:"maxTokens,omitempty"`
	Persona      string   `yaml:"persona,omitempty"`
	Fallbacks    []string `yaml:"fallbacks,omitempty"`
	History      int      `yaml:"history,omitempty"` // recent messages given to the model
}

// GatewayConfig controls the gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "loopback" | "lan" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
}

// GatewayAuth configures gateway authentication.
type GatewayAuth struct {
	Mode      string `yaml:"mode,omitempty"` // "token" | "password" | "jwt"
	Token     string `yaml:"token,omitempty"`
	Password  string `yaml:"password,omitempty"`
	JWTSecret string `yaml:"jwtSecret,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`        // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
}
