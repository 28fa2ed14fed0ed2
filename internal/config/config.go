package config

import (
	"fmt"
	"time"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s", e.Message)
}

const (
	DefaultMessageSchema = "https://common.schemas.verida.io/social/chat/message/v0.1.0/schema.json"
	DefaultGroupSchema   = "https://common.schemas.verida.io/social/chat/group/v0.1.0/schema.json"
	DefaultEndpoint      = "http://localhost:5022"
	DefaultContext       = "duet: dating chat"
)

// Defaults returns a Config with sensible defaults applied.
func Defaults() Config {
	cfg := Config{}
	applyDefaults(&cfg)
	return cfg
}

// ReconcileDelay returns the debounce between a send and its reconciling reload.
func (c SyncConfig) ReconcileDelay() time.Duration {
	return time.Duration(c.ReconcileDelayMs) * time.Millisecond
}

// Timeout returns the per-request timeout for remote store calls.
func (c StoreConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}
