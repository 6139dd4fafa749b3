package step

import (
	"sync"

	"github.com/forshape/stepflow/llm"
)

// Config is the per-run input of a single step. InitialMessage and
// ExtraMessages are set before the run starts; the pending user-message
// queue is fed from another goroutine (the UI) while the step loop is
// running, so it is mutex-guarded.
type Config struct {
	InitialMessage string
	ExtraMessages  []llm.ChatMessage

	mu      sync.Mutex
	pending []string
}

// PushUserMessage queues a user message for the step to pick up on its
// next loop iteration. Safe to call while the step is running.
func (c *Config) PushUserMessage(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, text)
}

// popPendingMessage takes the oldest queued user message, if any.
func (c *Config) popPendingMessage() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return "", false
	}
	msg := c.pending[0]
	c.pending = c.pending[1:]
	return msg, true
}

// PendingCount returns the number of queued user messages.
func (c *Config) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// ConfigRegistry maps step names to their configs, creating an empty
// config on first lookup.
type ConfigRegistry struct {
	mu      sync.Mutex
	configs map[string]*Config
}

// NewConfigRegistry creates an empty config registry.
func NewConfigRegistry() *ConfigRegistry {
	return &ConfigRegistry{configs: make(map[string]*Config)}
}

// Get returns the config for a step, creating it if absent.
func (r *ConfigRegistry) Get(name string) *Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, ok := r.configs[name]
	if !ok {
		cfg = &Config{}
		r.configs[name] = cfg
	}
	return cfg
}

// Set replaces the config for a step.
func (r *ConfigRegistry) Set(name string, cfg *Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[name] = cfg
}
