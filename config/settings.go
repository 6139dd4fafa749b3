// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider-specific configuration lookup

package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/forshape/stepflow/llm"
	"github.com/forshape/stepflow/step"
)

// Settings holds all application configuration.
type Settings struct {
	LLM     LLMConfig
	Agent   AgentConfig
	Storage StorageConfig
}

// LLMConfig holds completion provider configuration.
type LLMConfig struct {
	Provider    llm.ProviderType
	Model       string
	MaxTokens   uint32
	Temperature float32
}

// AgentConfig holds step execution configuration.
type AgentConfig struct {
	// MaxIterations bounds the tool-calling loop of each step.
	MaxIterations int
	// Workspace is the root directory the file tools are confined to.
	Workspace string
	// ExportDir receives history transcript dumps. Empty disables
	// exporting.
	ExportDir string
}

// StorageConfig holds transcript archive configuration.
type StorageConfig struct {
	// ArchivePath is the SQLite database file. Empty disables archival.
	ArchivePath string
}

// Per-provider model override variables.
var modelEnvVars = map[llm.ProviderType]string{
	llm.ProviderOpenAI:    "OPENAI_MODEL",
	llm.ProviderFireworks: "FIREWORKS_MODEL",
	llm.ProviderAnthropic: "ANTHROPIC_MODEL",
	llm.ProviderGemini:    "GEMINI_MODEL",
}

// New creates settings for the specified provider, loading values from
// environment variables. Returns an error if the provider is unknown or
// an environment variable holds an invalid value.
func New(provider string) (Settings, error) {
	providerType, err := llm.ParseProviderType(provider)
	if err != nil {
		return Settings{}, err
	}

	maxTokens, err := getEnvUint32("LLM_MAX_TOKENS", 4096)
	if err != nil {
		return Settings{}, err
	}

	temperature, err := getEnvFloat32("LLM_TEMPERATURE", 0.7)
	if err != nil {
		return Settings{}, err
	}

	maxIterations, err := getEnvInt("AGENT_MAX_ITERATIONS", step.DefaultMaxIterations)
	if err != nil {
		return Settings{}, err
	}
	if maxIterations <= 0 {
		return Settings{}, fmt.Errorf("AGENT_MAX_ITERATIONS must be positive, got %d", maxIterations)
	}

	workspace := os.Getenv("AGENT_WORKSPACE")
	if workspace == "" {
		workspace = "."
	}

	model := os.Getenv(modelEnvVars[providerType])
	if model == "" {
		model = providerType.DefaultModel()
	}

	return Settings{
		LLM: LLMConfig{
			Provider:    providerType,
			Model:       model,
			MaxTokens:   maxTokens,
			Temperature: temperature,
		},
		Agent: AgentConfig{
			MaxIterations: maxIterations,
			Workspace:     workspace,
			ExportDir:     os.Getenv("HISTORY_EXPORT_DIR"),
		},
		Storage: StorageConfig{
			ArchivePath: os.Getenv("ARCHIVE_PATH"),
		},
	}, nil
}

// MustNew creates settings for the specified provider. Panics on
// invalid configuration; use only where configuration errors are fatal.
func MustNew(provider string) Settings {
	settings, err := New(provider)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// BuildProvider constructs the completion provider described by the
// settings, reading the API key from the provider's environment
// variable.
func (s Settings) BuildProvider() (llm.Provider, error) {
	return s.LLM.Provider.
		Model(s.LLM.Model).
		MaxTokens(s.LLM.MaxTokens).
		Temperature(s.LLM.Temperature).
		FromEnv()
}

// Environment variable helpers with proper error handling

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat32(key string, defaultVal float32) (float32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return float32(f), nil
}
