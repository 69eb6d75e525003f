// Package config loads the assistant configuration. A loaded Config is a value: changing a
// setting produces a new Config, and providers are rebuilt from it.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Supported completion providers.
const (
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
	ProviderAnthropic  = "anthropic"
	ProviderGemini     = "gemini"
)

// EnvPrefix prefixes every environment override, e.g. NOTEASSIST_MODEL.
const EnvPrefix = "NOTEASSIST"

// Config is the complete assistant configuration.
type Config struct {
	Provider           string        `mapstructure:"provider"`
	APIKey             string        `mapstructure:"api_key"`
	OpenAIAPIKey       string        `mapstructure:"openai_api_key"`
	AnthropicAPIKey    string        `mapstructure:"anthropic_api_key"`
	GeminiAPIKey       string        `mapstructure:"gemini_api_key"`
	LLMBaseURL         string        `mapstructure:"llm_base_url"`
	Model              string        `mapstructure:"model"`
	ImageModel         string        `mapstructure:"image_model"`
	TranscriptionModel string        `mapstructure:"transcription_model"`
	MaxTokens          int           `mapstructure:"max_tokens"`
	ReplaceSelection   bool          `mapstructure:"replace_selection"`
	Streaming          bool          `mapstructure:"streaming"`
	Language           string        `mapstructure:"language"`
	VaultDir           string        `mapstructure:"vault_dir"`
	ImageFolder        string        `mapstructure:"image_folder"`
	ChatFolder         string        `mapstructure:"chat_folder"`
	LogFolder          string        `mapstructure:"log_folder"`
	RequestLogging     bool          `mapstructure:"request_logging"`
	HistoryDB          string        `mapstructure:"history_db"`
	MaxChainPrompts    int           `mapstructure:"max_chain_prompts"`
	ChainPause         time.Duration `mapstructure:"chain_pause"`
	CloseTimeout       time.Duration `mapstructure:"close_timeout"`
}

// defaults mirror the settings a fresh install starts with.
var defaults = map[string]any{
	"provider":            ProviderOpenRouter,
	"api_key":             "",
	"openai_api_key":      "",
	"anthropic_api_key":   "",
	"gemini_api_key":      "",
	"llm_base_url":        "https://openrouter.ai/api/v1",
	"model":               "google/gemini-2.0-flash-lite-001",
	"image_model":         "dall-e-3",
	"transcription_model": "gpt-4o-mini-transcribe",
	"max_tokens":          64000,
	"replace_selection":   true,
	"streaming":           true,
	"language":            "en",
	"vault_dir":           ".",
	"image_folder":        "AI Images",
	"chat_folder":         "AI Assistant Chats",
	"log_folder":          "ai-assistant-logs",
	"request_logging":     true,
	"history_db":          "",
	"max_chain_prompts":   10,
	"chain_pause":         200 * time.Millisecond,
	"close_timeout":       5 * time.Second,
}

// extraEnv lists conventional variable names accepted besides the prefixed ones.
var extraEnv = map[string][]string{
	"api_key":           {"OPENROUTER_API_KEY"},
	"openai_api_key":    {"OPENAI_API_KEY"},
	"anthropic_api_key": {"ANTHROPIC_API_KEY"},
	"gemini_api_key":    {"GEMINI_API_KEY", "GOOGLE_API_KEY"},
}

// LoadOptions selects the sources Load reads.
type LoadOptions struct {
	// ConfigFile is an explicit YAML file. When empty, config.yaml is looked up in the
	// user config directory and the working directory.
	ConfigFile string
	// EnvFiles are .env files read for API keys and overrides; missing files are skipped.
	EnvFiles []string
	// Flags are bound by name: a flag "max-tokens" overrides key "max_tokens".
	Flags *pflag.FlagSet
}

// DefaultEnvFiles returns the .env locations consulted by default: the user config
// directory first, then the working directory.
func DefaultEnvFiles() []string {
	var files []string
	if dir, err := Dir(); err == nil {
		files = append(files, filepath.Join(dir, ".env"))
	}
	return append(files, ".env")
}

// Dir returns the per-user configuration directory.
func Dir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "noteassist"), nil
}

// Load reads defaults, then the config file, then .env files, then the environment, then
// changed flags; later sources win.
func Load(opts LoadOptions) (Config, error) {
	v, err := newViper(opts)
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode configuration: %w", err)
	}
	cfg = cfg.normalized()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func newViper(opts LoadOptions) (*viper.Viper, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetConfigType("yaml")
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
	} else {
		v.SetConfigName("config")
		if dir, err := Dir(); err == nil {
			v.AddConfigPath(dir)
		}
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !(opts.ConfigFile != "" && errors.Is(err, os.ErrNotExist)) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	for key := range defaults {
		if err := v.BindEnv(append([]string{key}, envNames(key)...)...); err != nil {
			return nil, fmt.Errorf("failed to bind environment for %s: %w", key, err)
		}
	}

	if err := applyEnvFiles(v, opts.EnvFiles); err != nil {
		return nil, err
	}

	if opts.Flags != nil {
		var bindErr error
		opts.Flags.VisitAll(func(f *pflag.Flag) {
			key := strings.ReplaceAll(f.Name, "-", "_")
			if _, known := defaults[key]; known && bindErr == nil {
				bindErr = v.BindPFlag(key, f)
			}
		})
		if bindErr != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", bindErr)
		}
	}
	return v, nil
}

// applyEnvFiles merges values found in .env files over the config file. The environment
// and flags still take precedence.
func applyEnvFiles(v *viper.Viper, files []string) error {
	for _, file := range files {
		content, err := os.ReadFile(file)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", file, err)
		}
		values, err := godotenv.Unmarshal(string(content))
		if err != nil {
			return fmt.Errorf("failed to parse %s: %w", file, err)
		}
		merged := map[string]any{}
		for key := range defaults {
			for _, name := range envNames(key) {
				if value, ok := values[name]; ok {
					merged[key] = value
					break
				}
			}
		}
		if err := v.MergeConfigMap(merged); err != nil {
			return fmt.Errorf("failed to apply %s: %w", file, err)
		}
	}
	return nil
}

func envNames(key string) []string {
	return append([]string{EnvPrefix + "_" + strings.ToUpper(key)}, extraEnv[key]...)
}

func (c Config) normalized() Config {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.LLMBaseURL = strings.TrimRight(strings.TrimSpace(c.LLMBaseURL), "/")
	c.ImageFolder = strings.Trim(strings.TrimSpace(c.ImageFolder), "/")
	c.ChatFolder = strings.Trim(strings.TrimSpace(c.ChatFolder), "/")
	c.LogFolder = strings.Trim(strings.TrimSpace(c.LogFolder), "/")
	if c.HistoryDB == "" {
		c.HistoryDB = filepath.Join(c.VaultDir, ".noteassist", "history.db")
	}
	return c
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Provider {
	case ProviderOpenRouter, ProviderOpenAI, ProviderAnthropic, ProviderGemini:
	default:
		return fmt.Errorf("unknown provider %q", c.Provider)
	}
	if c.Model == "" {
		return errors.New("model must not be empty")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	if c.LLMBaseURL != "" {
		u, err := url.Parse(c.LLMBaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("llm_base_url %q is not an absolute URL", c.LLMBaseURL)
		}
	}
	if c.ImageFolder == "" || c.ChatFolder == "" || c.LogFolder == "" {
		return errors.New("image_folder, chat_folder and log_folder must not be empty")
	}
	if c.MaxChainPrompts <= 0 {
		return fmt.Errorf("max_chain_prompts must be positive, got %d", c.MaxChainPrompts)
	}
	if c.ChainPause < 0 || c.CloseTimeout < 0 {
		return errors.New("durations must not be negative")
	}
	return nil
}

// WithModel returns a copy using model.
func (c Config) WithModel(model string) Config {
	c.Model = model
	return c
}

// WithImageModel returns a copy using model for image generation.
func (c Config) WithImageModel(model string) Config {
	c.ImageModel = model
	return c
}

// WithProvider returns a copy using provider.
func (c Config) WithProvider(provider string) Config {
	c.Provider = strings.ToLower(provider)
	return c
}

// CompletionAPIKey returns the key for the configured completion provider.
func (c Config) CompletionAPIKey() string {
	switch c.Provider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey != "" {
			return c.OpenAIAPIKey
		}
	case ProviderAnthropic:
		if c.AnthropicAPIKey != "" {
			return c.AnthropicAPIKey
		}
	case ProviderGemini:
		if c.GeminiAPIKey != "" {
			return c.GeminiAPIKey
		}
	}
	return c.APIKey
}

// Set writes one key into the YAML config file at path, creating it when needed.
func Set(path, key, value string) error {
	key = strings.ReplaceAll(key, "-", "_")
	if _, known := defaults[key]; !known {
		return fmt.Errorf("unknown setting %q", key)
	}
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil && !errors.Is(err, os.ErrNotExist) {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	v.Set(key, value)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// DefaultConfigFile is the config file written by Set when no path is given.
func DefaultConfigFile() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}
