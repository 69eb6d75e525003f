package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func isolatedOptions(t *testing.T) LoadOptions {
	t.Helper()
	dir := t.TempDir()
	return LoadOptions{ConfigFile: filepath.Join(dir, "missing.yaml")}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(isolatedOptions(t))
	require.NoError(t, err)

	assert.Equal(t, ProviderOpenRouter, cfg.Provider)
	assert.Equal(t, "https://openrouter.ai/api/v1", cfg.LLMBaseURL)
	assert.Equal(t, "google/gemini-2.0-flash-lite-001", cfg.Model)
	assert.Equal(t, 64000, cfg.MaxTokens)
	assert.Equal(t, "AI Images", cfg.ImageFolder)
	assert.Equal(t, "AI Assistant Chats", cfg.ChatFolder)
	assert.Equal(t, "en", cfg.Language)
	assert.Equal(t, 10, cfg.MaxChainPrompts)
	assert.Equal(t, 200*time.Millisecond, cfg.ChainPause)
	assert.True(t, cfg.ReplaceSelection)
	assert.Equal(t, filepath.Join(".", ".noteassist", "history.db"), cfg.HistoryDB)
}

func TestLoad_Precedence(t *testing.T) {
	dir := t.TempDir()
	file := writeFile(t, dir, "config.yaml", "model: from-file\nmax_tokens: 1000\nlanguage: de\nchain_pause: 1s\n")
	env := writeFile(t, dir, ".env", "NOTEASSIST_MODEL=from-dotenv\nOPENAI_API_KEY=sk-dotenv\nNOTEASSIST_LANGUAGE=fr\n")
	t.Setenv("NOTEASSIST_LANGUAGE", "es")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("max-tokens", 0, "")
	require.NoError(t, flags.Parse([]string{"--max-tokens=2048"}))

	cfg, err := Load(LoadOptions{ConfigFile: file, EnvFiles: []string{env, filepath.Join(dir, "absent.env")}, Flags: flags})
	require.NoError(t, err)

	assert.Equal(t, "from-dotenv", cfg.Model)
	assert.Equal(t, "sk-dotenv", cfg.OpenAIAPIKey)
	assert.Equal(t, "es", cfg.Language)
	assert.Equal(t, 2048, cfg.MaxTokens)
	assert.Equal(t, time.Second, cfg.ChainPause)
}

func TestLoad_ConventionalKeyNames(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("NOTEASSIST_PROVIDER", "Anthropic")

	cfg, err := Load(isolatedOptions(t))
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, cfg.Provider)
	assert.Equal(t, "sk-ant", cfg.CompletionAPIKey())
}

func TestLoad_RejectsInvalid(t *testing.T) {
	t.Setenv("NOTEASSIST_MAX_TOKENS", "-1")
	_, err := Load(isolatedOptions(t))
	assert.ErrorContains(t, err, "max_tokens")
}

func TestConfig_Validate(t *testing.T) {
	cfg, err := Load(isolatedOptions(t))
	require.NoError(t, err)

	assert.Error(t, cfg.WithProvider("nope").Validate())

	bad := cfg
	bad.LLMBaseURL = "not a url"
	assert.Error(t, bad.Validate())
}

func TestConfig_WithModelReturnsCopy(t *testing.T) {
	cfg, err := Load(isolatedOptions(t))
	require.NoError(t, err)

	changed := cfg.WithModel("openai/gpt-4o")
	assert.Equal(t, "openai/gpt-4o", changed.Model)
	assert.Equal(t, "google/gemini-2.0-flash-lite-001", cfg.Model)
	assert.Equal(t, "dall-e-2", cfg.WithImageModel("dall-e-2").ImageModel)
}

func TestSet_WritesConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	require.NoError(t, Set(path, "model", "anthropic/claude-3.5-sonnet"))
	require.NoError(t, Set(path, "max-tokens", "4096"))
	assert.Error(t, Set(path, "no_such_key", "x"))

	cfg, err := Load(LoadOptions{ConfigFile: path})
	require.NoError(t, err)
	assert.Equal(t, "anthropic/claude-3.5-sonnet", cfg.Model)
	assert.Equal(t, 4096, cfg.MaxTokens)
}
