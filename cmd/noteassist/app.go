package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"noteassist/internal/collect"
	"noteassist/internal/config"
	"noteassist/internal/logger"
	"noteassist/internal/services"
	"noteassist/internal/storage"
	"noteassist/internal/testutils"
	"noteassist/pkg/assisttypes"
)

var noticeStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

// notifier prints notices on their own line.
type notifier struct {
	mu  sync.Mutex
	out io.Writer
}

func (n *notifier) Notify(message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	fmt.Fprintln(n.out, noticeStyle.Render(message))
}

// app holds the services one command invocation needs.
type app struct {
	cfg      config.Config
	testMode bool
	registry *services.Registry
	catalog  *services.ModelCatalogService
	factory  *services.ClientFactoryService
	markdown *services.MarkdownService
	clip     *services.ClipboardService
	source   *collect.FSSource
	notifier assisttypes.Notifier

	history *storage.PromptHistory
}

// newApp loads the configuration and initializes the services.
func newApp(cmd *cobra.Command, opts *rootOptions) (*app, error) {
	cfg, err := config.Load(config.LoadOptions{
		ConfigFile: opts.configFile,
		EnvFiles:   config.DefaultEnvFiles(),
		Flags:      cmd.Flags(),
	})
	if err != nil {
		return nil, err
	}

	n := &notifier{out: cmd.ErrOrStderr()}
	a := &app{
		cfg:      cfg,
		testMode: opts.testMode,
		registry: services.NewRegistry(),
		catalog:  services.NewModelCatalogService(),
		markdown: services.NewMarkdownService(),
		clip:     services.NewClipboardService(),
		source:   collect.NewFSSource(cfg.VaultDir),
		notifier: n,
	}
	a.factory = services.NewClientFactoryService(a.catalog, n)

	for _, service := range []assisttypes.Service{a.catalog, a.factory, a.markdown, a.clip} {
		if err := a.registry.RegisterService(service); err != nil {
			return nil, err
		}
	}
	if err := a.registry.InitializeAll(); err != nil {
		return nil, err
	}

	a.factory.SetTestMode(opts.testMode)
	if cfg.RequestLogging {
		logs := storage.NewVaultStore(cfg.VaultDir, cfg.LogFolder)
		a.factory.SetRecorder(storage.NewRequestLog(logs, testutils.Clock(opts.testMode)))
	}
	logger.Debug("Services initialized", "provider", cfg.Provider, "model", cfg.Model, "vault", cfg.VaultDir)
	return a, nil
}

func (a *app) completion() (assisttypes.CompletionProvider, error) {
	return a.factory.CompletionFor(a.cfg)
}

// promptHistory opens the prompt history database on first use.
func (a *app) promptHistory() (*storage.PromptHistory, error) {
	if a.history != nil {
		return a.history, nil
	}
	history, err := storage.OpenPromptHistory(a.cfg.HistoryDB)
	if err != nil {
		return nil, err
	}
	if a.testMode {
		history.SetClock(testutils.Clock(true))
	}
	a.history = history
	return history, nil
}

// vaultPaths converts arguments to vault-relative paths. Absolute paths must lie inside
// the vault; relative ones are taken as vault-relative already.
func (a *app) vaultPaths(args []string) ([]string, error) {
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		if filepath.IsAbs(arg) {
			rel, err := a.source.Rel(arg)
			if err != nil {
				return nil, err
			}
			paths = append(paths, rel)
			continue
		}
		p := filepath.ToSlash(filepath.Clean(arg))
		paths = append(paths, strings.TrimPrefix(p, "./"))
	}
	return paths, nil
}

// editor selects text from a file, or from stdin with the result written to stdout.
func (a *app) editor(cmd *cobra.Command, file, lines string) (*services.FileEditor, error) {
	if file != "" {
		return services.NewFileEditor(file, lines)
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, fmt.Errorf("failed to read selection from stdin: %w", err)
	}
	return services.NewStreamEditor(string(data), cmd.OutOrStdout()), nil
}

func (a *app) close() {
	if a.history != nil {
		if err := a.history.Close(); err != nil {
			logger.Warn("Failed to close prompt history", "error", err)
		}
	}
}
