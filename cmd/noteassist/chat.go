package main

import (
	"context"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"noteassist/internal/assistant"
	"noteassist/internal/chat"
	"noteassist/internal/config"
	"noteassist/internal/recording"
	"noteassist/internal/services"
	"noteassist/internal/shell"
	"noteassist/internal/storage"
	"noteassist/internal/testutils"
	"noteassist/internal/tokenizer"
	"noteassist/internal/version"
	"noteassist/pkg/assisttypes"
)

// chatOptions configure the interactive chat.
type chatOptions struct {
	with       []string
	session    string
	file       string
	lines      string
	recordCmd  string
	recordMIME string
}

func addChatFlags(cmd *cobra.Command, opts *chatOptions) {
	cmd.Flags().StringSliceVar(&opts.with, "with", nil, "Open the chat with these notes or folders as context")
	cmd.Flags().StringVar(&opts.session, "session", "", "Saved chat to open (default: the default chat)")
	cmd.Flags().StringVar(&opts.file, "file", "", "Note that \\insert writes the last answer into")
	cmd.Flags().StringVar(&opts.lines, "lines", "", "Line range of --file to replace, e.g. 3-7")
	cmd.Flags().StringVar(&opts.recordCmd, "record-cmd", "", "Command whose stdout is recorded by \\record, e.g. 'arecord -f cd -t wav'")
	cmd.Flags().StringVar(&opts.recordMIME, "record-mime", "audio/wav", "Audio format produced by --record-cmd")
}

func newChatCmd(root *rootOptions) *cobra.Command {
	opts := &chatOptions{}
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start the interactive chat",
		Long: `Start the interactive chat. Without --session the default chat is loaded and saved
again on exit. With --with the chat starts from the given notes and gets a timestamped name.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, root, opts)
		},
	}
	addChatFlags(cmd, opts)
	return cmd
}

// newSession builds a chat session over the vault's chat folder.
func newSession(a *app, cfg chat.Config, renderer chat.Renderer, notifier assisttypes.Notifier) (*chat.Session, error) {
	completion, err := a.completion()
	if err != nil {
		return nil, err
	}
	cfg.Streaming = a.cfg.Streaming
	cfg.MaxChainPrompts = a.cfg.MaxChainPrompts
	cfg.ChainPause = a.cfg.ChainPause
	cfg.CloseTimeout = a.cfg.CloseTimeout
	cfg.Now = testutils.Clock(a.testMode)
	cfg.NewID = testutils.IDGenerator(a.testMode)
	return chat.NewSession(cfg, chat.Dependencies{
		Completion: completion,
		Store:      storage.NewVaultStore(a.cfg.VaultDir, a.cfg.ChatFolder),
		Tokenizer:  tokenizer.New(nil),
		Notifier:   notifier,
		Renderer:   renderer,
	}), nil
}

func runChat(cmd *cobra.Command, root *rootOptions, opts *chatOptions) error {
	a, err := newApp(cmd, root)
	if err != nil {
		return err
	}
	defer a.close()
	ctx := commandContext(cmd)

	renderer := shell.NewTerminalRenderer(cmd.OutOrStdout(), a.markdown, a.cfg.MaxTokens)
	sessionCfg := chat.Config{SaveName: opts.session}
	if len(opts.with) > 0 {
		paths, err := a.vaultPaths(opts.with)
		if err != nil {
			return err
		}
		initial, err := assistant.NewWorkspace(a.source, nil, renderer).ChatContext(paths)
		if err != nil {
			return err
		}
		sessionCfg.InitialContext = initial
	}

	session, err := newSession(a, sessionCfg, renderer, renderer)
	if err != nil {
		return err
	}
	if opts.session != "" && sessionCfg.InitialContext == "" {
		if err := session.LoadByName(ctx, opts.session); err != nil {
			_ = session.Close(ctx)
			return err
		}
	} else if err := session.Open(ctx); err != nil {
		renderer.Notify("Starting with an empty chat.")
	}

	handlerOpts := shell.Options{
		Collector: assistant.NewWorkspace(a.source, a.clip, renderer).Collector(),
		Clipboard: a.clip,
	}
	if opts.file != "" {
		editor, err := services.NewFileEditor(opts.file, opts.lines)
		if err != nil {
			_ = session.Close(ctx)
			return err
		}
		handlerOpts.Editor = editor
	}
	if opts.recordCmd != "" {
		fields := strings.Fields(opts.recordCmd)
		handlerOpts.Recorder = recording.NewRecorder(a.factory.TranscriptionFor(a.cfg), a.cfg.Language)
		handlerOpts.Audio = func(ctx context.Context) (io.ReadCloser, string, error) {
			src, err := recording.CommandSource(ctx, fields[0], fields[1:]...)
			return src, opts.recordMIME, err
		}
	}

	banner := version.GetFormattedVersion() + " - " + providerLine(a.cfg)
	return shell.Run(ctx, shell.NewHandler(session, renderer, handlerOpts), banner)
}

func providerLine(cfg config.Config) string {
	return cfg.Provider + " / " + cfg.Model + " - chat: " + cfg.ChatFolder
}
