package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/charmbracelet/x/ansi"
	"github.com/spf13/cobra"
	"noteassist/internal/assistant"
	"noteassist/internal/chat"
	"noteassist/internal/config"
	"noteassist/internal/services"
	"noteassist/internal/shell"
)

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// withApp runs fn with an initialized app that is closed afterwards.
func withApp(cmd *cobra.Command, root *rootOptions, fn func(ctx context.Context, a *app) error) error {
	a, err := newApp(cmd, root)
	if err != nil {
		return err
	}
	defer a.close()
	return fn(commandContext(cmd), a)
}

func newAssistant(a *app, withHistory bool) (*assistant.Assistant, error) {
	completion, err := a.completion()
	if err != nil {
		return nil, err
	}
	var history assistant.PromptHistory
	if withHistory {
		h, err := a.promptHistory()
		if err != nil {
			return nil, err
		}
		history = h
	}
	return assistant.New(completion, history, a.notifier, assistant.Options{ReplaceSelection: a.cfg.ReplaceSelection}), nil
}

type selectionFlags struct {
	file  string
	lines string
}

func (f *selectionFlags) add(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.file, "file", "", "Note to edit in place (default: read stdin, write stdout)")
	cmd.Flags().StringVar(&f.lines, "lines", "", "Line range of --file to use as the selection, e.g. 3-7")
}

func newPromptCmd(root *rootOptions) *cobra.Command {
	sel := &selectionFlags{}
	cmd := &cobra.Command{
		Use:   "prompt <instruction>",
		Short: "Apply an instruction to the selected text",
		Long: `Send "<instruction> : <selection>" to the model and put the answer into the selection
(or after it when replace_selection is off). The instruction is counted in the prompt history.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, func(ctx context.Context, a *app) error {
				editor, err := a.editor(cmd, sel.file, sel.lines)
				if err != nil {
					return err
				}
				asst, err := newAssistant(a, true)
				if err != nil {
					return err
				}
				_, err = asst.RunPrompt(ctx, editor, strings.Join(args, " "))
				return err
			})
		},
	}
	sel.add(cmd)
	return cmd
}

func newCleanupCmd(root *rootOptions) *cobra.Command {
	sel := &selectionFlags{}
	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Rewrite the selected text as tidy markdown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, root, func(ctx context.Context, a *app) error {
				editor, err := a.editor(cmd, sel.file, sel.lines)
				if err != nil {
					return err
				}
				asst, err := newAssistant(a, false)
				if err != nil {
					return err
				}
				_, err = asst.CleanUp(ctx, editor)
				return err
			})
		},
	}
	sel.add(cmd)
	return cmd
}

func newFrequentCmd(root *rootOptions) *cobra.Command {
	sel := &selectionFlags{}
	var (
		run   int
		limit int
	)
	cmd := &cobra.Command{
		Use:   "frequent [query]",
		Short: "List the most used prompts, or rerun one with --run",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, func(ctx context.Context, a *app) error {
				history, err := a.promptHistory()
				if err != nil {
					return err
				}
				query := ""
				if len(args) == 1 {
					query = args[0]
				}
				// Listing needs no completion provider.
				lister := assistant.New(nil, history, a.notifier, assistant.Options{})
				entries, err := lister.FrequentPrompts(ctx, query, limit)
				if err != nil {
					if errors.Is(err, assistant.ErrNoPrompts) {
						return nil
					}
					return err
				}
				if run == 0 {
					for i, e := range entries {
						cmd.Printf("%2d. %s (%d)\n", i+1, ansi.Truncate(e.Prompt, 70, "..."), e.UseCount)
					}
					return nil
				}
				if run < 1 || run > len(entries) {
					return fmt.Errorf("--run must be between 1 and %d", len(entries))
				}
				editor, err := a.editor(cmd, sel.file, sel.lines)
				if err != nil {
					return err
				}
				asst, err := newAssistant(a, true)
				if err != nil {
					return err
				}
				_, err = asst.RunFrequent(ctx, editor, entries[run-1])
				return err
			})
		},
	}
	cmd.Flags().IntVar(&run, "run", 0, "Run the Nth listed prompt on the selection")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum prompts to list")
	sel.add(cmd)
	return cmd
}

func newImageCmd(root *rootOptions) *cobra.Command {
	var (
		size   string
		count  int
		hd     bool
		noSave bool
	)
	cmd := &cobra.Command{
		Use:   "image <prompt>",
		Short: "Generate images and save them into the vault",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, func(ctx context.Context, a *app) error {
				cfg := a.cfg
				spec, err := assistant.ImageSpecFor(a.catalog, cfg.ImageModel)
				if err != nil {
					return err
				}
				req, err := spec.Request(strings.Join(args, " "), size, count, hd)
				if err != nil {
					return err
				}
				images, provider := a.factory.ImagesFor(cfg)
				if err := images.Initialize(); err != nil {
					return err
				}
				studio := assistant.NewImageStudio(provider, images, a.clip, a.notifier, cfg.VaultDir, cfg.ImageFolder)
				refs, err := studio.Generate(ctx, req)
				if err != nil {
					return err
				}
				if noSave {
					for _, ref := range refs {
						cmd.Println(ref)
					}
					return nil
				}
				saved, err := studio.Save(ctx, refs)
				if err != nil {
					return err
				}
				cmd.Print(saved.Links)
				if saved.Failed > 0 && len(saved.Paths) == 0 {
					return errors.New("no image could be saved")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&size, "size", "", "Image size, e.g. 1024x1024 (default: the model's first size)")
	cmd.Flags().IntVar(&count, "count", 1, "Number of images (dall-e-3 allows 1)")
	cmd.Flags().BoolVar(&hd, "hd", false, "HD quality (dall-e-3 only)")
	cmd.Flags().String("image-model", "", "Image model (default from config)")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Print the image references instead of saving")
	return cmd
}

func newTranscribeCmd(root *rootOptions) *cobra.Command {
	sel := &selectionFlags{}
	var language string
	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe a recording, optionally inserting it into a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, func(ctx context.Context, a *app) error {
				audio, err := os.ReadFile(args[0])
				if err != nil {
					return fmt.Errorf("failed to read audio: %w", err)
				}
				mimeType, err := audioMIMEType(args[0])
				if err != nil {
					return err
				}
				if language == "" {
					language = a.cfg.Language
				}
				dictation := assistant.NewDictation(a.factory.TranscriptionFor(a.cfg), nil, language, a.notifier)
				if sel.file == "" {
					editor := services.NewStreamEditor("", cmd.OutOrStdout())
					_, err := dictation.Insert(ctx, editor, audio, mimeType)
					if err == nil {
						cmd.Println()
					}
					return err
				}
				editor, err := services.NewFileEditor(sel.file, sel.lines)
				if err != nil {
					return err
				}
				_, err = dictation.Insert(ctx, editor, audio, mimeType)
				return err
			})
		},
	}
	cmd.Flags().StringVar(&language, "language", "", "Spoken language (default from config)")
	sel.add(cmd)
	return cmd
}

// audioMIMEType maps a recording's extension to a supported audio type.
func audioMIMEType(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".webm":
		return "audio/webm", nil
	case ".wav":
		return "audio/wav", nil
	case ".mp3", ".mpeg":
		return "audio/mpeg", nil
	case ".m4a", ".mp4":
		return "audio/mp4", nil
	case ".ogg", ".oga":
		return "audio/ogg", nil
	}
	return "", fmt.Errorf("unsupported audio file %s", filepath.Base(path))
}

func newSpeakCmd(root *rootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "speak <text>",
		Short: "Read text aloud into an MP3 file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, func(ctx context.Context, a *app) error {
				dictation := assistant.NewDictation(nil, a.factory.SpeechFor(a.cfg), a.cfg.Language, a.notifier)
				audio, err := dictation.ReadAloud(ctx, strings.Join(args, " "))
				if err != nil {
					return err
				}
				if err := os.WriteFile(out, audio, 0o644); err != nil {
					return fmt.Errorf("failed to write %s: %w", out, err)
				}
				a.notifier.Notify("Audio written to " + out + ".")
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "speech.mp3", "Output file")
	return cmd
}

func newChainCmd(root *rootOptions) *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "chain [prompts-file]",
		Short: "Run prompts one after another in a saved chat",
		Long: `Run one prompt per non-blank line, each waiting for the previous answer. Prompts are
read from the file, or from stdin when no file is given. The chat is saved when done.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, func(ctx context.Context, a *app) error {
				var raw []byte
				var err error
				if len(args) == 1 && args[0] != "-" {
					raw, err = os.ReadFile(args[0])
				} else {
					raw, err = io.ReadAll(cmd.InOrStdin())
				}
				if err != nil {
					return err
				}

				renderer := shell.NewTerminalRenderer(cmd.OutOrStdout(), a.markdown, a.cfg.MaxTokens)
				s, err := newSession(a, chat.Config{SaveName: session}, renderer, renderer)
				if err != nil {
					return err
				}
				if session == "" {
					err = s.Open(ctx)
				} else {
					err = s.LoadByName(ctx, session)
				}
				if err != nil {
					_ = s.Close(ctx)
					return err
				}

				report, runErr := s.RunChain(ctx, string(raw))
				closeErr := s.Close(ctx)
				if runErr != nil {
					return runErr
				}
				a.notifier.Notify(fmt.Sprintf("%d prompt(s) answered in %q.", report.Completed, s.SaveName()))
				return closeErr
			})
		},
	}
	cmd.Flags().StringVar(&session, "session", "", "Saved chat to run in (default: the default chat)")
	return cmd
}

func newCollectCmd(root *rootOptions) *cobra.Command {
	var printOnly bool
	cmd := &cobra.Command{
		Use:   "collect <path>...",
		Short: "Copy the markdown of notes and folders to the clipboard",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, func(_ context.Context, a *app) error {
				paths, err := a.vaultPaths(args)
				if err != nil {
					return err
				}
				var clipboard assistant.Clipboard
				if !printOnly && a.clip.Available() {
					clipboard = a.clip
				}
				workspace := assistant.NewWorkspace(a.source, clipboard, a.notifier)
				actions := workspace.ContextActions(paths)
				if len(actions) == 0 {
					return errors.New("nothing to collect: select markdown notes or folders")
				}
				a.notifier.Notify(actions[0].Title)
				text, err := workspace.Run(actions[0])
				if err != nil {
					return err
				}
				if clipboard == nil {
					cmd.Print(text)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "Print instead of copying to the clipboard")
	return cmd
}

func newModelsCmd(root *rootOptions) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "models [query]",
		Short: "List the known models",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, root, func(_ context.Context, a *app) error {
				var (
					models []services.ModelCatalogEntry
					err    error
				)
				if len(args) == 1 {
					models, err = a.catalog.Search(args[0])
				} else {
					models, err = a.catalog.Models(kind)
				}
				if err != nil {
					return err
				}
				for _, m := range models {
					if kind != "" && m.Kind != kind {
						continue
					}
					marker := " "
					if m.ID == a.cfg.Model || m.ID == a.cfg.ImageModel || m.ID == a.cfg.TranscriptionModel {
						marker = "*"
					}
					details := m.Kind
					if m.Vision {
						details += ", vision"
					}
					if m.ContextWindow > 0 {
						details += ", " + strconv.Itoa(m.ContextWindow) + " tokens"
					}
					cmd.Printf("%s %-12s %-45s %s\n", marker, m.Provider, m.ID, details)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "", "Only list chat, image or transcription models")
	return cmd
}

func newConfigCmd(_ *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the configuration file",
	}
	var file string
	set := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Write one setting into the config file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := file
			if path == "" {
				if explicit, _ := cmd.Flags().GetString("config"); explicit != "" {
					path = explicit
				} else {
					var err error
					if path, err = config.DefaultConfigFile(); err != nil {
						return err
					}
				}
			}
			if err := config.Set(path, args[0], args[1]); err != nil {
				return err
			}
			cmd.Printf("%s updated in %s\n", args[0], path)
			return nil
		},
	}
	set.Flags().StringVar(&file, "file", "", "Config file to write (default: --config or the user config file)")
	cmd.AddCommand(set)
	return cmd
}
