// Package main provides the noteassist CLI: an AI assistant for a markdown notes vault with
// an interactive chat, quick prompts on note selections, image generation and dictation.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"noteassist/internal/logger"
	"noteassist/internal/version"
)

// rootOptions are the persistent flags not handled by the config loader.
type rootOptions struct {
	configFile string
	logLevel   string
	logFile    string
	testMode   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// newRootCmd builds the command tree. Running the root without a subcommand opens the chat.
func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	chat := &chatOptions{}

	rootCmd := &cobra.Command{
		Use:   "noteassist",
		Short: "AI assistant for a markdown notes vault",
		Long: `noteassist chats with an LLM about the notes in a vault, rewrites selected text with
quick prompts, generates images into the vault and turns dictation into notes.`,
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return logger.Configure(opts.logLevel, opts.logFile, opts.testMode)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd, opts, chat)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "Config file (default: <user config dir>/noteassist/config.yaml)")
	flags.String("vault-dir", "", "Vault directory holding notes, chats and images (alias --vault)")
	flags.String("provider", "", "Completion provider (openrouter|openai|anthropic|gemini)")
	flags.String("model", "", "Chat model")
	flags.StringVar(&opts.logLevel, "log-level", "", "Set log level (debug|info|warn|error) [default: info]")
	flags.StringVar(&opts.logFile, "log-file", "", "Write logs to file instead of stderr")
	flags.BoolVar(&opts.testMode, "test-mode", false, "Run in deterministic offline test mode")
	rootCmd.SetGlobalNormalizationFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		if name == "vault" {
			name = "vault-dir"
		}
		return pflag.NormalizedName(name)
	})
	addChatFlags(rootCmd, chat)

	rootCmd.AddCommand(
		newChatCmd(opts),
		newPromptCmd(opts),
		newCleanupCmd(opts),
		newFrequentCmd(opts),
		newImageCmd(opts),
		newTranscribeCmd(opts),
		newSpeakCmd(opts),
		newChainCmd(opts),
		newCollectCmd(opts),
		newModelsCmd(opts),
		newConfigCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	var detailed bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			if detailed {
				cmd.Println(version.GetDetailedVersion())
				return
			}
			cmd.Println(version.GetFormattedVersion())
		},
	}
	cmd.Flags().BoolVar(&detailed, "detailed", false, "Show build details")
	return cmd
}
