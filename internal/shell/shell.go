package shell

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/abiosoft/ishell/v2"
	"noteassist/internal/logger"
)

// DefaultPrompt is shown before any token count is known.
const DefaultPrompt = "chat> "

// Run starts the REPL on the handler and blocks until \exit or end of input. The session
// is closed, and therefore saved, before Run returns.
func Run(ctx context.Context, h *Handler, banner string) error {
	sh := ishell.New()
	sh.SetPrompt(DefaultPrompt)

	// Plain lines are chat messages, so ishell's own commands must not shadow them.
	sh.DeleteCmd("exit")
	sh.DeleteCmd("help")
	sh.DeleteCmd("clear")

	sh.Println(banner)
	sh.Println("Type a message to chat, '\\help' for commands or '\\exit' to quit.")

	sh.NotFound(func(c *ishell.Context) {
		cmdCtx, stop := interruptible(ctx)
		defer stop()
		h.ProcessInput(cmdCtx, c)
		c.SetPrompt(promptFor(h.renderer.TokenLine()))
	})

	h.session.Refresh()
	sh.Run()

	logger.Debug("Shell stopped, closing session", "session", h.session.SaveName())
	if err := h.session.Close(ctx); err != nil {
		return fmt.Errorf("failed to save chat on exit: %w", err)
	}
	return nil
}

// interruptible derives the context of one command: Ctrl-C while it runs cancels the
// command instead of killing the shell.
func interruptible(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt)
}

// promptFor shows the context size, e.g. "chat [1200/64000]> ".
func promptFor(tokenLine string) string {
	count, ok := strings.CutPrefix(tokenLine, "Context Tokens: ")
	if !ok || count == "N/A" {
		return DefaultPrompt
	}
	return "chat [" + strings.ReplaceAll(count, " / ", "/") + "]> "
}
