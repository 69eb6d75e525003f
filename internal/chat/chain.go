package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"noteassist/internal/logger"

	"github.com/charmbracelet/x/ansi"
	"golang.org/x/time/rate"
)

// Chain errors.
var (
	ErrEmptyChain   = errors.New("prompt chain has no prompts")
	ErrChainAborted = errors.New("prompt chain aborted")
)

// ChainReport summarizes a chain run.
type ChainReport struct {
	Prompts   []string
	Dropped   int
	Completed int
	// FailedAt is the index of the prompt that stopped the run, or -1.
	FailedAt int
}

// Truncated reports whether prompts beyond the limit were dropped.
func (r ChainReport) Truncated() bool {
	return r.Dropped > 0
}

// ParseChain splits raw text into prompts: one per non-blank line, trimmed.
func ParseChain(raw string) []string {
	var prompts []string
	for _, line := range strings.Split(raw, "\n") {
		if p := strings.TrimSpace(line); p != "" {
			prompts = append(prompts, p)
		}
	}
	return prompts
}

// ChainRunner feeds prompts through a session one generation at a time.
// A failed prompt aborts the rest of the run.
type ChainRunner struct {
	session *Session
	max     int
	pause   time.Duration
	limiter *rate.Limiter
}

// NewChainRunner paces prompts of session by its configured chain pause.
func NewChainRunner(session *Session) *ChainRunner {
	return &ChainRunner{
		session: session,
		max:     session.cfg.MaxChainPrompts,
		pause:   session.cfg.ChainPause,
		limiter: rate.NewLimiter(rate.Every(session.cfg.ChainPause), 1),
	}
}

// rest starts a full pause measured from now, so the next prompt waits for it.
func (c *ChainRunner) rest() {
	c.limiter = rate.NewLimiter(rate.Every(c.pause), 1)
	c.limiter.Allow()
}

// RunChain runs raw as a prompt chain on the session.
func (s *Session) RunChain(ctx context.Context, raw string) (ChainReport, error) {
	return NewChainRunner(s).Run(ctx, raw)
}

// Run executes the chain. Structural edits are refused for its duration; the chain flag
// and the draft are always cleared at the end.
func (c *ChainRunner) Run(ctx context.Context, raw string) (ChainReport, error) {
	s := c.session
	report := ChainReport{FailedAt: -1}
	chainLog := logger.NewStyledLogger("chain")

	prompts := ParseChain(raw)
	if len(prompts) == 0 {
		s.notifier.Notify("No prompts found in the chain.")
		return report, ErrEmptyChain
	}
	if len(prompts) > c.max {
		report.Dropped = len(prompts) - c.max
		prompts = prompts[:c.max]
	}
	report.Prompts = prompts

	s.mu.Lock()
	switch {
	case s.closed:
		s.mu.Unlock()
		return report, ErrClosed
	case s.chainRunning:
		s.mu.Unlock()
		s.notifier.Notify("A prompt chain is already running.")
		return report, ErrChainRunning
	case s.generating:
		s.mu.Unlock()
		s.notifier.Notify(noticeBusy)
		return report, ErrGenerating
	case s.editingID != "":
		s.mu.Unlock()
		s.notifier.Notify(noticeEditing)
		return report, ErrEditing
	case s.recording:
		s.mu.Unlock()
		s.notifier.Notify(noticeRecording)
		return report, ErrRecording
	}
	s.chainRunning = true
	view := s.viewLocked()
	s.mu.Unlock()
	s.publish(view)

	defer func() {
		s.mu.Lock()
		s.chainRunning = false
		s.draft = ""
		view := s.viewLocked()
		s.mu.Unlock()
		s.publish(view)
	}()

	if report.Truncated() {
		s.notifier.Notify(fmt.Sprintf("Prompt chain limited to %d prompts; %d ignored.", c.max, report.Dropped))
	}
	chainLog.Info("Prompt chain started", "prompts", len(prompts), "dropped", report.Dropped)

	for i, prompt := range prompts {
		s.notifier.Notify(fmt.Sprintf("Running prompt %d/%d: %s", i+1, len(prompts), ansi.Truncate(prompt, 50, "...")))

		if err := s.WaitIdle(ctx); err != nil {
			report.FailedAt = i
			return report, fmt.Errorf("%w: %v", ErrChainAborted, err)
		}
		if err := c.limiter.Wait(ctx); err != nil {
			report.FailedAt = i
			return report, fmt.Errorf("%w: %v", ErrChainAborted, err)
		}

		s.SetDraft(prompt)
		outcome := s.Send(ctx)
		if outcome != OutcomeAnswered {
			report.FailedAt = i
			chainLog.Error("Prompt chain aborted", "prompt", i+1, "outcome", outcome)
			s.notifier.Notify(fmt.Sprintf("Prompt chain stopped at prompt %d (%s).", i+1, outcome))
			return report, fmt.Errorf("%w at prompt %d: %s", ErrChainAborted, i+1, outcome)
		}
		report.Completed++
		c.rest()
	}

	s.notifier.Notify("Prompt chain finished.")
	chainLog.Info("Prompt chain finished", "completed", report.Completed)
	return report, nil
}
