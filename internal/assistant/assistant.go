// Package assistant implements the one-shot editor commands around the chat core: quick
// prompts on the selection, markdown cleanup, frequent prompts, image generation,
// dictation and the file context actions.
package assistant

import (
	"context"
	"errors"
	"strings"
	"time"

	"noteassist/internal/logger"
	"noteassist/internal/storage"
	"noteassist/pkg/assisttypes"
)

// CleanupPrompt is the fixed instruction used by CleanUp.
const CleanupPrompt = "clean up this text into nice markdown format"

// Thinking notice settings.
const (
	ThinkingNotice          = "AI is thinking..."
	DefaultThinkingInterval = 5 * time.Second
)

var (
	ErrNoSelection = errors.New("no text selected")
	ErrEmptyAnswer = errors.New("the assistant returned an empty answer")
	ErrNoPrompts   = errors.New("no frequent prompts saved yet")
)

// PromptHistory ranks prompts by use; *storage.PromptHistory implements it.
type PromptHistory interface {
	Record(ctx context.Context, prompt string) error
	Frequent(ctx context.Context, query string, limit int) ([]storage.PromptEntry, error)
}

// Options tune the editor commands.
type Options struct {
	// ReplaceSelection replaces the selection with the answer; when false the answer is
	// placed after the selection.
	ReplaceSelection bool
	// ThinkingInterval is how often ThinkingNotice repeats while waiting; zero uses
	// DefaultThinkingInterval.
	ThinkingInterval time.Duration
}

// Assistant runs single-turn prompts against the editor selection.
type Assistant struct {
	completion assisttypes.CompletionProvider
	history    PromptHistory
	notifier   assisttypes.Notifier
	opts       Options
}

// New creates an Assistant. history may be nil, in which case prompts are not ranked.
func New(completion assisttypes.CompletionProvider, history PromptHistory, notifier assisttypes.Notifier, opts Options) *Assistant {
	if opts.ThinkingInterval <= 0 {
		opts.ThinkingInterval = DefaultThinkingInterval
	}
	if notifier == nil {
		notifier = assisttypes.NotifierFunc(func(string) {})
	}
	return &Assistant{completion: completion, history: history, notifier: notifier, opts: opts}
}

// RunPrompt sends "prompt : selection" and writes the answer into the editor. The prompt
// is counted in the history once the answer is in place.
func (a *Assistant) RunPrompt(ctx context.Context, editor assisttypes.HostEditor, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt is empty")
	}
	answer, err := a.apply(ctx, editor, prompt)
	if err != nil {
		return "", err
	}
	if a.history != nil {
		if err := a.history.Record(ctx, prompt); err != nil {
			logger.Warn("Failed to record prompt history", "error", err)
		}
	}
	return answer, nil
}

// CleanUp rewrites the selection as tidy markdown. It needs a selection and is not
// recorded in the history.
func (a *Assistant) CleanUp(ctx context.Context, editor assisttypes.HostEditor) (string, error) {
	if strings.TrimSpace(editor.Selection()) == "" {
		a.notifier.Notify("No text selected.")
		return "", ErrNoSelection
	}
	return a.apply(ctx, editor, CleanupPrompt)
}

// FrequentPrompts lists saved prompts matching query, most used first.
func (a *Assistant) FrequentPrompts(ctx context.Context, query string, limit int) ([]storage.PromptEntry, error) {
	if a.history == nil {
		a.notifier.Notify("No frequent prompts saved yet.")
		return nil, ErrNoPrompts
	}
	entries, err := a.history.Frequent(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 && query == "" {
		a.notifier.Notify("No frequent prompts saved yet.")
		return nil, ErrNoPrompts
	}
	return entries, nil
}

// RunFrequent reruns a saved prompt on the current selection.
func (a *Assistant) RunFrequent(ctx context.Context, editor assisttypes.HostEditor, entry storage.PromptEntry) (string, error) {
	return a.RunPrompt(ctx, editor, entry.Prompt)
}

// apply sends instruction with the selection and places the answer in the editor.
func (a *Assistant) apply(ctx context.Context, editor assisttypes.HostEditor, instruction string) (string, error) {
	selection := strings.TrimSpace(editor.Selection())
	answer, err := a.ask(ctx, instruction+" : "+selection)
	if err != nil {
		a.notifier.Notify("Error: " + err.Error())
		return "", err
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return "", ErrEmptyAnswer
	}
	if !a.opts.ReplaceSelection && selection != "" {
		answer = selection + "\n\n" + answer
	}
	if err := editor.ReplaceSelection(answer); err != nil {
		return "", err
	}
	return answer, nil
}

// ask sends one user message, repeating the thinking notice until the answer arrives.
func (a *Assistant) ask(ctx context.Context, content string) (string, error) {
	stop := a.thinking()
	defer stop()
	return a.completion.Complete(ctx, []assisttypes.OutboundMessage{
		{Role: assisttypes.RoleUser, Content: assisttypes.Text(content)},
	}, nil)
}

// thinking starts the periodic notice and returns the function that stops it.
func (a *Assistant) thinking() func() {
	ticker := time.NewTicker(a.opts.ThinkingInterval)
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		for {
			select {
			case <-ticker.C:
				a.notifier.Notify(ThinkingNotice)
			case <-done:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
		<-stopped
	}
}
