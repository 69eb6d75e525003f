package assistant

import (
	"fmt"
	"path"

	"noteassist/internal/chat"
	"noteassist/internal/collect"
	"noteassist/internal/logger"
	"noteassist/pkg/assisttypes"
)

// ActionKind distinguishes the context actions offered for a file selection.
type ActionKind int

const (
	// ActionCollect copies the gathered markdown to the clipboard.
	ActionCollect ActionKind = iota
	// ActionChat opens a chat seeded with the gathered markdown.
	ActionChat
)

// ContextAction is one menu entry for a selection of vault paths.
type ContextAction struct {
	Kind  ActionKind
	Title string
	Paths []string
}

// Workspace runs context actions over the vault.
type Workspace struct {
	src       collect.Source
	collector *collect.Collector
	clipboard Clipboard
	notifier  assisttypes.Notifier
}

// NewWorkspace creates a Workspace. clipboard may be nil, in which case Collect only
// returns the text.
func NewWorkspace(src collect.Source, clipboard Clipboard, notifier assisttypes.Notifier) *Workspace {
	if notifier == nil {
		notifier = assisttypes.NotifierFunc(func(string) {})
	}
	return &Workspace{src: src, collector: collect.New(src, notifier), clipboard: clipboard, notifier: notifier}
}

// Collector exposes the aggregator used by the actions.
func (w *Workspace) Collector() *collect.Collector {
	return w.collector
}

// ContextActions lists the actions available for paths. A single non-markdown file has
// none.
func (w *Workspace) ContextActions(paths []string) []ContextAction {
	switch len(paths) {
	case 0:
		return nil
	case 1:
		p := paths[0]
		isDir, err := w.src.Stat(p)
		if err != nil {
			return nil
		}
		name := path.Base(p)
		if isDir {
			return []ContextAction{
				{Kind: ActionCollect, Title: fmt.Sprintf("Collect all markdown in '%s'", name), Paths: paths},
				{Kind: ActionChat, Title: fmt.Sprintf("Chat with Folder '%s'", name), Paths: paths},
			}
		}
		if path.Ext(p) != ".md" {
			return nil
		}
		return []ContextAction{
			{Kind: ActionCollect, Title: fmt.Sprintf("Collect content of '%s'", name), Paths: paths},
			{Kind: ActionChat, Title: fmt.Sprintf("Chat with '%s'", name), Paths: paths},
		}
	default:
		return []ContextAction{
			{Kind: ActionCollect, Title: "Collect all markdown from Selection", Paths: paths},
			{Kind: ActionChat, Title: "Chat with Selection", Paths: paths},
		}
	}
}

// Collect gathers the markdown under paths and copies it to the clipboard.
func (w *Workspace) Collect(paths []string) (collect.Bundle, error) {
	bundle, err := w.collector.Selection(paths)
	if err != nil {
		return bundle, err
	}
	if w.clipboard == nil {
		return bundle, nil
	}
	if err := w.clipboard.Copy(bundle.Body()); err != nil {
		logger.Debug("Clipboard copy failed", "error", err)
		w.notifier.Notify("Failed to copy collected markdown to clipboard.")
		return bundle, err
	}
	if len(paths) != 1 {
		w.notifier.Notify(fmt.Sprintf("Collected markdown from %d file(s) in selection copied to clipboard.", bundle.Files()))
		return bundle, nil
	}
	name := path.Base(paths[0])
	if isDir, _ := w.src.Stat(paths[0]); isDir {
		w.notifier.Notify(fmt.Sprintf("Collected markdown from %d file(s) in '%s' copied to clipboard.", bundle.Files(), name))
	} else {
		w.notifier.Notify(fmt.Sprintf("Content of '%s' copied to clipboard.", name))
	}
	return bundle, nil
}

// ChatContext gathers the markdown under paths as the initial context of a new chat. A
// single note is quoted whole under its file header.
func (w *Workspace) ChatContext(paths []string) (string, error) {
	if len(paths) == 1 {
		if isDir, err := w.src.Stat(paths[0]); err == nil && !isDir {
			content, name, err := w.collector.FileContext(paths[0])
			if err != nil {
				return "", err
			}
			return chat.FileContextHeader(name) + content, nil
		}
	}
	bundle, err := w.collector.Selection(paths)
	if err != nil {
		return "", err
	}
	return bundle.ChatText(), nil
}

// Run performs action: collect returns the copied text, chat returns the context to seed
// the chat with.
func (w *Workspace) Run(action ContextAction) (string, error) {
	if action.Kind == ActionChat {
		return w.ChatContext(action.Paths)
	}
	bundle, err := w.Collect(action.Paths)
	if err != nil {
		return "", err
	}
	return bundle.Body(), nil
}
