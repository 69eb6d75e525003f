// Package shell provides the interactive chat shell: an ishell REPL that routes plain
// lines to the chat session and backslash commands to session operations.
package shell

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell/v2"
	"noteassist/internal/chat"
	"noteassist/internal/collect"
	"noteassist/internal/logger"
	"noteassist/internal/recording"
	"noteassist/pkg/assisttypes"
)

// ErrExit is returned by Execute for \exit.
var ErrExit = errors.New("exit requested")

// AudioSource opens a live audio stream for \record.
type AudioSource func(ctx context.Context) (io.ReadCloser, string, error)

// Clipboard receives copied text.
type Clipboard interface {
	Copy(text string) error
}

// Options are the optional collaborators of a Handler. Commands whose collaborator is
// missing report that they are unavailable.
type Options struct {
	Collector *collect.Collector
	Clipboard Clipboard
	Editor    assisttypes.HostEditor
	Recorder  *recording.Recorder
	Audio     AudioSource
}

// Handler executes shell input against one chat session.
type Handler struct {
	session  *chat.Session
	renderer *TerminalRenderer
	opts     Options
	commands map[string]command
}

type command struct {
	usage string
	run   func(ctx context.Context, args string) error
}

// NewHandler creates a handler. The renderer must be the one the session renders to.
func NewHandler(session *chat.Session, renderer *TerminalRenderer, opts Options) *Handler {
	h := &Handler{session: session, renderer: renderer, opts: opts}
	h.commands = map[string]command{
		"send":   {"\\send  send the current draft", h.send},
		"draft":  {"\\draft [text]  set the draft without sending", h.draft},
		"edit":   {"\\edit N  edit message N; the next line replaces it (empty deletes)", h.edit},
		"cancel": {"\\cancel  abandon the pending edit", h.cancel},
		"delete": {"\\delete N  delete message N", h.delete},
		"clear":  {"\\clear  remove every message", h.clear},
		"show":   {"\\show  print the whole conversation", h.show},
		"save":   {"\\save [name]  save the chat under name", h.save},
		"load":   {"\\load name  load a saved chat", h.load},
		"list":   {"\\list [query]  list saved chats", h.list},
		"image":  {"\\image path-or-url  attach an image", h.image},
		"file":   {"\\file path  add a vault note as context", h.file},
		"folder": {"\\folder path  add every note in a folder as context", h.folder},
		"select": {"\\select path...  add several notes and folders as context", h.selection},
		"chain":  {"\\chain  run one prompt per line (or separated by ;;)", h.chain},
		"record": {"\\record  start or stop dictating into the draft", h.record},
		"copy":   {"\\copy  copy the conversation to the clipboard", h.copyConversation},
		"insert": {"\\insert  insert the last answer into the editor selection", h.insert},
		"tokens": {"\\tokens  show the context token count", h.tokens},
		"help":   {"\\help  list commands", h.help},
		"exit":   {"\\exit  save and leave", func(context.Context, string) error { return ErrExit }},
	}
	return h
}

// ProcessInput handles one line from the interactive shell. ctx bounds the command, so
// cancelling it stops a running send or chain.
func (h *Handler) ProcessInput(ctx context.Context, c *ishell.Context) {
	if len(c.RawArgs) == 0 {
		return
	}
	rawInput := strings.TrimSpace(strings.Join(c.RawArgs, " "))
	if rawInput == "" {
		return
	}

	if rawInput == `\chain` {
		c.Println("Enter prompts, one per line. End with a line containing only '.'")
		body := c.ReadMultiLinesFunc(func(line string) bool {
			return strings.TrimSpace(line) != "."
		})
		body = strings.TrimSuffix(strings.TrimRight(body, " \n"), ".")
		rawInput += "\n" + body
	}

	err := h.Execute(ctx, rawInput)
	switch {
	case errors.Is(err, ErrExit):
		c.Stop()
	case err != nil:
		logger.Debug("Command failed", "command", rawInput, "error", err)
		c.Printf("Error: %s\n", err.Error())
		if !strings.HasPrefix(rawInput, `\help`) {
			c.Println("Type \\help for available commands")
		}
	}
}

// Execute runs one line. Plain text is sent as a user message; a pending edit takes it
// as the replacement text instead.
func (h *Handler) Execute(ctx context.Context, line string) error {
	if !strings.HasPrefix(line, `\`) {
		h.session.SetDraft(line)
		return h.send(ctx, "")
	}
	name, args := strings.TrimPrefix(line, `\`), ""
	if i := strings.IndexAny(name, " \n"); i >= 0 {
		name, args = name[:i], name[i+1:]
	}
	cmd, ok := h.commands[strings.ToLower(name)]
	if !ok {
		return fmt.Errorf("unknown command \\%s", name)
	}
	return cmd.run(ctx, strings.TrimSpace(args))
}

func (h *Handler) send(ctx context.Context, _ string) error {
	switch outcome := h.session.Send(ctx); outcome {
	case chat.OutcomeFailed:
		return errors.New("the request failed")
	case chat.OutcomeNothingToSend:
		h.renderer.Notify("Nothing to send.")
	}
	return nil
}

func (h *Handler) draft(_ context.Context, args string) error {
	h.session.SetDraft(args)
	return nil
}

// messageID maps a 1-based position in the transcript to a message id.
func (h *Handler) messageID(arg string) (string, error) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil {
		return "", fmt.Errorf("expected a message number, got %q", arg)
	}
	messages := h.session.Messages()
	if n < 1 || n > len(messages) {
		return "", fmt.Errorf("no message %d (the chat has %d)", n, len(messages))
	}
	return messages[n-1].ID, nil
}

func (h *Handler) edit(_ context.Context, args string) error {
	id, err := h.messageID(args)
	if err != nil {
		return err
	}
	if err := h.session.EditMessage(id); err != nil {
		return err
	}
	h.renderer.Notify("Editing message " + args + ". Current text:")
	h.renderer.Notify(h.session.Draft())
	return nil
}

func (h *Handler) cancel(_ context.Context, _ string) error {
	h.session.CancelEdit()
	return nil
}

func (h *Handler) delete(_ context.Context, args string) error {
	id, err := h.messageID(args)
	if err != nil {
		return err
	}
	return h.session.DeleteMessage(id)
}

func (h *Handler) clear(_ context.Context, _ string) error {
	if err := h.session.Clear(); err != nil {
		return err
	}
	h.renderer.Notify("Chat cleared.")
	return nil
}

func (h *Handler) show(_ context.Context, _ string) error {
	h.renderer.Reset()
	h.session.Refresh()
	return nil
}

func (h *Handler) save(ctx context.Context, args string) error {
	name := args
	if name == "" {
		name = h.session.SuggestedSaveName()
	}
	if err := h.session.SaveAs(ctx, name); err != nil {
		return err
	}
	h.renderer.Notify("Chat saved as " + h.session.SaveName() + ".")
	return nil
}

func (h *Handler) load(ctx context.Context, args string) error {
	if args == "" {
		return errors.New("usage: \\load name")
	}
	h.renderer.Reset()
	return h.session.LoadByName(ctx, args)
}

func (h *Handler) list(_ context.Context, args string) error {
	names, err := h.session.ListSaved(args)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		h.renderer.Notify("No saved chats found.")
		return nil
	}
	for _, n := range names {
		marker := "  "
		if n == h.session.SaveName() {
			marker = "* "
		}
		h.renderer.Notify(marker + n)
	}
	return nil
}

func (h *Handler) image(_ context.Context, args string) error {
	if args == "" {
		return errors.New("usage: \\image path-or-url")
	}
	ref, err := ImageReference(args)
	if err != nil {
		return err
	}
	return h.session.AddImage(ref)
}

// ImageReference keeps URLs and data URIs as they are and turns a local image file into
// a data URI.
func ImageReference(arg string) (string, error) {
	if strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://") || strings.HasPrefix(arg, "data:") {
		return arg, nil
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}
	mediaType := mime.TypeByExtension(strings.ToLower(filepath.Ext(arg)))
	if !strings.HasPrefix(mediaType, "image/") {
		return "", fmt.Errorf("%s is not an image", filepath.Base(arg))
	}
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func (h *Handler) collector() (*collect.Collector, error) {
	if h.opts.Collector == nil {
		return nil, errors.New("vault context is not available")
	}
	return h.opts.Collector, nil
}

func (h *Handler) file(_ context.Context, args string) error {
	c, err := h.collector()
	if err != nil {
		return err
	}
	content, name, err := c.FileContext(args)
	if err != nil {
		return err
	}
	return h.session.AddFileContext(content, name)
}

func (h *Handler) folder(_ context.Context, args string) error {
	c, err := h.collector()
	if err != nil {
		return err
	}
	bundle, err := c.Folder(args)
	if err != nil {
		return err
	}
	return h.session.AddFolderContext(bundle.ChatText())
}

func (h *Handler) selection(_ context.Context, args string) error {
	c, err := h.collector()
	if err != nil {
		return err
	}
	paths := strings.Fields(args)
	if len(paths) == 0 {
		return errors.New("usage: \\select path...")
	}
	bundle, err := c.Selection(paths)
	if err != nil {
		return err
	}
	return h.session.AddFolderContext(bundle.ChatText())
}

func (h *Handler) chain(ctx context.Context, args string) error {
	raw := strings.ReplaceAll(args, ";;", "\n")
	report, err := h.session.RunChain(ctx, raw)
	if err != nil {
		return err
	}
	logger.Debug("Chain completed", "completed", report.Completed, "dropped", report.Dropped)
	return nil
}

func (h *Handler) record(ctx context.Context, _ string) error {
	if h.opts.Recorder == nil || h.opts.Audio == nil {
		return errors.New("recording is not configured")
	}
	if !h.opts.Recorder.Recording() {
		if err := h.session.BeginRecording(); err != nil {
			return err
		}
		// The recording outlives this command; the next \record stops it.
		recCtx := context.WithoutCancel(ctx)
		src, mimeType, err := h.opts.Audio(recCtx)
		if err == nil {
			err = h.opts.Recorder.Start(recCtx, src, mimeType)
		}
		if err != nil {
			h.session.FinishRecording("")
			return err
		}
		h.renderer.Notify("Recording... run \\record again to stop.")
		return nil
	}

	h.renderer.Notify("Transcribing audio...")
	text, err := h.opts.Recorder.Stop(ctx)
	h.session.FinishRecording(text)
	if err != nil {
		return err
	}
	h.renderer.Notify("Draft: " + h.session.Draft())
	h.renderer.Notify("Run \\send to send it.")
	return nil
}

func (h *Handler) copyConversation(_ context.Context, _ string) error {
	if h.opts.Clipboard == nil {
		return errors.New("clipboard is not available")
	}
	if err := h.opts.Clipboard.Copy(h.session.CopyConversation()); err != nil {
		return err
	}
	h.renderer.Notify("Conversation copied to clipboard.")
	return nil
}

func (h *Handler) insert(_ context.Context, _ string) error {
	if h.opts.Editor == nil {
		return errors.New("no editor selection to insert into")
	}
	return h.session.InsertLastAnswer(h.opts.Editor)
}

func (h *Handler) tokens(ctx context.Context, _ string) error {
	h.renderer.Notify(h.session.TokenCount(ctx).Display(h.renderer.maxTokens))
	return nil
}

func (h *Handler) help(_ context.Context, _ string) error {
	names := make([]string, 0, len(h.commands))
	for name := range h.commands {
		names = append(names, name)
	}
	slices.Sort(names)
	var b strings.Builder
	b.WriteString("Type a message to send it, or a command:\n")
	for _, name := range names {
		b.WriteString("  " + h.commands[name].usage + "\n")
	}
	h.renderer.Notify(strings.TrimRight(b.String(), "\n"))
	return nil
}
