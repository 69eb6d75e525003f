package shell

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"noteassist/internal/chat"
	"noteassist/internal/tokenizer"
	"noteassist/pkg/assisttypes"
)

// MarkdownRenderer formats answer text for the terminal.
type MarkdownRenderer interface {
	Render(markdown string) (string, error)
}

var (
	userStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	assistantStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	systemStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("244"))
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	faintStyle     = lipgloss.NewStyle().Faint(true)
)

// TerminalRenderer prints session changes as they happen. Each message is printed once,
// again when its text changes, and streamed answers are written delta by delta.
type TerminalRenderer struct {
	mu        sync.Mutex
	out       io.Writer
	markdown  MarkdownRenderer
	maxTokens int
	onTokens  func(line string)

	printed  map[string]string
	order    []string
	streamed map[string]int
	tokens   tokenizer.Count
}

// NewTerminalRenderer writes to out. markdown may be nil for plain output.
func NewTerminalRenderer(out io.Writer, markdown MarkdownRenderer, maxTokens int) *TerminalRenderer {
	return &TerminalRenderer{
		out:       out,
		markdown:  markdown,
		maxTokens: maxTokens,
		printed:   make(map[string]string),
		streamed:  make(map[string]int),
	}
}

// OnTokens registers a callback receiving the token line after every recount.
func (r *TerminalRenderer) OnTokens(fn func(line string)) {
	r.mu.Lock()
	r.onTokens = fn
	r.mu.Unlock()
}

// Render implements chat.Renderer.
func (r *TerminalRenderer) Render(view chat.View) {
	r.mu.Lock()
	defer r.mu.Unlock()

	present := make(map[string]bool, len(view.Messages))
	for _, m := range view.Messages {
		present[m.ID] = true
	}
	kept := r.order[:0]
	for _, id := range r.order {
		if present[id] {
			kept = append(kept, id)
			continue
		}
		delete(r.printed, id)
	}
	r.order = kept

	for i, m := range view.Messages {
		text := assisttypes.DisplayText(m.Content)
		if m.ID == view.PendingID {
			if _, ok := r.streamed[m.ID]; !ok {
				r.streamed[m.ID] = 0
				fmt.Fprintf(r.out, "%s %s\n", header(i, m.Role, ""), faintStyle.Render(text))
			}
			continue
		}
		if n, ok := r.streamed[m.ID]; ok {
			delete(r.streamed, m.ID)
			r.remember(m.ID, text)
			if n > 0 {
				if rest := tail(text, n); rest != "" {
					fmt.Fprint(r.out, rest)
				}
				fmt.Fprintln(r.out)
				continue
			}
			r.printMessage(i, m.Role, text, "")
			continue
		}
		previous, seen := r.printed[m.ID]
		switch {
		case !seen:
			r.remember(m.ID, text)
			r.printMessage(i, m.Role, text, "")
		case previous != text:
			r.printed[m.ID] = text
			r.printMessage(i, m.Role, text, "edited")
		}
	}
}

// RenderPartial implements chat.Renderer. text is the answer so far.
func (r *TerminalRenderer) RenderPartial(messageID string, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := r.streamed[messageID]
	if rest := tail(text, n); rest != "" {
		fmt.Fprint(r.out, rest)
		r.streamed[messageID] = len(text)
	}
}

// RenderTokens implements chat.Renderer.
func (r *TerminalRenderer) RenderTokens(count tokenizer.Count) {
	r.mu.Lock()
	r.tokens = count
	fn := r.onTokens
	line := count.Display(r.maxTokens)
	r.mu.Unlock()
	if fn != nil {
		fn(line)
	}
}

// TokenLine returns the last token count against the budget.
func (r *TerminalRenderer) TokenLine() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.tokens.Display(r.maxTokens)
}

// Notify implements assisttypes.Notifier.
func (r *TerminalRenderer) Notify(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintln(r.out, noticeStyle.Render(message))
}

// Reset forgets what was printed, so the next Render prints the whole transcript.
func (r *TerminalRenderer) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.printed = make(map[string]string)
	r.order = nil
	r.streamed = make(map[string]int)
}

func (r *TerminalRenderer) remember(id, text string) {
	if _, ok := r.printed[id]; !ok {
		r.order = append(r.order, id)
	}
	r.printed[id] = text
}

func (r *TerminalRenderer) printMessage(index int, role assisttypes.Role, text, note string) {
	fmt.Fprintln(r.out, header(index, role, note))
	body := text
	if r.markdown != nil && role == assisttypes.RoleAssistant {
		if rendered, err := r.markdown.Render(text); err == nil && rendered != "" {
			body = strings.TrimRight(rendered, "\n")
		}
	}
	fmt.Fprintln(r.out, body)
}

func header(index int, role assisttypes.Role, note string) string {
	style := userStyle
	switch role {
	case assisttypes.RoleAssistant:
		style = assistantStyle
	case assisttypes.RoleSystem:
		style = systemStyle
	}
	h := style.Render(fmt.Sprintf("[%d] %s", index+1, role))
	if note != "" {
		h += " " + faintStyle.Render("("+note+")")
	}
	return h
}

func tail(text string, n int) string {
	if n >= len(text) {
		return ""
	}
	return text[n:]
}
