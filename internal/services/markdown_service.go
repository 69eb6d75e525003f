package services

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"noteassist/internal/logger"
)

// DefaultWordWrap is the column at which rendered answers wrap.
const DefaultWordWrap = 80

// MarkdownService renders assistant answers for the terminal with Glamour.
type MarkdownService struct {
	initialized bool
	style       string
	width       int
	renderer    *glamour.TermRenderer
}

// NewMarkdownService creates a new MarkdownService instance.
func NewMarkdownService() *MarkdownService {
	return &MarkdownService{width: DefaultWordWrap}
}

// Name returns the service name "markdown" for registration.
func (m *MarkdownService) Name() string {
	return "markdown"
}

// Initialize builds the renderer for the current terminal.
func (m *MarkdownService) Initialize() error {
	return m.rebuild(StyleForProfile(lipgloss.ColorProfile()))
}

// StyleForProfile maps a terminal color profile to a Glamour style. Terminals without color
// get the "notty" style so output stays plain.
func StyleForProfile(profile termenv.Profile) string {
	if profile == termenv.Ascii {
		return "notty"
	}
	if termenv.HasDarkBackground() {
		return "dark"
	}
	return "light"
}

func (m *MarkdownService) rebuild(style string) error {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(style),
		glamour.WithWordWrap(m.width),
	)
	if err != nil {
		return fmt.Errorf("failed to create markdown renderer: %w", err)
	}
	m.renderer = renderer
	m.style = style
	m.initialized = true
	logger.Debug("MarkdownService initialized", "style", style, "width", m.width)
	return nil
}

// Style returns the active Glamour style.
func (m *MarkdownService) Style() string {
	return m.style
}

// SetStyle switches to one of the standard Glamour styles.
func (m *MarkdownService) SetStyle(style string) error {
	return m.rebuild(style)
}

// SetWordWrap sets the word wrap width for markdown rendering.
func (m *MarkdownService) SetWordWrap(width int) error {
	if width <= 0 {
		return fmt.Errorf("word wrap width must be positive, got %d", width)
	}
	m.width = width
	style := m.style
	if style == "" {
		style = StyleForProfile(lipgloss.ColorProfile())
	}
	return m.rebuild(style)
}

// Render renders markdown to terminal output. Blank input renders as nothing.
func (m *MarkdownService) Render(markdown string) (string, error) {
	if !m.initialized {
		return "", fmt.Errorf("markdown service not initialized")
	}
	if strings.TrimSpace(markdown) == "" {
		return "", nil
	}
	rendered, err := m.renderer.Render(markdown)
	if err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return rendered, nil
}
