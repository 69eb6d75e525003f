// Package collect gathers markdown documents from the vault into a single formatted text
// for the clipboard or as chat context.
package collect

import (
	"errors"
	"fmt"
	"path"
	"strings"

	"noteassist/internal/logger"
	"noteassist/pkg/assisttypes"
)

// MaxContentLength caps the characters gathered for chat context.
const MaxContentLength = 1_000_000

// ErrNoContent is returned when nothing readable was gathered.
var ErrNoContent = errors.New("no markdown content found")

// Bundle is a set of formatted file sections.
type Bundle struct {
	Title     string
	Sections  []string
	Truncated bool
}

// Files returns the number of sections.
func (b Bundle) Files() int {
	return len(b.Sections)
}

// Body joins the sections.
func (b Bundle) Body() string {
	return strings.Join(b.Sections, "\n---\n\n")
}

// ChatText is the body under its provenance header.
func (b Bundle) ChatText() string {
	return "***" + b.Title + ":***\n" + b.Body()
}

// Collector reads documents through a Source.
type Collector struct {
	src      Source
	notifier assisttypes.Notifier
	limit    int
}

// New returns a collector using the default length cap.
func New(src Source, notifier assisttypes.Notifier) *Collector {
	if notifier == nil {
		notifier = assisttypes.NotifierFunc(func(string) {})
	}
	return &Collector{src: src, notifier: notifier, limit: MaxContentLength}
}

// WithLimit returns a copy with a different cap. Zero or less disables the cap.
func (c *Collector) WithLimit(limit int) *Collector {
	cp := *c
	cp.limit = limit
	return &cp
}

// FileContext reads one file for the in-chat file picker, returning its content and
// display name. An empty file is reported and yields ErrNoContent.
func (c *Collector) FileContext(p string) (content string, name string, err error) {
	name = path.Base(p)
	content, err = c.src.Read(p)
	if err != nil {
		c.notifier.Notify("Failed to read file: " + p)
		return "", name, err
	}
	if strings.TrimSpace(content) == "" {
		c.notifier.Notify(fmt.Sprintf("File %q is empty.", name))
		return "", name, ErrNoContent
	}
	return content, name, nil
}

// Folder gathers every markdown file under dir.
func (c *Collector) Folder(dir string) (Bundle, error) {
	files, err := c.src.Markdown(dir)
	if err != nil {
		return Bundle{}, err
	}
	b := c.gather(files)
	b.Title = "Folder Context (" + displayName(dir) + ")"
	if b.Files() == 0 {
		c.notifier.Notify(fmt.Sprintf("No markdown files found in %q.", displayName(dir)))
		return b, ErrNoContent
	}
	return b, nil
}

// Selection gathers the selected paths in order. Folders expand to their markdown files;
// non-markdown files are ignored.
func (c *Collector) Selection(paths []string) (Bundle, error) {
	var files []string
	for _, p := range paths {
		isDir, err := c.src.Stat(p)
		if err != nil {
			c.notifier.Notify("Failed to read file: " + p)
			continue
		}
		if !isDir {
			if isMarkdown(p) {
				files = append(files, p)
			}
			continue
		}
		inner, err := c.src.Markdown(p)
		if err != nil {
			c.notifier.Notify("Failed to read folder: " + p)
			continue
		}
		files = append(files, inner...)
	}

	b := c.gather(files)
	b.Title = "Multi-Selection Context"
	if len(paths) == 1 {
		if isDir, err := c.src.Stat(paths[0]); err == nil {
			if isDir {
				b.Title = "Folder Context (" + displayName(paths[0]) + ")"
			} else {
				b.Title = "File Context (" + displayName(paths[0]) + ")"
			}
		}
	}
	if b.Files() == 0 {
		c.notifier.Notify("No markdown files found in selection.")
		return b, ErrNoContent
	}
	return b, nil
}

// gather formats each file as a section until the cap is reached. The file that crosses
// the cap is cut short with "..." when enough room remains, otherwise dropped.
func (c *Collector) gather(files []string) Bundle {
	var b Bundle
	length := 0
	for _, p := range files {
		content, err := c.src.Read(p)
		if err != nil {
			logger.Warn("Skipping unreadable file", "path", p, "error", err)
			c.notifier.Notify("Failed to read file: " + p)
			continue
		}
		header := "File /" + p + " contents:\n"
		section := header + content + "\n"
		size := runeLen(section)

		if c.limit > 0 && length+size > c.limit {
			remaining := c.limit - length
			headerLen := runeLen(header)
			if remaining > headerLen+50 {
				b.Sections = append(b.Sections, header+firstRunes(content, remaining-headerLen-4)+"...\n")
			}
			b.Truncated = true
			c.notifier.Notify(fmt.Sprintf("Content truncated due to length limit (%d chars).", c.limit))
			break
		}
		b.Sections = append(b.Sections, section)
		length += size
	}
	return b
}

func isMarkdown(p string) bool {
	return strings.EqualFold(path.Ext(p), ".md")
}

func displayName(p string) string {
	name := path.Base(strings.TrimSuffix(p, "/"))
	if name == "." || name == "/" || name == "" {
		return "vault"
	}
	return name
}

func runeLen(s string) int {
	return len([]rune(s))
}

func firstRunes(s string, n int) string {
	r := []rune(s)
	if n < 0 {
		n = 0
	}
	if n > len(r) {
		n = len(r)
	}
	return string(r[:n])
}
