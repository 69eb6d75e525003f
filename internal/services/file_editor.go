package services

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// FileEditor is a HostEditor over a note on disk, or over text piped through the CLI.
// The selection is the whole file or a 1-based inclusive line range of it.
type FileEditor struct {
	mu      sync.Mutex
	path    string
	out     io.Writer
	content string
	start   int
	end     int
}

// NewFileEditor selects lines of the file at path. An empty lines spec selects everything;
// otherwise it is "N" or "N-M".
func NewFileEditor(path, lines string) (*FileEditor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	content := string(data)
	start, end, err := lineRange(content, lines)
	if err != nil {
		return nil, err
	}
	return &FileEditor{path: path, content: content, start: start, end: end}, nil
}

// NewStreamEditor selects the given text; replacements are written to out.
func NewStreamEditor(selection string, out io.Writer) *FileEditor {
	return &FileEditor{out: out, content: selection, end: len(selection)}
}

// Selection implements assisttypes.HostEditor.
func (e *FileEditor) Selection() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.content[e.start:e.end]
}

// ReplaceSelection implements assisttypes.HostEditor. The replacement becomes the new
// selection.
func (e *FileEditor) ReplaceSelection(text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.path == "" {
		e.content = text
		e.start, e.end = 0, len(text)
		if e.out == nil {
			return nil
		}
		_, err := io.WriteString(e.out, text)
		return err
	}

	updated := e.content[:e.start] + text + e.content[e.end:]
	info, err := os.Stat(e.path)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", e.path, err)
	}
	if err := os.WriteFile(e.path, []byte(updated), info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to write %s: %w", e.path, err)
	}
	e.content = updated
	e.end = e.start + len(text)
	return nil
}

// lineRange converts a line spec into byte offsets of content.
func lineRange(content, spec string) (int, int, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return 0, len(content), nil
	}
	first, last, found := strings.Cut(spec, "-")
	from, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil || from < 1 {
		return 0, 0, fmt.Errorf("invalid line range %q", spec)
	}
	to := from
	if found {
		to, err = strconv.Atoi(strings.TrimSpace(last))
		if err != nil || to < from {
			return 0, 0, fmt.Errorf("invalid line range %q", spec)
		}
	}

	// offsets[i] is where line i+1 starts.
	offsets := []int{0}
	for i, r := range content {
		if r == '\n' && i+1 < len(content) {
			offsets = append(offsets, i+1)
		}
	}
	if from > len(offsets) {
		return 0, 0, fmt.Errorf("line range %q is past the end of the file (%d lines)", spec, len(offsets))
	}
	start := offsets[from-1]
	end := len(content)
	if to < len(offsets) {
		end = offsets[to]
	}
	return start, end, nil
}
