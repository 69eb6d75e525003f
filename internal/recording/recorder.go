// Package recording captures audio from a stream and hands it to a transcription provider
// when the recording stops.
package recording

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"noteassist/internal/logger"
	"noteassist/pkg/assisttypes"
)

// SupportedMIMETypes lists the capture formats accepted by Start, in order of preference.
var SupportedMIMETypes = []string{"audio/webm", "audio/mp4", "audio/ogg", "audio/wav", "audio/mpeg"}

// ErrNotRecording is returned by Stop when no recording is active.
var ErrNotRecording = errors.New("not recording")

// Recorder records one stream at a time. Stop ends a recording exactly once and flushes
// the captured audio into the transcriber.
type Recorder struct {
	transcriber assisttypes.TranscriptionProvider
	language    string

	mu     sync.Mutex
	active *capture
}

type capture struct {
	src      io.ReadCloser
	mimeType string
	buf      bytes.Buffer
	done     chan struct{}
	readErr  error
	stopOnce sync.Once
}

// NewRecorder creates a recorder that transcribes in language (empty lets the provider
// detect it).
func NewRecorder(transcriber assisttypes.TranscriptionProvider, language string) *Recorder {
	return &Recorder{transcriber: transcriber, language: language}
}

// Supported reports whether mimeType (parameters ignored) can be recorded.
func Supported(mimeType string) bool {
	base, _, _ := strings.Cut(mimeType, ";")
	base = strings.ToLower(strings.TrimSpace(base))
	for _, candidate := range SupportedMIMETypes {
		if base == candidate {
			return true
		}
	}
	return false
}

// Recording reports whether a capture is in progress.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Start begins copying src in the background. The recorder owns src and closes it on Stop
// or when ctx ends.
func (r *Recorder) Start(ctx context.Context, src io.ReadCloser, mimeType string) error {
	if !Supported(mimeType) {
		_ = src.Close()
		return &assisttypes.RecordingError{Reason: fmt.Sprintf("unsupported audio format %q", mimeType)}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		_ = src.Close()
		return &assisttypes.RecordingError{Reason: "already recording"}
	}

	c := &capture{src: src, mimeType: mimeType, done: make(chan struct{})}
	r.active = c
	go func() {
		defer close(c.done)
		_, err := io.Copy(&c.buf, src)
		c.readErr = err
	}()
	context.AfterFunc(ctx, c.close)

	logger.Debug("Recording started", "mime", mimeType)
	return nil
}

func (c *capture) close() {
	c.stopOnce.Do(func() { _ = c.src.Close() })
}

// Stop ends the recording and returns the transcription. Calling Stop again without a new
// Start returns ErrNotRecording.
func (r *Recorder) Stop(ctx context.Context) (string, error) {
	r.mu.Lock()
	c := r.active
	r.active = nil
	r.mu.Unlock()
	if c == nil {
		return "", ErrNotRecording
	}

	c.close()
	select {
	case <-c.done:
	case <-ctx.Done():
		return "", &assisttypes.RecordingError{Reason: "capture did not finish", Err: ctx.Err()}
	}

	audio := c.buf.Bytes()
	logger.Debug("Recording stopped", "bytes", len(audio), "read_error", c.readErr)
	if len(audio) == 0 {
		if c.readErr != nil && !isClosedPipe(c.readErr) {
			return "", &assisttypes.RecordingError{Reason: "capture failed", Err: c.readErr}
		}
		return "", &assisttypes.RecordingError{Reason: "no audio data captured"}
	}
	if r.transcriber == nil {
		return "", &assisttypes.RecordingError{Reason: "no transcription provider configured"}
	}
	return r.transcriber.Transcribe(ctx, audio, c.mimeType, r.language)
}

// isClosedPipe reports the errors a reader returns when its source is closed under it.
func isClosedPipe(err error) bool {
	return errors.Is(err, io.ErrClosedPipe) || strings.Contains(err.Error(), "file already closed")
}

// commandSource is the stdout of a capture command; closing it stops the command.
type commandSource struct {
	io.ReadCloser
	cmd  *exec.Cmd
	once sync.Once
}

func (s *commandSource) Close() error {
	var err error
	s.once.Do(func() {
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		err = s.ReadCloser.Close()
		_ = s.cmd.Wait()
	})
	return err
}

// CommandSource starts an external capture command (for example ffmpeg reading the
// default microphone) and returns its standard output.
func CommandSource(ctx context.Context, name string, args ...string) (io.ReadCloser, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, &assisttypes.RecordingError{Reason: "failed to start " + name, Err: err}
	}
	logger.Debug("Capture command started", "command", name, "pid", cmd.Process.Pid)
	return &commandSource{ReadCloser: stdout, cmd: cmd}, nil
}
