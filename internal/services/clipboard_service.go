package services

import (
	"errors"
	"sync"

	"noteassist/internal/logger"
)

// ErrClipboardUnavailable reports that the system clipboard cannot be used here.
var ErrClipboardUnavailable = errors.New("clipboard not available on this platform")

// ClipboardService copies text to the system clipboard.
type ClipboardService struct {
	once    sync.Once
	initErr error
	write   func(string) error
}

// NewClipboardService creates a clipboard service for the current platform.
func NewClipboardService() *ClipboardService {
	return &ClipboardService{write: writeToClipboard}
}

// Name returns the service name "clipboard" for registration.
func (c *ClipboardService) Name() string {
	return "clipboard"
}

// Initialize prepares the platform clipboard. Failure is not fatal: Copy reports it.
func (c *ClipboardService) Initialize() error {
	c.once.Do(func() {
		if !clipboardAvailable {
			c.initErr = ErrClipboardUnavailable
		} else {
			c.initErr = initClipboard()
		}
		if c.initErr != nil {
			logger.Debug("Clipboard unavailable", "error", c.initErr)
		}
	})
	return nil
}

// Available reports whether Copy can succeed.
func (c *ClipboardService) Available() bool {
	_ = c.Initialize()
	return c.initErr == nil
}

// Copy places text on the clipboard.
func (c *ClipboardService) Copy(text string) error {
	_ = c.Initialize()
	if c.initErr != nil {
		return c.initErr
	}
	return c.write(text)
}
