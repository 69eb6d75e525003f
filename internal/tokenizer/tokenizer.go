// Package tokenizer counts BPE tokens in a transcript. The encoding loads in the
// background once per session; when loading fails the count is reported as unavailable
// for the rest of the session instead of blocking chat.
package tokenizer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"noteassist/internal/logger"
	"noteassist/pkg/assisttypes"

	"github.com/pkoukk/tiktoken-go"
)

// Encoding is the vocabulary used for counting.
const Encoding = "cl100k_base"

// Encoder turns text into token ids.
type Encoder interface {
	EncodeOrdinary(text string) []int
}

// Loader produces an Encoder. It may be slow and may fail.
type Loader func() (Encoder, error)

// CL100KLoader loads the cl100k_base encoding through tiktoken.
func CL100KLoader() (Encoder, error) {
	enc, err := tiktoken.GetEncoding(Encoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s encoding: %w", Encoding, err)
	}
	return enc, nil
}

// Count is a token count that may be unavailable.
type Count struct {
	Tokens    int
	Available bool
}

// String returns the number, or "N/A".
func (c Count) String() string {
	if !c.Available {
		return "N/A"
	}
	return strconv.Itoa(c.Tokens)
}

// Display formats the count against the configured token budget.
func (c Count) Display(maxTokens int) string {
	if !c.Available {
		return "Context Tokens: N/A"
	}
	return fmt.Sprintf("Context Tokens: %d / %d", c.Tokens, maxTokens)
}

// Service owns one encoder for the lifetime of a session.
type Service struct {
	load      Loader
	startOnce sync.Once
	ready     chan struct{}

	mu       sync.Mutex
	encoder  Encoder
	err      error
	released bool
}

// New creates a service that loads its encoder with load. A nil loader uses CL100KLoader.
func New(load Loader) *Service {
	if load == nil {
		load = CL100KLoader
	}
	return &Service{load: load, ready: make(chan struct{})}
}

// Name returns the service name.
func (s *Service) Name() string {
	return "tokenizer"
}

// Initialize starts loading in the background. Later calls do nothing.
func (s *Service) Initialize() error {
	s.startOnce.Do(func() {
		go s.run()
	})
	return nil
}

func (s *Service) run() {
	defer close(s.ready)

	enc, err := s.safeLoad()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		logger.Warn("Tokenizer unavailable", "encoding", Encoding, "error", err)
		s.err = err
		return
	}
	if s.released {
		return
	}
	s.encoder = enc
	logger.Debug("Tokenizer ready", "encoding", Encoding)
}

func (s *Service) safeLoad() (enc Encoder, err error) {
	defer func() {
		if r := recover(); r != nil {
			enc, err = nil, fmt.Errorf("tokenizer load panicked: %v", r)
		}
	}()
	return s.load()
}

// Wait blocks until initialization has finished or ctx ends. It returns
// ErrTokenizerUnavailable when no encoder is usable.
func (s *Service) Wait(ctx context.Context) error {
	_ = s.Initialize()
	select {
	case <-s.ready:
	case <-ctx.Done():
		return ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.encoder == nil {
		if s.err != nil {
			return fmt.Errorf("%w: %v", assisttypes.ErrTokenizerUnavailable, s.err)
		}
		return assisttypes.ErrTokenizerUnavailable
	}
	return nil
}

// Count sums the token counts of the text-bearing parts of every message. Image parts
// count as zero. It waits for a pending initialization before answering.
func (s *Service) Count(ctx context.Context, messages []assisttypes.Message) Count {
	if err := s.Wait(ctx); err != nil {
		return Count{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.encoder == nil {
		return Count{}
	}
	total := 0
	for _, m := range messages {
		total += s.countLocked(assisttypes.TextOf(m.Content))
	}
	return Count{Tokens: total, Available: true}
}

// CountText counts the tokens of a single text.
func (s *Service) CountText(ctx context.Context, text string) Count {
	if err := s.Wait(ctx); err != nil {
		return Count{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.encoder == nil {
		return Count{}
	}
	return Count{Tokens: s.countLocked(text), Available: true}
}

func (s *Service) countLocked(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}
	return len(s.encoder.EncodeOrdinary(text))
}

// Release drops the encoder. It is idempotent, never blocks on a pending load, and
// makes later counts unavailable.
func (s *Service) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.released = true
	s.encoder = nil
}
