package storage

import (
	"encoding/json"
	"sync"
	"time"

	"noteassist/internal/logger"
	"noteassist/pkg/assisttypes"
)

// RequestLogEntry is one provider call in the daily request log.
type RequestLogEntry struct {
	Timestamp   string `json:"timestamp"`
	RequestType string `json:"requestType"`
	Input       any    `json:"input"`
	Output      any    `json:"output"`
}

// ErrorOutput is the output recorded for a failed call.
type ErrorOutput struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// RequestLog appends provider calls to a JSON array file per day.
type RequestLog struct {
	mu    sync.Mutex
	store assisttypes.PersistenceProvider
	now   func() time.Time
}

// NewRequestLog logs into store. A nil clock uses time.Now.
func NewRequestLog(store assisttypes.PersistenceProvider, now func() time.Time) *RequestLog {
	if now == nil {
		now = time.Now
	}
	return &RequestLog{store: store, now: now}
}

// RecordName returns the record name for the day of t.
func RecordName(t time.Time) string {
	return "ai-assistant-log-" + t.Format("2006-01-02")
}

// Append adds one entry to today's log. An unreadable existing log is replaced.
func (l *RequestLog) Append(requestType string, input, output any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	name := RecordName(now)

	var entries []json.RawMessage
	exists, err := l.store.Exists(name)
	if err != nil {
		return err
	}
	if exists {
		data, err := l.store.Read(name)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, &entries); err != nil {
			logger.Warn("Discarding unreadable request log", "name", name, "error", err)
			entries = nil
		}
	}

	entry, err := json.Marshal(RequestLogEntry{
		Timestamp:   now.UTC().Format(time.RFC3339Nano),
		RequestType: requestType,
		Input:       input,
		Output:      output,
	})
	if err != nil {
		return err
	}
	entries = append(entries, entry)

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return err
	}
	return l.store.Write(name, data)
}
