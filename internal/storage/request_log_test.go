package storage

import (
	"encoding/json"
	"testing"
	"time"

	"noteassist/internal/testutils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestLog_AppendsDailyArray(t *testing.T) {
	store := testutils.NewMemoryStore()
	day := time.Date(2025, 3, 4, 9, 30, 0, 0, time.UTC)
	log := NewRequestLog(store, testutils.FixedClock(day))

	require.NoError(t, log.Append("chat", map[string]string{"prompt": "hi"}, "hello"))
	require.NoError(t, log.Append("image", "a cat", ErrorOutput{Error: true, Message: "quota"}))

	raw, ok := store.Record("ai-assistant-log-2025-03-04")
	require.True(t, ok)

	var entries []RequestLogEntry
	require.NoError(t, json.Unmarshal([]byte(raw), &entries))
	require.Len(t, entries, 2)
	assert.Equal(t, "chat", entries[0].RequestType)
	assert.Equal(t, "hello", entries[0].Output)
	assert.Equal(t, map[string]any{"error": true, "message": "quota"}, entries[1].Output)
	assert.Equal(t, "2025-03-04T09:30:00Z", entries[0].Timestamp)
}

func TestRequestLog_ReplacesCorruptLog(t *testing.T) {
	store := testutils.NewMemoryStore()
	day := time.Date(2025, 3, 4, 0, 0, 0, 0, time.UTC)
	store.Put(RecordName(day), "{not json")

	log := NewRequestLog(store, testutils.FixedClock(day))
	require.NoError(t, log.Append("chat", "in", "out"))

	raw, _ := store.Record(RecordName(day))
	var entries []RequestLogEntry
	require.NoError(t, json.Unmarshal([]byte(raw), &entries))
	assert.Len(t, entries, 1)
}
