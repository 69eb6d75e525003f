package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const promptHistorySchema = `
CREATE TABLE IF NOT EXISTS prompt_history (
    prompt        TEXT PRIMARY KEY,
    use_count     INTEGER NOT NULL DEFAULT 0,
    last_used_at  INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_prompt_history_rank ON prompt_history(use_count DESC, last_used_at DESC);
`

// PromptEntry is one distinct prompt with its usage.
type PromptEntry struct {
	Prompt   string
	UseCount int
	LastUsed time.Time
}

// PromptHistory ranks prompts used by the quick prompt flows.
type PromptHistory struct {
	db  *sql.DB
	now func() time.Time
}

// OpenPromptHistory opens (creating if needed) the sqlite database at path.
func OpenPromptHistory(path string) (*PromptHistory, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating prompt history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening prompt history: %w", err)
	}
	if _, err := db.Exec(promptHistorySchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running prompt history schema: %w", err)
	}
	return &PromptHistory{db: db, now: time.Now}, nil
}

// SetClock overrides the clock used for lastUsed.
func (h *PromptHistory) SetClock(now func() time.Time) {
	h.now = now
}

// Record counts one use of prompt.
func (h *PromptHistory) Record(ctx context.Context, prompt string) error {
	_, err := h.db.ExecContext(ctx, `
INSERT INTO prompt_history (prompt, use_count, last_used_at) VALUES (?, 1, ?)
ON CONFLICT(prompt) DO UPDATE SET use_count = use_count + 1, last_used_at = excluded.last_used_at`,
		prompt, h.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("recording prompt: %w", err)
	}
	return nil
}

// Frequent returns prompts containing query (case-insensitive), most used first and most
// recent first among equals. A limit of zero or less returns every match.
func (h *PromptHistory) Frequent(ctx context.Context, query string, limit int) ([]PromptEntry, error) {
	q := `SELECT prompt, use_count, last_used_at FROM prompt_history
WHERE instr(lower(prompt), lower(?)) > 0
ORDER BY use_count DESC, last_used_at DESC`
	args := []any{query}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := h.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("querying prompt history: %w", err)
	}
	defer rows.Close()

	var entries []PromptEntry
	for rows.Next() {
		var e PromptEntry
		var lastUsed int64
		if err := rows.Scan(&e.Prompt, &e.UseCount, &lastUsed); err != nil {
			return nil, fmt.Errorf("scanning prompt history: %w", err)
		}
		e.LastUsed = time.UnixMilli(lastUsed)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Close closes the database.
func (h *PromptHistory) Close() error {
	return h.db.Close()
}
