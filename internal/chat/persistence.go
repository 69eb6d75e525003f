package chat

import (
	"context"
	"errors"
	"regexp"
	"sort"
	"strings"

	"noteassist/pkg/assisttypes"
)

var unsafeNameChars = regexp.MustCompile(`[^a-zA-Z0-9\s_-]`)

// SanitizeName keeps letters, digits, whitespace, hyphens and underscores.
func SanitizeName(name string) string {
	return strings.TrimSpace(unsafeNameChars.ReplaceAllString(name, ""))
}

// Open starts the tokenizer and, for the default session, loads its saved record.
func (s *Session) Open(ctx context.Context) error {
	_ = s.tokens.Initialize()
	if s.SaveName() == DefaultSaveName {
		return s.LoadByName(ctx, DefaultSaveName)
	}
	s.Refresh()
	return nil
}

// SuggestedSaveName proposes a name for the save dialog.
func (s *Session) SuggestedSaveName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveName == DefaultSaveName && s.transcript.Len() == 0 {
		return "Chat " + s.cfg.Now().Format("2006-01-02 15:04")
	}
	return s.saveName
}

// SaveAs writes the transcript under the sanitized name and adopts it as the save name.
// A name that sanitizes to nothing falls back to the timestamp name.
func (s *Session) SaveAs(ctx context.Context, name string) error {
	s.mu.Lock()
	if err := s.structuralGuardLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.saveName == DefaultSaveName && s.transcript.Len() == 0 {
		s.mu.Unlock()
		s.notifier.Notify(noticeNothingToSave)
		return ErrNothingToSave
	}
	target := SanitizeName(name)
	if target == "" {
		target = s.TimestampName()
	}
	data, err := s.transcript.Serialize()
	s.mu.Unlock()
	if err != nil {
		s.notifier.Notify("Failed to save chat: " + err.Error())
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.store.Write(target, data); err != nil {
		s.log.Error("Save failed", "session", target, "error", err)
		s.notifier.Notify("Failed to save chat: " + err.Error())
		return err
	}

	s.mu.Lock()
	s.saveName = target
	view := s.viewLocked()
	s.mu.Unlock()

	s.notifier.Notify(`Chat saved as "` + target + `".`)
	s.publish(view)
	return nil
}

// LoadByName replaces the transcript with the named record. A missing record starts an
// empty session under that name without error. Unreadable or malformed records leave the
// transcript empty; the failure is reported and returned.
func (s *Session) LoadByName(ctx context.Context, name string) error {
	s.mu.Lock()
	if err := s.structuralGuardLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.generating {
		s.mu.Unlock()
		s.notifier.Notify(noticeBusy)
		return ErrGenerating
	}
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	data, loadErr := s.readRecord(name)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.saveName = name
	s.editingID = ""
	s.draft = ""
	if loadErr == nil && data != nil {
		loadErr = s.transcript.Deserialize(data)
	} else {
		s.transcript.Clear()
	}
	view := s.viewLocked()
	s.mu.Unlock()

	if loadErr != nil {
		s.log.Error("Load failed", "session", name, "error", loadErr)
		var formatErr *assisttypes.FormatError
		if errors.As(loadErr, &formatErr) {
			s.notifier.Notify(`Chat "` + name + `" is corrupt and was not loaded.`)
		} else {
			s.notifier.Notify("Failed to load chat: " + loadErr.Error())
		}
	}
	s.publish(view)
	return loadErr
}

// readRecord returns nil data and no error when the record does not exist.
func (s *Session) readRecord(name string) ([]byte, error) {
	exists, err := s.store.Exists(name)
	if err != nil || !exists {
		return nil, err
	}
	return s.store.Read(name)
}

// ListSaved returns saved chat names containing query, case-insensitively.
func (s *Session) ListSaved(query string) ([]string, error) {
	names, err := s.store.List()
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var matches []string
	for _, n := range names {
		if strings.Contains(strings.ToLower(n), q) {
			matches = append(matches, n)
		}
	}
	sort.Strings(matches)
	return matches, nil
}

// Close ends the session. It cancels an outstanding request, waits up to the close
// timeout for it to settle, then persists: the default session always (so a cleared
// default stays cleared), other sessions only when non-empty. The tokenizer is released.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	idle := s.idle
	s.mu.Unlock()

	s.renderMu.Lock()
	s.renderClosed = true
	s.renderMu.Unlock()

	s.stop()

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.CloseTimeout)
	defer cancel()
	select {
	case <-idle:
	case <-waitCtx.Done():
		s.log.Warn("Closing with a response still outstanding", "session", s.SaveName())
		s.abandonPendingTurn()
	}

	err := s.persistOnClose()
	s.recounts.Wait()
	s.tokens.Release()
	return err
}

// abandonPendingTurn ends a turn whose response did not settle in time with the error
// answer, so the saved record is never left mid-turn. The late response is discarded.
func (s *Session) abandonPendingTurn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.generating || s.pendingID == "" {
		return
	}
	s.transcript.Append(assisttypes.Message{
		ID:      s.pendingID,
		Role:    assisttypes.RoleAssistant,
		Content: assisttypes.Text(ErrorAnswerText),
	})
	s.abandonedID = s.pendingID
}

func (s *Session) persistOnClose() error {
	s.mu.Lock()
	name := s.saveName
	empty := s.transcript.Len() == 0
	data, err := s.transcript.Serialize()
	s.mu.Unlock()

	if name != DefaultSaveName && empty {
		return nil
	}
	if err != nil {
		return err
	}
	if err := s.store.Write(name, data); err != nil {
		s.log.Error("Autosave failed", "session", name, "error", err)
		s.notifier.Notify("Failed to save chat: " + err.Error())
		return err
	}
	s.log.Debug("Autosaved", "session", name, "empty", empty)
	return nil
}
