package chat

import (
	"context"
	"strings"

	"noteassist/pkg/assisttypes"
)

// Outcome describes what a Send did.
type Outcome int

// Send outcomes.
const (
	OutcomeNothingToSend Outcome = iota
	OutcomeEdited
	OutcomeRejected
	OutcomeAnswered
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeEdited:
		return "edited"
	case OutcomeRejected:
		return "rejected"
	case OutcomeAnswered:
		return "answered"
	case OutcomeFailed:
		return "failed"
	}
	return "nothing to send"
}

// Send commits a pending edit, or appends the draft as a user message and asks the
// completion provider for an answer. It never returns an error: a started turn always
// ends with an assistant message, the fixed error text when the provider fails.
// A Send while another is generating is rejected and changes nothing.
func (s *Session) Send(ctx context.Context) Outcome {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return OutcomeRejected
	}

	if s.editingID != "" {
		notice := s.commitEditLocked()
		view := s.viewLocked()
		s.mu.Unlock()
		s.notifier.Notify(notice)
		s.publish(view)
		return OutcomeEdited
	}

	if s.generating {
		s.mu.Unlock()
		s.notifier.Notify(noticeBusy)
		return OutcomeRejected
	}
	if s.recording {
		s.mu.Unlock()
		s.notifier.Notify(noticeRecording)
		return OutcomeRejected
	}

	if text := strings.TrimSpace(s.draft); text != "" {
		s.transcript.Append(assisttypes.Message{Role: assisttypes.RoleUser, Content: assisttypes.Text(text)})
		if !s.chainRunning {
			s.draft = ""
		}
	}
	if s.transcript.Len() == 0 {
		s.mu.Unlock()
		return OutcomeNothingToSend
	}

	s.generating = true
	s.idle = make(chan struct{})

	// The placeholder only gives the renderer a slot to stream into.
	placeholder := s.transcript.Append(assisttypes.Message{
		Role:    assisttypes.RoleAssistant,
		Content: assisttypes.Text(PlaceholderText),
	})
	s.pendingID = placeholder.ID
	view := s.viewLocked()
	s.transcript.Delete(placeholder.ID)
	outbound := s.transcript.Outbound()
	streaming := s.cfg.Streaming
	s.mu.Unlock()

	s.publish(view)
	s.log.Debug("Sending", "session", view.SaveName, "messages", len(outbound), "streaming", streaming)

	reqCtx, cancel := context.WithCancel(ctx)
	stopOnClose := context.AfterFunc(s.life, cancel)
	answer, err := s.request(reqCtx, outbound, placeholder.ID, streaming)
	stopOnClose()
	cancel()

	outcome := OutcomeAnswered
	if err == nil && strings.TrimSpace(answer) == "" {
		err = &assisttypes.ProviderError{Provider: "completion", Op: "complete", Err: errEmptyAnswer}
	}
	if err != nil {
		s.log.Error("Completion failed", "session", view.SaveName, "error", err)
		s.notifier.Notify("Error: " + err.Error())
		answer = ErrorAnswerText
		outcome = OutcomeFailed
	}

	s.mu.Lock()
	if s.abandonedID == placeholder.ID {
		// Close already ended this turn with the error answer and saved it.
		s.abandonedID = ""
		outcome = OutcomeFailed
	} else {
		s.transcript.Append(assisttypes.Message{
			ID:      placeholder.ID,
			Role:    assisttypes.RoleAssistant,
			Content: assisttypes.Text(answer),
		})
	}
	s.generating = false
	s.pendingID = ""
	close(s.idle)
	view = s.viewLocked()
	s.mu.Unlock()

	s.publish(view)
	return outcome
}

func (s *Session) request(ctx context.Context, outbound []assisttypes.OutboundMessage, slotID string, streaming bool) (string, error) {
	if s.completion == nil {
		return "", &assisttypes.ProviderError{Provider: "completion", Op: "complete", Err: errNoProvider}
	}
	var sink assisttypes.StreamSink
	if streaming {
		var partial strings.Builder
		sink = func(delta string) {
			partial.WriteString(delta)
			text := partial.String()
			s.renderIfOpen(func() { s.renderer.RenderPartial(slotID, text) })
		}
	}
	return s.completion.Complete(ctx, outbound, sink)
}
