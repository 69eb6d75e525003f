// Package transcript holds the ordered, id-addressed message list of one chat session
// and its persisted record format.
package transcript

import (
	"strings"

	"noteassist/pkg/assisttypes"

	"github.com/google/uuid"
)

// IDFunc generates message ids.
type IDFunc func() string

// DefaultID generates random UUIDs.
func DefaultID() string {
	return uuid.New().String()
}

// EditResult reports what EditText did.
type EditResult int

// EditText outcomes.
const (
	EditNotFound EditResult = iota
	EditUpdated
	EditRemoved
)

// Transcript is an ordered sequence of messages. It is not safe for concurrent use;
// the owning session serializes access.
type Transcript struct {
	messages []assisttypes.Message
	newID    IDFunc
}

// New creates an empty transcript. A nil newID uses DefaultID.
func New(newID IDFunc) *Transcript {
	if newID == nil {
		newID = DefaultID
	}
	return &Transcript{newID: newID}
}

// Append pushes a message to the end, assigning an id when it has none or when its id
// is already taken. The stored message is returned.
func (t *Transcript) Append(m assisttypes.Message) assisttypes.Message {
	m = m.Clone()
	if m.ID == "" || t.indexOf(m.ID) >= 0 {
		m.ID = t.uniqueID()
	}
	t.messages = append(t.messages, m)
	return m.Clone()
}

// EditText replaces the editable text of the message with id. Text that is empty after
// trimming removes the message instead.
func (t *Transcript) EditText(id, newText string) EditResult {
	i := t.indexOf(id)
	if i < 0 {
		return EditNotFound
	}
	if strings.TrimSpace(newText) == "" {
		t.removeAt(i)
		return EditRemoved
	}
	t.messages[i].Content = assisttypes.WithText(t.messages[i].Content, newText)
	return EditUpdated
}

// AttachImage adds an image to the last message when it is a user message, otherwise
// appends a new image-only user message. The affected message is returned.
func (t *Transcript) AttachImage(url string) assisttypes.Message {
	if n := len(t.messages); n > 0 && t.messages[n-1].Role == assisttypes.RoleUser {
		t.messages[n-1].Content = assisttypes.WithImage(t.messages[n-1].Content, url)
		return t.messages[n-1].Clone()
	}
	return t.Append(assisttypes.Message{
		Role:    assisttypes.RoleUser,
		Content: assisttypes.Parts(assisttypes.ImagePart{URL: url}),
	})
}

// Delete removes the message with id. It reports whether a message was removed.
func (t *Transcript) Delete(id string) bool {
	i := t.indexOf(id)
	if i < 0 {
		return false
	}
	t.removeAt(i)
	return true
}

// Clear empties the transcript.
func (t *Transcript) Clear() {
	t.messages = nil
}

// Replace swaps in a new message list, backfilling missing or duplicate ids.
func (t *Transcript) Replace(messages []assisttypes.Message) {
	t.messages = nil
	for _, m := range messages {
		t.Append(m)
	}
}

// Find returns the message with id.
func (t *Transcript) Find(id string) (assisttypes.Message, bool) {
	i := t.indexOf(id)
	if i < 0 {
		return assisttypes.Message{}, false
	}
	return t.messages[i].Clone(), true
}

// Len returns the number of messages.
func (t *Transcript) Len() int {
	return len(t.messages)
}

// Messages returns a copy of the messages in order.
func (t *Transcript) Messages() []assisttypes.Message {
	out := make([]assisttypes.Message, len(t.messages))
	for i, m := range t.messages {
		out[i] = m.Clone()
	}
	return out
}

// Last returns the final message.
func (t *Transcript) Last() (assisttypes.Message, bool) {
	if len(t.messages) == 0 {
		return assisttypes.Message{}, false
	}
	return t.messages[len(t.messages)-1].Clone(), true
}

// LastByRole returns the most recent message with role.
func (t *Transcript) LastByRole(role assisttypes.Role) (assisttypes.Message, bool) {
	for i := len(t.messages) - 1; i >= 0; i-- {
		if t.messages[i].Role == role {
			return t.messages[i].Clone(), true
		}
	}
	return assisttypes.Message{}, false
}

// Outbound returns the role/content payload in transcript order.
func (t *Transcript) Outbound() []assisttypes.OutboundMessage {
	out := make([]assisttypes.OutboundMessage, len(t.messages))
	for i, m := range t.messages {
		out[i] = m.Outbound()
	}
	return out
}

func (t *Transcript) indexOf(id string) int {
	if id == "" {
		return -1
	}
	for i, m := range t.messages {
		if m.ID == id {
			return i
		}
	}
	return -1
}

func (t *Transcript) removeAt(i int) {
	t.messages = append(t.messages[:i], t.messages[i+1:]...)
}

func (t *Transcript) uniqueID() string {
	for {
		id := t.newID()
		if id != "" && t.indexOf(id) < 0 {
			return id
		}
	}
}
