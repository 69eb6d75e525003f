package shell

import (
	"bytes"
	"strings"
	"testing"

	"noteassist/internal/chat"
	"noteassist/internal/tokenizer"
	"noteassist/pkg/assisttypes"

	"github.com/stretchr/testify/assert"
)

type upperMarkdown struct{}

func (upperMarkdown) Render(s string) (string, error) {
	return strings.ToUpper(s) + "\n\n", nil
}

func msg(id string, role assisttypes.Role, text string) assisttypes.Message {
	return assisttypes.Message{ID: id, Role: role, Content: assisttypes.Text(text)}
}

func TestTerminalRenderer_PrintsNewAndEditedMessagesOnce(t *testing.T) {
	var out bytes.Buffer
	r := NewTerminalRenderer(&out, upperMarkdown{}, 100)

	view := chat.View{Messages: []assisttypes.Message{
		msg("a", assisttypes.RoleUser, "question"),
		msg("b", assisttypes.RoleAssistant, "answer"),
	}}
	r.Render(view)
	r.Render(view)

	assert.Equal(t, 1, strings.Count(out.String(), "question"))
	assert.Contains(t, out.String(), "ANSWER", "assistant text is rendered as markdown")

	out.Reset()
	view.Messages[0] = msg("a", assisttypes.RoleUser, "better question")
	r.Render(view)
	assert.Contains(t, out.String(), "[1] user (edited)")
	assert.NotContains(t, out.String(), "ANSWER")

	out.Reset()
	r.Reset()
	r.Render(view)
	assert.Contains(t, out.String(), "better question")
	assert.Contains(t, out.String(), "ANSWER")
}

func TestTerminalRenderer_StreamsPendingAnswer(t *testing.T) {
	var out bytes.Buffer
	r := NewTerminalRenderer(&out, upperMarkdown{}, 100)
	user := msg("a", assisttypes.RoleUser, "hi")

	r.Render(chat.View{PendingID: "p", Messages: []assisttypes.Message{
		user, msg("p", assisttypes.RoleAssistant, chat.PlaceholderText),
	}})
	r.RenderPartial("p", "Hel")
	r.RenderPartial("p", "Hello")
	r.Render(chat.View{Messages: []assisttypes.Message{
		user, msg("p", assisttypes.RoleAssistant, "Hello!"),
	}})

	printed := out.String()
	assert.Contains(t, printed, "[2] assistant "+chat.PlaceholderText)
	assert.Contains(t, printed, "Hello!\n")
	assert.NotContains(t, printed, "HELLO", "streamed answers are not printed a second time")
}

func TestTerminalRenderer_TokensCallback(t *testing.T) {
	r := NewTerminalRenderer(&bytes.Buffer{}, nil, 500)
	var got string
	r.OnTokens(func(line string) { got = line })

	r.RenderTokens(tokenizer.Count{Tokens: 42, Available: true})
	assert.Equal(t, "Context Tokens: 42 / 500", got)
	assert.Equal(t, got, r.TokenLine())

	r.RenderTokens(tokenizer.Count{})
	assert.Equal(t, "Context Tokens: N/A", got)
}
