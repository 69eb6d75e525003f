// Package assisttypes defines the core types shared across the note assistant:
// chat messages, their content, and the provider interfaces the chat core consumes.
package assisttypes

import (
	"strings"
)

// Role identifies the author of a chat message.
type Role string

// Supported message roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Valid reports whether r is one of the supported roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return true
	}
	return false
}

// Content is the body of a message. It is either TextContent or PartsContent.
type Content interface {
	isContent()
}

// TextContent is plain text message content.
type TextContent struct {
	Text string
}

// PartsContent is an ordered list of text and image parts.
type PartsContent struct {
	Parts []Part
}

func (TextContent) isContent()  {}
func (PartsContent) isContent() {}

// Part is one element of mixed content. It is either TextPart or ImagePart.
type Part interface {
	isPart()
}

// TextPart is a text segment inside mixed content.
type TextPart struct {
	Text string
}

// ImagePart references an image by URL or data URI.
type ImagePart struct {
	URL    string
	Detail string
}

func (TextPart) isPart()  {}
func (ImagePart) isPart() {}

// Text builds plain text content.
func Text(s string) Content {
	return TextContent{Text: s}
}

// Parts builds mixed content from the given parts.
func Parts(parts ...Part) Content {
	return PartsContent{Parts: parts}
}

// Message is one entry in a transcript.
type Message struct {
	ID      string
	Role    Role
	Content Content
}

// OutboundMessage is a message as handed to a completion provider, without its id.
type OutboundMessage struct {
	Role    Role
	Content Content
}

// Clone returns a deep copy of the message so callers cannot alias part slices.
func (m Message) Clone() Message {
	m.Content = CloneContent(m.Content)
	return m
}

// Outbound strips the message id.
func (m Message) Outbound() OutboundMessage {
	return OutboundMessage{Role: m.Role, Content: CloneContent(m.Content)}
}

// CloneContent deep copies content.
func CloneContent(c Content) Content {
	if pc, ok := c.(PartsContent); ok {
		parts := make([]Part, len(pc.Parts))
		copy(parts, pc.Parts)
		return PartsContent{Parts: parts}
	}
	return c
}

// FirstText returns the editable text of content: the text itself, or the first
// text part of mixed content. The second result is false when there is none.
func FirstText(c Content) (string, bool) {
	switch v := c.(type) {
	case TextContent:
		return v.Text, true
	case PartsContent:
		for _, p := range v.Parts {
			if tp, ok := p.(TextPart); ok {
				return tp.Text, true
			}
		}
	}
	return "", false
}

// TextOf concatenates every text-bearing portion of content. Image parts are skipped.
func TextOf(c Content) string {
	switch v := c.(type) {
	case TextContent:
		return v.Text
	case PartsContent:
		var texts []string
		for _, p := range v.Parts {
			if tp, ok := p.(TextPart); ok {
				texts = append(texts, tp.Text)
			}
		}
		return strings.Join(texts, "\n")
	}
	return ""
}

// DisplayText renders content for copying or display, with images shown as short markers.
func DisplayText(c Content) string {
	switch v := c.(type) {
	case TextContent:
		return v.Text
	case PartsContent:
		var out []string
		for _, p := range v.Parts {
			switch part := p.(type) {
			case TextPart:
				out = append(out, part.Text)
			case ImagePart:
				out = append(out, imageMarker(part.URL))
			}
		}
		return strings.Join(out, "\n")
	}
	return ""
}

func imageMarker(url string) string {
	if len(url) > 30 {
		url = url[:30]
	}
	return "[Image: " + url + "...]"
}

// HasImages reports whether content carries at least one image part.
func HasImages(c Content) bool {
	pc, ok := c.(PartsContent)
	if !ok {
		return false
	}
	for _, p := range pc.Parts {
		if _, ok := p.(ImagePart); ok {
			return true
		}
	}
	return false
}

// AnyImages reports whether any outbound message carries an image.
func AnyImages(messages []OutboundMessage) bool {
	for _, m := range messages {
		if HasImages(m.Content) {
			return true
		}
	}
	return false
}

// WithText replaces the first text part of content with text, or appends a text part when
// mixed content has none. Plain text content is replaced outright.
func WithText(c Content, text string) Content {
	pc, ok := c.(PartsContent)
	if !ok {
		return TextContent{Text: text}
	}
	parts := make([]Part, len(pc.Parts))
	copy(parts, pc.Parts)
	for i, p := range parts {
		if _, ok := p.(TextPart); ok {
			parts[i] = TextPart{Text: text}
			return PartsContent{Parts: parts}
		}
	}
	return PartsContent{Parts: append(parts, TextPart{Text: text})}
}

// WithImage adds an image part to content, promoting plain text to mixed content first.
func WithImage(c Content, url string) Content {
	switch v := c.(type) {
	case TextContent:
		parts := []Part{}
		if v.Text != "" {
			parts = append(parts, TextPart{Text: v.Text})
		}
		return PartsContent{Parts: append(parts, ImagePart{URL: url})}
	case PartsContent:
		parts := make([]Part, len(v.Parts), len(v.Parts)+1)
		copy(parts, v.Parts)
		return PartsContent{Parts: append(parts, ImagePart{URL: url})}
	}
	return PartsContent{Parts: []Part{ImagePart{URL: url}}}
}
