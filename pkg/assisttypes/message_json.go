package assisttypes

import (
	"bytes"
	"encoding/json"
	"fmt"
)

type jsonMessage struct {
	ID      string          `json:"id,omitempty"`
	Role    *string         `json:"role"`
	Content json.RawMessage `json:"content"`
}

type jsonPart struct {
	Type     string        `json:"type"`
	Text     *string       `json:"text,omitempty"`
	URL      string        `json:"url,omitempty"`
	ImageURL *jsonImageURL `json:"image_url,omitempty"`
}

type jsonImageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

// MarshalJSON encodes the message as {id, role, content} where content is a string
// or an array of {type:"text", text} / {type:"image_url", url} objects. An image detail is
// kept in the nested image_url object.
func (m Message) MarshalJSON() ([]byte, error) {
	role := string(m.Role)
	content, err := marshalContent(m.Content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jsonMessage{ID: m.ID, Role: &role, Content: content})
}

func marshalContent(c Content) (json.RawMessage, error) {
	switch v := c.(type) {
	case TextContent:
		return json.Marshal(v.Text)
	case PartsContent:
		parts := make([]jsonPart, 0, len(v.Parts))
		for _, p := range v.Parts {
			switch part := p.(type) {
			case TextPart:
				text := part.Text
				parts = append(parts, jsonPart{Type: "text", Text: &text})
			case ImagePart:
				jp := jsonPart{Type: "image_url", URL: part.URL}
				if part.Detail != "" {
					jp.ImageURL = &jsonImageURL{URL: part.URL, Detail: part.Detail}
				}
				parts = append(parts, jp)
			}
		}
		return json.Marshal(parts)
	case nil:
		return nil, fmt.Errorf("message has no content")
	}
	return nil, fmt.Errorf("unsupported content type %T", c)
}

// UnmarshalJSON decodes a message, requiring a known string role and defined content.
// The nested {type:"image_url", image_url:{url}} form is accepted as well.
func (m *Message) UnmarshalJSON(data []byte) error {
	var raw jsonMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Role == nil {
		return fmt.Errorf("role must be a string")
	}
	role := Role(*raw.Role)
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", *raw.Role)
	}
	content, err := unmarshalContent(raw.Content)
	if err != nil {
		return err
	}
	*m = Message{ID: raw.ID, Role: role, Content: content}
	return nil
}

func unmarshalContent(data json.RawMessage) (Content, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("content is missing")
	}
	switch trimmed[0] {
	case '"':
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, err
		}
		return TextContent{Text: s}, nil
	case '[':
		var raw []jsonPart
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, err
		}
		parts := make([]Part, 0, len(raw))
		for i, p := range raw {
			switch p.Type {
			case "text":
				if p.Text == nil {
					return nil, fmt.Errorf("content part %d: text part without text", i)
				}
				parts = append(parts, TextPart{Text: *p.Text})
			case "image_url":
				url, detail := p.URL, ""
				if p.ImageURL != nil {
					url, detail = p.ImageURL.URL, p.ImageURL.Detail
				}
				if url == "" {
					return nil, fmt.Errorf("content part %d: image part without url", i)
				}
				parts = append(parts, ImagePart{URL: url, Detail: detail})
			default:
				return nil, fmt.Errorf("content part %d: unknown type %q", i, p.Type)
			}
		}
		return PartsContent{Parts: parts}, nil
	}
	return nil, fmt.Errorf("content must be a string or an array of parts")
}
