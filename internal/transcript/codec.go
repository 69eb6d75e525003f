package transcript

import (
	"bytes"
	"encoding/json"

	"noteassist/pkg/assisttypes"
)

// Marshal encodes messages as the persisted chat record: a JSON array of {id, role, content}.
func Marshal(messages []assisttypes.Message) ([]byte, error) {
	if messages == nil {
		messages = []assisttypes.Message{}
	}
	return json.MarshalIndent(messages, "", "  ")
}

// Serialize encodes the transcript.
func (t *Transcript) Serialize() ([]byte, error) {
	return Marshal(t.messages)
}

// Unmarshal decodes a persisted record. Every element must carry a known string role and
// defined content; any violation yields a *assisttypes.FormatError and no messages.
// Ids are not backfilled here; Transcript.Replace does that.
func Unmarshal(data []byte) ([]assisttypes.Message, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(bytes.TrimSpace(data), &elements); err != nil {
		return nil, &assisttypes.FormatError{Index: -1, Reason: "record is not a JSON array", Err: err}
	}
	messages := make([]assisttypes.Message, 0, len(elements))
	for i, raw := range elements {
		var m assisttypes.Message
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, &assisttypes.FormatError{Index: i, Reason: err.Error(), Err: err}
		}
		messages = append(messages, m)
	}
	return messages, nil
}

// Deserialize replaces the transcript with a decoded record. On error the transcript is
// left empty.
func (t *Transcript) Deserialize(data []byte) error {
	messages, err := Unmarshal(data)
	if err != nil {
		t.Clear()
		return err
	}
	t.Replace(messages)
	return nil
}
