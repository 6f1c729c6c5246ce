package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

const (
	attrID     = "id"
	attrAction = "action"
)

// ErrNotAnObject is returned when a frame decodes to valid JSON that is not an object.
var ErrNotAnObject = errors.New("state document must be a JSON object")

// StateDocument is the shared state value. Attributes are kept as raw JSON so
// payloads round-trip through the broker byte-for-byte.
type StateDocument map[string]json.RawMessage

// DecodeStateDocument parses a single JSON object.
func DecodeStateDocument(data []byte) (StateDocument, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrNotAnObject
	}

	var doc StateDocument
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode state document: %w", err)
	}
	if doc == nil {
		return nil, ErrNotAnObject
	}
	return doc, nil
}

// NewStateDocument builds a document from plain Go values.
func NewStateDocument(attrs map[string]any) (StateDocument, error) {
	doc := make(StateDocument, len(attrs))
	for k, v := range attrs {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode attribute %q: %w", k, err)
		}
		doc[k] = raw
	}
	return doc, nil
}

// ID returns the originating client id stamped by the broker.
func (d StateDocument) ID() (int64, bool) {
	raw, ok := d[attrID]
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseInt(string(bytes.TrimSpace(raw)), 10, 64)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Action returns the action attribute, or "" when absent or not a string.
func (d StateDocument) Action() string {
	return d.String(attrAction)
}

// String returns a string attribute, or "" when absent or not a string.
func (d StateDocument) String(key string) string {
	raw, ok := d[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// WithID returns a copy stamped with the given client id.
func (d StateDocument) WithID(id int64) StateDocument {
	out := d.Clone()
	out[attrID] = json.RawMessage(strconv.FormatInt(id, 10))
	return out
}

// Clone returns a shallow copy. Attribute values are immutable raw bytes.
func (d StateDocument) Clone() StateDocument {
	out := make(StateDocument, len(d)+1)
	for k, v := range d {
		out[k] = v
	}
	return out
}

// Encode serializes the document for the wire.
func (d StateDocument) Encode() ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode state document: %w", err)
	}
	return data, nil
}
