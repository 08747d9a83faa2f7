package streaming

import (
	"encoding/json"
	"errors"
	"time"

	"bcexplorer/internal/domain"
)

type MessageType string

const (
	MessageTypeLookup MessageType = "lookup"
)

type Message struct {
	Type    MessageType       `json:"type"`
	TraceID string            `json:"trace_id,omitempty"`
	Kind    domain.LookupKind `json:"kind"`
	Key     string            `json:"key"`
	At      time.Time         `json:"at"`
}

func FromLookup(lookup domain.Lookup) Message {
	return Message{
		Type: MessageTypeLookup,
		Kind: lookup.Kind,
		Key:  lookup.Key,
		At:   lookup.At,
	}
}

func (m Message) Lookup() domain.Lookup {
	return domain.Lookup{Kind: m.Kind, Key: m.Key, At: m.At}
}

func Encode(msg Message) ([]byte, error) {
	if err := validate(msg); err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

func Decode(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if err := validate(msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func validate(msg Message) error {
	if msg.Type == "" {
		return errors.New("message type is required")
	}
	if msg.Type == MessageTypeLookup && (msg.Kind == "" || msg.Key == "") {
		return errors.New("lookup kind and key are required")
	}
	return nil
}
