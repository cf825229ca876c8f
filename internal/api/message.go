package api

import (
	"encoding/json"
	"time"
)

// Message is one frame of the streaming endpoint.
type Message struct {
	Type      string          `json:"type"`
	RunID     string          `json:"run_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// MessageType constants
const (
	MessageTypeProgress = "progress"
	MessageTypeResult   = "result"
	MessageTypeError    = "error"
	MessageTypeCancel   = "cancel"
)

func newMessage(msgType, runID string, data interface{}) (Message, error) {
	m := Message{Type: msgType, RunID: runID, Timestamp: time.Now().UTC()}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Message{}, err
		}
		m.Data = raw
	}
	return m, nil
}
