package queue

import (
	"encoding/json"
	"time"
)

// MessageVersion is the current delivery message schema.
const MessageVersion = 1

// Message asks a worker to email a stored rewrite package.
type Message struct {
	RewriteID  string `json:"rewriteId"`
	RequestID  string `json:"requestId"`
	EmailTo    string `json:"emailTo"`
	EnqueuedAt string `json:"enqueuedAt"`
	Version    int    `json:"version"`
}

// NewMessage stamps a message with the current time and schema version.
func NewMessage(rewriteID, requestID, emailTo string) Message {
	return Message{
		RewriteID:  rewriteID,
		RequestID:  requestID,
		EmailTo:    emailTo,
		EnqueuedAt: time.Now().UTC().Format(time.RFC3339),
		Version:    MessageVersion,
	}
}

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}
