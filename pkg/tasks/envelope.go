package tasks

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventTaskCreated is the only event type emitted on task creation.
const EventTaskCreated = "TASK_CREATED"

// Envelope is the message body sent to the topic and to the queue.
type Envelope struct {
	Type    string `json:"type"`
	Payload Task   `json:"payload"`
}

// NewCreatedEnvelope wraps a task in a TASK_CREATED envelope.
func NewCreatedEnvelope(task Task) Envelope {
	return Envelope{Type: EventTaskCreated, Payload: task}
}

// Encode serializes the envelope to the text form put on the wire.
func (e Envelope) Encode() (string, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// Notification is the wrapper a topic puts around a message it forwards to a
// subscribed queue.
type Notification struct {
	Type      string `json:"Type"`
	MessageID string `json:"MessageId"`
	TopicArn  string `json:"TopicArn"`
	Message   string `json:"Message"`
	Timestamp string `json:"Timestamp"`
}

// NotificationType marks a topic-forwarded message.
const NotificationType = "Notification"

// Source tells how an envelope reached a queue consumer.
type Source string

const (
	SourceDirect Source = "direct"
	SourceTopic  Source = "topic"
)

// ErrUnknownEvent is returned when a body decodes but carries no known event type.
var ErrUnknownEvent = errors.New("unknown event type")

// DecodeEnvelope parses a queue message body. Bodies forwarded through the
// topic arrive wrapped in a Notification and are unwrapped first.
func DecodeEnvelope(body string) (Envelope, Source, error) {
	var head struct {
		Type    string `json:"Type"`
		Message string `json:"Message"`
	}
	if err := json.Unmarshal([]byte(body), &head); err != nil {
		return Envelope{}, "", fmt.Errorf("decode message body: %w", err)
	}

	source := SourceDirect
	raw := body
	// encoding/json matches keys case-insensitively, so head.Type may hold
	// the envelope's own "type" field; only the exact wrapper value counts.
	if head.Type == NotificationType && head.Message != "" {
		source = SourceTopic
		raw = head.Message
	}

	var env Envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Envelope{}, "", fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type != EventTaskCreated {
		return Envelope{}, "", fmt.Errorf("%w: %q", ErrUnknownEvent, env.Type)
	}
	return env, source, nil
}
