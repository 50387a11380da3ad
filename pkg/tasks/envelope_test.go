package tasks

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeEncode(t *testing.T) {
	task := NewTask("id-1", Input{Title: "Buy milk"}, time.Unix(0, 0))

	body, err := NewCreatedEnvelope(task).Encode()
	require.NoError(t, err)

	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(body), &decoded))
	assert.JSONEq(t, `"TASK_CREATED"`, string(decoded["type"]))
	assert.Contains(t, string(decoded["payload"]), `"taskId":"id-1"`)
}

func TestDecodeEnvelopeDirect(t *testing.T) {
	task := NewTask("id-1", Input{Title: "Buy milk"}, time.Unix(0, 0))
	body, err := NewCreatedEnvelope(task).Encode()
	require.NoError(t, err)

	env, source, err := DecodeEnvelope(body)
	require.NoError(t, err)
	assert.Equal(t, SourceDirect, source)
	assert.Equal(t, task, env.Payload)
}

func TestDecodeEnvelopeNotification(t *testing.T) {
	task := NewTask("id-2", Input{Title: "Walk dog"}, time.Unix(0, 0))
	inner, err := NewCreatedEnvelope(task).Encode()
	require.NoError(t, err)

	wrapped, err := json.Marshal(Notification{
		Type:     NotificationType,
		TopicArn: "arn:aws:sns:us-east-1:000000000000:task-events",
		Message:  inner,
	})
	require.NoError(t, err)

	env, source, err := DecodeEnvelope(string(wrapped))
	require.NoError(t, err)
	assert.Equal(t, SourceTopic, source)
	assert.Equal(t, "id-2", env.Payload.TaskID)
}

func TestDecodeEnvelopeErrors(t *testing.T) {
	_, _, err := DecodeEnvelope("not json")
	assert.Error(t, err)

	_, _, err = DecodeEnvelope(`{"type":"TASK_DELETED","payload":{}}`)
	assert.ErrorIs(t, err, ErrUnknownEvent)
}
