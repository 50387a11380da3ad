package tasks

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInputValidate(t *testing.T) {
	tests := []struct {
		name    string
		input   Input
		wantErr bool
	}{
		{"title present", Input{Title: "Buy milk"}, false},
		{"empty title", Input{Title: ""}, true},
		{"blank title", Input{Title: "   "}, true},
		{"description without title", Input{Description: "2 liters"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.input.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewTaskDefaults(t *testing.T) {
	now := time.Date(2026, 3, 4, 5, 6, 7, 8_000_000, time.FixedZone("CET", 3600))
	empty := ""

	task := NewTask("id-1", Input{Title: "Buy milk", ImageKey: &empty}, now)

	assert.Equal(t, "id-1", task.TaskID)
	assert.Equal(t, "", task.Description)
	assert.Nil(t, task.ImageKey)
	assert.Equal(t, "2026-03-04T04:06:07.008Z", task.CreatedAt)
}

func TestTaskJSONShape(t *testing.T) {
	task := NewTask("id-1", Input{Title: "Buy milk"}, time.Unix(0, 0))

	data, err := json.Marshal(task)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(data, &fields))
	assert.Contains(t, fields, "taskId")
	assert.Contains(t, fields, "createdAt")
	assert.Nil(t, fields["imageKey"])
	assert.Equal(t, "", fields["description"])
}
