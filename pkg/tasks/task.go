// Package tasks defines the task record persisted by taskhub and the event
// envelope fanned out when a task is created.
package tasks

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// TimestampLayout is the ISO-8601 layout used for CreatedAt.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

// Task is a persisted task record. Once written it is never updated.
//
// The json and dynamodbav tags share the same attribute names so a record
// reads the same in the table, on the topic and on the queue.
type Task struct {
	// TaskID is the hash key of the tasks table.
	TaskID string `json:"taskId" dynamodbav:"taskId"`

	Title string `json:"title" dynamodbav:"title"`

	// Description defaults to the empty string.
	Description string `json:"description" dynamodbav:"description"`

	// ImageKey points at an uploaded blob; nil when the task has no image.
	ImageKey *string `json:"imageKey" dynamodbav:"imageKey"`

	// CreatedAt is assigned when the record is built for persistence.
	CreatedAt string `json:"createdAt" dynamodbav:"createdAt"`
}

// Input is the caller-supplied part of a task.
type Input struct {
	TaskID      string  `json:"taskId"`
	Title       string  `json:"title" validate:"required"`
	Description string  `json:"description"`
	ImageKey    *string `json:"imageKey"`
}

var validate = validator.New()

// Validate reports an error when the input cannot become a task.
// Whitespace-only titles count as empty.
func (in Input) Validate() error {
	in.Title = strings.TrimSpace(in.Title)
	return validate.Struct(in)
}

// NewTask builds the immutable record for the given identity and creation time.
// An empty image key is stored as nil.
func NewTask(id string, in Input, now time.Time) Task {
	imageKey := in.ImageKey
	if imageKey != nil && *imageKey == "" {
		imageKey = nil
	}
	return Task{
		TaskID:      id,
		Title:       in.Title,
		Description: in.Description,
		ImageKey:    imageKey,
		CreatedAt:   now.UTC().Format(TimestampLayout),
	}
}
