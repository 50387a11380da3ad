package service

import (
	"errors"
	"fmt"
)

// Sentinel errors checked with errors.Is. The API layer maps ErrValidation to
// 400 and the rest to 500.
var (
	// ErrValidation marks bad input. Never retried.
	ErrValidation = errors.New("validation failed")

	// ErrPersistence marks a failed storage call. Nothing was created and no
	// event was emitted.
	ErrPersistence = errors.New("persistence failed")

	// ErrFanout marks a failed event delivery after the record was stored.
	ErrFanout = errors.New("event fan-out failed")
)

// ValidationError names the offending field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// PersistenceError wraps the storage failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
func (e *PersistenceError) Unwrap() error        { return e.Err }

// Fan-out channels.
const (
	ChannelTopic = "topic"
	ChannelQueue = "queue"
)

// FanoutError wraps the delivery failure on one channel. TaskID identifies the
// record that is stored but may have no matching event.
type FanoutError struct {
	Channel string
	TaskID  string
	Err     error
}

func (e *FanoutError) Error() string {
	return fmt.Sprintf("publish %s for task %s: %v", e.Channel, e.TaskID, e.Err)
}

func (e *FanoutError) Is(target error) bool { return target == ErrFanout }
func (e *FanoutError) Unwrap() error        { return e.Err }
