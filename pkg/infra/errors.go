package infra

import (
	"errors"
	"fmt"
)

// ErrTopicUnavailable is recorded when the queue step cannot wire the
// subscription because the topic step did not produce an identifier.
var ErrTopicUnavailable = errors.New("topic identifier unavailable")

// BootstrapError describes one failed ensure step.
type BootstrapError struct {
	Kind Kind
	Name string
	Err  error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("ensure %s %q: %v", e.Kind, e.Name, e.Err)
}

func (e *BootstrapError) Unwrap() error {
	return e.Err
}
