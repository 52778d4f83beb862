package story

import (
	"errors"
	"fmt"
)

// ErrMalformedStory matches every *MalformedStoryError via errors.Is.
var ErrMalformedStory = errors.New("malformed story")

// MalformedStoryError is returned by Load when a definition cannot form a playable graph.
type MalformedStoryError struct {
	StoryID string
	Reason  string
	Err     error
}

func (e *MalformedStoryError) Error() string {
	msg := fmt.Sprintf("malformed story %q: %s", e.StoryID, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedStoryError) Is(target error) bool {
	return target == ErrMalformedStory
}

func (e *MalformedStoryError) Unwrap() error {
	return e.Err
}

// IntegrityError describes a single integrity problem found in a graph.
type IntegrityError struct {
	SceneID string // Scene where the problem was found
	Reason  string // Human-readable reason
}

func (e *IntegrityError) Error() string {
	if e.SceneID == "" {
		return e.Reason
	}
	return fmt.Sprintf("scene %q: %s", e.SceneID, e.Reason)
}

// AggregateError represents multiple integrity failures.
type AggregateError struct {
	Errors []error
}

func (e *AggregateError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	msg := fmt.Sprintf("%d integrity errors:\n", len(e.Errors))
	for i, err := range e.Errors {
		msg += fmt.Sprintf("  %d. %s\n", i+1, err.Error())
	}
	return msg
}

// IntegrityErrors returns all integrity errors if err is an AggregateError.
// Otherwise returns nil.
func IntegrityErrors(err error) []error {
	var aggr *AggregateError
	if errors.As(err, &aggr) {
		return aggr.Errors
	}
	return nil
}
