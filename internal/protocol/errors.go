package protocol

import (
	"errors"
	"fmt"
)

var (
	// ErrNoParser is returned when no registered prefix matches a frame
	ErrNoParser = errors.New("no parser matches frame")
	// ErrSerialize is returned when an event body cannot be encoded
	ErrSerialize = errors.New("failed to serialize event")
)

// ParserError reports a frame whose prefix matched but whose body is malformed.
type ParserError struct {
	Component string
	Message   string
}

func (e *ParserError) Error() string {
	return fmt.Sprintf("%s parser: %s", e.Component, e.Message)
}

func parserErrorf(component, format string, args ...any) error {
	return &ParserError{Component: component, Message: fmt.Sprintf(format, args...)}
}
