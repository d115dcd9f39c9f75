package sender

import (
	"errors"
	"fmt"
)

// SendError reports that a sink could not deliver one event or one batch.
// The pipeline records it, fails the affected futures, and keeps running.
type SendError struct {
	Sink string
	Err  error
}

func (e *SendError) Error() string {
	if e.Sink == "" {
		return fmt.Sprintf("send failed: %v", e.Err)
	}
	return fmt.Sprintf("send to %s failed: %v", e.Sink, e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// NewSendError wraps a sink delivery failure.
func NewSendError(sink string, err error) *SendError {
	return &SendError{Sink: sink, Err: err}
}

// EncodeError reports that the encoder or a filter failed. It is handled the
// same way as a SendError.
type EncodeError struct {
	Err error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encode failed: %v", e.Err)
}

func (e *EncodeError) Unwrap() error {
	return e.Err
}

// NewEncodeError wraps an encoder or filter failure.
func NewEncodeError(err error) *EncodeError {
	return &EncodeError{Err: err}
}

// errorMessage classifies err for stats reporting. Known delivery and encode
// errors keep their message as the error label; anything else is unexpected
// and reported through the unhandled counter by the caller.
func errorMessage(err error) (string, bool) {
	var sendErr *SendError
	if errors.As(err, &sendErr) {
		return sendErr.Error(), true
	}
	var encErr *EncodeError
	if errors.As(err, &encErr) {
		return encErr.Error(), true
	}
	return err.Error(), false
}
