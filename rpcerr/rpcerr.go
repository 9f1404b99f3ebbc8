// Package rpcerr defines the failures that can surface from a dispatch.
//
// A dispatch either fails directly (an interceptor rejected the call, the method
// could not be resolved) or through the invocation boundary, in which case the
// business failure is carried as the Cause of an InvocationError. Only the
// latter is unwrapped before it reaches the caller.
package rpcerr

import (
	"errors"
	"fmt"
)

var (
	ErrServiceNotFound = errors.New("service not found")
	ErrMethodNotFound  = errors.New("method not found")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrTimeout         = errors.New("request timed out")
	ErrUnauthorized    = errors.New("unauthorized")
)

// InvocationError wraps whatever a business method returned or panicked with.
type InvocationError struct {
	Method string
	Cause  error
}

func (e *InvocationError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("invoke %s failed", e.Method)
	}
	return fmt.Sprintf("invoke %s failed: %v", e.Method, e.Cause)
}

func (e *InvocationError) Unwrap() error { return e.Cause }

// Target returns the cause, or the wrapper itself when there is none.
func (e *InvocationError) Target() error {
	if e.Cause == nil {
		return e
	}
	return e.Cause
}

// PanicError records a recovered panic.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string {
	if err, ok := e.Value.(error); ok {
		return "panic: " + err.Error()
	}
	return fmt.Sprintf("panic: %v", e.Value)
}

func (e *PanicError) Unwrap() error {
	err, _ := e.Value.(error)
	return err
}

// Classify maps a dispatch failure to the error reported to the caller.
// invocation is true when err was an InvocationError at the top level.
func Classify(err error) (surfaced error, invocation bool) {
	switch e := err.(type) {
	case nil:
		return nil, false
	case *InvocationError:
		return e.Target(), true
	default:
		return err, false
	}
}

// Wire error codes. Zero means success.
const (
	CodeOK           int32 = 0
	CodeInternal     int32 = 1
	CodeNotFound     int32 = 2
	CodeRateLimited  int32 = 3
	CodeTimeout      int32 = 4
	CodeUnauthorized int32 = 5
)

// Code maps err to its wire code.
func Code(err error) int32 {
	switch {
	case err == nil:
		return CodeOK
	case errors.Is(err, ErrServiceNotFound), errors.Is(err, ErrMethodNotFound):
		return CodeNotFound
	case errors.Is(err, ErrRateLimited):
		return CodeRateLimited
	case errors.Is(err, ErrTimeout):
		return CodeTimeout
	case errors.Is(err, ErrUnauthorized):
		return CodeUnauthorized
	default:
		return CodeInternal
	}
}

// RemoteError is an error decoded from a response frame.
type RemoteError struct {
	Code    int32
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// Unwrap lets errors.Is match the sentinel behind a wire code.
func (e *RemoteError) Unwrap() error {
	switch e.Code {
	case CodeNotFound:
		return ErrMethodNotFound
	case CodeRateLimited:
		return ErrRateLimited
	case CodeTimeout:
		return ErrTimeout
	case CodeUnauthorized:
		return ErrUnauthorized
	default:
		return nil
	}
}
