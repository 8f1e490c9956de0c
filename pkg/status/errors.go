// Copyright © 2025 jackelyj <dreamerlyj@gmail.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.
//

package status

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownKind is returned when no factory is registered for a check kind.
	ErrUnknownKind = errors.New("unknown check kind")
	// ErrUnresolved is returned by a Resolver that cannot find a reference.
	// The loader skips such references.
	ErrUnresolved = errors.New("check reference not resolved")
	// ErrDuplicateKind is returned when a kind is registered twice.
	ErrDuplicateKind = errors.New("check kind already registered")
	// ErrInvalidSpec marks a configuration entry that cannot be decoded.
	ErrInvalidSpec = errors.New("invalid check spec")
)

// CheckError is an expected failure raised by a check. The check ends in the
// error state and the error is reported, never propagated to the caller.
type CheckError struct {
	Message    string
	LogMessage string
}

// CheckWarning is a degraded but non-fatal result.
type CheckWarning struct {
	Message    string
	LogMessage string
}

// MessageOption tunes a CheckError or CheckWarning.
type MessageOption func(msg, log *string)

// WithLogMessage sets a log message distinct from the user facing message.
func WithLogMessage(format string, args ...any) MessageOption {
	return func(_, log *string) {
		*log = fmt.Sprintf(format, args...)
	}
}

// NewCheckError builds a CheckError. LogMessage defaults to msg.
func NewCheckError(msg string, opts ...MessageOption) *CheckError {
	e := &CheckError{Message: msg}
	for _, opt := range opts {
		opt(&e.Message, &e.LogMessage)
	}
	if e.LogMessage == "" {
		e.LogMessage = e.Message
	}
	return e
}

// NewCheckWarning builds a CheckWarning. LogMessage defaults to msg.
func NewCheckWarning(msg string, opts ...MessageOption) *CheckWarning {
	w := &CheckWarning{Message: msg}
	for _, opt := range opts {
		opt(&w.Message, &w.LogMessage)
	}
	if w.LogMessage == "" {
		w.LogMessage = w.Message
	}
	return w
}

// Errorf formats a CheckError.
func Errorf(format string, args ...any) *CheckError {
	return NewCheckError(fmt.Sprintf(format, args...))
}

// Warningf formats a CheckWarning.
func Warningf(format string, args ...any) *CheckWarning {
	return NewCheckWarning(fmt.Sprintf(format, args...))
}

func (e *CheckError) Error() string { return e.Message }

func (w *CheckWarning) Error() string { return w.Message }

// AsCheckError reports whether err carries a *CheckError.
func AsCheckError(err error) (*CheckError, bool) {
	var ce *CheckError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// AsCheckWarning reports whether err carries a *CheckWarning.
func AsCheckWarning(err error) (*CheckWarning, bool) {
	var cw *CheckWarning
	if errors.As(err, &cw) {
		return cw, true
	}
	return nil, false
}

// SpecError describes a configuration entry that could not be turned into a
// check. The entry is skipped and reported; the batch continues.
type SpecError struct {
	Name  string
	Kind  string
	Cause error
}

func (e *SpecError) Error() string {
	return fmt.Sprintf("check %q is misconfigured: %v", e.Name, e.Cause)
}

func (e *SpecError) Unwrap() error { return e.Cause }

// DispatchError is a check that was built but could not be queued.
type DispatchError struct {
	Name  string
	Cause error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("check %q could not be dispatched: %v", e.Name, e.Cause)
}

func (e *DispatchError) Unwrap() error { return e.Cause }

// describe renders an unexpected failure as "<type>: <message>".
func describe(err error) string {
	return fmt.Sprintf("%T: %v", err, err)
}
