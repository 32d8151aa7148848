// Package skerr provides errors that carry the call site where they were
// created or wrapped.
//
// Use Fmt in place of fmt.Errorf and Wrap/Wrapf to add context to an error
// returned from another package. errors.Is and errors.As see through the
// wrapping, and Unwrap returns the original error.
package skerr

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
)

// StackTrace is one frame of a call stack.
type StackTrace struct {
	File string
	Line int
}

// String returns "file:line".
func (st *StackTrace) String() string {
	return fmt.Sprintf("%s:%d", st.File, st.Line)
}

// ErrorWithContext is an error that remembers where it passed through.
type ErrorWithContext struct {
	// Wrapped is the original error. Never nil.
	Wrapped error
	// CallStack is the location of the initial Fmt or Wrap call.
	CallStack []StackTrace
	// Context holds the messages added by Wrapf, outermost first.
	Context []string
}

// Error implements the error interface.
func (err *ErrorWithContext) Error() string {
	var out strings.Builder
	for _, c := range err.Context {
		out.WriteString(c)
		out.WriteString(": ")
	}
	out.WriteString(err.Wrapped.Error())
	if len(err.CallStack) > 0 {
		out.WriteString(". At ")
		for i, st := range err.CallStack {
			if i > 0 {
				out.WriteString(" ")
			}
			out.WriteString(st.String())
		}
	}
	return out.String()
}

// Unwrap allows errors.Is and errors.As to look at the original error.
func (err *ErrorWithContext) Unwrap() error {
	return err.Wrapped
}

// CallStack returns up to depth frames of the caller's stack, skipping the
// given number of frames.
func CallStack(depth, skip int) []StackTrace {
	pcs := make([]uintptr, depth)
	n := runtime.Callers(skip+2, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	rv := make([]StackTrace, 0, n)
	for {
		f, more := frames.Next()
		if f.File != "" {
			rv = append(rv, StackTrace{
				File: filepath.Base(filepath.Dir(f.File)) + "/" + filepath.Base(f.File),
				Line: f.Line,
			})
		}
		if !more {
			break
		}
	}
	return rv
}

// Fmt is like fmt.Errorf but records the call site. %w is honored.
func Fmt(fmtStr string, args ...interface{}) error {
	return &ErrorWithContext{
		Wrapped:   fmt.Errorf(fmtStr, args...),
		CallStack: CallStack(1, 1),
	}
}

// Wrap records the call site on err. Returns nil if err is nil.
func Wrap(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*ErrorWithContext); ok {
		return err
	}
	return &ErrorWithContext{
		Wrapped:   err,
		CallStack: CallStack(1, 1),
	}
}

// Wrapf adds a message to err. Returns nil if err is nil.
func Wrapf(err error, fmtStr string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(fmtStr, args...)
	if ewc, ok := err.(*ErrorWithContext); ok {
		return &ErrorWithContext{
			Wrapped:   ewc.Wrapped,
			CallStack: ewc.CallStack,
			Context:   append([]string{msg}, ewc.Context...),
		}
	}
	return &ErrorWithContext{
		Wrapped:   err,
		CallStack: CallStack(1, 1),
		Context:   []string{msg},
	}
}

// Unwrap returns the innermost error that was passed to Wrap or Wrapf.
func Unwrap(err error) error {
	if ewc, ok := err.(*ErrorWithContext); ok {
		return ewc.Wrapped
	}
	return err
}
