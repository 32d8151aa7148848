// Package nooplogging implements sklogimpl.Logger and discards everything.
package nooplogging

import "go.buildbisect.org/infra/go/sklog/sklogimpl"

type noop struct{}

// New returns a sklogimpl.Logger that drops every line.
func New() sklogimpl.Logger {
	return noop{}
}

// Log implements sklogimpl.Logger.
func (noop) Log(int, sklogimpl.Severity, string, ...interface{}) {}

// Flush implements sklogimpl.Logger.
func (noop) Flush() {}
