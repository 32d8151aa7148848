// Package testrunner gets verdicts on builds, from a command or from the
// user.
package testrunner

import (
	"strings"

	"go.buildbisect.org/infra/bisection/go/bisector"
	"go.buildbisect.org/infra/go/skerr"
)

var verdicts = map[string]bisector.Verdict{
	"good":  bisector.Good,
	"g":     bisector.Good,
	"bad":   bisector.Bad,
	"b":     bisector.Bad,
	"skip":  bisector.Skip,
	"s":     bisector.Skip,
	"retry": bisector.Retry,
	"r":     bisector.Retry,
	"back":  bisector.Back,
	"exit":  bisector.Exit,
	"e":     bisector.Exit,
}

// ParseVerdict parses a verdict typed by the user.
func ParseVerdict(s string) (bisector.Verdict, error) {
	if v, ok := verdicts[strings.ToLower(strings.TrimSpace(s))]; ok {
		return v, nil
	}
	return 0, skerr.Fmt("unknown verdict %q", s)
}
