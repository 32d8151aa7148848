// Package dates parses the endpoints users give on the command line: a date,
// a build id, or a changeset.
package dates

import (
	"errors"
	"regexp"
	"strconv"
	"time"

	"go.buildbisect.org/infra/go/pushlog"
	"go.buildbisect.org/infra/go/skerr"
)

const (
	DATE_FORMAT      = "2006-01-02"
	BUILDID_FORMAT   = "20060102150405"
	TIMESTAMP_FORMAT = "2006-01-02-15-04-05"
)

var (
	// ErrFormat is returned when a string does not look like a date.
	ErrFormat = errors.New("invalid date format")

	// ErrValue is returned for strings that look like dates but are not, like
	// 2015-02-30.
	ErrValue = errors.New("invalid date value")

	dateRegex    = regexp.MustCompile(`^(\d{4})-(\d{1,2})-(\d{1,2})`)
	buildIDRegex = regexp.MustCompile(`^\d{14}$`)
)

// Parse returns the time designated by s, either a YYYY-MM-DD date or a
// YYYYMMDDhhmmss build id. hasTime is true for build ids.
func Parse(s string) (t time.Time, hasTime bool, err error) {
	if buildIDRegex.MatchString(s) {
		t, err := time.Parse(BUILDID_FORMAT, s)
		if err != nil {
			return time.Time{}, false, skerr.Wrapf(ErrFormat, "not a valid build id: %q", s)
		}
		return t, true, nil
	}
	m := dateRegex.FindStringSubmatch(s)
	if m == nil {
		return time.Time{}, false, skerr.Wrapf(ErrFormat, "%q", s)
	}
	y, _ := strconv.Atoi(m[1])
	mo, _ := strconv.Atoi(m[2])
	d, _ := strconv.Atoi(m[3])
	t = time.Date(y, time.Month(mo), d, 0, 0, 0, 0, time.UTC)
	if t.Year() != y || int(t.Month()) != mo || t.Day() != d {
		return time.Time{}, false, skerr.Wrapf(ErrValue, "%q", s)
	}
	return t, false, nil
}

// Truncate drops the time of day.
func Truncate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Bound is one endpoint of a search: a date (possibly with a time) or a
// changeset.
type Bound struct {
	Date      time.Time
	HasTime   bool
	Changeset string
}

// DateBound returns a Bound on a day.
func DateBound(t time.Time) Bound {
	return Bound{Date: Truncate(t)}
}

// ChangesetBound returns a Bound on a changeset.
func ChangesetBound(cs string) Bound {
	return Bound{Changeset: cs}
}

// ParseBound parses a date or build id, and assumes anything else is a
// changeset.
func ParseBound(s string) (Bound, error) {
	t, hasTime, err := Parse(s)
	if err == nil {
		return Bound{Date: t, HasTime: hasTime}, nil
	}
	if errors.Is(err, ErrValue) {
		return Bound{}, err
	}
	if s == "" {
		return Bound{}, skerr.Fmt("empty bound")
	}
	return Bound{Changeset: s}, nil
}

// IsDate returns true if the Bound is a date rather than a changeset.
func (b Bound) IsDate() bool {
	return b.Changeset == ""
}

// Ref returns the pushlog reference of the Bound.
func (b Bound) Ref() pushlog.Ref {
	if b.IsDate() {
		return pushlog.Ref{Date: b.Date}
	}
	return pushlog.Ref{Changeset: b.Changeset}
}

// String returns the Bound in the form ParseBound accepts.
func (b Bound) String() string {
	if !b.IsDate() {
		return b.Changeset
	}
	if b.HasTime {
		return b.Date.Format(BUILDID_FORMAT)
	}
	return b.Date.Format(DATE_FORMAT)
}
