package bisector

import (
	"errors"
	"fmt"
)

// Verdict is the outcome of testing one build.
type Verdict int

const (
	// Good means the build does not show the searched behavior.
	Good Verdict = iota
	// Bad means the build shows the searched behavior.
	Bad
	// Skip removes the build from the range.
	Skip
	// Retry tests the same build again.
	Retry
	// Back undoes the last verdict.
	Back
	// Exit stops the search.
	Exit
)

var verdictNames = map[Verdict]string{
	Good:  "good",
	Bad:   "bad",
	Skip:  "skip",
	Retry: "retry",
	Back:  "back",
	Exit:  "exit",
}

func (v Verdict) String() string {
	if s, ok := verdictNames[v]; ok {
		return s
	}
	return fmt.Sprintf("Verdict(%d)", int(v))
}

// Result is the state of a Bisection.
type Result int

const (
	Running Result = iota
	Finished
	NoData
	UserExit
	Exception
)

func (r Result) String() string {
	switch r {
	case Running:
		return "RUNNING"
	case Finished:
		return "FINISHED"
	case NoData:
		return "NO_DATA"
	case UserExit:
		return "USER_EXIT"
	case Exception:
		return "EXCEPTION"
	}
	return fmt.Sprintf("Result(%d)", int(r))
}

var (
	// ErrGoodBadExpectation is returned when a build given as good or bad
	// is not evaluated so.
	ErrGoodBadExpectation = errors.New("good/bad expectation not met")

	// ErrMergeResolution is returned when the branch a merge comes from
	// cannot be determined.
	ErrMergeResolution = errors.New("unable to find the merged branch")
)

// LaunchError is returned by a TestRunner when the tested application could
// not be started. The build is then skipped.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("unable to launch the build: %s", e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

// IsLaunchError returns true if err is or wraps a LaunchError.
func IsLaunchError(err error) bool {
	var launchErr *LaunchError
	return errors.As(err, &launchErr)
}
