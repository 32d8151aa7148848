// Package bisector runs the search for the first bad build of a range.
package bisector

import (
	"context"
	"errors"
	"math"

	"go.buildbisect.org/infra/bisection/go/approx"
	"go.buildbisect.org/infra/bisection/go/buildinfo"
	"go.buildbisect.org/infra/bisection/go/buildrange"
	"go.buildbisect.org/infra/go/skerr"
	"go.buildbisect.org/infra/go/sklog"
)

// DEFAULT_SKIP_CHOICE_THRESHOLD is the range length above which the test
// runner picks the build tested after a skip.
const DEFAULT_SKIP_CHOICE_THRESHOLD = 3

// TestRunner evaluates builds.
type TestRunner interface {
	// Evaluate tests a downloaded build. allowBack tells whether Back is
	// a possible answer. A LaunchError makes the build skipped.
	Evaluate(ctx context.Context, info *buildinfo.BuildInfo, allowBack bool) (Verdict, error)
}

// SkipChooser is implemented by test runners which pick the build tested
// after a skip.
type SkipChooser interface {
	// IndexToTryAfterSkip returns an index of r other than its endpoints.
	// mid is the middle of r.
	IndexToTryAfterSkip(ctx context.Context, r *buildrange.BuildRange, mid int) (int, error)
}

// Downloader makes builds available locally.
type Downloader interface {
	// Focus downloads the build, sets its BuildFile and waits.
	Focus(ctx context.Context, info *buildinfo.BuildInfo) error

	// Background starts downloading the build.
	Background(ctx context.Context, info *buildinfo.BuildInfo)

	// Dir returns where builds are downloaded.
	Dir() string
}

// Step describes one evaluated build.
type Step struct {
	Index     int
	Len       int
	Build     *buildinfo.BuildInfo
	Verdict   Verdict
	StepsLeft int
}

// StepFunc is called after each verdict.
type StepFunc func(Step)

// Options configures a Bisection.
type Options struct {
	// DownloadInBackground prefetches the builds which may be tested next.
	DownloadInBackground bool

	// EnsureGoodAndBad tests the endpoints before the search starts.
	EnsureGoodAndBad bool

	// SkipChoiceThreshold is the range length above which a SkipChooser
	// test runner is asked for the next build after a skip. Zero means
	// DEFAULT_SKIP_CHOICE_THRESHOLD.
	SkipChoiceThreshold int

	// Approx, if set, uses already downloaded builds near the middle.
	Approx *approx.Chooser

	Interrupt buildrange.InterruptFunc

	OnStep StepFunc
}

type historyEntry struct {
	r       *buildrange.BuildRange
	index   int
	verdict Verdict
}

// Bisection narrows one range down to a good and a bad build next to each
// other.
type Bisection struct {
	handler Handler
	r       *buildrange.BuildRange
	dl      Downloader
	runner  TestRunner
	opts    Options
	history []historyEntry
}

// NewBisection returns a Bisection on r.
func NewBisection(handler Handler, r *buildrange.BuildRange, dl Downloader, runner TestRunner, opts Options) *Bisection {
	if opts.SkipChoiceThreshold == 0 {
		opts.SkipChoiceThreshold = DEFAULT_SKIP_CHOICE_THRESHOLD
	}
	return &Bisection{
		handler: handler,
		r:       r,
		dl:      dl,
		runner:  runner,
		opts:    opts,
	}
}

// Range returns the current range.
func (b *Bisection) Range() *buildrange.BuildRange {
	return b.r
}

// Handler returns the handler.
func (b *Bisection) Handler() Handler {
	return b.handler
}

// StepsLeft estimates how many builds remain to be tested for a range of n
// builds.
func StepsLeft(n int) int {
	if n <= 1 {
		return 0
	}
	return int(math.Log2(float64(n)))
}

// Search runs until the range cannot be narrowed anymore. Running is never
// returned. The error is only set with Exception.
func (b *Bisection) Search(ctx context.Context) (Result, error) {
	first := true
	hasPrevious := false
	var previous Verdict
	backIndex := 0
	for {
		mid, err := b.r.MidPoint(ctx, b.opts.Interrupt)
		if errors.Is(err, buildrange.ErrInterrupted) {
			return b.userExit(), nil
		} else if err != nil {
			return b.failed(ctx, skerr.Wrap(err))
		}
		if b.r.Len() == 0 {
			sklog.Infof("There are no %s builds in this range.", b.handler.Name())
			return NoData, nil
		}
		if err := b.handler.SetRange(ctx, b.r); err != nil {
			return Exception, err
		}
		if mid == 0 {
			b.finished()
			return Finished, nil
		}
		if first {
			first = false
			if b.opts.EnsureGoodAndBad {
				ok, err := b.ensureGoodAndBad(ctx)
				if err != nil {
					return b.failed(ctx, err)
				}
				if !ok {
					return b.userExit(), nil
				}
				sklog.Infof("Good and bad builds are correct")
			}
		}

		index := mid
		allowBackground := b.opts.DownloadInBackground
		if hasPrevious && previous == Back && backIndex < b.r.Len() {
			index = backIndex
		}
		if hasPrevious && previous == Skip {
			// What comes next is unknown after a skip.
			allowBackground = false
			if chooser, ok := b.runner.(SkipChooser); ok && b.r.Len() > b.opts.SkipChoiceThreshold {
				index, err = chooser.IndexToTryAfterSkip(ctx, b.r, mid)
				if err != nil {
					return Exception, skerr.Wrap(err)
				}
			}
		}

		verdict, index, info, err := b.test(ctx, index, hasPrevious && previous == Retry, allowBackground)
		if err != nil {
			return b.failed(ctx, err)
		}
		if b.opts.OnStep != nil {
			b.opts.OnStep(Step{
				Index:     index,
				Len:       b.r.Len(),
				Build:     info,
				Verdict:   verdict,
				StepsLeft: StepsLeft(b.r.Len()),
			})
		}
		hasPrevious, previous = true, verdict
		result, idx, err := b.handleVerdict(ctx, index, verdict)
		if err != nil {
			return b.failed(ctx, err)
		}
		if result != Running {
			return result, nil
		}
		backIndex = idx
	}
}

// test evaluates the build at index and returns its verdict and the index
// of the build once the range is synchronized.
func (b *Bisection) test(ctx context.Context, index int, retry, allowBackground bool) (Verdict, int, *buildinfo.BuildInfo, error) {
	info, err := b.r.Get(ctx, index)
	if err != nil {
		return Skip, index, nil, skerr.Wrap(err)
	}
	if info == nil {
		sklog.Infof("Unable to find build info. Skipping this build...")
		return Skip, index, nil, nil
	}
	var promise *indexPromise
	join := func() error {
		if promise == nil {
			return nil
		}
		i, err := promise.Join()
		if err != nil {
			return err
		}
		index = i
		return nil
	}
	if !retry {
		// A retried build is already downloaded, and downloading again
		// would cancel the prefetched builds.
		index, info, promise, err = b.download(ctx, index, info, allowBackground)
		if err != nil {
			if joinErr := join(); joinErr != nil {
				sklog.Errorf("Prefetching the next builds: %s", joinErr)
			}
			return Skip, index, info, err
		}
	}
	verdict, err := b.runner.Evaluate(ctx, info, len(b.history) > 0)
	if err != nil {
		if !IsLaunchError(err) {
			if joinErr := join(); joinErr != nil {
				sklog.Errorf("Prefetching the next builds: %s", joinErr)
			}
			return Skip, index, info, skerr.Wrapf(err, "evaluating %s", info)
		}
		sklog.Infof("Error while launching %s: %s", info, err)
		sklog.Infof("Skipping this build...")
		verdict = Skip
	}
	if err := join(); err != nil {
		return verdict, index, info, err
	}
	return verdict, index, info, nil
}

// download focuses on the build at index, or on a close one already
// downloaded, and starts prefetching the possible next builds.
func (b *Bisection) download(ctx context.Context, index int, info *buildinfo.BuildInfo, allowBackground bool) (int, *buildinfo.BuildInfo, *indexPromise, error) {
	if b.opts.Approx != nil {
		if i, ok := b.opts.Approx.IndexInDir(b.r, info, b.dl.Dir()); ok {
			other, err := b.r.Get(ctx, i)
			if err != nil {
				return index, info, nil, skerr.Wrap(err)
			}
			if other != nil {
				sklog.Infof("Using %s instead of %s, which is already downloaded", other, info)
				index, info = i, other
			}
		}
	}
	// The focus may cancel the other downloads, so the prefetch starts
	// after it.
	if err := b.dl.Focus(ctx, info); err != nil {
		return index, info, nil, err
	}
	var promise *indexPromise
	if allowBackground {
		promise = newIndexPromise(ctx, b.r, index, info, b.dl)
	}
	return index, info, promise, nil
}

// handleVerdict narrows the range. For Back, the returned index is the one
// of the restored step.
func (b *Bisection) handleVerdict(ctx context.Context, index int, verdict Verdict) (Result, int, error) {
	before := b.r.Len()
	switch verdict {
	case Good, Bad:
		b.history = append(b.history, historyEntry{r: b.r, index: index, verdict: verdict})
		// [G, ?, ?, G, ?, B] becomes [G, ?, B] when looking for a
		// regression.
		if (verdict == Good) != b.handler.FindFix() {
			b.r = b.r.Slice(index, b.r.Len())
		} else {
			b.r = b.r.Slice(0, index+1)
		}
		if err := b.handler.SetRange(ctx, b.r); err != nil {
			return Exception, 0, err
		}
		boundary := b.handler.Boundary()
		sklog.Infof("Narrowed %s range from %d to %d builds: good %s, bad %s (~%d steps left)", b.handler.Name(), before, b.r.Len(), boundary.Good, boundary.Bad, StepsLeft(b.r.Len()))
	case Skip:
		b.history = append(b.history, historyEntry{r: b.r, index: index, verdict: verdict})
		b.r = b.r.Deleted(index)
		sklog.Infof("Build skipped, %d builds left", b.r.Len())
	case Retry:
		sklog.Infof("Testing the same build again")
	case Back:
		if len(b.history) == 0 {
			sklog.Warningf("Nothing to go back to, testing the same build again")
			return Running, index, nil
		}
		last := b.history[len(b.history)-1]
		b.history = b.history[:len(b.history)-1]
		b.r = last.r
		sklog.Infof("Going back to the range of %d builds before the %s verdict", b.r.Len(), last.verdict)
		return Running, last.index, nil
	case Exit:
		return b.userExit(), index, nil
	default:
		return Exception, 0, skerr.Fmt("unknown verdict %s", verdict)
	}
	return Running, index, nil
}

func (b *Bisection) ensureGoodAndBad(ctx context.Context) (bool, error) {
	good, err := b.r.Get(ctx, 0)
	if err != nil {
		return false, skerr.Wrap(err)
	}
	bad, err := b.r.Get(ctx, -1)
	if err != nil {
		return false, skerr.Wrap(err)
	}
	if b.handler.FindFix() {
		good, bad = bad, good
	}
	if err := b.dl.Focus(ctx, good); err != nil {
		return false, err
	}
	if b.opts.DownloadInBackground {
		b.dl.Background(ctx, bad)
	}
	if ok, err := b.expect(ctx, good, Good); !ok || err != nil {
		return false, err
	}
	if err := b.dl.Focus(ctx, bad); err != nil {
		return false, err
	}
	return b.expect(ctx, bad, Bad)
}

// expect evaluates info until it gets expected. It returns false on Exit.
func (b *Bisection) expect(ctx context.Context, info *buildinfo.BuildInfo, expected Verdict) (bool, error) {
	for {
		verdict, err := b.runner.Evaluate(ctx, info, false)
		if err != nil {
			return false, skerr.Wrapf(err, "evaluating %s", info)
		}
		switch verdict {
		case expected:
			return true, nil
		case Skip:
			sklog.Infof("You can not skip this build.")
		case Retry, Back:
		case Exit:
			return false, nil
		default:
			return false, skerr.Wrapf(ErrGoodBadExpectation, "build %s was expected to be %s, but was evaluated %s; check the good and bad arguments", info, expected, verdict)
		}
	}
}

func (b *Bisection) finished() {
	boundary := b.handler.Boundary()
	sklog.Infof("Got as far as we can go bisecting %s builds: last good %s, first bad %s", b.handler.Name(), boundary.Good, boundary.Bad)
	if u := b.handler.PushlogURL(); u != "" {
		sklog.Infof("Pushlog:\n%s", u)
	}
}

// failed turns err into the result of the search. Errors caused by the
// cancellation of ctx end the search like an interrupt.
func (b *Bisection) failed(ctx context.Context, err error) (Result, error) {
	if ctx.Err() != nil {
		sklog.Debugf("Search cancelled: %s", err)
		return b.userExit(), nil
	}
	return Exception, err
}

func (b *Bisection) userExit() Result {
	boundary := b.handler.Boundary()
	sklog.Infof("Stopped with good %s and bad %s", boundary.Good, boundary.Bad)
	return UserExit
}
