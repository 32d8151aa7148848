// Package buildrange implements an ordered range of candidate builds whose
// BuildInfos are only resolved when needed.
package buildrange

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"go.buildbisect.org/infra/bisection/go/buildinfo"
	"go.buildbisect.org/infra/go/skerr"
	"go.buildbisect.org/infra/go/sklog"
)

var (
	// ErrInterrupted is returned when the interrupt func asked to stop.
	ErrInterrupted = errors.New("interrupted")

	// ErrNotInRange is returned by Index for a BuildInfo no resolved slot
	// holds.
	ErrNotInRange = errors.New("build not in range")
)

// InterruptFunc is polled between resolution batches. Returning true stops
// the work in progress with ErrInterrupted.
type InterruptFunc func() bool

// BuildRange is an ordered list of Futures. Slicing and deleting return new
// ranges that share the Futures of the original one.
//
// A BuildRange is not safe for concurrent mutation. Resolving slots from
// several goroutines is fine.
type BuildRange struct {
	resolver Resolver
	futures  []*Future
}

// New returns a BuildRange of unresolved candidates.
func New(resolver Resolver, candidates []buildinfo.Candidate) *BuildRange {
	futures := make([]*Future, 0, len(candidates))
	for _, c := range candidates {
		futures = append(futures, NewFuture(resolver, c))
	}
	return FromFutures(resolver, futures)
}

// FromFutures returns a BuildRange of the given Futures.
func FromFutures(resolver Resolver, futures []*Future) *BuildRange {
	return &BuildRange{
		resolver: resolver,
		futures:  futures,
	}
}

// Resolver returns the resolver of the range.
func (r *BuildRange) Resolver() Resolver {
	return r.resolver
}

// Len returns the number of slots.
func (r *BuildRange) Len() int {
	return len(r.futures)
}

// Future returns the slot at index i. Negative indexes count from the end.
func (r *BuildRange) Future(i int) *Future {
	if i < 0 {
		i += len(r.futures)
	}
	return r.futures[i]
}

// Get resolves the slot at index i if needed. It returns (nil, nil) if the
// slot has no build.
func (r *BuildRange) Get(ctx context.Context, i int) (*buildinfo.BuildInfo, error) {
	return r.Future(i).BuildInfo(ctx)
}

// Slice returns the range of slots [lo, hi).
func (r *BuildRange) Slice(lo, hi int) *BuildRange {
	futures := make([]*Future, hi-lo)
	copy(futures, r.futures[lo:hi])
	return FromFutures(r.resolver, futures)
}

// Deleted returns a range without the slot at index i.
func (r *BuildRange) Deleted(i int) *BuildRange {
	futures := make([]*Future, 0, len(r.futures)-1)
	futures = append(futures, r.futures[:i]...)
	futures = append(futures, r.futures[i+1:]...)
	return FromFutures(r.resolver, futures)
}

// FilterInvalid removes, in place, the slots known to have no build.
func (r *BuildRange) FilterInvalid() {
	futures := r.futures[:0:0]
	for _, f := range r.futures {
		if f.IsValid() {
			futures = append(futures, f)
		}
	}
	r.futures = futures
}

// fetch resolves the slots at the given indexes concurrently, one worker per
// slot, and waits for all of them. Nothing is started if all are resolved.
func (r *BuildRange) fetch(ctx context.Context, indexes ...int) error {
	uniq := map[int]bool{}
	needFetch := false
	for _, i := range indexes {
		if i < 0 {
			i += len(r.futures)
		}
		uniq[i] = true
		if !r.futures[i].IsAvailable() {
			needFetch = true
		}
	}
	if !needFetch {
		return nil
	}
	var g errgroup.Group
	for i := range uniq {
		f := r.futures[i]
		g.Go(func() error {
			_, err := f.BuildInfo(ctx)
			return err
		})
	}
	return g.Wait()
}

// MidPoint returns the index of the middle of the range. The endpoints and
// the middle are resolved, and slots without build are removed until these
// three slots are all valid. Ranges of less than 3 slots are fully resolved
// and 0 is returned.
func (r *BuildRange) MidPoint(ctx context.Context, interrupt InterruptFunc) (int, error) {
	for {
		if interrupt != nil && interrupt() {
			return 0, ErrInterrupted
		}
		size := r.Len()
		if size < 3 {
			indexes := make([]int, size)
			for i := range indexes {
				indexes[i] = i
			}
			if err := r.fetch(ctx, indexes...); err != nil {
				return 0, err
			}
			r.FilterInvalid()
			return 0, nil
		}
		mid := size / 2
		if err := r.fetch(ctx, 0, mid, size-1); err != nil {
			return 0, err
		}
		r.FilterInvalid()
		if r.Len() == size {
			return mid, nil
		}
	}
}

// Index returns the index of the slot resolved to b. Only resolved slots are
// looked at.
func (r *BuildRange) Index(b *buildinfo.BuildInfo) (int, error) {
	for i, f := range r.futures {
		if f.IsAvailable() && f.resolvedInfo() == b {
			return i, nil
		}
	}
	return -1, skerr.Wrapf(ErrNotInRange, "%s", b)
}

// RangeFunc builds the range of size slots before or after a slot.
type RangeFunc func(ctx context.Context, f *Future, size int) (*BuildRange, error)

// search resolves the slots of r, batch by batch, until the slot at index
// (0 or -1) is valid.
func search(ctx context.Context, r *BuildRange, index int, batch func(size int) []int, interrupt InterruptFunc) (*Future, error) {
	for r.Len() > 0 {
		if interrupt != nil && interrupt() {
			return nil, ErrInterrupted
		}
		f := r.Future(index)
		if f.IsAvailable() && f.IsValid() {
			return f, nil
		}
		if err := r.fetch(ctx, batch(r.Len())...); err != nil {
			return nil, err
		}
		r.FilterInvalid()
	}
	return nil, nil
}

func firstThree(size int) []int {
	rv := []int{}
	for i := 0; i < size && i < 3; i++ {
		rv = append(rv, i)
	}
	return rv
}

func lastThree(size int) []int {
	rv := []int{}
	for i := size - 3; i < size; i++ {
		if i >= 0 {
			rv = append(rv, i)
		}
	}
	return rv
}

// CheckExpand makes sure both endpoints of the range have a build. An
// endpoint without build is replaced by the nearest valid build found in the
// expand slots outside of the range, searched three at a time.
func (r *BuildRange) CheckExpand(ctx context.Context, expand int, before, after RangeFunc, interrupt InterruptFunc) error {
	if r.Len() < 2 {
		return nil
	}
	first, last := r.Future(0), r.Future(-1)
	if err := r.fetch(ctx, 0, -1); err != nil {
		return err
	}
	r.FilterInvalid()
	if r.Len() < 2 {
		return nil
	}

	if r.Future(0) != first {
		br, err := before(ctx, first, expand)
		if err != nil {
			return err
		}
		newFirst, err := search(ctx, br, -1, lastThree, interrupt)
		if err != nil {
			return err
		}
		if newFirst != nil {
			sklog.Infof("Expanding lower limit of the range to %s", newFirst)
			r.futures = append([]*Future{newFirst}, r.futures...)
		} else {
			sklog.Errorf("First build %s is missing, but no build can be found before it, so it is excluded, but it could contain the regression!", first)
		}
	}
	if r.Future(-1) != last {
		br, err := after(ctx, last, expand)
		if err != nil {
			return err
		}
		newLast, err := search(ctx, br, 0, firstThree, interrupt)
		if err != nil {
			return err
		}
		if newLast != nil {
			sklog.Infof("Expanding higher limit of the range to %s", newLast)
			r.futures = append(r.futures, newLast)
		} else {
			sklog.Errorf("Last build %s is missing, but no build can be found after it, so it is excluded, but it could contain the regression!", last)
		}
	}
	return nil
}
