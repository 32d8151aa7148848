package buildrange

import (
	"context"
	"errors"
	"sync"

	"go.buildbisect.org/infra/bisection/go/buildinfo"
	"go.buildbisect.org/infra/go/skerr"
	"go.buildbisect.org/infra/go/sklog"
)

// Resolver finds the BuildInfo of a candidate. It returns an error wrapping
// buildinfo.ErrNotFound if the candidate has no build.
type Resolver interface {
	Resolve(ctx context.Context, c buildinfo.Candidate) (*buildinfo.BuildInfo, error)
}

type state int

const (
	unresolved state = iota
	resolved
	invalid
)

// Future is one slot of a BuildRange: a candidate and, once resolved, its
// BuildInfo or the knowledge that it has none. Futures are shared by the
// ranges sliced from the same range, so a candidate is only resolved once.
type Future struct {
	mtx       sync.Mutex
	candidate buildinfo.Candidate
	resolver  Resolver
	state     state
	info      *buildinfo.BuildInfo
}

// NewFuture returns an unresolved Future.
func NewFuture(resolver Resolver, c buildinfo.Candidate) *Future {
	return &Future{
		candidate: c,
		resolver:  resolver,
	}
}

// NewResolvedFuture returns a Future that is already resolved to info.
func NewResolvedFuture(resolver Resolver, c buildinfo.Candidate, info *buildinfo.BuildInfo) *Future {
	return &Future{
		candidate: c,
		resolver:  resolver,
		state:     resolved,
		info:      info,
	}
}

// Candidate returns the candidate of the slot.
func (f *Future) Candidate() buildinfo.Candidate {
	return f.candidate
}

// BuildInfo resolves the slot if needed. It returns (nil, nil) if the
// candidate has no build. Errors other than a missing build are not
// remembered, so a later call tries again.
func (f *Future) BuildInfo(ctx context.Context) (*buildinfo.BuildInfo, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	switch f.state {
	case resolved:
		return f.info, nil
	case invalid:
		return nil, nil
	}
	info, err := f.resolver.Resolve(ctx, f.candidate)
	if err != nil {
		if errors.Is(err, buildinfo.ErrNotFound) {
			sklog.Warningf("Skipping build %s: %s", f.candidate, err)
			f.state = invalid
			return nil, nil
		}
		return nil, skerr.Wrapf(err, "resolving %s", f.candidate)
	}
	f.state = resolved
	f.info = info
	return info, nil
}

// IsAvailable returns true once the slot has been resolved, whatever the
// outcome.
func (f *Future) IsAvailable() bool {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.state != unresolved
}

// IsValid returns false if the slot is known to have no build.
func (f *Future) IsValid() bool {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.state != invalid
}

// resolvedInfo returns the BuildInfo without resolving.
func (f *Future) resolvedInfo() *buildinfo.BuildInfo {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.info
}

func (f *Future) String() string {
	return f.candidate.String()
}
