package buildrange

import (
	"context"
	"time"

	"go.buildbisect.org/infra/bisection/go/buildinfo"
	"go.buildbisect.org/infra/bisection/go/dates"
	"go.buildbisect.org/infra/go/now"
	"go.buildbisect.org/infra/go/pushlog"
	"go.buildbisect.org/infra/go/skerr"
	"go.buildbisect.org/infra/go/sklog"
)

const (
	// DEFAULT_EXPAND is the number of builds looked at when an endpoint of
	// an integration range has no build.
	DEFAULT_EXPAND = 20

	// DEFAULT_TIME_LIMIT is how long integration builds are kept.
	DEFAULT_TIME_LIMIT = 365 * 24 * time.Hour
)

// Nightly returns a range with one candidate per day from start to end.
// The endpoints keep their time of day, if any.
func Nightly(resolver Resolver, start, end dates.Bound) (*BuildRange, error) {
	if !start.IsDate() || !end.IsDate() {
		return nil, skerr.Fmt("nightly ranges are built from dates, got %s and %s", start, end)
	}
	first, last := dates.Truncate(start.Date), dates.Truncate(end.Date)
	if last.Before(first) {
		return nil, skerr.Fmt("%s is after %s", start, end)
	}
	candidates := []buildinfo.Candidate{}
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		candidates = append(candidates, buildinfo.DateCandidate(d))
	}
	candidates[0] = buildinfo.Candidate{Date: start.Date, HasTime: start.HasTime}
	candidates[len(candidates)-1] = buildinfo.Candidate{Date: end.Date, HasTime: end.HasTime}
	return New(resolver, candidates), nil
}

// IntegrationOptions configures Integration.
type IntegrationOptions struct {
	// TimeLimit is how far back builds are kept. Older dates are clamped.
	// Zero means DEFAULT_TIME_LIMIT.
	TimeLimit time.Duration

	// Expand is the number of pushes searched for a replacement when an
	// endpoint has no build. Zero disables the search.
	Expand int

	Interrupt InterruptFunc
}

func pushRange(ctx context.Context, resolver Resolver, repo *pushlog.Repo, startID, endID int) (*BuildRange, error) {
	pushes, err := repo.Pushes(ctx, pushlog.Query{StartID: startID, EndID: endID})
	if err != nil {
		return nil, err
	}
	candidates := make([]buildinfo.Candidate, 0, len(pushes))
	for _, p := range pushes {
		candidates = append(candidates, buildinfo.PushCandidate(p))
	}
	return New(resolver, candidates), nil
}

// PushRangeBefore returns a RangeFunc building the range of the pushes
// before a slot.
func PushRangeBefore(resolver Resolver, repo *pushlog.Repo) RangeFunc {
	return func(ctx context.Context, f *Future, size int) (*BuildRange, error) {
		id := f.Candidate().PushID - 1
		return pushRange(ctx, resolver, repo, id-size, id)
	}
}

// PushRangeAfter returns a RangeFunc building the range of the pushes after
// a slot.
func PushRangeAfter(resolver Resolver, repo *pushlog.Repo) RangeFunc {
	return func(ctx context.Context, f *Future, size int) (*BuildRange, error) {
		id := f.Candidate().PushID
		return pushRange(ctx, resolver, repo, id, id+size)
	}
}

// Integration returns the range of the pushes from start to end, both
// included.
func Integration(ctx context.Context, resolver Resolver, repo *pushlog.Repo, start, end dates.Bound, opts IntegrationOptions) (*BuildRange, error) {
	timeLimit := opts.TimeLimit
	if timeLimit == 0 {
		timeLimit = DEFAULT_TIME_LIMIT
	}
	limit := now.Now(ctx).Add(-timeLimit)
	clamp := func(b dates.Bound) dates.Bound {
		if b.IsDate() && b.Date.Before(limit) {
			sklog.Infof("Integration builds are only kept for %s. Using %s instead of %s.", timeLimit, limit.Format(dates.DATE_FORMAT), b)
			return dates.DateBound(limit)
		}
		return b
	}
	start, end = clamp(start), clamp(end)

	pushes, err := repo.PushesWithinChanges(ctx, start.Ref(), end.Ref())
	if err != nil {
		return nil, err
	}
	candidates := make([]buildinfo.Candidate, 0, len(pushes))
	for _, p := range pushes {
		candidates = append(candidates, buildinfo.PushCandidate(p))
	}
	br := New(resolver, candidates)
	if opts.Expand > 0 {
		if err := br.CheckExpand(ctx, opts.Expand, PushRangeBefore(resolver, repo), PushRangeAfter(resolver, repo), opts.Interrupt); err != nil {
			return nil, err
		}
	}
	return br, nil
}
