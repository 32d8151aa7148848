package bisector

import (
	"context"

	"golang.org/x/sync/errgroup"

	"go.buildbisect.org/infra/bisection/go/buildinfo"
	"go.buildbisect.org/infra/bisection/go/buildrange"
	"go.buildbisect.org/infra/go/sklog"
)

// indexPromise prefetches the builds which become the middle of the range
// after a good or a bad verdict on the build at index. Resolving them may
// remove slots from the range, so the range must not be read until Join
// returned the new index of the build.
type indexPromise struct {
	done  chan struct{}
	index int
	err   error
}

func newIndexPromise(ctx context.Context, r *buildrange.BuildRange, index int, info *buildinfo.BuildInfo, dl Downloader) *indexPromise {
	p := &indexPromise{
		done:  make(chan struct{}),
		index: index,
	}
	after := r.Slice(index, r.Len())
	before := r.Slice(0, index+1)
	go func() {
		defer close(p.done)
		var g errgroup.Group
		for _, next := range []*buildrange.BuildRange{after, before} {
			next := next
			g.Go(func() error {
				mid, err := next.MidPoint(ctx, nil)
				if err != nil {
					sklog.Warningf("Unable to prefetch a build: %s", err)
					return nil
				}
				if next.Len() == 0 {
					return nil
				}
				b, err := next.Get(ctx, mid)
				if err != nil || b == nil {
					return nil
				}
				dl.Background(ctx, b)
				return nil
			})
		}
		_ = g.Wait()
		r.FilterInvalid()
		p.index, p.err = r.Index(info)
	}()
	return p
}

// Join waits for the prefetch and returns the index of the build.
func (p *indexPromise) Join() (int, error) {
	<-p.done
	return p.index, p.err
}
