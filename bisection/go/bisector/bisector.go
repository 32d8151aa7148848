package bisector

import (
	"context"

	"go.buildbisect.org/infra/bisection/go/dates"
	"go.buildbisect.org/infra/go/skerr"
	"go.buildbisect.org/infra/go/sklog"
)

// Bisector runs Bisections with a downloader and a test runner.
type Bisector struct {
	dl     Downloader
	runner TestRunner
	opts   Options
}

// New returns a Bisector.
func New(dl Downloader, runner TestRunner, opts Options) *Bisector {
	return &Bisector{
		dl:     dl,
		runner: runner,
		opts:   opts,
	}
}

// Bisect searches the builds of handler between good and bad.
func (b *Bisector) Bisect(ctx context.Context, handler Handler, good, bad dates.Bound) (Result, error) {
	sklog.Infof("Getting %s builds between %s and %s", handler.Name(), good, bad)
	r, err := handler.BuildRange(ctx, good, bad)
	if err != nil {
		return Exception, skerr.Wrapf(err, "building the %s range", handler.Name())
	}
	if r.Len() == 0 {
		sklog.Infof("There are no %s builds between %s and %s", handler.Name(), good, bad)
		return NoData, nil
	}
	result, err := NewBisection(handler, r, b.dl, b.runner, b.opts).Search(ctx)
	if err != nil {
		sklog.Errorf("The %s bisection failed: %s", handler.Name(), err)
	}
	return result, err
}
