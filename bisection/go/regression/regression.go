// Package regression chains the bisections needed to find a regression:
// nightly builds first, then the integration builds of the last nightly
// day, then the branch a merge came from.
package regression

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/kballard/go-shellquote"

	"go.buildbisect.org/infra/bisection/go/bisector"
	"go.buildbisect.org/infra/bisection/go/branches"
	"go.buildbisect.org/infra/bisection/go/buildinfo"
	"go.buildbisect.org/infra/bisection/go/buildrange"
	"go.buildbisect.org/infra/bisection/go/dates"
	"go.buildbisect.org/infra/bisection/go/fetchconfig"
	"go.buildbisect.org/infra/bisection/go/resolve"
	"go.buildbisect.org/infra/go/pushlog"
	"go.buildbisect.org/infra/go/skerr"
	"go.buildbisect.org/infra/go/sklog"
	"go.buildbisect.org/infra/go/timer"
)

// COMMAND is the program name printed in resume hints.
const COMMAND = "bisect"

// Options configures a Regression.
type Options struct {
	FindFix bool

	// Integration searches integration builds even between dates.
	Integration bool

	// Expand is used when a nightly search is refined with integration
	// builds. See buildrange.IntegrationOptions.
	Expand int

	// TimeLimit is how long integration builds are kept.
	TimeLimit time.Duration

	Bisector bisector.Options
}

// Outcome is the end of the last bisection run.
type Outcome struct {
	Result     bisector.Result
	Handler    string
	Boundary   bisector.Boundary
	PushlogURL string
}

// Regression runs the bisections of one application.
type Regression struct {
	fc       fetchconfig.FetchConfig
	registry *branches.Registry
	client   *http.Client
	dl       bisector.Downloader
	runner   bisector.TestRunner
	bisector *bisector.Bisector
	opts     Options

	nightlyResolver     func() (buildrange.Resolver, error)
	integrationResolver func() (buildrange.Resolver, error)
}

// New returns a Regression.
func New(fc fetchconfig.FetchConfig, registry *branches.Registry, c *http.Client, dl bisector.Downloader, runner bisector.TestRunner, opts Options) *Regression {
	r := &Regression{
		fc:       fc,
		registry: registry,
		client:   c,
		dl:       dl,
		runner:   runner,
		bisector: bisector.New(dl, runner, opts.Bisector),
		opts:     opts,
	}
	r.nightlyResolver = func() (buildrange.Resolver, error) {
		return resolve.NewNightly(r.fc, r.client)
	}
	r.integrationResolver = func() (buildrange.Resolver, error) {
		return resolve.NewIntegration(r.fc, r.registry, r.client)
	}
	return r
}

// Bisect finds the first bad build between good and bad, both dates or
// both changesets.
func (r *Regression) Bisect(ctx context.Context, good, bad dates.Bound) (*Outcome, error) {
	if good.IsDate() != bad.IsDate() {
		return nil, skerr.Fmt("good (%s) and bad (%s) must both be dates or both be changesets", good, bad)
	}
	if good.IsDate() && r.fc.IsNightly() && !r.opts.Integration {
		return r.bisectNightlies(ctx, good, bad)
	}
	if !r.fc.IsIntegration() {
		return nil, skerr.Fmt("%s has no integration builds, use dates to search nightly builds", r.fc.AppName())
	}
	return r.bisectIntegration(ctx, good, bad, 0)
}

func (r *Regression) run(ctx context.Context, h bisector.Handler, good, bad dates.Bound) (*Outcome, error) {
	defer timer.New(h.Name() + " bisection").Stop()
	result, err := r.bisector.Bisect(ctx, h, good, bad)
	o := &Outcome{
		Result:     result,
		Handler:    h.Name(),
		Boundary:   h.Boundary(),
		PushlogURL: h.PushlogURL(),
	}
	if result == bisector.UserExit || (err != nil && !errors.Is(err, bisector.ErrGoodBadExpectation)) {
		r.printResume(h)
	}
	if result == bisector.NoData {
		sklog.Errorf("There are no build artifacts for these %s builds.", h.Name())
	}
	return o, err
}

func (r *Regression) bisectNightlies(ctx context.Context, good, bad dates.Bound) (*Outcome, error) {
	res, err := r.nightlyResolver()
	if err != nil {
		return nil, err
	}
	h := bisector.NewNightlyHandler(res, r.opts.FindFix)
	o, err := r.run(ctx, h, good, bad)
	if err != nil || o.Result != bisector.Finished || !r.fc.CanGoIntegration() {
		return o, err
	}

	b := o.Boundary
	if b.GoodRevision == "" || b.BadRevision == "" {
		sklog.Warningf("The changesets of the last nightly builds are unknown, the search can not go further.")
		return o, nil
	}
	badDate, _, err := dates.Parse(b.Bad)
	if err != nil {
		return o, skerr.Wrapf(err, "parsing date of the first bad build")
	}
	r.fc.SetRepo(r.fc.NightlyRepo(badDate))
	sklog.Infof("Switching bisection method to %s builds", fetchconfig.BuildTypeIntegration)
	good, bad = dates.ChangesetBound(b.GoodRevision), dates.ChangesetBound(b.BadRevision)
	return r.bisectIntegration(ctx, good, bad, r.opts.Expand)
}

func (r *Regression) integrationHandler(expand int) (*bisector.IntegrationHandler, error) {
	res, err := r.integrationResolver()
	if err != nil {
		return nil, err
	}
	opts := buildrange.IntegrationOptions{
		TimeLimit: r.opts.TimeLimit,
		Expand:    expand,
		Interrupt: r.opts.Bisector.Interrupt,
	}
	return bisector.NewIntegrationHandler(res, r.registry, r.fc.Repo(), r.client, r.opts.FindFix, opts), nil
}

func (r *Regression) bisectIntegration(ctx context.Context, good, bad dates.Bound, expand int) (*Outcome, error) {
	for {
		h, err := r.integrationHandler(expand)
		if err != nil {
			return nil, err
		}
		o, err := r.run(ctx, h, good, bad)
		if err != nil || o.Result != bisector.Finished {
			return o, err
		}
		if b := o.Boundary; b.GoodRevision != "" && b.GoodRevision == b.BadRevision {
			sklog.Warningf("It seems that the good and bad changesets are in the same push (%s). Check the pushlog url.", b.Good)
			return o, nil
		}
		cont, err := h.HandleMerge(ctx)
		if err != nil {
			o.Result = bisector.Exception
			return o, skerr.Wrapf(err, "handling the merge of %s", o.Boundary.Bad)
		}
		if cont == nil {
			return o, nil
		}
		r.fc.SetRepo(cont.Branch)
		good, bad = dates.ChangesetBound(cont.Good), dates.ChangesetBound(cont.Bad)
	}
}

// ResumeArgs returns the arguments starting again the search of a handler
// from its current boundary.
func ResumeArgs(app, handler string, b bisector.Boundary) []string {
	args := []string{"--app", app, "--good", b.Good, "--bad", b.Bad}
	if handler != "nightly" {
		args = append(args, "--repo", b.Branch)
	}
	if b.FindFix {
		args = append(args, "--find-fix")
	}
	return args
}

func (r *Regression) printResume(h bisector.Handler) {
	b := h.Boundary()
	if b.Good == "" || b.Bad == "" {
		return
	}
	args := append([]string{COMMAND}, ResumeArgs(r.fc.AppName(), h.Name(), b)...)
	sklog.Infof("To resume, run:\n%s", shellquote.Join(args...))
}

// Launch downloads and tests the build of a single date or changeset.
func (r *Regression) Launch(ctx context.Context, at dates.Bound) (bisector.Verdict, *buildinfo.BuildInfo, error) {
	info, err := r.resolveOne(ctx, at)
	if err != nil {
		return bisector.Exit, nil, err
	}
	if err := r.dl.Focus(ctx, info); err != nil {
		return bisector.Exit, info, skerr.Wrapf(err, "downloading %s", info)
	}
	sklog.Infof("Running %s", info)
	verdict, err := r.runner.Evaluate(ctx, info, false)
	if err != nil {
		return bisector.Exit, info, skerr.Wrapf(err, "running %s", info)
	}
	return verdict, info, nil
}

func (r *Regression) resolveOne(ctx context.Context, at dates.Bound) (*buildinfo.BuildInfo, error) {
	if at.IsDate() && r.fc.IsNightly() && !r.opts.Integration {
		res, err := r.nightlyResolver()
		if err != nil {
			return nil, err
		}
		return res.Resolve(ctx, buildinfo.Candidate{Date: at.Date, HasTime: at.HasTime})
	}
	if !r.fc.IsIntegration() {
		return nil, skerr.Fmt("%s has no integration builds", r.fc.AppName())
	}
	u, err := r.registry.URL(r.fc.Repo())
	if err != nil {
		return nil, err
	}
	repo := pushlog.NewRepo(r.registry.Name(r.fc.Repo()), u, r.client)
	push, err := repo.Push(ctx, at.Ref(), false)
	if err != nil {
		return nil, skerr.Wrapf(err, "looking for the push of %s", at)
	}
	res, err := r.integrationResolver()
	if err != nil {
		return nil, err
	}
	return res.Resolve(ctx, buildinfo.PushCandidate(push))
}
