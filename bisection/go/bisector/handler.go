package bisector

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"go.buildbisect.org/infra/bisection/go/branches"
	"go.buildbisect.org/infra/bisection/go/buildinfo"
	"go.buildbisect.org/infra/bisection/go/buildrange"
	"go.buildbisect.org/infra/bisection/go/dates"
	"go.buildbisect.org/infra/go/pushlog"
	"go.buildbisect.org/infra/go/skerr"
)

// Handler knows the kind of builds a Bisection runs on.
type Handler interface {
	// Name describes the builds, e.g. "nightly".
	Name() string

	// FindFix is true when the good builds come after the bad ones.
	FindFix() bool

	// BuildRange returns the range of builds between good and bad.
	BuildRange(ctx context.Context, good, bad dates.Bound) (*buildrange.BuildRange, error)

	// SetRange records the endpoints of the current range. They must be
	// resolved.
	SetRange(ctx context.Context, r *buildrange.BuildRange) error

	// Boundary returns the last known good and bad builds.
	Boundary() Boundary

	// PushlogURL returns the url of the changes between the good and bad
	// builds.
	PushlogURL() string
}

// MergeHandler is implemented by handlers which can continue a finished
// search on the branch a merge came from.
type MergeHandler interface {
	Handler

	// HandleMerge returns where to continue the search, or nil if the
	// first bad build is not a merge.
	HandleMerge(ctx context.Context) (*Continuation, error)
}

// Boundary is enough to start again a search stopped early.
type Boundary struct {
	// Good and Bad are dates for nightly builds and changesets otherwise.
	Good string
	Bad  string

	GoodRevision string
	BadRevision  string
	Branch       string
	RepoURL      string
	FindFix      bool
}

// Continuation is a search to run on another branch.
type Continuation struct {
	Branch string
	Good   string
	Bad    string
}

// baseHandler holds what both handlers record about the range.
type baseHandler struct {
	findFix bool
	good    *buildinfo.BuildInfo
	bad     *buildinfo.BuildInfo
	r       *buildrange.BuildRange
	repoURL string
}

func (h *baseHandler) FindFix() bool {
	return h.findFix
}

func (h *baseHandler) SetRange(ctx context.Context, r *buildrange.BuildRange) error {
	h.r = r
	if r.Len() == 0 {
		return nil
	}
	first, err := r.Get(ctx, 0)
	if err != nil {
		return skerr.Wrap(err)
	}
	last, err := r.Get(ctx, -1)
	if err != nil {
		return skerr.Wrap(err)
	}
	if h.findFix {
		first, last = last, first
	}
	if first != nil {
		h.good = first
	}
	if last != nil {
		h.bad = last
	}
	for _, b := range []*buildinfo.BuildInfo{h.bad, h.good} {
		if b != nil && b.RepoURL != "" {
			h.repoURL = b.RepoURL
			break
		}
	}
	return nil
}

// ordered returns the bounds from the oldest to the newest.
func (h *baseHandler) ordered(good, bad dates.Bound) (dates.Bound, dates.Bound) {
	if h.findFix {
		return bad, good
	}
	return good, bad
}

func (h *baseHandler) revisions() (string, string) {
	var good, bad string
	if h.good != nil {
		good = h.good.Changeset
	}
	if h.bad != nil {
		bad = h.bad.Changeset
	}
	return good, bad
}

func (h *baseHandler) boundary() Boundary {
	good, bad := h.revisions()
	b := Boundary{
		Good:         good,
		Bad:          bad,
		GoodRevision: good,
		BadRevision:  bad,
		RepoURL:      h.repoURL,
		FindFix:      h.findFix,
	}
	if h.bad != nil {
		b.Branch = h.bad.RepoName
	}
	return b
}

// pushlogURL returns the pushlog of the changes from first to last, or ""
// if they are unknown.
func (h *baseHandler) pushlogURL() string {
	first, last := h.revisions()
	if h.findFix {
		first, last = last, first
	}
	if h.repoURL == "" || first == "" || last == "" {
		return ""
	}
	q := url.Values{}
	if first == last {
		q.Set("changeset", last)
	} else {
		q.Set("fromchange", first)
		q.Set("tochange", last)
	}
	return fmt.Sprintf("%s/pushloghtml?%s", h.repoURL, q.Encode())
}

// NightlyHandler runs on one build per day.
type NightlyHandler struct {
	baseHandler
	resolver buildrange.Resolver
}

// NewNightlyHandler returns a NightlyHandler.
func NewNightlyHandler(resolver buildrange.Resolver, findFix bool) *NightlyHandler {
	return &NightlyHandler{
		baseHandler: baseHandler{findFix: findFix},
		resolver:    resolver,
	}
}

// Name implements Handler.
func (h *NightlyHandler) Name() string {
	return "nightly"
}

// BuildRange implements Handler.
func (h *NightlyHandler) BuildRange(_ context.Context, good, bad dates.Bound) (*buildrange.BuildRange, error) {
	start, end := h.ordered(good, bad)
	return buildrange.Nightly(h.resolver, start, end)
}

func nightlyDate(b *buildinfo.BuildInfo) string {
	if b == nil {
		return ""
	}
	if b.HasTime {
		return b.BuildDate.Format(dates.BUILDID_FORMAT)
	}
	return b.BuildDate.Format(dates.DATE_FORMAT)
}

// Boundary implements Handler.
func (h *NightlyHandler) Boundary() Boundary {
	b := h.boundary()
	b.Good = nightlyDate(h.good)
	b.Bad = nightlyDate(h.bad)
	return b
}

// PushlogURL implements Handler. Without changesets, the pushlog of the
// dates is used.
func (h *NightlyHandler) PushlogURL() string {
	if u := h.pushlogURL(); u != "" {
		return u
	}
	if h.repoURL == "" || h.good == nil || h.bad == nil {
		return ""
	}
	first, last := h.good.BuildDate, h.bad.BuildDate
	if h.findFix {
		first, last = last, first
	}
	q := url.Values{}
	q.Set("startdate", first.Format(dates.DATE_FORMAT))
	q.Set("enddate", last.Format(dates.DATE_FORMAT))
	return fmt.Sprintf("%s/pushloghtml?%s", h.repoURL, q.Encode())
}

// IntegrationHandler runs on one build per push of a branch.
type IntegrationHandler struct {
	baseHandler
	resolver buildrange.Resolver
	registry *branches.Registry
	client   *http.Client
	branch   string
	opts     buildrange.IntegrationOptions
}

// NewIntegrationHandler returns an IntegrationHandler for the pushes of
// branch.
func NewIntegrationHandler(resolver buildrange.Resolver, registry *branches.Registry, branch string, c *http.Client, findFix bool, opts buildrange.IntegrationOptions) *IntegrationHandler {
	return &IntegrationHandler{
		baseHandler: baseHandler{findFix: findFix},
		resolver:    resolver,
		registry:    registry,
		client:      c,
		branch:      registry.Name(branch),
		opts:        opts,
	}
}

// Name implements Handler.
func (h *IntegrationHandler) Name() string {
	return "integration"
}

// Branch returns the branch of the pushes.
func (h *IntegrationHandler) Branch() string {
	return h.branch
}

func (h *IntegrationHandler) repo(branch string) (*pushlog.Repo, error) {
	u, err := h.registry.URL(branch)
	if err != nil {
		return nil, err
	}
	return pushlog.NewRepo(h.registry.Name(branch), u, h.client), nil
}

// BuildRange implements Handler.
func (h *IntegrationHandler) BuildRange(ctx context.Context, good, bad dates.Bound) (*buildrange.BuildRange, error) {
	repo, err := h.repo(h.branch)
	if err != nil {
		return nil, err
	}
	h.repoURL = repo.URL
	start, end := h.ordered(good, bad)
	return buildrange.Integration(ctx, h.resolver, repo, start, end, h.opts)
}

// Boundary implements Handler.
func (h *IntegrationHandler) Boundary() Boundary {
	b := h.boundary()
	b.Branch = h.branch
	return b
}

// PushlogURL implements Handler.
func (h *IntegrationHandler) PushlogURL() string {
	return h.pushlogURL()
}

var _ MergeHandler = (*IntegrationHandler)(nil)
