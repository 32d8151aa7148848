package resolve

import (
	"context"
	"net/http"
	"regexp"
	"strings"

	"go.buildbisect.org/infra/bisection/go/branches"
	"go.buildbisect.org/infra/bisection/go/buildinfo"
	"go.buildbisect.org/infra/bisection/go/fetchconfig"
	"go.buildbisect.org/infra/go/httputils"
	"go.buildbisect.org/infra/go/skerr"
)

// Integration finds the build of a push on an integration branch.
type Integration struct {
	client     *http.Client
	fc         fetchconfig.FetchConfig
	registry   *branches.Registry
	buildRegex *regexp.Regexp
}

// NewIntegration returns an Integration resolver.
func NewIntegration(fc fetchconfig.FetchConfig, registry *branches.Registry, c *http.Client) (*Integration, error) {
	if c == nil {
		c = httputils.NewTimeoutClient()
	}
	buildRegex, err := regexp.Compile(fc.BuildRegex())
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	return &Integration{
		client:     c,
		fc:         fc,
		registry:   registry,
		buildRegex: buildRegex,
	}, nil
}

// Resolve implements buildrange.Resolver.
func (r *Integration) Resolve(ctx context.Context, c buildinfo.Candidate) (*buildinfo.BuildInfo, error) {
	if !c.IsPush() {
		return nil, skerr.Fmt("integration builds are resolved from pushes, got %s", c)
	}
	url, err := r.fc.IntegrationURL(c.Push())
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	links, err := urlLinks(ctx, r.client, url, r.buildRegex)
	if err != nil {
		if isMissing(err) {
			return nil, skerr.Wrapf(buildinfo.ErrNotFound, "no build for changeset %s: %s", c, err)
		}
		return nil, err
	}
	if len(links) == 0 {
		return nil, skerr.Wrapf(buildinfo.ErrNotFound, "unable to find a build url for the changeset %s", c)
	}
	repo := r.fc.Repo()
	repoURL, err := r.registry.URL(repo)
	if err != nil {
		return nil, err
	}
	b := buildinfo.New(r.fc, fetchconfig.BuildTypeIntegration, url+links[0], c.Date, c.Changeset, repoURL, repo)
	b.HasTime = true
	return b, nil
}
