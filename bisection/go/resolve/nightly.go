// Package resolve turns candidates into BuildInfos by probing the archive
// servers.
package resolve

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/errgroup"

	"go.buildbisect.org/infra/bisection/go/buildinfo"
	"go.buildbisect.org/infra/bisection/go/fetchconfig"
	"go.buildbisect.org/infra/go/httputils"
	"go.buildbisect.org/infra/go/skerr"
	"go.buildbisect.org/infra/go/sklog"
)

const (
	// MONTH_CACHE_SIZE is the number of month listings kept in memory.
	MONTH_CACHE_SIZE = 24

	// NIGHTLY_WORKERS is the number of build folders of a day probed at once.
	NIGHTLY_WORKERS = 2
)

// Nightly finds nightly builds. There may be several build folders for one
// day and some of them are broken, so the most recent valid one is used.
type Nightly struct {
	client         *http.Client
	fc             fetchconfig.FetchConfig
	months         *lru.Cache
	buildRegex     *regexp.Regexp
	buildInfoRegex *regexp.Regexp

	// FetchTxtInfo controls whether the build metadata file is read to find
	// the changeset of the build.
	FetchTxtInfo bool
}

// NewNightly returns a Nightly resolver.
func NewNightly(fc fetchconfig.FetchConfig, c *http.Client) (*Nightly, error) {
	if c == nil {
		c = httputils.NewTimeoutClient()
	}
	months, err := lru.New(MONTH_CACHE_SIZE)
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	buildRegex, err := regexp.Compile(fc.BuildRegex())
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	buildInfoRegex, err := regexp.Compile(fc.BuildInfoRegex())
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	return &Nightly{
		client:         c,
		fc:             fc,
		months:         months,
		buildRegex:     buildRegex,
		buildInfoRegex: buildInfoRegex,
		FetchTxtInfo:   true,
	}, nil
}

func (n *Nightly) monthLinks(ctx context.Context, url string) ([]string, error) {
	if v, ok := n.months.Get(url); ok {
		return v.([]string), nil
	}
	links, err := urlLinks(ctx, n.client, url, nil)
	if err != nil {
		return nil, err
	}
	n.months.Add(url, links)
	return links, nil
}

// folders returns the build folder urls of the candidate day, most recent
// first.
func (n *Nightly) folders(ctx context.Context, c buildinfo.Candidate) ([]string, error) {
	base, err := n.fc.NightlyBaseURL(c.Date)
	if err != nil {
		return nil, err
	}
	links, err := n.monthLinks(ctx, base)
	if err != nil {
		return nil, err
	}
	re, err := regexp.Compile(n.fc.NightlyRepoRegex(c.Date))
	if err != nil {
		return nil, skerr.Wrap(err)
	}
	rv := []string{}
	for i := len(links) - 1; i >= 0; i-- {
		if re.MatchString(links[i]) {
			rv = append(rv, base+links[i])
		}
	}
	return rv, nil
}

type folderInfo struct {
	buildURL string
	txtURL   string
}

func (n *Nightly) probe(ctx context.Context, url string) (*folderInfo, error) {
	if !strings.HasSuffix(url, "/") {
		url += "/"
	}
	links, err := urlLinks(ctx, n.client, url, nil)
	if err != nil {
		return nil, err
	}
	info := &folderInfo{}
	for _, link := range links {
		if info.buildURL == "" && n.buildRegex.MatchString(link) {
			info.buildURL = url + link
		} else if info.txtURL == "" && n.buildInfoRegex.MatchString(link) {
			info.txtURL = url + link
		}
	}
	if info.buildURL == "" {
		return nil, nil
	}
	return info, nil
}

// Resolve implements buildrange.Resolver.
func (n *Nightly) Resolve(ctx context.Context, c buildinfo.Candidate) (*buildinfo.BuildInfo, error) {
	urls, err := n.folders(ctx, c)
	if err != nil {
		if isMissing(err) {
			return nil, skerr.Wrapf(buildinfo.ErrNotFound, "unable to find build info for %s: %s", c, err)
		}
		return nil, err
	}
	for len(urls) > 0 {
		some := urls
		if len(some) > NIGHTLY_WORKERS {
			some = some[:NIGHTLY_WORKERS]
		}
		urls = urls[len(some):]

		found := make([]*folderInfo, len(some))
		var g errgroup.Group
		for i, url := range some {
			i, url := i, url
			g.Go(func() error {
				info, err := n.probe(ctx, url)
				if err != nil {
					if isMissing(err) {
						sklog.Debugf("Skipping %s: %s", url, err)
						return nil
					}
					return err
				}
				found[i] = info
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
		for _, info := range found {
			if info != nil {
				return n.buildInfo(ctx, c, info), nil
			}
		}
	}
	return nil, skerr.Wrapf(buildinfo.ErrNotFound, "unable to find build info for %s", c)
}

func (n *Nightly) buildInfo(ctx context.Context, c buildinfo.Candidate, info *folderInfo) *buildinfo.BuildInfo {
	var repoURL, changeset string
	if n.FetchTxtInfo && info.txtURL != "" {
		text, err := getText(ctx, n.client, info.txtURL)
		if err != nil {
			sklog.Warningf("Unable to read build metadata %s: %s", info.txtURL, err)
		} else {
			repoURL, changeset = parseTxtInfo(text)
		}
	}
	b := buildinfo.New(n.fc, fetchconfig.BuildTypeNightly, info.buildURL, c.Date, changeset, repoURL, n.fc.NightlyRepo(c.Date))
	b.HasTime = c.HasTime
	return b
}

// isMissing returns true for http errors that mean the resource does not
// exist or is unusable, as opposed to transport failures.
func isMissing(err error) bool {
	var se *httputils.StatusError
	return errors.As(err, &se)
}
