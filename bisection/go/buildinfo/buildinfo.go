// Package buildinfo holds the candidates a search is made of and the
// resolved information about one build.
package buildinfo

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"go.buildbisect.org/infra/bisection/go/dates"
	"go.buildbisect.org/infra/bisection/go/fetchconfig"
	"go.buildbisect.org/infra/go/pushlog"
)

// ErrNotFound is returned by resolvers when a candidate has no build.
var ErrNotFound = errors.New("build info not found")

// Candidate is a point of the search space: a date (nightly builds) or a
// push (integration builds).
type Candidate struct {
	Date      time.Time
	HasTime   bool
	Changeset string
	PushID    int
}

// DateCandidate returns a nightly Candidate.
func DateCandidate(t time.Time) Candidate {
	return Candidate{Date: dates.Truncate(t)}
}

// PushCandidate returns an integration Candidate.
func PushCandidate(p *pushlog.Push) Candidate {
	return Candidate{Date: p.Date, HasTime: true, Changeset: p.Changeset(), PushID: p.ID}
}

// IsPush returns true for integration candidates.
func (c Candidate) IsPush() bool {
	return c.Changeset != ""
}

// Push returns the push of an integration candidate, without its other
// changesets.
func (c Candidate) Push() *pushlog.Push {
	return &pushlog.Push{
		ID:         c.PushID,
		Date:       c.Date,
		Changesets: []*pushlog.Changeset{{Node: c.Changeset}},
	}
}

func (c Candidate) String() string {
	if c.IsPush() {
		if len(c.Changeset) > 12 {
			return c.Changeset[:12]
		}
		return c.Changeset
	}
	if c.HasTime {
		return c.Date.Format(dates.BUILDID_FORMAT)
	}
	return c.Date.Format(dates.DATE_FORMAT)
}

// BuildInfo stores what is needed to download and run a build.
type BuildInfo struct {
	fetchConfig fetchconfig.FetchConfig

	// BuildType is fetchconfig.BuildTypeNightly or BuildTypeIntegration.
	BuildType string
	BuildURL  string
	BuildDate time.Time
	// HasTime is true if BuildDate carries a meaningful time of day.
	HasTime   bool
	Changeset string
	RepoURL   string
	RepoName  string

	// BuildFile is the local path of the build, once downloaded.
	BuildFile string

	// AppVersion is filled from the running application, if known.
	AppVersion string
}

// New returns a BuildInfo.
func New(fc fetchconfig.FetchConfig, buildType, buildURL string, buildDate time.Time, changeset, repoURL, repoName string) *BuildInfo {
	return &BuildInfo{
		fetchConfig: fc,
		BuildType:   buildType,
		BuildURL:    buildURL,
		BuildDate:   buildDate,
		Changeset:   changeset,
		RepoURL:     repoURL,
		RepoName:    repoName,
	}
}

// AppName returns the application name.
func (b *BuildInfo) AppName() string {
	return b.fetchConfig.AppName()
}

// FetchConfig returns the configuration the build was found with.
func (b *BuildInfo) FetchConfig() fetchconfig.FetchConfig {
	return b.fetchConfig
}

// IsNightly returns true for nightly builds.
func (b *BuildInfo) IsNightly() bool {
	return b.BuildType == fetchconfig.BuildTypeNightly
}

// ShortChangeset returns the first 8 characters of the changeset.
func (b *BuildInfo) ShortChangeset() string {
	if len(b.Changeset) > 8 {
		return b.Changeset[:8]
	}
	return b.Changeset
}

// UpdateFromAppInfo fills the fields that archive metadata lacks, as
// reported by the running application.
func (b *BuildInfo) UpdateFromAppInfo(changeset, repoURL, version string) {
	if b.Changeset == "" {
		b.Changeset = changeset
	}
	if b.RepoURL == "" {
		b.RepoURL = repoURL
	}
	if version != "" {
		b.AppVersion = version
	}
}

// Candidate returns the key the build is persisted under.
func (b *BuildInfo) Candidate() Candidate {
	if b.IsNightly() {
		return Candidate{Date: b.BuildDate, HasTime: b.HasTime}
	}
	return Candidate{Date: b.BuildDate, HasTime: true, Changeset: b.Changeset}
}

func (b *BuildInfo) persistPrefix(c Candidate) string {
	var prefix, persistPart string
	if b.IsNightly() {
		if c.HasTime {
			prefix = c.Date.Format(dates.TIMESTAMP_FORMAT)
		} else {
			prefix = c.Date.Format(dates.DATE_FORMAT)
		}
	} else {
		prefix = c.Changeset
		if len(prefix) > 12 {
			prefix = prefix[:12]
		}
		persistPart = b.fetchConfig.IntegrationPersistPart()
	}
	if persistPart != "" {
		persistPart = "-" + persistPart
	}
	extra := b.fetchConfig.ExtraPersistPart()
	if extra != "" {
		extra += "--"
	}
	return fmt.Sprintf("%s%s--%s--%s", prefix, persistPart, b.RepoName, extra)
}

// PersistPatternFor returns a regex matching the file name the build of c
// would be persisted under. Only the build name may differ, following the
// fetch configuration build regex, e.g.
//
//	^2015-01-11--mozilla-central--firefox.*linux-x86_64\.tar\.(bz2|xz)$
func (b *BuildInfo) PersistPatternFor(c Candidate) string {
	return "^" + regexp.QuoteMeta(b.persistPrefix(c)) + b.fetchConfig.BuildRegex()
}

// PersistFilenameFor returns the file name the build of c is persisted
// under, using this build's file name.
func (b *BuildInfo) PersistFilenameFor(c Candidate) string {
	return b.persistPrefix(c) + b.basename()
}

// PersistFilename returns the file name this build is persisted under.
func (b *BuildInfo) PersistFilename() string {
	return b.PersistFilenameFor(b.Candidate())
}

func (b *BuildInfo) basename() string {
	p := b.BuildURL
	if u, err := url.Parse(b.BuildURL); err == nil {
		p = u.EscapedPath()
	}
	p = strings.ReplaceAll(p, "%2F", "/")
	return path.Base(p)
}

func (b *BuildInfo) String() string {
	if b.IsNightly() {
		return b.Candidate().String()
	}
	return b.ShortChangeset()
}
