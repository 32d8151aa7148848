package mocks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.buildbisect.org/infra/bisection/go/buildinfo"
	"go.buildbisect.org/infra/bisection/go/fetchconfig"
	"go.buildbisect.org/infra/go/skerr"
)

// Epoch is the day of the candidate of index 0 of Candidates.
var Epoch = time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)

// Candidates returns n daily candidates starting at Epoch.
func Candidates(n int) []buildinfo.Candidate {
	rv := make([]buildinfo.Candidate, 0, n)
	for i := 0; i < n; i++ {
		rv = append(rv, buildinfo.DateCandidate(Epoch.AddDate(0, 0, i)))
	}
	return rv
}

// Index returns the position of a candidate of Candidates.
func Index(c buildinfo.Candidate) int {
	return int(c.Date.Sub(Epoch) / (24 * time.Hour))
}

// FakeResolver resolves the candidates of Candidates to nightly firefox
// builds, except the ones marked missing.
type FakeResolver struct {
	mtx     sync.Mutex
	fc      fetchconfig.FetchConfig
	missing map[int]bool
	failing map[int]error
	calls   map[int]int
}

// NewFakeResolver returns a FakeResolver where the given indexes have no
// build.
func NewFakeResolver(missing ...int) *FakeResolver {
	fc, err := fetchconfig.Create("firefox", "linux", 64)
	if err != nil {
		panic(err)
	}
	f := &FakeResolver{
		fc:      fc,
		missing: map[int]bool{},
		failing: map[int]error{},
		calls:   map[int]int{},
	}
	for _, i := range missing {
		f.missing[i] = true
	}
	return f
}

// FetchConfig returns the configuration of the builds.
func (f *FakeResolver) FetchConfig() fetchconfig.FetchConfig {
	return f.fc
}

// Fail makes the resolution of index i fail with err.
func (f *FakeResolver) Fail(i int, err error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	f.failing[i] = err
}

// Resolve implements buildrange.Resolver.
func (f *FakeResolver) Resolve(_ context.Context, c buildinfo.Candidate) (*buildinfo.BuildInfo, error) {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	i := Index(c)
	f.calls[i]++
	if err := f.failing[i]; err != nil {
		return nil, err
	}
	if f.missing[i] {
		return nil, skerr.Wrapf(buildinfo.ErrNotFound, "no build for %d", i)
	}
	url := fmt.Sprintf("https://archive.example.org/pub/firefox/nightly/%s/firefox-38.0a1.en-US.linux-x86_64.tar.bz2", c)
	return buildinfo.New(f.fc, fetchconfig.BuildTypeNightly, url, c.Date, fmt.Sprintf("%012d", i), "https://hg.example.org/mozilla-central", "mozilla-central"), nil
}

// Calls returns how many times index i was resolved.
func (f *FakeResolver) Calls(i int) int {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	return f.calls[i]
}

// TotalCalls returns the number of resolutions.
func (f *FakeResolver) TotalCalls() int {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	rv := 0
	for _, n := range f.calls {
		rv += n
	}
	return rv
}
