package regression

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.buildbisect.org/infra/bisection/go/bisector"
	"go.buildbisect.org/infra/bisection/go/branches"
	"go.buildbisect.org/infra/bisection/go/buildinfo"
	"go.buildbisect.org/infra/bisection/go/buildrange"
	"go.buildbisect.org/infra/bisection/go/dates"
	"go.buildbisect.org/infra/bisection/go/fetchconfig"
	"go.buildbisect.org/infra/go/mockhttpclient"
)

const (
	centralURL  = "https://hg.mozilla.org/mozilla-central"
	autolandURL = "https://hg.mozilla.org/integration/autoland"
)

func day(d int) time.Time {
	return time.Date(2015, time.January, d, 0, 0, 0, 0, time.UTC)
}

// fakeResolver resolves every candidate. Nightly builds get the changeset
// "nDD".
type fakeResolver struct {
	fc       fetchconfig.FetchConfig
	noHash   bool
	mtx      sync.Mutex
	resolved []string
}

func (r *fakeResolver) Resolve(_ context.Context, c buildinfo.Candidate) (*buildinfo.BuildInfo, error) {
	r.mtx.Lock()
	r.resolved = append(r.resolved, c.String())
	r.mtx.Unlock()
	if c.IsPush() {
		p := c.Push()
		repo := r.fc.Repo()
		return buildinfo.New(r.fc, fetchconfig.BuildTypeIntegration, "https://archive.example.org/"+p.Changeset()+"/firefox.tar.bz2", p.Date, p.Changeset(), "https://hg.mozilla.org/"+repo, repo), nil
	}
	cs := fmt.Sprintf("n%02d", c.Date.Day())
	if r.noHash {
		cs = ""
	}
	info := buildinfo.New(r.fc, fetchconfig.BuildTypeNightly, "https://archive.example.org/"+c.String()+"/firefox.tar.bz2", c.Date, cs, centralURL, branches.MozillaCentral)
	return info, nil
}

type fakeDownloader struct {
	dir     string
	focused []string
}

func (d *fakeDownloader) Focus(_ context.Context, info *buildinfo.BuildInfo) error {
	info.BuildFile = d.dir + "/" + info.PersistFilename()
	d.focused = append(d.focused, info.Changeset)
	return nil
}

func (d *fakeDownloader) Background(context.Context, *buildinfo.BuildInfo) {}

func (d *fakeDownloader) Dir() string {
	return d.dir
}

// runner answers Bad for the builds in bad and Good otherwise, or Exit for
// the build named exit.
type runner struct {
	bad    map[string]bool
	exit   string
	tested []string
}

func newRunner(bad ...string) *runner {
	r := &runner{bad: map[string]bool{}}
	for _, cs := range bad {
		r.bad[cs] = true
	}
	return r
}

func (r *runner) Evaluate(_ context.Context, info *buildinfo.BuildInfo, _ bool) (bisector.Verdict, error) {
	r.tested = append(r.tested, info.Changeset)
	if info.Changeset == r.exit {
		return bisector.Exit, nil
	}
	if r.bad[info.Changeset] {
		return bisector.Bad, nil
	}
	return bisector.Good, nil
}

func setup(t *testing.T, m *mockhttpclient.URLMock, run *runner, opts Options) (*Regression, *fakeResolver, *fakeDownloader) {
	fc, err := fetchconfig.Create("firefox", "linux", 64)
	require.NoError(t, err)
	res := &fakeResolver{fc: fc}
	dl := &fakeDownloader{dir: t.TempDir()}
	r := New(fc, branches.Default(), m.Client(), dl, run, opts)
	r.nightlyResolver = func() (buildrange.Resolver, error) { return res, nil }
	r.integrationResolver = func() (buildrange.Resolver, error) { return res, nil }
	return r, res, dl
}

func mockCentralPushes(m *mockhttpclient.URLMock) {
	m.Mock(centralURL+"/json-pushes?changeset=n06", []byte(`{"100": {"changesets": ["n06"], "date": 1420588800}}`))
	m.Mock(centralURL+"/json-pushes?fromchange=n06&tochange=n07", []byte(`{
		"101": {"changesets": ["p101"], "date": 1420592400},
		"102": {"changesets": ["p102"], "date": 1420596000},
		"103": {"changesets": ["p103"], "date": 1420599600},
		"104": {"changesets": ["n07"], "date": 1420603200}
	}`))
	m.Mock(centralURL+"/json-pushes?changeset=p102&full=1", []byte(`{"102": {"date": 1420596000, "changesets": [
		{"node": "p102", "desc": "Bug 5 - Break things"}
	]}}`))
}

func TestBisect_Nightlies_ThenIntegration(t *testing.T) {
	m := mockhttpclient.NewURLMock()
	mockCentralPushes(m)
	run := newRunner("n07", "n08", "n09", "n10", "p102", "p103")
	r, _, _ := setup(t, m, run, Options{Expand: buildrange.DEFAULT_EXPAND})

	o, err := r.Bisect(context.Background(), dates.DateBound(day(1)), dates.DateBound(day(10)))
	require.NoError(t, err)
	assert.Equal(t, bisector.Finished, o.Result)
	assert.Equal(t, "integration", o.Handler)
	expected := bisector.Boundary{
		Good:         "p101",
		Bad:          "p102",
		GoodRevision: "p101",
		BadRevision:  "p102",
		Branch:       branches.MozillaCentral,
		RepoURL:      centralURL,
	}
	if diff := cmp.Diff(expected, o.Boundary); diff != "" {
		t.Errorf("boundary mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, centralURL+"/pushloghtml?fromchange=p101&tochange=p102", o.PushlogURL)
	assert.Equal(t, branches.MozillaCentral, r.fc.Repo())
	// Nightly steps, then integration steps.
	assert.Equal(t, []string{"n06", "n08", "n07", "p102", "p101"}, run.tested)
}

func TestBisect_NightliesWithoutChangesets_StopAfterNightlies(t *testing.T) {
	m := mockhttpclient.NewURLMock()
	run := newRunner()
	r, res, _ := setup(t, m, run, Options{})
	res.noHash = true

	o, err := r.Bisect(context.Background(), dates.DateBound(day(1)), dates.DateBound(day(3)))
	require.NoError(t, err)
	assert.Equal(t, bisector.Finished, o.Result)
	assert.Equal(t, "nightly", o.Handler)
	assert.Equal(t, "2015-01-02", o.Boundary.Good)
}

func TestBisect_UserExit_ReturnsBoundary(t *testing.T) {
	run := newRunner("n07", "n08", "n09", "n10")
	run.exit = "n08"
	r, _, _ := setup(t, mockhttpclient.NewURLMock(), run, Options{})

	o, err := r.Bisect(context.Background(), dates.DateBound(day(1)), dates.DateBound(day(10)))
	require.NoError(t, err)
	assert.Equal(t, bisector.UserExit, o.Result)
	assert.Equal(t, "nightly", o.Handler)
	assert.Equal(t, "2015-01-06", o.Boundary.Good)
	assert.Equal(t, "2015-01-10", o.Boundary.Bad)
}

func TestBisect_MixedBounds_Error(t *testing.T) {
	r, _, _ := setup(t, mockhttpclient.NewURLMock(), newRunner(), Options{})
	_, err := r.Bisect(context.Background(), dates.DateBound(day(1)), dates.ChangesetBound("abc"))
	require.Error(t, err)
}

func TestBisect_Changesets_MergeContinuesOnMergedBranch(t *testing.T) {
	m := mockhttpclient.NewURLMock()
	m.Mock(centralURL+"/json-pushes?changeset=g0", []byte(`{"100": {"changesets": ["g0"], "date": 1420070000}}`))
	m.Mock(centralURL+"/json-pushes?fromchange=g0&tochange=merge", []byte(`{"101": {"changesets": ["merge"], "date": 1420080000}}`))
	m.Mock(centralURL+"/json-pushes?changeset=merge&full=1", []byte(`{"101": {"date": 1420080000, "changesets": [
		{"node": "c1", "desc": "Bug 1 - one"},
		{"node": "c2", "desc": "Bug 2 - two"},
		{"node": "c3", "desc": "Bug 3 - three"},
		{"node": "merge", "desc": "Merge autoland to mozilla-central a=merge"}
	]}}`))
	m.Mock(autolandURL+"/json-pushes?changeset=c1", []byte(`{"10": {"changesets": ["c1"], "date": 1420070400}}`))
	m.Mock(autolandURL+"/json-pushes?fromchange=c1&tochange=c3", []byte(`{
		"11": {"changesets": ["c2"], "date": 1420074000},
		"12": {"changesets": ["c3"], "date": 1420077600}
	}`))
	m.Mock(autolandURL+"/json-pushes?endID=12&startID=8", []byte(`{
		"8": {"changesets": ["a8"], "date": 1420060000},
		"12": {"changesets": ["c3"], "date": 1420077600}
	}`))
	m.Mock(autolandURL+"/json-pushes?changeset=a8", []byte(`{"8": {"changesets": ["a8"], "date": 1420060000}}`))
	m.Mock(autolandURL+"/json-pushes?fromchange=a8&tochange=c3", []byte(`{
		"9": {"changesets": ["a9"], "date": 1420065000},
		"10": {"changesets": ["c1"], "date": 1420070400},
		"11": {"changesets": ["c2"], "date": 1420074000},
		"12": {"changesets": ["c3"], "date": 1420077600}
	}`))
	m.Mock(autolandURL+"/json-pushes?changeset=c2&full=1", []byte(`{"11": {"date": 1420074000, "changesets": [
		{"node": "c2", "desc": "Bug 2 - two"}
	]}}`))
	run := newRunner("c2", "c3", "merge")
	r, _, _ := setup(t, m, run, Options{})

	o, err := r.Bisect(context.Background(), dates.ChangesetBound("g0"), dates.ChangesetBound("merge"))
	require.NoError(t, err)
	assert.Equal(t, bisector.Finished, o.Result)
	assert.Equal(t, branches.Autoland, o.Boundary.Branch)
	assert.Equal(t, "c1", o.Boundary.Good)
	assert.Equal(t, "c2", o.Boundary.Bad)
	assert.Equal(t, []string{"c1", "c2"}, run.tested)
}

func TestBisect_ChangesetsInSamePush_NoMergeHandling(t *testing.T) {
	m := mockhttpclient.NewURLMock()
	m.Mock(centralURL+"/json-pushes?changeset=g0", []byte(`{"100": {"changesets": ["g0", "g1"], "date": 1420070000}}`))
	m.Mock(centralURL+"/json-pushes?fromchange=g0&tochange=g1", []byte(`{"100": {"changesets": ["g0", "g1"], "date": 1420070000}}`))
	run := newRunner("g1")
	r, _, _ := setup(t, m, run, Options{})

	o, err := r.Bisect(context.Background(), dates.ChangesetBound("g0"), dates.ChangesetBound("g1"))
	require.NoError(t, err)
	assert.Equal(t, bisector.Finished, o.Result)
	assert.Equal(t, "g1", o.Boundary.GoodRevision)
	assert.Equal(t, "g1", o.Boundary.BadRevision)
	assert.Empty(t, run.tested)
}

func TestBisect_MergeResolutionFails_Exception(t *testing.T) {
	m := mockhttpclient.NewURLMock()
	m.Mock(centralURL+"/json-pushes?changeset=g0", []byte(`{"100": {"changesets": ["g0"], "date": 1420070000}}`))
	m.Mock(centralURL+"/json-pushes?fromchange=g0&tochange=merge", []byte(`{"101": {"changesets": ["merge"], "date": 1420080000}}`))
	m.Mock(centralURL+"/json-pushes?changeset=merge&full=1", []byte(`{"101": {"date": 1420080000, "changesets": [
		{"node": "c1", "desc": "Bug 1 - one"},
		{"node": "merge", "desc": "Bug 2 - landed somewhere"}
	]}}`))
	for _, name := range branches.IntegrationBranches {
		u, err := branches.Default().URL(name)
		require.NoError(t, err)
		m.MockStatus(u+"/json-pushes?changeset=merge&full=1", http.StatusNotFound, []byte(`{"error": "unknown revision 'merge'"}`))
	}
	r, _, _ := setup(t, m, newRunner(), Options{})

	o, err := r.Bisect(context.Background(), dates.ChangesetBound("g0"), dates.ChangesetBound("merge"))
	require.ErrorIs(t, err, bisector.ErrMergeResolution)
	assert.Equal(t, bisector.Exception, o.Result)
}

func TestBisect_AppWithoutIntegration_ChangesetsRejected(t *testing.T) {
	fc, err := fetchconfig.Create("thunderbird", "linux", 64)
	require.NoError(t, err)
	r := New(fc, branches.Default(), mockhttpclient.NewURLMock().Client(), &fakeDownloader{}, newRunner(), Options{})
	_, err = r.Bisect(context.Background(), dates.ChangesetBound("a"), dates.ChangesetBound("b"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no integration builds")
}

func TestResumeArgs(t *testing.T) {
	assert.Equal(t, []string{"--app", "firefox", "--good", "2015-01-06", "--bad", "2015-01-10"},
		ResumeArgs("firefox", "nightly", bisector.Boundary{Good: "2015-01-06", Bad: "2015-01-10", Branch: "mozilla-central"}))
	assert.Equal(t, []string{"--app", "firefox", "--good", "b", "--bad", "a", "--repo", "autoland", "--find-fix"},
		ResumeArgs("firefox", "integration", bisector.Boundary{Good: "b", Bad: "a", Branch: "autoland", FindFix: true}))
}

func TestLaunch_Date_FocusesAndEvaluates(t *testing.T) {
	run := newRunner("n03")
	r, _, dl := setup(t, mockhttpclient.NewURLMock(), run, Options{})

	verdict, info, err := r.Launch(context.Background(), dates.DateBound(day(3)))
	require.NoError(t, err)
	assert.Equal(t, bisector.Bad, verdict)
	assert.Equal(t, "n03", info.Changeset)
	assert.True(t, strings.HasPrefix(info.BuildFile, dl.Dir()))
	assert.Equal(t, []string{"n03"}, dl.focused)
}

func TestLaunch_Changeset_ResolvesPush(t *testing.T) {
	m := mockhttpclient.NewURLMock()
	m.Mock(centralURL+"/json-pushes?changeset=abc", []byte(`{"7": {"changesets": ["abc"], "date": 1420070000}}`))
	run := newRunner()
	r, res, _ := setup(t, m, run, Options{})

	verdict, info, err := r.Launch(context.Background(), dates.ChangesetBound("abc"))
	require.NoError(t, err)
	assert.Equal(t, bisector.Good, verdict)
	assert.Equal(t, "abc", info.Changeset)
	assert.Len(t, res.resolved, 1)
}
