package bisector_test

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.buildbisect.org/infra/bisection/go/bisector"
	"go.buildbisect.org/infra/bisection/go/branches"
	"go.buildbisect.org/infra/bisection/go/buildinfo"
	"go.buildbisect.org/infra/bisection/go/buildrange"
	brmocks "go.buildbisect.org/infra/bisection/go/buildrange/mocks"
	"go.buildbisect.org/infra/bisection/go/dates"
	"go.buildbisect.org/infra/bisection/go/fetchconfig"
	"go.buildbisect.org/infra/go/mockhttpclient"
	"go.buildbisect.org/infra/go/pushlog"
)

const (
	centralURL  = "https://hg.mozilla.org/mozilla-central"
	autolandURL = "https://hg.mozilla.org/integration/autoland"
	inboundURL  = "https://hg.mozilla.org/integration/mozilla-inbound"
)

// finishedRange returns a resolved range of two pushes of branch.
func finishedRange(t *testing.T, branch, good, bad string) *buildrange.BuildRange {
	fc, err := fetchconfig.Create("firefox", "linux", 64)
	require.NoError(t, err)
	futures := []*buildrange.Future{}
	for i, cs := range []string{good, bad} {
		p := &pushlog.Push{ID: 100 + i, Date: time.Unix(int64(1420070400+i*3600), 0).UTC(), Changesets: []*pushlog.Changeset{{Node: cs}}}
		c := buildinfo.PushCandidate(p)
		info := buildinfo.New(fc, fetchconfig.BuildTypeIntegration, "https://archive.example.org/"+cs+"/firefox.tar.bz2", p.Date, cs, "https://hg.mozilla.org/"+branch, branch)
		futures = append(futures, buildrange.NewResolvedFuture(nil, c, info))
	}
	return buildrange.FromFutures(nil, futures)
}

func integrationHandler(t *testing.T, m *mockhttpclient.URLMock, branch string, findFix bool) *bisector.IntegrationHandler {
	return bisector.NewIntegrationHandler(brmocks.NewResolver(t), branches.Default(), branch, m.Client(), findFix, buildrange.IntegrationOptions{})
}

func TestIntegrationHandler_SetRange_BoundaryAndPushlog(t *testing.T) {
	ctx := context.Background()
	h := integrationHandler(t, mockhttpclient.NewURLMock(), "m-c", false)
	require.NoError(t, h.SetRange(ctx, finishedRange(t, "mozilla-central", "aaaaaaaaaaaa", "bbbbbbbbbbbb")))

	b := h.Boundary()
	assert.Equal(t, "aaaaaaaaaaaa", b.Good)
	assert.Equal(t, "bbbbbbbbbbbb", b.Bad)
	assert.Equal(t, "mozilla-central", b.Branch)
	assert.Equal(t, centralURL+"/pushloghtml?fromchange=aaaaaaaaaaaa&tochange=bbbbbbbbbbbb", h.PushlogURL())
}

func TestIntegrationHandler_BuildRange_PushesBetweenChangesets(t *testing.T) {
	m := mockhttpclient.NewURLMock()
	m.Mock(autolandURL+"/json-pushes?changeset=aaa", []byte(`{"10": {"changesets": ["aaa"], "date": 1420070400}}`))
	m.Mock(autolandURL+"/json-pushes?fromchange=aaa&tochange=ccc", []byte(`{
		"11": {"changesets": ["bbb"], "date": 1420074000},
		"12": {"changesets": ["ccc"], "date": 1420077600}
	}`))
	h := integrationHandler(t, m, branches.Autoland, false)

	r, err := h.BuildRange(context.Background(), dates.ChangesetBound("aaa"), dates.ChangesetBound("ccc"))
	require.NoError(t, err)
	require.Equal(t, 3, r.Len())
	assert.Equal(t, "aaa", r.Future(0).Candidate().Changeset)
	assert.Equal(t, "ccc", r.Future(2).Candidate().Changeset)
	assert.Equal(t, 12, r.Future(2).Candidate().PushID)
}

func TestIntegrationHandler_BuildRange_UnknownBranch(t *testing.T) {
	h := integrationHandler(t, mockhttpclient.NewURLMock(), "nope", false)
	_, err := h.BuildRange(context.Background(), dates.ChangesetBound("aaa"), dates.ChangesetBound("ccc"))
	require.ErrorIs(t, err, branches.ErrUnknownBranch)
}

func mockMergedPushes(m *mockhttpclient.URLMock) {
	m.Mock(autolandURL+"/json-pushes?changeset=c1", []byte(`{"10": {"changesets": ["c1"], "date": 1420070400}}`))
	m.Mock(autolandURL+"/json-pushes?fromchange=c1&tochange=c3", []byte(`{
		"11": {"changesets": ["c2"], "date": 1420074000},
		"12": {"changesets": ["c3"], "date": 1420077600}
	}`))
	m.Mock(autolandURL+"/json-pushes?endID=12&startID=8", []byte(`{
		"8": {"changesets": ["a8"], "date": 1420060000},
		"9": {"changesets": ["a9"], "date": 1420065000},
		"10": {"changesets": ["c1"], "date": 1420070400},
		"11": {"changesets": ["c2"], "date": 1420074000},
		"12": {"changesets": ["c3"], "date": 1420077600}
	}`))
}

func TestHandleMerge_MergeMessage_ContinuesOnMergedBranch(t *testing.T) {
	ctx := context.Background()
	m := mockhttpclient.NewURLMock()
	m.Mock(centralURL+"/json-pushes?changeset=merge&full=1", []byte(`{"200": {"date": 1420080000, "changesets": [
		{"node": "c1", "desc": "Bug 1 - one"},
		{"node": "c2", "desc": "Bug 2 - two"},
		{"node": "c3", "desc": "Bug 3 - three"},
		{"node": "merge", "desc": "Merge autoland to mozilla-central a=merge"}
	]}}`))
	mockMergedPushes(m)
	h := integrationHandler(t, m, "mozilla-central", false)
	require.NoError(t, h.SetRange(ctx, finishedRange(t, "mozilla-central", "before", "merge")))

	cont, err := h.HandleMerge(ctx)
	require.NoError(t, err)
	assert.Equal(t, &bisector.Continuation{Branch: branches.Autoland, Good: "a8", Bad: "c3"}, cont)
}

func TestHandleMerge_FindFix_Reversed(t *testing.T) {
	ctx := context.Background()
	m := mockhttpclient.NewURLMock()
	m.Mock(centralURL+"/json-pushes?changeset=merge&full=1", []byte(`{"200": {"date": 1420080000, "changesets": [
		{"node": "c1", "desc": "Bug 1 - one"},
		{"node": "c2", "desc": "Bug 2 - two"},
		{"node": "c3", "desc": "Bug 3 - three"},
		{"node": "merge", "desc": "Merge autoland to mozilla-central a=merge"}
	]}}`))
	mockMergedPushes(m)
	h := integrationHandler(t, m, "mozilla-central", true)
	require.NoError(t, h.SetRange(ctx, finishedRange(t, "mozilla-central", "before", "merge")))

	cont, err := h.HandleMerge(ctx)
	require.NoError(t, err)
	assert.Equal(t, &bisector.Continuation{Branch: branches.Autoland, Good: "c3", Bad: "a8"}, cont)
}

func TestHandleMerge_OnlyOneMergedChange_Done(t *testing.T) {
	ctx := context.Background()
	m := mockhttpclient.NewURLMock()
	m.Mock(centralURL+"/json-pushes?changeset=merge&full=1", []byte(`{"200": {"date": 1420080000, "changesets": [
		{"node": "c1", "desc": "Bug 1 - one"},
		{"node": "merge", "desc": "Merge autoland to mozilla-central a=merge"}
	]}}`))
	h := integrationHandler(t, m, "mozilla-central", false)
	require.NoError(t, h.SetRange(ctx, finishedRange(t, "mozilla-central", "before", "merge")))

	cont, err := h.HandleMerge(ctx)
	require.NoError(t, err)
	assert.Nil(t, cont)
}

func TestHandleMerge_NotAMerge_Done(t *testing.T) {
	ctx := context.Background()
	m := mockhttpclient.NewURLMock()
	m.Mock(autolandURL+"/json-pushes?changeset=fix&full=1", []byte(`{"200": {"date": 1420080000, "changesets": [
		{"node": "fix", "desc": "Bug 4 - a fix"}
	]}}`))
	h := integrationHandler(t, m, branches.Autoland, false)
	require.NoError(t, h.SetRange(ctx, finishedRange(t, branches.Autoland, "before", "fix")))

	cont, err := h.HandleMerge(ctx)
	require.NoError(t, err)
	assert.Nil(t, cont)
}

func TestHandleMerge_NoBranchInMessage_EarliestIntegrationBranch(t *testing.T) {
	ctx := context.Background()
	m := mockhttpclient.NewURLMock()
	m.Mock(centralURL+"/json-pushes?changeset=c3&full=1", []byte(`{"200": {"date": 1420080000, "changesets": [
		{"node": "c1", "desc": "Bug 1 - one"},
		{"node": "c3", "desc": "Bug 3 - three"}
	]}}`))
	m.Mock(autolandURL+"/json-pushes?changeset=c3&full=1", []byte(`{"12": {"date": 1420077600, "changesets": [{"node": "c3", "desc": "Bug 3 - three"}]}}`))
	m.Mock(inboundURL+"/json-pushes?changeset=c3&full=1", []byte(`{"40": {"date": 1420079000, "changesets": [{"node": "c3", "desc": "Bug 3 - three"}]}}`))
	mockMergedPushes(m)
	h := integrationHandler(t, m, "mozilla-central", false)
	require.NoError(t, h.SetRange(ctx, finishedRange(t, "mozilla-central", "before", "c3")))

	cont, err := h.HandleMerge(ctx)
	require.NoError(t, err)
	assert.Equal(t, &bisector.Continuation{Branch: branches.Autoland, Good: "a8", Bad: "c3"}, cont)
}

func TestHandleMerge_NoIntegrationBranch_ErrMergeResolution(t *testing.T) {
	ctx := context.Background()
	m := mockhttpclient.NewURLMock()
	m.Mock(centralURL+"/json-pushes?changeset=c3&full=1", []byte(`{"200": {"date": 1420080000, "changesets": [
		{"node": "c1", "desc": "Bug 1 - one"},
		{"node": "c3", "desc": "Bug 3 - three"}
	]}}`))
	m.MockStatus(autolandURL+"/json-pushes?changeset=c3&full=1", http.StatusNotFound, []byte(`{"error": "unknown revision 'c3'"}`))
	m.MockStatus(inboundURL+"/json-pushes?changeset=c3&full=1", http.StatusNotFound, []byte(`{"error": "unknown revision 'c3'"}`))
	h := integrationHandler(t, m, "mozilla-central", false)
	require.NoError(t, h.SetRange(ctx, finishedRange(t, "mozilla-central", "before", "c3")))

	_, err := h.HandleMerge(ctx)
	require.ErrorIs(t, err, bisector.ErrMergeResolution)
}

func TestNightlyHandler_PushlogURL_DatesWithoutChangesets(t *testing.T) {
	ctx := context.Background()
	fc, err := fetchconfig.Create("firefox", "linux", 64)
	require.NoError(t, err)
	futures := []*buildrange.Future{}
	for _, d := range []time.Time{brmocks.Epoch, brmocks.Epoch.AddDate(0, 0, 1)} {
		info := buildinfo.New(fc, fetchconfig.BuildTypeNightly, "https://archive.example.org/firefox.tar.bz2", d, "", centralURL, "mozilla-central")
		futures = append(futures, buildrange.NewResolvedFuture(nil, buildinfo.DateCandidate(d), info))
	}
	h := bisector.NewNightlyHandler(nil, false)
	require.NoError(t, h.SetRange(ctx, buildrange.FromFutures(nil, futures)))

	assert.Equal(t, centralURL+"/pushloghtml?enddate=2015-01-02&startdate=2015-01-01", h.PushlogURL())
	assert.Equal(t, "2015-01-01", h.Boundary().Good)
	assert.Equal(t, "2015-01-02", h.Boundary().Bad)
}

func TestNightlyHandler_PushlogURL_SameChangeset(t *testing.T) {
	ctx := context.Background()
	res := brmocks.NewFakeResolver()
	r := buildrange.New(res, brmocks.Candidates(1))
	h := bisector.NewNightlyHandler(res, false)
	require.NoError(t, h.SetRange(ctx, r))
	assert.Equal(t, "https://hg.example.org/mozilla-central/pushloghtml?changeset=000000000000", h.PushlogURL())
}
