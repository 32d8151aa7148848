package pushlog

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.buildbisect.org/infra/go/httputils"
	"go.buildbisect.org/infra/go/mockhttpclient"
)

const repoURL = "https://hg.example.org/mozilla-central"

func setup() (*mockhttpclient.URLMock, *Repo) {
	m := mockhttpclient.NewURLMock()
	return m, NewRepo("mozilla-central", repoURL, m.Client())
}

func TestQueryEncode_SortsKeys(t *testing.T) {
	q := Query{
		FromChange: "abc",
		ToChange:   "def",
		Full:       true,
	}
	assert.Equal(t, "fromchange=abc&full=1&tochange=def", q.Encode())

	q = Query{
		StartDate: time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2015, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, "enddate=2015-01-02&startdate=2015-01-01", q.Encode())

	q = Query{StartID: 10, EndID: 20}
	assert.Equal(t, "endID=20&startID=10", q.Encode())
}

func TestPushes_SortedByID(t *testing.T) {
	m, r := setup()
	m.Mock(repoURL+"/json-pushes?changeset=abc", []byte(`{
		"10": {"changesets": ["c1", "c2"], "date": 1420070400},
		"9": {"changesets": ["b1"], "date": 1420000000}
	}`))
	pushes, err := r.Pushes(context.Background(), Query{Changeset: "abc"})
	require.NoError(t, err)
	require.Len(t, pushes, 2)
	assert.Equal(t, 9, pushes[0].ID)
	assert.Equal(t, "b1", pushes[0].Changeset())
	assert.Equal(t, 10, pushes[1].ID)
	assert.Equal(t, "c2", pushes[1].Changeset())
	assert.Equal(t, time.Unix(1420070400, 0).UTC(), pushes[1].Date)
}

func TestPushes_FullChangesets_DescriptionsParsed(t *testing.T) {
	m, r := setup()
	m.Mock(repoURL+"/json-pushes?changeset=abc&full=1", []byte(`{
		"1": {"changesets": [{"node": "a1", "desc": "Bug 1"}, {"node": "a2", "desc": "Merge m-i to m-c"}], "date": 1}
	}`))
	push, err := r.Push(context.Background(), Ref{Changeset: "abc"}, true)
	require.NoError(t, err)
	require.Len(t, push.Changesets, 2)
	assert.Equal(t, "a2", push.Changeset())
	assert.Equal(t, "Merge m-i to m-c", push.Changesets[1].Desc)
}

func TestPushes_EmptyResponse_ReturnsErrEmptyPushlog(t *testing.T) {
	m, r := setup()
	m.Mock(repoURL+"/json-pushes?changeset=abc", []byte(`{}`))
	_, err := r.Pushes(context.Background(), Query{Changeset: "abc"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyPushlog))
}

func TestPushes_UnknownRevision_ReturnsErrEmptyPushlog(t *testing.T) {
	m, r := setup()
	m.MockStatus(repoURL+"/json-pushes?changeset=abc", http.StatusNotFound, []byte(`{"error": "unknown revision 'abc'"}`))
	_, err := r.Pushes(context.Background(), Query{Changeset: "abc"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyPushlog))
}

func TestPushes_OtherNotFound_ReturnsStatusError(t *testing.T) {
	m, r := setup()
	m.MockStatus(repoURL+"/json-pushes?changeset=abc", http.StatusNotFound, []byte(`not here`))
	_, err := r.Pushes(context.Background(), Query{Changeset: "abc"})
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrEmptyPushlog))
	assert.True(t, httputils.IsNotFound(err))
}

func TestPushesWithinChanges_Changesets_IncludesFirst(t *testing.T) {
	m, r := setup()
	m.Mock(repoURL+"/json-pushes?changeset=aaa", []byte(`{"1": {"changesets": ["aaa"], "date": 1}}`))
	m.Mock(repoURL+"/json-pushes?fromchange=aaa&tochange=ccc", []byte(`{
		"2": {"changesets": ["bbb"], "date": 2},
		"3": {"changesets": ["ccc"], "date": 3}
	}`))
	pushes, err := r.PushesWithinChanges(context.Background(), Ref{Changeset: "aaa"}, Ref{Changeset: "ccc"})
	require.NoError(t, err)
	var got []string
	for _, p := range pushes {
		got = append(got, p.Changeset())
	}
	assert.Equal(t, []string{"aaa", "bbb", "ccc"}, got)
}

func TestPushesWithinChanges_Dates_EndDateIsExclusive(t *testing.T) {
	m, r := setup()
	m.Mock(repoURL+"/json-pushes?enddate=2015-01-03&startdate=2015-01-01", []byte(`{
		"2": {"changesets": ["bbb"], "date": 2},
		"3": {"changesets": ["ccc"], "date": 3}
	}`))
	pushes, err := r.PushesWithinChanges(context.Background(),
		Ref{Date: time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)},
		Ref{Date: time.Date(2015, 1, 2, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	require.Len(t, pushes, 2)
	assert.Equal(t, 1, m.Requests(repoURL+"/json-pushes?enddate=2015-01-03&startdate=2015-01-01"))
}

func TestPush_Date_ReturnsLastPush(t *testing.T) {
	m, r := setup()
	m.Mock(repoURL+"/json-pushes?enddate=2015-01-02&startdate=2015-01-01", []byte(`{
		"2": {"changesets": ["bbb"], "date": 2},
		"3": {"changesets": ["ccc"], "date": 3}
	}`))
	push, err := r.Push(context.Background(), Ref{Date: time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)}, false)
	require.NoError(t, err)
	assert.Equal(t, "ccc", push.Changeset())
}

func TestPush_DateWithoutPushes_ReturnsErrEmptyPushlog(t *testing.T) {
	m, r := setup()
	m.Mock(repoURL+"/json-pushes?enddate=2015-01-02&startdate=2015-01-01", []byte(`{}`))
	_, err := r.Push(context.Background(), Ref{Date: time.Date(2015, 1, 1, 0, 0, 0, 0, time.UTC)}, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyPushlog))
	assert.Contains(t, err.Error(), "no pushes available for the date 2015-01-01 on mozilla-central")
}

func TestPushString_ShortChangeset(t *testing.T) {
	p := &Push{Changesets: []*Changeset{{Node: "0123456789abcdef"}}}
	assert.Equal(t, "0123456789ab", p.String())
}
