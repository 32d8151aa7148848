package branches

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestName_ResolvesAliases(t *testing.T) {
	r := Default()
	for alias, name := range map[string]string{
		"mozilla-inbound": "mozilla-inbound",
		"m-i":             "mozilla-inbound",
		"mozilla-central": "mozilla-central",
		"m-c":             "mozilla-central",
		"unknown":         "unknown",
	} {
		assert.Equal(t, name, r.Name(alias), alias)
	}
}

func TestURL(t *testing.T) {
	r := Default()
	for name, url := range map[string]string{
		"m-c":          "https://hg.mozilla.org/mozilla-central",
		"m-i":          "https://hg.mozilla.org/integration/mozilla-inbound",
		"mozilla-beta": "https://hg.mozilla.org/releases/mozilla-beta",
	} {
		got, err := r.URL(name)
		require.NoError(t, err)
		assert.Equal(t, url, got)
	}
}

func TestURL_UnknownBranch_Error(t *testing.T) {
	_, err := Default().URL("unknown branch")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownBranch))
}

func TestBranches_ByCategory_NoAliases(t *testing.T) {
	r := Default()
	all := r.Branches("")
	assert.Contains(t, all, "mozilla-central")
	assert.Contains(t, all, "mozilla-inbound")
	assert.NotContains(t, all, "m-c")

	integration := r.Branches(CategoryIntegration)
	assert.Contains(t, integration, "mozilla-inbound")
	assert.NotContains(t, integration, "mozilla-central")
	assert.NotContains(t, integration, "m-i")
}

func TestCategory(t *testing.T) {
	r := Default()
	assert.Equal(t, CategoryDefault, r.Category("mozilla-central"))
	assert.Equal(t, CategoryIntegration, r.Category("autoland"))
	assert.Equal(t, CategoryIntegration, r.Category("m-i"))
	assert.Equal(t, CategoryReleases, r.Category("release"))
	assert.Equal(t, CategoryReleases, r.Category("mozilla-beta"))
	assert.Equal(t, "", r.Category(""))
}

func TestSetAlias_Errors(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.SetBranch("a", "a", CategoryDefault))
	assert.Error(t, r.SetBranch("a", "a", CategoryDefault))
	assert.Error(t, r.SetAlias("x", "missing"))
	require.NoError(t, r.SetAlias("x", "a"))
	assert.Error(t, r.SetAlias("x", "a"))
}

func TestFindBranchInMergeCommit(t *testing.T) {
	r := Default()
	for _, tc := range []struct {
		commit, branch, current string
	}{
		{"Merge mozilla-central to autoland", "mozilla-central", "autoland"},
		{"Merge mozilla-central to autoland", "autoland", "mozilla-central"},
		{"Merge autoland to central, a=merge", "autoland", "mozilla-central"},
		{"merge autoland to mozilla-central a=merge", "autoland", "mozilla-central"},
		{"Merge m-i to m-c, a=merge CLOSED TREE", "mozilla-inbound", "mozilla-central"},
		{"Merge mozilla inbound to central a=merge", "mozilla-inbound", "mozilla-central"},
		{"Bug 123 - fix the thing", "", "mozilla-central"},
	} {
		assert.Equal(t, tc.branch, r.FindBranchInMergeCommit(tc.commit, tc.current), tc.commit)
	}
}
