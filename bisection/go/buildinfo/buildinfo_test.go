package buildinfo

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.buildbisect.org/infra/bisection/go/fetchconfig"
	"go.buildbisect.org/infra/go/pushlog"
)

const buildURL = "https://archive.example.org/pub/firefox/nightly/2015/01/2015-01-11-03-02-04-mozilla-central/firefox-38.0a1.en-US.linux-x86_64.tar.bz2"

func fetchConfig(t *testing.T) fetchconfig.FetchConfig {
	c, err := fetchconfig.Create("firefox", "linux", 64)
	require.NoError(t, err)
	return c
}

func nightly(t *testing.T) *BuildInfo {
	return New(fetchConfig(t), fetchconfig.BuildTypeNightly, buildURL, time.Date(2015, 1, 11, 0, 0, 0, 0, time.UTC), "", "", "mozilla-central")
}

func integration(t *testing.T) *BuildInfo {
	return New(fetchConfig(t), fetchconfig.BuildTypeIntegration, buildURL, time.Unix(1420934400, 0).UTC(), "0123456789abcdef", "https://hg.example.org/integration/autoland", "autoland")
}

func TestPersistFilename_Nightly(t *testing.T) {
	b := nightly(t)
	assert.Equal(t, "2015-01-11--mozilla-central--firefox-38.0a1.en-US.linux-x86_64.tar.bz2", b.PersistFilename())

	b.HasTime = true
	b.BuildDate = time.Date(2015, 1, 11, 3, 2, 4, 0, time.UTC)
	assert.Equal(t, "2015-01-11-03-02-04--mozilla-central--firefox-38.0a1.en-US.linux-x86_64.tar.bz2", b.PersistFilename())
}

func TestPersistFilename_Integration(t *testing.T) {
	b := integration(t)
	assert.Equal(t, "0123456789ab-shippable--autoland--firefox-38.0a1.en-US.linux-x86_64.tar.bz2", b.PersistFilename())
}

func TestPersistFilename_ExtraPart(t *testing.T) {
	c, err := fetchconfig.Create("firefox-l10n", "linux", 64)
	require.NoError(t, err)
	require.NoError(t, c.SetLang("fr"))
	b := New(c, fetchconfig.BuildTypeNightly, "https://x/firefox-38.0a1.fr.linux-x86_64.tar.bz2", time.Date(2015, 1, 11, 0, 0, 0, 0, time.UTC), "", "", "mozilla-central-l10n")
	assert.Equal(t, "2015-01-11--mozilla-central-l10n--fr--firefox-38.0a1.fr.linux-x86_64.tar.bz2", b.PersistFilename())
}

func TestPersistPatternFor_MatchesOwnFilename(t *testing.T) {
	for _, b := range []*BuildInfo{nightly(t), integration(t)} {
		re := regexp.MustCompile(b.PersistPatternFor(b.Candidate()))
		assert.True(t, re.MatchString(b.PersistFilename()), b.PersistFilename())
	}
}

func TestPersistPatternFor_OtherCandidate(t *testing.T) {
	b := nightly(t)
	other := DateCandidate(time.Date(2015, 1, 12, 0, 0, 0, 0, time.UTC))
	re := regexp.MustCompile(b.PersistPatternFor(other))
	assert.True(t, re.MatchString("2015-01-12--mozilla-central--firefox-39.0a1.en-US.linux-x86_64.tar.bz2"))
	assert.False(t, re.MatchString("2015-01-11--mozilla-central--firefox-38.0a1.en-US.linux-x86_64.tar.bz2"))
	assert.False(t, re.MatchString("2015-01-12--mozilla-central--firefox-39.0a1.en-US.win64.zip"))
	assert.False(t, re.MatchString("x2015-01-12--mozilla-central--firefox-39.0a1.en-US.linux-x86_64.tar.bz2"))
}

func TestCandidate(t *testing.T) {
	c := DateCandidate(time.Date(2015, 1, 11, 13, 0, 0, 0, time.UTC))
	assert.False(t, c.IsPush())
	assert.Equal(t, "2015-01-11", c.String())

	p := PushCandidate(&pushlog.Push{ID: 4, Date: time.Unix(10, 0).UTC(), Changesets: []*pushlog.Changeset{{Node: "aaa"}, {Node: "0123456789abcdef"}}})
	assert.True(t, p.IsPush())
	assert.Equal(t, "0123456789abcdef", p.Changeset)
	assert.Equal(t, 4, p.PushID)
	assert.Equal(t, "0123456789ab", p.String())
	assert.Equal(t, "0123456789abcdef", p.Push().Changeset())
}

func TestUpdateFromAppInfo_OnlyFillsMissing(t *testing.T) {
	b := nightly(t)
	b.UpdateFromAppInfo("abc", "https://hg.example.org/mozilla-central", "38.0a1")
	assert.Equal(t, "abc", b.Changeset)
	assert.Equal(t, "https://hg.example.org/mozilla-central", b.RepoURL)
	assert.Equal(t, "38.0a1", b.AppVersion)

	b.UpdateFromAppInfo("def", "other", "")
	assert.Equal(t, "abc", b.Changeset)
	assert.Equal(t, "https://hg.example.org/mozilla-central", b.RepoURL)
	assert.Equal(t, "38.0a1", b.AppVersion)
}

func TestString(t *testing.T) {
	assert.Equal(t, "2015-01-11", nightly(t).String())
	assert.Equal(t, "01234567", integration(t).String())
}
