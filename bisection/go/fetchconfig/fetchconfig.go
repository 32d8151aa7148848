// Package fetchconfig describes, per application, where builds are hosted
// and how their files are named.
package fetchconfig

import (
	"bytes"
	"regexp"
	"sort"
	"text/template"
	"time"

	"github.com/Masterminds/sprig"

	"go.buildbisect.org/infra/bisection/go/branches"
	"go.buildbisect.org/infra/go/pushlog"
	"go.buildbisect.org/infra/go/skerr"
)

const (
	BuildTypeNightly     = "nightly"
	BuildTypeIntegration = "integration"

	DATE_FORMAT = "2006-01-02"
)

// FetchConfig is what the resolvers and the persisted file names need to
// know about an application.
type FetchConfig interface {
	// AppName is the application name, such as "firefox".
	AppName() string

	// BuildRegex matches a build file name on the servers.
	BuildRegex() string

	// BuildInfoRegex matches the metadata file name of a build.
	BuildInfoRegex() string

	// NightlyBaseURL returns the url listing the nightly build folders of the
	// month of date.
	NightlyBaseURL(date time.Time) (string, error)

	// NightlyRepo returns the repo nightlies were built from on date.
	NightlyRepo(date time.Time) string

	// NightlyRepoRegex matches the build folders of date.
	NightlyRepoRegex(date time.Time) string

	// IntegrationURL returns the url listing the integration build of a push.
	IntegrationURL(push *pushlog.Push) (string, error)

	// Repo returns the branch integration builds are searched on.
	Repo() string

	// SetRepo forces the repo for both nightly and integration builds. An
	// empty repo restores the defaults.
	SetRepo(repo string)

	IsNightly() bool
	IsIntegration() bool

	// CanGoIntegration returns true if a finished nightly search can be
	// refined with integration builds.
	CanGoIntegration() bool

	// IntegrationPersistPart and ExtraPersistPart are embedded in the
	// persisted file names.
	IntegrationPersistPart() string
	ExtraPersistPart() string
}

// RepoUntil gives the nightly repo used before a date.
type RepoUntil struct {
	Until string `json:"until"`
	Repo  string `json:"repo"`
}

// Definition is the serializable description of an application. Fields
// ending in "Template" are text/template strings with the sprig functions
// available, executed against TemplateData.
type Definition struct {
	App                    string      `json:"app"`
	BuildRegexTemplate     string      `json:"build_regex"`
	BuildInfoRegexTemplate string      `json:"build_info_regex"`
	NightlyURLTemplate     string      `json:"nightly_url" optional:"true"`
	NightlyRepo            string      `json:"nightly_repo" optional:"true"`
	NightlyRepoHistory     []RepoUntil `json:"nightly_repo_history" optional:"true"`
	IntegrationURLTemplate string      `json:"integration_url" optional:"true"`
	IntegrationBranch      string      `json:"integration_branch" optional:"true"`
	BuildType              string      `json:"build_type" optional:"true"`
}

// TemplateData is passed to the templates of a Definition.
type TemplateData struct {
	App      string
	OS       string
	Bits     int
	Platform string
	Ext      string
	Repo     string
	Lang     string
	Date     time.Time
	Push     *pushlog.Push
}

// TemplateConfig is a FetchConfig built from a Definition.
type TemplateConfig struct {
	def      Definition
	os       string
	bits     int
	lang     string
	repo     string
	history  []repoUntil
	registry *branches.Registry

	buildRegex     string
	buildInfoRegex string
	nightlyURL     *template.Template
	integrationURL *template.Template
}

type repoUntil struct {
	until time.Time
	repo  string
}

// New returns a TemplateConfig for the given platform.
func New(def Definition, os string, bits int) (*TemplateConfig, error) {
	if def.App == "" {
		return nil, skerr.Fmt("application name is required")
	}
	if def.NightlyRepo == "" {
		def.NightlyRepo = branches.MozillaCentral
	}
	if def.IntegrationBranch == "" {
		def.IntegrationBranch = branches.MozillaCentral
	}
	c := &TemplateConfig{
		def:      def,
		os:       os,
		bits:     bits,
		registry: branches.Default(),
	}
	for _, h := range def.NightlyRepoHistory {
		t, err := time.Parse(DATE_FORMAT, h.Until)
		if err != nil {
			return nil, skerr.Wrapf(err, "invalid nightly repo date for %s", h.Repo)
		}
		c.history = append(c.history, repoUntil{until: t, repo: h.Repo})
	}
	sort.Slice(c.history, func(i, j int) bool { return c.history[i].until.Before(c.history[j].until) })

	if err := c.renderRegexes(); err != nil {
		return nil, err
	}
	var err error
	if def.NightlyURLTemplate != "" {
		if c.nightlyURL, err = parse("nightly_url", def.NightlyURLTemplate); err != nil {
			return nil, err
		}
	}
	if def.IntegrationURLTemplate != "" {
		if c.integrationURL, err = parse("integration_url", def.IntegrationURLTemplate); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func parse(name, text string) (*template.Template, error) {
	t, err := template.New(name).Funcs(sprig.TxtFuncMap()).Parse(text)
	if err != nil {
		return nil, skerr.Wrapf(err, "parsing template %s", name)
	}
	return t, nil
}

func execute(t *template.Template, data TemplateData) (string, error) {
	var b bytes.Buffer
	if err := t.Execute(&b, data); err != nil {
		return "", skerr.Wrapf(err, "executing template %s", t.Name())
	}
	return b.String(), nil
}

func (c *TemplateConfig) render(name, text string, data TemplateData) (string, error) {
	t, err := parse(name, text)
	if err != nil {
		return "", err
	}
	return execute(t, data)
}

func (c *TemplateConfig) renderRegexes() error {
	var err error
	if c.buildRegex, err = c.render("build_regex", c.def.BuildRegexTemplate, c.data()); err != nil {
		return err
	}
	if c.buildInfoRegex, err = c.render("build_info_regex", c.def.BuildInfoRegexTemplate, c.data()); err != nil {
		return err
	}
	for _, re := range []string{c.buildRegex, c.buildInfoRegex} {
		if _, err := regexp.Compile(re); err != nil {
			return skerr.Wrapf(err, "invalid regex for %s", c.def.App)
		}
	}
	return nil
}

func (c *TemplateConfig) data() TemplateData {
	d := TemplateData{
		App:  c.def.App,
		OS:   c.os,
		Bits: c.bits,
		Lang: c.lang,
		Repo: c.Repo(),
	}
	switch c.os {
	case "linux":
		if c.bits == 64 {
			d.Platform = "linux-x86_64"
		} else {
			d.Platform = "linux-i686"
		}
		d.Ext = `\.tar\.(bz2|xz)`
	case "mac":
		d.Platform = "mac"
		d.Ext = `\.dmg`
	case "win":
		d.Platform = "win" + map[int]string{32: "32", 64: "64"}[c.bits]
		d.Ext = `\.zip`
	}
	return d
}

// SetLang sets the locale of localized builds.
func (c *TemplateConfig) SetLang(lang string) error {
	c.lang = lang
	return c.renderRegexes()
}

// AppName implements FetchConfig.
func (c *TemplateConfig) AppName() string {
	return c.def.App
}

// BuildRegex implements FetchConfig.
func (c *TemplateConfig) BuildRegex() string {
	return c.buildRegex
}

// BuildInfoRegex implements FetchConfig.
func (c *TemplateConfig) BuildInfoRegex() string {
	return c.buildInfoRegex
}

// NightlyBaseURL implements FetchConfig.
func (c *TemplateConfig) NightlyBaseURL(date time.Time) (string, error) {
	if c.nightlyURL == nil {
		return "", skerr.Fmt("%s has no nightly builds", c.def.App)
	}
	d := c.data()
	d.Date = date
	d.Repo = c.NightlyRepo(date)
	return execute(c.nightlyURL, d)
}

// NightlyRepo implements FetchConfig.
func (c *TemplateConfig) NightlyRepo(date time.Time) string {
	if c.repo != "" {
		return c.repo
	}
	for _, h := range c.history {
		if date.Before(h.until) {
			return h.repo
		}
	}
	return c.def.NightlyRepo
}

// NightlyRepoRegex implements FetchConfig.
func (c *TemplateConfig) NightlyRepoRegex(date time.Time) string {
	return "^" + date.Format(DATE_FORMAT) + `-[\d-]+` + regexp.QuoteMeta(c.NightlyRepo(date)) + "/$"
}

// IntegrationURL implements FetchConfig.
func (c *TemplateConfig) IntegrationURL(push *pushlog.Push) (string, error) {
	if c.integrationURL == nil {
		return "", skerr.Fmt("%s has no integration builds", c.def.App)
	}
	d := c.data()
	d.Push = push
	d.Date = push.Date
	return execute(c.integrationURL, d)
}

// Repo implements FetchConfig.
func (c *TemplateConfig) Repo() string {
	if c.repo != "" {
		return c.repo
	}
	return c.def.IntegrationBranch
}

// SetRepo implements FetchConfig.
func (c *TemplateConfig) SetRepo(repo string) {
	c.repo = c.registry.Name(repo)
}

// IsNightly implements FetchConfig.
func (c *TemplateConfig) IsNightly() bool {
	return c.nightlyURL != nil
}

// IsIntegration implements FetchConfig.
func (c *TemplateConfig) IsIntegration() bool {
	return c.integrationURL != nil
}

// CanGoIntegration implements FetchConfig.
func (c *TemplateConfig) CanGoIntegration() bool {
	return c.IsIntegration() && c.repo == ""
}

// IntegrationPersistPart implements FetchConfig.
func (c *TemplateConfig) IntegrationPersistPart() string {
	return c.def.BuildType
}

// ExtraPersistPart implements FetchConfig.
func (c *TemplateConfig) ExtraPersistPart() string {
	return c.lang
}

// Definitions are the applications known without a configuration file.
var Definitions = map[string]Definition{
	"firefox": {
		App:                    "firefox",
		BuildRegexTemplate:     `{{ .App }}.*{{ .Platform }}{{ .Ext }}$`,
		BuildInfoRegexTemplate: `{{ .App }}.*{{ .Platform }}\.txt$`,
		NightlyURLTemplate:     `https://archive.mozilla.org/pub/{{ .App }}/nightly/{{ dateInZone "2006/01" .Date "UTC" }}/`,
		NightlyRepoHistory:     []RepoUntil{{Until: "2008-06-17", Repo: "trunk"}},
		IntegrationURLTemplate: `https://archive.mozilla.org/pub/{{ .App }}/tinderbox-builds/{{ .Repo }}-{{ .Platform | replace "linux-x86_64" "linux64" | replace "linux-i686" "linux" | replace "mac" "macosx64" }}/{{ .Push.Date.Unix }}/`,
		BuildType:              "shippable",
	},
	"firefox-l10n": {
		App:                    "firefox",
		BuildRegexTemplate:     `{{ .App }}.*{{ .Lang }}\.{{ .Platform }}{{ .Ext }}$`,
		BuildInfoRegexTemplate: `{{ .App }}.*{{ .Platform }}\.txt$`,
		NightlyURLTemplate:     `https://archive.mozilla.org/pub/{{ .App }}/nightly/{{ dateInZone "2006/01" .Date "UTC" }}/`,
		NightlyRepo:            "mozilla-central-l10n",
	},
	"thunderbird": {
		App:                    "thunderbird",
		BuildRegexTemplate:     `{{ .App }}.*{{ .Platform }}{{ .Ext }}$`,
		BuildInfoRegexTemplate: `{{ .App }}.*{{ .Platform }}\.txt$`,
		NightlyURLTemplate:     `https://archive.mozilla.org/pub/{{ .App }}/nightly/{{ dateInZone "2006/01" .Date "UTC" }}/`,
		NightlyRepo:            "comm-central",
		NightlyRepoHistory: []RepoUntil{
			{Until: "2008-07-26", Repo: "trunk"},
			{Until: "2009-01-09", Repo: "comm-central"},
			{Until: "2010-08-21", Repo: "comm-central-trunk"},
		},
		IntegrationBranch: "comm-central",
	},
}

// Create returns the configuration of a known application.
func Create(app, os string, bits int) (*TemplateConfig, error) {
	def, ok := Definitions[app]
	if !ok {
		return nil, skerr.Fmt("unknown application %q", app)
	}
	return New(def, os, bits)
}

// Apps returns the sorted names of the known applications.
func Apps() []string {
	rv := make([]string, 0, len(Definitions))
	for name := range Definitions {
		rv = append(rv, name)
	}
	sort.Strings(rv)
	return rv
}

// Assert TemplateConfig implements FetchConfig.
var _ FetchConfig = (*TemplateConfig)(nil)
