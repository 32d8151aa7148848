// Package branches knows the source repositories builds can come from, the
// short aliases people use for them, and how merge commits name them.
package branches

import (
	"errors"
	"regexp"
	"sort"
	"strings"

	"go.buildbisect.org/infra/go/skerr"
)

const (
	// DEFAULT_REPO_URL is the root of the hosted repositories.
	DEFAULT_REPO_URL = "https://hg.mozilla.org/"

	CategoryDefault     = "default"
	CategoryIntegration = "integration"
	CategoryReleases    = "releases"

	MozillaCentral = "mozilla-central"
	MozillaInbound = "mozilla-inbound"
	Autoland       = "autoland"
)

// ErrUnknownBranch is returned when a name is neither a branch nor an alias.
var ErrUnknownBranch = errors.New("unknown branch")

// IntegrationBranches are queried, in this order, when a merge commit does
// not name the branch it came from.
var IntegrationBranches = []string{Autoland, MozillaInbound}

var mergeRegex = regexp.MustCompile(`merge ([\w\-]+) to ([\w\-]+)`)

type branch struct {
	url      string
	category string
}

// Registry maps branch names and aliases to repository urls.
type Registry struct {
	branches map[string]branch
	aliases  map[string]string
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		branches: map[string]branch{},
		aliases:  map[string]string{},
	}
}

// SetBranch registers a branch hosted at DEFAULT_REPO_URL + path.
func (r *Registry) SetBranch(name, path, category string) error {
	if _, ok := r.branches[name]; ok {
		return skerr.Fmt("branch %s already defined", name)
	}
	r.branches[name] = branch{url: DEFAULT_REPO_URL + path, category: category}
	return nil
}

// SetAlias registers another name for an existing branch.
func (r *Registry) SetAlias(alias, name string) error {
	if _, ok := r.aliases[alias]; ok {
		return skerr.Fmt("alias %s already defined", alias)
	}
	if _, ok := r.branches[name]; !ok {
		return skerr.Fmt("no such branch %s", name)
	}
	r.aliases[alias] = name
	return nil
}

// Name resolves an alias. Unknown names are returned unchanged.
func (r *Registry) Name(nameOrAlias string) string {
	if name, ok := r.aliases[nameOrAlias]; ok {
		return name
	}
	return nameOrAlias
}

// URL returns the repository url of a branch or alias.
func (r *Registry) URL(nameOrAlias string) (string, error) {
	b, ok := r.branches[r.Name(nameOrAlias)]
	if !ok {
		return "", skerr.Wrapf(ErrUnknownBranch, "no such branch %q", nameOrAlias)
	}
	return b.url, nil
}

// Category returns the category of a branch or alias, or "" if unknown.
func (r *Registry) Category(nameOrAlias string) string {
	return r.branches[r.Name(nameOrAlias)].category
}

// Branches returns the sorted branch names, without aliases. If category is
// not empty only the branches of that category are returned.
func (r *Registry) Branches(category string) []string {
	rv := []string{}
	for name, b := range r.branches {
		if category == "" || b.category == category {
			rv = append(rv, name)
		}
	}
	sort.Strings(rv)
	return rv
}

// FindBranchInMergeCommit returns the branch a merge commit message says was
// merged into currentBranch, or "" if the message is not a merge message.
func (r *Registry) FindBranchInMergeCommit(message, currentBranch string) string {
	message = strings.ToLower(message)
	message = strings.ReplaceAll(message, "mozilla inbound", MozillaInbound)
	m := mergeRegex.FindStringSubmatch(message)
	if m == nil {
		return ""
	}
	current := r.Name(currentBranch)
	from, to := r.Name(m[1]), r.Name(m[2])
	if from == current {
		return to
	}
	return from
}

func mustNil(err error) {
	if err != nil {
		panic(err)
	}
}

// Default returns the registry of the hosted repositories.
func Default() *Registry {
	r := NewRegistry()
	mustNil(r.SetBranch(MozillaCentral, MozillaCentral, CategoryDefault))
	mustNil(r.SetBranch("comm-central", "comm-central", CategoryDefault))
	for _, name := range []string{Autoland, "b2g-inbound", "fx-team", MozillaInbound} {
		mustNil(r.SetBranch(name, "integration/"+name, CategoryIntegration))
	}
	for _, name := range []string{"comm-aurora", "comm-beta", "comm-release", "mozilla-aurora", "mozilla-beta", "mozilla-release"} {
		mustNil(r.SetBranch(name, "releases/"+name, CategoryReleases))
	}
	for name, aliases := range map[string][]string{
		MozillaCentral:    {"m-c", "central"},
		MozillaInbound:    {"m-i", "inbound"},
		"mozilla-aurora":  {"aurora"},
		"mozilla-beta":    {"beta"},
		"mozilla-release": {"release"},
		"fx-team":         {"f-t"},
		"b2g-inbound":     {"b2ginbound", "b2g-i", "b-i"},
	} {
		for _, alias := range aliases {
			mustNil(r.SetAlias(alias, name))
		}
	}
	return r
}
