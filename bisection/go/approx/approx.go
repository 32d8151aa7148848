// Package approx picks, instead of the exact middle of a range, a nearby
// build that is already present in the download directory.
package approx

import (
	"regexp"
	"strings"

	"go.buildbisect.org/infra/bisection/go/buildinfo"
	"go.buildbisect.org/infra/bisection/go/buildrange"
	"go.buildbisect.org/infra/go/fileutil"
	"go.buildbisect.org/infra/go/skerr"
	"go.buildbisect.org/infra/go/sklog"
)

// DEFAULT_STRIDE accepts one build every 7 builds of the range.
const DEFAULT_STRIDE = 7

// Chooser looks for persisted builds around a build of a range.
type Chooser struct {
	stride int
}

// New returns a Chooser which looks up to len(range)/stride slots away from
// the build.
func New(stride int) (*Chooser, error) {
	if stride < 1 {
		return nil, skerr.Fmt("approx stride must be positive, got %d", stride)
	}
	return &Chooser{stride: stride}, nil
}

// Stride returns the stride.
func (c *Chooser) Stride() int {
	return c.stride
}

// Index returns the index of a slot close to info whose build is one of
// filenames, looking at -1, +1, -2, +2, ... The endpoints of the range are
// never returned. The bool is false when nothing matches.
func (c *Chooser) Index(r *buildrange.BuildRange, info *buildinfo.BuildInfo, filenames []string) (int, bool) {
	index, err := r.Index(info)
	if err != nil {
		sklog.Warningf("Looking for a persisted build near %s: %s", info, err)
		return 0, false
	}
	around := r.Len() / c.stride
	if around < 1 {
		return 0, false
	}
	names := make([]string, 0, len(filenames))
	for _, f := range filenames {
		if !strings.HasPrefix(f, ".") {
			names = append(names, f)
		}
	}
	if len(names) == 0 {
		return 0, false
	}
	for i := 1; i <= around; i++ {
		for _, candidate := range []int{index - i, index + i} {
			if candidate <= 0 || candidate >= r.Len()-1 {
				continue
			}
			if c.matches(info, r.Future(candidate).Candidate(), names) {
				return candidate, true
			}
		}
	}
	return 0, false
}

func (c *Chooser) matches(info *buildinfo.BuildInfo, candidate buildinfo.Candidate, names []string) bool {
	re, err := regexp.Compile(info.PersistPatternFor(candidate))
	if err != nil {
		sklog.Errorf("Invalid persist pattern for %s: %s", candidate, err)
		return false
	}
	for _, name := range names {
		if re.MatchString(name) {
			return true
		}
	}
	return false
}

// IndexInDir is Index with the files of dir.
func (c *Chooser) IndexInDir(r *buildrange.BuildRange, info *buildinfo.BuildInfo, dir string) (int, bool) {
	files, err := fileutil.ReadRegularFiles(dir)
	if err != nil {
		sklog.Warningf("Listing %s: %s", dir, err)
		return 0, false
	}
	return c.Index(r, info, files.Names())
}
