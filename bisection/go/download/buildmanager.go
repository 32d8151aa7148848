package download

import (
	"context"
	"io"
	"os"

	"go.buildbisect.org/infra/bisection/go/buildinfo"
	"go.buildbisect.org/infra/go/httputils/progress"
	"go.buildbisect.org/infra/go/skerr"
	"go.buildbisect.org/infra/go/sklog"
)

// Policy tells what happens to background downloads when a focus download
// starts.
type Policy string

const (
	// PolicyCancel cancels every download but the focused one.
	PolicyCancel Policy = "cancel"
	// PolicyKeep lets background downloads finish.
	PolicyKeep Policy = "keep"
)

// ParsePolicy returns the Policy named s.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case PolicyCancel, PolicyKeep:
		return Policy(s), nil
	}
	return "", skerr.Fmt("unknown background download policy %q", s)
}

// BuildManager downloads builds, either to test them now (focus) or ahead
// of time (background).
type BuildManager struct {
	*Manager
	policy Policy
	out    io.Writer
}

// NewBuildManager returns a BuildManager. Keeping background downloads of a
// temporary directory is useless, so the policy is forced to PolicyCancel
// when tmp is true.
func NewBuildManager(m *Manager, policy Policy, tmp bool, out io.Writer) *BuildManager {
	if tmp {
		policy = PolicyCancel
	}
	if out == nil {
		out = os.Stderr
	}
	return &BuildManager{
		Manager: m,
		policy:  policy,
		out:     out,
	}
}

// Policy returns the background download policy.
func (b *BuildManager) Policy() Policy {
	return b.policy
}

// Focus downloads the build, blocking until it is available, and sets its
// BuildFile.
func (b *BuildManager) Focus(ctx context.Context, info *buildinfo.BuildInfo) error {
	fname := info.PersistFilename()
	dest := b.Path(fname)
	info.BuildFile = dest
	if b.policy == PolicyCancel {
		b.Cancel(func(d *Download) bool {
			return d.Dest() != dest
		})
	}
	d := b.Download(ctx, info.BuildURL, fname, progress.TerminalPrinter(b.out))
	if d == nil {
		sklog.Infof("Using local file: %s", dest)
		return nil
	}
	sklog.Infof("Downloading build from: %s", info.BuildURL)
	if err := d.Wait(true); err != nil {
		return skerr.Wrapf(err, "downloading %s", info)
	}
	return nil
}

// Background starts the download of the build and returns without
// waiting.
func (b *BuildManager) Background(ctx context.Context, info *buildinfo.BuildInfo) {
	fname := info.PersistFilename()
	if d := b.Download(ctx, info.BuildURL, fname, nil); d != nil {
		sklog.Debugf("Downloading build %s in the background", info)
	}
}
