package download

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"github.com/hashicorp/go-multierror"

	"go.buildbisect.org/infra/bisection/go/persistlimit"
	"go.buildbisect.org/infra/go/fileutil"
	"go.buildbisect.org/infra/go/httputils/progress"
	"go.buildbisect.org/infra/go/skerr"
)

// Manager runs downloads into one directory, at most one per destination.
type Manager struct {
	dir     string
	client  *http.Client
	limiter *persistlimit.Limiter

	mtx       sync.Mutex
	downloads map[string]*Download
	// Cancelled downloads which have not ended yet.
	draining map[*Download]struct{}
}

// NewManager returns a Manager writing into dir. limiter may be nil.
func NewManager(dir string, c *http.Client, limiter *persistlimit.Limiter) (*Manager, error) {
	if _, err := fileutil.EnsureDirExists(dir); err != nil {
		return nil, skerr.Wrapf(err, "creating download dir %s", dir)
	}
	return &Manager{
		dir:       dir,
		client:    c,
		limiter:   limiter,
		downloads: map[string]*Download{},
		draining:  map[*Download]struct{}{},
	}, nil
}

// Dir returns the download directory.
func (m *Manager) Dir() string {
	return m.dir
}

// Path returns the destination of fname.
func (m *Manager) Path(fname string) string {
	return filepath.Join(m.dir, fname)
}

// Download starts the download of url into fname, or returns the download
// already running for fname. It returns nil if fname is already present
// in the download directory. progress replaces the progress func of a
// running download when not nil. A cancelled download is never returned.
func (m *Manager) Download(ctx context.Context, url, fname string, fn progress.Func) *Download {
	dest := m.Path(fname)
	m.mtx.Lock()
	defer m.mtx.Unlock()
	if d, ok := m.downloads[dest]; ok {
		if !d.IsCancelled() {
			if fn != nil {
				d.SetProgress(fn)
			}
			return d
		}
		m.untrackLocked(d)
	}
	if _, err := os.Stat(dest); err == nil {
		return nil
	}
	d := NewDownload(url, dest, m.client)
	d.SetProgress(fn)
	d.OnFinished(m.finished)
	m.downloads[dest] = d
	d.Start(ctx)
	return d
}

func (m *Manager) finished(d *Download) {
	m.mtx.Lock()
	if m.downloads[d.Dest()] == d {
		delete(m.downloads, d.Dest())
	}
	delete(m.draining, d)
	m.mtx.Unlock()
	if d.err != nil || d.IsCancelled() || m.limiter == nil {
		return
	}
	if fi, err := os.Stat(d.Dest()); err == nil {
		m.limiter.Approve(d.Dest(), uint64(fi.Size()))
	}
}

// Downloads returns the running downloads.
func (m *Manager) Downloads() []*Download {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	rv := make([]*Download, 0, len(m.downloads))
	for _, d := range m.downloads {
		rv = append(rv, d)
	}
	return rv
}

// IsRunning returns true if a download into fname is running.
func (m *Manager) IsRunning(fname string) bool {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	_, ok := m.downloads[m.Path(fname)]
	return ok
}

// Cancel cancels the running downloads for which cancel returns true, or
// all of them if cancel is nil. Cancelled downloads stop being tracked
// right away. It does not wait.
func (m *Manager) Cancel(cancel func(*Download) bool) {
	for _, d := range m.Downloads() {
		if cancel == nil || cancel(d) {
			d.Cancel()
			m.mtx.Lock()
			m.untrackLocked(d)
			m.mtx.Unlock()
		}
	}
}

// untrackLocked moves a cancelled download out of the running ones. Wait
// still waits for it.
func (m *Manager) untrackLocked(d *Download) {
	if m.downloads[d.Dest()] != d {
		return
	}
	delete(m.downloads, d.Dest())
	m.draining[d] = struct{}{}
}

// Wait waits for all running downloads, and for the cancelled ones which
// have not ended yet. If raiseOnError is true, the errors of the downloads
// are returned.
func (m *Manager) Wait(raiseOnError bool) error {
	m.mtx.Lock()
	all := make([]*Download, 0, len(m.downloads)+len(m.draining))
	for _, d := range m.downloads {
		all = append(all, d)
	}
	for d := range m.draining {
		all = append(all, d)
	}
	m.mtx.Unlock()
	var errs *multierror.Error
	for _, d := range all {
		if err := d.Wait(raiseOnError); err != nil {
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}
