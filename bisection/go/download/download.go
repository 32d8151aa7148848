// Package download transfers builds into a download directory. Transfers
// run in their own goroutine, are deduplicated by destination and can be
// cancelled between two chunks.
package download

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"go.buildbisect.org/infra/go/httputils"
	"go.buildbisect.org/infra/go/httputils/progress"
	"go.buildbisect.org/infra/go/skerr"
	"go.buildbisect.org/infra/go/sklog"
	"go.buildbisect.org/infra/go/util"
)

// CHUNK_SIZE is the number of bytes written between two cancellation checks.
const CHUNK_SIZE = 16 * 1024

// ErrInterrupted is returned by Wait for a cancelled Download.
var ErrInterrupted = errors.New("download interrupted")

// Download is one transfer from a url to a destination file. The file only
// appears at its destination once complete: data is written to a hidden
// temporary file of the same directory, which is removed on error or
// cancellation.
type Download struct {
	url       string
	dest      string
	client    *http.Client
	chunkSize int

	cancelled atomic.Bool
	started   atomic.Bool
	done      chan struct{}
	err       error

	mtx      sync.Mutex
	progress progress.Func
	finished []func(*Download)
}

// NewDownload returns a Download which is not started yet.
func NewDownload(url, dest string, c *http.Client) *Download {
	if c == nil {
		c = httputils.NewTimeoutClient()
	}
	return &Download{
		url:       url,
		dest:      dest,
		client:    c,
		chunkSize: CHUNK_SIZE,
		done:      make(chan struct{}),
	}
}

// URL returns the source url.
func (d *Download) URL() string {
	return d.url
}

// Dest returns the destination path.
func (d *Download) Dest() string {
	return d.dest
}

// SetProgress sets the func notified of the progress of the transfer. It can
// be changed while the transfer runs.
func (d *Download) SetProgress(fn progress.Func) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.progress = fn
}

func (d *Download) reportProgress(current, total int64) {
	d.mtx.Lock()
	fn := d.progress
	d.mtx.Unlock()
	if fn != nil {
		fn(current, total)
	}
}

// OnFinished registers a func called once the transfer has ended, whatever
// the outcome, before Wait returns. Funcs must be registered before Start.
func (d *Download) OnFinished(fn func(*Download)) {
	d.mtx.Lock()
	defer d.mtx.Unlock()
	d.finished = append(d.finished, fn)
}

// Start runs the transfer in a new goroutine. Later calls do nothing.
func (d *Download) Start(ctx context.Context) {
	if !d.started.CompareAndSwap(false, true) {
		return
	}
	go d.run(ctx)
}

// Cancel asks the transfer to stop. It returns immediately.
func (d *Download) Cancel() {
	d.cancelled.Store(true)
}

// IsCancelled returns true if Cancel was called.
func (d *Download) IsCancelled() bool {
	return d.cancelled.Load()
}

// IsRunning returns true if the transfer was started and is not finished.
func (d *Download) IsRunning() bool {
	if !d.started.Load() {
		return false
	}
	select {
	case <-d.done:
		return false
	default:
		return true
	}
}

// Done returns a channel closed once the transfer has ended.
func (d *Download) Done() <-chan struct{} {
	return d.done
}

// Error returns the error of a finished transfer.
func (d *Download) Error() error {
	select {
	case <-d.done:
		return d.err
	default:
		return nil
	}
}

// Wait blocks until the transfer ends. If raiseOnError is true, the error
// of the transfer is returned, ErrInterrupted if it was cancelled.
func (d *Download) Wait(raiseOnError bool) error {
	<-d.done
	if !raiseOnError {
		return nil
	}
	if d.IsCancelled() {
		return skerr.Wrapf(ErrInterrupted, "%s", d.url)
	}
	return d.err
}

func (d *Download) run(ctx context.Context) {
	d.err = d.transfer(ctx)
	if d.err != nil && !d.IsCancelled() {
		sklog.Errorf("Download of %s failed: %s", d.url, d.err)
	}
	d.mtx.Lock()
	finished := d.finished
	d.mtx.Unlock()
	for _, fn := range finished {
		fn(d)
	}
	close(d.done)
}

func (d *Download) transfer(ctx context.Context) error {
	resp, err := httputils.GetWithContext(ctx, d.client, d.url)
	if err != nil {
		return skerr.Wrapf(err, "downloading %s", d.url)
	}
	defer util.Close(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return skerr.Wrap(&httputils.StatusError{
			StatusCode: resp.StatusCode,
			Method:     http.MethodGet,
			URL:        d.url,
			Body:       httputils.ReadAndClose(resp.Body),
		})
	}

	tmp := filepath.Join(filepath.Dir(d.dest), "."+uuid.New().String()+".tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return skerr.Wrap(err)
	}
	if err := d.copy(f, progress.NewReader(resp.Body, resp.ContentLength, d.reportProgress)); err != nil {
		util.Close(f)
		util.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		util.Remove(tmp)
		return skerr.Wrap(err)
	}
	util.Remove(d.dest)
	if err := os.Rename(tmp, d.dest); err != nil {
		util.Remove(tmp)
		return skerr.Wrap(err)
	}
	return nil
}

func (d *Download) copy(w io.Writer, r io.Reader) error {
	buf := make([]byte, d.chunkSize)
	for {
		if d.IsCancelled() {
			return ErrInterrupted
		}
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return skerr.Wrap(werr)
			}
		}
		if err == io.EOF {
			if d.IsCancelled() {
				return ErrInterrupted
			}
			return nil
		} else if err != nil {
			return skerr.Wrapf(err, "reading %s", d.url)
		}
	}
}
