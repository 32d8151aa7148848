// Package progress reports how many bytes of a transfer have been read.
package progress

import (
	"fmt"
	"io"
	"sync"

	"github.com/dustin/go-humanize"
)

// Func receives the number of bytes read so far and the expected total. The
// total is -1 when the size is unknown.
type Func func(current, total int64)

// callbackReader is an io.Reader which calls a function whenever bytes are
// read.
type callbackReader struct {
	io.Reader
	current int64
	total   int64
	cb      Func
}

// Read implements io.Reader.
func (r *callbackReader) Read(p []byte) (int, error) {
	n, err := r.Reader.Read(p)
	if n > 0 {
		r.current += int64(n)
		r.cb(r.current, r.total)
	}
	return n, err
}

// NewReader returns an io.Reader which calls cb after every non-empty read.
// cb is called once with zero bytes before NewReader returns.
func NewReader(r io.Reader, total int64, cb Func) io.Reader {
	if cb == nil {
		return r
	}
	cb(0, total)
	return &callbackReader{
		Reader: r,
		total:  total,
		cb:     cb,
	}
}

var _ io.Reader = &callbackReader{}

// Describe returns a short human readable summary of a transfer.
func Describe(current, total int64) string {
	if total <= 0 {
		return fmt.Sprintf("%s transferred", humanize.Bytes(uint64(current)))
	}
	return fmt.Sprintf("%d%% (%s of %s)", current*100/total, humanize.Bytes(uint64(current)), humanize.Bytes(uint64(total)))
}

// TerminalPrinter returns a Func which keeps rewriting one line of w. Only
// changes of the whole percentage are printed.
func TerminalPrinter(w io.Writer) Func {
	var mtx sync.Mutex
	last := int64(-1)
	return func(current, total int64) {
		mtx.Lock()
		defer mtx.Unlock()
		pct := int64(-1)
		if total > 0 {
			pct = current * 100 / total
			if pct == last {
				return
			}
			last = pct
		}
		_, _ = fmt.Fprintf(w, "\r===== Downloaded %s =====", Describe(current, total))
		if total > 0 && current >= total {
			_, _ = fmt.Fprintln(w)
		}
	}
}
