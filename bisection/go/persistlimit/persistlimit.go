// Package persistlimit bounds the number of bytes used by the builds kept in
// a download directory.
package persistlimit

import (
	"math"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/golang-lru/simplelru"

	"go.buildbisect.org/infra/go/fileutil"
	"go.buildbisect.org/infra/go/skerr"
	"go.buildbisect.org/infra/go/sklog"
	"go.buildbisect.org/infra/go/util"
)

// Limiter approves the files written to a directory, removing the oldest
// approved files when the total size would go over the budget. It is safe
// for concurrent use.
type Limiter struct {
	mtx     sync.Mutex
	budget  uint64
	total   uint64
	entries *simplelru.LRU
}

// New returns a Limiter of the given budget in bytes. A zero budget approves
// everything.
func New(budget uint64) *Limiter {
	// Eviction is driven by size, not by count.
	entries, err := simplelru.NewLRU(math.MaxInt32, nil)
	if err != nil {
		panic(err)
	}
	return &Limiter{
		budget:  budget,
		entries: entries,
	}
}

// Budget returns the budget in bytes.
func (l *Limiter) Budget() uint64 {
	return l.budget
}

// Total returns the size of the approved files.
func (l *Limiter) Total() uint64 {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	return l.total
}

// Files returns the approved files, oldest first.
func (l *Limiter) Files() []string {
	l.mtx.Lock()
	defer l.mtx.Unlock()
	rv := make([]string, 0, l.entries.Len())
	for _, k := range l.entries.Keys() {
		rv = append(rv, k.(string))
	}
	return rv
}

// Approve records a file of the given size. If it does not fit in the
// budget, the oldest approved files are deleted until it does or until no
// other file is left. The file is always approved.
func (l *Limiter) Approve(path string, size uint64) bool {
	if l.budget == 0 {
		return true
	}
	l.mtx.Lock()
	defer l.mtx.Unlock()
	if size > l.budget {
		sklog.Warningf("%s (%s) is larger than the persist size limit %s", path, humanize.Bytes(size), humanize.Bytes(l.budget))
	}
	if old, ok := l.entries.Peek(path); ok {
		l.entries.Remove(path)
		l.total -= old.(uint64)
	}
	for l.total+size > l.budget {
		key, value, ok := l.entries.RemoveOldest()
		if !ok {
			break
		}
		evicted := key.(string)
		l.total -= value.(uint64)
		sklog.Infof("Removing %s (%s) to stay under the persist size limit %s", filepath.Base(evicted), humanize.Bytes(value.(uint64)), humanize.Bytes(l.budget))
		util.Remove(evicted)
	}
	l.entries.Add(path, size)
	l.total += size
	return true
}

// RegisterDir approves the files already present in dir, oldest first, so
// that they count in the budget and are evicted first. Hidden files, such
// as downloads in progress, are ignored.
func (l *Limiter) RegisterDir(dir string) error {
	files, err := fileutil.ReadRegularFiles(dir)
	if err != nil {
		return skerr.Wrapf(err, "listing %s", dir)
	}
	files.SortByModTime()
	for _, fi := range files {
		if strings.HasPrefix(fi.Name(), ".") {
			continue
		}
		l.Approve(filepath.Join(dir, fi.Name()), uint64(fi.Size()))
	}
	return nil
}
