package fileutil

import (
	"os"
	"path/filepath"
	"sort"

	"go.buildbisect.org/infra/go/sklog"
)

// EnsureDirExists checks whether the given path to a directory exits and creates it
// if necessary. Returns the absolute path that corresponds to the input path
// and an error indicating a problem.
func EnsureDirExists(dirPath string) (string, error) {
	absPath, err := filepath.Abs(dirPath)
	if err != nil {
		return "", err
	}

	return absPath, os.MkdirAll(absPath, 0700)
}

// Must checks whether err in the provided pair (s, err) is nil. If so it
// returns s otherwise it cause the program to stop with the error message.
func Must(s string, err error) string {
	if err != nil {
		sklog.Fatal(err)
	}
	return s
}

// FileInfoSlice is a slice of regular files in one directory.
type FileInfoSlice []os.FileInfo

// SortByModTime orders the slice oldest first. Ties are broken by name so the
// order is stable across runs.
func (s FileInfoSlice) SortByModTime() {
	sort.SliceStable(s, func(i, j int) bool {
		ti, tj := s[i].ModTime(), s[j].ModTime()
		if ti.Equal(tj) {
			return s[i].Name() < s[j].Name()
		}
		return ti.Before(tj)
	})
}

// Names returns the base names of the files.
func (s FileInfoSlice) Names() []string {
	rv := make([]string, 0, len(s))
	for _, fi := range s {
		rv = append(rv, fi.Name())
	}
	return rv
}

// ReadRegularFiles returns the regular files directly inside dir. A missing
// directory yields an empty slice.
func ReadRegularFiles(dir string) (FileInfoSlice, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return FileInfoSlice{}, nil
	} else if err != nil {
		return nil, err
	}
	rv := make(FileInfoSlice, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		fi, err := e.Info()
		if os.IsNotExist(err) {
			// Removed since ReadDir.
			continue
		} else if err != nil {
			return nil, err
		}
		rv = append(rv, fi)
	}
	return rv, nil
}
