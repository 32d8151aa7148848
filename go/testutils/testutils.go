// Convenience utilities for testing.
package testutils

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// AnyContext can be used to match any context.Context argument of a mocked
// method.
var AnyContext = mock.MatchedBy(func(_ context.Context) bool {
	return true
})

// TestDataDir returns the path to the caller's testdata directory, which
// is assumed to be "<path to caller dir>/testdata".
func TestDataDir() (string, error) {
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		return "", fmt.Errorf("Could not find test data dir: runtime.Caller() failed.")
	}
	for skip := 0; ; skip++ {
		_, file, _, ok := runtime.Caller(skip)
		if !ok {
			return "", fmt.Errorf("Could not find test data dir: runtime.Caller() failed.")
		}
		if file != thisFile {
			return filepath.Join(filepath.Dir(file), "testdata"), nil
		}
	}
}

// ReadFile reads a file from the caller's testdata directory.
func ReadFile(filename string) (string, error) {
	dir, err := TestDataDir()
	if err != nil {
		return "", fmt.Errorf("Could not read %s: %v", filename, err)
	}
	b, err := os.ReadFile(filepath.Join(dir, filename))
	if err != nil {
		return "", fmt.Errorf("Could not read %s: %v", filename, err)
	}
	return string(b), nil
}

// MustReadFile reads a file from the caller's testdata directory and panics on
// error.
func MustReadFile(filename string) string {
	s, err := ReadFile(filename)
	if err != nil {
		panic(err)
	}
	return s
}

// WriteFile writes contents to name inside dir and fails the test on error.
// Returns the full path.
func WriteFile(t require.TestingT, dir, name, contents string) string {
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(contents), 0644))
	return p
}

// CloseInTest takes an ioutil.Closer and Closes it, reporting any error.
func CloseInTest(t require.TestingT, c io.Closer) {
	if err := c.Close(); err != nil {
		t.Errorf("Failed to Close(): %v", err)
	}
}
