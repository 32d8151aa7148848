package util

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIn(t *testing.T) {
	assert.True(t, In("autoland", []string{"mozilla-inbound", "autoland"}))
	assert.False(t, In("beta", []string{"mozilla-inbound", "autoland"}))
	assert.False(t, In("", nil))
}

func TestReverse_DoesNotModifyInput(t *testing.T) {
	in := []int{1, 2, 3}
	assert.Equal(t, []int{3, 2, 1}, Reverse(in))
	assert.Equal(t, []int{1, 2, 3}, in)
	assert.Empty(t, Reverse([]string{}))
}

func TestRemove_MissingFile_NoPanic(t *testing.T) {
	Remove(filepath.Join(t.TempDir(), "nope"))
}

func TestWithReadFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(f, []byte("contents"), 0644))
	var got []byte
	require.NoError(t, WithReadFile(f, func(r io.Reader) error {
		var err error
		got, err = io.ReadAll(r)
		return err
	}))
	assert.Equal(t, "contents", string(got))

	assert.Error(t, WithReadFile(f+".missing", func(io.Reader) error { return nil }))
}
