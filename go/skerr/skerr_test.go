package skerr

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errSentinel = errors.New("sentinel")

func TestWrap_Nil_ReturnsNil(t *testing.T) {
	assert.NoError(t, Wrap(nil))
	assert.NoError(t, Wrapf(nil, "context %d", 1))
}

func TestWrap_KeepsIdentity(t *testing.T) {
	err := Wrap(errSentinel)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errSentinel))
	assert.Equal(t, errSentinel, Unwrap(err))
	assert.Contains(t, err.Error(), "sentinel. At skerr/skerr_test.go:")
}

func TestWrap_AlreadyWrapped_NotDoubled(t *testing.T) {
	err := Wrap(errSentinel)
	assert.Same(t, err, Wrap(err))
}

func TestWrapf_StacksContextOutermostFirst(t *testing.T) {
	err := Wrapf(errSentinel, "reading %s", "a")
	err = Wrapf(err, "loading")
	assert.True(t, errors.Is(err, errSentinel))
	assert.Contains(t, err.Error(), "loading: reading a: sentinel")
}

func TestFmt_SupportsPercentW(t *testing.T) {
	err := Fmt("short read: %w", io.ErrUnexpectedEOF)
	assert.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	assert.Contains(t, err.Error(), "short read")
}

func TestAs_FindsTypedError(t *testing.T) {
	type myErr struct{ error }
	err := Wrapf(&myErr{errSentinel}, "ctx")
	var target *myErr
	assert.True(t, errors.As(err, &target))
}
