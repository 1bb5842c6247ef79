package resource

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectionError(t *testing.T) {
	err := &CollectionError{Op: "List", URL: "ftp://host/test", Err: ErrNotDirectory}

	assert.Equal(t, "collect List ftp://host/test: scan location is not a directory", err.Error())
	assert.ErrorIs(t, err, ErrNotDirectory)
	assert.True(t, IsCollection(err))
	assert.False(t, IsUtils(err))
}

func TestUtilsError(t *testing.T) {
	withURL := &UtilsError{Op: "CopyResource", URL: "file:///a", Err: errors.New("disk full")}
	assert.Equal(t, "resource CopyResource file:///a: disk full", withURL.Error())

	noURL := &UtilsError{Op: "GetResources", Err: ErrInvalidPattern}
	assert.Equal(t, "resource GetResources: invalid glob pattern", noURL.Error())
	assert.ErrorIs(t, noURL, ErrInvalidPattern)
	assert.True(t, IsUtils(noURL))
}

func TestNewCollectionError(t *testing.T) {
	r := MustParse("ftp://host/test")

	t.Run("nil passes through", func(t *testing.T) {
		assert.NoError(t, NewCollectionError("List", r, nil))
	})

	t.Run("wraps transport failure", func(t *testing.T) {
		cause := errors.New("connection reset")
		err := NewCollectionError("List", r, cause)

		var ce *CollectionError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "List", ce.Op)
		assert.Equal(t, "ftp://host/test", ce.URL)
		assert.ErrorIs(t, err, cause)
	})

	t.Run("identity errors are not wrapped", func(t *testing.T) {
		hostErr := &InvalidHostError{URL: "ftp://other/x", Expected: "host", Got: "other"}
		err := NewCollectionError("List", r, hostErr)
		assert.Same(t, hostErr, err)
	})

	t.Run("existing collection error is not doubled", func(t *testing.T) {
		inner := &CollectionError{Op: "List", URL: "ftp://host/test/dir", Err: ErrTraversalCycle}
		err := NewCollectionError("List", r, inner)
		assert.Same(t, inner, err)
	})
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, IsNotFound(ErrNotFound))
	assert.True(t, IsNotFound(&CollectionError{Err: ErrScanLocationNotFound}))
	assert.False(t, IsNotFound(ErrNotDirectory))
}

func TestIdentityErrorMessages(t *testing.T) {
	hostErr := &InvalidHostError{URL: "ftp://other/x", Expected: "host", Got: "other"}
	assert.Equal(t, `invalid host "other" in ftp://other/x (expected "host")`, hostErr.Error())

	schemeErr := &WrongSchemeError{URL: "file:///x", Expected: "ftp", Got: "file"}
	assert.Equal(t, `wrong scheme "file" in file:///x (expected "ftp")`, schemeErr.Error())
}
