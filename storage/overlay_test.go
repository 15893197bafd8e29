package storage

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOverlayReadsThroughToBase(t *testing.T) {
	base := NewMemDB()
	require.NoError(t, base.Put([]byte("base-key"), []byte("base-value")))

	overlay := NewOverlay(base)
	value, err := overlay.Get([]byte("base-key"))
	require.NoError(t, err)
	require.Equal(t, []byte("base-value"), value)

	has, err := overlay.Has([]byte("base-key"))
	require.NoError(t, err)
	require.True(t, has)
}

func TestOverlayShadowsBase(t *testing.T) {
	base := NewMemDB()
	require.NoError(t, base.Put([]byte("key"), []byte("old")))

	overlay := NewOverlay(base)
	require.NoError(t, overlay.Put([]byte("key"), []byte("new")))

	value, err := overlay.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("new"), value)

	// The base stays untouched until commit.
	value, err = base.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("old"), value)
}

func TestOverlayDeleteHidesBaseKey(t *testing.T) {
	base := NewMemDB()
	require.NoError(t, base.Put([]byte("key"), []byte("value")))

	overlay := NewOverlay(base)
	require.NoError(t, overlay.Delete([]byte("key")))

	_, err := overlay.Get([]byte("key"))
	require.ErrorIs(t, err, ErrNotFound)

	has, err := overlay.Has([]byte("key"))
	require.NoError(t, err)
	require.False(t, has)

	// A later put revives the key.
	require.NoError(t, overlay.Put([]byte("key"), []byte("revived")))
	value, err := overlay.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("revived"), value)
}

func TestOverlayCommit(t *testing.T) {
	base := NewMemDB()
	require.NoError(t, base.Put([]byte("drop"), []byte("gone")))

	overlay := NewOverlay(base)
	require.NoError(t, overlay.Put([]byte("keep"), []byte("kept")))
	require.NoError(t, overlay.Delete([]byte("drop")))
	require.NoError(t, overlay.Commit())

	value, err := base.Get([]byte("keep"))
	require.NoError(t, err)
	require.Equal(t, []byte("kept"), value)

	_, err = base.Get([]byte("drop"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestOverlayDiscard(t *testing.T) {
	base := NewMemDB()
	require.NoError(t, base.Put([]byte("key"), []byte("value")))

	overlay := NewOverlay(base)
	require.NoError(t, overlay.Put([]byte("key"), []byte("changed")))
	require.NoError(t, overlay.Put([]byte("extra"), []byte("data")))
	overlay.Discard()

	value, err := overlay.Get([]byte("key"))
	require.NoError(t, err)
	require.Equal(t, []byte("value"), value)

	_, err = base.Get([]byte("extra"))
	require.ErrorIs(t, err, ErrNotFound)
}
