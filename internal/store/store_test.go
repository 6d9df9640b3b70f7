package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenMissingFileIsEmpty(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "positions.yaml"))
	require.NoError(t, err)
	_, ok := s.Get("Notch")
	require.False(t, ok)
}

func TestSaveAndReopenRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.yaml")
	s, err := Open(path)
	require.NoError(t, err)

	s.Set("Notch", Position{Backend: 2, X: 1, Y: 64, Z: -3, Yaw: 90})
	require.NoError(t, s.Save())

	reopened, err := Open(path)
	require.NoError(t, err)
	p, ok := reopened.Get("Notch")
	require.True(t, ok)
	require.Equal(t, float64(1), p.X)
	require.Equal(t, float32(90), p.Yaw)
}

func TestCloseSavesOutstandingChanges(t *testing.T) {
	path := filepath.Join(t.TempDir(), "positions.yaml")
	s, err := Open(path)
	require.NoError(t, err)
	s.Set("Dinnerbone", Position{Backend: 0})
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	_, ok := reopened.Get("Dinnerbone")
	require.True(t, ok)
}
