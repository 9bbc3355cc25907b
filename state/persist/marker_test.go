package persist

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/ks0066/log2"
)

func tempDir(t *testing.T) string {
	dir, err := ioutil.TempDir("", "ks0066-persist-")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	return dir
}

func TestMarkers(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		new  func(t *testing.T) Marker
	}{
		{"file", func(t *testing.T) Marker {
			return NewFileMarker(filepath.Join(tempDir(t), "ks0066_init"))
		}},
		{"extremo", func(t *testing.T) Marker {
			m, err := NewExtremoMarker(tempDir(t), log2.NewTest(t, log2.LDebug))
			require.NoError(t, err)
			return m
		}},
		{"memory", func(t *testing.T) Marker { return &MemoryMarker{} }},
	}
	for _, c := range cases {
		c := c
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			m := c.new(t)
			s, err := m.Load()
			require.NoError(t, err)
			assert.Equal(t, Uninitialized, s)

			require.NoError(t, m.Store(Initialized))
			s, err = m.Load()
			require.NoError(t, err)
			assert.Equal(t, Initialized, s)

			require.NoError(t, m.Store(Uninitialized))
			s, err = m.Load()
			require.NoError(t, err)
			assert.Equal(t, Uninitialized, s)
		})
	}
}

func TestFileMarkerPresenceOnly(t *testing.T) {
	t.Parallel()

	path := filepath.Join(tempDir(t), "marker")
	require.NoError(t, ioutil.WriteFile(path, nil, 0600))
	s, err := NewFileMarker(path).Load()
	require.NoError(t, err)
	assert.Equal(t, Initialized, s, "empty file still means initialized")

	b, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Empty(t, b)
	require.NoError(t, NewFileMarker(path).Store(Initialized))
	b, err = ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "OK", string(b))
}

func TestFileMarkerStoreError(t *testing.T) {
	t.Parallel()

	m := NewFileMarker(filepath.Join(tempDir(t), "missing-dir", "marker"))
	err := m.Store(Initialized)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store=initialized")
	assert.True(t, errors.IsNotValid(m.Store(State(7))))
}

func TestStateBinary(t *testing.T) {
	t.Parallel()

	for _, s := range []State{Uninitialized, Initialized} {
		b, err := s.MarshalBinary()
		require.NoError(t, err)
		assert.NotEmpty(t, b, "state=%s", s)
		var back State = 7
		require.NoError(t, back.UnmarshalBinary(b))
		assert.Equal(t, s, back)
	}
	var s State
	assert.True(t, errors.IsNotValid(s.UnmarshalBinary([]byte("garbage"))))
	_, err := State(7).MarshalBinary()
	assert.True(t, errors.IsNotValid(err))
}

func TestExtremoMarkerRestart(t *testing.T) {
	t.Parallel()

	root := tempDir(t)
	log := log2.NewTest(t, log2.LDebug)
	m1, err := NewExtremoMarker(root, log)
	require.NoError(t, err)
	require.NoError(t, m1.Store(Initialized))

	m2, err := NewExtremoMarker(root, log)
	require.NoError(t, err)
	s, err := m2.Load()
	require.NoError(t, err)
	assert.Equal(t, Initialized, s)

	// reset must survive restart too
	require.NoError(t, m2.Store(Uninitialized))
	m3, err := NewExtremoMarker(root, log)
	require.NoError(t, err)
	s, err = m3.Load()
	require.NoError(t, err)
	assert.Equal(t, Uninitialized, s)

	_, err = NewExtremoMarker("", log)
	assert.True(t, errors.IsNotValid(err))
}
