package datadir

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dendrascience/shotfs/util"
)

const testID = "3f2b8c1e-6d7a-4b5c-9e0f-123456789abc"

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestStore_WriteIsSharded(t *testing.T) {
	s := newTestStore(t)

	n, err := s.Write(testID, strings.NewReader("png bytes"))
	require.NoError(t, err)
	assert.Equal(t, int64(9), n)

	data, err := os.ReadFile(filepath.Join(s.Root(), "3", testID+".png"))
	require.NoError(t, err)
	assert.Equal(t, "png bytes", string(data))

	entries, err := os.ReadDir(filepath.Join(s.Root(), incomingDir))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_PlaceholderThenFinal(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.WritePlaceholder(testID))
	data, err := s.Read(testID, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, Placeholder, data)

	image := bytes.Repeat([]byte{0x89}, 4096)
	n, err := s.Write(testID, bytes.NewReader(image))
	require.NoError(t, err)
	assert.Equal(t, int64(len(image)), n)

	size, err := s.Size(testID)
	require.NoError(t, err)
	assert.Equal(t, int64(4096), size)
}

func TestStore_Read(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Write(testID, strings.NewReader("0123456789"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		offset int64
		length int
		want   string
	}{
		{name: "whole", offset: 0, length: 10, want: "0123456789"},
		{name: "middle", offset: 3, length: 4, want: "3456"},
		{name: "past end is truncated", offset: 8, length: 10, want: "89"},
		{name: "at end", offset: 10, length: 4, want: ""},
		{name: "beyond end", offset: 50, length: 4, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.Read(testID, tt.offset, tt.length)
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(got))
		})
	}
}

func TestStore_Missing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Read(testID, 0, 1)
	require.ErrorIs(t, err, ErrNotFound)

	_, err = s.Size(testID)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Remove(testID))
}

func TestStore_RejectsBadIDs(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Write("", strings.NewReader("x"))
	require.ErrorIs(t, err, util.ErrShortID)

	_, err = s.Write("../escape", strings.NewReader("x"))
	require.ErrorIs(t, err, util.ErrInvalidID)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("renderer crashed") }

func TestStore_FailedWriteLeavesPreviousContent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.WritePlaceholder(testID))

	_, err := s.Write(testID, failingReader{})
	require.Error(t, err)

	data, err := s.Read(testID, 0, 100)
	require.NoError(t, err)
	assert.Equal(t, Placeholder, data)

	entries, err := os.ReadDir(filepath.Join(s.Root(), incomingDir))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_WalkAndRemove(t *testing.T) {
	s := newTestStore(t)
	ids := []string{"a1", "b2", "c3"}
	for _, id := range ids {
		_, err := s.Write(id, strings.NewReader(id))
		require.NoError(t, err)
	}
	require.NoError(t, s.Remove("b2"))

	got := map[string]int64{}
	require.NoError(t, s.Walk(func(id string, size int64) error {
		got[id] = size
		return nil
	}))
	assert.Equal(t, map[string]int64{"a1": 2, "c3": 2}, got)
}

func TestStore_Sweep(t *testing.T) {
	s := newTestStore(t)
	stale := filepath.Join(s.Root(), incomingDir, "stale-1")
	require.NoError(t, os.WriteFile(stale, []byte("x"), 0o644))
	old := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))

	fresh := filepath.Join(s.Root(), incomingDir, "fresh-1")
	require.NoError(t, os.WriteFile(fresh, []byte("x"), 0o644))

	n, err := s.Sweep(10*time.Minute, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
}
