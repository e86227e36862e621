package crawler

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSeedFile_NextConsumesLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seeds.txt")
	require.NoError(t, os.WriteFile(path, []byte("\nhttps://a.example.com\n  \nhttps://b.example.com"), 0o644))

	s, err := OpenSeedFile(path)
	require.NoError(t, err)

	line, ok, err := s.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://a.example.com", line)

	rest, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "  \nhttps://b.example.com", string(rest))

	line, ok, err = s.Next()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "https://b.example.com", line)

	_, ok, err = s.Next()
	require.NoError(t, err)
	assert.False(t, ok)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestOpenSeedFile_Missing(t *testing.T) {
	_, err := OpenSeedFile(filepath.Join(t.TempDir(), "nope.txt"))
	require.ErrorIs(t, err, ErrSeedFileNotFound)
}

func TestParseSeeds(t *testing.T) {
	input := strings.Join([]string{
		"# seeds",
		"https://example.com/",
		"",
		"ftp://example.com/file",
		"http://news.example.org/today",
		"localhost",
	}, "\n")

	urls, invalid, err := ParseSeeds(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, urls, 2)
	assert.Equal(t, "https://example.com", urls[0].String())
	assert.Equal(t, "http://news.example.org/today", urls[1].String())
	assert.Equal(t, []string{"ftp://example.com/file", "localhost"}, invalid)
}
