package mount

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath(t *testing.T) {
	tests := []struct {
		raw       string
		want      Path
		hasBucket bool
		hasEnd    bool
		dir       string
	}{
		{raw: "/", want: Path{End: "/"}, dir: "/"},
		{raw: "/example.com", want: Path{Domain: "example.com", End: "/"}, dir: "/"},
		{raw: "/example.com/", want: Path{Domain: "example.com", End: "/"}, dir: "/"},
		{raw: "/example.com/2024030514", want: Path{Domain: "example.com", Bucket: "2024030514", End: "/"}, hasBucket: true, dir: "/"},
		{raw: "/example.com/latest/", want: Path{Domain: "example.com", Bucket: "latest", End: "/"}, hasBucket: true, dir: "/"},
		{raw: "/example.com/latest/index.png", want: Path{Domain: "example.com", Bucket: "latest", End: "/index.png"}, hasBucket: true, hasEnd: true, dir: "/index.png/"},
		{raw: "/example.com/b/foo/", want: Path{Domain: "example.com", Bucket: "b", End: "/foo"}, hasBucket: true, hasEnd: true, dir: "/foo/"},
		{raw: "/example.com/b/foo/bar.png", want: Path{Domain: "example.com", Bucket: "b", End: "/foo/bar.png"}, hasBucket: true, hasEnd: true, dir: "/foo/bar.png/"},
		{raw: "/example.com/b/foo/bar.png.rendering.saas", want: Path{Domain: "example.com", Bucket: "b", End: "/foo/bar.png"}, hasBucket: true, hasEnd: true, dir: "/foo/bar.png/"},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParsePath(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.hasBucket, got.HasBucket())
			assert.Equal(t, tt.hasEnd, got.HasEnd())
			assert.Equal(t, tt.dir, got.EndAsDirectory())
		})
	}
}

func TestParsePathRejectsRelative(t *testing.T) {
	tests := []string{
		"",
		"example.com/latest",
		"//x/y",
		"//",
		"/../latest",
		"/example.com/..",
		"/example.com/b/./a.png",
		"/example.com/b/foo/../bar.png",
		"/example.com//a.png",
	}

	for _, raw := range tests {
		t.Run(raw, func(t *testing.T) {
			_, err := ParsePath(raw)
			require.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}

func TestPathEndAsFile(t *testing.T) {
	tests := []struct {
		end      string
		dir      string
		filename string
	}{
		{end: "/index.png", dir: "/", filename: "index.png"},
		{end: "/foo/bar.png", dir: "/foo/", filename: "bar.png"},
		{end: "/foo/?/x1.png", dir: "/foo/?/", filename: "x1.png"},
	}

	for _, tt := range tests {
		t.Run(tt.end, func(t *testing.T) {
			dir, filename := Path{End: tt.end}.EndAsFile()
			assert.Equal(t, tt.dir, dir)
			assert.Equal(t, tt.filename, filename)
		})
	}
}

func TestPathString(t *testing.T) {
	for _, raw := range []string{"/", "/example.com", "/example.com/latest/", "/example.com/b/foo/bar.png"} {
		p, err := ParsePath(raw)
		require.NoError(t, err)
		reparsed, err := ParsePath(p.String())
		require.NoError(t, err)
		assert.Equal(t, p, reparsed, raw)
	}
}
