package mount

import (
	"fmt"
	"strings"
)

const (
	// LatestAlias is the bucket name that always refers to the newest
	// bucket of a domain.
	LatestAlias = "latest"
	// RenderingSuffix marks captures whose image has not been written yet.
	RenderingSuffix = ".rendering.saas"
)

// Path is a parsed filesystem path. Bucket may still be LatestAlias.
type Path struct {
	Domain string
	Bucket string
	// End is everything below the bucket with a leading slash. A trailing
	// slash is dropped when End has more than one component.
	End string
}

// ParsePath splits an absolute filesystem path into its domain, bucket
// and remainder. Any RenderingSuffix is removed first, so a placeholder
// resolves to the record it was listed for. Paths with "." or ".."
// segments, an empty domain or an empty bucket are rejected.
func ParsePath(raw string) (Path, error) {
	if !strings.HasPrefix(raw, "/") {
		return Path{}, fmt.Errorf("%w: %q must start with a slash", ErrInvalidPath, raw)
	}
	raw = strings.ReplaceAll(raw, RenderingSuffix, "")

	pieces := strings.Split(raw, "/")
	for _, piece := range pieces {
		if piece == "." || piece == ".." {
			return Path{}, fmt.Errorf("%w: %q has a relative segment", ErrInvalidPath, raw)
		}
	}
	switch {
	case pieces[1] == "" && len(pieces) > 2:
		return Path{}, fmt.Errorf("%w: %q has an empty domain", ErrInvalidPath, raw)
	case len(pieces) > 3 && pieces[2] == "":
		return Path{}, fmt.Errorf("%w: %q has an empty bucket", ErrInvalidPath, raw)
	}

	var p Path
	p.Domain = pieces[1]
	if len(pieces) >= 3 {
		p.Bucket = pieces[2]
	}

	var rest []string
	if len(pieces) > 3 {
		rest = pieces[3:]
	}
	p.End = "/" + strings.Join(rest, "/")
	if len(rest) > 1 {
		p.End = strings.TrimRight(p.End, "/")
	}
	return p, nil
}

func (p Path) IsRoot() bool    { return p.Domain == "" }
func (p Path) HasBucket() bool { return p.Bucket != "" }

// HasEnd reports whether the path goes below the bucket directory.
func (p Path) HasEnd() bool {
	return p.End != "" && p.End != "/"
}

// EndAsDirectory returns End with exactly one trailing slash.
func (p Path) EndAsDirectory() string {
	return strings.TrimRight(p.End, "/") + "/"
}

// EndAsFile splits End into the directory and filename a photo record
// would carry.
func (p Path) EndAsFile() (directory, filename string) {
	i := strings.LastIndex(p.End, "/")
	return p.End[:i+1], p.End[i+1:]
}

func (p Path) String() string {
	switch {
	case p.IsRoot():
		return "/"
	case !p.HasBucket():
		return "/" + p.Domain
	}
	return "/" + p.Domain + "/" + p.Bucket + p.End
}
