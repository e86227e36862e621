package weburl

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/dendrascience/shotfs/util"
)

// ImageExtension is appended to every derived filename.
const ImageExtension = ".png"

// ErrInvalidURL is returned for strings that are not absolute http(s) URLs
// with a dotted host.
var ErrInvalidURL = errors.New("invalid url")

// URL is a parsed, canonicalized web address. The zero value is not a
// valid URL; use Parse.
type URL struct {
	Scheme   string
	Host     string
	Path     string
	Query    string
	Fragment string

	id string
}

// Parse accepts only http and https URLs whose host contains a dot.
// Repeated path separators are collapsed and a single trailing slash is
// dropped, so "https://example.com/foo/" and "https://example.com/foo"
// share an identity.
func Parse(raw string) (URL, error) {
	raw = strings.TrimSpace(raw)
	p, err := url.Parse(raw)
	if err != nil {
		return URL{}, fmt.Errorf("%w: %q: %v", ErrInvalidURL, raw, err)
	}

	scheme := strings.ToLower(p.Scheme)
	if scheme != "http" && scheme != "https" {
		return URL{}, fmt.Errorf("%w: unsupported scheme in %q", ErrInvalidURL, raw)
	}
	if !strings.Contains(p.Host, ".") {
		return URL{}, fmt.Errorf("%w: host without domain separator in %q", ErrInvalidURL, raw)
	}

	u := URL{
		Scheme:   scheme,
		Host:     strings.ToLower(p.Host),
		Path:     normalizePath(p.EscapedPath()),
		Query:    p.RawQuery,
		Fragment: p.EscapedFragment(),
	}
	u.id = util.GetStringHash(u.String())
	return u, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// constants.
func MustParse(raw string) URL {
	u, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return u
}

func normalizePath(p string) string {
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return strings.TrimSuffix(p, "/")
}

// String returns the canonical form scheme://host/path[?query][#fragment].
func (u URL) String() string {
	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(u.Host)
	b.WriteString(u.Path)
	if u.Query != "" {
		b.WriteString("?")
		b.WriteString(u.Query)
	}
	if u.Fragment != "" {
		b.WriteString("#")
		b.WriteString(u.Fragment)
	}
	return b.String()
}

// Hash returns the hex SHA-256 of the canonical string. It is the URL's
// identity in the catalog.
func (u URL) Hash() string {
	if u.id != "" {
		return u.id
	}
	return util.GetStringHash(u.String())
}

// Domain is the host the URL belongs to, as used for the top level of
// the mounted filesystem.
func (u URL) Domain() string {
	return u.Host
}

// Child resolves a link found on the page at u. Links starting with "/"
// or "#" are resolved against the host; anything else is appended to the
// current path.
func (u URL) Child(uri string) (URL, error) {
	if uri == "" {
		return URL{}, fmt.Errorf("%w: empty uri", ErrInvalidURL)
	}
	base := u.Scheme + "://" + u.Host
	switch uri[0] {
	case '/', '#':
		return Parse(base + uri)
	}
	return Parse(base + u.Path + "/" + uri)
}

// Resolve turns an href attribute into a URL relative to u. Links with a
// scheme other than http(s) are rejected.
func (u URL) Resolve(href string) (URL, error) {
	href = strings.TrimSpace(href)
	if strings.HasPrefix(href, "//") {
		return Parse(u.Scheme + ":" + href)
	}
	p, err := url.Parse(href)
	if err != nil {
		return URL{}, fmt.Errorf("%w: %q: %v", ErrInvalidURL, href, err)
	}
	if p.Scheme != "" {
		return Parse(href)
	}
	return u.Child(href)
}
