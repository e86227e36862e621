package weburl

import (
	"net/url"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	nonWord    = regexp.MustCompile(`[^\w\s-]`)
	separators = regexp.MustCompile(`[-\s]+`)
)

// Slugify transliterates s into a lowercase, filesystem safe token.
// Accents are folded to their ASCII base, non-word characters are removed
// and runs of whitespace or dashes become a single dash.
func Slugify(s string) string {
	folded, _, err := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn))), s)
	if err != nil {
		folded = s
	}
	folded = strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII {
			return -1
		}
		return r
	}, folded)

	folded = nonWord.ReplaceAllString(folded, "")
	folded = strings.ToLower(strings.TrimSpace(folded))
	folded = separators.ReplaceAllString(folded, "-")
	return strings.Trim(folded, "-_")
}

type segment struct {
	value  string
	marker bool
}

// segments lists the path components followed by the synthetic "?" and
// "#" levels. The last element is what Filename encodes.
func (u URL) segments() []segment {
	var out []segment
	for _, part := range strings.Split(u.Path, "/") {
		if part == "" {
			continue
		}
		if decoded, err := url.PathUnescape(part); err == nil {
			part = decoded
		}
		out = append(out, segment{value: part})
	}
	if u.Query != "" {
		q := u.Query
		if decoded, err := url.QueryUnescape(q); err == nil {
			q = decoded
		}
		out = append(out, segment{value: "?", marker: true}, segment{value: q})
	}
	if u.Fragment != "" {
		f := u.Fragment
		if decoded, err := url.PathUnescape(f); err == nil {
			f = decoded
		}
		out = append(out, segment{value: "#", marker: true}, segment{value: f})
	}
	return out
}

// Filename is the slug of the fragment, else the query, else the last path
// segment, else "index", with ImageExtension appended.
func (u URL) Filename() string {
	segs := u.segments()
	name := ""
	if len(segs) > 0 {
		name = Slugify(segs[len(segs)-1].value)
	}
	if name == "" {
		name = "index"
	}
	return name + ImageExtension
}

// Directory is the slugged path of u without the component Filename
// already encodes. Query and fragment become "?/<slug>/" and "#/<slug>/"
// levels. The result always begins and ends with a slash.
func (u URL) Directory() string {
	segs := u.segments()
	if len(segs) == 0 {
		return "/"
	}

	var b strings.Builder
	b.WriteString("/")
	for _, s := range segs[:len(segs)-1] {
		part := s.value
		if !s.marker {
			part = Slugify(part)
		}
		if part == "" {
			continue
		}
		b.WriteString(part)
		b.WriteString("/")
	}
	return b.String()
}
