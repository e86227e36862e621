// Package weburl parses and canonicalizes web addresses and derives the
// identity and filesystem names used for their captures.
//
// A URL's identity is the SHA-256 of its canonical string. Two addresses
// that differ only by repeated slashes or a trailing slash share an
// identity. Filename and Directory are pure functions of the URL, so every
// capture of the same page lands at the same place in the mounted tree:
//
//	https://example.com/foo/baz/BAR-123/index.html
//	  Directory() == "/foo/baz/bar-123/"
//	  Filename()  == "indexhtml.png"
//
// Distinct URLs may map to the same directory and filename. The last
// capture written wins.
package weburl
