package catalog

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dendrascience/shotfs/refresh"
	"github.com/dendrascience/shotfs/weburl"
)

// UncrawledEntry is a discovered link waiting to be fetched.
type UncrawledEntry struct {
	ID        string
	URL       string
	CreatedAt time.Time
}

// CrawledRecord is the registry entry for a URL that has been fetched at
// least once. LockFormat and LockValue are only written by checkout.
type CrawledRecord struct {
	ID         string
	URL        string
	CreatedAt  time.Time
	StatusCode int
	LockFormat string
	LockValue  string
}

// LockedFor reports whether the record is checked out for the given
// cadence bucket.
func (r CrawledRecord) LockedFor(c refresh.Cadence, bucket string) bool {
	return r.LockFormat == c.Tag() && r.LockValue == bucket
}

// PhotoRecord describes one capture. Filesize is zero while the capture
// is still rendering.
type PhotoRecord struct {
	ID          string
	URLID       string
	RefreshRate string
	CapturedAt  string
	Filesize    int64
	Filename    string
	Directory   string
	Domain      string
	CreatedAt   time.Time
}

// NewPhoto creates the placeholder record for a capture of u. Directory,
// Filename and Domain are always derived from the URL.
func NewPhoto(u weburl.URL, c refresh.Cadence, bucket string, now time.Time) PhotoRecord {
	return PhotoRecord{
		ID:          uuid.NewString(),
		URLID:       u.Hash(),
		RefreshRate: c.Tag(),
		CapturedAt:  bucket,
		Filename:    u.Filename(),
		Directory:   u.Directory(),
		Domain:      u.Domain(),
		CreatedAt:   now,
	}
}

// Loading reports whether the capture has not been finalized yet.
func (p PhotoRecord) Loading() bool {
	return p.Filesize == 0
}

// Finalized returns a copy of p with the stored image size set.
func (p PhotoRecord) Finalized(filesize int64) PhotoRecord {
	p.Filesize = filesize
	return p
}

// Path is the record's location below its bucket directory.
func (p PhotoRecord) Path() string {
	return p.Directory + p.Filename
}

// Location scopes photo queries to one domain, cadence and bucket.
type Location struct {
	Domain  string
	Cadence refresh.Cadence
	Bucket  string
}

// Listing is the content of one virtual directory.
type Listing struct {
	Files       []PhotoRecord
	Directories []string
}

// subdirectories returns the first path segment below prefix for every
// directory in dirs that lies strictly under prefix, de-duplicated and in
// first-seen order.
//
//	subdirectories("/a/", ["/a/b/c/", "/a/b/", "/a/d/", "/x/"]) == ["b", "d"]
func subdirectories(prefix string, dirs []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, dir := range dirs {
		if !strings.HasPrefix(dir, prefix) {
			continue
		}
		rest := strings.TrimPrefix(dir, prefix)
		name, _, _ := strings.Cut(rest, "/")
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
