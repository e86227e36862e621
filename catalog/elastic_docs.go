package catalog

import (
	"time"
)

// Document shapes stored in Elasticsearch. They only exist at the store
// boundary; everything else works with the typed records.

type uncrawledDoc struct {
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

type crawledDoc struct {
	URL        string    `json:"url"`
	CreatedAt  time.Time `json:"created_at"`
	StatusCode int       `json:"status_code"`
	LockFormat string    `json:"lock_format,omitempty"`
	LockValue  string    `json:"lock_value,omitempty"`
}

type photoDoc struct {
	URLID       string    `json:"url_id"`
	RefreshRate string    `json:"refresh_rate"`
	CapturedAt  string    `json:"captured_at"`
	Filesize    int64     `json:"filesize"`
	Filename    string    `json:"filename"`
	Directory   string    `json:"directory"`
	Domain      string    `json:"domain"`
	CreatedAt   time.Time `json:"created_at"`
}

func (d uncrawledDoc) record(id string) UncrawledEntry {
	return UncrawledEntry{ID: id, URL: d.URL, CreatedAt: d.CreatedAt}
}

func (d crawledDoc) record(id string) CrawledRecord {
	return CrawledRecord{
		ID:         id,
		URL:        d.URL,
		CreatedAt:  d.CreatedAt,
		StatusCode: d.StatusCode,
		LockFormat: d.LockFormat,
		LockValue:  d.LockValue,
	}
}

func newPhotoDoc(p PhotoRecord) photoDoc {
	return photoDoc{
		URLID:       p.URLID,
		RefreshRate: p.RefreshRate,
		CapturedAt:  p.CapturedAt,
		Filesize:    p.Filesize,
		Filename:    p.Filename,
		Directory:   p.Directory,
		Domain:      p.Domain,
		CreatedAt:   p.CreatedAt,
	}
}

func (d photoDoc) record(id string) PhotoRecord {
	return PhotoRecord{
		ID:          id,
		URLID:       d.URLID,
		RefreshRate: d.RefreshRate,
		CapturedAt:  d.CapturedAt,
		Filesize:    d.Filesize,
		Filename:    d.Filename,
		Directory:   d.Directory,
		Domain:      d.Domain,
		CreatedAt:   d.CreatedAt,
	}
}

func keyword() map[string]any { return map[string]any{"type": "keyword"} }
func date() map[string]any    { return map[string]any{"type": "date"} }

func mappings(properties map[string]any) map[string]any {
	return map[string]any{
		"mappings": map[string]any{
			"dynamic":    "strict",
			"properties": properties,
		},
	}
}

var (
	uncrawledMapping = mappings(map[string]any{
		"url":        keyword(),
		"created_at": date(),
	})

	crawledMapping = mappings(map[string]any{
		"url":         keyword(),
		"created_at":  date(),
		"status_code": map[string]any{"type": "short"},
		"lock_format": keyword(),
		"lock_value":  keyword(),
	})

	photosMapping = mappings(map[string]any{
		"url_id":       keyword(),
		"refresh_rate": keyword(),
		"captured_at":  keyword(),
		"filesize":     map[string]any{"type": "long"},
		"filename":     keyword(),
		"directory":    keyword(),
		"domain":       keyword(),
		"created_at":   date(),
	})
)
