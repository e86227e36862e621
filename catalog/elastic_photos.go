package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dendrascience/shotfs/refresh"
)

func locationFilters(loc Location) []map[string]any {
	return []map[string]any{
		term("domain", loc.Domain),
		term("refresh_rate", loc.Cadence.Tag()),
		term("captured_at", loc.Bucket),
	}
}

func decodePhotos(hits []searchHit) ([]PhotoRecord, error) {
	out := make([]PhotoRecord, 0, len(hits))
	for _, hit := range hits {
		var doc photoDoc
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			return nil, fmt.Errorf("decode photo %s: %w", hit.ID, err)
		}
		out = append(out, doc.record(hit.ID))
	}
	return out, nil
}

func (e *Elastic) terms(ctx context.Context, query map[string]any, field, order string, size int) ([]string, error) {
	res, err := e.search(ctx, e.idx.Photos, map[string]any{
		"query": query,
		"aggs":  map[string]any{field: termsAgg(field, size, order)},
	}, 0)
	if err != nil {
		return nil, err
	}
	return res.keys(field), nil
}

func (e *Elastic) Domains(ctx context.Context, c refresh.Cadence) ([]string, error) {
	return e.terms(ctx, filtered(term("refresh_rate", c.Tag())), "domain", "asc", maxAggregationSize)
}

func (e *Elastic) Buckets(ctx context.Context, domain string, c refresh.Cadence) ([]string, error) {
	query := filtered(term("refresh_rate", c.Tag()), term("domain", domain))
	return e.terms(ctx, query, "captured_at", "asc", maxAggregationSize)
}

func (e *Elastic) LatestBucket(ctx context.Context, domain string, c refresh.Cadence) (string, error) {
	query := filtered(term("refresh_rate", c.Tag()), term("domain", domain))
	keys, err := e.terms(ctx, query, "captured_at", "desc", 1)
	if err != nil {
		return "", err
	}
	if len(keys) == 0 {
		return "", fmt.Errorf("latest bucket of %s: %w", domain, ErrNotFound)
	}
	return keys[0], nil
}

func (e *Elastic) FindFile(ctx context.Context, loc Location, directory, filename string) (PhotoRecord, error) {
	filters := append(locationFilters(loc), term("directory", directory), term("filename", filename))
	res, err := e.search(ctx, e.idx.Photos, map[string]any{
		"query": filtered(filters...),
		"sort":  []map[string]any{{"created_at": map[string]any{"order": "desc"}}},
	}, 1)
	if err != nil {
		return PhotoRecord{}, err
	}
	photos, err := decodePhotos(res.Hits.Hits)
	if err != nil {
		return PhotoRecord{}, err
	}
	if len(photos) == 0 {
		return PhotoRecord{}, fmt.Errorf("%s%s: %w", directory, filename, ErrNotFound)
	}
	return photos[0], nil
}

func directoryPrefix(directory string) map[string]any {
	return map[string]any{"prefix": map[string]any{"directory": directory}}
}

func (e *Elastic) DirectoryExists(ctx context.Context, loc Location, directory string) (bool, error) {
	filters := append(locationFilters(loc), directoryPrefix(directory))
	n, err := e.count(ctx, e.idx.Photos, filtered(filters...))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListDirectory fetches the files of directory as hits and every
// directory below it as an aggregation in one request. The post filter
// narrows the hits without affecting the aggregation.
func (e *Elastic) ListDirectory(ctx context.Context, loc Location, directory string) (Listing, error) {
	filters := append(locationFilters(loc), directoryPrefix(directory))
	res, err := e.search(ctx, e.idx.Photos, map[string]any{
		"query":       filtered(filters...),
		"post_filter": term("directory", directory),
		"aggs": map[string]any{
			"directory": termsAgg("directory", maxAggregationSize, "asc"),
		},
	}, maxAggregationSize)
	if err != nil {
		return Listing{}, err
	}
	files, err := decodePhotos(res.Hits.Hits)
	if err != nil {
		return Listing{}, err
	}
	return Listing{
		Files:       newestPerFilename(files),
		Directories: subdirectories(directory, res.keys("directory")),
	}, nil
}
