package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dendrascience/shotfs/internal/logger"
	"github.com/dendrascience/shotfs/refresh"
	"github.com/dendrascience/shotfs/weburl"
)

// lockScript takes the checkout lock unless another worker already holds
// it for the same bucket, in which case the update is a noop.
const lockScript = `if (ctx._source.lock_format == params.tag && ctx._source.lock_value == params.bucket) { ctx.op = 'noop' } else { ctx._source.lock_format = params.tag; ctx._source.lock_value = params.bucket }`

// existingIDs returns which of ids are present in index. Lookups are
// split so no single search asks for more hits than the result window.
func (e *Elastic) existingIDs(ctx context.Context, index string, ids []string) (map[string]bool, error) {
	found := make(map[string]bool)
	for batch := range slices.Chunk(ids, maxAggregationSize) {
		res, err := e.search(ctx, index, map[string]any{
			"_source": false,
			"query":   map[string]any{"ids": map[string]any{"values": batch}},
		}, len(batch))
		if err != nil {
			return nil, err
		}
		for _, hit := range res.Hits.Hits {
			found[hit.ID] = true
		}
	}
	return found, nil
}

type bulkResult struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error"`
	} `json:"items"`
}

func (r bulkResult) firstError() error {
	for _, item := range r.Items {
		for action, status := range item {
			if status.Error != nil {
				return fmt.Errorf("%s %s: %s: %s", action, status.ID, status.Error.Type, status.Error.Reason)
			}
		}
	}
	return nil
}

func (e *Elastic) EnqueueUncrawled(ctx context.Context, urls []weburl.URL) (int, error) {
	if len(urls) == 0 {
		return 0, nil
	}

	byID := make(map[string]weburl.URL, len(urls))
	ids := make([]string, 0, len(urls))
	for _, u := range urls {
		id := u.Hash()
		if _, ok := byID[id]; ok {
			continue
		}
		byID[id] = u
		ids = append(ids, id)
	}

	crawled, err := e.existingIDs(ctx, e.idx.Crawled, ids)
	if err != nil {
		return 0, err
	}

	now := e.clock.Now().UTC()
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	queued := 0
	for _, id := range ids {
		if crawled[id] {
			continue
		}
		action := map[string]any{"index": map[string]any{"_index": e.idx.Uncrawled, "_id": id}}
		if err := enc.Encode(action); err != nil {
			return 0, fmt.Errorf("encode bulk action: %w", err)
		}
		if err := enc.Encode(uncrawledDoc{URL: byID[id].String(), CreatedAt: now}); err != nil {
			return 0, fmt.Errorf("encode bulk document: %w", err)
		}
		queued++
	}
	if queued == 0 {
		return 0, nil
	}

	res, err := e.client.Bulk(
		&body,
		e.client.Bulk.WithContext(ctx),
		e.client.Bulk.WithRefresh(e.refresh),
	)
	var out bulkResult
	if err := do("bulk enqueue", res, err, &out); err != nil {
		return 0, err
	}
	if out.Errors {
		return 0, fmt.Errorf("bulk enqueue: %w", out.firstError())
	}

	e.log.Debug("Enqueued URLs",
		logger.Int("queued", queued),
		logger.Int("skipped", len(urls)-queued),
	)
	return queued, nil
}

func (e *Elastic) DequeueUncrawled(ctx context.Context) (UncrawledEntry, error) {
	query := map[string]any{
		"query": map[string]any{
			"function_score": map[string]any{
				"query":        map[string]any{"match_all": map[string]any{}},
				"random_score": map[string]any{},
			},
		},
	}

	for range dequeueAttempts {
		res, err := e.search(ctx, e.idx.Uncrawled, query, 1)
		if err != nil {
			return UncrawledEntry{}, err
		}
		if len(res.Hits.Hits) == 0 {
			return UncrawledEntry{}, ErrEmptyQueue
		}

		hit := res.Hits.Hits[0]
		var doc uncrawledDoc
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			return UncrawledEntry{}, fmt.Errorf("decode uncrawled %s: %w", hit.ID, err)
		}

		err = e.delete(ctx, e.idx.Uncrawled, hit.ID)
		if errors.Is(err, ErrNotFound) {
			// Another worker dequeued it first.
			continue
		}
		if err != nil {
			return UncrawledEntry{}, err
		}
		return doc.record(hit.ID), nil
	}
	return UncrawledEntry{}, fmt.Errorf("dequeue: %w", ErrConflict)
}

func (e *Elastic) PromoteToCrawled(ctx context.Context, u weburl.URL, statusCode int) error {
	_, err := e.update(ctx, e.idx.Crawled, u.Hash(), map[string]any{
		"doc": map[string]any{
			"url":         u.String(),
			"status_code": statusCode,
		},
		"upsert": crawledDoc{
			URL:        u.String(),
			CreatedAt:  e.clock.Now().UTC(),
			StatusCode: statusCode,
		},
	})
	return err
}

func eligibleQuery(c refresh.Cadence, bucket string) map[string]any {
	return map[string]any{
		"bool": map[string]any{
			"filter": []map[string]any{term("status_code", 200)},
			"must_not": []map[string]any{
				filtered(term("lock_format", c.Tag()), term("lock_value", bucket)),
			},
		},
	}
}

func (e *Elastic) CountEligible(ctx context.Context, c refresh.Cadence) (int, error) {
	return e.count(ctx, e.idx.Crawled, eligibleQuery(c, c.Bucket(e.clock.Now())))
}

func (e *Elastic) CheckoutForCapture(ctx context.Context, c refresh.Cadence) (weburl.URL, error) {
	bucket := c.Bucket(e.clock.Now())
	res, err := e.search(ctx, e.idx.Crawled, map[string]any{
		"query": eligibleQuery(c, bucket),
		"sort":  []map[string]any{{"created_at": map[string]any{"order": "desc"}}},
	}, checkoutCandidates)
	if err != nil {
		return weburl.URL{}, err
	}
	hits := res.Hits.Hits
	if len(hits) == 0 {
		return weburl.URL{}, ErrEmptyQueue
	}

	hit := hits[e.pick(len(hits))]
	var doc crawledDoc
	if err := json.Unmarshal(hit.Source, &doc); err != nil {
		return weburl.URL{}, fmt.Errorf("decode crawled %s: %w", hit.ID, err)
	}
	u, err := weburl.Parse(doc.URL)
	if err != nil {
		return weburl.URL{}, fmt.Errorf("crawled record %s: %w", hit.ID, err)
	}

	out, err := e.update(ctx, e.idx.Crawled, hit.ID, map[string]any{
		"script": map[string]any{
			"source": lockScript,
			"lang":   "painless",
			"params": map[string]any{"tag": c.Tag(), "bucket": bucket},
		},
	})
	if err != nil {
		return weburl.URL{}, err
	}
	if out.Result == "noop" {
		return weburl.URL{}, fmt.Errorf("checkout %s: %w", hit.ID, ErrConflict)
	}
	return u, nil
}

func (e *Elastic) SavePhoto(ctx context.Context, p PhotoRecord) error {
	return e.index(ctx, e.idx.Photos, p.ID, newPhotoDoc(p))
}

func (e *Elastic) CountPhotosSince(ctx context.Context, since time.Time) (int, error) {
	return e.count(ctx, e.idx.Photos, filtered(
		map[string]any{"range": map[string]any{"created_at": map[string]any{"gte": since.UTC().Format(time.RFC3339Nano)}}},
		map[string]any{"range": map[string]any{"filesize": map[string]any{"gt": 0}}},
	))
}
