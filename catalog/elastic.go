package catalog

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"strings"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/dendrascience/shotfs/internal/clock"
	"github.com/dendrascience/shotfs/internal/logger"
)

const (
	// retryOnConflict bounds how often Elasticsearch retries an update
	// that lost a version race before returning 409.
	retryOnConflict = 3
	// dequeueAttempts bounds how often a dequeue retries after another
	// worker deleted the entry it picked.
	dequeueAttempts = 3
	// maxAggregationSize caps terms aggregations and listing searches.
	maxAggregationSize = 10000
)

// Indices names the three collections.
type Indices struct {
	Uncrawled string
	Crawled   string
	Photos    string
}

// DefaultIndices returns the index names with an optional prefix.
func DefaultIndices(prefix string) Indices {
	return Indices{
		Uncrawled: prefix + "uncrawled",
		Crawled:   prefix + "crawled",
		Photos:    prefix + "photos",
	}
}

func (i Indices) all() []string {
	return []string{i.Uncrawled, i.Crawled, i.Photos}
}

// ElasticParams holds the dependencies of an Elastic catalog.
type ElasticParams struct {
	Client  *es.Client
	Indices Indices
	Clock   clock.Clock
	Logger  logger.Logger
}

// Elastic is a Catalog backed by Elasticsearch.
type Elastic struct {
	client  *es.Client
	idx     Indices
	clock   clock.Clock
	log     logger.Logger
	pick    func(n int) int
	refresh string
}

// NewElastic creates an Elasticsearch catalog. Zero-valued params fall
// back to the default index names, the system clock and a no-op logger.
func NewElastic(p ElasticParams) *Elastic {
	if p.Indices == (Indices{}) {
		p.Indices = DefaultIndices("")
	}
	if p.Clock == nil {
		p.Clock = clock.Real{}
	}
	if p.Logger == nil {
		p.Logger = logger.NewNop()
	}
	return &Elastic{
		client:  p.Client,
		idx:     p.Indices,
		clock:   p.Clock,
		log:     p.Logger,
		pick:    rand.IntN,
		refresh: "true",
	}
}

// Indices returns the index names in use.
func (e *Elastic) Indices() Indices {
	return e.idx
}

func encode(v any) (*bytes.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	return bytes.NewReader(data), nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, ErrBackendUnavailable, err)
}

// check turns an error response into one of the package's sentinel
// errors. The body is consumed on error.
func check(res *esapi.Response, op string) error {
	if !res.IsError() {
		return nil
	}
	body, _ := io.ReadAll(res.Body)
	switch {
	case res.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	case res.StatusCode == http.StatusConflict:
		return fmt.Errorf("%s: %w", op, ErrConflict)
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500:
		return fmt.Errorf("%s: %w: %s", op, ErrBackendUnavailable, res.Status())
	}
	return fmt.Errorf("%s: %s: %s", op, res.Status(), strings.TrimSpace(string(body)))
}

// do runs a request, checks the response and decodes the body into out
// when out is not nil.
func do(op string, res *esapi.Response, err error, out any) error {
	if err != nil {
		return unavailable(op, err)
	}
	defer res.Body.Close()

	if err := check(res, op); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

type searchHit struct {
	ID     string          `json:"_id"`
	Source json.RawMessage `json:"_source"`
}

type termsBucket struct {
	Key      string `json:"key"`
	DocCount int    `json:"doc_count"`
}

type searchResult struct {
	Hits struct {
		Hits []searchHit `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]struct {
		Buckets []termsBucket `json:"buckets"`
	} `json:"aggregations"`
}

func (r *searchResult) keys(agg string) []string {
	buckets := r.Aggregations[agg].Buckets
	out := make([]string, 0, len(buckets))
	for _, b := range buckets {
		out = append(out, b.Key)
	}
	return out
}

func (e *Elastic) search(ctx context.Context, index string, body map[string]any, size int) (*searchResult, error) {
	op := "search " + index
	r, err := encode(body)
	if err != nil {
		return nil, err
	}
	res, err := e.client.Search(
		e.client.Search.WithContext(ctx),
		e.client.Search.WithIndex(index),
		e.client.Search.WithBody(r),
		e.client.Search.WithSize(size),
	)
	var out searchResult
	if err := do(op, res, err, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *Elastic) count(ctx context.Context, index string, query map[string]any) (int, error) {
	op := "count " + index
	r, err := encode(map[string]any{"query": query})
	if err != nil {
		return 0, err
	}
	res, err := e.client.Count(
		e.client.Count.WithContext(ctx),
		e.client.Count.WithIndex(index),
		e.client.Count.WithBody(r),
	)
	var out struct {
		Count int `json:"count"`
	}
	if err := do(op, res, err, &out); err != nil {
		return 0, err
	}
	return out.Count, nil
}

func (e *Elastic) index(ctx context.Context, index, id string, doc any) error {
	op := "index " + index
	r, err := encode(doc)
	if err != nil {
		return err
	}
	res, err := e.client.Index(
		index,
		r,
		e.client.Index.WithContext(ctx),
		e.client.Index.WithDocumentID(id),
		e.client.Index.WithRefresh(e.refresh),
	)
	return do(op, res, err, nil)
}

func (e *Elastic) delete(ctx context.Context, index, id string) error {
	res, err := e.client.Delete(
		index,
		id,
		e.client.Delete.WithContext(ctx),
		e.client.Delete.WithRefresh(e.refresh),
	)
	return do("delete "+index, res, err, nil)
}

type updateResult struct {
	Result string `json:"result"`
}

func (e *Elastic) update(ctx context.Context, index, id string, body map[string]any) (updateResult, error) {
	op := "update " + index
	var out updateResult
	r, err := encode(body)
	if err != nil {
		return out, err
	}
	res, err := e.client.Update(
		index,
		id,
		r,
		e.client.Update.WithContext(ctx),
		e.client.Update.WithRetryOnConflict(retryOnConflict),
		e.client.Update.WithRefresh(e.refresh),
	)
	err = do(op, res, err, &out)
	return out, err
}

func term(field string, value any) map[string]any {
	return map[string]any{"term": map[string]any{field: value}}
}

func filtered(filters ...map[string]any) map[string]any {
	return map[string]any{"bool": map[string]any{"filter": filters}}
}

func termsAgg(field string, size int, order string) map[string]any {
	return map[string]any{
		"terms": map[string]any{
			"field": field,
			"size":  size,
			"order": map[string]any{"_key": order},
		},
	}
}

// Setup creates the three indices. Existing indices are left untouched.
func (e *Elastic) Setup(ctx context.Context) error {
	wanted := []struct {
		name    string
		mapping map[string]any
	}{
		{e.idx.Uncrawled, uncrawledMapping},
		{e.idx.Crawled, crawledMapping},
		{e.idx.Photos, photosMapping},
	}

	for _, ix := range wanted {
		r, err := encode(ix.mapping)
		if err != nil {
			return err
		}
		res, err := e.client.Indices.Create(
			ix.name,
			e.client.Indices.Create.WithContext(ctx),
			e.client.Indices.Create.WithBody(r),
		)
		err = do("create index "+ix.name, res, err, nil)
		if err != nil && strings.Contains(err.Error(), "resource_already_exists_exception") {
			e.log.Info("Index already exists", logger.String("index", ix.name))
			continue
		}
		if err != nil {
			return err
		}
		e.log.Info("Created index", logger.String("index", ix.name))
	}
	return nil
}

// Clear deletes the three indices.
func (e *Elastic) Clear(ctx context.Context) error {
	res, err := e.client.Indices.Delete(
		e.idx.all(),
		e.client.Indices.Delete.WithContext(ctx),
		e.client.Indices.Delete.WithIgnoreUnavailable(true),
	)
	if err := do("delete indices", res, err, nil); err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	e.log.Info("Deleted indices", logger.Strings("indices", e.idx.all()))
	return nil
}

var _ Catalog = (*Elastic)(nil)
