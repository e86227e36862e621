package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dendrascience/shotfs/internal/clock"
	"github.com/dendrascience/shotfs/refresh"
	"github.com/dendrascience/shotfs/weburl"
)

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   string
}

// mockTransport answers Elasticsearch requests from RoundTripFn and keeps
// every request it saw.
type mockTransport struct {
	mu          sync.Mutex
	requests    []recordedRequest
	RoundTripFn func(req recordedRequest) (int, string)
	Err         error
}

func (t *mockTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	rec := recordedRequest{Method: req.Method, Path: req.URL.Path, Query: req.URL.RawQuery}
	if req.Body != nil {
		body, _ := io.ReadAll(req.Body)
		rec.Body = string(body)
	}
	t.mu.Lock()
	t.requests = append(t.requests, rec)
	t.mu.Unlock()

	if t.Err != nil {
		return nil, t.Err
	}
	status, body := t.RoundTripFn(rec)
	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
		Header:     http.Header{"X-Elastic-Product": []string{"Elasticsearch"}},
	}, nil
}

func (t *mockTransport) recorded() []recordedRequest {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]recordedRequest(nil), t.requests...)
}

var testNow = time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)

func newTestElastic(t *testing.T, transport *mockTransport) *Elastic {
	t.Helper()
	client, err := es.NewClient(es.Config{Transport: transport, MaxRetries: 0, DisableRetry: true})
	require.NoError(t, err)
	return NewElastic(ElasticParams{Client: client, Clock: clock.NewStub(testNow)})
}

func TestElastic_CheckoutLocksChosenCandidate(t *testing.T) {
	transport := &mockTransport{RoundTripFn: func(req recordedRequest) (int, string) {
		switch {
		case strings.HasSuffix(req.Path, "/_search"):
			return 200, `{"hits":{"hits":[
				{"_id":"a","_source":{"url":"https://example.com/a","created_at":"2024-03-05T14:00:00Z","status_code":200}},
				{"_id":"b","_source":{"url":"https://example.com/b","created_at":"2024-03-05T13:00:00Z","status_code":200}}
			]}}`
		case strings.HasPrefix(req.Path, "/crawled/_update/"):
			return 200, `{"result":"updated"}`
		}
		return 400, `{}`
	}}
	cat := newTestElastic(t, transport)
	cat.pick = func(n int) int { return n - 1 }

	u, err := cat.CheckoutForCapture(context.Background(), refresh.Hourly)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/b", u.String())

	reqs := transport.recorded()
	require.Len(t, reqs, 2)

	search := reqs[0]
	assert.Equal(t, "/crawled/_search", search.Path)
	assert.Contains(t, search.Query, "size=5")
	assert.Contains(t, search.Body, `"status_code":200`)
	assert.Contains(t, search.Body, `"lock_value":"2024030514"`)
	assert.Contains(t, search.Body, `"must_not"`)

	update := reqs[1]
	assert.Equal(t, "/crawled/_update/b", update.Path)
	assert.Contains(t, update.Query, "retry_on_conflict=3")
	assert.Contains(t, update.Body, `"tag":"hourly"`)
	assert.Contains(t, update.Body, `"bucket":"2024030514"`)
}

func TestElastic_CheckoutNoopIsConflict(t *testing.T) {
	transport := &mockTransport{RoundTripFn: func(req recordedRequest) (int, string) {
		if strings.HasSuffix(req.Path, "/_search") {
			return 200, `{"hits":{"hits":[{"_id":"a","_source":{"url":"https://example.com/a","status_code":200}}]}}`
		}
		return 200, `{"result":"noop"}`
	}}
	cat := newTestElastic(t, transport)

	_, err := cat.CheckoutForCapture(context.Background(), refresh.Daily)
	require.ErrorIs(t, err, ErrConflict)
}

func TestElastic_CheckoutEmpty(t *testing.T) {
	transport := &mockTransport{RoundTripFn: func(recordedRequest) (int, string) {
		return 200, `{"hits":{"hits":[]}}`
	}}
	cat := newTestElastic(t, transport)

	_, err := cat.CheckoutForCapture(context.Background(), refresh.Hourly)
	require.ErrorIs(t, err, ErrEmptyQueue)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestElastic_CountEligible(t *testing.T) {
	transport := &mockTransport{RoundTripFn: func(req recordedRequest) (int, string) {
		return 200, `{"count":7}`
	}}
	cat := newTestElastic(t, transport)

	n, err := cat.CountEligible(context.Background(), refresh.EveryMinute)
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	reqs := transport.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/crawled/_count", reqs[0].Path)
	assert.Contains(t, reqs[0].Body, `"lock_value":"202403051430"`)
}

func TestElastic_DequeueRetriesWhenEntryIsTaken(t *testing.T) {
	deletes := 0
	transport := &mockTransport{RoundTripFn: func(req recordedRequest) (int, string) {
		if req.Method == http.MethodDelete {
			deletes++
			if deletes == 1 {
				return 404, `{"result":"not_found"}`
			}
			return 200, `{"result":"deleted"}`
		}
		return 200, `{"hits":{"hits":[{"_id":"abc","_source":{"url":"https://example.com/x","created_at":"2024-03-05T14:00:00Z"}}]}}`
	}}
	cat := newTestElastic(t, transport)

	entry, err := cat.DequeueUncrawled(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", entry.ID)
	assert.Equal(t, "https://example.com/x", entry.URL)
	assert.Equal(t, 2, deletes)

	reqs := transport.recorded()
	assert.Contains(t, reqs[0].Body, "random_score")
	assert.Equal(t, "/uncrawled/_doc/abc", reqs[1].Path)
}

func TestElastic_DequeueGivesUpAfterRepeatedRaces(t *testing.T) {
	transport := &mockTransport{RoundTripFn: func(req recordedRequest) (int, string) {
		if req.Method == http.MethodDelete {
			return 404, `{"result":"not_found"}`
		}
		return 200, `{"hits":{"hits":[{"_id":"abc","_source":{"url":"https://example.com/x"}}]}}`
	}}
	cat := newTestElastic(t, transport)

	_, err := cat.DequeueUncrawled(context.Background())
	require.ErrorIs(t, err, ErrConflict)
}

func TestElastic_DequeueEmpty(t *testing.T) {
	transport := &mockTransport{RoundTripFn: func(recordedRequest) (int, string) {
		return 200, `{"hits":{"hits":[]}}`
	}}
	cat := newTestElastic(t, transport)

	_, err := cat.DequeueUncrawled(context.Background())
	require.ErrorIs(t, err, ErrEmptyQueue)
}

func TestElastic_EnqueueSkipsCrawledIdentities(t *testing.T) {
	known := weburl.MustParse("https://example.com/known")
	fresh := weburl.MustParse("https://example.com/fresh")

	transport := &mockTransport{RoundTripFn: func(req recordedRequest) (int, string) {
		if req.Path == "/crawled/_search" {
			return 200, `{"hits":{"hits":[{"_id":"` + known.Hash() + `"}]}}`
		}
		return 200, `{"errors":false,"items":[{"index":{"_id":"` + fresh.Hash() + `","status":201}}]}`
	}}
	cat := newTestElastic(t, transport)

	n, err := cat.EnqueueUncrawled(context.Background(), []weburl.URL{known, fresh, fresh})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	reqs := transport.recorded()
	require.Len(t, reqs, 2)
	assert.Contains(t, reqs[0].Body, known.Hash())
	assert.Equal(t, "/_bulk", reqs[1].Path)

	lines := strings.Split(strings.TrimSpace(reqs[1].Body), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], fresh.Hash())
	assert.Contains(t, lines[1], "https://example.com/fresh")
}

func TestElastic_EnqueueSplitsCrawledLookups(t *testing.T) {
	urls := make([]weburl.URL, 0, maxAggregationSize+1)
	for i := range maxAggregationSize + 1 {
		urls = append(urls, weburl.MustParse(fmt.Sprintf("https://example.com/page-%d", i)))
	}
	known := urls[len(urls)-1]

	transport := &mockTransport{RoundTripFn: func(req recordedRequest) (int, string) {
		if req.Path == "/crawled/_search" {
			if strings.Contains(req.Body, known.Hash()) {
				return 200, `{"hits":{"hits":[{"_id":"` + known.Hash() + `"}]}}`
			}
			return 200, `{"hits":{"hits":[]}}`
		}
		return 200, `{"errors":false,"items":[]}`
	}}
	cat := newTestElastic(t, transport)

	n, err := cat.EnqueueUncrawled(context.Background(), urls)
	require.NoError(t, err)
	assert.Equal(t, maxAggregationSize, n)

	reqs := transport.recorded()
	require.Len(t, reqs, 3)
	assert.Equal(t, "/crawled/_search", reqs[0].Path)
	assert.Contains(t, reqs[0].Query, fmt.Sprintf("size=%d", maxAggregationSize))
	assert.Equal(t, "/crawled/_search", reqs[1].Path)
	assert.Contains(t, reqs[1].Query, "size=1")
	assert.NotContains(t, reqs[0].Body, known.Hash())
	assert.Equal(t, "/_bulk", reqs[2].Path)
	assert.NotContains(t, reqs[2].Body, known.Hash())
}

func TestElastic_EnqueueReportsItemErrors(t *testing.T) {
	transport := &mockTransport{RoundTripFn: func(req recordedRequest) (int, string) {
		if req.Path == "/crawled/_search" {
			return 200, `{"hits":{"hits":[]}}`
		}
		return 200, `{"errors":true,"items":[{"index":{"_id":"x","status":400,"error":{"type":"mapper_parsing_exception","reason":"bad"}}}]}`
	}}
	cat := newTestElastic(t, transport)

	_, err := cat.EnqueueUncrawled(context.Background(), []weburl.URL{weburl.MustParse("https://example.com/")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mapper_parsing_exception")
}

func TestElastic_PromoteUpserts(t *testing.T) {
	transport := &mockTransport{RoundTripFn: func(recordedRequest) (int, string) {
		return 201, `{"result":"created"}`
	}}
	cat := newTestElastic(t, transport)
	u := weburl.MustParse("https://example.com/page")

	require.NoError(t, cat.PromoteToCrawled(context.Background(), u, 200))

	reqs := transport.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, "/crawled/_update/"+u.Hash(), reqs[0].Path)
	assert.Contains(t, reqs[0].Body, `"upsert"`)
	assert.Contains(t, reqs[0].Body, `"status_code":200`)
}

func TestElastic_LatestBucket(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr error
	}{
		{
			name: "newest bucket",
			body: `{"aggregations":{"captured_at":{"buckets":[{"key":"2024030514","doc_count":3}]}}}`,
			want: "2024030514",
		},
		{
			name:    "no captures",
			body:    `{"aggregations":{"captured_at":{"buckets":[]}}}`,
			wantErr: ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &mockTransport{RoundTripFn: func(recordedRequest) (int, string) {
				return 200, tt.body
			}}
			cat := newTestElastic(t, transport)

			got, err := cat.LatestBucket(context.Background(), "example.com", refresh.Hourly)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Contains(t, transport.recorded()[0].Body, `"_key":"desc"`)
		})
	}
}

func TestElastic_ListDirectory(t *testing.T) {
	transport := &mockTransport{RoundTripFn: func(recordedRequest) (int, string) {
		return 200, `{
			"hits":{"hits":[
				{"_id":"old","_source":{"filename":"a.png","directory":"/docs/","filesize":10,"created_at":"2024-03-05T14:01:00Z"}},
				{"_id":"new","_source":{"filename":"a.png","directory":"/docs/","filesize":20,"created_at":"2024-03-05T14:05:00Z"}},
				{"_id":"b","_source":{"filename":"b.png","directory":"/docs/","filesize":0,"created_at":"2024-03-05T14:02:00Z"}}
			]},
			"aggregations":{"directory":{"buckets":[
				{"key":"/docs/","doc_count":3},
				{"key":"/docs/api/","doc_count":1},
				{"key":"/docs/api/v1/","doc_count":1},
				{"key":"/docs/guide/","doc_count":2}
			]}}
		}`
	}}
	cat := newTestElastic(t, transport)
	loc := Location{Domain: "example.com", Cadence: refresh.Hourly, Bucket: "2024030514"}

	listing, err := cat.ListDirectory(context.Background(), loc, "/docs/")
	require.NoError(t, err)

	require.Len(t, listing.Files, 2)
	assert.Equal(t, "new", listing.Files[0].ID)
	assert.Equal(t, int64(20), listing.Files[0].Filesize)
	assert.True(t, listing.Files[1].Loading())
	assert.Equal(t, []string{"api", "guide"}, listing.Directories)

	body := transport.recorded()[0].Body
	assert.Contains(t, body, `"prefix":{"directory":"/docs/"}`)
	assert.Contains(t, body, `"post_filter"`)
	assert.Contains(t, body, `"captured_at":"2024030514"`)
}

func TestElastic_DirectoryExists(t *testing.T) {
	transport := &mockTransport{RoundTripFn: func(recordedRequest) (int, string) {
		return 200, `{"count":0}`
	}}
	cat := newTestElastic(t, transport)

	ok, err := cat.DirectoryExists(context.Background(), Location{Domain: "example.com", Cadence: refresh.Daily, Bucket: "20240305"}, "/nope/")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestElastic_FindFileMissing(t *testing.T) {
	transport := &mockTransport{RoundTripFn: func(recordedRequest) (int, string) {
		return 200, `{"hits":{"hits":[]}}`
	}}
	cat := newTestElastic(t, transport)

	_, err := cat.FindFile(context.Background(), Location{Domain: "example.com", Cadence: refresh.Hourly, Bucket: "2024030514"}, "/", "index.png")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestElastic_ErrorClassification(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		err     error
		wantErr error
	}{
		{name: "transport failure", err: errors.New("dial tcp: connection refused"), wantErr: ErrBackendUnavailable},
		{name: "server error", status: 500, wantErr: ErrBackendUnavailable},
		{name: "throttled", status: 429, wantErr: ErrBackendUnavailable},
		{name: "missing index", status: 404, wantErr: ErrNotFound},
		{name: "version conflict", status: 409, wantErr: ErrConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transport := &mockTransport{
				Err: tt.err,
				RoundTripFn: func(recordedRequest) (int, string) {
					return tt.status, `{"error":{"type":"x"}}`
				},
			}
			cat := newTestElastic(t, transport)

			_, err := cat.Domains(context.Background(), refresh.Hourly)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestElastic_SetupToleratesExistingIndices(t *testing.T) {
	transport := &mockTransport{RoundTripFn: func(req recordedRequest) (int, string) {
		if req.Path == "/crawled" {
			return 400, `{"error":{"type":"resource_already_exists_exception"}}`
		}
		return 200, `{"acknowledged":true}`
	}}
	cat := newTestElastic(t, transport)

	require.NoError(t, cat.Setup(context.Background()))

	reqs := transport.recorded()
	require.Len(t, reqs, 3)
	assert.Equal(t, "/uncrawled", reqs[0].Path)
	assert.Contains(t, reqs[2].Body, `"dynamic":"strict"`)
}

func TestElastic_Clear(t *testing.T) {
	transport := &mockTransport{RoundTripFn: func(recordedRequest) (int, string) {
		return 200, `{"acknowledged":true}`
	}}
	cat := newTestElastic(t, transport)

	require.NoError(t, cat.Clear(context.Background()))

	reqs := transport.recorded()
	require.Len(t, reqs, 1)
	assert.Equal(t, http.MethodDelete, reqs[0].Method)
	assert.Equal(t, "/uncrawled,crawled,photos", reqs[0].Path)
}

func TestDefaultIndices(t *testing.T) {
	idx := DefaultIndices("test-")
	assert.Equal(t, Indices{Uncrawled: "test-uncrawled", Crawled: "test-crawled", Photos: "test-photos"}, idx)
}

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"http://elasticsearch:9200", "http://elasticsearch:9200"},
		{"https://elasticsearch:9200", "https://elasticsearch:9200"},
		{"elasticsearch:9200", "http://elasticsearch:9200"},
		{"", "http://localhost:9200"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, normalizeURL(tt.input))
		})
	}
}
