package catalog

import (
	"context"
	"time"

	"github.com/dendrascience/shotfs/refresh"
	"github.com/dendrascience/shotfs/weburl"
)

// checkoutCandidates is how many of the most recently crawled eligible
// records a checkout chooses from.
const checkoutCandidates = 5

// Frontier is the fetch side of the catalog.
type Frontier interface {
	// EnqueueUncrawled upserts every URL whose identity is not in the
	// crawled registry and returns how many were queued.
	EnqueueUncrawled(ctx context.Context, urls []weburl.URL) (int, error)
	// DequeueUncrawled removes and returns a random queued entry, or
	// ErrEmptyQueue.
	DequeueUncrawled(ctx context.Context) (UncrawledEntry, error)
	// PromoteToCrawled upserts the crawled record for u with the status
	// code of the latest fetch.
	PromoteToCrawled(ctx context.Context, u weburl.URL, statusCode int) error
}

// Checkout is the capture side of the catalog.
type Checkout interface {
	// CountEligible counts crawled records that could be checked out for
	// the current bucket of c.
	CountEligible(ctx context.Context, c refresh.Cadence) (int, error)
	// CheckoutForCapture locks one of the most recently crawled eligible
	// records for the current bucket of c.
	CheckoutForCapture(ctx context.Context, c refresh.Cadence) (weburl.URL, error)
	// SavePhoto upserts a photo record by capture id.
	SavePhoto(ctx context.Context, p PhotoRecord) error
}

// Photos answers the queries the filesystem needs.
type Photos interface {
	Domains(ctx context.Context, c refresh.Cadence) ([]string, error)
	Buckets(ctx context.Context, domain string, c refresh.Cadence) ([]string, error)
	LatestBucket(ctx context.Context, domain string, c refresh.Cadence) (string, error)
	FindFile(ctx context.Context, loc Location, directory, filename string) (PhotoRecord, error)
	DirectoryExists(ctx context.Context, loc Location, directory string) (bool, error)
	ListDirectory(ctx context.Context, loc Location, directory string) (Listing, error)
}

// Stats reports capture throughput.
type Stats interface {
	CountPhotosSince(ctx context.Context, since time.Time) (int, error)
}

// Admin creates and drops the backing collections.
type Admin interface {
	Setup(ctx context.Context) error
	Clear(ctx context.Context) error
}

// Catalog is the complete metadata catalog.
type Catalog interface {
	Frontier
	Checkout
	Photos
	Stats
	Admin
}
