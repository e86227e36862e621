package mount

import (
	"context"
	"errors"
	"os"
	"slices"
	"time"

	"github.com/dendrascience/shotfs/catalog"
	"github.com/dendrascience/shotfs/internal/logger"
	"github.com/dendrascience/shotfs/internal/metrics"
	"github.com/dendrascience/shotfs/refresh"
)

const (
	DirMode  = os.ModeDir | 0o755
	FileMode = os.FileMode(0o644)
)

// BlobReader reads stored capture images by capture id.
type BlobReader interface {
	Read(id string, offset int64, length int) ([]byte, error)
}

// Attributes describes a file or directory.
type Attributes struct {
	Mode    os.FileMode
	Size    int64
	ModTime time.Time
}

func (a Attributes) IsDir() bool {
	return a.Mode.IsDir()
}

// Entry is one name in a directory listing.
type Entry struct {
	Name string
	Dir  bool
}

// Params holds the dependencies of a Filesystem.
type Params struct {
	Photos  catalog.Photos
	Blobs   BlobReader
	Latest  *LatestCache
	Cadence refresh.Cadence
	Logger  logger.Logger
	Metrics *metrics.Metrics
	// Started is reported as the time of the root, domain and
	// subdirectories. Bucket directories carry their bucket start time.
	Started time.Time
}

// Filesystem answers path queries from the catalog and the blob store.
// It holds no mutable state besides the latest cache, so it is safe for
// concurrent use.
type Filesystem struct {
	photos  catalog.Photos
	blobs   BlobReader
	latest  *LatestCache
	cadence refresh.Cadence
	log     logger.Logger
	metrics *metrics.Metrics
	started time.Time
}

// New creates a Filesystem. A nil Latest cache is created with the
// default TTL on top of Photos.
func New(p Params) *Filesystem {
	if p.Logger == nil {
		p.Logger = logger.NewNop()
	}
	if p.Latest == nil {
		p.Latest = NewLatestCache(LatestCacheParams{
			Source:  p.Photos,
			Cadence: p.Cadence,
			Logger:  p.Logger,
			Metrics: p.Metrics,
		})
	}
	if p.Started.IsZero() {
		p.Started = time.Now()
	}
	return &Filesystem{
		photos:  p.Photos,
		blobs:   p.Blobs,
		latest:  p.Latest,
		cadence: p.Cadence,
		log:     p.Logger,
		metrics: p.Metrics,
		started: p.Started,
	}
}

func (f *Filesystem) dirAttributes() Attributes {
	return Attributes{Mode: DirMode, ModTime: f.started}
}

// bucketAttributes dates a bucket directory at the start of its interval.
func (f *Filesystem) bucketAttributes(bucket string) Attributes {
	attr := f.dirAttributes()
	if start, err := f.cadence.Start(bucket); err == nil {
		attr.ModTime = start
	}
	return attr
}

// parse parses raw and resolves a latest bucket alias.
func (f *Filesystem) parse(ctx context.Context, raw string) (Path, error) {
	p, err := ParsePath(raw)
	if err != nil {
		return Path{}, err
	}
	if p.HasBucket() {
		p.Bucket = f.latest.Translate(ctx, p.Domain, p.Bucket)
	}
	return p, nil
}

func (f *Filesystem) location(p Path) catalog.Location {
	return catalog.Location{Domain: p.Domain, Cadence: f.cadence, Bucket: p.Bucket}
}

// Attributes returns the metadata of the file or directory at path.
func (f *Filesystem) Attributes(ctx context.Context, path string) (attr Attributes, err error) {
	defer func() { f.metrics.ObserveFSOperation(OpGetattr, err) }()

	p, err := f.parse(ctx, path)
	if err != nil {
		return Attributes{}, newError(OpGetattr, path, err)
	}

	switch {
	case p.IsRoot():
		return f.dirAttributes(), nil

	case !p.HasBucket():
		domains, err := f.photos.Domains(ctx, f.cadence)
		if err != nil {
			return Attributes{}, newError(OpGetattr, path, err)
		}
		if !slices.Contains(domains, p.Domain) {
			return Attributes{}, newError(OpGetattr, path, ErrNotFound)
		}
		return f.dirAttributes(), nil

	case !p.HasEnd():
		buckets, err := f.photos.Buckets(ctx, p.Domain, f.cadence)
		if err != nil {
			return Attributes{}, newError(OpGetattr, path, err)
		}
		if !slices.Contains(buckets, p.Bucket) {
			return Attributes{}, newError(OpGetattr, path, ErrNotFound)
		}
		return f.bucketAttributes(p.Bucket), nil
	}

	loc := f.location(p)
	exists, err := f.photos.DirectoryExists(ctx, loc, p.EndAsDirectory())
	if err != nil {
		return Attributes{}, newError(OpGetattr, path, err)
	}
	if exists {
		return f.dirAttributes(), nil
	}

	photo, err := f.find(ctx, p)
	if err != nil {
		return Attributes{}, newError(OpGetattr, path, err)
	}
	return Attributes{Mode: FileMode, Size: photo.Filesize, ModTime: photo.CreatedAt}, nil
}

func (f *Filesystem) find(ctx context.Context, p Path) (catalog.PhotoRecord, error) {
	directory, filename := p.EndAsFile()
	photo, err := f.photos.FindFile(ctx, f.location(p), directory, filename)
	if errors.Is(err, catalog.ErrNotFound) {
		return catalog.PhotoRecord{}, ErrNotFound
	}
	return photo, err
}

func dotEntries() []Entry {
	return []Entry{{Name: ".", Dir: true}, {Name: "..", Dir: true}}
}

// List returns the entries of the directory at path, starting with "."
// and "..".
func (f *Filesystem) List(ctx context.Context, path string) (entries []Entry, err error) {
	defer func() { f.metrics.ObserveFSOperation(OpReadDir, err) }()

	p, err := f.parse(ctx, path)
	if err != nil {
		return nil, newError(OpReadDir, path, err)
	}
	entries = dotEntries()

	switch {
	case p.IsRoot():
		domains, err := f.photos.Domains(ctx, f.cadence)
		if err != nil {
			return nil, newError(OpReadDir, path, err)
		}
		for _, d := range domains {
			entries = append(entries, Entry{Name: d, Dir: true})
		}
		return entries, nil

	case !p.HasBucket():
		buckets, err := f.photos.Buckets(ctx, p.Domain, f.cadence)
		if err != nil {
			return nil, newError(OpReadDir, path, err)
		}
		for _, b := range buckets {
			entries = append(entries, Entry{Name: b, Dir: true})
		}
		return append(entries, Entry{Name: LatestAlias, Dir: true}), nil
	}

	listing, err := f.photos.ListDirectory(ctx, f.location(p), p.EndAsDirectory())
	if err != nil {
		return nil, newError(OpReadDir, path, err)
	}
	for _, photo := range listing.Files {
		name := photo.Filename
		if photo.Loading() {
			name += RenderingSuffix
		}
		entries = append(entries, Entry{Name: name})
	}
	for _, d := range listing.Directories {
		entries = append(entries, Entry{Name: d, Dir: true})
	}
	return entries, nil
}

// Read returns up to length bytes of the file at path starting at
// offset.
func (f *Filesystem) Read(ctx context.Context, path string, offset int64, length int) (data []byte, err error) {
	defer func() { f.metrics.ObserveFSOperation(OpRead, err) }()

	p, err := f.parse(ctx, path)
	if err != nil {
		return nil, newError(OpRead, path, err)
	}
	if !p.HasEnd() {
		return nil, newError(OpRead, path, ErrNotFound)
	}

	photo, err := f.find(ctx, p)
	if err != nil {
		return nil, newError(OpRead, path, err)
	}
	data, err = f.blobs.Read(photo.ID, offset, length)
	if err != nil {
		return nil, newError(OpRead, path, err)
	}
	return data, nil
}

// Write always fails with ErrPermissionDenied. Captures are only created
// by the photographer.
func (f *Filesystem) Write(ctx context.Context, path string, data []byte, offset int64) (int, error) {
	err := newError(OpWrite, path, ErrPermissionDenied)
	f.metrics.ObserveFSOperation(OpWrite, err)
	return 0, err
}
