package datadir

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dendrascience/shotfs/util"
	"github.com/dendrascience/shotfs/weburl"
)

// Placeholder is the content of a blob whose capture has not finished.
var Placeholder = []byte("loading")

// ErrNotFound is returned for capture ids without a blob.
var ErrNotFound = errors.New("blob not found")

const incomingDir = "incoming"

// Store is a sharded blob directory. It is safe for concurrent use; the
// filesystem serializes the renames.
type Store struct {
	root     string
	incoming string
}

// New creates the data directory layout below root if needed.
func New(root string) (*Store, error) {
	s := &Store{
		root:     root,
		incoming: filepath.Join(root, incomingDir),
	}
	if err := os.MkdirAll(s.incoming, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return s, nil
}

// Root returns the data directory.
func (s *Store) Root() string {
	return s.root
}

// Path returns where the blob for id is stored.
func (s *Store) Path(id string) (string, error) {
	return util.ShardPath(s.root, id, weburl.ImageExtension)
}

// WritePlaceholder stores the in-progress marker for id.
func (s *Store) WritePlaceholder(id string) error {
	_, err := s.Write(id, strings.NewReader(string(Placeholder)))
	return err
}

// Write stores the content of r as the blob for id, replacing any
// previous content, and returns the number of bytes written.
func (s *Store) Write(id string, r io.Reader) (int64, error) {
	final, err := s.Path(id)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(s.incoming, id+"-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create incoming file: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	n, err := io.Copy(tmp, r)
	if err != nil {
		return 0, fmt.Errorf("failed to write blob %s: %w", id, err)
	}
	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("failed to sync blob %s: %w", id, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close blob %s: %w", id, err)
	}

	if err := os.MkdirAll(filepath.Dir(final), 0o755); err != nil {
		return 0, fmt.Errorf("failed to create shard directory: %w", err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return 0, fmt.Errorf("failed to move blob %s into place: %w", id, err)
	}
	committed = true
	return n, nil
}

// Read returns up to length bytes of the blob for id starting at offset.
// Reading at or past the end returns an empty slice.
func (s *Store) Read(id string, offset int64, length int) ([]byte, error) {
	path, err := s.Path(id)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open blob %s: %w", id, err)
	}
	defer f.Close()

	if offset < 0 || length < 0 {
		return nil, fmt.Errorf("invalid range %d+%d for blob %s", offset, length, id)
	}
	buf := make([]byte, length)
	n, err := f.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read blob %s: %w", id, err)
	}
	return buf[:n], nil
}

// Size returns the stored size of the blob for id.
func (s *Store) Size(id string) (int64, error) {
	path, err := s.Path(id)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// Remove deletes the blob for id. Removing a missing blob is not an error.
func (s *Store) Remove(id string) error {
	path, err := s.Path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove blob %s: %w", id, err)
	}
	return nil
}

// Walk calls fn for every stored blob with its capture id and size.
// Files in the incoming directory are skipped.
func (s *Store) Walk(fn func(id string, size int64) error) error {
	return filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path == s.incoming {
				return filepath.SkipDir
			}
			return nil
		}
		name := d.Name()
		if !strings.HasSuffix(name, weburl.ImageExtension) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		return fn(strings.TrimSuffix(name, weburl.ImageExtension), info.Size())
	})
}

// Sweep removes incoming files older than age, left behind by writers
// that died mid-write, and returns how many it removed.
func (s *Store) Sweep(age time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(s.incoming)
	if err != nil {
		return 0, fmt.Errorf("failed to read incoming directory: %w", err)
	}
	removed := 0
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < age {
			continue
		}
		if err := os.Remove(filepath.Join(s.incoming, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}
