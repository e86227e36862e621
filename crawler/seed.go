package crawler

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dendrascience/shotfs/weburl"
)

// ErrSeedFileNotFound is returned when the configured seed file does not
// exist.
var ErrSeedFileNotFound = errors.New("seed file not found")

// SeedFile is a line-per-URL file consumed from the top. Every Next call
// removes the line it returns, so a restarted crawler resumes where the
// previous one stopped.
type SeedFile struct {
	mu   sync.Mutex
	path string
}

// OpenSeedFile checks that path exists.
func OpenSeedFile(path string) (*SeedFile, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSeedFileNotFound, path)
		}
		return nil, err
	}
	return &SeedFile{path: path}, nil
}

// Next pops the first non-blank line. It returns false once the file holds
// nothing but blank lines.
func (s *SeedFile) Next() (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return "", false, fmt.Errorf("failed to read seed file: %w", err)
	}

	rest := data
	for len(rest) > 0 {
		line, tail, _ := bytes.Cut(rest, []byte("\n"))
		rest = tail
		if seed := strings.TrimSpace(string(line)); seed != "" {
			if err := s.rewrite(rest); err != nil {
				return "", false, err
			}
			return seed, true, nil
		}
	}
	if len(data) > 0 {
		if err := s.rewrite(nil); err != nil {
			return "", false, err
		}
	}
	return "", false, nil
}

func (s *SeedFile) rewrite(rest []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".seed-*")
	if err != nil {
		return fmt.Errorf("failed to rewrite seed file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if info, err := os.Stat(s.path); err == nil {
		_ = tmp.Chmod(info.Mode().Perm())
	}
	if _, err := tmp.Write(rest); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to rewrite seed file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to rewrite seed file: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to rewrite seed file: %w", err)
	}
	return nil
}

// ParseSeeds reads one URL per line. Blank lines and lines starting with
// '#' are skipped; lines that are not valid URLs are returned in invalid.
func ParseSeeds(r io.Reader) (urls []weburl.URL, invalid []string, err error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		u, perr := weburl.Parse(line)
		if perr != nil {
			invalid = append(invalid, line)
			continue
		}
		urls = append(urls, u)
	}
	return urls, invalid, scanner.Err()
}
