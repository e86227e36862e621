package util

import (
	"crypto/sha256"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

// ShardWidth is the number of leading id characters used to pick a blob
// shard directory. One hex character gives 16 shards, which keeps the
// fan-out of every shard directory well below what ext4 handles comfortably.
const ShardWidth = 1

// GetHash calculates the SHA-256 hash of data from an io.Reader.
// It returns the hash as a hexadecimal string.
func GetHash(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// GetStringHash hashes a string and returns the hash as a hex string.
func GetStringHash(s string) string {
	// strings.Reader never fails
	hash, _ := GetHash(strings.NewReader(s))
	return hash
}

// ShardDir returns the shard directory name for an id, e.g. "a" for
// "a1b2c3...". Ids shorter than ShardWidth return ErrShortID.
func ShardDir(id string) (string, error) {
	if len(id) < ShardWidth {
		return "", ErrShortID
	}
	if strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", ErrInvalidID
	}
	return strings.ToLower(id[:ShardWidth]), nil
}

// ShardPath joins root, the shard directory and the id with the given
// extension, e.g. root/a/a1b2c3.png.
func ShardPath(root, id, ext string) (string, error) {
	shard, err := ShardDir(id)
	if err != nil {
		return "", err
	}
	return filepath.Join(root, shard, id+ext), nil
}
