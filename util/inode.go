package util

import (
	"github.com/taigrr/colorhash"
)

// RootInode is reserved for the mount root.
const RootInode uint64 = 1

// InodeForPath derives a stable inode number from a virtual path so that
// repeated lookups of the same path agree with each other and with the
// directory listing. The root inode is never returned for other paths.
func InodeForPath(path string) uint64 {
	if path == "" || path == "/" {
		return RootInode
	}
	ino := uint64(colorhash.HashString(path))
	ino |= 1 << 62
	return ino
}
