// Package util provides small shared helpers for shotfs.
//
// Hashing:
//   - GetHash and GetStringHash produce hex encoded SHA-256 digests. URL
//     identities are built on these.
//
// Blob sharding:
//   - ShardDir and ShardPath place a blob under a directory named after the
//     leading characters of its id, bounding the fan-out of any single
//     directory in the data directory.
//
// Inodes:
//   - InodeForPath derives a stable inode from a virtual path using a
//     colorhash digest, so lookups and listings of the same path agree.
package util
