// Package mount serves captured screenshots as a read-only FUSE
// filesystem laid out as
//
//	/{domain}/{bucket|latest}/{directory}/{filename}.png
//
// Every path is answered from catalog queries; nothing below the bucket
// level is held in memory. The "latest" alias is resolved per domain
// through a LatestCache with a short TTL. Captures that are still
// rendering are listed with the RenderingSuffix appended to their name.
package mount
