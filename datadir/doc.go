// Package datadir stores capture images on local disk.
//
// Every image lives at <root>/<shard>/<capture id>.png where the shard is
// the leading character of the id. Writes land in <root>/incoming first and
// are renamed into place once complete, so readers either see the previous
// content of a blob or the whole new image, never a partial file.
//
// While a capture is rendering its blob holds the Placeholder bytes.
package datadir
