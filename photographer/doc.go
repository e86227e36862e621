// Package photographer captures screenshots of crawled pages.
//
// Every Tick checks out one URL for the current cadence bucket, publishes
// a placeholder photo record so the capture shows up in the filesystem
// straight away, renders the page in a headless browser and finalizes the
// record with the size of the stored image.
package photographer
