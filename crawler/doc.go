// Package crawler discovers URLs and records their fetch outcome.
//
// A Worker runs one unit of work per Tick: it takes the next URL from the
// seed file, or failing that a random entry from the uncrawled queue,
// fetches it, promotes it to the crawled registry with the HTTP status,
// and queues the links found on HTML pages. Pages that are not HTML are
// recorded with status 0 so they are never captured.
package crawler
