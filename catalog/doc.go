// Package catalog is the metadata catalog: the queue of discovered URLs,
// the registry of crawled URLs and the capture records that back the
// mounted filesystem.
//
// Two implementations are provided. Elastic stores each collection in an
// Elasticsearch index and is what production deployments use. Memory
// keeps everything in process and serves single-process runs and tests.
//
// Checkout protocol:
//
// A crawled record with status 200 is eligible for capture unless its
// lock already names the current bucket of the requested cadence.
// CheckoutForCapture takes the five most recently crawled eligible records,
// picks one at random and writes the current bucket into its lock. There
// is no unlock: once the clock moves into the next bucket the record is
// eligible again. Two workers may still occasionally capture the same URL
// in one bucket; that duplicate is tolerated.
package catalog
