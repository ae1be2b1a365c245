// Package ingestion loads documents into a collection.
//
// The Pipeline type manages the ingestion workflow, including:
//   - Decoding JSON arrays or newline-delimited JSON documents
//   - Writing them to the document store in batches
//   - Warming search indexes asynchronously as batches land
//
// Warm-ups run on a worker pool. Errors during warm-ups are logged but do
// not fail the ingestion operation.
package ingestion
