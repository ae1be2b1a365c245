package ingestion

import "errors"

var (
	// ErrDocumentStoreRequired is returned when a document store is not provided.
	ErrDocumentStoreRequired = errors.New("document store required")

	// ErrEngineRequired is returned when indexes are warmed without an engine.
	ErrEngineRequired = errors.New("view engine required")

	// ErrInvalidInput is returned when the document stream cannot be decoded.
	ErrInvalidInput = errors.New("invalid document stream")
)
