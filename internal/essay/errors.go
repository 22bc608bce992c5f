package essay

import "errors"

// Error kinds surfaced by the pipeline. Components wrap these with context so callers
// can classify failures with errors.Is.
var (
	// ErrTransport reports a network failure or a non-200 response while fetching.
	ErrTransport = errors.New("transport error")
	// ErrMalformedDocument reports a fetched document missing a required element.
	ErrMalformedDocument = errors.New("malformed document")
	// ErrStorageWrite reports a failure persisting the merged artifact.
	ErrStorageWrite = errors.New("storage write error")
	// ErrUsage reports missing or invalid command-line input.
	ErrUsage = errors.New("usage error")
)
