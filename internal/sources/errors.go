package sources

import "errors"

var (
	// ErrUnknownSource is returned when a caller names a source id that
	// has no registered adapter.
	ErrUnknownSource = errors.New("unknown source")

	// ErrNotSupported is returned when a source lacks the requested
	// capability (e.g. citation walking on a non-biomedical source).
	ErrNotSupported = errors.New("operation not supported by source")

	// ErrMissingID is returned when an operation requires an identifier
	// and none was supplied.
	ErrMissingID = errors.New("identifier is required")
)
