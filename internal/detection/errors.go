package detection

import "errors"

var (
	// ErrInvalidDate indicates structurally malformed date input, never a
	// date that simply has no sales.
	ErrInvalidDate = errors.New("detection: invalid analysis date")
	// ErrDataUnavailable indicates the sale repository or baseline source
	// could not be reached. Retryable by the caller.
	ErrDataUnavailable = errors.New("detection: sale data unavailable")
)
