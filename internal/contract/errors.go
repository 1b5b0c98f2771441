package contract

import "errors"

// Error kinds raised by the pipeline. Callers wrap them with context and test with errors.Is.
var (
	// ErrMissingInput means an expected file or array is absent.
	ErrMissingInput = errors.New("missing input")

	// ErrInsufficientData means input exists but is too short to proceed safely.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrAlignmentFailure means master and probe barcodes share no code.
	ErrAlignmentFailure = errors.New("alignment failure")

	// ErrBoundaryTruncation means a spike window reaches outside the recording.
	ErrBoundaryTruncation = errors.New("boundary truncation")

	// ErrEmptyCluster means a cluster has no usable spikes.
	ErrEmptyCluster = errors.New("empty cluster")
)

// IsSkippable reports whether err should skip a unit rather than fail it.
func IsSkippable(err error) bool {
	return errors.Is(err, ErrMissingInput)
}
