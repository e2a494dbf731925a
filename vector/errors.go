package vector

import "errors"

var (
	// ErrInvalidConfiguration reports invalid chunking or pipeline parameters.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidArgument reports an invalid call argument such as k <= 0.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrDimensionMismatch reports embeddings of different dimensions within
	// a single index build.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrIncompatibleIndex reports a persisted or in-memory index that cannot
	// serve the current embedding oracle.
	ErrIncompatibleIndex = errors.New("incompatible index")

	// ErrOracleUnavailable reports a failing embedding or answer backend.
	ErrOracleUnavailable = errors.New("oracle unavailable")
)
