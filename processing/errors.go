package processing

import "github.com/pkg/errors"

var (
	// ErrShapeMismatch reports inconsistent input dimensions. No output is produced.
	ErrShapeMismatch = errors.New("shape mismatch")
	// ErrInvalidConfig reports an unusable parameter bundle.
	ErrInvalidConfig = errors.New("invalid config")
)
