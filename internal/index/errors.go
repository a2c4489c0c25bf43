package index

import "errors"

var (
	// ErrVectorLengthMismatch indicates two vectors have different dimensions.
	ErrVectorLengthMismatch = errors.New("vector length mismatch")
	// ErrNotFound indicates no snapshot has been published for a variant yet.
	ErrNotFound = errors.New("index snapshot not found")
	// ErrCorrupt indicates a snapshot file that does not parse.
	ErrCorrupt = errors.New("corrupt index snapshot")
)
