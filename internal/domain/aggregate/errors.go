package aggregate

import "errors"

var (
	// ErrDefinitionNotFound indicates the aggregate definition doesn't exist.
	ErrDefinitionNotFound = errors.New("aggregate definition not found")
	// ErrInvalidFunction indicates an unknown aggregation function.
	ErrInvalidFunction = errors.New("invalid aggregation function")
	// ErrInvalidScope indicates an unknown scope kind.
	ErrInvalidScope = errors.New("invalid aggregate scope")
)
