package domain

import "errors"

var (
	ErrSchemaMismatch       = errors.New("test and control schemas differ")
	ErrUnsupportedOrder     = errors.New("only single-column explanations (max_order = 1) are supported")
	ErrInvalidColumn        = errors.New("invalid column")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrDuplicateGroupingSet = errors.New("duplicate grouping set")
	ErrUnknownGroup         = errors.New("unknown grouping id")
)
