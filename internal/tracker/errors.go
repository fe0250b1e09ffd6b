package tracker

import "errors"

var (
	ErrEmptyLabel       = errors.New("label is empty")
	ErrDuplicateLabel   = errors.New("label is already tracked")
	ErrUnknownLabel     = errors.New("label is not tracked")
	ErrInvalidThreshold = errors.New("absence threshold out of range")
)
