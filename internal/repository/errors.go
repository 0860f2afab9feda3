package repository

import "errors"

var (
	ErrNotFound          = errors.New("resource not found")
	ErrDuplicate         = errors.New("duplicate resource")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrUsageLimitReached = errors.New("promotion usage limit reached")
	ErrStatusConflict    = errors.New("status transition conflict")
)
