package repository

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadySubmitted = errors.New("session already submitted")
)
