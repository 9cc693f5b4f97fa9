package services

import "fmt"

// Service-level error types, mapped to HTTP statuses by the handlers.

type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string { return "Validation error" }

type ConflictError struct {
	Code    string
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

type NotFoundError struct{ Message string }

func (e *NotFoundError) Error() string { return e.Message }

// UpstreamStorageError means every blob store refused the upload.
type UpstreamStorageError struct{ Err error }

func (e *UpstreamStorageError) Error() string { return fmt.Sprintf("blob storage failed: %v", e.Err) }

func (e *UpstreamStorageError) Unwrap() error { return e.Err }

const (
	ConflictAlreadySubmitted = "ALREADY_SUBMITTED"
	ConflictDeadlineExceeded = "DEADLINE_EXCEEDED"
)
