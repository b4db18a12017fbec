// Copyright 2025 LLMFinder Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package storage

import (
	"errors"
	"fmt"
)

// Common errors returned by repository operations.
var (
	// ErrNotFound is returned when a requested model does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDimensionMismatch is returned when an embedding vector does not have
	// the dimensionality recorded for the store.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrIntegrity is returned when the persisted data or schema is corrupt.
	ErrIntegrity = errors.New("repository integrity failure")

	// ErrClosed is returned when attempting to use a closed repository.
	ErrClosed = errors.New("repository is closed")

	// ErrUnsupportedDriver is returned for an unknown storage driver.
	ErrUnsupportedDriver = errors.New("unsupported storage driver")
)

// NotFoundError wraps ErrNotFound with additional context.
type NotFoundError struct {
	ResourceType string // "model", "embedding"
	ResourceID   string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.ResourceType, e.ResourceID)
}

// Unwrap returns the underlying error.
func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// Is checks if the error matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// InvalidInputError wraps ErrInvalidInput with details.
type InvalidInputError struct {
	Field  string // Field name that failed validation
	Reason string // Why validation failed
}

// Error implements the error interface.
func (e *InvalidInputError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid input for field %q: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("invalid input: %s", e.Reason)
}

// Unwrap returns the underlying error.
func (e *InvalidInputError) Unwrap() error {
	return ErrInvalidInput
}

// Is checks if the error matches ErrInvalidInput.
func (e *InvalidInputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// DimensionMismatchError reports an embedding with the wrong length.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

// Error implements the error interface.
func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: store holds %d-dimensional vectors, got %d", e.Expected, e.Got)
}

// Unwrap returns the underlying error.
func (e *DimensionMismatchError) Unwrap() error {
	return ErrDimensionMismatch
}

// IntegrityError describes corrupt or missing persisted state.
type IntegrityError struct {
	Detail string
}

// Error implements the error interface.
func (e *IntegrityError) Error() string {
	return "repository integrity failure: " + e.Detail
}

// Unwrap returns the underlying error.
func (e *IntegrityError) Unwrap() error {
	return ErrIntegrity
}

// RepositoryError wraps a storage-layer I/O failure. It is always fatal to
// the calling session.
type RepositoryError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *RepositoryError) Error() string {
	return fmt.Sprintf("repository %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *RepositoryError) Unwrap() error {
	return e.Err
}

// Helper functions for creating errors.

// NewNotFoundError creates a NotFoundError.
func NewNotFoundError(resourceType, resourceID string) error {
	return &NotFoundError{
		ResourceType: resourceType,
		ResourceID:   resourceID,
	}
}

// NewInvalidInputError creates an InvalidInputError.
func NewInvalidInputError(field, reason string) error {
	return &InvalidInputError{
		Field:  field,
		Reason: reason,
	}
}

// IsNotFound checks if an error is or wraps ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInvalidInput checks if an error is or wraps ErrInvalidInput.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsFatal reports whether err is a repository failure that must abort the
// calling session: I/O errors, integrity failures and dimension mismatches.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var repoErr *RepositoryError
	return errors.As(err, &repoErr) ||
		errors.Is(err, ErrIntegrity) ||
		errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrClosed)
}

// wrap annotates err as a RepositoryError unless it already carries a
// classified repository error.
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, ErrDimensionMismatch),
		errors.Is(err, ErrIntegrity),
		errors.Is(err, ErrClosed):
		return err
	}
	var repoErr *RepositoryError
	if errors.As(err, &repoErr) {
		return err
	}
	return &RepositoryError{Op: op, Err: err}
}
