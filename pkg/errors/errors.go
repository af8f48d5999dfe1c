package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrInvalidSignature is returned when a gateway signature does not match.
type ErrInvalidSignature struct {
	Source string
}

func (e *ErrInvalidSignature) Error() string {
	if e.Source == "" {
		return "invalid signature"
	}
	return fmt.Sprintf("invalid %s signature", e.Source)
}

// ErrNotFound represents a missing resource
type ErrNotFound struct {
	Resource string
	ID       string
}

func (e *ErrNotFound) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ErrInvalidState is returned when an operation is not allowed in the current state
type ErrInvalidState struct {
	Message string
}

func (e *ErrInvalidState) Error() string {
	return e.Message
}

// ErrInvalidStateTransition represents a rejected status change
type ErrInvalidStateTransition struct {
	Entity string
	From   string
	To     string
}

func (e *ErrInvalidStateTransition) Error() string {
	entity := e.Entity
	if entity == "" {
		entity = "status"
	}
	return fmt.Sprintf("invalid %s transition from %s to %s", entity, e.From, e.To)
}

// ErrNoEligibleItems is returned when a payout run finds nothing to settle
type ErrNoEligibleItems struct {
	SellerID string
}

func (e *ErrNoEligibleItems) Error() string {
	return fmt.Sprintf("no eligible items for seller %s", e.SellerID)
}

// ErrLimitExceeded is returned when a usage limit has been reached
type ErrLimitExceeded struct {
	Message string
}

func (e *ErrLimitExceeded) Error() string {
	return e.Message
}

// ErrAlreadyReviewed is returned when a return request already carries an admin decision
type ErrAlreadyReviewed struct {
	RequestID string
}

func (e *ErrAlreadyReviewed) Error() string {
	return fmt.Sprintf("return request %s has already been reviewed", e.RequestID)
}

// ErrValidation represents invalid caller input
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ErrUnauthorized represents a failed authentication
type ErrUnauthorized struct {
	Message string
}

func (e *ErrUnauthorized) Error() string {
	return e.Message
}

// ErrForbidden represents an authenticated caller acting outside its rights
type ErrForbidden struct {
	Message string
}

func (e *ErrForbidden) Error() string {
	return e.Message
}

// As is errors.As, re-exported so callers don't need two errors imports.
func As(err error, target any) bool {
	return stderrors.As(err, target)
}

// Is is errors.Is.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

func IsNotFound(err error) bool {
	var e *ErrNotFound
	return stderrors.As(err, &e)
}
