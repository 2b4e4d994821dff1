package creditledger

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the allocator and pacing engine.
var (
	ErrAccountNotFound         = errors.New("account not found")
	ErrCampaignNotFound        = errors.New("campaign not found")
	ErrInsufficientBalance     = errors.New("insufficient balance")
	ErrInvalidCampaignState    = errors.New("operation illegal for campaign state")
	ErrMismatchedCampaigns     = errors.New("campaigns do not share an account")
	ErrCampaignAccountMismatch = errors.New("campaign does not belong to account")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	ErrAccountExists           = errors.New("account already exists")
	ErrCampaignExists          = errors.New("campaign already exists")
	ErrInvalidAccountID        = errors.New("invalid account id")
	ErrInvalidCampaignID       = errors.New("invalid campaign id")
	ErrInvalidActorID          = errors.New("invalid actor id")
	ErrInvalidIdempotencyKey   = errors.New("invalid idempotency key")
	ErrInvalidAmount           = errors.New("invalid amount")
	ErrInvalidEntryKind        = errors.New("invalid entry kind")
	ErrInvalidCampaignStatus   = errors.New("invalid campaign status")
	ErrInvalidMetadataJSON     = errors.New("invalid metadata json")
	ErrInvalidDistributionRate = errors.New("invalid distribution rate")
	ErrInvalidTargetReviews    = errors.New("invalid target reviews")
	ErrInvalidOverbooking      = errors.New("invalid overbooking percent")
	ErrInvalidServiceConfig    = errors.New("invalid service config")
	ErrInvalidBalance          = errors.New("invalid balance")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
