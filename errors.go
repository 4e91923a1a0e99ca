package bpay

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrInvalidInput  = errors.New("bpay: invalid input")
	ErrInvalidAmount = errors.New("bpay: invalid amount")
	ErrAlreadyExists = errors.New("bpay: already exists")

	// Plan errors
	ErrPlanNotFound          = errors.New("bpay: plan not found")
	ErrPlanRemoved           = errors.New("bpay: plan is removed")
	ErrNotPlanOwner          = errors.New("bpay: caller is not the plan merchant")
	ErrInvalidPlanParameters = errors.New("bpay: invalid plan parameters")
	ErrUnsupportedToken      = errors.New("bpay: token not accepted by plan")

	// Subscription errors
	ErrSubscriptionNotFound     = errors.New("bpay: subscription not found")
	ErrSubscriptionPlanMismatch = errors.New("bpay: subscription does not belong to plan")

	// Execution errors
	ErrBatchShapeMismatch = errors.New("bpay: plan ids and batches differ in length")
	ErrNoTokenLedger      = errors.New("bpay: no ledger registered for token")

	// Fee vault errors
	ErrInsufficientServiceFee = errors.New("bpay: insufficient service fee balance")

	// Store errors
	ErrStoreClosed     = errors.New("bpay: store is closed")
	ErrMigrationFailed = errors.New("bpay: migration failed")
)

// ValidationError represents a plan parameter validation failure with details.
// It matches ErrInvalidPlanParameters under errors.Is.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("bpay: validation failed for %s: %s", e.Field, e.Message)
}

func (e ValidationError) Unwrap() error { return ErrInvalidPlanParameters }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "bpay: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("bpay: %d errors occurred: %v", len(e.Errors), e.Errors[0])
}

// Unwrap exposes every collected error to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// First returns the first error or nil.
func (e MultiError) First() error {
	if len(e.Errors) > 0 {
		return e.Errors[0]
	}
	return nil
}

// ErrOrNil returns e when it holds errors, nil otherwise.
func (e MultiError) ErrOrNil() error {
	if e.HasErrors() {
		return e
	}
	return nil
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPlanNotFound) ||
		errors.Is(err, ErrSubscriptionNotFound)
}

// IsValidation returns true if the error was caused by bad caller input.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidPlanParameters) ||
		errors.Is(err, ErrUnsupportedToken) ||
		errors.Is(err, ErrBatchShapeMismatch) ||
		errors.Is(err, ErrSubscriptionPlanMismatch)
}

// IsAuthorization returns true if the caller is not allowed to act on the
// resource.
func IsAuthorization(err error) bool {
	return errors.Is(err, ErrNotPlanOwner)
}
