package shared

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation marks malformed input. Surfaced, never retried.
	ErrValidation = errors.New("validation failed")
	// ErrImbalance indicates debits and credits differ.
	ErrImbalance = errors.New("journal lines do not balance")
	// ErrDuplicateReference indicates the reference was already posted.
	ErrDuplicateReference = errors.New("journal reference already posted")
	// ErrPeriodLocked indicates the posting date falls inside a closed period.
	ErrPeriodLocked = errors.New("period locked")
	// ErrInsufficientStock indicates eligible batches cannot cover the request.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrOverRefund indicates the refund exceeds the refundable quantity.
	ErrOverRefund = errors.New("refund exceeds refundable quantity")
	// ErrAccountResolution indicates an account or chart could not be resolved.
	ErrAccountResolution = errors.New("account resolution failed")
	// ErrInternalConsistency indicates a ledger or stock invariant no longer holds.
	ErrInternalConsistency = errors.New("internal consistency violated")
)

// ValidationError describes malformed input on a single field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Reason)
}

// Is matches ErrValidation.
func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Invalid builds a ValidationError.
func Invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// ImbalanceError carries the mismatching totals.
type ImbalanceError struct {
	Debit  decimal.Decimal
	Credit decimal.Decimal
}

func (e *ImbalanceError) Error() string {
	return fmt.Sprintf("journal lines do not balance: debit %s credit %s", e.Debit.StringFixed(2), e.Credit.StringFixed(2))
}

// Is matches ErrImbalance.
func (e *ImbalanceError) Is(target error) bool { return target == ErrImbalance }

// DuplicateReferenceError reports an idempotency hit.
type DuplicateReferenceError struct {
	Reference string
}

func (e *DuplicateReferenceError) Error() string {
	return fmt.Sprintf("journal reference %q already posted", e.Reference)
}

// Is matches ErrDuplicateReference.
func (e *DuplicateReferenceError) Is(target error) bool { return target == ErrDuplicateReference }

// PeriodLockedError reports the chart and date rejected by the period guard.
type PeriodLockedError struct {
	ChartID int64
	Date    time.Time
}

func (e *PeriodLockedError) Error() string {
	return fmt.Sprintf("period locked: chart %d date %s", e.ChartID, e.Date.Format("2006-01-02"))
}

// Is matches ErrPeriodLocked.
func (e *PeriodLockedError) Is(target error) bool { return target == ErrPeriodLocked }

// InsufficientStockError reports the shortfall for one product.
type InsufficientStockError struct {
	ProductID int64
	StoreID   *int64
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: requested %s, available %s", e.ProductID, e.Requested.String(), e.Available.String())
}

// Is matches ErrInsufficientStock.
func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

// OverRefundError reports a refund request above what remains refundable.
type OverRefundError struct {
	SaleItemID int64
	Requested  decimal.Decimal
	Refundable decimal.Decimal
}

func (e *OverRefundError) Error() string {
	return fmt.Sprintf("sale item %d: refund %s exceeds refundable %s", e.SaleItemID, e.Requested.String(), e.Refundable.String())
}

// Is matches ErrOverRefund.
func (e *OverRefundError) Is(target error) bool { return target == ErrOverRefund }

// AccountResolutionError reports a chart or account that cannot be used.
type AccountResolutionError struct {
	ChartID int64
	Code    string
	Reason  string
}

func (e *AccountResolutionError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("account resolution failed: chart %d: %s", e.ChartID, e.Reason)
	}
	return fmt.Sprintf("account resolution failed: chart %d code %s: %s", e.ChartID, e.Code, e.Reason)
}

// Is matches ErrAccountResolution.
func (e *AccountResolutionError) Is(target error) bool { return target == ErrAccountResolution }

// InternalConsistencyError is fatal: halt and alert, never patch.
type InternalConsistencyError struct {
	Check  string
	Detail string
}

func (e *InternalConsistencyError) Error() string {
	return fmt.Sprintf("internal consistency violated: %s: %s", e.Check, e.Detail)
}

// Is matches ErrInternalConsistency.
func (e *InternalConsistencyError) Is(target error) bool { return target == ErrInternalConsistency }
