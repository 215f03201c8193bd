package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors for domain-level error discrimination.
// Services wrap these so handlers can map to HTTP status codes without leaking infrastructure details.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrBadRequest   = errors.New("bad request")

	ErrValidation                 = fmt.Errorf("validation failed: %w", ErrBadRequest)
	ErrStoreUnavailable           = errors.New("store unavailable")
	ErrAllNumbersTaken            = fmt.Errorf("all requested numbers are taken: %w", ErrConflict)
	ErrPartialFulfillmentDeclined = fmt.Errorf("partial fulfillment declined: %w", ErrConflict)
	ErrWriteFailedMidBatch        = errors.New("write failed mid batch")
	ErrLinkAlreadyUsed            = errors.New("link already used")
	ErrAlreadyFinished            = fmt.Errorf("raffle already finished: %w", ErrConflict)
	ErrInvalidTransition          = fmt.Errorf("invalid status transition: %w", ErrConflict)
	ErrNumberTaken                = fmt.Errorf("number already reserved: %w", ErrConflict)
	ErrRedemptionInProgress       = fmt.Errorf("link redemption in progress: %w", ErrConflict)
	ErrRaffleClosed               = fmt.Errorf("raffle not accepting reservations: %w", ErrConflict)
)

// ValidationError reports bad input on a single field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed: %s %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// StoreError is returned by store adapters on transport or constraint failures.
// Unavailable is set when the store could not be reached at all.
type StoreError struct {
	Op          string
	Table       string
	Unavailable bool
	Err         error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrStoreUnavailable) match unreachable-store failures.
func (e *StoreError) Is(target error) bool {
	return target == ErrStoreUnavailable && e.Unavailable
}

// PartialOfferError carries the subset still free at commit time when the
// caller declined to proceed with it.
type PartialOfferError struct {
	Available   []int
	Unavailable []int
}

func (e *PartialOfferError) Error() string {
	return fmt.Sprintf("numbers %s already taken; available %s", joinInts(e.Unavailable), joinInts(e.Available))
}

func (e *PartialOfferError) Unwrap() error { return ErrPartialFulfillmentDeclined }

// BatchWriteError reports a reservation batch that stopped being all-or-nothing.
type BatchWriteError struct {
	Committed []int
	Failed    []int
	Err       error
}

func (e *BatchWriteError) Error() string {
	return fmt.Sprintf("committed %s, failed %s: %v", joinInts(e.Committed), joinInts(e.Failed), e.Err)
}

func (e *BatchWriteError) Unwrap() []error { return []error{ErrWriteFailedMidBatch, e.Err} }

// LinkUsedError is the terminal outcome for a custom link that was already redeemed.
type LinkUsedError struct {
	Link *CustomLink
}

func (e *LinkUsedError) Error() string {
	if e.Link == nil || e.Link.UsedAt == nil {
		return ErrLinkAlreadyUsed.Error()
	}
	return fmt.Sprintf("link %s already used at %s", e.Link.LinkID, e.Link.UsedAt.Format("2006-01-02 15:04:05"))
}

func (e *LinkUsedError) Unwrap() error { return ErrLinkAlreadyUsed }

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
