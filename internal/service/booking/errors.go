package booking

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidArgument       = errors.New("invalid argument")
	ErrUserNotFound          = errors.New("user not found")
	ErrEventNotFound         = errors.New("event not found")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrDuplicateBooking      = errors.New("duplicate booking")
	ErrTicketNotFound        = errors.New("ticket not found")
	ErrAlreadyCancelled      = errors.New("ticket already cancelled")
	ErrInventoryUpdateFailed = errors.New("inventory update failed")
	ErrRateLimited           = errors.New("rate limited")
)

type InvalidArgumentError struct {
	Field string
	Value int64
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %d", e.Field, e.Value)
}

func (e *InvalidArgumentError) Unwrap() error { return ErrInvalidArgument }

type UserNotFoundError struct {
	UserID int64
}

func (e *UserNotFoundError) Error() string {
	return fmt.Sprintf("user not found: %d", e.UserID)
}

func (e *UserNotFoundError) Unwrap() error { return ErrUserNotFound }

type EventNotFoundError struct {
	EventID int64
}

func (e *EventNotFoundError) Error() string {
	return fmt.Sprintf("event not found: %d", e.EventID)
}

func (e *EventNotFoundError) Unwrap() error { return ErrEventNotFound }

type InsufficientInventoryError struct {
	EventID   int64
	Requested int
	Remaining int
}

func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf(
		"insufficient inventory for event %d: requested %d, remaining %d",
		e.EventID, e.Requested, e.Remaining,
	)
}

func (e *InsufficientInventoryError) Unwrap() error { return ErrInsufficientInventory }

type DuplicateBookingError struct {
	UserID  int64
	EventID int64
}

func (e *DuplicateBookingError) Error() string {
	return fmt.Sprintf(
		"ticket already booked for user %d and event %d",
		e.UserID, e.EventID,
	)
}

func (e *DuplicateBookingError) Unwrap() error { return ErrDuplicateBooking }

type TicketNotFoundError struct {
	TicketID int64
}

func (e *TicketNotFoundError) Error() string {
	return fmt.Sprintf("ticket not found: %d", e.TicketID)
}

func (e *TicketNotFoundError) Unwrap() error { return ErrTicketNotFound }

type AlreadyCancelledError struct {
	TicketID int64
}

func (e *AlreadyCancelledError) Error() string {
	return fmt.Sprintf("ticket %d is already cancelled", e.TicketID)
}

func (e *AlreadyCancelledError) Unwrap() error { return ErrAlreadyCancelled }

// InventoryUpdateError surfaces a failed inventory mutation together with
// the underlying collaborator error for diagnosis.
type InventoryUpdateError struct {
	EventID int64
	Op      string // "decrease" or "increase"
	Err     error
}

func (e *InventoryUpdateError) Error() string {
	return fmt.Sprintf(
		"inventory %s failed for event %d: %v",
		e.Op, e.EventID, e.Err,
	)
}

func (e *InventoryUpdateError) Unwrap() error { return ErrInventoryUpdateFailed }

// Cause returns the underlying collaborator error.
func (e *InventoryUpdateError) Cause() error { return e.Err }

// RateLimitedError carries the time after which the caller may retry.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry in %s", e.RetryAfter)
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// Message extracts the user-facing message from any of the typed booking
// errors in err's chain. It reports false when err carries none of them.
func Message(err error) (string, bool) {
	for _, probe := range []func(error) (string, bool){
		as[*InvalidArgumentError],
		as[*UserNotFoundError],
		as[*EventNotFoundError],
		as[*InsufficientInventoryError],
		as[*DuplicateBookingError],
		as[*TicketNotFoundError],
		as[*AlreadyCancelledError],
		as[*InventoryUpdateError],
		as[*RateLimitedError],
	} {
		if msg, ok := probe(err); ok {
			return msg, true
		}
	}

	return "", false
}

func as[T error](err error) (string, bool) {
	var target T
	if errors.As(err, &target) {
		return target.Error(), true
	}
	return "", false
}
