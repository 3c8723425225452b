// Package booking is the reservation orchestrator. It sequences ticket
// ledger writes and inventory calls so that the per-event remaining-ticket
// count on the events service stays consistent with the set of live BOOKED
// tickets in the ledger, without a transaction spanning both stores.
//
// The ordering is deliberately asymmetric. Book writes the ledger first and
// decrements inventory second: a failed decrement is compensated by deleting
// a row the caller has never observed. Cancel increments inventory first and
// mutates the ledger last: the ledger write only happens once the inventory
// credit is already durable, so the cancellation path never has to claw an
// increment back.
package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ticketline/ticketline/internal/client"
	"github.com/ticketline/ticketline/internal/clock"
	"github.com/ticketline/ticketline/internal/domain"
	"github.com/ticketline/ticketline/internal/repository"
	redisrepo "github.com/ticketline/ticketline/internal/repository/redis"
)

// Ledger is the authoritative store of ticket records. The orchestrator is
// its only writer.
type Ledger interface {
	Create(ctx context.Context, t domain.Ticket) (domain.Ticket, error)
	Delete(ctx context.Context, ticketID int64) error
	MarkCancelled(ctx context.Context, ticketID int64) (domain.Ticket, error)
	GetByID(ctx context.Context, ticketID int64) (domain.Ticket, error)
	ExistsBooked(ctx context.Context, userID, eventID int64) (bool, error)
}

// UserDirectory resolves user identities. Absent users are reported with
// client.ErrNotFound.
type UserDirectory interface {
	GetUser(ctx context.Context, userID int64) (domain.User, error)
}

// EventDirectory resolves events, including their remaining ticket count.
// Absent events are reported with client.ErrNotFound.
type EventDirectory interface {
	GetEvent(ctx context.Context, eventID int64) (domain.Event, error)
}

// Inventory mutates the per-event remaining-ticket count owned by the
// events service. Both operations are atomic with respect to racing callers
// on the events service side.
type Inventory interface {
	DecreaseTicketCount(ctx context.Context, eventID int64, quantity int) error
	IncreaseTicketCount(ctx context.Context, eventID int64, quantity int) error
}

// Notifier delivers a fire-and-forget message to the user. Failures never
// change the outcome of a booking or cancellation.
type Notifier interface {
	Send(ctx context.Context, userID, eventID int64, message string) error
}

// RateLimiter gates the booking entry point per caller key. A denied call
// reports how long the caller should wait before retrying.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (allowed bool, current int64, retryAfter time.Duration, err error)
}

type Service struct {
	ledger    Ledger
	users     UserDirectory
	events    EventDirectory
	inventory Inventory
	notifier  Notifier

	cache   *redisrepo.Cache
	pubsub  *redisrepo.TicketsPubSub
	limiter RateLimiter
	clk     clock.Clock
	logger  *slog.Logger
}

func New(
	ledger Ledger,
	users UserDirectory,
	events EventDirectory,
	inventory Inventory,
	notifier Notifier,
	cache *redisrepo.Cache,
	pubsub *redisrepo.TicketsPubSub,
	limiter RateLimiter,
	clk clock.Clock,
	logger *slog.Logger,
) *Service {
	if clk == nil {
		clk = clock.NewSystem()
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		ledger:    ledger,
		users:     users,
		events:    events,
		inventory: inventory,
		notifier:  notifier,
		cache:     cache,
		pubsub:    pubsub,
		limiter:   limiter,
		clk:       clk,
		logger:    logger,
	}
}

// Book reserves quantity seats for the user at the event.
//
// The ledger record is written before the inventory decrement; if the
// decrement fails, the record is deleted again and the caller sees only the
// inventory error. A quantity below 1 defaults to 1.
//
// Parameters:
//   - ctx: request-scoped context.
//   - eventID: ID of the event to book.
//   - userID: ID of the booking user.
//   - quantity: number of seats; defaults to 1 when not positive.
//   - rlKey: rate-limit key, empty to skip rate limiting.
//
// Returns:
//   - domain.Ticket: the persisted BOOKED ticket.
//   - error: booking.ErrInvalidArgument, booking.ErrUserNotFound,
//     booking.ErrEventNotFound, booking.ErrInsufficientInventory,
//     booking.ErrDuplicateBooking or booking.ErrInventoryUpdateFailed.
func (s *Service) Book(
	ctx context.Context,
	eventID, userID int64,
	quantity int,
	rlKey string,
) (domain.Ticket, error) {
	const op = "service.booking.Book"

	if eventID <= 0 {
		return domain.Ticket{}, fmt.Errorf("%s:%w", op, &InvalidArgumentError{Field: "event id", Value: eventID})
	}

	if userID <= 0 {
		return domain.Ticket{}, fmt.Errorf("%s:%w", op, &InvalidArgumentError{Field: "user id", Value: userID})
	}

	if quantity <= 0 {
		quantity = 1
	}

	if s.limiter != nil && rlKey != "" {
		ok, _, retry, err := s.limiter.Allow(ctx, rlKey)
		if err != nil {
			return domain.Ticket{}, fmt.Errorf("%s:%w", op, err)
		}
		if !ok {
			return domain.Ticket{}, fmt.Errorf("%s:%w", op, &RateLimitedError{RetryAfter: retry})
		}
	}

	if _, err := s.users.GetUser(ctx, userID); err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return domain.Ticket{}, fmt.Errorf("%s:%w", op, &UserNotFoundError{UserID: userID})
		}

		return domain.Ticket{}, fmt.Errorf("%s:%w", op, err)
	}

	ev, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		if errors.Is(err, client.ErrNotFound) {
			return domain.Ticket{}, fmt.Errorf("%s:%w", op, &EventNotFoundError{EventID: eventID})
		}

		return domain.Ticket{}, fmt.Errorf("%s:%w", op, err)
	}

	if ev.RemainingTickets < quantity {
		return domain.Ticket{}, fmt.Errorf("%s:%w", op, &InsufficientInventoryError{
			EventID:   eventID,
			Requested: quantity,
			Remaining: ev.RemainingTickets,
		})
	}

	// Fast-path duplicate check. The authority is the ledger's partial
	// unique index: two racing bookings can both pass this read, but only
	// one insert commits.
	exists, err := s.ledger.ExistsBooked(ctx, userID, eventID)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("%s:%w", op, err)
	}
	if exists {
		return domain.Ticket{}, fmt.Errorf("%s:%w", op, &DuplicateBookingError{UserID: userID, EventID: eventID})
	}

	t, err := s.ledger.Create(ctx, domain.Ticket{
		EventID:     eventID,
		UserID:      userID,
		Quantity:    quantity,
		Status:      domain.TicketBooked,
		BookingDate: s.clk.Now(),
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			return domain.Ticket{}, fmt.Errorf("%s:%w", op, &DuplicateBookingError{UserID: userID, EventID: eventID})
		}

		return domain.Ticket{}, fmt.Errorf("%s:%w", op, err)
	}

	if err := s.inventory.DecreaseTicketCount(ctx, eventID, quantity); err != nil {
		// Compensate: the caller has never observed this ticket, so
		// deleting it restores the cross-store invariant exactly.
		if delErr := s.ledger.Delete(ctx, t.ID); delErr != nil {
			s.logger.Error("compensation failed, ticket orphaned",
				"ticket_id", t.ID,
				"event_id", eventID,
				"user_id", userID,
				"error", delErr,
			)
		}

		return domain.Ticket{}, fmt.Errorf("%s:%w", op, &InventoryUpdateError{
			EventID: eventID,
			Op:      "decrease",
			Err:     err,
		})
	}

	s.notify(ctx, t, "Your ticket has been successfully booked")
	s.afterChange(ctx, t)

	return t, nil
}

// Cancel flips a BOOKED ticket to CANCELLED and credits its quantity back
// to the event's inventory.
//
// The inventory increment happens before the ledger mutation; if the
// increment fails, the operation aborts and the ticket stays BOOKED, so the
// ledger never records a cancellation without the matching inventory
// credit. A second cancel of the same ticket is an error, not a no-op.
//
// Returns:
//   - domain.Ticket: the updated CANCELLED ticket.
//   - error: booking.ErrInvalidArgument, booking.ErrTicketNotFound,
//     booking.ErrAlreadyCancelled or booking.ErrInventoryUpdateFailed.
func (s *Service) Cancel(ctx context.Context, ticketID int64) (domain.Ticket, error) {
	const op = "service.booking.Cancel"

	if ticketID <= 0 {
		return domain.Ticket{}, fmt.Errorf("%s:%w", op, &InvalidArgumentError{Field: "ticket id", Value: ticketID})
	}

	t, err := s.ledger.GetByID(ctx, ticketID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.Ticket{}, fmt.Errorf("%s:%w", op, &TicketNotFoundError{TicketID: ticketID})
		}

		return domain.Ticket{}, fmt.Errorf("%s:%w", op, err)
	}

	if t.Status == domain.TicketCancelled {
		return domain.Ticket{}, fmt.Errorf("%s:%w", op, &AlreadyCancelledError{TicketID: ticketID})
	}

	if err := s.inventory.IncreaseTicketCount(ctx, t.EventID, t.Quantity); err != nil {
		return domain.Ticket{}, fmt.Errorf("%s:%w", op, &InventoryUpdateError{
			EventID: t.EventID,
			Op:      "increase",
			Err:     err,
		})
	}

	updated, err := s.ledger.MarkCancelled(ctx, ticketID)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrConflict):
			// A concurrent cancel won the conditional update after our
			// status read. The inventory was credited twice; log loudly.
			s.logger.Error("concurrent cancel detected after inventory credit",
				"ticket_id", ticketID,
				"event_id", t.EventID,
				"quantity", t.Quantity,
			)
			return domain.Ticket{}, fmt.Errorf("%s:%w", op, &AlreadyCancelledError{TicketID: ticketID})
		case errors.Is(err, repository.ErrNotFound):
			return domain.Ticket{}, fmt.Errorf("%s:%w", op, &TicketNotFoundError{TicketID: ticketID})
		}

		return domain.Ticket{}, fmt.Errorf("%s:%w", op, err)
	}

	s.notify(ctx, updated, "Your ticket has been successfully cancelled")
	s.afterChange(ctx, updated)

	return updated, nil
}

func (s *Service) notify(ctx context.Context, t domain.Ticket, message string) {
	if s.notifier == nil {
		return
	}

	if err := s.notifier.Send(ctx, t.UserID, t.EventID, message); err != nil {
		s.logger.Warn("notification failed",
			"ticket_id", t.ID,
			"user_id", t.UserID,
			"event_id", t.EventID,
			"error", err,
		)
	}
}

func (s *Service) afterChange(ctx context.Context, t domain.Ticket) {
	if s.cache != nil {
		_ = s.cache.InvalidateTicket(ctx, t)
	}

	if s.pubsub != nil {
		_ = s.pubsub.PublishTicketChanged(ctx, t)
	}
}
