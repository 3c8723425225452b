package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ticketline/ticketline/internal/domain"
	"github.com/ticketline/ticketline/internal/repository"
)

// TicketRepo is the ticket ledger: the authoritative store of ticket
// records. It relies on a partial unique index on (user_id, event_id)
// WHERE status = 'BOOKED', so two racing bookings for the same pair can
// never both commit.
type TicketRepo struct {
	pool *pgxpool.Pool
}

const ticketColumns = `ticket_id, event_id, user_id, quantity, status, booking_date`

// Create inserts a new ticket record and returns it with the ledger-assigned ID.
//
// Parameters:
//   - ctx: request-scoped context for cancellation and timeouts.
//   - t: ticket to persist; ID is ignored and assigned by the ledger.
//
// Returns:
//   - domain.Ticket: the persisted ticket.
//   - error: repository.ErrConflict if a BOOKED ticket already exists for
//     the same (user, event) pair.
func (r *TicketRepo) Create(ctx context.Context, t domain.Ticket) (domain.Ticket, error) {
	const op = "postgres.TicketRepo.Create"

	err := r.pool.QueryRow(ctx,
		`INSERT INTO tickets(event_id, user_id, quantity, status, booking_date)
       	 VALUES ($1, $2, $3, $4, $5)
      	 RETURNING ticket_id`,
		t.EventID, t.UserID, t.Quantity, t.Status, t.BookingDate,
	).Scan(&t.ID)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return t, nil
}

// Delete physically removes a ticket record. It exists only as the
// compensating action for a booking whose inventory decrement failed; a
// deleted ticket never existed from the caller's perspective.
//
// Returns:
//   - error: repository.ErrNotFound if no such ticket exists.
func (r *TicketRepo) Delete(ctx context.Context, ticketID int64) error {
	const op = "postgres.TicketRepo.Delete"

	ct, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE ticket_id = $1`, ticketID)
	if err != nil {
		return fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	if ct.RowsAffected() == 0 {
		return fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return nil
}

// MarkCancelled flips a BOOKED ticket to CANCELLED. The status guard is in
// the statement itself, so a concurrent cancel of the same ticket cannot
// flip it twice.
//
// Returns:
//   - domain.Ticket: the updated ticket.
//   - error: repository.ErrConflict if the ticket is no longer BOOKED,
//     repository.ErrNotFound if it does not exist.
func (r *TicketRepo) MarkCancelled(ctx context.Context, ticketID int64) (domain.Ticket, error) {
	const op = "postgres.TicketRepo.MarkCancelled"

	var t domain.Ticket
	err := r.pool.QueryRow(ctx,
		`UPDATE tickets
        	SET status = $2
      	 WHERE ticket_id = $1 AND status = $3
      	 RETURNING `+ticketColumns,
		ticketID, domain.TicketCancelled, domain.TicketBooked,
	).Scan(&t.ID, &t.EventID, &t.UserID, &t.Quantity, &t.Status, &t.BookingDate)
	if err == nil {
		return t, nil
	}

	if translateDBErr(err) == repository.ErrNotFound {
		// No BOOKED row matched: either the ticket is gone or it was
		// already cancelled.
		var exists bool
		if err2 := r.pool.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM tickets WHERE ticket_id = $1)`, ticketID,
		).Scan(&exists); err2 != nil {
			return domain.Ticket{}, fmt.Errorf("%s:%w", op, translateDBErr(err2))
		}
		if exists {
			return domain.Ticket{}, fmt.Errorf("%s:%w", op, repository.ErrConflict)
		}
		return domain.Ticket{}, fmt.Errorf("%s:%w", op, repository.ErrNotFound)
	}

	return domain.Ticket{}, fmt.Errorf("%s:%w", op, translateDBErr(err))
}

// GetByID fetches a single ticket.
//
// Returns:
//   - error: repository.ErrNotFound if no such ticket exists.
func (r *TicketRepo) GetByID(ctx context.Context, ticketID int64) (domain.Ticket, error) {
	const op = "postgres.TicketRepo.GetByID"

	var t domain.Ticket
	err := r.pool.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE ticket_id = $1`,
		ticketID,
	).Scan(&t.ID, &t.EventID, &t.UserID, &t.Quantity, &t.Status, &t.BookingDate)
	if err != nil {
		return domain.Ticket{}, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return t, nil
}

// ExistsBooked reports whether the user already holds a live BOOKED ticket
// for the event.
func (r *TicketRepo) ExistsBooked(ctx context.Context, userID, eventID int64) (bool, error) {
	const op = "postgres.TicketRepo.ExistsBooked"

	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS(
        	SELECT 1 FROM tickets
       		 WHERE user_id = $1 AND event_id = $2 AND status = $3)`,
		userID, eventID, domain.TicketBooked,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return exists, nil
}

func (r *TicketRepo) ListByUser(ctx context.Context, userID int64) ([]domain.Ticket, error) {
	const op = "postgres.TicketRepo.ListByUser"

	return r.list(ctx, op,
		`SELECT `+ticketColumns+` FROM tickets WHERE user_id = $1 ORDER BY ticket_id`,
		userID,
	)
}

func (r *TicketRepo) ListByEvent(ctx context.Context, eventID int64) ([]domain.Ticket, error) {
	const op = "postgres.TicketRepo.ListByEvent"

	return r.list(ctx, op,
		`SELECT `+ticketColumns+` FROM tickets WHERE event_id = $1 ORDER BY ticket_id`,
		eventID,
	)
}

func (r *TicketRepo) ListByStatus(ctx context.Context, status domain.TicketStatus) ([]domain.Ticket, error) {
	const op = "postgres.TicketRepo.ListByStatus"

	return r.list(ctx, op,
		`SELECT `+ticketColumns+` FROM tickets WHERE status = $1 ORDER BY ticket_id`,
		status,
	)
}

func (r *TicketRepo) ListAll(ctx context.Context) ([]domain.Ticket, error) {
	const op = "postgres.TicketRepo.ListAll"

	return r.list(ctx, op, `SELECT `+ticketColumns+` FROM tickets ORDER BY ticket_id`)
}

func (r *TicketRepo) list(ctx context.Context, op, sql string, args ...any) ([]domain.Ticket, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	defer rows.Close()

	var out []domain.Ticket
	for rows.Next() {
		var t domain.Ticket
		if err := rows.Scan(&t.ID, &t.EventID, &t.UserID, &t.Quantity, &t.Status, &t.BookingDate); err != nil {
			return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s:%w", op, translateDBErr(err))
	}

	return out, nil
}
