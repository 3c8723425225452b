package domain

import "time"

type TicketStatus string

const (
	TicketBooked    TicketStatus = "BOOKED"
	TicketCancelled TicketStatus = "CANCELLED"
)

// Valid reports whether s is one of the known ticket statuses.
func (s TicketStatus) Valid() bool {
	return s == TicketBooked || s == TicketCancelled
}

// Ticket is one reservation of Quantity seats for one user at one event.
// A ticket is BOOKED from creation until at most one cancellation, after
// which it stays CANCELLED; a cancelled ticket is never re-booked.
type Ticket struct {
	ID          int64        `json:"ticket_id"`
	EventID     int64        `json:"event_id"`
	UserID      int64        `json:"user_id"`
	Quantity    int          `json:"quantity"`
	Status      TicketStatus `json:"status"`
	BookingDate time.Time    `json:"booking_date"`
}

// Event is the events service's view of an event. RemainingTickets is the
// inventory counter owned by that service, never by this one.
type Event struct {
	ID               int64     `json:"event_id"`
	Name             string    `json:"name"`
	Category         string    `json:"category"`
	Location         string    `json:"location"`
	Date             time.Time `json:"date"`
	OrganizerID      int64     `json:"organizer_id"`
	RemainingTickets int       `json:"ticket_count"`
}

// User is the users service's view of an account.
type User struct {
	ID    int64  `json:"user_id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}
