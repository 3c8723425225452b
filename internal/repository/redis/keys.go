package redis

import (
	"fmt"

	"github.com/ticketline/ticketline/internal/domain"
)

const ns = "ticketline:v1"

func KeyTicket(ticketID int64) string {
	return fmt.Sprintf("%s:ticket:%d", ns, ticketID)
}

func KeyUserTickets(userID int64) string {
	return fmt.Sprintf("%s:user:%d:tickets", ns, userID)
}

func KeyEventTickets(eventID int64) string {
	return fmt.Sprintf("%s:event:%d:tickets", ns, eventID)
}

func KeyStatusTickets(status domain.TicketStatus) string {
	return fmt.Sprintf("%s:status:%s:tickets", ns, status)
}

func KeyRateLimit(scope, id string) string {
	return fmt.Sprintf("%s:rl:%s:%s", ns, scope, id)
}

func ChannelTicketsChanged() string {
	return ns + ":tickets:changed"
}
