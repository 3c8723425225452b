package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ticketline/ticketline/internal/domain"
)

// EventClient talks to the events service, which owns both event metadata
// and the per-event remaining-ticket inventory. The decrease/increase
// operations are atomic on the events service side with respect to racing
// callers; this client only relays them.
type EventClient struct {
	base string
	hc   *http.Client
}

func NewEventClient(baseURL string, hc *http.Client) *EventClient {
	return &EventClient{
		base: strings.TrimRight(baseURL, "/"),
		hc:   hc,
	}
}

// GetEvent fetches an event, including its remaining ticket count.
//
// Returns:
//   - domain.Event: the resolved event.
//   - error: client.ErrNotFound if the events service has no such event.
func (c *EventClient) GetEvent(ctx context.Context, eventID int64) (domain.Event, error) {
	const op = "client.EventClient.GetEvent"

	var e domain.Event
	url := fmt.Sprintf("%s/events/%d", c.base, eventID)
	if err := getJSON(ctx, c.hc, op, url, &e); err != nil {
		return domain.Event{}, err
	}

	return e, nil
}

// DecreaseTicketCount atomically subtracts quantity from the event's
// remaining ticket count.
func (c *EventClient) DecreaseTicketCount(ctx context.Context, eventID int64, quantity int) error {
	const op = "client.EventClient.DecreaseTicketCount"

	url := fmt.Sprintf("%s/events/%d/tickets/decrease?quantity=%d", c.base, eventID, quantity)
	return postNoBody(ctx, c.hc, op, url)
}

// IncreaseTicketCount atomically adds quantity back to the event's
// remaining ticket count.
func (c *EventClient) IncreaseTicketCount(ctx context.Context, eventID int64, quantity int) error {
	const op = "client.EventClient.IncreaseTicketCount"

	url := fmt.Sprintf("%s/events/%d/tickets/increase?quantity=%d", c.base, eventID, quantity)
	return postNoBody(ctx, c.hc, op, url)
}
