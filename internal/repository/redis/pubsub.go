package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ticketline/ticketline/internal/domain"
)

// TicketsPubSub broadcasts ledger changes so interested consumers (seat
// maps, dashboards) can re-read. Delivery is best effort.
type TicketsPubSub struct {
	rdb     *redis.Client
	channel string
}

func NewTicketsPubSub(rdb *redis.Client) *TicketsPubSub {
	return &TicketsPubSub{
		rdb:     rdb,
		channel: ChannelTicketsChanged(),
	}
}

type ticketChangedMsg struct {
	Type     string              `json:"type"`
	TicketID int64               `json:"ticket_id"`
	EventID  int64               `json:"event_id"`
	UserID   int64               `json:"user_id"`
	Status   domain.TicketStatus `json:"status"`
	TsUnix   int64               `json:"ts_unix"`
}

func (p *TicketsPubSub) PublishTicketChanged(ctx context.Context, t domain.Ticket) error {
	msg := ticketChangedMsg{
		Type:     "ticket_changed",
		TicketID: t.ID,
		EventID:  t.EventID,
		UserID:   t.UserID,
		Status:   t.Status,
		TsUnix:   time.Now().Unix(),
	}

	b, _ := json.Marshal(msg)

	return p.rdb.Publish(ctx, p.channel, b).Err()
}

func (p *TicketsPubSub) Subscribe(ctx context.Context, handler func(ctx context.Context, ticketID, eventID int64)) error {
	sub := p.rdb.Subscribe(ctx, p.channel)
	defer sub.Close()

	ch := sub.Channel(redis.WithChannelSize(256))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case m, ok := <-ch:
			if !ok {
				return nil
			}
			var ev ticketChangedMsg
			if err := json.Unmarshal([]byte(m.Payload), &ev); err == nil &&
				ev.TicketID != 0 {
				handler(ctx, ev.TicketID, ev.EventID)
			}
		}
	}
}
