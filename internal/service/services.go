package service

import (
	"log/slog"

	"github.com/ticketline/ticketline/internal/clock"
	postgres "github.com/ticketline/ticketline/internal/repository/postgres"
	redis "github.com/ticketline/ticketline/internal/repository/redis"
	"github.com/ticketline/ticketline/internal/service/booking"
	"github.com/ticketline/ticketline/internal/service/query"
)

type Services struct {
	Booking *booking.Service
	Query   *query.Service
}

type Config struct {
	Query query.Config
}

func NewServices(
	store *postgres.Store,
	users booking.UserDirectory,
	events booking.EventDirectory,
	inventory booking.Inventory,
	notifier booking.Notifier,
	cache *redis.Cache,
	pubsub *redis.TicketsPubSub,
	limiter booking.RateLimiter,
	logger *slog.Logger,
	cfg Config,
) *Services {
	return &Services{
		Booking: booking.New(
			store.Tickets(),
			users,
			events,
			inventory,
			notifier,
			cache,
			pubsub,
			limiter,
			clock.NewSystem(),
			logger,
		),
		Query: query.New(store.Tickets(), cache, cfg.Query),
	}
}
