package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ticketline/ticketline/internal/domain"
	"github.com/ticketline/ticketline/internal/repository"
	redisrepo "github.com/ticketline/ticketline/internal/repository/redis"
)

type Config struct {
	TicketTTL time.Duration
	ListTTL   time.Duration
}

// TicketReader is the read side of the ticket ledger.
type TicketReader interface {
	GetByID(ctx context.Context, ticketID int64) (domain.Ticket, error)
	ListByUser(ctx context.Context, userID int64) ([]domain.Ticket, error)
	ListByEvent(ctx context.Context, eventID int64) ([]domain.Ticket, error)
	ListByStatus(ctx context.Context, status domain.TicketStatus) ([]domain.Ticket, error)
	ListAll(ctx context.Context) ([]domain.Ticket, error)
}

// Service answers read-only questions against the ticket ledger. It never
// calls the collaborator services; identifiers are validated for shape
// only.
type Service struct {
	ledger TicketReader
	cache  *redisrepo.Cache
	cfg    Config
}

func New(ledger TicketReader, cache *redisrepo.Cache, cfg Config) *Service {
	if cfg.TicketTTL <= 0 {
		cfg.TicketTTL = 60 * time.Second
	}

	if cfg.ListTTL <= 0 {
		cfg.ListTTL = 15 * time.Second
	}

	return &Service{
		ledger: ledger,
		cache:  cache,
		cfg:    cfg,
	}
}

// GetByID retrieves a ticket by its ID, through the cache.
//
// Parameters:
//   - ctx: request-scoped context.
//   - ticketID: ID of the ticket to retrieve.
//
// Returns:
//   - *domain.Ticket: the retrieved ticket, or nil if not found.
//   - error: query.ErrTicketNotFound if the ticket is not found.
func (s *Service) GetByID(ctx context.Context, ticketID int64) (*domain.Ticket, error) {
	const op = "service.query.GetByID"

	if ticketID <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	loader := func(ctx context.Context) (domain.Ticket, error) {
		t, err := s.ledger.GetByID(ctx, ticketID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return domain.Ticket{}, ErrTicketNotFound
			}

			return domain.Ticket{}, err
		}

		return t, nil
	}

	if s.cache == nil {
		ticket, err := loader(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return &ticket, nil
	}

	ticket, err := redisrepo.GetOrSetJSON(ctx, s.cache, redisrepo.KeyTicket(ticketID), s.cfg.TicketTTL, loader)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &ticket, nil
}

// ListByUser returns every ticket, live or cancelled, held by the user.
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]domain.Ticket, error) {
	const op = "service.query.ListByUser"

	if userID <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	return s.cachedList(ctx, op, redisrepo.KeyUserTickets(userID),
		func(ctx context.Context) ([]domain.Ticket, error) {
			return s.ledger.ListByUser(ctx, userID)
		},
	)
}

// ListByEvent returns every ticket recorded against the event.
func (s *Service) ListByEvent(ctx context.Context, eventID int64) ([]domain.Ticket, error) {
	const op = "service.query.ListByEvent"

	if eventID <= 0 {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidArgument)
	}

	return s.cachedList(ctx, op, redisrepo.KeyEventTickets(eventID),
		func(ctx context.Context) ([]domain.Ticket, error) {
			return s.ledger.ListByEvent(ctx, eventID)
		},
	)
}

// ListByStatus returns every ticket with the given status.
//
// Returns:
//   - error: query.ErrInvalidStatus if status is not a known ticket status.
func (s *Service) ListByStatus(ctx context.Context, status domain.TicketStatus) ([]domain.Ticket, error) {
	const op = "service.query.ListByStatus"

	if !status.Valid() {
		return nil, fmt.Errorf("%s: %w", op, ErrInvalidStatus)
	}

	return s.cachedList(ctx, op, redisrepo.KeyStatusTickets(status),
		func(ctx context.Context) ([]domain.Ticket, error) {
			return s.ledger.ListByStatus(ctx, status)
		},
	)
}

// ListAll returns the full ledger, uncached.
func (s *Service) ListAll(ctx context.Context) ([]domain.Ticket, error) {
	const op = "service.query.ListAll"

	tickets, err := s.ledger.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	if tickets == nil {
		tickets = []domain.Ticket{}
	}

	return tickets, nil
}

func (s *Service) cachedList(
	ctx context.Context,
	op, key string,
	loader func(ctx context.Context) ([]domain.Ticket, error),
) ([]domain.Ticket, error) {
	// An empty result is an empty slice, never nil: callers encode it as
	// a JSON array.
	wrapped := func(ctx context.Context) ([]domain.Ticket, error) {
		tickets, err := loader(ctx)
		if err != nil {
			return nil, err
		}
		if tickets == nil {
			tickets = []domain.Ticket{}
		}
		return tickets, nil
	}

	if s.cache == nil {
		tickets, err := wrapped(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		return tickets, nil
	}

	tickets, err := redisrepo.GetOrSetJSON(ctx, s.cache, key, s.cfg.ListTTL, wrapped)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return tickets, nil
}
