package httpgin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ticketline/ticketline/internal/client"
	"github.com/ticketline/ticketline/internal/domain"
	"github.com/ticketline/ticketline/internal/repository"
	redisrepo "github.com/ticketline/ticketline/internal/repository/redis"
	"github.com/ticketline/ticketline/internal/service"
	"github.com/ticketline/ticketline/internal/service/booking"
	"github.com/ticketline/ticketline/internal/service/query"
)

// memLedger backs both the booking and the query service in handler tests.
type memLedger struct {
	nextID  int64
	tickets map[int64]domain.Ticket
}

func newMemLedger() *memLedger {
	return &memLedger{nextID: 1, tickets: make(map[int64]domain.Ticket)}
}

func (l *memLedger) Create(_ context.Context, t domain.Ticket) (domain.Ticket, error) {
	for _, existing := range l.tickets {
		if existing.UserID == t.UserID && existing.EventID == t.EventID &&
			existing.Status == domain.TicketBooked {
			return domain.Ticket{}, repository.ErrConflict
		}
	}
	t.ID = l.nextID
	l.nextID++
	l.tickets[t.ID] = t
	return t, nil
}

func (l *memLedger) Delete(_ context.Context, ticketID int64) error {
	if _, ok := l.tickets[ticketID]; !ok {
		return repository.ErrNotFound
	}
	delete(l.tickets, ticketID)
	return nil
}

func (l *memLedger) MarkCancelled(_ context.Context, ticketID int64) (domain.Ticket, error) {
	t, ok := l.tickets[ticketID]
	if !ok {
		return domain.Ticket{}, repository.ErrNotFound
	}
	if t.Status != domain.TicketBooked {
		return domain.Ticket{}, repository.ErrConflict
	}
	t.Status = domain.TicketCancelled
	l.tickets[ticketID] = t
	return t, nil
}

func (l *memLedger) GetByID(_ context.Context, ticketID int64) (domain.Ticket, error) {
	t, ok := l.tickets[ticketID]
	if !ok {
		return domain.Ticket{}, repository.ErrNotFound
	}
	return t, nil
}

func (l *memLedger) ExistsBooked(_ context.Context, userID, eventID int64) (bool, error) {
	for _, t := range l.tickets {
		if t.UserID == userID && t.EventID == eventID && t.Status == domain.TicketBooked {
			return true, nil
		}
	}
	return false, nil
}

func (l *memLedger) ListByUser(_ context.Context, userID int64) ([]domain.Ticket, error) {
	return l.filter(func(t domain.Ticket) bool { return t.UserID == userID }), nil
}

func (l *memLedger) ListByEvent(_ context.Context, eventID int64) ([]domain.Ticket, error) {
	return l.filter(func(t domain.Ticket) bool { return t.EventID == eventID }), nil
}

func (l *memLedger) ListByStatus(_ context.Context, status domain.TicketStatus) ([]domain.Ticket, error) {
	return l.filter(func(t domain.Ticket) bool { return t.Status == status }), nil
}

func (l *memLedger) ListAll(_ context.Context) ([]domain.Ticket, error) {
	return l.filter(func(domain.Ticket) bool { return true }), nil
}

func (l *memLedger) filter(keep func(domain.Ticket) bool) []domain.Ticket {
	out := []domain.Ticket{}
	for _, t := range l.tickets {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out
}

type memCollab struct {
	remaining    map[int64]int
	failDecrease bool
}

func (m *memCollab) GetUser(_ context.Context, userID int64) (domain.User, error) {
	if userID > 100 {
		return domain.User{}, client.ErrNotFound
	}
	return domain.User{ID: userID, Name: "tester"}, nil
}

func (m *memCollab) GetEvent(_ context.Context, eventID int64) (domain.Event, error) {
	remaining, ok := m.remaining[eventID]
	if !ok {
		return domain.Event{}, client.ErrNotFound
	}
	return domain.Event{ID: eventID, Name: "show", RemainingTickets: remaining}, nil
}

func (m *memCollab) DecreaseTicketCount(_ context.Context, eventID int64, quantity int) error {
	if m.failDecrease {
		return errors.New("events service unavailable")
	}
	m.remaining[eventID] -= quantity
	return nil
}

func (m *memCollab) IncreaseTicketCount(_ context.Context, eventID int64, quantity int) error {
	m.remaining[eventID] += quantity
	return nil
}

type noopNotifier struct{}

func (noopNotifier) Send(context.Context, int64, int64, string) error { return nil }

// memIdemStore mirrors the Redis lock/result value shapes so the handler's
// branching can be driven without a live store.
type memIdemStore struct {
	values map[string]string
}

func newMemIdemStore() *memIdemStore {
	return &memIdemStore{values: make(map[string]string)}
}

func (s *memIdemStore) GetResult(_ context.Context, key string) (string, bool, error) {
	v, ok := s.values[key]
	if !ok || !strings.HasPrefix(v, "RES:") {
		return "", false, nil
	}
	return strings.TrimPrefix(v, "RES:"), true, nil
}

func (s *memIdemStore) AcquireLock(_ context.Context, key string, _ time.Duration) (bool, error) {
	if _, ok := s.values[key]; ok {
		return false, nil
	}
	s.values[key] = "LOCK"
	return true, nil
}

func (s *memIdemStore) SaveResult(_ context.Context, key string, jsonPayload string) error {
	s.values[key] = "RES:" + jsonPayload
	return nil
}

func (s *memIdemStore) IsLocked(_ context.Context, key string) (bool, error) {
	return s.values[key] == "LOCK", nil
}

func (s *memIdemStore) Release(_ context.Context, key string) error {
	delete(s.values, key)
	return nil
}

type denyLimiter struct {
	retryAfter time.Duration
}

func (l denyLimiter) Allow(context.Context, string) (bool, int64, time.Duration, error) {
	return false, 0, l.retryAfter, nil
}

func newTestRouter(t *testing.T, ledger *memLedger, collab *memCollab) *gin.Engine {
	return newTestRouterWith(t, ledger, collab, nil, nil)
}

func newTestRouterWith(
	t *testing.T,
	ledger *memLedger,
	collab *memCollab,
	idem IdempotencyStore,
	limiter booking.RateLimiter,
) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svcs := &service.Services{
		Booking: booking.New(ledger, collab, collab, collab, noopNotifier{}, nil, nil, limiter, nil, logger),
		Query:   query.New(ledger, nil, query.Config{}),
	}

	return NewRouter(svcs, idem, logger)
}

func doRequest(r *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	r := newTestRouter(t, newMemLedger(), &memCollab{remaining: map[int64]int{}})

	w := doRequest(r, http.MethodGet, "/healthz", "", nil)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestBookTicket(t *testing.T) {
	t.Run("creates a ticket", func(t *testing.T) {
		collab := &memCollab{remaining: map[int64]int{10: 5}}
		r := newTestRouter(t, newMemLedger(), collab)

		w := doRequest(r, http.MethodPost, "/tickets",
			`{"event_id":10,"user_id":1,"quantity":2}`, nil)

		require.Equal(t, http.StatusCreated, w.Code)

		var ticket domain.Ticket
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ticket))
		assert.NotZero(t, ticket.ID)
		assert.Equal(t, domain.TicketBooked, ticket.Status)
		assert.Equal(t, 2, ticket.Quantity)
		assert.Equal(t, 3, collab.remaining[10])
	})

	t.Run("rejects malformed payload", func(t *testing.T) {
		r := newTestRouter(t, newMemLedger(), &memCollab{remaining: map[int64]int{}})

		w := doRequest(r, http.MethodPost, "/tickets", `{"event_id":10}`, nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown user is 404", func(t *testing.T) {
		r := newTestRouter(t, newMemLedger(), &memCollab{remaining: map[int64]int{10: 5}})

		w := doRequest(r, http.MethodPost, "/tickets",
			`{"event_id":10,"user_id":999}`, nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unknown event is 404", func(t *testing.T) {
		r := newTestRouter(t, newMemLedger(), &memCollab{remaining: map[int64]int{}})

		w := doRequest(r, http.MethodPost, "/tickets",
			`{"event_id":42,"user_id":1}`, nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("sold out is 409", func(t *testing.T) {
		r := newTestRouter(t, newMemLedger(), &memCollab{remaining: map[int64]int{10: 1}})

		w := doRequest(r, http.MethodPost, "/tickets",
			`{"event_id":10,"user_id":1,"quantity":3}`, nil)

		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("duplicate booking is 409", func(t *testing.T) {
		r := newTestRouter(t, newMemLedger(), &memCollab{remaining: map[int64]int{10: 5}})

		first := doRequest(r, http.MethodPost, "/tickets",
			`{"event_id":10,"user_id":1}`, nil)
		require.Equal(t, http.StatusCreated, first.Code)

		second := doRequest(r, http.MethodPost, "/tickets",
			`{"event_id":10,"user_id":1}`, nil)
		assert.Equal(t, http.StatusConflict, second.Code)
	})

	t.Run("inventory failure is 502", func(t *testing.T) {
		ledger := newMemLedger()
		collab := &memCollab{remaining: map[int64]int{10: 5}, failDecrease: true}
		r := newTestRouter(t, ledger, collab)

		w := doRequest(r, http.MethodPost, "/tickets",
			`{"event_id":10,"user_id":1}`, nil)

		assert.Equal(t, http.StatusBadGateway, w.Code)
		assert.Empty(t, ledger.tickets, "compensation must remove the ledger row")
	})

	t.Run("rate limited is 429 with Retry-After", func(t *testing.T) {
		collab := &memCollab{remaining: map[int64]int{10: 5}}
		r := newTestRouterWith(t, newMemLedger(), collab,
			nil, denyLimiter{retryAfter: 1500 * time.Millisecond})

		w := doRequest(r, http.MethodPost, "/tickets",
			`{"event_id":10,"user_id":1}`, nil)

		require.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "2", w.Header().Get("Retry-After"))
		assert.Equal(t, 5, collab.remaining[10], "a denied request must not touch inventory")
	})
}

func TestBookTicketIdempotency(t *testing.T) {
	idemHeader := func(key string) map[string]string {
		return map[string]string{"Idempotency-Key": key}
	}

	t.Run("retry replays the stored result", func(t *testing.T) {
		ledger := newMemLedger()
		collab := &memCollab{remaining: map[int64]int{10: 5}}
		idem := newMemIdemStore()
		r := newTestRouterWith(t, ledger, collab, idem, nil)

		first := doRequest(r, http.MethodPost, "/tickets",
			`{"event_id":10,"user_id":1,"quantity":2}`, idemHeader("k1"))
		require.Equal(t, http.StatusCreated, first.Code)

		second := doRequest(r, http.MethodPost, "/tickets",
			`{"event_id":10,"user_id":1,"quantity":2}`, idemHeader("k1"))
		require.Equal(t, http.StatusCreated, second.Code)

		assert.JSONEq(t, first.Body.String(), second.Body.String())
		assert.Equal(t, "k1", second.Header().Get("Idempotency-Key"))
		assert.Len(t, ledger.tickets, 1, "retry must not create a second ticket")
		assert.Equal(t, 3, collab.remaining[10], "retry must not decrement inventory again")
	})

	t.Run("key held by an in-flight request is 409", func(t *testing.T) {
		collab := &memCollab{remaining: map[int64]int{10: 5}}
		idem := newMemIdemStore()
		idem.values[redisrepo.KeyIdemBooking(1, 10, "k2")] = "LOCK"
		r := newTestRouterWith(t, newMemLedger(), collab, idem, nil)

		w := doRequest(r, http.MethodPost, "/tickets",
			`{"event_id":10,"user_id":1}`, idemHeader("k2"))

		require.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, "1", w.Header().Get("Retry-After"))
		assert.Equal(t, 5, collab.remaining[10])
	})

	t.Run("failed booking releases the lock", func(t *testing.T) {
		ledger := newMemLedger()
		collab := &memCollab{remaining: map[int64]int{10: 5}, failDecrease: true}
		idem := newMemIdemStore()
		r := newTestRouterWith(t, ledger, collab, idem, nil)

		first := doRequest(r, http.MethodPost, "/tickets",
			`{"event_id":10,"user_id":1}`, idemHeader("k3"))
		require.Equal(t, http.StatusBadGateway, first.Code)
		assert.Empty(t, idem.values, "a failed booking must not pin the key")

		collab.failDecrease = false
		retry := doRequest(r, http.MethodPost, "/tickets",
			`{"event_id":10,"user_id":1}`, idemHeader("k3"))
		require.Equal(t, http.StatusCreated, retry.Code)
		assert.Equal(t, 4, collab.remaining[10])
	})

	t.Run("different keys book independently", func(t *testing.T) {
		ledger := newMemLedger()
		collab := &memCollab{remaining: map[int64]int{10: 5}}
		idem := newMemIdemStore()
		r := newTestRouterWith(t, ledger, collab, idem, nil)

		first := doRequest(r, http.MethodPost, "/tickets",
			`{"event_id":10,"user_id":1}`, idemHeader("ka"))
		require.Equal(t, http.StatusCreated, first.Code)

		// Same user and event under a fresh key: the reservation itself
		// is the duplicate, not the idempotency replay.
		second := doRequest(r, http.MethodPost, "/tickets",
			`{"event_id":10,"user_id":1}`, idemHeader("kb"))
		assert.Equal(t, http.StatusConflict, second.Code)
	})
}

func TestCancelTicket(t *testing.T) {
	t.Run("cancels a booked ticket", func(t *testing.T) {
		collab := &memCollab{remaining: map[int64]int{10: 5}}
		r := newTestRouter(t, newMemLedger(), collab)

		created := doRequest(r, http.MethodPost, "/tickets",
			`{"event_id":10,"user_id":1,"quantity":2}`, nil)
		require.Equal(t, http.StatusCreated, created.Code)

		var ticket domain.Ticket
		require.NoError(t, json.Unmarshal(created.Body.Bytes(), &ticket))

		w := doRequest(r, http.MethodPost,
			"/tickets/"+itoa(ticket.ID)+"/cancel", "", nil)

		require.Equal(t, http.StatusOK, w.Code)

		var cancelled domain.Ticket
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &cancelled))
		assert.Equal(t, domain.TicketCancelled, cancelled.Status)
		assert.Equal(t, 5, collab.remaining[10])
	})

	t.Run("second cancel is 409", func(t *testing.T) {
		r := newTestRouter(t, newMemLedger(), &memCollab{remaining: map[int64]int{10: 5}})

		created := doRequest(r, http.MethodPost, "/tickets",
			`{"event_id":10,"user_id":1}`, nil)
		require.Equal(t, http.StatusCreated, created.Code)

		var ticket domain.Ticket
		require.NoError(t, json.Unmarshal(created.Body.Bytes(), &ticket))

		first := doRequest(r, http.MethodPost, "/tickets/"+itoa(ticket.ID)+"/cancel", "", nil)
		require.Equal(t, http.StatusOK, first.Code)

		second := doRequest(r, http.MethodPost, "/tickets/"+itoa(ticket.ID)+"/cancel", "", nil)
		assert.Equal(t, http.StatusConflict, second.Code)
	})

	t.Run("unknown ticket is 404", func(t *testing.T) {
		r := newTestRouter(t, newMemLedger(), &memCollab{remaining: map[int64]int{}})

		w := doRequest(r, http.MethodPost, "/tickets/404/cancel", "", nil)

		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("non-numeric id is 400", func(t *testing.T) {
		r := newTestRouter(t, newMemLedger(), &memCollab{remaining: map[int64]int{}})

		w := doRequest(r, http.MethodPost, "/tickets/abc/cancel", "", nil)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetTicket(t *testing.T) {
	ledger := newMemLedger()
	ledger.tickets[7] = domain.Ticket{
		ID: 7, EventID: 10, UserID: 1, Quantity: 1,
		Status:      domain.TicketBooked,
		BookingDate: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}
	ledger.nextID = 8
	r := newTestRouter(t, ledger, &memCollab{remaining: map[int64]int{}})

	t.Run("found", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/tickets/7", "", nil)

		require.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get("ETag"))

		var ticket domain.Ticket
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ticket))
		assert.Equal(t, int64(7), ticket.ID)
	})

	t.Run("etag revalidation", func(t *testing.T) {
		first := doRequest(r, http.MethodGet, "/tickets/7", "", nil)
		require.Equal(t, http.StatusOK, first.Code)

		etag := first.Header().Get("ETag")
		require.NotEmpty(t, etag)

		second := doRequest(r, http.MethodGet, "/tickets/7", "",
			map[string]string{"If-None-Match": etag})
		assert.Equal(t, http.StatusNotModified, second.Code)
	})

	t.Run("not found", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/tickets/999", "", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestListTickets(t *testing.T) {
	ledger := newMemLedger()
	ledger.tickets[1] = domain.Ticket{ID: 1, EventID: 10, UserID: 1, Status: domain.TicketBooked}
	ledger.tickets[2] = domain.Ticket{ID: 2, EventID: 10, UserID: 2, Status: domain.TicketCancelled}
	ledger.tickets[3] = domain.Ticket{ID: 3, EventID: 11, UserID: 1, Status: domain.TicketBooked}
	ledger.nextID = 4
	r := newTestRouter(t, ledger, &memCollab{remaining: map[int64]int{}})

	decode := func(t *testing.T, w *httptest.ResponseRecorder) []domain.Ticket {
		t.Helper()
		var tickets []domain.Ticket
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tickets))
		return tickets
	}

	t.Run("all", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/tickets", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode(t, w), 3)
	})

	t.Run("by status, case-insensitive", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/tickets?status=cancelled", "", nil)
		require.Equal(t, http.StatusOK, w.Code)

		tickets := decode(t, w)
		require.Len(t, tickets, 1)
		assert.Equal(t, domain.TicketCancelled, tickets[0].Status)
	})

	t.Run("unknown status is 400", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/tickets?status=pending", "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("by user", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/users/1/tickets", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode(t, w), 2)
	})

	t.Run("by event", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/events/10/tickets", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode(t, w), 2)
	})

	t.Run("empty list is an empty array, not null", func(t *testing.T) {
		w := doRequest(r, http.MethodGet, "/users/99/tickets", "", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "[]", strings.TrimSpace(w.Body.String()))
	})
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
