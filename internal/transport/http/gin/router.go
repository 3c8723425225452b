package httpgin

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"github.com/ticketline/ticketline/internal/domain"
	redisrepo "github.com/ticketline/ticketline/internal/repository/redis"
	"github.com/ticketline/ticketline/internal/service"
	"github.com/ticketline/ticketline/internal/service/booking"
	"github.com/ticketline/ticketline/internal/service/query"
)

// IdempotencyStore is the lock/result store behind the Idempotency-Key
// header on the booking endpoint.
type IdempotencyStore interface {
	GetResult(ctx context.Context, key string) (string, bool, error)
	AcquireLock(ctx context.Context, key string, lockTTL time.Duration) (bool, error)
	SaveResult(ctx context.Context, key string, jsonPayload string) error
	IsLocked(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

func NewRouter(
	svcs *service.Services,
	idem IdempotencyStore,
	logger *slog.Logger,
	middlewares ...gin.HandlerFunc,
) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery(), LoggingMiddleware(logger), RequestIDMiddleware(), CORS())
	for _, m := range middlewares {
		if m != nil {
			r.Use(m)
		}
	}

	// Swagger UI
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// health
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.POST("/tickets", handleBookTicket(svcs, idem))
	r.POST("/tickets/:id/cancel", handleCancelTicket(svcs))
	r.GET("/tickets/:id", handleGetTicket(svcs))
	r.GET("/tickets", handleListTickets(svcs))

	r.GET("/users/:id/tickets", handleListUserTickets(svcs))
	r.GET("/events/:id/tickets", handleListEventTickets(svcs))

	return r
}

// --- Handlers with Swagger annotations ---

// @Summary  Book a ticket (idempotent)
// @Param    req body  BookTicketRequest true "payload"
// @Header   201 {string} Idempotency-Key "echo"
// @Success  201 {object} domain.Ticket
// @Failure  400 {object} ErrorResponse
// @Failure  404 {object} ErrorResponse "user or event not found"
// @Failure  409 {object} ErrorResponse "duplicate booking / sold out / idem in progress"
// @Failure  429 {object} ErrorResponse "rate limited"
// @Failure  502 {object} ErrorResponse "inventory update failed"
// @Router   /tickets [post]
func handleBookTicket(
	svcs *service.Services,
	idem IdempotencyStore,
) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BookTicketRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}

		idemKey := strings.TrimSpace(c.GetHeader("Idempotency-Key"))
		var idemStorageKey string
		if idem != nil && idemKey != "" {
			idemStorageKey = redisrepo.KeyIdemBooking(req.UserID, req.EventID, idemKey)

			if payload, ok, _ := idem.GetResult(
				c.Request.Context(),
				idemStorageKey,
			); ok {
				c.Header("Idempotency-Key", idemKey)
				c.Data(
					http.StatusCreated,
					"application/json; charset=utf-8",
					[]byte(payload),
				)
				return
			}

			locked, err := idem.AcquireLock(
				c.Request.Context(),
				idemStorageKey,
				60*time.Second,
			)
			if err != nil {
				respondErr(c, err)
				return
			}
			if !locked {
				// The key is taken: either another request holds the
				// lock, or it finished and stored a result between our
				// read and the SetNX.
				if inProgress, err := idem.IsLocked(
					c.Request.Context(),
					idemStorageKey,
				); err == nil && !inProgress {
					if payload, ok, _ := idem.GetResult(
						c.Request.Context(),
						idemStorageKey,
					); ok {
						c.Header("Idempotency-Key", idemKey)
						c.Data(
							http.StatusCreated,
							"application/json; charset=utf-8",
							[]byte(payload),
						)
						return
					}
				}
				c.Header("Retry-After", "1")
				c.JSON(
					http.StatusConflict,
					ErrorResponse{Error: "idempotency key in progress"},
				)
				return
			}
		}

		rlKey := "ip:" + c.ClientIP()

		ticket, err := svcs.Booking.Book(
			c.Request.Context(),
			req.EventID,
			req.UserID,
			req.Quantity,
			rlKey,
		)
		if err != nil {
			if idemStorageKey != "" && idem != nil {
				_ = idem.Release(c.Request.Context(), idemStorageKey)
			}
			var rlErr *booking.RateLimitedError
			if errors.As(err, &rlErr) {
				c.Header("Retry-After", retryAfterSeconds(rlErr.RetryAfter))
				c.JSON(
					http.StatusTooManyRequests,
					ErrorResponse{Error: rlErr.Error()},
				)
				return
			}
			respondErr(c, err)
			return
		}

		if idemStorageKey != "" && idem != nil {
			b, _ := json.Marshal(ticket)
			_ = idem.SaveResult(c.Request.Context(), idemStorageKey, string(b))
			c.Header("Idempotency-Key", idemKey)
		}

		c.JSON(http.StatusCreated, ticket)
	}
}

// @Summary  Cancel a ticket
// @Param    id  path  int  true  "Ticket ID"
// @Success  200 {object} domain.Ticket
// @Failure  404 {object} ErrorResponse
// @Failure  409 {object} ErrorResponse "already cancelled"
// @Failure  502 {object} ErrorResponse "inventory update failed"
// @Router   /tickets/{id}/cancel [post]
func handleCancelTicket(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ticketID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		ticket, err := svcs.Booking.Cancel(c.Request.Context(), ticketID)
		if err != nil {
			respondErr(c, err)
			return
		}
		c.JSON(http.StatusOK, ticket)
	}
}

// @Summary  Get ticket
// @Param    id  path  int  true  "Ticket ID"
// @Success  200  {object}  domain.Ticket
// @Failure  404  {object}  ErrorResponse
// @Router   /tickets/{id} [get]
func handleGetTicket(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		ticketID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		t, err := svcs.Query.GetByID(c.Request.Context(), ticketID)
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 60s
		writeJSONWithCache(c, http.StatusOK, t, "public, max-age=60", true)
	}
}

// @Summary  List tickets
// @Param    status  query  string  false  "BOOKED or CANCELLED"
// @Success  200  {array}   domain.Ticket
// @Router   /tickets [get]
func handleListTickets(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		var (
			tickets []domain.Ticket
			err     error
		)

		if status := c.Query("status"); status != "" {
			tickets, err = svcs.Query.ListByStatus(
				c.Request.Context(),
				domain.TicketStatus(strings.ToUpper(status)),
			)
		} else {
			tickets, err = svcs.Query.ListAll(c.Request.Context())
		}
		if err != nil {
			respondErr(c, err)
			return
		}
		// ETag + Cache-Control 15s
		writeJSONWithCache(c, http.StatusOK, tickets, "public, max-age=15", true)
	}
}

// @Summary  List a user's tickets
// @Param    id  path  int  true  "User ID"
// @Success  200  {array}   domain.Ticket
// @Router   /users/{id}/tickets [get]
func handleListUserTickets(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		tickets, err := svcs.Query.ListByUser(c.Request.Context(), userID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, tickets, "public, max-age=15", true)
	}
}

// @Summary  List an event's tickets
// @Param    id  path  int  true  "Event ID"
// @Success  200  {array}   domain.Ticket
// @Router   /events/{id}/tickets [get]
func handleListEventTickets(svcs *service.Services) gin.HandlerFunc {
	return func(c *gin.Context) {
		eventID, ok := parseInt64Param(c, "id")
		if !ok {
			return
		}
		tickets, err := svcs.Query.ListByEvent(c.Request.Context(), eventID)
		if err != nil {
			respondErr(c, err)
			return
		}
		writeJSONWithCache(c, http.StatusOK, tickets, "public, max-age=15", true)
	}
}

// --- Helpers ---

func parseInt64Param(c *gin.Context, name string) (int64, bool) {
	s := c.Param(name)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return v, true
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg})
}

// retryAfterSeconds renders a duration as a whole-second Retry-After
// value, rounding up so the client never retries early.
func retryAfterSeconds(d time.Duration) string {
	secs := int64((d + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.FormatInt(secs, 10)
}

// errMessage prefers the typed error's own message, which carries the
// offending identifiers, over the sentinel text.
func errMessage(err error, fallback string) string {
	if msg, ok := booking.Message(err); ok {
		return msg
	}
	return fallback
}

func respondErr(c *gin.Context, err error) {
	if err == nil {
		c.Status(http.StatusNoContent)
		return
	}

	switch {
	// booking service
	case errors.Is(err, booking.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: errMessage(err, "invalid argument")})
	case errors.Is(err, booking.ErrUserNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: errMessage(err, "user not found")})
	case errors.Is(err, booking.ErrEventNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: errMessage(err, "event not found")})
	case errors.Is(err, booking.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: errMessage(err, "ticket not found")})
	case errors.Is(err, booking.ErrInsufficientInventory):
		c.JSON(http.StatusConflict, ErrorResponse{Error: errMessage(err, "insufficient inventory")})
	case errors.Is(err, booking.ErrDuplicateBooking):
		c.JSON(http.StatusConflict, ErrorResponse{Error: errMessage(err, "duplicate booking")})
	case errors.Is(err, booking.ErrAlreadyCancelled):
		c.JSON(http.StatusConflict, ErrorResponse{Error: errMessage(err, "ticket already cancelled")})
	case errors.Is(err, booking.ErrInventoryUpdateFailed):
		c.JSON(http.StatusBadGateway, ErrorResponse{Error: errMessage(err, "inventory update failed")})

	// query service
	case errors.Is(err, query.ErrTicketNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "ticket not found"})
	case errors.Is(err, query.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid id"})
	case errors.Is(err, query.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid status"})

	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}
