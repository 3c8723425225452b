package httpgin

type BookTicketRequest struct {
	EventID  int64 `json:"event_id" binding:"required"`
	UserID   int64 `json:"user_id" binding:"required"`
	Quantity int   `json:"quantity"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
