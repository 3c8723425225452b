package query

import (
	"errors"
)

var (
	ErrTicketNotFound  = errors.New("ticket not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrInvalidStatus   = errors.New("invalid status")
)
