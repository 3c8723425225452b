package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/ticketline/ticketline/internal/domain"
)

// UserClient resolves user identities against the users service.
type UserClient struct {
	base string
	hc   *http.Client
}

func NewUserClient(baseURL string, hc *http.Client) *UserClient {
	return &UserClient{
		base: strings.TrimRight(baseURL, "/"),
		hc:   hc,
	}
}

// GetUser fetches a user by ID.
//
// Returns:
//   - domain.User: the resolved user.
//   - error: client.ErrNotFound if the users service has no such user.
func (c *UserClient) GetUser(ctx context.Context, userID int64) (domain.User, error) {
	const op = "client.UserClient.GetUser"

	var u domain.User
	url := fmt.Sprintf("%s/users/%d", c.base, userID)
	if err := getJSON(ctx, c.hc, op, url, &u); err != nil {
		return domain.User{}, err
	}

	return u, nil
}
