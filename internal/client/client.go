// Package client holds the HTTP clients for the collaborator services the
// reservation core depends on: the users service (identity lookup) and the
// events service (event metadata and the per-event ticket inventory).
//
// Every call is a single, bounded attempt: the shared http.Client carries a
// timeout, and a timed-out call is reported the same way as any other
// collaborator failure.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var ErrNotFound = errors.New("not found")

// StatusError is a non-2xx collaborator response, kept verbatim for
// diagnosis by the caller.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.Status, e.Body)
}

const defaultTimeout = 5 * time.Second

// NewHTTPClient returns the http.Client shared by the collaborator clients.
// A non-positive timeout falls back to the default.
func NewHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{Timeout: timeout}
}

func getJSON(ctx context.Context, hc *http.Client, op, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%s:%w", op, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return statusErr(op, resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	return nil
}

func postNoBody(ctx context.Context, hc *http.Client, op, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("%s:%w", op, err)
	}

	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s:%w", op, ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusErr(op, resp)
	}

	return nil
}

func statusErr(op string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return &StatusError{Op: op, Status: resp.StatusCode, Body: string(body)}
}
