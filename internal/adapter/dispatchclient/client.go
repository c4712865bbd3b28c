// Package dispatchclient calls a remote send-push-notification endpoint so the
// alert orchestrator can hand delivery to a separately deployed dispatcher.
package dispatchclient

import (
	"context"
	"errors"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dunapp/water-level-alert/internal/domain"
)

const sendPath = "/send-push-notification"

// sendResponse is the success body of the dispatch endpoint.
type sendResponse struct {
	Message string `json:"message"`
	Total   int    `json:"total"`
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Client implements alert.Dispatcher over HTTP.
type Client struct {
	http *resty.Client
}

// New creates a Client authenticating with a bearer token. Requests are not
// retried: a repeated send could notify subscribers twice.
func New(baseURL, token string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetAuthToken(token).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	return &Client{http: c}
}

// Dispatch posts p to the remote dispatcher. Any failure to get a 2xx answer
// is returned as a *domain.TransportError.
func (c *Client) Dispatch(ctx context.Context, p domain.Payload) (domain.Summary, error) {
	var (
		out    sendResponse
		apiErr errorResponse
	)
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(p).
		SetResult(&out).
		SetError(&apiErr).
		Post(sendPath)
	if err != nil {
		return domain.Summary{}, &domain.TransportError{Op: "send-push-notification", Err: err}
	}
	if resp.IsError() {
		msg := apiErr.Error
		if msg == "" {
			msg = resp.Status()
		}
		return domain.Summary{}, &domain.TransportError{
			Op:         "send-push-notification",
			StatusCode: resp.StatusCode(),
			Err:        errors.New(msg),
		}
	}

	return domain.Summary{Total: out.Total, Sent: out.Sent, Failed: out.Failed}, nil
}
