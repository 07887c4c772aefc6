package http

import (
	"GeoCMS/backend/go/pkg/circuitbreaker"
	"fmt"
	"net/http"
	"time"
)

// Client wraps the standard http.Client and optionally guards every call
// with a circuit breaker.
type Client struct {
	httpClient *http.Client
	breaker    circuitbreaker.CircuitBreaker
}

// NewClient creates a new Client. A nil breaker disables circuit breaking.
func NewClient(timeout time.Duration, breaker circuitbreaker.CircuitBreaker) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		breaker:    breaker,
	}
}

// Do executes an HTTP request with circuit breaker protection.
// Status codes >= 500 count as failures.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.breaker == nil {
		return c.httpClient.Do(req)
	}

	var resp *http.Response
	_, err := c.breaker.Execute(func() (interface{}, error) {
		r, err := c.httpClient.Do(req)
		if err != nil {
			return nil, err
		}
		resp = r
		if r.StatusCode >= http.StatusInternalServerError {
			return nil, fmt.Errorf("server error: received status code %d", r.StatusCode)
		}
		return r, nil
	})
	if err != nil && resp != nil && resp.StatusCode >= http.StatusInternalServerError {
		// The body still carries the server's error message for the caller.
		return resp, nil
	}
	if err != nil {
		return nil, err
	}
	return resp, nil
}
