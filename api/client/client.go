// Package client is the Go client of the node HTTP API.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/vocdoni/aegis/api"
	"github.com/vocdoni/aegis/log"
)

const (
	// HTTPGET is the method string used for calling Request()
	HTTPGET = http.MethodGet
	// HTTPPOST is the method string used for calling Request()
	HTTPPOST = http.MethodPost

	// DefaultRetries is the number of attempts of a GET request when the
	// connection to the node fails.
	DefaultRetries = 3
	// DefaultTimeout is the default timeout for the HTTP client. Proving
	// happens inside the transaction request, so it is generous.
	DefaultTimeout = 3 * time.Minute

	retryDelay    = 500 * time.Millisecond
	maxLoggedBody = 512
)

// Error is a response of the node with a status other than 200.
type Error struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *Error) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("API error: %d (%s)", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("API error: %d code %d: %s", e.StatusCode, e.Code, e.Message)
}

// IsCode reports whether err is a node response carrying the code of
// apiErr, for instance api.ErrNullifierSpent.
func IsCode(err error, apiErr api.Error) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == apiErr.Code
}

// responseError decodes the API error of a failed response. Bodies that are
// not API errors, such as those of the router itself, are kept as text.
func responseError(status int, body []byte) *Error {
	e := &Error{StatusCode: status, Message: strings.TrimSpace(string(body))}
	var res api.ErrorResponse
	if err := json.Unmarshal(body, &res); err == nil && res.Code != 0 {
		e.Code, e.Message = res.Code, res.Error
	}
	return e
}

// HTTPclient is the HTTP client of the node API.
type HTTPclient struct {
	c       *http.Client
	host    *url.URL
	retries int
}

// New connects to the API host and returns the handle. The host must answer
// the ping endpoint.
func New(host string) (*HTTPclient, error) {
	hostURL, err := url.Parse(host)
	if err != nil {
		return nil, err
	}
	c := &HTTPclient{
		c: &http.Client{
			Transport: &http.Transport{IdleConnTimeout: DefaultTimeout},
			Timeout:   DefaultTimeout,
		},
		host:    hostURL,
		retries: DefaultRetries,
	}
	log.Debugw("http client created", "host", hostURL.String())
	if err := c.call(HTTPGET, nil, nil, api.PingEndpoint); err != nil {
		return nil, err
	}
	return c, nil
}

// SetRetries configures the number of attempts of GET requests.
func (c *HTTPclient) SetRetries(n int) {
	c.retries = n
}

// SetTimeout configures the timeout of every request.
func (c *HTTPclient) SetTimeout(d time.Duration) {
	c.c.Timeout = d
}

// Request performs a request to the endpoint joined from urlPath, with
// jsonBody encoded as the request body if not nil. It returns the response
// body and status code. Only GET requests are retried: a POST may have
// queued a transaction even if its response was lost.
func (c *HTTPclient) Request(method string, jsonBody any, urlPath ...string) ([]byte, int, error) {
	var body []byte
	if jsonBody != nil {
		var err error
		if body, err = json.Marshal(jsonBody); err != nil {
			return nil, 0, fmt.Errorf("failed to marshal JSON: %w", err)
		}
	}
	u := *c.host
	u.Path = path.Join(u.Path, path.Join(urlPath...))

	logged := body
	if len(logged) > maxLoggedBody {
		logged = logged[:maxLoggedBody]
	}
	log.Debugw("http client request", "type", method, "url", u.String(), "body", string(logged))

	attempts := 1
	if method == HTTPGET && c.retries > 1 {
		attempts = c.retries
	}
	var resp *http.Response
	var err error
	for i := 1; i <= attempts; i++ {
		req, rerr := http.NewRequest(method, u.String(), bytes.NewReader(body))
		if rerr != nil {
			return nil, 0, fmt.Errorf("failed to create request: %w", rerr)
		}
		if jsonBody != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		if resp, err = c.c.Do(req); err == nil {
			break
		}
		log.Warnw("http request failed", "error", err.Error(), "attempt", i, "attempts", attempts)
		if i < attempts {
			time.Sleep(retryDelay)
		}
	}
	if err != nil {
		return nil, 0, fmt.Errorf("http request failed after %d attempts: %w", attempts, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response body: %w", err)
	}
	return data, resp.StatusCode, nil
}
