// Package client provides the shared HTTP session against the ChronoPlan
// cloud service: one configured client per process, bearer auth, and the
// request primitives the catalog, lock and history components build on.
package client

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chronoplan/chronoplan/pkg/metrics"
	"github.com/chronoplan/chronoplan/pkg/models"
	"github.com/chronoplan/chronoplan/pkg/protocol"
	"github.com/chronoplan/chronoplan/pkg/retry"
)

// Client is the shared HTTP session. Safe for concurrent use.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config

	mu        sync.RWMutex
	authToken string
	userID    string
	userEmail string
}

// Config holds client configuration.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RetryConfig retry.Config
	AuthToken   string
}

// New creates a new client.
func New(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RetryConfig.MaxAttempts == 0 {
		cfg.RetryConfig = retry.DefaultConfig()
	}

	c := &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:        100,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		retryConfig: cfg.RetryConfig,
	}
	if cfg.AuthToken != "" {
		c.SetAuthToken(cfg.AuthToken)
	}
	return c
}

// SetAuthToken sets the bearer token for requests and re-derives the
// signed-in identity from its claims.
func (c *Client) SetAuthToken(token string) {
	id, email := identityFromToken(token)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.authToken = token
	c.userID = id
	c.userEmail = email
}

// AuthToken returns the current bearer token, or "" if signed out.
func (c *Client) AuthToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authToken
}

// UserID returns the signed-in user identifier used for lock-ownership
// comparison, or "" if signed out.
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// applyAuth adds the auth header to a request if a token is set.
func (c *Client) applyAuth(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
}

// FetchTeamList fetches the full team/project hierarchy in one request.
func (c *Client) FetchTeamList(ctx context.Context) ([]protocol.TeamEntry, error) {
	teams, err := retry.DoWithResult(ctx, c.retryConfig, func() ([]protocol.TeamEntry, error) {
		req, err := http.NewRequestWithContext(ctx, "GET",
			c.baseURL+"/team/list?owned=true&participated=true", nil)
		if err != nil {
			return nil, err
		}
		c.applyAuth(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, retry.Retryable(&TransportError{Err: err})
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			te := &TransportError{Status: resp.StatusCode, Reason: readReason(resp.Body)}
			if resp.StatusCode >= 500 {
				return nil, retry.Retryable(te)
			}
			return nil, te
		}

		var result []protocol.TeamEntry
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, &MalformedError{Err: err}
		}
		return result, nil
	})

	metrics.RecordCatalogFetch(outcome(err))
	return teams, err
}

// AcquireLock requests an exclusive write lease on a project. A 2xx response
// carries either the new lock as JSON or an empty body.
func (c *Client) AcquireLock(ctx context.Context, refid string, duration time.Duration, requestToken bool) (*models.LockInfo, error) {
	form := url.Values{
		"projectRefid":            {refid},
		"expirationPeriodSeconds": {strconv.Itoa(int(duration.Seconds()))},
		"requestLockToken":        {strconv.FormatBool(requestToken)},
	}

	body, err := c.postLockForm(ctx, "/p/lock", form)
	if err != nil {
		metrics.RecordLockOperation("acquire", "rejected")
		return nil, err
	}
	metrics.RecordLockOperation("acquire", "ok")

	if len(body) == 0 {
		return nil, nil
	}
	var lock models.LockInfo
	if err := json.Unmarshal(body, &lock); err != nil {
		return nil, &MalformedError{Err: err}
	}
	return &lock, nil
}

// ReleaseLock releases the lease on a project. Success is an empty body.
func (c *Client) ReleaseLock(ctx context.Context, refid string) error {
	form := url.Values{"projectRefid": {refid}}
	_, err := c.postLockForm(ctx, "/p/unlock", form)
	if err != nil {
		metrics.RecordLockOperation("release", "rejected")
		return err
	}
	metrics.RecordLockOperation("release", "ok")
	return nil
}

// postLockForm issues a form-encoded lock request. Lock operations are never
// retried: whether a repeat would be safe is a server-side decision.
func (c *Client) postLockForm(ctx context.Context, path string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	c.applyAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &LockRejectedError{Status: resp.StatusCode, Reason: readReason(resp.Body)}
	}

	return io.ReadAll(resp.Body)
}

// FetchVersions fetches the version history of a project. A 2xx body that is
// not an array yields an empty list: absence of history is a valid state.
func (c *Client) FetchVersions(ctx context.Context, refid string) ([]protocol.VersionEntry, error) {
	versions, err := retry.DoWithResult(ctx, c.retryConfig, func() ([]protocol.VersionEntry, error) {
		req, err := http.NewRequestWithContext(ctx, "GET",
			c.baseURL+"/p/versions?projectRefid="+url.QueryEscape(refid), nil)
		if err != nil {
			return nil, err
		}
		c.applyAuth(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, retry.Retryable(&TransportError{Err: err})
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			te := &TransportError{Status: resp.StatusCode, Reason: readReason(resp.Body)}
			if resp.StatusCode >= 500 {
				return nil, retry.Retryable(te)
			}
			return nil, te
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, retry.Retryable(&TransportError{Err: err})
		}

		var result []protocol.VersionEntry
		if err := json.Unmarshal(data, &result); err != nil {
			return []protocol.VersionEntry{}, nil
		}
		return result, nil
	})

	metrics.RecordHistoryFetch(outcome(err))
	return versions, err
}

// readReason extracts a diagnostic message from an error response body.
func readReason(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	var errResp protocol.ErrorResponse
	if json.Unmarshal(data, &errResp) == nil && errResp.Error != "" {
		return errResp.Error
	}
	return strings.TrimSpace(string(data))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsCancelled(err):
		return "cancelled"
	default:
		return "error"
	}
}
