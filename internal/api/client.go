// Package api is the HTTP client for the backend: auth, drive listings, and
// knowledge base operations.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"kbpicker/internal/model"
	"kbpicker/internal/retry"
)

// StatusError carries the HTTP status code of a failed call.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("backend returned %d", e.Code)
}

// IsNotFound reports whether err is a StatusError for a missing resource.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Client talks to the backend over JSON/HTTP.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	retryConfig retry.Config

	mu    sync.RWMutex
	token string
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

	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   10 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:    100,
				IdleConnTimeout: 90 * time.Second,
			},
		},
		retryConfig: cfg.RetryConfig,
		token:       cfg.AuthToken,
	}
}

// SetToken sets the session token used for subsequent requests.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// Token returns the current session token.
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) applyAuth(req *http.Request) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// do runs a single JSON request. A nil out skips response decoding. Network
// failures and 5xx responses are marked retryable; other non-2xx responses
// become StatusError.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	return retry.Do(ctx, c.retryConfig, func() error {
		u := c.baseURL + path
		if len(query) > 0 {
			u += "?" + query.Encode()
		}

		var reqBody *bytes.Reader
		if body != nil {
			b, err := json.Marshal(body)
			if err != nil {
				return fmt.Errorf("marshal request: %w", err)
			}
			reqBody = bytes.NewReader(b)
		} else {
			reqBody = bytes.NewReader(nil)
		}

		req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
		if err != nil {
			return err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		c.applyAuth(req)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return retry.Retryable(err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			if resp.StatusCode >= 500 {
				return retry.Retryable(&StatusError{Code: resp.StatusCode})
			}
			return &StatusError{Code: resp.StatusCode}
		}

		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	})
}

type listEnvelope struct {
	Data []model.Resource `json:"data"`
}

// ListResources fetches a drive listing: the root when resourceID is empty,
// otherwise the direct contents of the given folder.
func (c *Client) ListResources(ctx context.Context, resourceID string) ([]model.Resource, error) {
	q := url.Values{}
	if resourceID != "" {
		q.Set("resource_id", resourceID)
	}
	var env listEnvelope
	if err := c.do(ctx, http.MethodGet, "/connections/resources", q, nil, &env); err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return env.Data, nil
}

type createKBRequest struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	ResourceIDs []string `json:"resource_ids"`
}

// CreateKnowledgeBase creates a knowledge base over the given resource ids.
func (c *Client) CreateKnowledgeBase(ctx context.Context, name, description string, resourceIDs []string) (*model.KnowledgeBase, error) {
	var kb model.KnowledgeBase
	req := createKBRequest{Name: name, Description: description, ResourceIDs: resourceIDs}
	if err := c.do(ctx, http.MethodPost, "/knowledge-bases", nil, req, &kb); err != nil {
		return nil, fmt.Errorf("create knowledge base: %w", err)
	}
	return &kb, nil
}

// SyncKnowledgeBase triggers server-side indexing for the knowledge base.
func (c *Client) SyncKnowledgeBase(ctx context.Context, kbID string) error {
	if err := c.do(ctx, http.MethodPost, "/knowledge-bases/"+kbID+"/sync", nil, nil, nil); err != nil {
		return fmt.Errorf("sync knowledge base: %w", err)
	}
	return nil
}

// ListKBResources fetches the status-bearing listing for a knowledge base
// scope. 404 and 500 mean the knowledge base has not seen the folder yet and
// return an empty listing, so optimistic folder expansion never fails hard.
func (c *Client) ListKBResources(ctx context.Context, kbID, resourcePath string) ([]model.Resource, error) {
	q := url.Values{}
	q.Set("resource_path", resourcePath)
	var env listEnvelope
	err := c.do(ctx, http.MethodGet, "/knowledge-bases/"+kbID+"/resources", q, nil, &env)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && (se.Code == http.StatusNotFound || se.Code == http.StatusInternalServerError) {
			return nil, nil
		}
		return nil, fmt.Errorf("list kb resources: %w", err)
	}
	return env.Data, nil
}

// DeleteKBResource removes one resource from the knowledge base. 404 is
// treated as already deleted.
func (c *Client) DeleteKBResource(ctx context.Context, kbID, resourcePath string) error {
	q := url.Values{}
	q.Set("resource_path", resourcePath)
	err := c.do(ctx, http.MethodDelete, "/knowledge-bases/"+kbID+"/resources", q, nil, nil)
	if err != nil {
		if IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("delete kb resource: %w", err)
	}
	return nil
}
