// Package client provides a Go client for the vektor HTTP API.
//
// Client mirrors the embedded engine.DB operations (Insert, Delete, Search,
// Optimize, Stats) over HTTP, so code written against one can switch to the
// other. Every call takes a context and maps non-2xx responses to *APIError.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sanonone/vektor/pkg/engine"
)

// --- Custom Errors ---

// APIError represents an error returned by the vektor API (status >= 400).
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsConflict reports whether err is a 409 (duplicate id) from the API.
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusConflict
}

// --- JSON Response Structs ---

type searchResponse struct {
	Results []engine.Result `json:"results"`
}

// --- Client ---

// Client is the Go client for a vektor server.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// New creates a client for the server at baseURL (e.g. "http://localhost:8080").
// An empty token sends no Authorization header.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// jsonRequest executes one API call. It handles JSON serialization, the
// bearer token and error decoding. out may be nil.
func (c *Client) jsonRequest(ctx context.Context, method, endpoint string, payload, out any) error {
	var reqBody io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal JSON payload: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connection error: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp map[string]string
		if json.Unmarshal(respBody, &errResp) == nil && errResp["error"] != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp["error"]}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("invalid JSON response for %s %s: %w", method, endpoint, err)
	}
	return nil
}

// Up checks the unauthenticated liveness endpoint.
func (c *Client) Up(ctx context.Context) error {
	return c.jsonRequest(ctx, http.MethodGet, "/up", nil, nil)
}

// Insert adds a document. metadata may be nil.
func (c *Client) Insert(ctx context.Context, id string, vector []float32, metadata any) error {
	payload := map[string]any{
		"id":     id,
		"vector": vector,
	}
	if metadata != nil {
		payload["metadata"] = metadata
	}
	return c.jsonRequest(ctx, http.MethodPost, "/insert", payload, nil)
}

// Delete removes a document and reports whether it existed.
func (c *Client) Delete(ctx context.Context, id string) (bool, error) {
	err := c.jsonRequest(ctx, http.MethodPost, "/delete", map[string]string{"id": id}, nil)
	if IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Search returns up to k documents most similar to vector.
func (c *Client) Search(ctx context.Context, vector []float32, k int, opts engine.SearchOptions) ([]engine.Result, error) {
	payload := map[string]any{
		"vector":           vector,
		"k":                k,
		"include_vector":   opts.IncludeVector,
		"include_metadata": opts.IncludeMetadata,
	}
	var resp searchResponse
	if err := c.jsonRequest(ctx, http.MethodPost, "/search", payload, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

// Optimize triggers a compaction and waits for it to finish.
func (c *Client) Optimize(ctx context.Context) error {
	return c.jsonRequest(ctx, http.MethodPost, "/optimize", nil, nil)
}

// Stats retrieves store sizes, record counts and parameters.
func (c *Client) Stats(ctx context.Context) (engine.Stats, error) {
	var st engine.Stats
	err := c.jsonRequest(ctx, http.MethodGet, "/info", nil, &st)
	return st, err
}
