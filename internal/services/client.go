// Throttled HTTP client shared by the platform publishers
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/time/rate"
)

// APIResponse is a raw response with its body fully read.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
}

// apiClient sends requests through a rate limiter and turns non-2xx responses into [*StatusError].
type apiClient struct {
	httpClient *http.Client
	limiter    *rate.Limiter
}

func newAPIClient(client *http.Client, rps float64) *apiClient {
	if client == nil {
		client = http.DefaultClient
	}

	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}

	return &apiClient{httpClient: client, limiter: rate.NewLimiter(limit, 1)}
}

// Do sends req and reads the response. Statuses in ok are accepted in addition to 2xx.
func (c *apiClient) Do(ctx context.Context, client *http.Client, req *http.Request, ok ...int) (*APIResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	if client == nil {
		client = c.httpClient
	}

	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{StatusCode: resp.StatusCode, Headers: resp.Header, Body: body}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return apiResp, nil
	}
	for _, code := range ok {
		if resp.StatusCode == code {
			return apiResp, nil
		}
	}

	return apiResp, &StatusError{Method: req.Method, URL: redactURL(req), StatusCode: resp.StatusCode, Body: body}
}

// DoJSON sends req and decodes a successful response body into result when non-nil.
func (c *apiClient) DoJSON(ctx context.Context, client *http.Client, req *http.Request, result any) error {
	resp, err := c.Do(ctx, client, req)
	if err != nil {
		return err
	}
	if result == nil || len(resp.Body) == 0 {
		return nil
	}
	return decodeJSON(resp.Body, result)
}

func decodeJSON(body []byte, result any) error {
	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func newJSONRequest(ctx context.Context, method, url string, payload any) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	}
	return req, nil
}

// redactURL drops the query string, which may carry access tokens.
func redactURL(req *http.Request) string {
	u := *req.URL
	u.RawQuery, u.User = "", nil
	return u.String()
}
