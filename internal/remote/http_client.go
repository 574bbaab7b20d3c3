package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sony/gobreaker/v2"
)

// TokenSource supplies the bearer token for authenticated requests.
type TokenSource interface {
	Token() (string, bool)
}

// HTTPClient implements Store against a JSON HTTP cart service. All calls
// go through a circuit breaker so a flapping backend fails fast instead
// of stalling every cart operation.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	tokens  TokenSource
	breaker *gobreaker.CircuitBreaker[*http.Response]
}

func NewHTTPClient(baseURL string, client *http.Client, tokens TokenSource) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  client,
		tokens:  tokens,
		breaker: gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name:    "remote-cart",
			Timeout: 10 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

func (c *HTTPClient) List(ctx context.Context) ([]Row, error) {
	resp, err := c.do(ctx, http.MethodGet, "/cart/items", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, http.StatusOK); err != nil {
		return nil, err
	}

	var rows []Row
	if err := json.NewDecoder(resp.Body).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode cart rows: %w", err)
	}
	return rows, nil
}

func (c *HTTPClient) Create(ctx context.Context, item Item) (Row, error) {
	resp, err := c.do(ctx, http.MethodPost, "/cart/items", item)
	if err != nil {
		return Row{}, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, http.StatusCreated); err != nil {
		return Row{}, err
	}
	return decodeRow(resp.Body)
}

func (c *HTTPClient) Update(ctx context.Context, rowID string, quantity int) (Row, error) {
	body := struct {
		Quantity int `json:"quantity"`
	}{Quantity: quantity}

	resp, err := c.do(ctx, http.MethodPatch, "/cart/items/"+url.PathEscape(rowID), body)
	if err != nil {
		return Row{}, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, http.StatusOK); err != nil {
		return Row{}, err
	}
	return decodeRow(resp.Body)
}

func (c *HTTPClient) Delete(ctx context.Context, rowID string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/cart/items/"+url.PathEscape(rowID), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkStatus(resp, http.StatusNoContent)
}

func (c *HTTPClient) DeleteAll(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodDelete, "/cart/items", nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkStatus(resp, http.StatusNoContent)
}

func (c *HTTPClient) Merge(ctx context.Context, items []Item) error {
	body := struct {
		Items []Item `json:"items"`
	}{Items: items}

	resp, err := c.do(ctx, http.MethodPost, "/cart/merge", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return checkStatus(resp, http.StatusNoContent)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body interface{}) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build cart request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.tokens != nil {
		if token, ok := c.tokens.Token(); ok {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		// Count backend outages toward tripping the breaker
		if resp.StatusCode >= http.StatusInternalServerError {
			resp.Body.Close()
			return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
		}
		return resp, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		return nil, err
	}
	return resp, nil
}

func checkStatus(resp *http.Response, want int) error {
	if resp.StatusCode == want {
		return nil
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrRowNotFound
	}
	return fmt.Errorf("remote cart: unexpected status %d", resp.StatusCode)
}

func decodeRow(r io.Reader) (Row, error) {
	var row Row
	if err := json.NewDecoder(r).Decode(&row); err != nil {
		return Row{}, fmt.Errorf("decode cart row: %w", err)
	}
	return row, nil
}
