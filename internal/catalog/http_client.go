package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/sync/singleflight"
)

// HTTPClient implements Catalog against a JSON HTTP catalog service.
type HTTPClient struct {
	baseURL string
	client  *http.Client
	sfg     singleflight.Group // Collapses concurrent lookups of the same product
}

func NewHTTPClient(baseURL string, client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{
		baseURL: baseURL,
		client:  client,
	}
}

func (c *HTTPClient) GetProduct(ctx context.Context, productID string) (*Product, error) {
	v, err, _ := c.sfg.Do(productID, func() (interface{}, error) {
		return c.fetchProduct(ctx, productID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Product), nil
}

func (c *HTTPClient) fetchProduct(ctx context.Context, productID string) (*Product, error) {
	u := fmt.Sprintf("%s/products/%s", c.baseURL, url.PathEscape(productID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build product request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("get product %s: %w", productID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrProductNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("get product %s: unexpected status %d", productID, resp.StatusCode)
	}

	var product Product
	if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
		return nil, fmt.Errorf("decode product %s: %w", productID, err)
	}
	return &product, nil
}
