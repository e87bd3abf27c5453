// Package client is an HTTP client for the marker API.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tendant/detect-archive-pipeline/pkg/pipeline"
)

// Client queries the positive store through the marker API
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new marker client
func New(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewWithHTTPClient creates a new marker client with a custom HTTP client
func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// ListMarkers returns every positive detection with its coordinates
func (c *Client) ListMarkers(ctx context.Context) ([]pipeline.Marker, error) {
	resp, err := c.get(ctx, c.baseURL+"/get_real_files")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var markers []pipeline.Marker
	if err := json.NewDecoder(resp.Body).Decode(&markers); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return markers, nil
}

// FetchImage downloads an archived positive image
func (c *Client) FetchImage(ctx context.Context, filename string) ([]byte, error) {
	return c.fetch(ctx, c.imageURL(filename, nil))
}

// FetchThumbnail downloads a JPEG thumbnail fitted into width x height
func (c *Client) FetchThumbnail(ctx context.Context, filename string, width, height int) ([]byte, error) {
	q := url.Values{}
	q.Set("width", strconv.Itoa(width))
	q.Set("height", strconv.Itoa(height))
	return c.fetch(ctx, c.imageURL(filename, q))
}

func (c *Client) imageURL(filename string, q url.Values) string {
	u := fmt.Sprintf("%s/real_images/%s", c.baseURL, url.PathEscape(filename))
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) fetch(ctx context.Context, u string) ([]byte, error) {
	resp, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return data, nil
}

// get executes a GET and returns the response only for status 200
func (c *Client) get(ctx context.Context, u string) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(bodyBytes))
	}

	return resp, nil
}
