// Package yahoo answers stock, ETF and index quotes from the Yahoo Finance
// chart endpoint.
package yahoo

import (
	"net/http"
	"net/url"

	"pricefeed/internal/httpx"
)

const defaultBaseURL = "https://query1.finance.yahoo.com"

// Client is a client for the Yahoo Finance chart API.
//
//go:generate mockgen -package=yahoo_test -destination=mock_http_client_test.go pricefeed/internal/httpx HTTPClient
type Client struct {
	// baseURL is the base URL for the API.
	baseURL string
	// httpClient performs the requests.
	httpClient httpx.HTTPClient
	// header contains additional headers sent with each request.
	header http.Header
	// query contains additional query parameters sent with each request.
	query url.Values
}

// ClientOption is a configuration option for the Yahoo client.
type ClientOption func(*Client)

// WithBaseURL sets the base URL for the API.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client for the API.
func WithHTTPClient(httpClient httpx.HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithHeader sets additional headers to be sent with each request.
func WithHeader(header http.Header) ClientOption {
	return func(c *Client) {
		for key, values := range header {
			for _, value := range values {
				c.header.Add(key, value)
			}
		}
	}
}

// NewClient creates a new Yahoo Finance client.
func NewClient(options ...ClientOption) *Client {
	var client = &Client{
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		header:     http.Header{},
		query:      url.Values{},
	}
	client.query.Set("interval", "1d")
	client.query.Set("range", "1d")
	for _, option := range options {
		option(client)
	}
	return client
}
