package configstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultHTTPTimeout = 2 * time.Second

// HTTPOptions configure the edge config HTTP client.
type HTTPOptions struct {
	// BaseURL of the config endpoint. Items are read from
	// <BaseURL>/item/<key>.
	BaseURL string

	// Token is sent as bearer authorization, when set.
	Token string

	// Timeout of a single lookup, defaults to 2 seconds. A slow
	// store must not stall request handling, a timed out lookup
	// degrades to "skip routing" at the caller.
	Timeout time.Duration

	// Transport overrides the default transport, used by tests.
	Transport http.RoundTripper
}

// HTTPClient reads configuration items from an edge-config style HTTP
// endpoint.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTP creates an HTTP backed configuration client.
func NewHTTP(o HTTPOptions) *HTTPClient {
	if o.Timeout == 0 {
		o.Timeout = defaultHTTPTimeout
	}

	return &HTTPClient{
		baseURL: strings.TrimSuffix(o.BaseURL, "/"),
		token:   o.Token,
		client: &http.Client{
			Timeout:   o.Timeout,
			Transport: o.Transport,
		},
	}
}

// Get reads one item. A 404 from the store means the item does not
// exist and yields found=false.
func (c *HTTPClient) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/item/"+key, nil)
	if err != nil {
		return nil, false, err
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	rsp, err := c.client.Do(req)
	if err != nil {
		return nil, false, err
	}
	defer rsp.Body.Close()

	switch {
	case rsp.StatusCode == http.StatusNotFound:
		return nil, false, nil
	case rsp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("config store responded with %s for key %s", rsp.Status, key)
	}

	body, err := io.ReadAll(rsp.Body)
	if err != nil {
		return nil, false, err
	}

	return json.RawMessage(body), true, nil
}
