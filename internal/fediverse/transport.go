package fediverse

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/bytedance/sonic"
	"github.com/jaxron/axonet/pkg/client"
)

// Transport performs JSON requests against one server through an axonet client.
// Pacing, authentication and status mapping live in the client's middleware chain.
type Transport struct {
	BaseURL string
	Client  *client.Client
}

// NewTransport creates a Transport for baseURL.
func NewTransport(baseURL string, c *client.Client) *Transport {
	return &Transport{
		BaseURL: baseURL,
		Client:  c,
	}
}

// Get sends a GET request and decodes the JSON response into out.
func (t *Transport) Get(ctx context.Context, path string, query url.Values, out any) error {
	req := t.Client.NewRequest().
		Method(http.MethodGet).
		URL(t.BaseURL + path)

	for key, values := range query {
		for _, v := range values {
			req = req.Query(key, v)
		}
	}

	resp, err := req.Do(ctx)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}

	return decode(resp, out)
}

// Post sends body as JSON and decodes the JSON response into out.
func (t *Transport) Post(ctx context.Context, path string, body any, out any) error {
	resp, err := t.Client.NewRequest().
		Method(http.MethodPost).
		URL(t.BaseURL + path).
		MarshalBody(body).
		Do(ctx)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}

	return decode(resp, out)
}

func decode(resp *http.Response, out any) error {
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if err := sonic.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidResponse, err)
	}

	return nil
}
