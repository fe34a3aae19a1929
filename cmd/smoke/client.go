package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// client calls the registry API as one of the smoke identities
type client struct {
	baseURL string
	tokens  map[string]string
	http    *http.Client
}

func newClient(baseURL string, tokens map[string]string) *client {
	return &client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		http:    &http.Client{Timeout: 10 * time.Second},
	}
}

// response is a decoded API reply
type response struct {
	Status int
	Body   map[string]interface{}
	Raw    []byte
}

func (r *response) String() string {
	return fmt.Sprintf("%d %s", r.Status, strings.TrimSpace(string(r.Raw)))
}

// do sends a request as identity. An empty identity sends no credentials.
func (c *client) do(ctx context.Context, method, path, identity string, body any) (*response, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if identity != "" {
		req.Header.Set("Authorization", "Bearer "+c.tokens[identity])
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	out := &response{Status: resp.StatusCode, Raw: raw}
	if len(raw) > 0 {
		// non-object bodies are left undecoded
		_ = json.Unmarshal(raw, &out.Body)
	}
	return out, nil
}

// ready fails fast when the server is unreachable or not ready
func (c *client) ready(ctx context.Context) error {
	resp, err := c.do(ctx, http.MethodGet, "/ready", "", nil)
	if err != nil {
		return fmt.Errorf("registry unreachable: %w", err)
	}
	if resp.Status != http.StatusOK {
		return fmt.Errorf("registry not ready: %s", resp)
	}
	return nil
}
