package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gfnviewer/queuewatch/internal/state"
)

// HTTPClient makes REST calls to the queuewatch server.
type HTTPClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewHTTPClient creates a client targeting the given base URL (e.g. "http://127.0.0.1:8787").
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

// Status fetches /api/status.
func (c *HTTPClient) Status() (*state.Status, error) {
	var st state.Status
	if err := c.do(http.MethodGet, "/api/status", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Whoami fetches /api/whoami.
func (c *HTTPClient) Whoami() (*Identity, error) {
	var id Identity
	if err := c.do(http.MethodGet, "/api/whoami", &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// StartWatch sends POST /api/watch.
func (c *HTTPClient) StartWatch() (*state.Status, error) {
	var st state.Status
	if err := c.do(http.MethodPost, "/api/watch", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// StopWatch sends DELETE /api/watch.
func (c *HTTPClient) StopWatch() (*state.Status, error) {
	var st state.Status
	if err := c.do(http.MethodDelete, "/api/watch", &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *HTTPClient) do(method, path string, out interface{}) error {
	req, err := http.NewRequest(method, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	c.setAuth(req)
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *HTTPClient) setAuth(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}
