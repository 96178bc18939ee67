// Package dashclient talks to a running dashboard over its HTTP API.
package dashclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/grovetools/devdash/errors"
	"github.com/grovetools/devdash/internal/dashboard/project"
)

// Client calls the dashboard API.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// New creates a Client for the dashboard listening on addr, either a
// host:port or a full URL.
func New(addr string) *Client {
	base := addr
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(base, "/"),
	}
}

// Health reports whether the dashboard answers.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil)
}

// Projects lists the projects.
func (c *Client) Projects(ctx context.Context) ([]project.Project, error) {
	var out []project.Project
	if err := c.do(ctx, http.MethodGet, "/api/projects", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Status reports whether a project is running.
func (c *Client) Status(ctx context.Context, name string) (bool, error) {
	var out struct {
		Running bool `json:"running"`
	}
	if err := c.do(ctx, http.MethodGet, projectPath(name, "status"), &out); err != nil {
		return false, err
	}
	return out.Running, nil
}

// Metadata returns the metadata of a project.
func (c *Client) Metadata(ctx context.Context, name string) (*project.Metadata, error) {
	var out project.Metadata
	if err := c.do(ctx, http.MethodGet, projectPath(name, "metadata"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Launch starts a project.
func (c *Client) Launch(ctx context.Context, name string) (*project.LaunchResult, error) {
	var out project.LaunchResult
	if err := c.do(ctx, http.MethodPost, projectPath(name, "launch"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Close force closes a project.
func (c *Client) Close(ctx context.Context, name string) (*project.CloseResult, error) {
	var out project.CloseResult
	if err := c.do(ctx, http.MethodPost, projectPath(name, "close"), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func projectPath(name, action string) string {
	return "/api/projects/" + url.PathEscape(name) + "/" + action
}

// do sends a request and decodes a JSON answer into out. API errors come
// back as *errors.DashError carrying the server's code.
func (c *Client) do(ctx context.Context, method, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach dashboard at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		var apiErr struct {
			Error string `json:"error"`
			Code  string `json:"code"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Code != "" {
			return errors.New(errors.ErrorCode(apiErr.Code), apiErr.Error).WithDetail("status", resp.StatusCode)
		}
		return fmt.Errorf("dashboard returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
