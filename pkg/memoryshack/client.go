// Package memoryshack proxies tool calls from the dashboard UI to the
// memory-shack MCP server, a stdio JSON-RPC process holding the timeline
// and key/value memories.
package memoryshack

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/grovetools/devdash/config"
	"github.com/grovetools/devdash/errors"
	"github.com/grovetools/devdash/internal/daemon/metrics"
	"github.com/grovetools/devdash/version"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/sirupsen/logrus"
)

// ToolCaller is the MCP session the proxy talks through.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	Close() error
}

// Dialer starts a ToolCaller.
type Dialer func(ctx context.Context) (ToolCaller, error)

// Client forwards allow-listed tool calls. The MCP process is started on the
// first call and restarted after a failed call.
type Client struct {
	dial    Dialer
	allowed map[string]bool
	timeout time.Duration
	logger  *logrus.Entry
	metrics metrics.Recorder

	mu     sync.Mutex
	caller ToolCaller
}

// Option configures a Client.
type Option func(*Client)

// WithDialer replaces the stdio dialer.
func WithDialer(d Dialer) Option {
	return func(c *Client) { c.dial = d }
}

// WithMetrics reports every call to rec.
func WithMetrics(rec metrics.Recorder) Option {
	return func(c *Client) { c.metrics = rec }
}

// New creates a Client from the memory_shack configuration section. With no
// command configured, calls fail with NOT_CONFIGURED.
func New(cfg config.MemoryShackConfig, logger *logrus.Entry, opts ...Option) *Client {
	c := &Client{
		allowed: allowList(cfg.Tools),
		timeout: cfg.Timeout.Std(),
		logger:  logger,
		metrics: metrics.NewNoop(),
	}
	if cfg.Command != "" {
		c.dial = stdioDialer(cfg)
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.timeout <= 0 {
		c.timeout = config.DefaultMCPTimeout
	}
	return c
}

// allowList intersects the configured tools with the known tools. An empty
// list allows every known tool.
func allowList(tools []string) map[string]bool {
	allowed := make(map[string]bool, len(toolArgs))
	if len(tools) == 0 {
		for name := range toolArgs {
			allowed[name] = true
		}
		return allowed
	}
	for _, name := range tools {
		if _, known := toolArgs[name]; known {
			allowed[name] = true
		}
	}
	return allowed
}

// Allowed returns the tools this client forwards, sorted.
func (c *Client) Allowed() []string {
	names := make([]string, 0, len(c.allowed))
	for name := range c.allowed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Call validates and forwards one tool call. The first text content of the
// result is JSON-decoded when possible and returned as a string otherwise.
func (c *Client) Call(ctx context.Context, tool string, args map[string]any) (any, error) {
	if !c.allowed[tool] {
		c.metrics.ProxyCall(tool, metrics.OutcomeRejected)
		return nil, errors.ToolNotAllowed(tool)
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := ValidateArgs(tool, args); err != nil {
		c.metrics.ProxyCall(tool, metrics.OutcomeRejected)
		return nil, err
	}

	caller, err := c.session(ctx)
	if err != nil {
		c.metrics.ProxyCall(tool, metrics.OutcomeFailed)
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	log := c.logger.WithField("tool", tool)
	res, err := caller.CallTool(ctx, tool, args)
	if err != nil {
		c.reset(caller)
		outcome := metrics.OutcomeFailed
		if ctx.Err() == context.DeadlineExceeded {
			outcome = metrics.OutcomeTimeout
		}
		c.metrics.ProxyCall(tool, outcome)
		log.WithError(err).Warn("memory-shack call failed")
		return nil, errors.Wrap(err, errors.ErrCodeUpstreamFailed, "memory-shack call failed")
	}

	text := firstText(res)
	if res.IsError {
		c.metrics.ProxyCall(tool, metrics.OutcomeFailed)
		if text == "" {
			text = "tool returned an error"
		}
		return nil, errors.New(errors.ErrCodeUpstreamFailed, text).WithDetail("tool", tool)
	}

	c.metrics.ProxyCall(tool, metrics.OutcomeOK)
	log.Debug("memory-shack call succeeded")
	return decodeText(text), nil
}

func (c *Client) session(ctx context.Context) (ToolCaller, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.caller != nil {
		return c.caller, nil
	}
	if c.dial == nil {
		return nil, errors.New(errors.ErrCodeNotConfigured, "memory-shack is not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	caller, err := c.dial(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUpstreamFailed, "failed to start memory-shack")
	}
	c.logger.Info("Started memory-shack session")
	c.caller = caller
	return caller, nil
}

// reset drops a failed session so the next call starts a new one.
func (c *Client) reset(failed ToolCaller) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.caller != failed {
		return
	}
	c.caller = nil
	if err := failed.Close(); err != nil {
		c.logger.WithError(err).Debug("Closing memory-shack session failed")
	}
}

// Close stops the MCP process, if one was started.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.caller == nil {
		return nil
	}
	err := c.caller.Close()
	c.caller = nil
	return err
}

func firstText(res *mcp.CallToolResult) string {
	if res == nil {
		return ""
	}
	for _, content := range res.Content {
		switch tc := content.(type) {
		case mcp.TextContent:
			return tc.Text
		case *mcp.TextContent:
			return tc.Text
		}
	}
	return ""
}

func decodeText(text string) any {
	if text == "" {
		return nil
	}
	var v any
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return text
	}
	return v
}

// stdioCaller is a ToolCaller over an mcp-go stdio client.
type stdioCaller struct {
	c *client.Client
}

func (s *stdioCaller) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return s.c.CallTool(ctx, req)
}

func (s *stdioCaller) Close() error {
	return s.c.Close()
}

func stdioDialer(cfg config.MemoryShackConfig) Dialer {
	env := make([]string, 0, len(cfg.Env))
	for k, v := range cfg.Env {
		env = append(env, k+"="+v)
	}
	sort.Strings(env)

	return func(ctx context.Context) (ToolCaller, error) {
		c, err := client.NewStdioMCPClient(cfg.Command, env, cfg.Args...)
		if err != nil {
			return nil, fmt.Errorf("spawn %s: %w", cfg.Command, err)
		}

		initReq := mcp.InitializeRequest{}
		initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
		initReq.Params.ClientInfo = mcp.Implementation{Name: "devdash", Version: version.Version}
		if _, err := c.Initialize(ctx, initReq); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("initialize: %w", err)
		}
		return &stdioCaller{c: c}, nil
	}
}
