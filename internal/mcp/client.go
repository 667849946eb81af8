// Package mcp provides an MCP client for exercising a running cppmcp server.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Transport names accepted by ServerConfig.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

var errNotConnected = errors.New("mcp client not connected")

// ServerConfig describes how to reach one cppmcp server.
type ServerConfig struct {
	Name      string   `json:"name"`
	Transport string   `json:"transport"` // "stdio" or "http"
	Command   string   `json:"command,omitempty"`
	Args      []string `json:"args,omitempty"`
	URL       string   `json:"url,omitempty"`
}

// ToolInfo describes a tool advertised by a server.
type ToolInfo struct {
	ServerName  string `json:"server_name"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ToolError is returned when a call completes but the server flags the
// result as an error. Text carries the content the server sent.
type ToolError struct {
	Tool string
	Text string
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s returned error: %s", e.Tool, e.Text)
}

// Client wraps the MCP SDK client for a single server connection.
type Client struct {
	config  ServerConfig
	version string
	client  *mcpsdk.Client
	session *mcpsdk.ClientSession
}

// NewClient creates a client for the given server config. version is
// reported to the server as the client implementation version.
func NewClient(config ServerConfig, version string) *Client {
	if version == "" {
		version = "dev"
	}
	return &Client{config: config, version: version}
}

// Name returns the configured server name.
func (c *Client) Name() string {
	return c.config.Name
}

// Connect performs the initialize handshake with the server.
func (c *Client) Connect(ctx context.Context) error {
	var transport mcpsdk.Transport
	switch c.config.Transport {
	case TransportStdio:
		if c.config.Command == "" {
			return fmt.Errorf("mcp connect to %s: command is required for stdio", c.config.Name)
		}
		transport = &mcpsdk.CommandTransport{
			Command: exec.CommandContext(ctx, c.config.Command, c.config.Args...),
		}
	case TransportHTTP:
		if c.config.URL == "" {
			return fmt.Errorf("mcp connect to %s: url is required for http", c.config.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: c.config.URL}
	default:
		return fmt.Errorf("unsupported MCP transport: %s", c.config.Transport)
	}

	c.client = mcpsdk.NewClient(&mcpsdk.Implementation{
		Name:    "cppmcp-probe",
		Version: c.version,
	}, nil)
	session, err := c.client.Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("mcp connect to %s: %w", c.config.Name, err)
	}
	c.session = session
	return nil
}

// ServerInfo returns the name and version the server reported during
// initialize.
func (c *Client) ServerInfo() (name, version string) {
	if c.session == nil {
		return "", ""
	}
	res := c.session.InitializeResult()
	if res == nil || res.ServerInfo == nil {
		return "", ""
	}
	return res.ServerInfo.Name, res.ServerInfo.Version
}

// ListTools returns all tools available on this server.
func (c *Client) ListTools(ctx context.Context) ([]ToolInfo, error) {
	if c.session == nil {
		return nil, errNotConnected
	}

	var tools []ToolInfo
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("mcp list tools: %w", err)
		}
		tools = append(tools, ToolInfo{
			ServerName:  c.config.Name,
			Name:        tool.Name,
			Description: tool.Description,
		})
	}
	return tools, nil
}

// CallTool invokes a tool and returns its text content. A result flagged
// as an error is returned as *ToolError.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if c.session == nil {
		return "", errNotConnected
	}

	result, err := c.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("mcp call tool %s: %w", name, err)
	}

	var parts []string
	for _, content := range result.Content {
		if tc, ok := content.(*mcpsdk.TextContent); ok {
			parts = append(parts, tc.Text)
		}
	}
	text := strings.Join(parts, "\n")
	if result.IsError {
		return "", &ToolError{Tool: name, Text: text}
	}
	return text, nil
}

// Close closes the session.
func (c *Client) Close() error {
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}
