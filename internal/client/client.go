// Package client defines the MCP client surface the compliance engine runs
// against, together with a go-sdk backed implementation. The engine only ever
// sees the Client interface, which keeps the diagnostics testable against a
// mock and keeps transport concerns out of the scoring core.
package client

import (
	"context"
	"time"
)

// Transport types supported by the go-sdk backed client.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
	TransportSSE   = "sse"
)

// Tool describes a tool advertised by the server.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// Resource describes a resource advertised by the server.
type Resource struct {
	URI      string `json:"uri"`
	Name     string `json:"name,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// PromptArgument describes a single argument of a prompt.
type PromptArgument struct {
	Name     string `json:"name"`
	Required bool   `json:"required,omitempty"`
}

// Prompt describes a prompt advertised by the server.
type Prompt struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments,omitempty"`
}

// Content is a single content block in a tool or prompt result.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ToolResult is the outcome of a tool call.
type ToolResult struct {
	IsError bool      `json:"isError,omitempty"`
	Content []Content `json:"content"`
}

// ResourceContents is one content entry of a resource read.
type ResourceContents struct {
	URI      string `json:"uri"`
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text,omitempty"`
	Blob     []byte `json:"blob,omitempty"`
}

// PromptMessage is one message of a rendered prompt.
type PromptMessage struct {
	Role    string  `json:"role"`
	Content Content `json:"content"`
}

// PromptResult is the outcome of a prompt render.
type PromptResult struct {
	Description string          `json:"description,omitempty"`
	Messages    []PromptMessage `json:"messages"`
}

// ServerVersion is the implementation info reported by the server during the
// initialize handshake.
type ServerVersion struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	Title   string `json:"title,omitempty"`
}

// Client is the MCP client collaborator consumed by the compliance engine.
// Connect must be called before any other operation; Disconnect is best
// effort and safe to call on a client that never connected. Every operation
// may return a structured *Error carrying a JSON-RPC code, or an untyped
// transport error.
type Client interface {
	Connect(ctx context.Context) error
	Disconnect() error

	ListTools(ctx context.Context) ([]Tool, error)
	ListResources(ctx context.Context) ([]Resource, error)
	ListPrompts(ctx context.Context) ([]Prompt, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error)
	ReadResource(ctx context.Context, uri string) ([]ResourceContents, error)
	GetPrompt(ctx context.Context, name string, args map[string]string) (*PromptResult, error)

	// Handshake-derived metadata. All of these return zero values until
	// Connect has succeeded.
	GetServerCapabilities() map[string]any
	GetServerVersion() *ServerVersion
	GetInstructions() string
	ProtocolVersion() string
	TransportType() string
}

// ConnectOptions selects the transport and target for a go-sdk client.
type ConnectOptions struct {
	// Transport is one of TransportStdio, TransportHTTP, TransportSSE.
	Transport string

	// Command and Args launch the server subprocess for stdio transport.
	Command string
	Args    []string
	Env     map[string]string

	// URL is the server endpoint for http and sse transports.
	URL string

	// ClientName identifies this harness to the server.
	ClientName string

	ConnectTimeout time.Duration
}
