package client

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/sirupsen/logrus"
)

// SDKClient implements Client on top of the official MCP go-sdk.
type SDKClient struct {
	opts    ConnectOptions
	logger  *logrus.Logger
	session *mcp.ClientSession
}

// NewSDKClient creates an unconnected go-sdk backed client.
func NewSDKClient(opts ConnectOptions, logger *logrus.Logger) *SDKClient {
	if opts.ClientName == "" {
		opts.ClientName = "mcp-compliance-tester"
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &SDKClient{opts: opts, logger: logger}
}

// Connect establishes the session over the configured transport.
func (c *SDKClient) Connect(ctx context.Context) error {
	transport, err := c.buildTransport()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	impl := &mcp.Implementation{
		Name:    c.opts.ClientName,
		Version: "1.0.0",
	}
	session, err := mcp.NewClient(impl, nil).Connect(ctx, transport, nil)
	if err != nil {
		return fmt.Errorf("connecting to MCP server: %w", err)
	}
	c.session = session

	c.logger.WithFields(logrus.Fields{
		"transport": c.opts.Transport,
		"server":    c.GetServerVersion().Name,
	}).Debug("MCP session established")
	return nil
}

func (c *SDKClient) buildTransport() (mcp.Transport, error) {
	switch c.opts.Transport {
	case TransportStdio, "":
		if c.opts.Command == "" {
			return nil, fmt.Errorf("stdio transport requires a command")
		}
		cmd := exec.Command(c.opts.Command, c.opts.Args...)
		cmd.Env = os.Environ()
		for k, v := range c.opts.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		return &mcp.CommandTransport{Command: cmd}, nil
	case TransportHTTP:
		if c.opts.URL == "" {
			return nil, fmt.Errorf("http transport requires a url")
		}
		return &mcp.StreamableClientTransport{Endpoint: c.opts.URL}, nil
	case TransportSSE:
		if c.opts.URL == "" {
			return nil, fmt.Errorf("sse transport requires a url")
		}
		return &mcp.SSEClientTransport{Endpoint: c.opts.URL}, nil
	default:
		return nil, fmt.Errorf("unsupported transport type %q", c.opts.Transport)
	}
}

// Disconnect closes the session. Safe on an unconnected client.
func (c *SDKClient) Disconnect() error {
	if c.session == nil {
		return nil
	}
	err := c.session.Close()
	c.session = nil
	return err
}

// wrapErr normalizes SDK errors into structured protocol errors when a
// JSON-RPC code can be recovered from them.
func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	if perr := AsProtocolError(err); perr != nil {
		return perr
	}
	return err
}

func (c *SDKClient) ListTools(ctx context.Context) ([]Tool, error) {
	if c.session == nil {
		return nil, fmt.Errorf("client is not connected")
	}
	res, err := c.session.ListTools(ctx, nil)
	if err != nil {
		return nil, wrapErr(err)
	}
	tools := make([]Tool, 0, len(res.Tools))
	for _, t := range res.Tools {
		tools = append(tools, Tool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: toMap(t.InputSchema),
		})
	}
	return tools, nil
}

func (c *SDKClient) ListResources(ctx context.Context) ([]Resource, error) {
	if c.session == nil {
		return nil, fmt.Errorf("client is not connected")
	}
	res, err := c.session.ListResources(ctx, nil)
	if err != nil {
		return nil, wrapErr(err)
	}
	resources := make([]Resource, 0, len(res.Resources))
	for _, r := range res.Resources {
		resources = append(resources, Resource{
			URI:      r.URI,
			Name:     r.Name,
			MimeType: r.MIMEType,
		})
	}
	return resources, nil
}

func (c *SDKClient) ListPrompts(ctx context.Context) ([]Prompt, error) {
	if c.session == nil {
		return nil, fmt.Errorf("client is not connected")
	}
	res, err := c.session.ListPrompts(ctx, nil)
	if err != nil {
		return nil, wrapErr(err)
	}
	prompts := make([]Prompt, 0, len(res.Prompts))
	for _, p := range res.Prompts {
		prompt := Prompt{Name: p.Name, Description: p.Description}
		for _, a := range p.Arguments {
			prompt.Arguments = append(prompt.Arguments, PromptArgument{
				Name:     a.Name,
				Required: a.Required,
			})
		}
		prompts = append(prompts, prompt)
	}
	return prompts, nil
}

func (c *SDKClient) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	if c.session == nil {
		return nil, fmt.Errorf("client is not connected")
	}
	res, err := c.session.CallTool(ctx, &mcp.CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, wrapErr(err)
	}
	result := &ToolResult{IsError: res.IsError}
	for _, item := range res.Content {
		result.Content = append(result.Content, toContent(item))
	}
	return result, nil
}

func (c *SDKClient) ReadResource(ctx context.Context, uri string) ([]ResourceContents, error) {
	if c.session == nil {
		return nil, fmt.Errorf("client is not connected")
	}
	res, err := c.session.ReadResource(ctx, &mcp.ReadResourceParams{URI: uri})
	if err != nil {
		return nil, wrapErr(err)
	}
	contents := make([]ResourceContents, 0, len(res.Contents))
	for _, rc := range res.Contents {
		contents = append(contents, ResourceContents{
			URI:      rc.URI,
			MimeType: rc.MIMEType,
			Text:     rc.Text,
			Blob:     rc.Blob,
		})
	}
	return contents, nil
}

func (c *SDKClient) GetPrompt(ctx context.Context, name string, args map[string]string) (*PromptResult, error) {
	if c.session == nil {
		return nil, fmt.Errorf("client is not connected")
	}
	res, err := c.session.GetPrompt(ctx, &mcp.GetPromptParams{Name: name, Arguments: args})
	if err != nil {
		return nil, wrapErr(err)
	}
	result := &PromptResult{Description: res.Description}
	for _, m := range res.Messages {
		result.Messages = append(result.Messages, PromptMessage{
			Role:    string(m.Role),
			Content: toContent(m.Content),
		})
	}
	return result, nil
}

func (c *SDKClient) GetServerCapabilities() map[string]any {
	init := c.initializeResult()
	if init == nil || init.Capabilities == nil {
		return nil
	}
	return toMap(init.Capabilities)
}

func (c *SDKClient) GetServerVersion() *ServerVersion {
	init := c.initializeResult()
	if init == nil || init.ServerInfo == nil {
		return &ServerVersion{}
	}
	return &ServerVersion{
		Name:    init.ServerInfo.Name,
		Version: init.ServerInfo.Version,
		Title:   init.ServerInfo.Title,
	}
}

func (c *SDKClient) GetInstructions() string {
	init := c.initializeResult()
	if init == nil {
		return ""
	}
	return init.Instructions
}

func (c *SDKClient) ProtocolVersion() string {
	init := c.initializeResult()
	if init == nil {
		return ""
	}
	return init.ProtocolVersion
}

func (c *SDKClient) TransportType() string {
	if c.opts.Transport == "" {
		return TransportStdio
	}
	return c.opts.Transport
}

func (c *SDKClient) initializeResult() *mcp.InitializeResult {
	if c.session == nil {
		return nil
	}
	return c.session.InitializeResult()
}

func toContent(item mcp.Content) Content {
	switch v := item.(type) {
	case *mcp.TextContent:
		return Content{Type: "text", Text: v.Text}
	default:
		return Content{Type: fmt.Sprintf("%T", item)}
	}
}

// toMap converts any SDK struct into a generic map via its JSON form. The
// report only needs the wire shape, not the SDK types.
func toMap(v any) map[string]any {
	if v == nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}
