package client

import (
	"context"
	"sync"
)

// MockClient is a function-field Client for engine tests. Unset fields fall
// back to benign defaults (successful connect, empty listings). Every call is
// counted so tests can assert which collaborator operations actually ran.
type MockClient struct {
	ConnectFunc       func(ctx context.Context) error
	DisconnectFunc    func() error
	ListToolsFunc     func(ctx context.Context) ([]Tool, error)
	ListResourcesFunc func(ctx context.Context) ([]Resource, error)
	ListPromptsFunc   func(ctx context.Context) ([]Prompt, error)
	CallToolFunc      func(ctx context.Context, name string, args map[string]any) (*ToolResult, error)
	ReadResourceFunc  func(ctx context.Context, uri string) ([]ResourceContents, error)
	GetPromptFunc     func(ctx context.Context, name string, args map[string]string) (*PromptResult, error)

	Capabilities map[string]any
	Version      *ServerVersion
	Instructions string
	Protocol     string
	Transport    string

	mu    sync.Mutex
	calls map[string]int
}

var _ Client = (*MockClient)(nil)

func (m *MockClient) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[op]++
}

// CallCount reports how many times the named operation was invoked.
func (m *MockClient) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

func (m *MockClient) Connect(ctx context.Context) error {
	m.record("Connect")
	if m.ConnectFunc != nil {
		return m.ConnectFunc(ctx)
	}
	return nil
}

func (m *MockClient) Disconnect() error {
	m.record("Disconnect")
	if m.DisconnectFunc != nil {
		return m.DisconnectFunc()
	}
	return nil
}

func (m *MockClient) ListTools(ctx context.Context) ([]Tool, error) {
	m.record("ListTools")
	if m.ListToolsFunc != nil {
		return m.ListToolsFunc(ctx)
	}
	return nil, nil
}

func (m *MockClient) ListResources(ctx context.Context) ([]Resource, error) {
	m.record("ListResources")
	if m.ListResourcesFunc != nil {
		return m.ListResourcesFunc(ctx)
	}
	return nil, nil
}

func (m *MockClient) ListPrompts(ctx context.Context) ([]Prompt, error) {
	m.record("ListPrompts")
	if m.ListPromptsFunc != nil {
		return m.ListPromptsFunc(ctx)
	}
	return nil, nil
}

func (m *MockClient) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	m.record("CallTool")
	if m.CallToolFunc != nil {
		return m.CallToolFunc(ctx, name, args)
	}
	return &ToolResult{}, nil
}

func (m *MockClient) ReadResource(ctx context.Context, uri string) ([]ResourceContents, error) {
	m.record("ReadResource")
	if m.ReadResourceFunc != nil {
		return m.ReadResourceFunc(ctx, uri)
	}
	return nil, nil
}

func (m *MockClient) GetPrompt(ctx context.Context, name string, args map[string]string) (*PromptResult, error) {
	m.record("GetPrompt")
	if m.GetPromptFunc != nil {
		return m.GetPromptFunc(ctx, name, args)
	}
	return &PromptResult{}, nil
}

func (m *MockClient) GetServerCapabilities() map[string]any {
	m.record("GetServerCapabilities")
	return m.Capabilities
}

func (m *MockClient) GetServerVersion() *ServerVersion {
	if m.Version != nil {
		return m.Version
	}
	return &ServerVersion{Name: "mock-server", Version: "0.0.0"}
}

func (m *MockClient) GetInstructions() string { return m.Instructions }

func (m *MockClient) ProtocolVersion() string { return m.Protocol }

func (m *MockClient) TransportType() string {
	if m.Transport == "" {
		return TransportStdio
	}
	return m.Transport
}
