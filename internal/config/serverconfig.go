package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// ServerDefinition describes how to reach one MCP server. Command-based
// definitions use the stdio transport; URL-based ones use streamable HTTP
// (or SSE when Transport says so).
type ServerDefinition struct {
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	URL       string            `json:"url,omitempty"`
	Transport string            `json:"transport,omitempty"`
}

// ServerConfig is the on-disk server registry, shaped like the mcpServers
// block MCP host applications use, so an existing host config can be pointed
// at directly.
type ServerConfig struct {
	Servers map[string]ServerDefinition `json:"mcpServers"`
}

// LoadServerConfig reads and validates a server config file.
func LoadServerConfig(path string) (*ServerConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading server config: %w", err)
	}
	if err := ValidateServerConfig(raw); err != nil {
		return nil, fmt.Errorf("invalid server config %s: %w", path, err)
	}

	var sc ServerConfig
	if err := json.Unmarshal(raw, &sc); err != nil {
		return nil, fmt.Errorf("parsing server config: %w", err)
	}
	if len(sc.Servers) == 0 {
		return nil, fmt.Errorf("server config %s defines no servers", path)
	}
	for name, def := range sc.Servers {
		if def.Command == "" && def.URL == "" {
			return nil, fmt.Errorf("server %q defines neither a command nor a url", name)
		}
	}
	return &sc, nil
}

// Names returns the defined server names, sorted.
func (sc *ServerConfig) Names() []string {
	names := make([]string, 0, len(sc.Servers))
	for name := range sc.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Select resolves a server by name. An empty name is accepted only when
// exactly one server is defined; with several, the caller must choose.
func (sc *ServerConfig) Select(name string) (ServerDefinition, error) {
	if name == "" {
		if len(sc.Servers) == 1 {
			for _, def := range sc.Servers {
				return def, nil
			}
		}
		return ServerDefinition{}, fmt.Errorf(
			"config defines %d servers (%s); pick one with --server",
			len(sc.Servers), strings.Join(sc.Names(), ", "))
	}
	def, ok := sc.Servers[name]
	if !ok {
		return ServerDefinition{}, fmt.Errorf(
			"server %q not found in config; available: %s", name, strings.Join(sc.Names(), ", "))
	}
	return def, nil
}

// TransportType resolves the effective transport for a definition.
func (d ServerDefinition) TransportType() string {
	if d.Transport != "" {
		return d.Transport
	}
	if d.Command != "" {
		return "stdio"
	}
	return "http"
}
