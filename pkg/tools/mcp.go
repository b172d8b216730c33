package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/comigor/save-go/internal/config"
	"github.com/comigor/save-go/internal/logger"
)

var emptySchema = json.RawMessage(`{"type": "object", "properties": {}}`)

// MCPClient is the subset of the mcp-go client the registry needs.
type MCPClient interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// ConnectMCP starts a client for every configured server and registers the tools each
// one lists. Servers that fail to start are logged and skipped. The returned clients
// must be closed by the caller.
func ConnectMCP(ctx context.Context, reg *Registry, servers []config.MCPServerConfig) []MCPClient {
	log := logger.For("mcp")
	clients := make([]MCPClient, 0, len(servers))

	for _, serverCfg := range servers {
		var mcpC *client.Client
		var err error

		switch serverCfg.Type {
		case config.ClientTypeSSE:
			var sseOpts []transport.ClientOption
			if len(serverCfg.Headers) > 0 {
				sseOpts = append(sseOpts, transport.WithHeaders(serverCfg.Headers))
			}
			mcpC, err = client.NewSSEMCPClient(serverCfg.URL, sseOpts...)
		case config.ClientTypeStreamableHTTP:
			var httpOpts []transport.StreamableHTTPCOption
			if len(serverCfg.Headers) > 0 {
				httpOpts = append(httpOpts, transport.WithHTTPHeaders(serverCfg.Headers))
			}
			mcpC, err = client.NewStreamableHttpClient(serverCfg.URL, httpOpts...)
		case config.ClientTypeStdio:
			var env []string
			for k, v := range serverCfg.Env {
				env = append(env, fmt.Sprintf("%s=%s", k, v))
			}
			mcpC, err = client.NewStdioMCPClient(serverCfg.Command, env, serverCfg.Args...)
		default:
			log.Warn("unsupported MCP server type, skipping", "type", serverCfg.Type, "name", serverCfg.Name)
			continue
		}
		if err != nil {
			log.Error("failed to create MCP client", "name", serverCfg.Name, "error", err)
			continue
		}

		// stdio clients are started by their constructor.
		if serverCfg.Type != config.ClientTypeStdio {
			if err := mcpC.Start(ctx); err != nil {
				log.Error("failed to start MCP client transport", "name", serverCfg.Name, "error", err)
				_ = mcpC.Close()
				continue
			}
		}

		n, err := RegisterMCP(ctx, reg, serverCfg.Name, mcpC)
		if err != nil {
			log.Error("failed to initialize MCP server", "name", serverCfg.Name, "error", err)
			_ = mcpC.Close()
			continue
		}
		log.Info("MCP server connected", "name", serverCfg.Name, "tools", n)
		clients = append(clients, mcpC)
	}
	return clients
}

// RegisterMCP initializes c and registers every tool it lists. Tools whose names are
// already registered are skipped. It returns the number of tools added.
func RegisterMCP(ctx context.Context, reg *Registry, server string, c MCPClient) (int, error) {
	log := logger.For("mcp").With("server", server)

	if _, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{Capabilities: mcp.ClientCapabilities{}},
	}); err != nil {
		return 0, err
	}

	listed, err := c.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return 0, fmt.Errorf("list tools: %w", err)
	}
	if listed == nil {
		return 0, nil
	}

	added := 0
	for _, mcpTool := range listed.Tools {
		err := reg.Register(Tool{
			Name:        mcpTool.Name,
			Description: mcpTool.Description,
			Parameters:  mcpSchema(mcpTool),
			Invoke:      mcpInvoker(c, mcpTool.Name),
		})
		if err != nil {
			log.Warn("skipping MCP tool", "tool", mcpTool.Name, "error", err)
			continue
		}
		added++
	}
	return added, nil
}

func mcpSchema(t mcp.Tool) json.RawMessage {
	if len(t.RawInputSchema) > 0 && string(t.RawInputSchema) != "null" {
		return t.RawInputSchema
	}
	b, err := json.Marshal(t.InputSchema)
	if err != nil || string(b) == "{}" || string(b) == "null" {
		return emptySchema
	}
	return b
}

func mcpInvoker(c MCPClient, name string) InvokeFunc {
	return func(ctx context.Context, args map[string]any) Result {
		res, err := c.CallTool(ctx, mcp.CallToolRequest{
			Params: mcp.CallToolParams{Name: name, Arguments: args},
		})
		if err != nil {
			return Failure(name, err)
		}
		if res == nil {
			return Text("Tool %s returned no result.", name)
		}

		var text string
		for _, item := range res.Content {
			if tc, ok := item.(mcp.TextContent); ok {
				text = tc.Text
				break
			}
		}
		switch {
		case text != "" && res.IsError:
			return Text("Tool %s reported an error: %s", name, text)
		case text != "":
			return Result{Text: text}
		case res.IsError:
			return Text("Tool %s execution resulted in an error without specific text.", name)
		}
		b, err := json.Marshal(res)
		if err != nil {
			return Text("Tool %s executed successfully, but result could not be formatted.", name)
		}
		return Result{Text: string(b)}
	}
}
