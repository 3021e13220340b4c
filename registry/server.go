package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/YatsauAliaksei/openapi-mcp/convert"
	"github.com/YatsauAliaksei/openapi-mcp/dispatch"
	"github.com/YatsauAliaksei/openapi-mcp/errdefs"
)

// Reserved call arguments carrying a per-call credential override. They
// are never advertised in a tool's input schema.
const (
	ArgAuthToken    = "openapi|auth_token"
	ArgAuthUsername = "openapi|auth_username"
	ArgAuthPassword = "openapi|auth_password"
)

// MCPServer exposes every tool of the registry on an MCP server.
func (r *Registry) MCPServer(name, version string) *server.MCPServer {
	mcpServer := server.NewMCPServer(
		name,
		version,
		server.WithToolCapabilities(false),
	)
	for _, tool := range r.Tools() {
		mcpServer.AddTool(mcpTool(tool), r.newHandler(tool))
	}
	return mcpServer
}

func mcpTool(tool *convert.Tool) mcp.Tool {
	schema := tool.InputSchema()
	t := mcp.Tool{
		Name:        tool.Name,
		Description: tool.Description,
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: schema["properties"].(map[string]any),
		},
	}
	if required, ok := schema["required"].([]string); ok {
		t.InputSchema.Required = required
	}
	return t
}

func (r *Registry) newHandler(tool *convert.Tool) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (result *mcp.CallToolResult, err error) {
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("tool call panicked",
					zap.String("tool", tool.Name),
					zap.Any("panic", p))
				result = errorResult(&errdefs.InternalError{
					Service: tool.Service,
					Tool:    tool.Name,
					Err:     fmt.Errorf("panic: %v", p),
				})
				err = nil
			}
		}()

		args, override := splitArgs(request.Params.Arguments)
		res, callErr := r.Call(ctx, tool.Name, args, override)
		if callErr != nil {
			return errorResult(callErr), nil
		}
		return successResult(res), nil
	}
}

// splitArgs separates the reserved auth arguments from the tool arguments.
func splitArgs(raw map[string]any) (map[string]any, *dispatch.Auth) {
	args := make(map[string]any, len(raw))
	var token, username, password string
	for k, v := range raw {
		switch k {
		case ArgAuthToken:
			token, _ = v.(string)
		case ArgAuthUsername:
			username, _ = v.(string)
		case ArgAuthPassword:
			password, _ = v.(string)
		default:
			args[k] = v
		}
	}

	switch {
	case token != "":
		return args, &dispatch.Auth{Kind: dispatch.AuthBearer, Token: token}
	case username != "":
		return args, &dispatch.Auth{Kind: dispatch.AuthBasic, ClientID: username, ClientSecret: password}
	}
	return args, nil
}

func successResult(res *dispatch.Result) *mcp.CallToolResult {
	payload, err := json.Marshal(res)
	if err != nil {
		return errorResult(err)
	}
	result := mcp.NewToolResultText(string(payload))
	result.IsError = res.IsError()
	return result
}

type errorPayload struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Kind       errdefs.Kind `json:"kind"`
	Message    string       `json:"message"`
	StatusCode int          `json:"status_code,omitempty"`
}

func errorResult(err error) *mcp.CallToolResult {
	payload, _ := json.Marshal(errorPayload{Error: errorBody{
		Kind:       errdefs.KindOf(err),
		Message:    err.Error(),
		StatusCode: errdefs.StatusCode(err),
	}})
	result := mcp.NewToolResultText(string(payload))
	result.IsError = true
	return result
}
