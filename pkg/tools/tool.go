package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/comigor/save-go/internal/conversation"
)

// Result is what a tool returns. Tools never return Go errors: failures are described
// in Text so the Responder can react to them.
type Result struct {
	Text string
	// Match is set when the tool found a definitive record for its input.
	Match   bool
	Product *conversation.Product
}

// InvokeFunc executes a tool with decoded JSON arguments.
type InvokeFunc func(ctx context.Context, args map[string]any) Result

// Tool is a named capability the Responder may call.
type Tool struct {
	Name        string
	Description string
	// Parameters is the JSON schema of the arguments object.
	Parameters json.RawMessage
	// Authoritative tools are priority sources: a Match from them is trusted without
	// validator review.
	Authoritative bool
	Invoke        InvokeFunc
}

// Failure formats a tool-level error as result text.
func Failure(tool string, err error) Result {
	return Result{Text: fmt.Sprintf("Error running %s: %v", tool, err)}
}

// Text is a plain textual result.
func Text(format string, args ...any) Result {
	return Result{Text: fmt.Sprintf(format, args...)}
}

// stringParams builds a schema for a tool that takes a single required string argument.
func stringParams(name, description string) json.RawMessage {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			name: map[string]any{"type": "string", "description": description},
		},
		"required": []string{name},
	}
	b, _ := json.Marshal(schema)
	return b
}

// stringArg returns the first non-empty string among the given keys. Models sometimes
// pick a different key than the schema names, so callers list the usual aliases.
func stringArg(args map[string]any, keys ...string) string {
	for _, k := range keys {
		switch v := args[k].(type) {
		case string:
			if s := strings.TrimSpace(v); s != "" {
				return s
			}
		case float64:
			return fmt.Sprintf("%.0f", v)
		}
	}
	// A single-argument call with an unexpected key is still usable.
	if len(args) == 1 {
		for _, v := range args {
			if s, ok := v.(string); ok {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}
