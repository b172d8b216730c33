package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/comigor/save-go/internal/llm"
)

const ExtractionName = "upc_extraction"

// ErrMalformedExtraction is returned when the model output is not a JSON object even
// after the single repair pass.
var ErrMalformedExtraction = errors.New("malformed extraction output")

// Extraction is the structured output contract of the extraction model call.
type Extraction struct {
	UPC         string `json:"upc"`
	Description string `json:"description"`
	Confidence  string `json:"confidence"`
	FoundUPC    bool   `json:"found_upc"`
}

type extractionResult struct {
	Success     bool   `json:"success"`
	UPC         string `json:"upc"`
	Description string `json:"description"`
	Confidence  string `json:"confidence"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
}

// ParseExtraction decodes model output. If direct decoding fails it applies exactly one
// repair pass (strip code fences, take the first balanced object) and then gives up.
func ParseExtraction(content string) (Extraction, error) {
	var out Extraction
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &out); err == nil {
		return out, nil
	}
	repaired, ok := firstObject(stripFences(content))
	if !ok {
		return Extraction{}, fmt.Errorf("%w: no JSON object found", ErrMalformedExtraction)
	}
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		return Extraction{}, fmt.Errorf("%w: %v", ErrMalformedExtraction, err)
	}
	return out, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// firstObject returns the first balanced {...} in s, honouring JSON string escapes.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth, inString, escaped := 0, false, false
	for i := start; i < len(s); i++ {
		c := s[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// NewExtractionTool extracts a UPC and description from free text using the model.
func NewExtractionTool(client llm.Client, model string) Tool {
	return Tool{
		Name:        ExtractionName,
		Description: "Extracts UPC codes and product descriptions from natural language text about products. Use this tool when the user mentions numbers that could be UPC codes or asks about specific products. Input should be the user's complete message.",
		Parameters:  stringParams("input_text", "The user's complete message"),
		Invoke: func(ctx context.Context, args map[string]any) Result {
			input := stringArg(args, "input_text", "text", "message", "__arg1")
			res := extract(ctx, client, model, input)
			b, _ := json.Marshal(res)
			return Result{Text: string(b)}
		},
	}
}

func extract(ctx context.Context, client llm.Client, model, input string) extractionResult {
	failed := func(err error) extractionResult {
		return extractionResult{Error: "Extraction failed: " + err.Error(), Confidence: "Low"}
	}
	if client == nil {
		return failed(errors.New("no model provided for extraction"))
	}
	if input == "" {
		return failed(errors.New("input_text is required"))
	}

	resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: llm.ExtractionPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Extract UPC and description from: " + input},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	})
	if err != nil {
		return failed(err)
	}
	if len(resp.Choices) == 0 {
		return failed(errors.New("empty model response"))
	}

	ex, err := ParseExtraction(resp.Choices[0].Message.Content)
	if err != nil {
		return failed(err)
	}

	upc := Digits(ex.UPC)
	found := ex.FoundUPC && len(upc) >= 8
	out := extractionResult{
		Success:     found,
		UPC:         upc,
		Description: strings.TrimSpace(ex.Description),
		Confidence:  ex.Confidence,
	}
	if out.Confidence == "" {
		out.Confidence = "Medium"
	}
	if found {
		out.Message = fmt.Sprintf("Extracted UPC: %s, Description: %s", upc, out.Description)
	} else {
		out.Message = "No valid UPC found in input"
	}
	return out
}
