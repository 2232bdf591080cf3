package react

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"google.golang.org/genai"

	"github.com/forgehq/sidecar/pkg/models"
)

// GoogleProvider implements LLMProvider against the Gemini API.
type GoogleProvider struct {
	client       *genai.Client
	defaultModel string
	maxRetries   int
	retryDelay   time.Duration
}

// GoogleConfig configures a GoogleProvider.
type GoogleConfig struct {
	APIKey       string
	DefaultModel string
	MaxRetries   int
	RetryDelay   time.Duration
}

// NewGoogleProvider builds a provider bound to one API key.
func NewGoogleProvider(cfg GoogleConfig) (*GoogleProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("google: API key is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("google: failed to create client: %w", err)
	}

	return &GoogleProvider{
		client:       client,
		defaultModel: cfg.DefaultModel,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   cfg.RetryDelay,
	}, nil
}

func (p *GoogleProvider) Name() string { return "google" }

func (p *GoogleProvider) Models() []Model {
	return []Model{
		{ID: "gemini-2.0-flash", Name: "Gemini 2.0 Flash"},
		{ID: "gemini-1.5-pro", Name: "Gemini 1.5 Pro"},
		{ID: "gemini-1.5-flash", Name: "Gemini 1.5 Flash"},
	}
}

func (p *GoogleProvider) model(req *CompletionRequest) string {
	if req.Model == "" {
		return p.defaultModel
	}
	return req.Model
}

func (p *GoogleProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	chunks := make(chan *CompletionChunk)

	go func() {
		defer close(chunks)

		model := p.model(req)
		contents, err := p.convertMessages(req.Messages)
		if err != nil {
			chunks <- &CompletionChunk{Error: fmt.Errorf("google: %w", err)}
			return
		}
		config := p.buildConfig(req)

		var lastErr error
		for attempt := 0; attempt <= p.maxRetries; attempt++ {
			lastErr = p.stream(ctx, model, contents, config, chunks)
			if lastErr == nil || !isRetryableGoogleErr(lastErr) {
				break
			}
			if attempt == p.maxRetries {
				break
			}
			select {
			case <-ctx.Done():
				chunks <- &CompletionChunk{Error: ctx.Err()}
				return
			case <-time.After(p.retryDelay << attempt):
			}
		}

		if lastErr != nil {
			chunks <- &CompletionChunk{Error: fmt.Errorf("google: %w", lastErr)}
			return
		}
		chunks <- &CompletionChunk{Done: true}
	}()

	return chunks, nil
}

func (p *GoogleProvider) stream(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig, chunks chan<- *CompletionChunk) error {
	seq := p.client.Models.GenerateContentStream(ctx, model, contents, config)

	for resp, err := range seq {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return err
		}
		if resp == nil {
			continue
		}

		for _, candidate := range resp.Candidates {
			if candidate == nil || candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part == nil {
					continue
				}
				if part.Text != "" {
					chunks <- &CompletionChunk{Text: part.Text}
				}
				if part.FunctionCall != nil {
					argsJSON, jsonErr := json.Marshal(part.FunctionCall.Args)
					if jsonErr != nil {
						argsJSON = []byte("{}")
					}
					chunks <- &CompletionChunk{ToolCall: &ToolCall{
						ID:    "call_" + part.FunctionCall.Name + "_" + strconv.FormatInt(time.Now().UnixNano(), 10),
						Name:  part.FunctionCall.Name,
						Input: argsJSON,
					}}
				}
			}
		}
		if resp.UsageMetadata != nil {
			chunks <- &CompletionChunk{
				InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
				OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			}
		}
	}
	return nil
}

func (p *GoogleProvider) convertMessages(messages []CompletionMessage) ([]*genai.Content, error) {
	var result []*genai.Content
	for _, msg := range messages {
		if msg.Role == "system" {
			continue
		}

		content := &genai.Content{}
		switch msg.Role {
		case "assistant":
			content.Role = genai.RoleModel
		default:
			content.Role = genai.RoleUser
		}

		if msg.Content != "" {
			content.Parts = append(content.Parts, &genai.Part{Text: msg.Content})
		}
		for _, tc := range msg.ToolCalls {
			var args map[string]any
			if err := json.Unmarshal(tc.Input, &args); err != nil {
				args = map[string]any{}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionCall: &genai.FunctionCall{Name: tc.Name, Args: args},
			})
		}
		for _, tr := range msg.ToolResults {
			var response map[string]any
			if err := json.Unmarshal([]byte(tr.Content), &response); err != nil {
				response = map[string]any{"result": tr.Content, "error": tr.IsError}
			}
			content.Parts = append(content.Parts, &genai.Part{
				FunctionResponse: &genai.FunctionResponse{Name: toolNameForResult(tr.ToolCallID, messages), Response: response},
			})
		}
		result = append(result, content)
	}
	return result, nil
}

func (p *GoogleProvider) buildConfig(req *CompletionRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(min(req.MaxTokens, math.MaxInt32))
	}
	if len(req.Tools) > 0 {
		config.Tools = p.convertTools(req.Tools)
	}
	return config
}

func (p *GoogleProvider) convertTools(tools []models.ToolSpec) []*genai.Tool {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, tool := range tools {
		props := map[string]*genai.Schema{}
		for name, prop := range tool.InputSchema {
			props[name] = &genai.Schema{Type: genaiType(prop.Type), Description: prop.Description}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   requiredProperties(tool.InputSchema),
			},
		})
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

func genaiType(t string) genai.Type {
	switch t {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeString
	}
}

func toolNameForResult(toolCallID string, messages []CompletionMessage) string {
	for _, msg := range messages {
		for _, tc := range msg.ToolCalls {
			if tc.ID == toolCallID {
				return tc.Name
			}
		}
	}
	return ""
}

func isRetryableGoogleErr(err error) bool {
	if err == nil {
		return false
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case 429, 500, 502, 503, 504:
			return true
		}
	}
	return false
}
