package llm

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_client.go -package=mocks github.com/dshills/notecontext/internal/llm Client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var (
	ErrEmptyResponse = errors.New("model returned an empty response")
	ErrNoMessages    = errors.New("no messages to send")
)

// Message is one chat turn
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Client generates chat completions.
type Client interface {
	// ChatComplete returns the full reply.
	ChatComplete(ctx context.Context, messages []Message) (string, error)

	// StreamChat calls onChunk with each piece of the reply as it arrives and
	// returns the assembled reply. A non-nil error from onChunk aborts the stream.
	StreamChat(ctx context.Context, messages []Message, onChunk func(string) error) (string, error)

	// Model returns the chat model name
	Model() string
}

// Config configures the chat client
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
}

// OpenAIClient implements Client over an OpenAI-compatible server.
type OpenAIClient struct {
	model       llms.Model
	modelName   string
	temperature float64
	maxTokens   int
	logger      *slog.Logger
}

// New creates a chat client. Local servers that need no key get the
// placeholder token "none".
func New(cfg Config) (*OpenAIClient, error) {
	if cfg.Model == "" {
		return nil, errors.New("chat model is required")
	}
	token := cfg.APIKey
	if token == "" {
		token = "none"
	}

	opts := []openai.Option{
		openai.WithToken(token),
		openai.WithModel(cfg.Model),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}
	model, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat client: %w", err)
	}

	return &OpenAIClient{
		model:       model,
		modelName:   cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      slog.Default().With("component", "llm"),
	}, nil
}

func (c *OpenAIClient) Model() string {
	return c.modelName
}

func (c *OpenAIClient) ChatComplete(ctx context.Context, messages []Message) (string, error) {
	return c.generate(ctx, messages)
}

func (c *OpenAIClient) StreamChat(ctx context.Context, messages []Message, onChunk func(string) error) (string, error) {
	return c.generate(ctx, messages, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
		if len(chunk) == 0 || onChunk == nil {
			return nil
		}
		return onChunk(string(chunk))
	}))
}

func (c *OpenAIClient) generate(ctx context.Context, messages []Message, extra ...llms.CallOption) (string, error) {
	content, err := toMessageContent(messages)
	if err != nil {
		return "", err
	}

	opts := []llms.CallOption{llms.WithTemperature(c.temperature)}
	if c.maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(c.maxTokens))
	}
	opts = append(opts, extra...)

	resp, err := c.model.GenerateContent(ctx, content, opts...)
	if err != nil {
		c.logger.Error("failed to generate content", "model", c.modelName, "err", err)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	text := strings.TrimSpace(resp.Choices[0].Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func toMessageContent(messages []Message) ([]llms.MessageContent, error) {
	if len(messages) == 0 {
		return nil, ErrNoMessages
	}

	content := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		var role llms.ChatMessageType
		switch m.Role {
		case RoleSystem:
			role = llms.ChatMessageTypeSystem
		case RoleUser:
			role = llms.ChatMessageTypeHuman
		case RoleAssistant:
			role = llms.ChatMessageTypeAI
		default:
			return nil, fmt.Errorf("unknown message role %q", m.Role)
		}
		content = append(content, llms.MessageContent{
			Role:  role,
			Parts: []llms.ContentPart{llms.TextPart(m.Content)},
		})
	}
	return content, nil
}
