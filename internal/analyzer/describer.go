package analyzer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const (
	DefaultModel        = "gpt-4o"
	DefaultMaxTokens    = 500
	DefaultSystemPrompt = "You are a cool image analyst. Your goal is to describe what is in this image."
	DefaultUserPrompt   = "What is in the image?"
)

var ErrEmptyResponse = errors.New("no choices in description response")

// StatusError is returned for any non-200 response from the chat endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("Error: %d, %s", e.StatusCode, e.Body)
}

// DescriberConfig configures a Describer. Zero values take the package defaults.
type DescriberConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	SystemPrompt string
	UserPrompt   string
	MaxTokens    int64
	Timeout      time.Duration
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// Describer asks a vision-capable chat-completions endpoint what an image shows.
type Describer struct {
	client       openai.Client
	model        string
	systemPrompt string
	userPrompt   string
	maxTokens    int64
	logger       *slog.Logger
}

// NewDescriber initializes a Describer. The client never retries: every call to
// Describe sends exactly one request.
func NewDescriber(cfg DescriberConfig) *Describer {
	d := &Describer{
		model:        cfg.Model,
		systemPrompt: cfg.SystemPrompt,
		userPrompt:   cfg.UserPrompt,
		maxTokens:    cfg.MaxTokens,
		logger:       cfg.Logger,
	}
	if d.model == "" {
		d.model = DefaultModel
	}
	if d.systemPrompt == "" {
		d.systemPrompt = DefaultSystemPrompt
	}
	if d.userPrompt == "" {
		d.userPrompt = DefaultUserPrompt
	}
	if d.maxTokens <= 0 {
		d.maxTokens = DefaultMaxTokens
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithMiddleware(statusMiddleware),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	d.client = openai.NewClient(opts...)
	return d
}

// Model is the chat model requests are sent to.
func (d *Describer) Model() string {
	return d.model
}

// Describe sends imageURL with the configured prompts and returns the first
// choice's message content.
func (d *Describer) Describe(ctx context.Context, imageURL string) (string, error) {
	resp, err := d.client.Chat.Completions.New(ctx, d.params(imageURL))
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	content := resp.Choices[0].Message.Content
	d.logger.Debug("description received", "model", d.model, "chars", len(content))
	return content, nil
}

func (d *Describer) params(imageURL string) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model: openai.ChatModel(d.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage([]openai.ChatCompletionContentPartTextParam{
				{Text: d.systemPrompt},
			}),
			openai.UserMessage([]openai.ChatCompletionContentPartUnionParam{
				openai.TextContentPart(d.userPrompt),
				openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: imageURL,
				}),
			}),
		},
		MaxTokens: openai.Int(d.maxTokens),
	}
}

// statusMiddleware turns any non-200 response into a StatusError carrying the raw
// body, before the SDK tries to interpret it as an API error envelope.
func statusMiddleware(req *http.Request, next option.MiddlewareNext) (*http.Response, error) {
	res, err := next(req)
	if err != nil || res.StatusCode == http.StatusOK {
		return res, err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read error response (status %d): %w", res.StatusCode, err)
	}
	return nil, &StatusError{StatusCode: res.StatusCode, Body: string(body)}
}
