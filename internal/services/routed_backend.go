package services

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/ahmetk3436/duochat/internal/errs"
	"github.com/ahmetk3436/duochat/internal/models"
	"github.com/go-resty/resty/v2"
	"github.com/sashabaranov/go-openai"
)

// RoutedBackend talks to an OpenAI-compatible routing API such as OpenRouter.
type RoutedBackend struct {
	client       *resty.Client
	apiKey       string
	defaultModel string
}

type RoutedOptions struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
	Timeout      time.Duration
	Referer      string
	AppTitle     string
}

func NewRoutedBackend(opts RoutedOptions) *RoutedBackend {
	client := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(opts.Timeout).
		SetHeader("Content-Type", "application/json")
	if opts.Referer != "" {
		client.SetHeader("HTTP-Referer", opts.Referer)
	}
	if opts.AppTitle != "" {
		client.SetHeader("X-Title", opts.AppTitle)
	}
	return &RoutedBackend{
		client:       client,
		apiKey:       opts.APIKey,
		defaultModel: opts.DefaultModel,
	}
}

// HasKey reports whether a bearer secret is configured.
func (b *RoutedBackend) HasKey() bool {
	return b.apiKey != ""
}

// Chat sends msgs with model, or the configured default model when empty.
func (b *RoutedBackend) Chat(ctx context.Context, msgs []models.ChatMessage, model string) (string, error) {
	start := time.Now()
	content, err := b.chat(ctx, msgs, model)
	backendDuration.WithLabelValues(string(models.BackendRouted), "chat").Observe(time.Since(start).Seconds())
	return content, err
}

func (b *RoutedBackend) chat(ctx context.Context, msgs []models.ChatMessage, model string) (string, error) {
	if b.apiKey == "" {
		return "", &errs.BackendError{Backend: string(models.BackendRouted), Message: "API key is not configured"}
	}
	if model == "" {
		model = b.defaultModel
	}

	req := openai.ChatCompletionRequest{
		Model:    model,
		Messages: make([]openai.ChatCompletionMessage, len(msgs)),
	}
	for i, m := range msgs {
		req.Messages[i] = openai.ChatCompletionMessage{Role: string(m.Role), Content: m.Content}
	}

	resp, err := b.client.R().
		SetContext(ctx).
		SetAuthToken(b.apiKey).
		SetBody(req).
		Post("/chat/completions")
	if err != nil {
		return "", &errs.BackendError{Backend: string(models.BackendRouted), Err: err}
	}
	if resp.IsError() {
		return "", &errs.BackendError{
			Backend: string(models.BackendRouted),
			Status:  resp.StatusCode(),
			Message: upstreamMessage(resp.Body()),
		}
	}

	var completion openai.ChatCompletionResponse
	if err := json.Unmarshal(resp.Body(), &completion); err != nil {
		return "", &errs.BackendError{
			Backend: string(models.BackendRouted),
			Status:  resp.StatusCode(),
			Message: "decode completion: " + err.Error(),
			Err:     ErrUndecodable,
		}
	}
	if len(completion.Choices) == 0 {
		return "", &errs.BackendError{
			Backend: string(models.BackendRouted),
			Status:  resp.StatusCode(),
			Message: "completion carried no choices",
			Err:     ErrUndecodable,
		}
	}
	return completion.Choices[0].Message.Content, nil
}
