package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ahmetk3436/duochat/internal/errs"
	"github.com/ahmetk3436/duochat/internal/models"
	"github.com/go-resty/resty/v2"
)

// ErrUndecodable marks a backend that answered with a 2xx status but a body
// that could not be turned into content.
var ErrUndecodable = errors.New("undecodable backend response")

const maxErrorBody = 512

// LocalBackend talks to an Ollama-shaped inference server.
type LocalBackend struct {
	client *resty.Client
}

type localChatRequest struct {
	Model    string               `json:"model"`
	Messages []models.ChatMessage `json:"messages"`
	Stream   *bool                `json:"stream,omitempty"`
	Format   json.RawMessage      `json:"format,omitempty"`
}

// localChunk is one object of a /api/chat reply. Non-streamed replies are a
// single chunk; streamed replies are newline-delimited chunks whose
// message.content fragments concatenate.
type localChunk struct {
	Message *struct {
		Content string `json:"content"`
	} `json:"message"`
	Error string `json:"error"`
	Done  bool   `json:"done"`
}

func NewLocalBackend(baseURL string, timeout time.Duration) *LocalBackend {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &LocalBackend{client: client}
}

// Chat posts a chat request and returns the concatenated content.
func (b *LocalBackend) Chat(ctx context.Context, req localChatRequest) (string, error) {
	start := time.Now()
	content, err := b.chat(ctx, req)
	backendDuration.WithLabelValues(string(models.BackendLocal), "chat").Observe(time.Since(start).Seconds())
	return content, err
}

func (b *LocalBackend) chat(ctx context.Context, req localChatRequest) (string, error) {
	resp, err := b.client.R().
		SetContext(ctx).
		SetBody(req).
		SetDoNotParseResponse(true).
		Post("/api/chat")
	if err != nil {
		return "", &errs.BackendError{Backend: string(models.BackendLocal), Err: err}
	}
	body := resp.RawBody()
	defer body.Close()

	if resp.IsError() {
		raw, _ := io.ReadAll(io.LimitReader(body, maxErrorBody))
		return "", &errs.BackendError{
			Backend: string(models.BackendLocal),
			Status:  resp.StatusCode(),
			Message: upstreamMessage(raw),
		}
	}

	content, err := decodeLocalChunks(body)
	if err != nil {
		return "", &errs.BackendError{
			Backend: string(models.BackendLocal),
			Status:  resp.StatusCode(),
			Message: err.Error(),
			Err:     ErrUndecodable,
		}
	}
	return content, nil
}

func decodeLocalChunks(r io.Reader) (string, error) {
	dec := json.NewDecoder(r)
	var sb strings.Builder
	chunks, withMessage := 0, 0
	for {
		var chunk localChunk
		if err := dec.Decode(&chunk); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return "", fmt.Errorf("decode chunk %d: %w", chunks+1, err)
		}
		chunks++
		if chunk.Error != "" {
			return "", fmt.Errorf("chunk %d reported error: %s", chunks, chunk.Error)
		}
		if chunk.Message != nil {
			withMessage++
			sb.WriteString(chunk.Message.Content)
		}
	}
	if chunks == 0 {
		return "", errors.New("empty response body")
	}
	if withMessage == 0 {
		return "", errors.New("response carried no message")
	}
	return sb.String(), nil
}

// ListModels returns the backend-native tag list untouched.
func (b *LocalBackend) ListModels(ctx context.Context) (json.RawMessage, error) {
	start := time.Now()
	defer func() {
		backendDuration.WithLabelValues(string(models.BackendLocal), "tags").Observe(time.Since(start).Seconds())
	}()

	resp, err := b.client.R().SetContext(ctx).Get("/api/tags")
	if err != nil {
		return nil, &errs.BackendError{Backend: string(models.BackendLocal), Err: err}
	}
	if resp.IsError() {
		return nil, &errs.BackendError{
			Backend: string(models.BackendLocal),
			Status:  resp.StatusCode(),
			Message: upstreamMessage(resp.Body()),
		}
	}
	if !json.Valid(resp.Body()) {
		return nil, &errs.BackendError{
			Backend: string(models.BackendLocal),
			Status:  resp.StatusCode(),
			Message: "tag list is not valid JSON",
			Err:     ErrUndecodable,
		}
	}
	return json.RawMessage(resp.Body()), nil
}

// upstreamMessage extracts a readable message from an error body, accepting
// both {"error":"..."} and {"error":{"message":"..."}}.
func upstreamMessage(raw []byte) string {
	var flat struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &flat); err == nil && flat.Error != "" {
		return flat.Error
	}
	var nested struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &nested); err == nil && nested.Error.Message != "" {
		return nested.Error.Message
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	return msg
}
