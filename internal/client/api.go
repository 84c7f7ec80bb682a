// Package client talks to the duochat HTTP API and drives a conversation
// session on top of it.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ahmetk3436/duochat/internal/errs"
	"github.com/ahmetk3436/duochat/internal/models"
	"github.com/go-resty/resty/v2"
)

// APIClient is a thin typed wrapper over the HTTP surface. Error statuses are
// mapped back onto the errs taxonomy.
type APIClient struct {
	baseURL string
	token   string
	http    *resty.Client
}

type apiError struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// NewAPIClient targets baseURL, e.g. http://localhost:8097/api.
func NewAPIClient(baseURL, token string, timeout time.Duration) *APIClient {
	baseURL = strings.TrimRight(baseURL, "/")
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json").
		SetError(&apiError{})
	if token != "" {
		client.SetAuthToken(token)
	}
	return &APIClient{baseURL: baseURL, token: token, http: client}
}

func (c *APIClient) SetToken(token string) {
	c.token = token
	c.http.SetAuthToken(token)
}

func (c *APIClient) request(ctx context.Context) *resty.Request {
	return c.http.R().SetContext(ctx)
}

// check turns a transport failure or error status into an error. upstream
// marks endpoints whose 500s come from an inference backend.
func check(resp *resty.Response, err error, upstream bool) error {
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	if !resp.IsError() {
		return nil
	}

	msg := resp.Status()
	if e, ok := resp.Error().(*apiError); ok && e.Message != "" {
		msg = e.Message
	}

	switch status := resp.StatusCode(); {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", errs.ErrNotFound, msg)
	case status == http.StatusBadRequest:
		return errs.Invalid("%s", msg)
	case upstream && status >= http.StatusInternalServerError:
		return &errs.BackendError{Backend: "server", Status: status, Message: msg}
	case status >= http.StatusInternalServerError:
		return fmt.Errorf("%w: %s", errs.ErrPersistence, msg)
	default:
		return fmt.Errorf("server returned %d: %s", status, msg)
	}
}

// ─── Conversations ─────────────────────────────────────────────────────

func (c *APIClient) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	var out []models.Conversation
	resp, err := c.request(ctx).SetResult(&out).Get("/conversations")
	if err := check(resp, err, false); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *APIClient) SearchConversations(ctx context.Context, query string) ([]models.Conversation, error) {
	var out []models.Conversation
	resp, err := c.request(ctx).SetQueryParam("q", query).SetResult(&out).Get("/conversations")
	if err := check(resp, err, false); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *APIClient) CreateConversation(ctx context.Context, title, model string, backend models.Backend) (*models.Conversation, error) {
	var out models.Conversation
	resp, err := c.request(ctx).
		SetBody(map[string]string{"title": title, "model": model, "llm": string(backend)}).
		SetResult(&out).
		Post("/conversations")
	if err := check(resp, err, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) GetConversation(ctx context.Context, id string) (*models.ConversationDetail, error) {
	var out models.ConversationDetail
	resp, err := c.request(ctx).SetPathParam("id", id).SetResult(&out).Get("/conversations/{id}")
	if err := check(resp, err, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// AppendMessage saves msg and returns the authoritative transcript.
func (c *APIClient) AppendMessage(ctx context.Context, id string, msg models.Message) (*models.ConversationDetail, error) {
	body := map[string]any{"role": msg.Role, "content": msg.Content}
	if msg.Model != "" {
		body["model"] = msg.Model
	}
	if msg.Backend != "" {
		body["llm"] = msg.Backend
	}
	if len(msg.Metadata) > 0 {
		body["metadata"] = msg.Metadata
	}

	var out models.ConversationDetail
	resp, err := c.request(ctx).
		SetPathParam("id", id).
		SetBody(body).
		SetResult(&out).
		Post("/conversations/{id}/messages")
	if err := check(resp, err, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) RenameConversation(ctx context.Context, id, title string) (*models.Conversation, error) {
	var out models.Conversation
	resp, err := c.request(ctx).
		SetPathParam("id", id).
		SetBody(map[string]string{"title": title}).
		SetResult(&out).
		Patch("/conversations/{id}")
	if err := check(resp, err, false); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *APIClient) DeleteConversation(ctx context.Context, id string) error {
	resp, err := c.request(ctx).SetPathParam("id", id).Delete("/conversations/{id}")
	return check(resp, err, false)
}

// ─── Inference ─────────────────────────────────────────────────────────

func (c *APIClient) GenerateTitle(ctx context.Context, conversationID string, history []models.ChatMessage) (string, error) {
	var out struct {
		Title string `json:"title"`
	}
	resp, err := c.request(ctx).
		SetBody(map[string]any{"conversationId": conversationID, "messages": history}).
		SetResult(&out).
		Post("/generate-title")
	if err := check(resp, err, true); err != nil {
		return "", err
	}
	return out.Title, nil
}

// Chat asks the server to complete msgs on backend. An empty model lets the
// routed backend pick its default.
func (c *APIClient) Chat(ctx context.Context, backend models.Backend, msgs []models.ChatMessage, model string) (string, error) {
	var path string
	switch backend {
	case models.BackendLocal:
		path = "/chat-local"
	case models.BackendRouted:
		path = "/chat-routed"
	default:
		return "", errs.Invalid("unknown backend %q", backend)
	}

	body := map[string]any{"messages": msgs}
	if model != "" {
		body["model"] = model
	}
	var out struct {
		Content string `json:"content"`
	}
	resp, err := c.request(ctx).SetBody(body).SetResult(&out).Post(path)
	if err := check(resp, err, true); err != nil {
		return "", err
	}
	return out.Content, nil
}

func (c *APIClient) LocalModels(ctx context.Context) (json.RawMessage, error) {
	resp, err := c.request(ctx).Get("/local-models")
	if err := check(resp, err, true); err != nil {
		return nil, err
	}
	return json.RawMessage(resp.Body()), nil
}

func (c *APIClient) CheckKey(ctx context.Context, name string) (bool, error) {
	var out struct {
		HasKey bool `json:"hasKey"`
	}
	resp, err := c.request(ctx).SetQueryParam("key", name).SetResult(&out).Get("/check-key")
	if err := check(resp, err, false); err != nil {
		return false, err
	}
	return out.HasKey, nil
}

// ─── Auth ──────────────────────────────────────────────────────────────

func (c *APIClient) Login(ctx context.Context, username, password string) (*TokenPair, error) {
	var out TokenPair
	resp, err := c.request(ctx).
		SetBody(map[string]string{"username": username, "password": password}).
		SetResult(&out).
		Post("/auth/login")
	if err := check(resp, err, false); err != nil {
		return nil, err
	}
	c.SetToken(out.AccessToken)
	return &out, nil
}
