package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ahmetk3436/duochat/internal/config"
	"github.com/ahmetk3436/duochat/internal/errs"
	"github.com/ahmetk3436/duochat/internal/handlers"
	"github.com/ahmetk3436/duochat/internal/models"
	"github.com/ahmetk3436/duochat/internal/routes"
	"github.com/ahmetk3436/duochat/internal/services"
	"github.com/ahmetk3436/duochat/internal/testutil"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newServer runs the full HTTP stack in-process against a fake Ollama that
// answers titles with "Friendly Greeting" and chats with "Hello!".
func newServer(t *testing.T) *APIClient {
	t.Helper()

	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			_, _ = w.Write([]byte(`{"models":[]}`))
			return
		}
		var req map[string]json.RawMessage
		_ = json.NewDecoder(r.Body).Decode(&req)
		content := "Hello!"
		if _, ok := req["format"]; ok {
			content = `{"title":"Friendly Greeting"}`
		}
		body, _ := json.Marshal(map[string]any{"message": map[string]string{"role": "assistant", "content": content}})
		_, _ = w.Write(body)
	}))
	t.Cleanup(ollama.Close)

	cfg := &config.Config{BodyLimitMB: 1, DefaultOwner: "default-user"}
	db := testutil.NewTestDB(t)
	store := services.NewConversationStore(db)
	hub := services.NewEventHub()
	local := services.NewLocalBackend(ollama.URL, 5*time.Second)
	routed := services.NewRoutedBackend(services.RoutedOptions{BaseURL: ollama.URL, Timeout: 5 * time.Second})
	proxy := services.NewChatProxy(local, routed)

	app := routes.NewApp(cfg, routes.Handlers{
		Auth:         handlers.NewAuthHandler(cfg),
		Conversation: handlers.NewConversationHandler(store, hub),
		Chat:         handlers.NewChatHandler(proxy),
		Title:        handlers.NewTitleHandler(store, services.NewTitleGenerator(local, "gemma3:4b", 5*time.Second), hub),
		Events:       handlers.NewEventsHandler(hub),
		System:       handlers.NewSystemHandler(db, proxy.RoutedKeyConfigured),
	})

	srv := httptest.NewServer(adaptor.FiberApp(app))
	t.Cleanup(srv.Close)
	return NewAPIClient(srv.URL+"/api", "", 5*time.Second)
}

func TestSessionAgainstServer(t *testing.T) {
	ctx := context.Background()
	api := newServer(t)
	s := NewSession(api, SessionOptions{Model: "m1", Backend: models.BackendLocal})

	reply, err := s.Submit(ctx, "Hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello!", reply.Content)
	s.WaitTitles()
	assert.Equal(t, "Friendly Greeting", s.Conversation().Title)

	id := s.Conversation().ID.String()
	detail, err := api.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Friendly Greeting", detail.Conversation.Title)
	require.Len(t, detail.Messages, 2)
	assert.Equal(t, models.RoleUser, detail.Messages[0].Role)
	assert.Equal(t, models.RoleAssistant, detail.Messages[1].Role)
	assert.Equal(t, "m1", detail.Messages[1].Model)

	list, err := api.ListConversations(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	found, err := api.SearchConversations(ctx, "greeting")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	require.NoError(t, s.Delete(ctx, id))
	_, err = api.GetConversation(ctx, id)
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.NoError(t, api.DeleteConversation(ctx, id))
}

func TestAPIClientErrorMapping(t *testing.T) {
	ctx := context.Background()
	api := newServer(t)

	_, err := api.Chat(ctx, models.BackendLocal, []models.ChatMessage{{Role: models.RoleUser, Content: "Hi"}}, "")
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = api.Chat(ctx, models.BackendRouted, []models.ChatMessage{{Role: models.RoleUser, Content: "Hi"}}, "")
	assert.True(t, errs.IsBackend(err), "got %v", err)

	conv, err := api.CreateConversation(ctx, models.DefaultTitle, "m1", models.BackendLocal)
	require.NoError(t, err)
	_, err = api.RenameConversation(ctx, conv.ID.String(), "  ")
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)

	_, err = api.AppendMessage(ctx, conv.ID.String(), models.Message{Role: "robot", Content: "x"})
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)

	has, err := api.CheckKey(ctx, "DUOCHAT_SURELY_UNSET_KEY")
	require.NoError(t, err)
	assert.False(t, has)

	raw, err := api.LocalModels(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"models":[]}`, string(raw))
}

func TestProfileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "profile.yaml")

	p, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, DefaultProfile(), p)

	p.Model = "gemma3:4b"
	p.Token = "abc"
	p.Timeout = 45 * time.Second
	require.NoError(t, SaveProfile(path, p))

	loaded, err := LoadProfile(path)
	require.NoError(t, err)
	assert.Equal(t, p, loaded)

	require.NoError(t, os.WriteFile(path, []byte("backend: cloud\n"), 0o600))
	_, err = LoadProfile(path)
	assert.Error(t, err)
}

func TestEventsURL(t *testing.T) {
	assert.Equal(t, "ws://localhost:8097/api/events", eventsURL("http://localhost:8097/api"))
	assert.Equal(t, "wss://chat.example.com/api/events", eventsURL("https://chat.example.com/api"))
}
