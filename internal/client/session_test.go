package client

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ahmetk3436/duochat/internal/errs"
	"github.com/ahmetk3436/duochat/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI keeps conversations in memory and lets tests fail individual steps.
type fakeAPI struct {
	mu    sync.Mutex
	convs map[string]*models.ConversationDetail

	appendErr  func(msg models.Message) error
	chatReply  string
	chatErr    error
	chatGate   chan struct{}
	titleReply string
	titleErr   error

	chatCalls  int
	titleCalls int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		convs:      make(map[string]*models.ConversationDetail),
		chatReply:  "Hello!",
		titleReply: "Friendly Greeting",
	}
}

func (f *fakeAPI) CreateConversation(_ context.Context, title, model string, backend models.Backend) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now().UTC()
	conv := models.Conversation{ID: uuid.New(), Owner: "default-user", Title: title, Model: model, Backend: backend, CreatedAt: now, UpdatedAt: now}
	f.convs[conv.ID.String()] = &models.ConversationDetail{Conversation: conv, Messages: []models.Message{}}
	return &conv, nil
}

func (f *fakeAPI) detail(id string) (*models.ConversationDetail, error) {
	d, ok := f.convs[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *d
	cp.Messages = append([]models.Message(nil), d.Messages...)
	return &cp, nil
}

func (f *fakeAPI) GetConversation(_ context.Context, id string) (*models.ConversationDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.detail(id)
}

func (f *fakeAPI) AppendMessage(_ context.Context, id string, msg models.Message) (*models.ConversationDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		if err := f.appendErr(msg); err != nil {
			return nil, err
		}
	}
	d, ok := f.convs[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	msg.ID = uuid.New()
	msg.CreatedAt = time.Now().UTC()
	d.Messages = append(d.Messages, msg)
	d.Conversation.UpdatedAt = msg.CreatedAt
	return f.detail(id)
}

func (f *fakeAPI) RenameConversation(_ context.Context, id, title string) (*models.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.convs[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	d.Conversation.Title = title
	conv := d.Conversation
	return &conv, nil
}

func (f *fakeAPI) DeleteConversation(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.convs, id)
	return nil
}

func (f *fakeAPI) GenerateTitle(_ context.Context, id string, _ []models.ChatMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.titleCalls++
	if f.titleErr != nil {
		return "", f.titleErr
	}
	if d, ok := f.convs[id]; ok {
		d.Conversation.Title = f.titleReply
	}
	return f.titleReply, nil
}

func (f *fakeAPI) Chat(ctx context.Context, _ models.Backend, _ []models.ChatMessage, _ string) (string, error) {
	f.mu.Lock()
	f.chatCalls++
	gate, reply, err := f.chatGate, f.chatReply, f.chatErr
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return reply, err
}

func (f *fakeAPI) calls() (chat, title int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.chatCalls, f.titleCalls
}

func contents(msgs []ViewMessage) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Role) + ":" + m.Content
	}
	return out
}

func TestSubmitFirstMessage(t *testing.T) {
	api := newFakeAPI()
	var (
		mu       sync.Mutex
		reported string
	)
	s := NewSession(api, SessionOptions{
		Model:   "m1",
		Backend: models.BackendLocal,
		OnTitle: func(_, title string, err error) {
			mu.Lock()
			defer mu.Unlock()
			assert.NoError(t, err)
			reported = title
		},
	})
	assert.Equal(t, StateIdle, s.State())

	reply, err := s.Submit(context.Background(), "Hi")
	require.NoError(t, err)
	assert.Equal(t, "Hello!", reply.Content)
	assert.NotEqual(t, uuid.Nil, reply.ID)
	assert.Equal(t, StateConversationActive, s.State())

	msgs := s.Messages()
	assert.Equal(t, []string{"user:Hi", "assistant:Hello!"}, contents(msgs))
	for _, m := range msgs {
		assert.False(t, m.Pending())
	}
	assert.Equal(t, "m1", msgs[1].Model)
	assert.Equal(t, models.BackendLocal, msgs[1].Backend)

	s.WaitTitles()
	assert.Equal(t, "Friendly Greeting", s.Conversation().Title)
	mu.Lock()
	assert.Equal(t, "Friendly Greeting", reported)
	mu.Unlock()

	_, err = s.Submit(context.Background(), "Again")
	require.NoError(t, err)
	s.WaitTitles()
	_, titles := api.calls()
	assert.Equal(t, 1, titles)
}

func TestSubmitRejectsEmptyText(t *testing.T) {
	s := NewSession(newFakeAPI(), SessionOptions{Model: "m1"})
	_, err := s.Submit(context.Background(), "   ")
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
	assert.Nil(t, s.Conversation())
}

func TestSubmitUserSaveFailureRollsBackByTempID(t *testing.T) {
	api := newFakeAPI()
	s := NewSession(api, SessionOptions{Model: "m1"})

	_, err := s.Submit(context.Background(), "Hi")
	require.NoError(t, err)
	s.WaitTitles()

	saveFailure := errors.New("disk full")
	api.mu.Lock()
	api.appendErr = func(msg models.Message) error {
		if msg.Role == models.RoleUser {
			return saveFailure
		}
		return nil
	}
	api.mu.Unlock()

	// Same content as an already committed message: only the optimistic copy
	// may be removed.
	_, err = s.Submit(context.Background(), "Hi")
	assert.ErrorIs(t, err, saveFailure)
	assert.Equal(t, []string{"user:Hi", "assistant:Hello!"}, contents(s.Messages()))

	chat, _ := api.calls()
	assert.Equal(t, 1, chat, "completion must not run after a failed save")
	assert.Equal(t, StateConversationActive, s.State())
}

func TestSubmitFirstSaveFailureReturnsToIdle(t *testing.T) {
	api := newFakeAPI()
	saveFailure := errors.New("disk full")
	api.appendErr = func(models.Message) error { return saveFailure }
	s := NewSession(api, SessionOptions{Model: "m1"})

	_, err := s.Submit(context.Background(), "Hi")
	assert.ErrorIs(t, err, saveFailure)
	assert.Equal(t, StateIdle, s.State())
	assert.Nil(t, s.Conversation())
	assert.Empty(t, s.Messages())

	api.mu.Lock()
	assert.Empty(t, api.convs, "the empty conversation is removed")
	api.appendErr = nil
	api.mu.Unlock()

	_, err = s.Submit(context.Background(), "Hi")
	require.NoError(t, err)
	s.WaitTitles()
	assert.Equal(t, StateConversationActive, s.State())
	_, title := api.calls()
	assert.Equal(t, 1, title)
}

func TestSubmitCompletionFailureKeepsUserMessage(t *testing.T) {
	api := newFakeAPI()
	api.chatErr = &errs.BackendError{Backend: "server", Status: 500, Message: "local backend unreachable"}
	s := NewSession(api, SessionOptions{Model: "m1"})

	_, err := s.Submit(context.Background(), "Hi")
	require.Error(t, err)
	assert.True(t, errs.IsBackend(err))
	assert.Equal(t, []string{"user:Hi"}, contents(s.Messages()))
	assert.False(t, s.Messages()[0].Pending())
	s.WaitTitles()
}

func TestSubmitAssistantSaveFailureRollsBack(t *testing.T) {
	api := newFakeAPI()
	api.appendErr = func(msg models.Message) error {
		if msg.Role == models.RoleAssistant {
			return errs.Persistence("append message", errors.New("locked"))
		}
		return nil
	}
	s := NewSession(api, SessionOptions{Model: "m1"})

	_, err := s.Submit(context.Background(), "Hi")
	assert.ErrorIs(t, err, errs.ErrPersistence)
	assert.Equal(t, []string{"user:Hi"}, contents(s.Messages()))
	s.WaitTitles()
}

func TestSubmitWhileSendingIsBusy(t *testing.T) {
	api := newFakeAPI()
	api.chatGate = make(chan struct{})
	s := NewSession(api, SessionOptions{Model: "m1"})

	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background(), "first")
		done <- err
	}()

	require.Eventually(t, func() bool {
		chat, _ := api.calls()
		return chat == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, StateSending, s.State())

	_, err := s.Submit(context.Background(), "second")
	assert.ErrorIs(t, err, errs.ErrBusy)
	assert.ErrorIs(t, s.New(), errs.ErrBusy)
	assert.ErrorIs(t, s.Select(context.Background(), "whatever"), errs.ErrBusy)

	// The optimistic user message is committed; the reply is still pending.
	assert.Equal(t, []string{"user:first"}, contents(s.Messages()))

	close(api.chatGate)
	require.NoError(t, <-done)
	assert.Equal(t, []string{"user:first", "assistant:Hello!"}, contents(s.Messages()))
	s.WaitTitles()
}

func TestTitleFailureDoesNotSurface(t *testing.T) {
	api := newFakeAPI()
	api.titleErr = &errs.BackendError{Backend: "server", Status: 500, Message: "local backend unreachable"}

	titleErrs := make(chan error, 1)
	s := NewSession(api, SessionOptions{
		Model: "m1",
		OnTitle: func(_, _ string, err error) {
			titleErrs <- err
		},
	})

	_, err := s.Submit(context.Background(), "Hi")
	require.NoError(t, err)

	select {
	case err := <-titleErrs:
		assert.True(t, errs.IsBackend(err))
	case <-time.After(2 * time.Second):
		t.Fatal("title generation did not report")
	}
	assert.Equal(t, models.DefaultTitle, s.Conversation().Title)
}

func TestSelectRenameDelete(t *testing.T) {
	ctx := context.Background()
	api := newFakeAPI()
	conv, err := api.CreateConversation(ctx, "Existing", "m1", models.BackendLocal)
	require.NoError(t, err)
	_, err = api.AppendMessage(ctx, conv.ID.String(), models.Message{Role: models.RoleUser, Content: "earlier"})
	require.NoError(t, err)

	s := NewSession(api, SessionOptions{Model: "m1"})
	require.NoError(t, s.Select(ctx, conv.ID.String()))
	assert.Equal(t, StateConversationActive, s.State())
	assert.Equal(t, []string{"user:earlier"}, contents(s.Messages()))

	// Not the first message of this conversation, so no title generation.
	_, err = s.Submit(ctx, "later")
	require.NoError(t, err)
	s.WaitTitles()
	_, titles := api.calls()
	assert.Equal(t, 0, titles)

	require.NoError(t, s.Rename(ctx, "Renamed"))
	assert.Equal(t, "Renamed", s.Conversation().Title)

	require.NoError(t, s.Delete(ctx, conv.ID.String()))
	assert.Equal(t, StateIdle, s.State())
	assert.Nil(t, s.Conversation())
	assert.Empty(t, s.Messages())

	err = s.Select(ctx, conv.ID.String())
	assert.ErrorIs(t, err, errs.ErrNotFound)
	assert.Equal(t, StateIdle, s.State())
}

func TestRenameWithoutConversation(t *testing.T) {
	s := NewSession(newFakeAPI(), SessionOptions{})
	assert.ErrorIs(t, s.Rename(context.Background(), "x"), errs.ErrInvalidArgument)
}

func TestTempIDs(t *testing.T) {
	a, b := newTempID(), newTempID()
	assert.True(t, strings.HasPrefix(a, tempIDPrefix))
	assert.NotEqual(t, a, b)
}
