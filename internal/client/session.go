package client

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ahmetk3436/duochat/internal/errs"
	"github.com/ahmetk3436/duochat/internal/models"
	"github.com/oklog/ulid/v2"
)

// API is the part of the server a Session drives. *APIClient implements it.
type API interface {
	CreateConversation(ctx context.Context, title, model string, backend models.Backend) (*models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.ConversationDetail, error)
	AppendMessage(ctx context.Context, id string, msg models.Message) (*models.ConversationDetail, error)
	RenameConversation(ctx context.Context, id, title string) (*models.Conversation, error)
	DeleteConversation(ctx context.Context, id string) error
	GenerateTitle(ctx context.Context, conversationID string, history []models.ChatMessage) (string, error)
	Chat(ctx context.Context, backend models.Backend, msgs []models.ChatMessage, model string) (string, error)
}

type State int

const (
	StateIdle State = iota
	StateConversationActive
	StateSending
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConversationActive:
		return "active"
	case StateSending:
		return "sending"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

const tempIDPrefix = "tmp-"

// ViewMessage is a message as the session shows it. Optimistic messages carry
// a TempID until the server's transcript replaces them.
type ViewMessage struct {
	models.Message
	TempID string
}

func (m ViewMessage) Pending() bool {
	return m.TempID != ""
}

type SessionOptions struct {
	Model        string
	Backend      models.Backend
	TitleTimeout time.Duration

	// OnTitle is called from a background goroutine once title generation
	// for a new conversation finishes, successfully or not.
	OnTitle func(conversationID, title string, err error)
}

// Session holds the view of one active conversation and sequences sends
// against the server. Only one send may be in flight.
type Session struct {
	api  API
	opts SessionOptions

	mu       sync.Mutex
	state    State
	conv     *models.Conversation
	messages []ViewMessage

	titles sync.WaitGroup
}

func NewSession(api API, opts SessionOptions) *Session {
	if opts.Backend == "" {
		opts.Backend = models.BackendLocal
	}
	if opts.TitleTimeout <= 0 {
		opts.TitleTimeout = 30 * time.Second
	}
	return &Session{api: api, opts: opts}
}

func newTempID() string {
	return tempIDPrefix + ulid.Make().String()
}

// Submit sends text as a user message and waits for the assistant's reply.
// The first message of a conversation also starts title generation in the
// background.
func (s *Session) Submit(ctx context.Context, text string) (*models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errs.Invalid("message must not be empty")
	}

	s.mu.Lock()
	if s.state == StateSending {
		s.mu.Unlock()
		return nil, errs.ErrBusy
	}
	s.state = StateSending
	conv := s.conv
	first := conv == nil || len(s.messages) == 0
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.conv != nil {
			s.state = StateConversationActive
		} else {
			s.state = StateIdle
		}
		s.mu.Unlock()
	}()

	created := conv == nil
	if created {
		var err error
		conv, err = s.api.CreateConversation(ctx, models.DefaultTitle, s.opts.Model, s.opts.Backend)
		if err != nil {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
		s.mu.Lock()
		s.conv = conv
		s.messages = nil
		s.mu.Unlock()
	}
	convID := conv.ID.String()

	userMsg := models.Message{Role: models.RoleUser, Content: text}
	userTemp := s.pushOptimistic(userMsg)
	detail, err := s.api.AppendMessage(ctx, convID, userMsg)
	if err != nil {
		s.removeTemp(userTemp)
		if created {
			s.abandon(ctx, convID)
		}
		return nil, fmt.Errorf("save user message: %w", err)
	}
	s.adopt(convID, detail)

	history := models.ChatMessages(detail.Messages)
	if first {
		s.generateTitle(ctx, convID, history)
	}

	content, err := s.api.Chat(ctx, s.opts.Backend, history, s.opts.Model)
	if err != nil {
		return nil, fmt.Errorf("completion: %w", err)
	}

	reply := models.Message{
		Role:    models.RoleAssistant,
		Content: content,
		Model:   s.opts.Model,
		Backend: s.opts.Backend,
	}
	replyTemp := s.pushOptimistic(reply)
	detail, err = s.api.AppendMessage(ctx, convID, reply)
	if err != nil {
		s.removeTemp(replyTemp)
		return nil, fmt.Errorf("save assistant message: %w", err)
	}
	s.adopt(convID, detail)

	if n := len(detail.Messages); n > 0 && detail.Messages[n-1].Role == models.RoleAssistant {
		saved := detail.Messages[n-1]
		return &saved, nil
	}
	return &reply, nil
}

// abandon drops a conversation created by a send whose first message never
// reached the store, returning the session to Idle.
func (s *Session) abandon(ctx context.Context, convID string) {
	s.mu.Lock()
	if s.conv != nil && s.conv.ID.String() == convID {
		s.conv = nil
		s.messages = nil
	}
	s.mu.Unlock()

	if err := s.api.DeleteConversation(ctx, convID); err != nil {
		slog.Debug("Could not remove empty conversation", "conversation_id", convID, "error", err)
	}
}

func (s *Session) pushOptimistic(msg models.Message) string {
	id := newTempID()
	s.mu.Lock()
	s.messages = append(s.messages, ViewMessage{Message: msg, TempID: id})
	s.mu.Unlock()
	return id
}

// removeTemp drops exactly the optimistic message with tempID, never a
// message that merely has the same content.
func (s *Session) removeTemp(tempID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.messages {
		if m.TempID == tempID {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return
		}
	}
}

// adopt replaces the view with the server's transcript. The title is left to
// Rename and title generation so a slower transcript cannot revert it.
func (s *Session) adopt(convID string, detail *models.ConversationDetail) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv == nil || s.conv.ID.String() != convID {
		return
	}
	s.conv.UpdatedAt = detail.Conversation.UpdatedAt
	msgs := make([]ViewMessage, len(detail.Messages))
	for i, m := range detail.Messages {
		msgs[i] = ViewMessage{Message: m}
	}
	s.messages = msgs
}

// generateTitle runs detached from the send. Failures are logged and handed to
// OnTitle; they never reach the caller of Submit.
func (s *Session) generateTitle(ctx context.Context, convID string, history []models.ChatMessage) {
	s.titles.Add(1)
	go func() {
		defer s.titles.Done()

		titleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.TitleTimeout)
		defer cancel()

		title, err := s.api.GenerateTitle(titleCtx, convID, history)
		if err != nil {
			slog.Warn("Title generation failed, keeping placeholder", "conversation_id", convID, "error", err)
		} else {
			s.mu.Lock()
			if s.conv != nil && s.conv.ID.String() == convID {
				s.conv.Title = title
			}
			s.mu.Unlock()
		}

		if s.opts.OnTitle != nil {
			s.opts.OnTitle(convID, title, err)
		}
	}()
}

// WaitTitles blocks until background title generations have finished.
func (s *Session) WaitTitles() {
	s.titles.Wait()
}

// ─── Navigation ────────────────────────────────────────────────────────

// Select loads an existing conversation into the view.
func (s *Session) Select(ctx context.Context, id string) error {
	if err := s.ensureNotSending(); err != nil {
		return err
	}
	detail, err := s.api.GetConversation(ctx, id)
	if err != nil {
		return err
	}

	msgs := make([]ViewMessage, len(detail.Messages))
	for i, m := range detail.Messages {
		msgs[i] = ViewMessage{Message: m}
	}
	conv := detail.Conversation

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSending {
		return errs.ErrBusy
	}
	s.conv = &conv
	s.messages = msgs
	s.state = StateConversationActive
	return nil
}

// New drops the current conversation; the next Submit creates one.
func (s *Session) New() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSending {
		return errs.ErrBusy
	}
	s.conv = nil
	s.messages = nil
	s.state = StateIdle
	return nil
}

func (s *Session) Rename(ctx context.Context, title string) error {
	s.mu.Lock()
	conv := s.conv
	s.mu.Unlock()
	if conv == nil {
		return errs.Invalid("no conversation selected")
	}

	renamed, err := s.api.RenameConversation(ctx, conv.ID.String(), title)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.conv != nil && s.conv.ID == renamed.ID {
		s.conv.Title = renamed.Title
	}
	s.mu.Unlock()
	return nil
}

// Delete removes conversation id and resets the view when it is the current one.
func (s *Session) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	current := s.conv != nil && s.conv.ID.String() == id
	busy := current && s.state == StateSending
	s.mu.Unlock()
	if busy {
		return errs.ErrBusy
	}

	if err := s.api.DeleteConversation(ctx, id); err != nil {
		return err
	}
	if current {
		return s.New()
	}
	return nil
}

func (s *Session) ensureNotSending() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSending {
		return errs.ErrBusy
	}
	return nil
}

// ─── View ──────────────────────────────────────────────────────────────

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Conversation returns a copy of the current conversation, or nil.
func (s *Session) Conversation() *models.Conversation {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv == nil {
		return nil
	}
	conv := *s.conv
	return &conv
}

func (s *Session) Messages() []ViewMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ViewMessage, len(s.messages))
	copy(out, s.messages)
	return out
}
