package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ahmetk3436/duochat/internal/errs"
	"github.com/ahmetk3436/duochat/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationStore is the sole authority for conversation identity,
// transcript ordering and cascading deletes. Each method is atomic on its own;
// nothing spans calls.
type ConversationStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewConversationStore(db *gorm.DB) *ConversationStore {
	return &ConversationStore{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// DB exposes the handle for health checks.
func (s *ConversationStore) DB() *gorm.DB {
	return s.db
}

func (s *ConversationStore) CreateConversation(ctx context.Context, owner, title, model string, backend models.Backend) (*models.Conversation, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, errs.Persistence("generate conversation id", err)
	}
	now := s.now()
	conv := &models.Conversation{
		ID:        id,
		Owner:     owner,
		Title:     title,
		TitleFold: models.Fold(title),
		Model:     model,
		Backend:   backend,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.db.WithContext(ctx).Create(conv).Error; err != nil {
		return nil, errs.Persistence("create conversation", err)
	}
	return conv, nil
}

// AppendMessage persists msg at the end of the transcript and refreshes the
// parent's updated_at in the same transaction. created_at is strictly
// increasing within a conversation even if the wall clock steps back.
func (s *ConversationStore) AppendMessage(ctx context.Context, conversationID string, msg *models.Message) (*models.Message, error) {
	if !msg.Role.Valid() {
		return nil, errs.Invalid("role %q is not one of user, assistant, system", msg.Role)
	}
	if msg.Backend != "" && !msg.Backend.Valid() {
		return nil, errs.Invalid("llm %q is not one of local, routed", msg.Backend)
	}
	convID, err := uuid.Parse(conversationID)
	if err != nil {
		return nil, errs.ErrNotFound
	}
	saved := &models.Message{
		ConversationID: convID,
		Role:           msg.Role,
		Content:        msg.Content,
		ContentFold:    models.Fold(msg.Content),
		Model:          msg.Model,
		Backend:        msg.Backend,
		Metadata:       msg.Metadata,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Postgres keeps microseconds, so compare at that precision.
		at := s.now().Truncate(time.Microsecond)

		// Touching the parent first locks its row, so appends to one
		// conversation see each other's timestamps.
		res := tx.Model(&models.Conversation{}).Where("id = ?", convID).UpdateColumn("updated_at", at)
		if res.Error != nil {
			return errs.Persistence("touch conversation", res.Error)
		}
		if res.RowsAffected == 0 {
			return errs.ErrNotFound
		}

		var last models.Message
		err := tx.Select("created_at").Where("conversation_id = ?", convID).
			Order("created_at DESC").Limit(1).Take(&last).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
		case err != nil:
			return errs.Persistence("load last message", err)
		case !at.After(last.CreatedAt):
			at = last.CreatedAt.Add(time.Microsecond)
			if err := tx.Model(&models.Conversation{}).Where("id = ?", convID).
				UpdateColumn("updated_at", at).Error; err != nil {
				return errs.Persistence("touch conversation", err)
			}
		}

		id, err := uuid.NewV7()
		if err != nil {
			return errs.Persistence("generate message id", err)
		}
		saved.ID = id
		saved.CreatedAt = at
		if err := tx.Create(saved).Error; err != nil {
			return errs.Persistence("insert message", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return saved, nil
}

func (s *ConversationStore) GetConversation(ctx context.Context, conversationID string) (*models.ConversationDetail, error) {
	conv, err := s.find(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0)
	if err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conv.ID).
		Order("created_at ASC").Order("id ASC").
		Find(&messages).Error; err != nil {
		return nil, errs.Persistence("load messages", err)
	}
	return &models.ConversationDetail{Conversation: *conv, Messages: messages}, nil
}

// ListConversations returns the owner's conversations, most recently active
// first, without messages.
func (s *ConversationStore) ListConversations(ctx context.Context, owner string) ([]models.Conversation, error) {
	convs := make([]models.Conversation, 0)
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", owner).
		Order("updated_at DESC").Order("id DESC").
		Find(&convs).Error; err != nil {
		return nil, errs.Persistence("list conversations", err)
	}
	return convs, nil
}

// RenameConversation overwrites the title unconditionally (last write wins).
// It does not count as activity, so updated_at is left alone.
func (s *ConversationStore) RenameConversation(ctx context.Context, conversationID, title string) (*models.Conversation, error) {
	conv, err := s.find(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	res := s.db.WithContext(ctx).Model(&models.Conversation{}).
		Where("id = ?", conv.ID).
		UpdateColumns(map[string]any{"title": title, "title_fold": models.Fold(title)})
	if res.Error != nil {
		return nil, errs.Persistence("rename conversation", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, errs.ErrNotFound
	}
	conv.Title = title
	conv.TitleFold = models.Fold(title)
	return conv, nil
}

// DeleteConversation removes the conversation and its messages. Deleting an
// unknown id succeeds.
func (s *ConversationStore) DeleteConversation(ctx context.Context, conversationID string) error {
	convID, err := uuid.Parse(conversationID)
	if err != nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", convID).Delete(&models.Message{}).Error; err != nil {
			return errs.Persistence("delete messages", err)
		}
		if err := tx.Where("id = ?", convID).Delete(&models.Conversation{}).Error; err != nil {
			return errs.Persistence("delete conversation", err)
		}
		return nil
	})
}

// SearchConversations matches query case-insensitively against titles and
// message content and returns each conversation once. Matching runs on the
// folded columns so it behaves the same on every driver.
func (s *ConversationStore) SearchConversations(ctx context.Context, owner, query string) ([]models.Conversation, error) {
	pattern := "%" + escapeLike(models.Fold(query)) + "%"

	matching := s.db.Model(&models.Message{}).
		Select("conversation_id").
		Where(`content_fold LIKE ? ESCAPE '\'`, pattern)

	convs := make([]models.Conversation, 0)
	if err := s.db.WithContext(ctx).
		Where("user_id = ?", owner).
		Where(s.db.Where(`title_fold LIKE ? ESCAPE '\'`, pattern).Or("id IN (?)", matching)).
		Order("updated_at DESC").Order("id DESC").
		Find(&convs).Error; err != nil {
		return nil, errs.Persistence("search conversations", err)
	}
	return convs, nil
}

// OwnerOf returns the owner of a conversation without loading its messages.
func (s *ConversationStore) OwnerOf(ctx context.Context, conversationID string) (string, error) {
	conv, err := s.find(ctx, conversationID)
	if err != nil {
		return "", err
	}
	return conv.Owner, nil
}

func (s *ConversationStore) find(ctx context.Context, conversationID string) (*models.Conversation, error) {
	convID, err := uuid.Parse(conversationID)
	if err != nil {
		return nil, errs.ErrNotFound
	}
	var conv models.Conversation
	if err := s.db.WithContext(ctx).First(&conv, "id = ?", convID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errs.ErrNotFound
		}
		return nil, errs.Persistence("load conversation", err)
	}
	return &conv, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
