package database

import (
	"testing"
	"time"

	"github.com/ahmetk3436/duochat/internal/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateBackfillsSearchColumns(t *testing.T) {
	db, err := OpenSQLite(":memory:", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = Close(db) })
	require.NoError(t, Migrate(db))

	now := time.Now().UTC()
	conv := models.Conversation{ID: uuid.New(), Owner: "u1", Title: "Émile", Model: "m1", Backend: models.BackendLocal, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, db.Create(&conv).Error)
	msg := models.Message{ID: uuid.New(), ConversationID: conv.ID, Role: models.RoleUser, Content: "Über", CreatedAt: now}
	require.NoError(t, db.Create(&msg).Error)

	require.NoError(t, Migrate(db))

	var gotConv models.Conversation
	require.NoError(t, db.First(&gotConv, "id = ?", conv.ID).Error)
	assert.Equal(t, "émile", gotConv.TitleFold)

	var gotMsg models.Message
	require.NoError(t, db.First(&gotMsg, "id = ?", msg.ID).Error)
	assert.Equal(t, "über", gotMsg.ContentFold)
}
