package conversation

import (
	"context"
	"fmt"
	"time"

	"llm-chatbot/internal/logger"
	"llm-chatbot/internal/telemetry"
	"llm-chatbot/models"

	"gorm.io/gorm"
)

const archiveWriteTimeout = 3 * time.Second

// Archive copies conversation entries into the conversation_entries table.
// Write failures are logged and never reach the caller.
type Archive struct {
	db      *gorm.DB
	metrics *telemetry.Metrics
}

// NewArchive migrates the table and returns an archive backed by db.
func NewArchive(db *gorm.DB, metrics *telemetry.Metrics) (*Archive, error) {
	if err := db.AutoMigrate(&models.ConversationEntry{}); err != nil {
		return nil, fmt.Errorf("failed to migrate conversation_entries: %w", err)
	}
	return &Archive{db: db, metrics: metrics}, nil
}

func (a *Archive) Record(sessionID string, e models.Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), archiveWriteTimeout)
	defer cancel()

	row := models.ConversationEntry{
		SessionID: sessionID,
		Role:      e.Role,
		Content:   e.Content,
		CreatedAt: e.Timestamp,
	}
	if err := a.db.WithContext(ctx).Create(&row).Error; err != nil {
		logger.Error("Failed to archive conversation entry", "session_id", sessionID, "role", e.Role, "error", err)
		return
	}
	a.metrics.RecordConversationEntry(e.Role)
}

// History reads the latest limit archived entries of a session, oldest first.
// A non-positive limit reads them all.
func (a *Archive) History(ctx context.Context, sessionID string, limit int) ([]models.Entry, error) {
	var rows []models.ConversationEntry
	q := a.db.WithContext(ctx).Where("session_id = ?", sessionID).Order("created_at DESC, id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]models.Entry, 0, len(rows))
	for i := len(rows) - 1; i >= 0; i-- {
		r := rows[i]
		out = append(out, models.Entry{Role: r.Role, Content: r.Content, Timestamp: r.CreatedAt})
	}
	return out, nil
}
