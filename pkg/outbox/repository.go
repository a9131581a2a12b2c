package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hmardones/ticketero-backend/pkg/db"
	"github.com/hmardones/ticketero-backend/pkg/db/models"
	"github.com/hmardones/ticketero-backend/pkg/enums"
)

const maxStoredErrorLen = 1024

// Repository owns access to outbox_messages. Status transitions happen only
// through the publisher-facing Tx methods; rows are never deleted.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Insert appends a new message. A transaction is mandatory so the row commits
// atomically with the domain mutation it reports.
func (r *Repository) Insert(tx *gorm.DB, msg *models.OutboxMessage) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(msg).Error
}

// FetchDueForPublish selects up to limit PENDING rows whose retry window has
// opened, oldest first, taking an exclusive row lock so overlapping publisher
// cycles never double-process a row. Must run inside the publishing
// transaction; the lock is released at commit/rollback.
func (r *Repository) FetchDueForPublish(tx *gorm.DB, now time.Time, limit int) ([]models.OutboxMessage, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	var rows []models.OutboxMessage
	err := db.LockForUpdate(tx).
		Where("status = ?", enums.OutboxPending).
		Where("next_retry_at IS NULL OR next_retry_at <= ?", now).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// MarkSentTx finalizes a row after a confirmed transport acknowledgment.
func (r *Repository) MarkSentTx(tx *gorm.DB, id uuid.UUID, now time.Time) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Model(&models.OutboxMessage{}).
		Where("id = ? AND status = ?", id, enums.OutboxPending).
		Updates(map[string]any{
			"status":       enums.OutboxSent,
			"processed_at": now,
		}).Error
}

// ScheduleRetryTx records a failed attempt and the next eligible retry time,
// leaving the row PENDING.
func (r *Repository) ScheduleRetryTx(tx *gorm.DB, id uuid.UUID, retryCount int, nextRetryAt time.Time, sendErr error) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Model(&models.OutboxMessage{}).
		Where("id = ? AND status = ?", id, enums.OutboxPending).
		Updates(map[string]any{
			"retry_count":   retryCount,
			"next_retry_at": nextRetryAt,
			"last_error":    truncateError(sendErr),
		}).Error
}

// MarkFailedTx moves a row to the terminal FAILED state. Operator
// intervention is required afterwards; the publisher never picks it up again.
func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, retryCount int, now time.Time, sendErr error) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Model(&models.OutboxMessage{}).
		Where("id = ? AND status = ?", id, enums.OutboxPending).
		Updates(map[string]any{
			"status":       enums.OutboxFailed,
			"retry_count":  retryCount,
			"last_error":   truncateError(sendErr),
			"processed_at": now,
		}).Error
}

// ListByStatus returns the newest rows in the given delivery status.
func (r *Repository) ListByStatus(ctx context.Context, status enums.OutboxStatus, limit int) ([]models.OutboxMessage, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.OutboxMessage
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at DESC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// CountByAggregate reports how many rows exist for one aggregate and event
// type, regardless of delivery status.
func (r *Repository) CountByAggregate(ctx context.Context, eventType enums.OutboxEventType, aggregateID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.OutboxMessage{}).
		Where("event_type = ? AND aggregate_id = ?", eventType, aggregateID).
		Count(&count).Error
	return count, err
}

func truncateError(err error) *string {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if len(msg) > maxStoredErrorLen {
		msg = msg[:maxStoredErrorLen]
	}
	return &msg
}
