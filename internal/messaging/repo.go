package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hmardones/ticketero-backend/pkg/db/models"
	"github.com/hmardones/ticketero-backend/pkg/enums"
	apperrors "github.com/hmardones/ticketero-backend/pkg/errors"
)

// Repository owns access to notification records and the ticket joins the
// scheduler needs.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a messaging repository over the shared connection.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

func (r *Repository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// Insert appends one notification record.
func (r *Repository) Insert(ctx context.Context, tx *gorm.DB, msg *models.Message) error {
	if msg == nil {
		return errors.New("message is required")
	}
	if err := r.conn(tx).WithContext(ctx).Create(msg).Error; err != nil {
		return fmt.Errorf("inserting message: %w", err)
	}
	return nil
}

// ExistsByTicketAndTemplate reports whether the milestone was already
// recorded for this ticket, in any status.
func (r *Repository) ExistsByTicketAndTemplate(ctx context.Context, tx *gorm.DB, ticketID uuid.UUID, template enums.MessageTemplate) (bool, error) {
	var count int64
	err := r.conn(tx).WithContext(ctx).
		Model(&models.Message{}).
		Where("ticket_id = ? AND template = ?", ticketID, template).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking message existence: %w", err)
	}
	return count > 0, nil
}

// ListPendingDue returns PENDING records whose scheduled time has passed,
// oldest first.
func (r *Repository) ListPendingDue(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var messages []models.Message
	err := r.conn(tx).WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", enums.MessagePending, now).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("listing pending messages: %w", err)
	}
	return messages, nil
}

// MarkSent finalizes a record after the provider acknowledged delivery.
func (r *Repository) MarkSent(ctx context.Context, tx *gorm.DB, id uuid.UUID, now time.Time, providerMessageID string) error {
	result := r.conn(tx).WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ? AND status = ?", id, enums.MessagePending).
		Updates(map[string]any{
			"status":              enums.MessageSent,
			"sent_at":             now,
			"provider_message_id": providerMessageID,
			"attempts":            gorm.Expr("attempts + 1"),
		})
	if result.Error != nil {
		return fmt.Errorf("marking message %s sent: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.CodeStateConflict, "message is not pending")
	}
	return nil
}

// RecordFailure counts one failed attempt, flipping the record to FAILED
// when the attempt ceiling is reached.
func (r *Repository) RecordFailure(ctx context.Context, tx *gorm.DB, id uuid.UUID, maxAttempts int) error {
	var msg models.Message
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.New(apperrors.CodeNotFound, "message not found")
	}
	if err != nil {
		return fmt.Errorf("loading message %s: %w", id, err)
	}

	attempts := msg.Attempts + 1
	status := enums.MessagePending
	if attempts >= maxAttempts {
		status = enums.MessageFailed
	}
	err = r.conn(tx).WithContext(ctx).
		Model(&models.Message{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"attempts": attempts,
			"status":   status,
		}).Error
	if err != nil {
		return fmt.Errorf("recording failure for message %s: %w", id, err)
	}
	return nil
}

// FindTicket loads the ticket a record belongs to.
func (r *Repository) FindTicket(ctx context.Context, tx *gorm.DB, ticketID uuid.UUID) (*models.Ticket, error) {
	var ticket models.Ticket
	err := r.conn(tx).WithContext(ctx).Where("id = ?", ticketID).First(&ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "ticket not found")
	}
	if err != nil {
		return nil, fmt.Errorf("loading ticket %s: %w", ticketID, err)
	}
	return &ticket, nil
}

// FindAdvisorName resolves the advisor display name, empty when unassigned.
func (r *Repository) FindAdvisorName(ctx context.Context, tx *gorm.DB, advisorID uuid.UUID) (string, error) {
	var advisor models.Advisor
	err := r.conn(tx).WithContext(ctx).Where("id = ?", advisorID).First(&advisor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("loading advisor %s: %w", advisorID, err)
	}
	return advisor.Name, nil
}

// ListUpcomingTickets returns WAITING tickets close to the front that have a
// contact channel set.
func (r *Repository) ListUpcomingTickets(ctx context.Context, tx *gorm.DB, positionThreshold int) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := r.conn(tx).WithContext(ctx).
		Where("status = ? AND position_in_queue > 0 AND position_in_queue <= ? AND phone IS NOT NULL AND phone <> ''",
			enums.TicketWaiting, positionThreshold).
		Order("created_at ASC").
		Find(&tickets).Error
	if err != nil {
		return nil, fmt.Errorf("listing upcoming tickets: %w", err)
	}
	return tickets, nil
}
