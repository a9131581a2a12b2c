package tickets

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hmardones/ticketero-backend/pkg/db"
	"github.com/hmardones/ticketero-backend/pkg/db/models"
	"github.com/hmardones/ticketero-backend/pkg/enums"
	apperrors "github.com/hmardones/ticketero-backend/pkg/errors"
)

// Repository owns access to the tickets table.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a ticket repository over the shared connection.
func NewRepository(conn *gorm.DB) *Repository {
	return &Repository{db: conn}
}

func (r *Repository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// Create inserts a new ticket.
func (r *Repository) Create(ctx context.Context, tx *gorm.DB, ticket *models.Ticket) error {
	if ticket == nil {
		return errors.New("ticket is required")
	}
	if err := r.conn(tx).WithContext(ctx).Create(ticket).Error; err != nil {
		return fmt.Errorf("creating ticket: %w", err)
	}
	return nil
}

// FindByID loads one ticket.
func (r *Repository) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Ticket, error) {
	var ticket models.Ticket
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).First(&ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "ticket not found")
	}
	if err != nil {
		return nil, fmt.Errorf("loading ticket %s: %w", id, err)
	}
	return &ticket, nil
}

// FindByNumber loads one ticket by its public number.
func (r *Repository) FindByNumber(ctx context.Context, tx *gorm.DB, number string) (*models.Ticket, error) {
	var ticket models.Ticket
	err := r.conn(tx).WithContext(ctx).Where("number = ?", number).First(&ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "ticket not found")
	}
	if err != nil {
		return nil, fmt.Errorf("loading ticket %q: %w", number, err)
	}
	return &ticket, nil
}

// HasActiveByNationalID reports whether the holder already occupies the queue.
func (r *Repository) HasActiveByNationalID(ctx context.Context, tx *gorm.DB, nationalID string) (bool, error) {
	var count int64
	err := r.conn(tx).WithContext(ctx).
		Model(&models.Ticket{}).
		Where("national_id = ? AND status IN ?", nationalID, enums.ActiveTicketStatuses()).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("checking active tickets for holder: %w", err)
	}
	return count > 0, nil
}

// CountCreatedSince counts tickets issued for a queue since the given time.
// Drives the daily sequence embedded in ticket numbers.
func (r *Repository) CountCreatedSince(ctx context.Context, tx *gorm.DB, queue enums.QueueType, since time.Time) (int64, error) {
	var count int64
	err := r.conn(tx).WithContext(ctx).
		Model(&models.Ticket{}).
		Where("queue_type = ? AND created_at >= ?", queue, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting tickets for queue %s: %w", queue, err)
	}
	return count, nil
}

// CountWaiting counts tickets currently waiting in a queue.
func (r *Repository) CountWaiting(ctx context.Context, tx *gorm.DB, queue enums.QueueType) (int64, error) {
	var count int64
	err := r.conn(tx).WithContext(ctx).
		Model(&models.Ticket{}).
		Where("queue_type = ? AND status = ?", queue, enums.TicketWaiting).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("counting waiting tickets for queue %s: %w", queue, err)
	}
	return count, nil
}

// NextWaiting claims the oldest waiting ticket in a queue under FOR UPDATE,
// or returns nil when the queue is empty.
func (r *Repository) NextWaiting(ctx context.Context, tx *gorm.DB, queue enums.QueueType) (*models.Ticket, error) {
	if tx == nil {
		return nil, errors.New("transaction is required")
	}
	var ticket models.Ticket
	err := db.LockForUpdate(tx.WithContext(ctx)).
		Where("queue_type = ? AND status = ?", queue, enums.TicketWaiting).
		Order("created_at ASC").
		First(&ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claiming next waiting ticket for queue %s: %w", queue, err)
	}
	return &ticket, nil
}

// Assign moves a waiting ticket to ATTENDING under the given advisor.
func (r *Repository) Assign(ctx context.Context, tx *gorm.DB, ticketID, advisorID uuid.UUID, moduleNumber int) error {
	result := r.conn(tx).WithContext(ctx).
		Model(&models.Ticket{}).
		Where("id = ? AND status = ?", ticketID, enums.TicketWaiting).
		Updates(map[string]any{
			"status":            enums.TicketAttending,
			"advisor_id":        advisorID,
			"module_number":     moduleNumber,
			"position_in_queue": 0,
		})
	if result.Error != nil {
		return fmt.Errorf("assigning ticket %s: %w", ticketID, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.CodeStateConflict, "ticket is not waiting")
	}
	return nil
}

// Finish moves an attending ticket into a terminal status.
func (r *Repository) Finish(ctx context.Context, tx *gorm.DB, ticketID uuid.UUID, status enums.TicketStatus) error {
	if !status.IsTerminal() {
		return fmt.Errorf("status %s is not terminal", status)
	}
	result := r.conn(tx).WithContext(ctx).
		Model(&models.Ticket{}).
		Where("id = ? AND status = ?", ticketID, enums.TicketAttending).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("finishing ticket %s: %w", ticketID, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.CodeStateConflict, "ticket is not being attended")
	}
	return nil
}

// ListWaiting returns a queue's waiting tickets in service order.
func (r *Repository) ListWaiting(ctx context.Context, tx *gorm.DB, queue enums.QueueType) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := r.conn(tx).WithContext(ctx).
		Where("queue_type = ? AND status = ?", queue, enums.TicketWaiting).
		Order("created_at ASC").
		Find(&tickets).Error
	if err != nil {
		return nil, fmt.Errorf("listing waiting tickets for queue %s: %w", queue, err)
	}
	return tickets, nil
}

// UpdateQueuePlacement rewrites a ticket's position and wait estimate.
func (r *Repository) UpdateQueuePlacement(ctx context.Context, tx *gorm.DB, ticketID uuid.UUID, position, estimatedWait int) error {
	err := r.conn(tx).WithContext(ctx).
		Model(&models.Ticket{}).
		Where("id = ?", ticketID).
		Updates(map[string]any{
			"position_in_queue":      position,
			"estimated_wait_minutes": estimatedWait,
		}).Error
	if err != nil {
		return fmt.Errorf("updating placement for ticket %s: %w", ticketID, err)
	}
	return nil
}
