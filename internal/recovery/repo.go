package recovery

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

// Repository provides the persistence operations used by the recovery
// monitor. All methods require a caller-owned transaction so a reclaim
// commits or rolls back as a unit.
type Repository struct{}

// NewRepository builds a recovery repository.
func NewRepository() *Repository {
	return &Repository{}
}

// FindStaleBusyAdvisors returns advisors in BUSY whose heartbeat is older
// than the cutoff. Read-only; each candidate is re-verified under lock when
// its reclaim runs.
func (r *Repository) FindStaleBusyAdvisors(ctx context.Context, tx *gorm.DB, cutoff time.Time) ([]models.Advisor, error) {
	if tx == nil {
		return nil, errors.New("transaction is required")
	}
	var advisors []models.Advisor
	err := tx.WithContext(ctx).
		Where("status = ? AND last_seen_at < ?", enums.AdvisorBusy, cutoff).
		Order("last_seen_at ASC").
		Find(&advisors).Error
	if err != nil {
		return nil, fmt.Errorf("listing stale busy advisors: %w", err)
	}
	return advisors, nil
}

// FindAdvisorForUpdate loads an advisor row under FOR UPDATE.
func (r *Repository) FindAdvisorForUpdate(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Advisor, error) {
	if tx == nil {
		return nil, errors.New("transaction is required")
	}
	var advisor models.Advisor
	err := db.LockForUpdate(tx.WithContext(ctx)).
		Where("id = ?", id).
		First(&advisor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "advisor not found")
	}
	if err != nil {
		return nil, fmt.Errorf("loading advisor %s: %w", id, err)
	}
	return &advisor, nil
}

// FindLiveTicketForAdvisor returns the advisor's current non-terminal ticket
// under FOR UPDATE, or nil when the advisor holds nothing live.
func (r *Repository) FindLiveTicketForAdvisor(ctx context.Context, tx *gorm.DB, advisorID uuid.UUID) (*models.Ticket, error) {
	if tx == nil {
		return nil, errors.New("transaction is required")
	}
	var ticket models.Ticket
	err := db.LockForUpdate(tx.WithContext(ctx)).
		Where("advisor_id = ? AND status IN ?", advisorID, enums.ActiveTicketStatuses()).
		Order("updated_at DESC").
		First(&ticket).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading live ticket for advisor %s: %w", advisorID, err)
	}
	return &ticket, nil
}

// RequeueTicket puts a ticket back in WAITING with no advisor or module
// assignment.
func (r *Repository) RequeueTicket(ctx context.Context, tx *gorm.DB, ticketID uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction is required")
	}
	result := tx.WithContext(ctx).
		Model(&models.Ticket{}).
		Where("id = ? AND status IN ?", ticketID, enums.ActiveTicketStatuses()).
		Updates(map[string]any{
			"status":        enums.TicketWaiting,
			"advisor_id":    nil,
			"module_number": nil,
		})
	if result.Error != nil {
		return fmt.Errorf("requeueing ticket %s: %w", ticketID, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.CodeStateConflict, "ticket no longer requeueable")
	}
	return nil
}

// MarkAdvisorRecovered flips an advisor to AVAILABLE and bumps its lifetime
// assignment counter.
func (r *Repository) MarkAdvisorRecovered(ctx context.Context, tx *gorm.DB, advisorID uuid.UUID) error {
	if tx == nil {
		return errors.New("transaction is required")
	}
	result := tx.WithContext(ctx).
		Model(&models.Advisor{}).
		Where("id = ?", advisorID).
		Updates(map[string]any{
			"status":                 enums.AdvisorAvailable,
			"assigned_tickets_count": gorm.Expr("assigned_tickets_count + 1"),
		})
	if result.Error != nil {
		return fmt.Errorf("marking advisor %s recovered: %w", advisorID, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.CodeNotFound, "advisor not found")
	}
	return nil
}

// InsertRecoveryEvent appends one audit record. Recovery events are
// append-only; nothing in the system updates or deletes them.
func (r *Repository) InsertRecoveryEvent(ctx context.Context, tx *gorm.DB, event *models.RecoveryEvent) error {
	if tx == nil {
		return errors.New("transaction is required")
	}
	if event == nil {
		return errors.New("recovery event is required")
	}
	if err := tx.WithContext(ctx).Create(event).Error; err != nil {
		return fmt.Errorf("inserting recovery event: %w", err)
	}
	return nil
}

// ListRecentEvents returns the newest recovery events across all advisors.
func (r *Repository) ListRecentEvents(ctx context.Context, tx *gorm.DB, limit int) ([]models.RecoveryEvent, error) {
	if tx == nil {
		return nil, errors.New("transaction is required")
	}
	if limit <= 0 {
		limit = 50
	}
	var events []models.RecoveryEvent
	err := tx.WithContext(ctx).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("listing recovery events: %w", err)
	}
	return events, nil
}

// ListEventsForAdvisor returns the advisor's recovery history, newest first.
func (r *Repository) ListEventsForAdvisor(ctx context.Context, tx *gorm.DB, advisorID uuid.UUID, limit int) ([]models.RecoveryEvent, error) {
	if tx == nil {
		return nil, errors.New("transaction is required")
	}
	if limit <= 0 {
		limit = 50
	}
	var events []models.RecoveryEvent
	err := tx.WithContext(ctx).
		Where("advisor_id = ?", advisorID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("listing recovery events for advisor %s: %w", advisorID, err)
	}
	return events, nil
}
