package advisors

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

// Repository owns access to the advisors table.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds an advisor repository over the shared connection.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

// Create inserts a new advisor.
func (r *Repository) Create(ctx context.Context, tx *gorm.DB, advisor *models.Advisor) error {
	if advisor == nil {
		return errors.New("advisor is required")
	}
	if err := r.conn(tx).WithContext(ctx).Create(advisor).Error; err != nil {
		return fmt.Errorf("creating advisor: %w", err)
	}
	return nil
}

// FindByID loads one advisor.
func (r *Repository) FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Advisor, error) {
	var advisor models.Advisor
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).First(&advisor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.New(apperrors.CodeNotFound, "advisor not found")
	}
	if err != nil {
		return nil, fmt.Errorf("loading advisor %s: %w", id, err)
	}
	return &advisor, nil
}

// List returns all advisors ordered by module number.
func (r *Repository) List(ctx context.Context, tx *gorm.DB) ([]models.Advisor, error) {
	var advisors []models.Advisor
	err := r.conn(tx).WithContext(ctx).Order("module_number ASC").Find(&advisors).Error
	if err != nil {
		return nil, fmt.Errorf("listing advisors: %w", err)
	}
	return advisors, nil
}

// FindAvailable returns advisors able to take a ticket, least loaded first.
func (r *Repository) FindAvailable(ctx context.Context, tx *gorm.DB) ([]models.Advisor, error) {
	var advisors []models.Advisor
	err := r.conn(tx).WithContext(ctx).
		Where("status = ?", enums.AdvisorAvailable).
		Order("assigned_tickets_count ASC").
		Order("module_number ASC").
		Find(&advisors).Error
	if err != nil {
		return nil, fmt.Errorf("listing available advisors: %w", err)
	}
	return advisors, nil
}

// UpdateStatus transitions an advisor to the given status.
func (r *Repository) UpdateStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status enums.AdvisorStatus) error {
	result := r.conn(tx).WithContext(ctx).
		Model(&models.Advisor{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("updating advisor %s status: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.CodeNotFound, "advisor not found")
	}
	return nil
}

// MarkBusy flips an advisor to BUSY and refreshes its heartbeat in one write.
func (r *Repository) MarkBusy(ctx context.Context, tx *gorm.DB, id uuid.UUID, now time.Time) error {
	result := r.conn(tx).WithContext(ctx).
		Model(&models.Advisor{}).
		Where("id = ? AND status = ?", id, enums.AdvisorAvailable).
		Updates(map[string]any{
			"status":       enums.AdvisorBusy,
			"last_seen_at": now,
		})
	if result.Error != nil {
		return fmt.Errorf("marking advisor %s busy: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.CodeStateConflict, "advisor not available")
	}
	return nil
}

// Release returns a BUSY advisor to AVAILABLE and counts the finished
// assignment.
func (r *Repository) Release(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	result := r.conn(tx).WithContext(ctx).
		Model(&models.Advisor{}).
		Where("id = ? AND status = ?", id, enums.AdvisorBusy).
		Updates(map[string]any{
			"status":                 enums.AdvisorAvailable,
			"assigned_tickets_count": gorm.Expr("assigned_tickets_count + 1"),
		})
	if result.Error != nil {
		return fmt.Errorf("releasing advisor %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.CodeStateConflict, "advisor is not busy")
	}
	return nil
}

// Heartbeat records advisor liveness. The recovery monitor treats a BUSY
// advisor with a stale heartbeat as dead.
func (r *Repository) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID, now time.Time) error {
	result := r.conn(tx).WithContext(ctx).
		Model(&models.Advisor{}).
		Where("id = ?", id).
		Update("last_seen_at", now)
	if result.Error != nil {
		return fmt.Errorf("recording heartbeat for advisor %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.New(apperrors.CodeNotFound, "advisor not found")
	}
	return nil
}
