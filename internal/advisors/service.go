package advisors

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hmardones/ticketero-backend/pkg/db"
	"github.com/hmardones/ticketero-backend/pkg/db/models"
	"github.com/hmardones/ticketero-backend/pkg/enums"
	apperrors "github.com/hmardones/ticketero-backend/pkg/errors"
	"github.com/hmardones/ticketero-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateAdvisorInput carries the fields needed to register an advisor.
type CreateAdvisorInput struct {
	Name         string
	Email        string
	ModuleNumber int
}

// ServiceParams configure the advisor service.
type ServiceParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository *Repository
}

// Service manages advisor lifecycle and liveness.
type Service struct {
	logg *logger.Logger
	db   txRunner
	repo *Repository
	now  func() time.Time
}

// NewService builds the advisor service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("advisor repository required")
	}
	return &Service{
		logg: params.Logger,
		db:   params.DB,
		repo: params.Repository,
		now:  time.Now,
	}, nil
}

// Create registers a new advisor starting in AVAILABLE.
func (s *Service) Create(ctx context.Context, input CreateAdvisorInput) (*models.Advisor, error) {
	advisor := &models.Advisor{
		ID:           uuid.New(),
		Name:         input.Name,
		Email:        input.Email,
		Status:       enums.AdvisorAvailable,
		ModuleNumber: input.ModuleNumber,
		LastSeenAt:   s.now().UTC(),
	}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.Create(ctx, tx, advisor)
	})
	if err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, apperrors.New(apperrors.CodeConflict, "advisor email already registered")
		}
		return nil, err
	}
	logCtx := s.logg.WithAdvisor(ctx, advisor.ID.String())
	s.logg.Info(logCtx, "advisor registered")
	return advisor, nil
}

// Get loads one advisor by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Advisor, error) {
	var advisor *models.Advisor
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		found, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		advisor = found
		return nil
	})
	return advisor, err
}

// List returns every advisor.
func (s *Service) List(ctx context.Context) ([]models.Advisor, error) {
	var advisors []models.Advisor
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		found, err := s.repo.List(ctx, tx)
		if err != nil {
			return err
		}
		advisors = found
		return nil
	})
	return advisors, err
}

// SetStatus transitions an advisor to a validated status.
func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status enums.AdvisorStatus) error {
	if !status.IsValid() {
		return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("invalid advisor status %q", status))
	}
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.UpdateStatus(ctx, tx, id, status)
	})
}

// Heartbeat refreshes the advisor's liveness timestamp.
func (s *Service) Heartbeat(ctx context.Context, id uuid.UUID) error {
	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.Heartbeat(ctx, tx, id, s.now().UTC())
	})
}
