package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hmardones/ticketero-backend/pkg/db/models"
	"github.com/hmardones/ticketero-backend/pkg/enums"
	"github.com/hmardones/ticketero-backend/pkg/logger"
)

const (
	defaultPositionThreshold = 3
	defaultMaxSendAttempts   = 3
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams configure the notification scheduler.
type ServiceParams struct {
	Logger            *logger.Logger
	DB                txRunner
	Repository        *Repository
	Sender            Sender
	PositionThreshold int
	MaxSendAttempts   int
}

// Service implements the best-effort chat channel: milestone pushes for
// holders near the front, and fixed-interval retries of pending records.
// Deliveries here bypass the outbox on purpose; a lost chat message is
// acceptable, a lost queue event is not.
type Service struct {
	logg              *logger.Logger
	db                txRunner
	repo              *Repository
	sender            Sender
	positionThreshold int
	maxSendAttempts   int
	now               func() time.Time
}

// NewService builds the notification scheduler.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("messaging repository required")
	}
	if params.Sender == nil {
		return nil, fmt.Errorf("sender required")
	}
	threshold := params.PositionThreshold
	if threshold <= 0 {
		threshold = defaultPositionThreshold
	}
	maxAttempts := params.MaxSendAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxSendAttempts
	}
	return &Service{
		logg:              params.Logger,
		db:                params.DB,
		repo:              params.Repository,
		sender:            params.Sender,
		positionThreshold: threshold,
		maxSendAttempts:   maxAttempts,
		now:               time.Now,
	}, nil
}

// Schedule records a notification intent inside the caller's transaction.
// The retry cycle delivers it.
func (s *Service) Schedule(ctx context.Context, tx *gorm.DB, ticketID uuid.UUID, template enums.MessageTemplate, at time.Time) error {
	return s.repo.Insert(ctx, tx, &models.Message{
		ID:          uuid.New(),
		TicketID:    ticketID,
		Template:    template,
		Status:      enums.MessagePending,
		ScheduledAt: at,
	})
}

// RunUpcomingCycle pushes the upcoming-turn notice to every waiting holder
// within the position threshold that was not yet notified. A record is only
// written after the provider confirms delivery. Returns how many were sent.
func (s *Service) RunUpcomingCycle(ctx context.Context) (int, error) {
	var candidates []models.Ticket
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		found, err := s.repo.ListUpcomingTickets(ctx, tx, s.positionThreshold)
		if err != nil {
			return err
		}
		candidates = found
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scanning upcoming tickets: %w", err)
	}

	sent := 0
	for _, ticket := range candidates {
		ticketCtx := s.logg.WithTicket(ctx, ticket.Number)
		ok, err := s.notifyUpcoming(ticketCtx, ticket)
		if err != nil {
			s.logg.Warn(s.logg.WithField(ticketCtx, "error", err.Error()), "upcoming notification failed")
			continue
		}
		if ok {
			sent++
		}
	}
	return sent, nil
}

func (s *Service) notifyUpcoming(ctx context.Context, ticket models.Ticket) (bool, error) {
	var already bool
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		exists, err := s.repo.ExistsByTicketAndTemplate(ctx, tx, ticket.ID, enums.TemplateUpcomingTurn)
		if err != nil {
			return err
		}
		already = exists
		return nil
	})
	if err != nil {
		return false, err
	}
	if already {
		return false, nil
	}

	text, err := RenderTemplate(enums.TemplateUpcomingTurn, ticket, "")
	if err != nil {
		return false, err
	}
	providerID, err := s.sender.Send(ctx, *ticket.Phone, text)
	if err != nil {
		return false, err
	}

	now := s.now().UTC()
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.Insert(ctx, tx, &models.Message{
			ID:                uuid.New(),
			TicketID:          ticket.ID,
			Template:          enums.TemplateUpcomingTurn,
			Status:            enums.MessageSent,
			ScheduledAt:       now,
			SentAt:            &now,
			ProviderMessageID: &providerID,
			Attempts:          1,
		})
	})
	if err != nil {
		return false, fmt.Errorf("recording sent notification: %w", err)
	}
	return true, nil
}

// RunRetryCycle attempts delivery of every due PENDING record. Successes are
// marked SENT; failures count an attempt and become FAILED at the ceiling.
// Fixed interval, no backoff. Returns how many were delivered.
func (s *Service) RunRetryCycle(ctx context.Context) (int, error) {
	now := s.now().UTC()
	var pending []models.Message
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		found, err := s.repo.ListPendingDue(ctx, tx, now, 0)
		if err != nil {
			return err
		}
		pending = found
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scanning pending messages: %w", err)
	}

	delivered := 0
	for _, msg := range pending {
		if err := s.deliverPending(ctx, msg); err != nil {
			msgCtx := s.logg.WithField(ctx, "message_id", msg.ID.String())
			s.logg.Warn(s.logg.WithField(msgCtx, "error", err.Error()), "pending delivery failed")
			continue
		}
		delivered++
	}
	return delivered, nil
}

func (s *Service) deliverPending(ctx context.Context, msg models.Message) error {
	var (
		ticket      *models.Ticket
		advisorName string
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		loaded, err := s.repo.FindTicket(ctx, tx, msg.TicketID)
		if err != nil {
			return err
		}
		ticket = loaded
		if ticket.AdvisorID != nil {
			name, err := s.repo.FindAdvisorName(ctx, tx, *ticket.AdvisorID)
			if err != nil {
				return err
			}
			advisorName = name
		}
		return nil
	})
	if err != nil {
		return err
	}

	if ticket.Phone == nil || *ticket.Phone == "" {
		// No contact channel; the record can never be delivered.
		return s.db.WithTx(ctx, func(tx *gorm.DB) error {
			return s.repo.RecordFailure(ctx, tx, msg.ID, 1)
		})
	}

	text, err := RenderTemplate(msg.Template, *ticket, advisorName)
	if err != nil {
		return s.db.WithTx(ctx, func(tx *gorm.DB) error {
			return s.repo.RecordFailure(ctx, tx, msg.ID, 1)
		})
	}

	providerID, sendErr := s.sender.Send(ctx, *ticket.Phone, text)
	if sendErr != nil {
		if recErr := s.db.WithTx(ctx, func(tx *gorm.DB) error {
			return s.repo.RecordFailure(ctx, tx, msg.ID, s.maxSendAttempts)
		}); recErr != nil {
			return recErr
		}
		return sendErr
	}

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.MarkSent(ctx, tx, msg.ID, s.now().UTC(), providerID)
	})
}
