package tickets

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hmardones/ticketero-backend/pkg/db/models"
	"github.com/hmardones/ticketero-backend/pkg/enums"
	apperrors "github.com/hmardones/ticketero-backend/pkg/errors"
	"github.com/hmardones/ticketero-backend/pkg/logger"
	"github.com/hmardones/ticketero-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// advisorGateway is the slice of the advisor repository the ticket flow
// needs: claiming an advisor when a ticket is called and releasing it when
// attention ends.
type advisorGateway interface {
	FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Advisor, error)
	MarkBusy(ctx context.Context, tx *gorm.DB, id uuid.UUID, now time.Time) error
	Release(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

// messageScheduler records a chat notification intent inside the caller's
// transaction. Best effort; the notification scheduler picks these up later.
type messageScheduler interface {
	Schedule(ctx context.Context, tx *gorm.DB, ticketID uuid.UUID, template enums.MessageTemplate, at time.Time) error
}

// CreateTicketInput carries the fields needed to issue a ticket.
type CreateTicketInput struct {
	NationalID   string
	Phone        *string
	BranchOffice string
	QueueType    enums.QueueType
}

// ServiceParams configure the ticket service.
type ServiceParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Repository *Repository
	Advisors   advisorGateway
	Outbox     outboxEmitter
	Messages   messageScheduler
}

// Service implements the ticket lifecycle: issue, call, finish.
type Service struct {
	logg     *logger.Logger
	db       txRunner
	repo     *Repository
	advisors advisorGateway
	outbox   outboxEmitter
	messages messageScheduler
	now      func() time.Time
}

// NewService builds the ticket service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("ticket repository required")
	}
	if params.Advisors == nil {
		return nil, fmt.Errorf("advisor gateway required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	return &Service{
		logg:     params.Logger,
		db:       params.DB,
		repo:     params.Repository,
		advisors: params.Advisors,
		outbox:   params.Outbox,
		messages: params.Messages,
		now:      time.Now,
	}, nil
}

// Create issues a ticket at the back of its queue. A holder may occupy the
// queue once: a second ticket for the same national id while one is active
// is rejected.
func (s *Service) Create(ctx context.Context, input CreateTicketInput) (*models.Ticket, error) {
	if !input.QueueType.IsValid() {
		return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("invalid queue type %q", input.QueueType))
	}

	now := s.now().UTC()
	var ticket *models.Ticket
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		active, err := s.repo.HasActiveByNationalID(ctx, tx, input.NationalID)
		if err != nil {
			return err
		}
		if active {
			return apperrors.New(apperrors.CodeConflict, "holder already has an active ticket")
		}

		number, err := s.nextNumber(ctx, tx, input.QueueType, now)
		if err != nil {
			return err
		}
		waiting, err := s.repo.CountWaiting(ctx, tx, input.QueueType)
		if err != nil {
			return err
		}
		position := int(waiting) + 1

		ticket = &models.Ticket{
			ID:                   uuid.New(),
			Number:               number,
			NationalID:           input.NationalID,
			Phone:                input.Phone,
			BranchOffice:         input.BranchOffice,
			QueueType:            input.QueueType,
			Status:               enums.TicketWaiting,
			PositionInQueue:      position,
			EstimatedWaitMinutes: position * input.QueueType.AvgServiceMinutes(),
		}
		if err := s.repo.Create(ctx, tx, ticket); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTicketCreated,
			AggregateType: enums.AggregateTicket,
			AggregateID:   ticket.ID,
			RoutingKey:    outbox.RoutingKeyForQueue(ticket.QueueType),
			Data:          outbox.NewTicketQueueEvent(*ticket),
		}); err != nil {
			return err
		}
		return s.scheduleMessage(ctx, tx, ticket, enums.TemplateTicketCreated, now)
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithTicket(ctx, ticket.Number)
	s.logg.Info(logCtx, "ticket issued")
	return ticket, nil
}

// CallNext hands the oldest waiting ticket in the queue to an available
// advisor. Returns the nil ticket without error when the queue is empty.
func (s *Service) CallNext(ctx context.Context, queue enums.QueueType, advisorID uuid.UUID) (*models.Ticket, error) {
	if !queue.IsValid() {
		return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("invalid queue type %q", queue))
	}

	now := s.now().UTC()
	var called *models.Ticket
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		advisor, err := s.advisors.FindByID(ctx, tx, advisorID)
		if err != nil {
			return err
		}

		ticket, err := s.repo.NextWaiting(ctx, tx, queue)
		if err != nil {
			return err
		}
		if ticket == nil {
			return nil
		}

		if err := s.advisors.MarkBusy(ctx, tx, advisor.ID, now); err != nil {
			return err
		}
		if err := s.repo.Assign(ctx, tx, ticket.ID, advisor.ID, advisor.ModuleNumber); err != nil {
			return err
		}
		ticket.Status = enums.TicketAttending
		ticket.AdvisorID = &advisor.ID
		ticket.ModuleNumber = &advisor.ModuleNumber
		ticket.PositionInQueue = 0

		if err := s.refreshPlacements(ctx, tx, queue); err != nil {
			return err
		}

		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTicketCalled,
			AggregateType: enums.AggregateTicket,
			AggregateID:   ticket.ID,
			RoutingKey:    outbox.RoutingKeyForQueue(ticket.QueueType),
			Data:          outbox.NewTicketQueueEvent(*ticket),
		}); err != nil {
			return err
		}
		if err := s.scheduleMessage(ctx, tx, ticket, enums.TemplateYourTurn, now); err != nil {
			return err
		}
		called = ticket
		return nil
	})
	if err != nil {
		return nil, err
	}
	if called != nil {
		logCtx := s.logg.WithTicket(ctx, called.Number)
		s.logg.Info(logCtx, "ticket called")
	}
	return called, nil
}

// Finish closes an attending ticket with the given terminal status and frees
// its advisor.
func (s *Service) Finish(ctx context.Context, ticketID uuid.UUID, status enums.TicketStatus) error {
	if !status.IsTerminal() {
		return apperrors.New(apperrors.CodeValidation, fmt.Sprintf("status %q is not terminal", status))
	}

	var number string
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		ticket, err := s.repo.FindByID(ctx, tx, ticketID)
		if err != nil {
			return err
		}
		if err := s.repo.Finish(ctx, tx, ticket.ID, status); err != nil {
			return err
		}
		if ticket.AdvisorID != nil {
			if err := s.advisors.Release(ctx, tx, *ticket.AdvisorID); err != nil {
				return err
			}
		}
		number = ticket.Number

		if status != enums.TicketCompleted {
			return nil
		}
		finished := *ticket
		finished.Status = status
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTicketCompleted,
			AggregateType: enums.AggregateTicket,
			AggregateID:   ticket.ID,
			RoutingKey:    outbox.RoutingKeyForQueue(ticket.QueueType),
			Data:          outbox.NewTicketQueueEvent(finished),
		})
	})
	if err != nil {
		return err
	}
	logCtx := s.logg.WithTicket(ctx, number)
	s.logg.Info(logCtx, "ticket finished")
	return nil
}

// Get loads one ticket by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*models.Ticket, error) {
	var ticket *models.Ticket
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		found, err := s.repo.FindByID(ctx, tx, id)
		if err != nil {
			return err
		}
		ticket = found
		return nil
	})
	return ticket, err
}

// GetByNumber loads one ticket by its public number.
func (s *Service) GetByNumber(ctx context.Context, number string) (*models.Ticket, error) {
	var ticket *models.Ticket
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		found, err := s.repo.FindByNumber(ctx, tx, number)
		if err != nil {
			return err
		}
		ticket = found
		return nil
	})
	return ticket, err
}

// Board returns the waiting line for one queue, in service order.
func (s *Service) Board(ctx context.Context, queue enums.QueueType) ([]models.Ticket, error) {
	if !queue.IsValid() {
		return nil, apperrors.New(apperrors.CodeValidation, fmt.Sprintf("invalid queue type %q", queue))
	}
	var tickets []models.Ticket
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		found, err := s.repo.ListWaiting(ctx, tx, queue)
		if err != nil {
			return err
		}
		tickets = found
		return nil
	})
	return tickets, err
}

// nextNumber builds the public ticket number: queue prefix plus a zero-padded
// daily sequence, e.g. C01, G12.
func (s *Service) nextNumber(ctx context.Context, tx *gorm.DB, queue enums.QueueType, now time.Time) (string, error) {
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	issued, err := s.repo.CountCreatedSince(ctx, tx, queue, midnight)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%c%02d", queue.NumberPrefix(), issued+1), nil
}

// refreshPlacements rewrites position and wait estimate for every waiting
// ticket in the queue after the head was removed.
func (s *Service) refreshPlacements(ctx context.Context, tx *gorm.DB, queue enums.QueueType) error {
	waiting, err := s.repo.ListWaiting(ctx, tx, queue)
	if err != nil {
		return err
	}
	avg := queue.AvgServiceMinutes()
	for i, ticket := range waiting {
		position := i + 1
		if ticket.PositionInQueue == position {
			continue
		}
		if err := s.repo.UpdateQueuePlacement(ctx, tx, ticket.ID, position, position*avg); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) scheduleMessage(ctx context.Context, tx *gorm.DB, ticket *models.Ticket, template enums.MessageTemplate, at time.Time) error {
	if s.messages == nil || ticket.Phone == nil || *ticket.Phone == "" {
		return nil
	}
	return s.messages.Schedule(ctx, tx, ticket.ID, template, at)
}
