package recovery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/hmardones/ticketero-backend/pkg/db/models"
	"github.com/hmardones/ticketero-backend/pkg/enums"
	"github.com/hmardones/ticketero-backend/pkg/logger"
	"github.com/hmardones/ticketero-backend/pkg/outbox"
)

const defaultHeartbeatTimeout = 5 * time.Minute

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// ServiceParams configure the recovery monitor.
type ServiceParams struct {
	Logger           *logger.Logger
	DB               txRunner
	Repository       *Repository
	Outbox           outboxEmitter
	HeartbeatTimeout time.Duration
}

// Service detects advisors whose heartbeat went stale while BUSY and rewinds
// their state so the queue keeps moving.
type Service struct {
	logg             *logger.Logger
	db               txRunner
	repo             *Repository
	outbox           outboxEmitter
	heartbeatTimeout time.Duration
	now              func() time.Time
}

// NewService builds the recovery monitor.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("recovery repository required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	timeout := params.HeartbeatTimeout
	if timeout <= 0 {
		timeout = defaultHeartbeatTimeout
	}
	return &Service{
		logg:             params.Logger,
		db:               params.DB,
		repo:             params.Repository,
		outbox:           params.Outbox,
		heartbeatTimeout: timeout,
		now:              time.Now,
	}, nil
}

// RunCycle reclaims every dead worker found at call time. Each advisor is
// handled in its own transaction; one failed reclaim never blocks the rest.
// Returns how many advisors were recovered.
func (s *Service) RunCycle(ctx context.Context) (int, error) {
	cutoff := s.now().UTC().Add(-s.heartbeatTimeout)

	var candidates []models.Advisor
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		found, err := s.repo.FindStaleBusyAdvisors(ctx, tx, cutoff)
		if err != nil {
			return err
		}
		candidates = found
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scanning for dead workers: %w", err)
	}
	if len(candidates) == 0 {
		return 0, nil
	}

	logCtx := s.logg.WithField(ctx, "dead_workers", len(candidates))
	s.logg.Warn(logCtx, "stale busy advisors detected")

	var (
		recovered int
		errs      error
	)
	for _, advisor := range candidates {
		reason := fmt.Sprintf("heartbeat stale since %s (timeout %s)",
			advisor.LastSeenAt.UTC().Format(time.RFC3339), s.heartbeatTimeout)
		if err := s.reclaim(ctx, advisor.ID, enums.RecoveryDeadWorker, reason); err != nil {
			advCtx := s.logg.WithAdvisor(ctx, advisor.ID.String())
			s.logg.Error(advCtx, "dead worker reclaim failed", err)
			errs = multierr.Append(errs, fmt.Errorf("advisor %s: %w", advisor.ID, err))
			continue
		}
		recovered++
	}
	return recovered, errs
}

// RecoverOne runs the reclaim logic for a single advisor on demand. Returns
// a not-found error when the advisor does not exist. Safe to call repeatedly;
// an advisor with nothing to reclaim still flips to AVAILABLE and gets an
// audit event.
func (s *Service) RecoverOne(ctx context.Context, advisorID uuid.UUID, reason string) error {
	if reason == "" {
		reason = "manual recovery requested"
	}
	return s.reclaim(ctx, advisorID, enums.RecoveryManual, reason)
}

// ListEvents returns the recovery audit trail, newest first, optionally
// scoped to one advisor.
func (s *Service) ListEvents(ctx context.Context, advisorID *uuid.UUID, limit int) ([]models.RecoveryEvent, error) {
	var events []models.RecoveryEvent
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var (
			found []models.RecoveryEvent
			err   error
		)
		if advisorID != nil {
			found, err = s.repo.ListEventsForAdvisor(ctx, tx, *advisorID, limit)
		} else {
			found, err = s.repo.ListRecentEvents(ctx, tx, limit)
		}
		if err != nil {
			return err
		}
		events = found
		return nil
	})
	return events, err
}

func (s *Service) reclaim(ctx context.Context, advisorID uuid.UUID, recoveryType enums.RecoveryType, reason string) error {
	var requeued *models.Ticket

	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		advisor, err := s.repo.FindAdvisorForUpdate(ctx, tx, advisorID)
		if err != nil {
			return err
		}

		event := &models.RecoveryEvent{
			ID:               uuid.New(),
			RecoveryType:     recoveryType,
			AdvisorID:        advisor.ID,
			OldAdvisorStatus: string(advisor.Status),
			NewAdvisorStatus: string(enums.AdvisorAvailable),
			Reason:           reason,
		}

		ticket, err := s.repo.FindLiveTicketForAdvisor(ctx, tx, advisor.ID)
		if err != nil {
			return err
		}
		if ticket != nil {
			oldStatus := string(ticket.Status)
			newStatus := string(enums.TicketWaiting)
			if err := s.repo.RequeueTicket(ctx, tx, ticket.ID); err != nil {
				return err
			}
			event.TicketID = &ticket.ID
			event.OldTicketStatus = &oldStatus
			event.NewTicketStatus = &newStatus

			rewound := *ticket
			rewound.Status = enums.TicketWaiting
			rewound.AdvisorID = nil
			rewound.ModuleNumber = nil
			requeued = &rewound
		}

		if err := s.repo.MarkAdvisorRecovered(ctx, tx, advisor.ID); err != nil {
			return err
		}
		return s.repo.InsertRecoveryEvent(ctx, tx, event)
	})
	if err != nil {
		return err
	}

	// The rewind is already committed. A failure to queue the requeue
	// announcement degrades to a missing notification, never to a lost
	// recovery.
	if requeued != nil {
		s.emitRequeue(ctx, *requeued, reason)
	}
	return nil
}

func (s *Service) emitRequeue(ctx context.Context, ticket models.Ticket, reason string) {
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventTicketRequeued,
			AggregateType: enums.AggregateTicket,
			AggregateID:   ticket.ID,
			RoutingKey:    outbox.RoutingKeyForQueue(ticket.QueueType),
			Data:          outbox.NewTicketRequeueEvent(ticket, reason),
		})
	})
	if err != nil {
		logCtx := s.logg.WithTicket(ctx, ticket.ID.String())
		s.logg.Error(logCtx, "failed to queue requeue event", err)
	}
}
