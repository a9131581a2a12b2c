package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hmardones/ticketero-backend/pkg/db/models"
	"github.com/hmardones/ticketero-backend/pkg/enums"
	"github.com/hmardones/ticketero-backend/pkg/logger"
)

const defaultMaxRetries = 5

// DomainEvent is a fact to be delivered through the outbox. RoutingKey
// selects the destination topic; MaxRetries zero means the service default.
type DomainEvent struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	AggregateID   uuid.UUID
	RoutingKey    string
	MaxRetries    int
	Data          any
}

// Service appends outbox rows inside caller-owned transactions.
type Service struct {
	repo       *Repository
	logg       *logger.Logger
	maxRetries int
}

func NewService(repo *Repository, logg *logger.Logger, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Service{repo: repo, logg: logg, maxRetries: maxRetries}
}

// Emit writes the event row in tx so it commits or rolls back together with
// the domain mutation it reports.
func (s *Service) Emit(ctx context.Context, tx *gorm.DB, event DomainEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event.RoutingKey == "" {
		event.RoutingKey = DefaultRoutingKey
	}
	maxRetries := event.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.maxRetries
	}
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return err
	}
	row := models.OutboxMessage{
		ID:            uuid.New(),
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(payload),
		RoutingKey:    event.RoutingKey,
		Status:        enums.OutboxPending,
		MaxRetries:    maxRetries,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.Insert(tx, &row); err != nil {
		return err
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"event_type":     event.EventType,
			"aggregate_type": event.AggregateType,
			"aggregate_id":   event.AggregateID.String(),
			"routing_key":    event.RoutingKey,
		})
		s.logg.Info(logCtx, "outbox event queued")
	}
	return nil
}
