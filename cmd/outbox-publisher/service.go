package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/hmardones/ticketero-backend/pkg/config"
	"github.com/hmardones/ticketero-backend/pkg/db/models"
	"github.com/hmardones/ticketero-backend/pkg/logger"
	"github.com/hmardones/ticketero-backend/pkg/metrics"
	"github.com/hmardones/ticketero-backend/pkg/outbox"
)

const (
	defaultBatchSize      = 10
	defaultPollMs         = 5000
	defaultPublishTimeout = 15 * time.Second
	maxBackoff            = 60 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(routingKey string) *gcppubsub.Publisher
}

type registryResolver interface {
	Resolve(models.OutboxMessage) (any, error)
}

type publisherFactory func(routingKey string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       *outbox.Repository
	Registry         registryResolver
	PublisherFactory publisherFactory
	Metrics          *metrics.OutboxMetrics
}

// Service drains PENDING outbox rows: claim a batch under lock, publish each
// row, and settle every row's status inside the same transaction. Rows fail
// independently; a transport error on one never blocks its siblings.
type Service struct {
	cfg              *config.Config
	logg             *logger.Logger
	db               dbClient
	repo             *outbox.Repository
	pubsub           pubSubClient
	registry         registryResolver
	publisherFactory publisherFactory
	metrics          *metrics.OutboxMetrics
	batchSize        int
	maxRetries       int
	pollInterval     time.Duration
	publishTimeout   time.Duration
	now              func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.PubSub == nil && params.PublisherFactory == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Registry == nil {
		return nil, errors.New("event registry is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = func(routingKey string) publisher {
			pub := params.PubSub.Publisher(routingKey)
			if pub == nil {
				return nil
			}
			return newGCPPublisher(pub)
		}
	}

	batch := params.Config.Outbox.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Config.Outbox.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	maxRetries := params.Config.Outbox.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 5
	}
	publishTimeout := params.Config.PubSub.PublishTimeout
	if publishTimeout <= 0 {
		publishTimeout = defaultPublishTimeout
	}

	return &Service{
		cfg:              params.Config,
		logg:             params.Logger,
		db:               params.DB,
		repo:             params.Repository,
		pubsub:           params.PubSub,
		registry:         params.Registry,
		publisherFactory: factory,
		metrics:          params.Metrics,
		batchSize:        batch,
		maxRetries:       maxRetries,
		pollInterval:     time.Duration(pollMs) * time.Millisecond,
		publishTimeout:   publishTimeout,
		now:              time.Now,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if s.pubsub != nil {
		if err := pingDependency(ctx, s.logg, "pubsub", s.pubsub.Ping); err != nil {
			return err
		}
	}
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run polls until the context is canceled. Batch errors back off
// exponentially with jitter; an empty poll sleeps one interval.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	interval := s.pollInterval
	backoff := interval

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "outbox publisher context canceled")
			return ctx.Err()
		default:
		}

		processed, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox publisher batch error", err)
			backoff = nextBackoff(backoff, interval, maxBackoff)
			if err := s.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = interval

		if processed {
			continue
		}

		if err := s.sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

// processBatch runs one claim-publish-settle pass. Returns whether any rows
// were claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		now := s.now().UTC()
		rows, err := s.repo.FetchDueForPublish(tx, now, s.batchSize)
		if err != nil {
			return err
		}
		s.observeBatch(len(rows))
		if len(rows) == 0 {
			return nil
		}

		processed = true
		for _, msg := range rows {
			if err := s.processRow(ctx, tx, msg); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

func (s *Service) processRow(ctx context.Context, tx *gorm.DB, msg models.OutboxMessage) error {
	fields := s.messageFields(msg)

	if _, err := s.registry.Resolve(msg); err != nil {
		// Undecodable rows can never succeed; retrying them wastes cycles.
		ctxWithFields := s.logg.WithFields(ctx, fields)
		ctxWithFields = s.logg.WithField(ctxWithFields, "error", err.Error())
		s.logg.Warn(ctxWithFields, "outbox message is not publishable")
		s.incExhausted(msg)
		return s.repo.MarkFailedTx(tx, msg.ID, msg.RetryCount, s.now().UTC(), err)
	}

	if err := s.publishRow(ctx, msg); err != nil {
		return s.settleFailure(ctx, tx, msg, fields, err)
	}

	if err := s.repo.MarkSentTx(tx, msg.ID, s.now().UTC()); err != nil {
		return fmt.Errorf("mark sent %s: %w", msg.ID, err)
	}
	s.incPublished(msg)
	s.logg.Info(s.logg.WithFields(ctx, fields), "outbox message published")
	return nil
}

// settleFailure applies the retry policy: the retry count grows by one and
// the row either waits 2^n seconds for the next attempt or, once the per-row
// ceiling is reached, becomes FAILED for good.
func (s *Service) settleFailure(ctx context.Context, tx *gorm.DB, msg models.OutboxMessage, fields map[string]any, pubErr error) error {
	nextRetry := msg.RetryCount + 1
	fields["retry_count"] = nextRetry
	ctxWithFields := s.logg.WithFields(ctx, fields)
	ctxWithFields = s.logg.WithField(ctxWithFields, "error", pubErr.Error())

	maxRetries := msg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.maxRetries
	}

	if nextRetry >= maxRetries {
		s.logg.Error(ctxWithFields, "outbox message exhausted retries", pubErr)
		s.incExhausted(msg)
		return s.repo.MarkFailedTx(tx, msg.ID, nextRetry, s.now().UTC(), pubErr)
	}

	delay := time.Duration(1<<uint(nextRetry)) * time.Second
	nextRetryAt := s.now().UTC().Add(delay)
	s.logg.Warn(s.logg.WithField(ctxWithFields, "next_retry_at", nextRetryAt), "outbox publish failed")
	s.incRetried(msg)
	return s.repo.ScheduleRetryTx(tx, msg.ID, nextRetry, nextRetryAt, pubErr)
}

func (s *Service) publishRow(ctx context.Context, msg models.OutboxMessage) error {
	pub := s.publisherFactory(msg.RoutingKey)
	if pub == nil {
		return fmt.Errorf("publisher not configured for routing key %s", msg.RoutingKey)
	}

	publishCtx, cancel := context.WithTimeout(ctx, s.publishTimeout)
	defer cancel()

	start := time.Now()
	result := pub.Publish(publishCtx, &gcppubsub.Message{
		Data: msg.Payload,
		Attributes: map[string]string{
			"outbox_id":      msg.ID.String(),
			"event_type":     string(msg.EventType),
			"aggregate_type": string(msg.AggregateType),
			"aggregate_id":   msg.AggregateID.String(),
			"routing_key":    msg.RoutingKey,
			"created_at":     msg.CreatedAt.Format(time.RFC3339Nano),
		},
	})
	if result == nil {
		return fmt.Errorf("publisher returned nil for routing key %s", msg.RoutingKey)
	}
	_, err := result.Get(publishCtx)
	s.observePublish(msg, time.Since(start))
	return err
}

func (s *Service) messageFields(msg models.OutboxMessage) map[string]any {
	fields := map[string]any{
		"outbox_id":      msg.ID.String(),
		"event_type":     msg.EventType,
		"aggregate_type": msg.AggregateType,
		"aggregate_id":   msg.AggregateID.String(),
		"routing_key":    msg.RoutingKey,
		"retry_count":    msg.RetryCount,
	}
	if msg.LastError != nil {
		fields["last_error"] = *msg.LastError
	}
	return fields
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Service) observeBatch(n int) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObserveBatchSize(n)
}

func (s *Service) observePublish(msg models.OutboxMessage, d time.Duration) {
	if s.metrics == nil {
		return
	}
	s.metrics.ObservePublishDuration(string(msg.EventType), d)
}

func (s *Service) incPublished(msg models.OutboxMessage) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncPublished(string(msg.EventType))
}

func (s *Service) incRetried(msg models.OutboxMessage) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncRetried(string(msg.EventType))
}

func (s *Service) incExhausted(msg models.OutboxMessage) {
	if s.metrics == nil {
		return
	}
	s.metrics.IncExhausted(string(msg.EventType))
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	return d + jitter
}

func newGCPPublisher(p *gcppubsub.Publisher) publisher {
	if p == nil {
		return nil
	}
	return &gcpPublisher{Publisher: p}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	if p == nil || p.Publisher == nil {
		return nil
	}
	return &gcpPublishResult{PublishResult: p.Publisher.Publish(ctx, msg)}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r == nil || r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	return r.PublishResult.Get(ctx)
}
