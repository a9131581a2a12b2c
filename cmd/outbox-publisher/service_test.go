package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/hmardones/ticketero-backend/pkg/config"
	"github.com/hmardones/ticketero-backend/pkg/db/models"
	"github.com/hmardones/ticketero-backend/pkg/enums"
	"github.com/hmardones/ticketero-backend/pkg/logger"
	"github.com/hmardones/ticketero-backend/pkg/outbox"
)

type testDB struct {
	conn *gorm.DB
}

func (d testDB) Ping(context.Context) error { return nil }

func (d testDB) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return d.conn.WithContext(ctx).Transaction(fn)
}

type fakePublisher struct {
	errs  []error
	calls int
	keys  []string
}

type fakeResult struct {
	err error
}

func (r fakeResult) Get(context.Context) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return "server-id", nil
}

func (p *fakePublisher) factory(routingKey string) publisher {
	p.keys = append(p.keys, routingKey)
	return p
}

func (p *fakePublisher) Publish(context.Context, *gcppubsub.Message) publishResult {
	var err error
	if p.calls < len(p.errs) {
		err = p.errs[p.calls]
	}
	p.calls++
	return fakeResult{err: err}
}

func newPublisherTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	stmt := `CREATE TABLE outbox_messages (
		id TEXT PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		payload TEXT NOT NULL,
		routing_key TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'PENDING',
		retry_count INTEGER NOT NULL DEFAULT 0,
		max_retries INTEGER NOT NULL DEFAULT 5,
		next_retry_at DATETIME,
		last_error TEXT,
		created_at DATETIME,
		processed_at DATETIME
	)`
	if err := conn.Exec(stmt).Error; err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}
	return conn
}

func newTestService(t *testing.T, conn *gorm.DB, pub *fakePublisher) *Service {
	t.Helper()
	cfg := &config.Config{}
	cfg.Outbox.BatchSize = 10
	cfg.Outbox.MaxRetries = 5
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	service, err := NewService(ServiceParams{
		Config:           cfg,
		Logger:           logg,
		DB:               testDB{conn: conn},
		Repository:       outbox.NewRepository(conn),
		Registry:         outbox.NewRegistry(),
		PublisherFactory: pub.factory,
	})
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}
	return service
}

func seedOutboxRow(t *testing.T, conn *gorm.DB, routingKey string, createdAt time.Time) models.OutboxMessage {
	t.Helper()
	payload, err := json.Marshal(outbox.TicketQueueEvent{
		TicketID:     uuid.New(),
		TicketNumber: "C01",
		QueueType:    enums.QueueCaja,
	})
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	row := models.OutboxMessage{
		ID:            uuid.New(),
		AggregateType: enums.AggregateTicket,
		AggregateID:   uuid.New(),
		EventType:     enums.EventTicketCreated,
		Payload:       payload,
		RoutingKey:    routingKey,
		Status:        enums.OutboxPending,
		MaxRetries:    5,
		CreatedAt:     createdAt,
	}
	if err := conn.Create(&row).Error; err != nil {
		t.Fatalf("failed to seed outbox row: %v", err)
	}
	return row
}

func loadRow(t *testing.T, conn *gorm.DB, id uuid.UUID) models.OutboxMessage {
	t.Helper()
	var row models.OutboxMessage
	if err := conn.First(&row, "id = ?", id).Error; err != nil {
		t.Fatalf("failed to load outbox row: %v", err)
	}
	return row
}

func TestProcessBatchSiblingFailureDoesNotBlockOthers(t *testing.T) {
	conn := newPublisherTestDB(t)
	base := time.Now().UTC().Add(-time.Minute)

	first := seedOutboxRow(t, conn, "caja-queue", base)
	second := seedOutboxRow(t, conn, "caja-queue", base.Add(time.Second))
	third := seedOutboxRow(t, conn, "caja-queue", base.Add(2*time.Second))

	pub := &fakePublisher{errs: []error{nil, errors.New("transient"), nil}}
	service := newTestService(t, conn, pub)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}

	if got := loadRow(t, conn, first.ID); got.Status != enums.OutboxSent {
		t.Fatalf("first row status = %s, want SENT", got.Status)
	}
	failing := loadRow(t, conn, second.ID)
	if failing.Status != enums.OutboxPending {
		t.Fatalf("failing row status = %s, want PENDING", failing.Status)
	}
	if failing.RetryCount != 1 {
		t.Fatalf("failing row retry count = %d, want 1", failing.RetryCount)
	}
	if failing.NextRetryAt == nil {
		t.Fatalf("failing row has no next retry time")
	}
	if got := loadRow(t, conn, third.ID); got.Status != enums.OutboxSent {
		t.Fatalf("third row status = %s, want SENT", got.Status)
	}
}

func TestProcessBatchBackoffGrowsAsPowersOfTwo(t *testing.T) {
	conn := newPublisherTestDB(t)
	row := seedOutboxRow(t, conn, "caja-queue", time.Now().UTC().Add(-time.Minute))

	pub := &fakePublisher{errs: []error{
		errors.New("down"), errors.New("down"), errors.New("down"), errors.New("down"),
	}}
	service := newTestService(t, conn, pub)

	clock := time.Now().UTC()
	service.now = func() time.Time { return clock }

	var previousDelay time.Duration
	for attempt := 1; attempt <= 4; attempt++ {
		if _, err := service.processBatch(context.Background()); err != nil {
			t.Fatalf("attempt %d returned error: %v", attempt, err)
		}
		got := loadRow(t, conn, row.ID)
		if got.Status != enums.OutboxPending {
			t.Fatalf("after %d failures status = %s, want PENDING", attempt, got.Status)
		}
		if got.RetryCount != attempt {
			t.Fatalf("after %d failures retry count = %d", attempt, got.RetryCount)
		}
		wantDelay := time.Duration(1<<uint(attempt)) * time.Second
		gotDelay := got.NextRetryAt.UTC().Sub(clock)
		if gotDelay != wantDelay {
			t.Fatalf("after %d failures delay = %s, want %s", attempt, gotDelay, wantDelay)
		}
		if gotDelay <= previousDelay {
			t.Fatalf("delay did not strictly increase: %s then %s", previousDelay, gotDelay)
		}
		previousDelay = gotDelay

		// Open the retry window for the next pass.
		clock = got.NextRetryAt.UTC().Add(time.Second)
		service.now = func() time.Time { return clock }
	}
}

func TestProcessBatchExhaustedRetriesBecomeFailed(t *testing.T) {
	conn := newPublisherTestDB(t)
	row := seedOutboxRow(t, conn, "caja-queue", time.Now().UTC().Add(-time.Minute))

	pub := &fakePublisher{errs: []error{
		errors.New("down"), errors.New("down"), errors.New("down"),
		errors.New("down"), errors.New("down"),
	}}
	service := newTestService(t, conn, pub)

	clock := time.Now().UTC()
	for attempt := 1; attempt <= 5; attempt++ {
		service.now = func() time.Time { return clock }
		if _, err := service.processBatch(context.Background()); err != nil {
			t.Fatalf("attempt %d returned error: %v", attempt, err)
		}
		got := loadRow(t, conn, row.ID)
		if got.NextRetryAt != nil {
			clock = got.NextRetryAt.UTC().Add(time.Second)
		}
	}

	got := loadRow(t, conn, row.ID)
	if got.Status != enums.OutboxFailed {
		t.Fatalf("status after 5 failures = %s, want FAILED", got.Status)
	}
	if got.RetryCount != 5 {
		t.Fatalf("retry count after 5 failures = %d, want 5", got.RetryCount)
	}
	if got.LastError == nil {
		t.Fatalf("expected last error to be recorded")
	}

	// Terminal rows are never picked up again.
	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("post-terminal batch returned error: %v", err)
	}
	if processed {
		t.Fatalf("expected no rows claimed after terminal failure")
	}
	if pub.calls != 5 {
		t.Fatalf("publisher called %d times, want 5", pub.calls)
	}
}

func TestProcessBatchSentRowsAreImmutable(t *testing.T) {
	conn := newPublisherTestDB(t)
	row := seedOutboxRow(t, conn, "gerencia-queue", time.Now().UTC().Add(-time.Minute))

	pub := &fakePublisher{}
	service := newTestService(t, conn, pub)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("first batch returned error: %v", err)
	}
	sent := loadRow(t, conn, row.ID)
	if sent.Status != enums.OutboxSent {
		t.Fatalf("status = %s, want SENT", sent.Status)
	}
	if sent.ProcessedAt == nil {
		t.Fatalf("expected processed_at to be set")
	}
	if got := pub.keys[0]; got != "gerencia-queue" {
		t.Fatalf("publisher used routing key %q, want gerencia-queue", got)
	}

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("second batch returned error: %v", err)
	}
	if processed {
		t.Fatalf("expected second batch to claim nothing")
	}
	again := loadRow(t, conn, row.ID)
	if again.Status != enums.OutboxSent || !again.ProcessedAt.Equal(*sent.ProcessedAt) {
		t.Fatalf("sent row mutated by later cycle")
	}
	if pub.calls != 1 {
		t.Fatalf("publisher called %d times, want 1", pub.calls)
	}
}

func TestProcessBatchUndecodablePayloadIsTerminal(t *testing.T) {
	conn := newPublisherTestDB(t)
	row := models.OutboxMessage{
		ID:            uuid.New(),
		AggregateType: enums.AggregateTicket,
		AggregateID:   uuid.New(),
		EventType:     enums.OutboxEventType("legacy_event"),
		Payload:       json.RawMessage(`{}`),
		RoutingKey:    "caja-queue",
		Status:        enums.OutboxPending,
		MaxRetries:    5,
		CreatedAt:     time.Now().UTC().Add(-time.Minute),
	}
	if err := conn.Create(&row).Error; err != nil {
		t.Fatalf("failed to seed row: %v", err)
	}

	pub := &fakePublisher{}
	service := newTestService(t, conn, pub)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	got := loadRow(t, conn, row.ID)
	if got.Status != enums.OutboxFailed {
		t.Fatalf("status = %s, want FAILED", got.Status)
	}
	if pub.calls != 0 {
		t.Fatalf("publisher called %d times for undecodable row", pub.calls)
	}
}
