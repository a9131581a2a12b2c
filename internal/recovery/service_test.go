package recovery

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/hmardones/ticketero-backend/pkg/db/models"
	"github.com/hmardones/ticketero-backend/pkg/enums"
	apperrors "github.com/hmardones/ticketero-backend/pkg/errors"
	"github.com/hmardones/ticketero-backend/pkg/logger"
	"github.com/hmardones/ticketero-backend/pkg/outbox"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	for _, stmt := range []string{
		`CREATE TABLE advisors (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			email TEXT NOT NULL UNIQUE,
			status TEXT NOT NULL DEFAULT 'AVAILABLE',
			module_number INTEGER NOT NULL,
			assigned_tickets_count INTEGER NOT NULL DEFAULT 0,
			last_seen_at DATETIME NOT NULL,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE tickets (
			id TEXT PRIMARY KEY,
			number TEXT NOT NULL UNIQUE,
			national_id TEXT NOT NULL,
			phone TEXT,
			branch_office TEXT NOT NULL,
			queue_type TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'WAITING',
			position_in_queue INTEGER NOT NULL DEFAULT 0,
			estimated_wait_minutes INTEGER NOT NULL DEFAULT 0,
			advisor_id TEXT,
			module_number INTEGER,
			created_at DATETIME,
			updated_at DATETIME
		)`,
		`CREATE TABLE recovery_events (
			id TEXT PRIMARY KEY,
			recovery_type TEXT NOT NULL,
			advisor_id TEXT NOT NULL,
			ticket_id TEXT,
			old_advisor_status TEXT NOT NULL,
			new_advisor_status TEXT NOT NULL,
			old_ticket_status TEXT,
			new_ticket_status TEXT,
			reason TEXT NOT NULL,
			created_at DATETIME
		)`,
		`CREATE TABLE outbox_messages (
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
		)`,
	} {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

func newTestService(t *testing.T, conn *gorm.DB) *Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	emitter := outbox.NewService(outbox.NewRepository(conn), logg, 5)
	svc, err := NewService(ServiceParams{
		Logger:           logg,
		DB:               gormTxRunner{db: conn},
		Repository:       NewRepository(),
		Outbox:           emitter,
		HeartbeatTimeout: 5 * time.Minute,
	})
	require.NoError(t, err)
	return svc
}

func seedAdvisor(t *testing.T, conn *gorm.DB, status enums.AdvisorStatus, lastSeen time.Time) models.Advisor {
	t.Helper()
	advisor := models.Advisor{
		ID:           uuid.New(),
		Name:         "Laura Soto",
		Email:        uuid.NewString() + "@bank.test",
		Status:       status,
		ModuleNumber: 3,
		LastSeenAt:   lastSeen,
	}
	require.NoError(t, conn.Create(&advisor).Error)
	return advisor
}

func seedTicket(t *testing.T, conn *gorm.DB, queue enums.QueueType, status enums.TicketStatus, advisorID *uuid.UUID) models.Ticket {
	t.Helper()
	ticket := models.Ticket{
		ID:           uuid.New(),
		Number:       string(queue.NumberPrefix()) + uuid.NewString()[:8],
		NationalID:   uuid.NewString()[:10],
		BranchOffice: "centro",
		QueueType:    queue,
		Status:       status,
		AdvisorID:    advisorID,
	}
	if advisorID != nil {
		module := 3
		ticket.ModuleNumber = &module
	}
	require.NoError(t, conn.Create(&ticket).Error)
	return ticket
}

func TestRunCycle_ReclaimsDeadWorkerWithAttendingTicket(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)

	stale := time.Now().UTC().Add(-10 * time.Minute)
	advisor := seedAdvisor(t, conn, enums.AdvisorBusy, stale)
	ticket := seedTicket(t, conn, enums.QueueGerencia, enums.TicketAttending, &advisor.ID)

	recovered, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, recovered)

	var gotTicket models.Ticket
	require.NoError(t, conn.First(&gotTicket, "id = ?", ticket.ID).Error)
	require.Equal(t, enums.TicketWaiting, gotTicket.Status)
	require.Nil(t, gotTicket.AdvisorID)
	require.Nil(t, gotTicket.ModuleNumber)

	var gotAdvisor models.Advisor
	require.NoError(t, conn.First(&gotAdvisor, "id = ?", advisor.ID).Error)
	require.Equal(t, enums.AdvisorAvailable, gotAdvisor.Status)
	require.Equal(t, 1, gotAdvisor.AssignedTicketsCount)

	var outboxRows []models.OutboxMessage
	require.NoError(t, conn.Find(&outboxRows).Error)
	require.Len(t, outboxRows, 1)
	require.Equal(t, enums.EventTicketRequeued, outboxRows[0].EventType)
	require.Equal(t, "gerencia-queue", outboxRows[0].RoutingKey)
	require.Equal(t, enums.OutboxPending, outboxRows[0].Status)
	require.Contains(t, string(outboxRows[0].Payload), `"action":"REQUEUE"`)

	var events []models.RecoveryEvent
	require.NoError(t, conn.Find(&events).Error)
	require.Len(t, events, 1)
	require.Equal(t, enums.RecoveryDeadWorker, events[0].RecoveryType)
	require.NotNil(t, events[0].TicketID)
	require.Equal(t, "ATTENDING", *events[0].OldTicketStatus)
	require.Equal(t, "WAITING", *events[0].NewTicketStatus)
}

func TestRunCycle_SkipsFreshAndNonBusyAdvisors(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)

	seedAdvisor(t, conn, enums.AdvisorBusy, time.Now().UTC())
	seedAdvisor(t, conn, enums.AdvisorAvailable, time.Now().UTC().Add(-time.Hour))
	seedAdvisor(t, conn, enums.AdvisorOffline, time.Now().UTC().Add(-time.Hour))

	recovered, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	require.Zero(t, recovered)

	var events int64
	require.NoError(t, conn.Model(&models.RecoveryEvent{}).Count(&events).Error)
	require.Zero(t, events)
}

func TestRunCycle_CompletedTicketIsNeverResurrected(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)

	stale := time.Now().UTC().Add(-time.Hour)
	advisor := seedAdvisor(t, conn, enums.AdvisorBusy, stale)
	ticket := seedTicket(t, conn, enums.QueueCaja, enums.TicketCompleted, &advisor.ID)

	recovered, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, recovered)

	var gotTicket models.Ticket
	require.NoError(t, conn.First(&gotTicket, "id = ?", ticket.ID).Error)
	require.Equal(t, enums.TicketCompleted, gotTicket.Status)
	require.NotNil(t, gotTicket.AdvisorID)

	var gotAdvisor models.Advisor
	require.NoError(t, conn.First(&gotAdvisor, "id = ?", advisor.ID).Error)
	require.Equal(t, enums.AdvisorAvailable, gotAdvisor.Status)

	var outboxCount int64
	require.NoError(t, conn.Model(&models.OutboxMessage{}).Count(&outboxCount).Error)
	require.Zero(t, outboxCount)

	var events []models.RecoveryEvent
	require.NoError(t, conn.Find(&events).Error)
	require.Len(t, events, 1)
	require.Nil(t, events[0].TicketID)
}

func TestRunCycle_UnknownQueueTypeFallsBackToDefaultRoutingKey(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)

	stale := time.Now().UTC().Add(-time.Hour)
	advisor := seedAdvisor(t, conn, enums.AdvisorBusy, stale)
	ticket := models.Ticket{
		ID:           uuid.New(),
		Number:       "X-001",
		NationalID:   "11111111",
		BranchOffice: "centro",
		QueueType:    enums.QueueType("LEGACY_VIP"),
		Status:       enums.TicketAttending,
		AdvisorID:    &advisor.ID,
	}
	require.NoError(t, conn.Create(&ticket).Error)

	recovered, err := svc.RunCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, recovered)

	var outboxRows []models.OutboxMessage
	require.NoError(t, conn.Find(&outboxRows).Error)
	require.Len(t, outboxRows, 1)
	require.Equal(t, "default-queue", outboxRows[0].RoutingKey)
}

func TestRecoverOne_IsIdempotentAndAlwaysAudited(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)

	advisor := seedAdvisor(t, conn, enums.AdvisorBusy, time.Now().UTC())

	require.NoError(t, svc.RecoverOne(context.Background(), advisor.ID, "supervisor request"))
	require.NoError(t, svc.RecoverOne(context.Background(), advisor.ID, "supervisor request"))

	var gotAdvisor models.Advisor
	require.NoError(t, conn.First(&gotAdvisor, "id = ?", advisor.ID).Error)
	require.Equal(t, enums.AdvisorAvailable, gotAdvisor.Status)

	var events []models.RecoveryEvent
	require.NoError(t, conn.Order("created_at ASC").Find(&events).Error)
	require.Len(t, events, 2)
	for _, event := range events {
		require.Equal(t, enums.RecoveryManual, event.RecoveryType)
		require.Equal(t, "supervisor request", event.Reason)
	}
	require.Equal(t, "BUSY", events[0].OldAdvisorStatus)
	require.Equal(t, "AVAILABLE", events[1].OldAdvisorStatus)
}

func TestRecoverOne_UnknownAdvisorReturnsNotFound(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)

	err := svc.RecoverOne(context.Background(), uuid.New(), "")
	require.Error(t, err)
	require.True(t, apperrors.IsNotFound(err))
}

func TestRunCycle_OneFailureDoesNotBlockOthers(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)

	stale := time.Now().UTC().Add(-time.Hour)
	first := seedAdvisor(t, conn, enums.AdvisorBusy, stale)
	second := seedAdvisor(t, conn, enums.AdvisorBusy, stale)

	// Simulate the first advisor disappearing between scan and reclaim.
	require.NoError(t, conn.Delete(&models.Advisor{}, "id = ?", first.ID).Error)

	recovered, err := svc.RunCycle(context.Background())
	require.Error(t, err)
	require.Equal(t, 1, recovered)

	var gotSecond models.Advisor
	require.NoError(t, conn.First(&gotSecond, "id = ?", second.ID).Error)
	require.Equal(t, enums.AdvisorAvailable, gotSecond.Status)
}

func TestListEvents_FiltersByAdvisor(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	stale := time.Now().UTC().Add(-time.Hour)
	first := seedAdvisor(t, conn, enums.AdvisorBusy, stale)
	second := seedAdvisor(t, conn, enums.AdvisorBusy, stale)

	require.NoError(t, svc.RecoverOne(ctx, first.ID, "operator request"))
	require.NoError(t, svc.RecoverOne(ctx, second.ID, "operator request"))

	all, err := svc.ListEvents(ctx, nil, 0)
	require.NoError(t, err)
	require.Len(t, all, 2)

	scoped, err := svc.ListEvents(ctx, &first.ID, 0)
	require.NoError(t, err)
	require.Len(t, scoped, 1)
	require.Equal(t, first.ID, scoped[0].AdvisorID)
	require.Equal(t, enums.RecoveryManual, scoped[0].RecoveryType)
}
