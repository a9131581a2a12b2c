package messaging

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/hmardones/ticketero-backend/pkg/db/models"
	"github.com/hmardones/ticketero-backend/pkg/enums"
	"github.com/hmardones/ticketero-backend/pkg/logger"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type fakeSender struct {
	err   error
	calls int
	texts []string
	chats []string
}

func (s *fakeSender) Send(_ context.Context, chatID, text string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	s.chats = append(s.chats, chatID)
	s.texts = append(s.texts, text)
	return "provider-42", nil
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
		`CREATE TABLE messages (
			id TEXT PRIMARY KEY,
			ticket_id TEXT NOT NULL,
			template TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'PENDING',
			scheduled_at DATETIME NOT NULL,
			sent_at DATETIME,
			provider_message_id TEXT,
			attempts INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME
		)`,
	} {
		require.NoError(t, conn.Exec(stmt).Error)
	}
	return conn
}

func newTestService(t *testing.T, conn *gorm.DB, sender Sender) *Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(ServiceParams{
		Logger:            logg,
		DB:                gormTxRunner{db: conn},
		Repository:        NewRepository(conn),
		Sender:            sender,
		PositionThreshold: 3,
		MaxSendAttempts:   3,
	})
	require.NoError(t, err)
	return svc
}

func strptr(s string) *string { return &s }

func seedTicket(t *testing.T, conn *gorm.DB, position int, phone *string) models.Ticket {
	t.Helper()
	ticket := models.Ticket{
		ID:              uuid.New(),
		Number:          "C" + uuid.NewString()[:6],
		NationalID:      uuid.NewString()[:9],
		Phone:           phone,
		BranchOffice:    "Centro",
		QueueType:       enums.QueueCaja,
		Status:          enums.TicketWaiting,
		PositionInQueue: position,
	}
	require.NoError(t, conn.Create(&ticket).Error)
	return ticket
}

func TestRunUpcomingCycle_NotifiesHoldersNearTheFront(t *testing.T) {
	conn := newTestDB(t)
	sender := &fakeSender{}
	svc := newTestService(t, conn, sender)

	near := seedTicket(t, conn, 2, strptr("+56911112222"))
	seedTicket(t, conn, 7, strptr("+56933334444")) // beyond threshold
	seedTicket(t, conn, 1, nil)                    // no phone

	sent, err := svc.RunUpcomingCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sent)
	require.Equal(t, 1, sender.calls)
	require.Equal(t, []string{"+56911112222"}, sender.chats)

	var records []models.Message
	require.NoError(t, conn.Find(&records).Error)
	require.Len(t, records, 1)
	require.Equal(t, near.ID, records[0].TicketID)
	require.Equal(t, enums.TemplateUpcomingTurn, records[0].Template)
	require.Equal(t, enums.MessageSent, records[0].Status)
	require.NotNil(t, records[0].SentAt)
	require.Equal(t, 1, records[0].Attempts)
}

func TestRunUpcomingCycle_NotifiesEachHolderOnce(t *testing.T) {
	conn := newTestDB(t)
	sender := &fakeSender{}
	svc := newTestService(t, conn, sender)

	seedTicket(t, conn, 1, strptr("+56911112222"))

	for i := 0; i < 3; i++ {
		_, err := svc.RunUpcomingCycle(context.Background())
		require.NoError(t, err)
	}

	require.Equal(t, 1, sender.calls)
	var count int64
	require.NoError(t, conn.Model(&models.Message{}).Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestRunUpcomingCycle_NoRecordWithoutDelivery(t *testing.T) {
	conn := newTestDB(t)
	sender := &fakeSender{err: errors.New("telegram down")}
	svc := newTestService(t, conn, sender)

	seedTicket(t, conn, 1, strptr("+56911112222"))

	sent, err := svc.RunUpcomingCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, sent)

	// Nothing recorded, so the next cycle tries again.
	var count int64
	require.NoError(t, conn.Model(&models.Message{}).Count(&count).Error)
	require.EqualValues(t, 0, count)

	sender.err = nil
	sent, err = svc.RunUpcomingCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sent)
}

func seedPendingMessage(t *testing.T, conn *gorm.DB, ticketID uuid.UUID, attempts int) models.Message {
	t.Helper()
	msg := models.Message{
		ID:          uuid.New(),
		TicketID:    ticketID,
		Template:    enums.TemplateTicketCreated,
		Status:      enums.MessagePending,
		ScheduledAt: time.Now().UTC().Add(-time.Minute),
		Attempts:    attempts,
	}
	require.NoError(t, conn.Create(&msg).Error)
	return msg
}

func TestRunRetryCycle_DeliversDuePending(t *testing.T) {
	conn := newTestDB(t)
	sender := &fakeSender{}
	svc := newTestService(t, conn, sender)

	ticket := seedTicket(t, conn, 4, strptr("+56911112222"))
	msg := seedPendingMessage(t, conn, ticket.ID, 0)

	delivered, err := svc.RunRetryCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, delivered)

	var fresh models.Message
	require.NoError(t, conn.First(&fresh, "id = ?", msg.ID).Error)
	require.Equal(t, enums.MessageSent, fresh.Status)
	require.NotNil(t, fresh.SentAt)
	require.Equal(t, "provider-42", *fresh.ProviderMessageID)
	require.Equal(t, 1, fresh.Attempts)
}

func TestRunRetryCycle_FailureCountsAttemptUntilCeiling(t *testing.T) {
	conn := newTestDB(t)
	sender := &fakeSender{err: errors.New("telegram down")}
	svc := newTestService(t, conn, sender)

	ticket := seedTicket(t, conn, 4, strptr("+56911112222"))
	msg := seedPendingMessage(t, conn, ticket.ID, 0)

	for attempt := 1; attempt <= 3; attempt++ {
		_, err := svc.RunRetryCycle(context.Background())
		require.NoError(t, err)

		var fresh models.Message
		require.NoError(t, conn.First(&fresh, "id = ?", msg.ID).Error)
		require.Equal(t, attempt, fresh.Attempts)
		if attempt < 3 {
			require.Equal(t, enums.MessagePending, fresh.Status)
		} else {
			require.Equal(t, enums.MessageFailed, fresh.Status)
		}
	}

	// FAILED records are never retried again.
	_, err := svc.RunRetryCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, sender.calls)
}

func TestRunRetryCycle_MissingPhoneFailsImmediately(t *testing.T) {
	conn := newTestDB(t)
	sender := &fakeSender{}
	svc := newTestService(t, conn, sender)

	ticket := seedTicket(t, conn, 4, nil)
	msg := seedPendingMessage(t, conn, ticket.ID, 0)

	delivered, err := svc.RunRetryCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, delivered)
	require.Equal(t, 0, sender.calls)

	var fresh models.Message
	require.NoError(t, conn.First(&fresh, "id = ?", msg.ID).Error)
	require.Equal(t, enums.MessageFailed, fresh.Status)
}

func TestRunRetryCycle_FutureMessagesAreLeftAlone(t *testing.T) {
	conn := newTestDB(t)
	sender := &fakeSender{}
	svc := newTestService(t, conn, sender)

	ticket := seedTicket(t, conn, 4, strptr("+56911112222"))
	msg := models.Message{
		ID:          uuid.New(),
		TicketID:    ticket.ID,
		Template:    enums.TemplateTicketCreated,
		Status:      enums.MessagePending,
		ScheduledAt: time.Now().UTC().Add(time.Hour),
	}
	require.NoError(t, conn.Create(&msg).Error)

	delivered, err := svc.RunRetryCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, delivered)
	require.Equal(t, 0, sender.calls)
}

func TestRunRetryCycle_OneBrokenRecordDoesNotBlockOthers(t *testing.T) {
	conn := newTestDB(t)
	sender := &fakeSender{}
	svc := newTestService(t, conn, sender)

	// References a ticket that no longer exists.
	seedPendingMessage(t, conn, uuid.New(), 0)
	healthy := seedTicket(t, conn, 2, strptr("+56911112222"))
	msg := seedPendingMessage(t, conn, healthy.ID, 0)

	delivered, err := svc.RunRetryCycle(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, delivered)

	var fresh models.Message
	require.NoError(t, conn.First(&fresh, "id = ?", msg.ID).Error)
	require.Equal(t, enums.MessageSent, fresh.Status)
}

func TestRenderTemplate_IncludesTicketDetails(t *testing.T) {
	module := 5
	ticket := models.Ticket{
		Number:               "C07",
		QueueType:            enums.QueueCaja,
		PositionInQueue:      2,
		EstimatedWaitMinutes: 10,
		ModuleNumber:         &module,
	}

	created, err := RenderTemplate(enums.TemplateTicketCreated, ticket, "")
	require.NoError(t, err)
	require.Contains(t, created, "C07")

	turn, err := RenderTemplate(enums.TemplateYourTurn, ticket, "Carla Vidal")
	require.NoError(t, err)
	require.Contains(t, turn, "C07")
	require.Contains(t, turn, "Carla Vidal")

	_, err = RenderTemplate(enums.MessageTemplate("UNKNOWN"), ticket, "")
	require.Error(t, err)
}
