package advisors

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
	require.NoError(t, conn.Exec(`CREATE TABLE advisors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'AVAILABLE',
		module_number INTEGER NOT NULL,
		assigned_tickets_count INTEGER NOT NULL DEFAULT 0,
		last_seen_at DATETIME NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	)`).Error)
	return conn
}

func newTestService(t *testing.T, conn *gorm.DB) *Service {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(ServiceParams{
		Logger:     logg,
		DB:         gormTxRunner{db: conn},
		Repository: NewRepository(conn),
	})
	require.NoError(t, err)
	return svc
}

func TestCreate_StartsAvailable(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)

	advisor, err := svc.Create(context.Background(), CreateAdvisorInput{
		Name:         "Carla Vidal",
		Email:        "carla@bank.test",
		ModuleNumber: 2,
	})
	require.NoError(t, err)
	require.Equal(t, enums.AdvisorAvailable, advisor.Status)
	require.Equal(t, 0, advisor.AssignedTicketsCount)
	require.False(t, advisor.LastSeenAt.IsZero())
}

func TestCreate_DuplicateEmailConflicts(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateAdvisorInput{
		Name:         "Carla Vidal",
		Email:        "carla@bank.test",
		ModuleNumber: 2,
	})
	require.NoError(t, err)

	_, err = svc.Create(ctx, CreateAdvisorInput{
		Name:         "Otra Carla",
		Email:        "carla@bank.test",
		ModuleNumber: 5,
	})
	require.Error(t, err)
	typed := apperrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, apperrors.CodeConflict, typed.Code())
}

func TestGet_UnknownAdvisorReturnsNotFound(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)

	_, err := svc.Get(context.Background(), uuid.New())
	require.Error(t, err)
	require.True(t, apperrors.IsNotFound(err))
}

func TestSetStatus_ValidatesStatus(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	advisor, err := svc.Create(ctx, CreateAdvisorInput{
		Name:         "Carla Vidal",
		Email:        "carla@bank.test",
		ModuleNumber: 2,
	})
	require.NoError(t, err)

	require.NoError(t, svc.SetStatus(ctx, advisor.ID, enums.AdvisorOffline))
	fresh, err := svc.Get(ctx, advisor.ID)
	require.NoError(t, err)
	require.Equal(t, enums.AdvisorOffline, fresh.Status)

	err = svc.SetStatus(ctx, advisor.ID, enums.AdvisorStatus("NAPPING"))
	require.Error(t, err)
	typed := apperrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, apperrors.CodeValidation, typed.Code())
}

func TestHeartbeat_RefreshesLastSeen(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	stale := time.Now().UTC().Add(-time.Hour)
	advisor := models.Advisor{
		ID:           uuid.New(),
		Name:         "Pedro Rojas",
		Email:        "pedro@bank.test",
		Status:       enums.AdvisorBusy,
		ModuleNumber: 1,
		LastSeenAt:   stale,
	}
	require.NoError(t, conn.Create(&advisor).Error)

	require.NoError(t, svc.Heartbeat(ctx, advisor.ID))

	var fresh models.Advisor
	require.NoError(t, conn.First(&fresh, "id = ?", advisor.ID).Error)
	require.True(t, fresh.LastSeenAt.After(stale))
	// A heartbeat never flips status.
	require.Equal(t, enums.AdvisorBusy, fresh.Status)
}

func TestMarkBusyAndRelease_GuardStatusTransitions(t *testing.T) {
	conn := newTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	advisor := models.Advisor{
		ID:           uuid.New(),
		Name:         "Pedro Rojas",
		Email:        "pedro@bank.test",
		Status:       enums.AdvisorAvailable,
		ModuleNumber: 1,
		LastSeenAt:   time.Now().UTC(),
	}
	require.NoError(t, conn.Create(&advisor).Error)

	require.NoError(t, repo.MarkBusy(ctx, nil, advisor.ID, time.Now().UTC()))

	// Claiming an already busy advisor fails.
	err := repo.MarkBusy(ctx, nil, advisor.ID, time.Now().UTC())
	require.Error(t, err)
	typed := apperrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, apperrors.CodeStateConflict, typed.Code())

	require.NoError(t, repo.Release(ctx, nil, advisor.ID))
	var fresh models.Advisor
	require.NoError(t, conn.First(&fresh, "id = ?", advisor.ID).Error)
	require.Equal(t, enums.AdvisorAvailable, fresh.Status)
	require.Equal(t, 1, fresh.AssignedTicketsCount)
}
