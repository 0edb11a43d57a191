package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"hospital-queue/config"
	"hospital-queue/models"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestQueueService() (*QueueService, redismock.ClientMock) {
	db, mock := redismock.NewClientMock()
	cfg := &config.Config{
		NoShowGracePeriod:    5 * time.Minute,
		TransitionMaxRetries: 3,
		PositionCacheTTL:     30 * time.Second,
		UndoWindow:           10 * time.Minute,
	}

	service := &QueueService{
		Redis:    db,
		Notifier: NewNotifyService(nil),
		Config:   cfg,
	}

	return service, mock
}

func TestQueueService_CachedPosition_Hit(t *testing.T) {
	service, mock := setupTestQueueService()
	defer mock.ClearExpect()

	ctx := context.Background()
	mock.ExpectGet("queue:position:doc-1:patient-1").SetVal("3")

	position := service.CachedPosition(ctx, "doc-1", "patient-1")

	assert.Equal(t, 3, position)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueService_CachedPosition_Miss(t *testing.T) {
	service, mock := setupTestQueueService()
	defer mock.ClearExpect()

	ctx := context.Background()
	mock.ExpectGet("queue:position:doc-1:patient-1").RedisNil()

	position := service.CachedPosition(ctx, "doc-1", "patient-1")

	assert.Equal(t, -1, position)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueService_StoreAction(t *testing.T) {
	service, mock := setupTestQueueService()
	defer mock.ClearExpect()

	ctx := context.Background()
	action := models.QueueAction{
		Kind:               models.ActionServed,
		DoctorID:           "doc-1",
		EntryID:            "e1",
		PromotedID:         "e2",
		PromotedPrevStatus: models.StatusWaiting,
		RecordedAt:         time.Date(2025, 8, 20, 10, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(action)
	require.NoError(t, err)

	mock.ExpectSet("queue:lastaction:doc-1", data, 10*time.Minute).SetVal("OK")

	service.storeAction(ctx, action)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueService_Undo_NoPendingAction(t *testing.T) {
	service, mock := setupTestQueueService()
	defer mock.ClearExpect()

	ctx := context.Background()
	mock.ExpectGet("queue:lastaction:doc-1").RedisNil()

	restored, err := service.Undo(ctx, "doc-1")

	assert.NoError(t, err)
	assert.Nil(t, restored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueService_Undo_CorruptRecordIsDiscarded(t *testing.T) {
	service, mock := setupTestQueueService()
	defer mock.ClearExpect()

	ctx := context.Background()
	mock.ExpectGet("queue:lastaction:doc-1").SetVal("not-json")
	mock.ExpectDel("queue:lastaction:doc-1").SetVal(1)

	restored, err := service.Undo(ctx, "doc-1")

	assert.NoError(t, err)
	assert.Nil(t, restored)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestQueueService_OverdueCheck(t *testing.T) {
	service, _ := setupTestQueueService()
	now := time.Date(2025, 8, 20, 10, 0, 0, 0, time.UTC)

	overdue := models.QueueEntry{
		Status:      models.StatusWaiting,
		ScheduledAt: now.Add(-10 * time.Minute),
	}
	assert.True(t, service.overdue(overdue, now))

	withinGrace := models.QueueEntry{
		Status:      models.StatusWaiting,
		ScheduledAt: now.Add(-3 * time.Minute),
	}
	assert.False(t, service.overdue(withinGrace, now), "grace period has not elapsed")

	walkIn := models.QueueEntry{Status: models.StatusWaiting}
	assert.False(t, service.overdue(walkIn, now), "entries without a scheduled time never expire")

	active := models.QueueEntry{
		Status:      models.StatusActive,
		ScheduledAt: now.Add(-10 * time.Minute),
	}
	assert.False(t, service.overdue(active, now), "only waiting entries expire")
}

func TestStalePositionPatients(t *testing.T) {
	prior := []models.QueueEntry{
		{ID: "e1", PatientID: "patient-1", Status: models.StatusActive},
		{ID: "e2", PatientID: "patient-2", Status: models.StatusWaiting},
		{ID: "e3", PatientID: "patient-3", Status: models.StatusWaiting},
	}
	// e1 was served: it no longer appears in the post-commit listing, so
	// its position cache must be purged rather than left to the TTL.
	current := []models.QueueEntry{
		{ID: "e2", PatientID: "patient-2", Status: models.StatusActive},
		{ID: "e3", PatientID: "patient-3", Status: models.StatusWaiting},
	}

	assert.Equal(t, []string{"patient-1"}, stalePositionPatients(prior, current))
	assert.Empty(t, stalePositionPatients(current, current))
	assert.Empty(t, stalePositionPatients(nil, current))
}

func TestSnapshotRevisions(t *testing.T) {
	entries := []models.QueueEntry{
		{ID: "e1", Revision: 4},
		{ID: "e2", Revision: 1},
	}

	revs := snapshotRevisions(entries)

	assert.Equal(t, map[string]int{"e1": 4, "e2": 1}, revs)
}
