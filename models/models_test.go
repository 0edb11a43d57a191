package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStatus(t *testing.T) {
	valid := []string{"waiting", "active", "re-enter", "served", "no-show", "cancelled"}
	for _, s := range valid {
		parsed, err := ParseStatus(s)
		require.NoError(t, err)
		assert.Equal(t, Status(s), parsed)
	}

	for _, s := range []string{"", "done", "WAITING", "noshow"} {
		_, err := ParseStatus(s)
		assert.Error(t, err, "status %q should be rejected", s)
	}
}

func TestStatus_Queued(t *testing.T) {
	assert.True(t, StatusWaiting.Queued())
	assert.True(t, StatusReEnter.Queued())
	assert.False(t, StatusActive.Queued())
	assert.False(t, StatusServed.Queued())
	assert.False(t, StatusNoShow.Queued())
	assert.False(t, StatusCancelled.Queued())
}

func TestStatus_Terminal(t *testing.T) {
	assert.True(t, StatusServed.Terminal())
	assert.True(t, StatusNoShow.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusWaiting.Terminal())
	assert.False(t, StatusActive.Terminal())
	assert.False(t, StatusReEnter.Terminal())
}

func TestStatus_TierOrdering(t *testing.T) {
	// Re-entered patients outrank waiting ones.
	assert.Less(t, StatusReEnter.Tier(), StatusWaiting.Tier())
	assert.Less(t, StatusWaiting.Tier(), StatusActive.Tier())
}

func TestQueueEntry_JSONSerialization(t *testing.T) {
	createdAt := time.Now()

	entry := QueueEntry{
		ID:            "entry-123",
		DoctorID:      "doctor-456",
		PatientID:     "patient-789",
		PatientName:   "Test Patient",
		TokenNumber:   7,
		Token:         "A007",
		Status:        StatusWaiting,
		Position:      2,
		EstimatedWait: 30,
		HealthSummary: "Follow-up visit",
		CreatedAt:     createdAt,
		Revision:      3,
	}

	jsonData, err := json.Marshal(entry)
	require.NoError(t, err)

	var unmarshaled QueueEntry
	err = json.Unmarshal(jsonData, &unmarshaled)
	require.NoError(t, err)

	assert.Equal(t, entry.ID, unmarshaled.ID)
	assert.Equal(t, entry.DoctorID, unmarshaled.DoctorID)
	assert.Equal(t, entry.PatientID, unmarshaled.PatientID)
	assert.Equal(t, entry.TokenNumber, unmarshaled.TokenNumber)
	assert.Equal(t, entry.Token, unmarshaled.Token)
	assert.Equal(t, entry.Status, unmarshaled.Status)
	assert.Equal(t, entry.Position, unmarshaled.Position)
	assert.Equal(t, entry.EstimatedWait, unmarshaled.EstimatedWait)
	assert.Equal(t, entry.Revision, unmarshaled.Revision)
	assert.WithinDuration(t, entry.CreatedAt, unmarshaled.CreatedAt, time.Second)
}

func TestQueueAction_JSONSerialization(t *testing.T) {
	action := QueueAction{
		Kind:               ActionNoShow,
		DoctorID:           "doctor-456",
		EntryID:            "entry-123",
		PromotedID:         "entry-124",
		PromotedPrevStatus: StatusReEnter,
		RecordedAt:         time.Now(),
	}

	jsonData, err := json.Marshal(action)
	require.NoError(t, err)

	var unmarshaled QueueAction
	err = json.Unmarshal(jsonData, &unmarshaled)
	require.NoError(t, err)

	assert.Equal(t, action.Kind, unmarshaled.Kind)
	assert.Equal(t, action.EntryID, unmarshaled.EntryID)
	assert.Equal(t, action.PromotedID, unmarshaled.PromotedID)
	assert.Equal(t, action.PromotedPrevStatus, unmarshaled.PromotedPrevStatus)
	assert.WithinDuration(t, action.RecordedAt, unmarshaled.RecordedAt, time.Second)
}
