package monitoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonitor_StopTerminatesCollector(t *testing.T) {
	m := NewMonitor(nil, time.Hour)
	m.Stop()

	select {
	case <-m.stopChan:
		// closed: the collector goroutine exits on its next select
	default:
		t.Fatal("Stop should close the collector's stop channel")
	}
}

func TestTrackTransition(t *testing.T) {
	// Label writes must not panic on fresh metric vectors.
	assert.NotPanics(t, func() {
		TrackTransition("mark_served", "doc-1", "success")
		TrackConflictRetry("mark_served")
		ObserveTransitionDuration("mark_served", 0.02)
		SetQueueLength("doc-1", 3)
	})
}
