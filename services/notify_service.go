package services

import (
	"context"
	"fmt"
	"log/slog"

	"hospital-queue/models"
	"hospital-queue/utils"

	pubnub "github.com/pubnub/go"
)

// NotifyService pushes queue changes to subscribers after a transition
// has committed. Consumers must treat every message as a resync trigger,
// not a diff; the ledger is the only source of truth. Publishes run
// behind a circuit breaker so a push outage never fails a transition.
type NotifyService struct {
	pubnub  *pubnub.PubNub
	breaker *utils.CircuitBreaker
}

func NewNotifyService(pn *pubnub.PubNub) *NotifyService {
	return &NotifyService{
		pubnub:  pn,
		breaker: utils.NewCircuitBreaker("pubnub"),
	}
}

// QueueChanged notifies everyone watching a doctor's queue.
func (n *NotifyService) QueueChanged(ctx context.Context, doctorID, operation string, entry *models.QueueEntry) {
	message := map[string]any{
		"type":      "queue_changed",
		"operation": operation,
		"doctor_id": doctorID,
	}
	if entry != nil {
		message["entry"] = entry
	}
	n.publish(ctx, fmt.Sprintf("doctor-%s", doctorID), message)
}

// PatientUpdate tells one patient their current position and status.
func (n *NotifyService) PatientUpdate(ctx context.Context, entry models.QueueEntry) {
	n.publish(ctx, fmt.Sprintf("patient-%s", entry.PatientID), map[string]any{
		"type":                   "queue_position",
		"doctor_id":              entry.DoctorID,
		"token":                  entry.Token,
		"status":                 entry.Status,
		"position":               entry.Position,
		"estimated_wait_minutes": entry.EstimatedWait,
	})
}

func (n *NotifyService) publish(ctx context.Context, channel string, message map[string]any) {
	if n.pubnub == nil {
		return
	}

	err := n.breaker.Execute(ctx, func() error {
		_, _, err := n.pubnub.Publish().
			Channel(channel).
			Message(message).
			Execute()
		return err
	})
	if err != nil {
		slog.Warn("pubnub publish failed", "channel", channel, "error", err)
	}
}
