package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"hospital-queue/config"
	"hospital-queue/internal/engine"
	"hospital-queue/internal/status"
	"hospital-queue/models"
	"hospital-queue/monitoring"

	"github.com/redis/go-redis/v9"
)

// QueueService coordinates queue transitions: it reads a fresh snapshot,
// runs the pure engine, persists the result through the ledger and then
// fans out notifications. Conflicting batch writes are retried from a
// fresh read up to Config.TransitionMaxRetries.
type QueueService struct {
	Redis    *redis.Client
	Ledger   *LedgerService
	Notifier *NotifyService
	Config   *config.Config
}

func NewQueueService(redisClient *redis.Client, ledger *LedgerService, notifier *NotifyService, cfg *config.Config) *QueueService {
	return &QueueService{
		Redis:    redisClient,
		Ledger:   ledger,
		Notifier: notifier,
		Config:   cfg,
	}
}

func positionKey(doctorID, patientID string) string {
	return fmt.Sprintf("queue:position:%s:%s", doctorID, patientID)
}

func lastActionKey(doctorID string) string {
	return fmt.Sprintf("queue:lastaction:%s", doctorID)
}

// JoinQueue admits a patient to a doctor's queue.
func (s *QueueService) JoinQueue(ctx context.Context, req JoinRequest) (*models.QueueEntry, error) {
	entry, err := s.Ledger.Append(req)
	if err != nil {
		monitoring.TrackTransition("join", req.DoctorID, "error")
		return nil, err
	}

	// A new admission invalidates any pending undo for this doctor.
	s.Redis.Del(ctx, lastActionKey(req.DoctorID))

	s.afterCommit(ctx, req.DoctorID, "joined", entry, nil)
	monitoring.TrackTransition("join", req.DoctorID, "success")
	return entry, nil
}

// MarkServed completes the target consultation and promotes the next
// patient unless the queue is frozen. Serving a missing or already
// terminal entry is a deliberate no-op.
func (s *QueueService) MarkServed(ctx context.Context, entryID, doctorID string) (*models.QueueEntry, int, error) {
	var next *models.QueueEntry
	remaining, err := s.retryTransition(ctx, "mark_served", doctorID, func(doctor *models.Doctor, entries []models.QueueEntry) (engine.Result, map[string]int) {
		res := engine.MarkServed(entries, entryID, doctor.AvgConsultMinutes, doctor.Frozen, time.Now())
		return res, snapshotRevisions(entries)
	}, &next)
	return next, remaining, err
}

// MarkNoShow is MarkServed with a no-show outcome and an optional reason.
func (s *QueueService) MarkNoShow(ctx context.Context, entryID, doctorID, reason string) (int, error) {
	remaining, err := s.retryTransition(ctx, "mark_no_show", doctorID, func(doctor *models.Doctor, entries []models.QueueEntry) (engine.Result, map[string]int) {
		res := engine.MarkNoShow(entries, entryID, reason, doctor.AvgConsultMinutes, doctor.Frozen, time.Now())
		return res, snapshotRevisions(entries)
	}, nil)
	return remaining, err
}

// ReEnter admits a no-show patient back into the queue ahead of the
// waiting tier.
func (s *QueueService) ReEnter(ctx context.Context, entryID, doctorID string) error {
	target, err := s.Ledger.FindEntry(entryID)
	if err != nil {
		return err
	}
	if target.Status != models.StatusNoShow {
		return fmt.Errorf("entry %s is %s, only no-show entries can re-enter: %w", entryID, target.Status, status.ErrValidation)
	}

	_, err = s.retryTransition(ctx, "re_enter", doctorID, func(doctor *models.Doctor, entries []models.QueueEntry) (engine.Result, map[string]int) {
		// Re-read the target each attempt so a conflict retry sees its
		// current revision.
		fresh, ferr := s.Ledger.FindEntry(entryID)
		if ferr != nil {
			return engine.Result{NoOp: true}, nil
		}
		res, engErr := engine.ReEnter(entries, *fresh, doctor.AvgConsultMinutes)
		if engErr != nil {
			return engine.Result{NoOp: true}, nil
		}
		revs := snapshotRevisions(entries)
		revs[fresh.ID] = fresh.Revision
		return res, revs
	}, nil)
	if err != nil {
		return err
	}

	// Re-entry invalidates the pending undo record.
	s.Redis.Del(ctx, lastActionKey(doctorID))
	return nil
}

// Undo reverses the single most recent serve/no-show for the doctor.
// A missing or stale action record is a no-op and returns nil.
func (s *QueueService) Undo(ctx context.Context, doctorID string) (*models.QueueEntry, error) {
	raw, err := s.Redis.Get(ctx, lastActionKey(doctorID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var action models.QueueAction
	if err := json.Unmarshal([]byte(raw), &action); err != nil {
		s.Redis.Del(ctx, lastActionKey(doctorID))
		return nil, nil
	}

	var restored *models.QueueEntry
	_, err = s.retryTransition(ctx, "undo", doctorID, func(doctor *models.Doctor, entries []models.QueueEntry) (engine.Result, map[string]int) {
		target, ferr := s.Ledger.FindEntry(action.EntryID)
		if ferr != nil {
			return engine.Result{NoOp: true}, nil
		}
		res := engine.Undo(entries, *target, action, doctor.AvgConsultMinutes)
		revs := snapshotRevisions(entries)
		revs[target.ID] = target.Revision
		return res, revs
	}, &restored)
	if err != nil {
		return nil, err
	}

	// One-shot: consumed whether it applied or turned out stale.
	s.Redis.Del(ctx, lastActionKey(doctorID))
	return restored, nil
}

// Freeze stops promotions for a doctor: serve/no-show still terminate the
// active entry, but no one is called in until Resume.
func (s *QueueService) Freeze(ctx context.Context, doctorID string) error {
	if err := s.Ledger.SetDoctorFlag(doctorID, "frozen", true); err != nil {
		return err
	}
	s.Redis.Del(ctx, lastActionKey(doctorID))
	s.Notifier.QueueChanged(ctx, doctorID, "frozen", nil)
	return nil
}

// Resume lifts a freeze and fills the consultation slot if it is empty.
func (s *QueueService) Resume(ctx context.Context, doctorID string) error {
	if err := s.Ledger.SetDoctorFlag(doctorID, "frozen", false); err != nil {
		return err
	}
	s.Redis.Del(ctx, lastActionKey(doctorID))

	var promoted *models.QueueEntry
	_, err := s.retryTransition(ctx, "resume", doctorID, func(doctor *models.Doctor, entries []models.QueueEntry) (engine.Result, map[string]int) {
		return engine.PromoteNext(entries, doctor.AvgConsultMinutes), snapshotRevisions(entries)
	}, &promoted)
	return err
}

// Cancel withdraws a waiting entry at the patient's request.
func (s *QueueService) Cancel(ctx context.Context, entryID, doctorID, reason string) error {
	if reason == "" {
		reason = "Cancelled by patient"
	}

	target, err := s.Ledger.FindEntry(entryID)
	if err != nil {
		return err
	}
	if target.Status != models.StatusWaiting {
		return fmt.Errorf("entry %s is %s, only waiting entries can be cancelled: %w", entryID, target.Status, status.ErrValidation)
	}

	_, err = s.retryTransition(ctx, "cancel", doctorID, func(doctor *models.Doctor, entries []models.QueueEntry) (engine.Result, map[string]int) {
		res, engErr := engine.Cancel(entries, entryID, reason, doctor.AvgConsultMinutes)
		if engErr != nil {
			return engine.Result{NoOp: true}, nil
		}
		return res, snapshotRevisions(entries)
	}, nil)
	if err != nil {
		return err
	}
	s.Redis.Del(ctx, lastActionKey(doctorID))
	return nil
}

// SetAvailability toggles whether the doctor accepts new joins.
func (s *QueueService) SetAvailability(ctx context.Context, doctorID string, available bool) error {
	if err := s.Ledger.SetDoctorFlag(doctorID, "available", available); err != nil {
		return err
	}
	s.Notifier.QueueChanged(ctx, doctorID, "availability_changed", nil)
	return nil
}

// GetQueueStatus returns the doctor's ordered queue plus the doctor
// summary, after lazily reclassifying overdue scheduled entries.
func (s *QueueService) GetQueueStatus(ctx context.Context, doctorID string) ([]models.QueueEntry, *models.Doctor, error) {
	s.sweepOverdue(ctx, doctorID)

	doctor, err := s.Ledger.FindDoctor(doctorID)
	if err != nil {
		return nil, nil, err
	}
	entries, err := s.Ledger.ListQueue(doctorID)
	if err != nil {
		return nil, nil, err
	}
	return entries, doctor, nil
}

// GetPatientStatus returns the patient's current entry, applying the lazy
// no-show check against the appointment window first.
func (s *QueueService) GetPatientStatus(ctx context.Context, patientID string) (*models.QueueEntry, error) {
	entry, err := s.Ledger.FindPatientCurrent(patientID)
	if err != nil {
		return nil, err
	}

	if s.overdue(*entry, time.Now()) {
		s.sweepOverdue(ctx, entry.DoctorID)
		refreshed, err := s.Ledger.FindEntry(entry.ID)
		if err == nil {
			return refreshed, nil
		}
	}
	return entry, nil
}

// CachedPosition returns the Redis position cache entry, -1 when absent.
func (s *QueueService) CachedPosition(ctx context.Context, doctorID, patientID string) int {
	position, err := s.Redis.Get(ctx, positionKey(doctorID, patientID)).Int()
	if err != nil {
		return -1
	}
	return position
}

// sweepOverdue reclassifies waiting entries whose scheduled time passed
// the grace period. Evaluated on read; there is no background scheduler,
// staleness is bounded by client polling.
func (s *QueueService) sweepOverdue(ctx context.Context, doctorID string) {
	entries, err := s.Ledger.ListQueue(doctorID)
	if err != nil {
		return
	}
	now := time.Now()

	for _, e := range entries {
		if !s.overdue(e, now) {
			continue
		}
		entryID := e.ID
		_, err := s.retryTransition(ctx, "auto_no_show", doctorID, func(doctor *models.Doctor, fresh []models.QueueEntry) (engine.Result, map[string]int) {
			res, engErr := engine.Expire(fresh, entryID, "Missed appointment window", doctor.AvgConsultMinutes)
			if engErr != nil {
				return engine.Result{NoOp: true}, nil
			}
			return res, snapshotRevisions(fresh)
		}, nil)
		if err != nil {
			slog.Warn("auto no-show sweep failed", "entry", entryID, "error", err)
			continue
		}
		s.Redis.Del(ctx, lastActionKey(doctorID))
	}
}

func (s *QueueService) overdue(e models.QueueEntry, now time.Time) bool {
	return e.Status == models.StatusWaiting &&
		!e.ScheduledAt.IsZero() &&
		now.After(e.ScheduledAt.Add(s.Config.NoShowGracePeriod))
}

// retryTransition runs the read-compute-write cycle until the batch
// commits, the engine reports a no-op, or the retry budget is spent.
// Commits store the undo record when the engine produced one, then
// refresh caches and notify subscribers.
func (s *QueueService) retryTransition(
	ctx context.Context,
	operation, doctorID string,
	compute func(*models.Doctor, []models.QueueEntry) (engine.Result, map[string]int),
	changed **models.QueueEntry,
) (int, error) {
	start := time.Now()
	defer func() {
		monitoring.ObserveTransitionDuration(operation, time.Since(start).Seconds())
	}()

	for attempt := 0; attempt <= s.Config.TransitionMaxRetries; attempt++ {
		doctor, err := s.Ledger.FindDoctor(doctorID)
		if err != nil {
			return 0, err
		}
		entries, err := s.Ledger.ListQueue(doctorID)
		if err != nil {
			return 0, err
		}

		res, revs := compute(doctor, entries)
		if res.NoOp {
			monitoring.TrackTransition(operation, doctorID, "noop")
			return doctor.CurrentQueueCount, nil
		}

		remaining, err := s.Ledger.ApplyTransition(doctorID, revs, res.Updates)
		if errors.Is(err, status.ErrConflict) {
			monitoring.TrackConflictRetry(operation)
			slog.Info("transition conflict, retrying from fresh read", "operation", operation, "doctor", doctorID, "attempt", attempt+1)
			continue
		}
		if err != nil {
			monitoring.TrackTransition(operation, doctorID, "error")
			return 0, err
		}

		if res.Action != nil {
			s.storeAction(ctx, *res.Action)
		}
		if changed != nil {
			*changed = res.NextActive
		}

		s.afterCommit(ctx, doctorID, operation, res.NextActive, entries)
		monitoring.TrackTransition(operation, doctorID, "success")
		return remaining, nil
	}

	monitoring.TrackTransition(operation, doctorID, "conflict")
	return 0, fmt.Errorf("%s for doctor %s: %w", operation, doctorID, status.ErrConflict)
}

func (s *QueueService) storeAction(ctx context.Context, action models.QueueAction) {
	data, err := json.Marshal(action)
	if err != nil {
		return
	}
	if err := s.Redis.Set(ctx, lastActionKey(action.DoctorID), data, s.Config.UndoWindow).Err(); err != nil {
		slog.Warn("failed to store undo record", "doctor", action.DoctorID, "error", err)
	}
}

// afterCommit refreshes the per-patient position cache and pushes change
// notifications. Best effort: the committed ledger state is already the
// source of truth.
func (s *QueueService) afterCommit(ctx context.Context, doctorID, operation string, changed *models.QueueEntry, prior []models.QueueEntry) {
	s.Notifier.QueueChanged(ctx, doctorID, operation, changed)

	entries, err := s.Ledger.ListQueue(doctorID)
	if err != nil {
		return
	}
	for _, e := range entries {
		if e.Status.Queued() {
			s.Redis.Set(ctx, positionKey(doctorID, e.PatientID), e.Position, s.Config.PositionCacheTTL)
		} else {
			s.Redis.Del(ctx, positionKey(doctorID, e.PatientID))
		}
		s.Notifier.PatientUpdate(ctx, e)
	}

	// Entries that went terminal drop out of the listing entirely; purge
	// their cached positions rather than serving stale data until the TTL.
	for _, patientID := range stalePositionPatients(prior, entries) {
		s.Redis.Del(ctx, positionKey(doctorID, patientID))
	}

	monitoring.SetQueueLength(doctorID, len(queuedOnly(entries)))
}

// stalePositionPatients returns the patients present in the pre-transition
// snapshot but absent from the post-commit listing.
func stalePositionPatients(prior, current []models.QueueEntry) []string {
	seen := make(map[string]bool, len(current))
	for _, e := range current {
		seen[e.PatientID] = true
	}

	var stale []string
	for _, e := range prior {
		if !seen[e.PatientID] {
			stale = append(stale, e.PatientID)
		}
	}
	return stale
}

func queuedOnly(entries []models.QueueEntry) []models.QueueEntry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.Status.Queued() {
			out = append(out, e)
		}
	}
	return out
}

func snapshotRevisions(entries []models.QueueEntry) map[string]int {
	revs := make(map[string]int, len(entries))
	for _, e := range entries {
		revs[e.ID] = e.Revision
	}
	return revs
}
