// Package engine holds the queue transition rules. Every function is a
// pure computation over a snapshot of one doctor's non-terminal entries;
// the ledger persists the resulting updates as a single batch, so a
// conflicting write can always be retried by recomputing from a fresh
// snapshot.
package engine

import (
	"errors"
	"sort"
	"time"

	"hospital-queue/models"
)

// Update is one per-entry write produced by a transition.
type Update struct {
	EntryID            string
	Status             models.Status
	Position           int
	EstimatedWait      int
	CancellationReason string
	StampStartedAt     bool
	StampCompletedAt   bool
	ClearStartedAt     bool
	ClearCompletedAt   bool
	ClearCancellation  bool
}

// Result is the outcome of one transition. NoOp results carry no updates
// and must not be treated as errors (serving an empty queue, stale undo).
type Result struct {
	NoOp       bool
	Updates    []Update
	NextActive *models.QueueEntry
	Action     *models.QueueAction
}

var ErrInvalidTransition = errors.New("engine: entry status does not allow this transition")

// SelectNext picks the entry to serve next: the smallest token number in
// the re-enter tier, falling back to the smallest token number among
// waiting entries. Returns nil when nothing is queued.
func SelectNext(entries []models.QueueEntry) *models.QueueEntry {
	var best *models.QueueEntry
	for i := range entries {
		e := &entries[i]
		if !e.Status.Queued() {
			continue
		}
		if best == nil || less(*e, *best) {
			best = e
		}
	}
	if best == nil {
		return nil
	}
	picked := *best
	return &picked
}

func less(a, b models.QueueEntry) bool {
	if a.Status.Tier() != b.Status.Tier() {
		return a.Status.Tier() < b.Status.Tier()
	}
	if a.TokenNumber != b.TokenNumber {
		return a.TokenNumber < b.TokenNumber
	}
	// Token numbers are unique per doctor; creation time only matters
	// across re-inserted history.
	return a.CreatedAt.Before(b.CreatedAt)
}

// MarkServed terminates the given entry, promotes the next patient
// (unless the queue is frozen) and renumbers the remainder. The target is
// normally the active entry, but a waiting or re-entered entry can be
// served directly, which is how a fresh queue gets its first promotion.
func MarkServed(entries []models.QueueEntry, entryID string, avgConsultMinutes int, frozen bool, now time.Time) Result {
	return terminateActive(entries, entryID, models.StatusServed, models.ActionServed, "", avgConsultMinutes, frozen, now)
}

// MarkNoShow is MarkServed with a no-show terminal status and an optional
// reason recorded on the entry.
func MarkNoShow(entries []models.QueueEntry, entryID, reason string, avgConsultMinutes int, frozen bool, now time.Time) Result {
	return terminateActive(entries, entryID, models.StatusNoShow, models.ActionNoShow, reason, avgConsultMinutes, frozen, now)
}

func terminateActive(entries []models.QueueEntry, entryID string, terminal models.Status, kind models.ActionKind, reason string, avg int, frozen bool, now time.Time) Result {
	// Missing targets and terminal targets are no-ops: the entry was
	// already handled, typically by a concurrent staff action.
	target := find(entries, entryID)
	if target == nil || (target.Status != models.StatusActive && !target.Status.Queued()) {
		return Result{NoOp: true}
	}

	res := Result{
		Updates: []Update{{
			EntryID:            target.ID,
			Status:             terminal,
			CancellationReason: reason,
			StampCompletedAt:   true,
		}},
		Action: &models.QueueAction{
			Kind:       kind,
			DoctorID:   target.DoctorID,
			EntryID:    target.ID,
			RecordedAt: now,
		},
	}

	pool := remove(queued(entries), target.ID)
	if !frozen {
		if next := SelectNext(pool); next != nil {
			res.Action.PromotedID = next.ID
			res.Action.PromotedPrevStatus = next.Status
			res.Updates = append(res.Updates, Update{
				EntryID:        next.ID,
				Status:         models.StatusActive,
				StampStartedAt: true,
			})
			pool = remove(pool, next.ID)

			promoted := *next
			promoted.Status = models.StatusActive
			promoted.Position = 0
			promoted.EstimatedWait = 0
			res.NextActive = &promoted
		}
	}

	res.Updates = append(res.Updates, renumber(pool, avg)...)
	return res
}

// ReEnter admits a no-show entry back into the queue with priority over
// normal waiting entries. It does not promote anyone; the entry is only
// preferred by the next selection.
func ReEnter(entries []models.QueueEntry, target models.QueueEntry, avgConsultMinutes int) (Result, error) {
	if target.Status != models.StatusNoShow {
		return Result{}, ErrInvalidTransition
	}

	res := Result{
		Updates: []Update{{
			EntryID:           target.ID,
			Status:            models.StatusReEnter,
			ClearCompletedAt:  true,
			ClearCancellation: true,
		}},
	}

	pool := queued(entries)
	target.Status = models.StatusReEnter
	pool = append(pool, target)
	res.Updates = mergeRenumber(res.Updates, renumber(pool, avgConsultMinutes))
	return res, nil
}

// Cancel withdraws a waiting entry at the patient's request.
func Cancel(entries []models.QueueEntry, entryID, reason string, avgConsultMinutes int) (Result, error) {
	return reclassifyWaiting(entries, entryID, models.StatusCancelled, reason, avgConsultMinutes)
}

// Expire reclassifies a waiting entry whose appointment window has passed
// to no-show. The caller decides expiry; this only applies it.
func Expire(entries []models.QueueEntry, entryID, reason string, avgConsultMinutes int) (Result, error) {
	return reclassifyWaiting(entries, entryID, models.StatusNoShow, reason, avgConsultMinutes)
}

func reclassifyWaiting(entries []models.QueueEntry, entryID string, terminal models.Status, reason string, avg int) (Result, error) {
	target := find(entries, entryID)
	if target == nil || target.Status != models.StatusWaiting {
		return Result{}, ErrInvalidTransition
	}

	res := Result{
		Updates: []Update{{
			EntryID:            target.ID,
			Status:             terminal,
			CancellationReason: reason,
			StampCompletedAt:   true,
		}},
	}
	res.Updates = append(res.Updates, renumber(remove(queued(entries), target.ID), avg)...)
	return res, nil
}

// PromoteNext fills an empty consultation slot, used when a frozen queue
// resumes. No-op when someone is already active or nothing is queued.
func PromoteNext(entries []models.QueueEntry, avgConsultMinutes int) Result {
	for i := range entries {
		if entries[i].Status == models.StatusActive {
			return Result{NoOp: true}
		}
	}
	next := SelectNext(entries)
	if next == nil {
		return Result{NoOp: true}
	}

	promoted := *next
	promoted.Status = models.StatusActive
	promoted.Position = 0
	promoted.EstimatedWait = 0

	res := Result{
		Updates: []Update{{
			EntryID:        next.ID,
			Status:         models.StatusActive,
			StampStartedAt: true,
		}},
		NextActive: &promoted,
	}
	res.Updates = append(res.Updates, renumber(remove(queued(entries), next.ID), avgConsultMinutes)...)
	return res
}

// Undo reverses the single most recent serve/no-show. target is the
// terminated entry the action recorded (it is terminal, so it is not part
// of the active-set snapshot). A stale action — the target no longer holds
// the recorded terminal status, or the promoted entry is no longer active —
// is a no-op.
func Undo(entries []models.QueueEntry, target models.QueueEntry, action models.QueueAction, avgConsultMinutes int) Result {
	if target.ID != action.EntryID || target.Status != terminalFor(action.Kind) {
		return Result{NoOp: true}
	}

	pool := queued(entries)
	res := Result{
		Updates: []Update{{
			EntryID:           target.ID,
			Status:            models.StatusActive,
			ClearCompletedAt:  true,
			ClearCancellation: true,
		}},
	}

	if action.PromotedID != "" {
		promoted := find(entries, action.PromotedID)
		if promoted == nil || promoted.Status != models.StatusActive {
			return Result{NoOp: true}
		}
		res.Updates = append(res.Updates, Update{
			EntryID:        promoted.ID,
			Status:         action.PromotedPrevStatus,
			ClearStartedAt: true,
		})
		demoted := *promoted
		demoted.Status = action.PromotedPrevStatus
		pool = append(pool, demoted)
	} else if hasActive(entries) {
		// Someone else became active since the action was recorded.
		return Result{NoOp: true}
	}

	restored := target
	restored.Status = models.StatusActive
	restored.Position = 0
	restored.EstimatedWait = 0
	res.NextActive = &restored

	res.Updates = mergeRenumber(res.Updates, renumber(pool, avgConsultMinutes))
	return res
}

func terminalFor(kind models.ActionKind) models.Status {
	if kind == models.ActionNoShow {
		return models.StatusNoShow
	}
	return models.StatusServed
}

// renumber assigns contiguous 1..N positions over the queued tier order
// and recomputes each wait estimate.
func renumber(pool []models.QueueEntry, avg int) []Update {
	sort.SliceStable(pool, func(i, j int) bool { return less(pool[i], pool[j]) })

	updates := make([]Update, 0, len(pool))
	for i, e := range pool {
		updates = append(updates, Update{
			EntryID:       e.ID,
			Status:        e.Status,
			Position:      i + 1,
			EstimatedWait: (i + 1) * avg,
		})
	}
	return updates
}

// mergeRenumber folds position assignments into already-emitted status
// updates for the same entry, so the batch carries one update per entry.
func mergeRenumber(updates, positions []Update) []Update {
	for _, p := range positions {
		merged := false
		for i := range updates {
			if updates[i].EntryID == p.EntryID {
				updates[i].Position = p.Position
				updates[i].EstimatedWait = p.EstimatedWait
				merged = true
				break
			}
		}
		if !merged {
			updates = append(updates, p)
		}
	}
	return updates
}

func queued(entries []models.QueueEntry) []models.QueueEntry {
	out := make([]models.QueueEntry, 0, len(entries))
	for _, e := range entries {
		if e.Status.Queued() {
			out = append(out, e)
		}
	}
	return out
}

func find(entries []models.QueueEntry, id string) *models.QueueEntry {
	for i := range entries {
		if entries[i].ID == id {
			return &entries[i]
		}
	}
	return nil
}

func remove(entries []models.QueueEntry, id string) []models.QueueEntry {
	out := entries[:0]
	for _, e := range entries {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}

func hasActive(entries []models.QueueEntry) bool {
	for _, e := range entries {
		if e.Status == models.StatusActive {
			return true
		}
	}
	return false
}
