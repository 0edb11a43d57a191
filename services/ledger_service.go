package services

import (
	"fmt"
	"strconv"

	"hospital-queue/internal/engine"
	"hospital-queue/internal/status"
	"hospital-queue/models"
	"hospital-queue/utils"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/pocketbase/pocketbase/tools/types"
)

const (
	CollectionDoctors     = "doctors"
	CollectionDoctorQueue = "doctor_queue"
)

// LedgerService is the authoritative store for queue entries. All writes
// for one transition go through a single database transaction; a revision
// counter on every entry turns lost-update races into status.ErrConflict
// so callers can retry from a fresh read.
type LedgerService struct {
	app core.App
}

func NewLedgerService(app core.App) *LedgerService {
	return &LedgerService{app: app}
}

func (s *LedgerService) FindDoctor(doctorID string) (*models.Doctor, error) {
	rec, err := s.app.FindRecordById(CollectionDoctors, doctorID)
	if err != nil {
		return nil, fmt.Errorf("doctor %s: %w", doctorID, status.ErrNotFound)
	}
	doc := doctorFromRecord(rec)
	return &doc, nil
}

func (s *LedgerService) ListDoctors(specialty string, availableOnly bool) ([]models.Doctor, error) {
	filter := "id != ''"
	params := dbx.Params{}
	if specialty != "" {
		filter += " && specialization = {:specialty}"
		params["specialty"] = specialty
	}
	if availableOnly {
		filter += " && available = true"
	}

	recs, err := s.app.FindRecordsByFilter(CollectionDoctors, filter, "-rating", 0, 0, params)
	if err != nil {
		return nil, err
	}

	doctors := make([]models.Doctor, 0, len(recs))
	for _, rec := range recs {
		doctors = append(doctors, doctorFromRecord(rec))
	}
	return doctors, nil
}

// ListQueue returns the doctor's non-terminal entries: the active entry
// first (if any), then waiting and re-enter entries by position.
func (s *LedgerService) ListQueue(doctorID string) ([]models.QueueEntry, error) {
	recs, err := s.app.FindRecordsByFilter(
		CollectionDoctorQueue,
		"doctor_id = {:doctor} && (status = 'waiting' || status = 're-enter' || status = 'active')",
		"position",
		0, 0,
		dbx.Params{"doctor": doctorID},
	)
	if err != nil {
		return nil, err
	}

	entries := make([]models.QueueEntry, 0, len(recs))
	for _, rec := range recs {
		entries = append(entries, entryFromRecord(rec))
	}
	return entries, nil
}

func (s *LedgerService) FindEntry(entryID string) (*models.QueueEntry, error) {
	rec, err := s.app.FindRecordById(CollectionDoctorQueue, entryID)
	if err != nil {
		return nil, fmt.Errorf("queue entry %s: %w", entryID, status.ErrNotFound)
	}
	entry := entryFromRecord(rec)
	return &entry, nil
}

// FindPatientCurrent returns the patient's latest non-terminal entry, or
// ErrNotFound when the patient is not queued anywhere.
func (s *LedgerService) FindPatientCurrent(patientID string) (*models.QueueEntry, error) {
	recs, err := s.app.FindRecordsByFilter(
		CollectionDoctorQueue,
		"patient_id = {:patient} && (status = 'waiting' || status = 're-enter' || status = 'active')",
		"-created",
		1, 0,
		dbx.Params{"patient": patientID},
	)
	if err != nil || len(recs) == 0 {
		return nil, fmt.Errorf("patient %s has no active queue entry: %w", patientID, status.ErrNotFound)
	}
	entry := entryFromRecord(recs[0])
	return &entry, nil
}

// JoinRequest carries everything Append needs to admit a patient.
type JoinRequest struct {
	DoctorID      string
	PatientID     string
	PatientName   string
	HealthSummary string
	Notes         string
	ScheduledAt   types.DateTime
}

// Append admits a patient to the doctor's queue: allocates the next token
// number, assigns the tail position and writes the entry plus the updated
// doctor queue count in one transaction.
func (s *LedgerService) Append(req JoinRequest) (*models.QueueEntry, error) {
	var created models.QueueEntry

	err := s.app.RunInTransaction(func(txApp core.App) error {
		doctorRec, err := txApp.FindRecordById(CollectionDoctors, req.DoctorID)
		if err != nil {
			return fmt.Errorf("doctor %s: %w", req.DoctorID, status.ErrNotFound)
		}
		if !doctorRec.GetBool("available") {
			return status.ErrDoctorUnavailable
		}

		tokenNumber, err := nextTokenNumber(txApp, req.DoctorID)
		if err != nil {
			return err
		}

		position := countQueued(txApp, req.DoctorID) + 1
		avg := doctorRec.GetInt("avg_consult_time_minutes")

		collection, err := txApp.FindCollectionByNameOrId(CollectionDoctorQueue)
		if err != nil {
			return err
		}

		rec := core.NewRecord(collection)
		rec.Set("doctor_id", req.DoctorID)
		rec.Set("patient_id", req.PatientID)
		rec.Set("patient_name", req.PatientName)
		rec.Set("token_number", tokenNumber)
		rec.Set("token", utils.FormatToken(tokenNumber))
		rec.Set("status", string(models.StatusWaiting))
		rec.Set("position", position)
		rec.Set("estimated_wait_minutes", position*avg)
		rec.Set("health_summary", req.HealthSummary)
		rec.Set("notes", req.Notes)
		rec.Set("scheduled_at", req.ScheduledAt)
		rec.Set("revision", 1)
		if err := txApp.Save(rec); err != nil {
			return err
		}

		doctorRec.Set("current_queue_count", position)
		if err := txApp.Save(doctorRec); err != nil {
			return err
		}

		created = entryFromRecord(rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// ApplyTransition writes an engine result as one batch. revs maps entry id
// to the revision observed in the snapshot the engine computed from; any
// entry that moved past its snapshot revision fails the whole batch with
// ErrConflict and nothing is applied. Returns the remaining queued count.
func (s *LedgerService) ApplyTransition(doctorID string, revs map[string]int, updates []engine.Update) (int, error) {
	remaining := 0

	err := s.app.RunInTransaction(func(txApp core.App) error {
		now := types.NowDateTime()

		for _, u := range updates {
			rec, err := txApp.FindRecordById(CollectionDoctorQueue, u.EntryID)
			if err != nil {
				return fmt.Errorf("queue entry %s: %w", u.EntryID, status.ErrNotFound)
			}
			if expected, ok := revs[u.EntryID]; !ok || rec.GetInt("revision") != expected {
				return status.ErrConflict
			}

			rec.Set("status", string(u.Status))
			rec.Set("position", u.Position)
			rec.Set("estimated_wait_minutes", u.EstimatedWait)
			if u.CancellationReason != "" {
				rec.Set("cancellation_reason", u.CancellationReason)
			}
			if u.StampStartedAt {
				rec.Set("started_at", now)
			}
			if u.StampCompletedAt {
				rec.Set("completed_at", now)
			}
			if u.ClearStartedAt {
				rec.Set("started_at", "")
			}
			if u.ClearCompletedAt {
				rec.Set("completed_at", "")
			}
			if u.ClearCancellation {
				rec.Set("cancellation_reason", "")
			}
			rec.Set("revision", rec.GetInt("revision")+1)

			if err := txApp.Save(rec); err != nil {
				return err
			}
		}

		doctorRec, err := txApp.FindRecordById(CollectionDoctors, doctorID)
		if err != nil {
			return fmt.Errorf("doctor %s: %w", doctorID, status.ErrNotFound)
		}
		remaining = countQueued(txApp, doctorID)
		doctorRec.Set("current_queue_count", remaining)
		return txApp.Save(doctorRec)
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// SetDoctorFlag flips a doctor-level boolean (available, frozen).
func (s *LedgerService) SetDoctorFlag(doctorID, field string, value bool) error {
	rec, err := s.app.FindRecordById(CollectionDoctors, doctorID)
	if err != nil {
		return fmt.Errorf("doctor %s: %w", doctorID, status.ErrNotFound)
	}
	rec.Set(field, value)
	return s.app.Save(rec)
}

func nextTokenNumber(txApp core.App, doctorID string) (int, error) {
	row := dbx.NullStringMap{}
	err := txApp.DB().
		NewQuery("SELECT COALESCE(MAX(token_number), 0) AS max_token FROM doctor_queue WHERE doctor_id = {:doctor}").
		Bind(dbx.Params{"doctor": doctorID}).
		One(&row)
	if err != nil {
		return 0, err
	}
	maxToken, _ := strconv.Atoi(row["max_token"].String)
	return maxToken + 1, nil
}

func countQueued(txApp core.App, doctorID string) int {
	row := dbx.NullStringMap{}
	err := txApp.DB().
		NewQuery("SELECT COUNT(*) AS cnt FROM doctor_queue WHERE doctor_id = {:doctor} AND status IN ('waiting', 're-enter')").
		Bind(dbx.Params{"doctor": doctorID}).
		One(&row)
	if err != nil {
		return 0
	}
	cnt, _ := strconv.Atoi(row["cnt"].String)
	return cnt
}

func entryFromRecord(rec *core.Record) models.QueueEntry {
	st, _ := models.ParseStatus(rec.GetString("status"))
	return models.QueueEntry{
		ID:                 rec.Id,
		DoctorID:           rec.GetString("doctor_id"),
		PatientID:          rec.GetString("patient_id"),
		PatientName:        rec.GetString("patient_name"),
		TokenNumber:        rec.GetInt("token_number"),
		Token:              rec.GetString("token"),
		Status:             st,
		Position:           rec.GetInt("position"),
		EstimatedWait:      rec.GetInt("estimated_wait_minutes"),
		HealthSummary:      rec.GetString("health_summary"),
		Notes:              rec.GetString("notes"),
		ScheduledAt:        rec.GetDateTime("scheduled_at").Time(),
		CreatedAt:          rec.GetDateTime("created").Time(),
		StartedAt:          rec.GetDateTime("started_at").Time(),
		CompletedAt:        rec.GetDateTime("completed_at").Time(),
		CancellationReason: rec.GetString("cancellation_reason"),
		Revision:           rec.GetInt("revision"),
	}
}

func doctorFromRecord(rec *core.Record) models.Doctor {
	return models.Doctor{
		ID:                rec.Id,
		Name:              rec.GetString("name"),
		Specialization:    rec.GetString("specialization"),
		Qualification:     rec.GetString("qualification"),
		Experience:        rec.GetString("experience"),
		Rating:            rec.GetFloat("rating"),
		AvgConsultMinutes: rec.GetInt("avg_consult_time_minutes"),
		CurrentQueueCount: rec.GetInt("current_queue_count"),
		Available:         rec.GetBool("available"),
		Frozen:            rec.GetBool("frozen"),
	}
}
