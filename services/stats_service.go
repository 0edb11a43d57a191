package services

import (
	"strconv"
	"time"

	"hospital-queue/models"

	"github.com/pocketbase/dbx"
	"github.com/pocketbase/pocketbase/core"
	"github.com/shopspring/decimal"
)

// StatsService computes the staff dashboard aggregates. Reads only;
// nothing here participates in queue transitions.
type StatsService struct {
	app core.App
}

func NewStatsService(app core.App) *StatsService {
	return &StatsService{app: app}
}

func (s *StatsService) DashboardStats() (models.QueueStats, error) {
	stats := models.QueueStats{AvgServiceTime: "0 mins"}

	stats.Waiting = s.count("SELECT COUNT(*) AS cnt FROM doctor_queue WHERE status IN ('waiting', 're-enter')", nil)
	stats.DoctorsAvailable = s.count("SELECT COUNT(*) AS cnt FROM doctors WHERE available = TRUE", nil)

	startOfDay := time.Now().UTC().Truncate(24 * time.Hour)
	stats.ServedToday = s.count(
		"SELECT COUNT(*) AS cnt FROM doctor_queue WHERE status = 'served' AND completed_at >= {:start}",
		dbx.Params{"start": startOfDay.Format("2006-01-02 15:04:05.000Z")},
	)

	if avg, ok := s.avgServiceMinutes(); ok {
		stats.AvgServiceTime = avg.String() + " mins"
	}
	return stats, nil
}

// avgServiceMinutes averages served consultation durations over the most
// recent completions. Durations are fractional, so the average is kept in
// decimal and rounded to one place for display.
func (s *StatsService) avgServiceMinutes() (decimal.Decimal, bool) {
	recs, err := s.app.FindRecordsByFilter(
		CollectionDoctorQueue,
		"status = 'served' && started_at != '' && completed_at != ''",
		"-completed_at",
		200, 0,
	)
	if err != nil || len(recs) == 0 {
		return decimal.Zero, false
	}

	total := decimal.Zero
	counted := 0
	for _, rec := range recs {
		started := rec.GetDateTime("started_at").Time()
		completed := rec.GetDateTime("completed_at").Time()
		if completed.Before(started) {
			continue
		}
		minutes := decimal.NewFromFloat(completed.Sub(started).Minutes())
		total = total.Add(minutes)
		counted++
	}
	if counted == 0 {
		return decimal.Zero, false
	}
	return total.Div(decimal.NewFromInt(int64(counted))).Round(1), true
}

func (s *StatsService) count(query string, params dbx.Params) int {
	row := dbx.NullStringMap{}
	q := s.app.DB().NewQuery(query)
	if params != nil {
		q = q.Bind(params)
	}
	if err := q.One(&row); err != nil {
		return 0
	}
	cnt, _ := strconv.Atoi(row["cnt"].String)
	return cnt
}
