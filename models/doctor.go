package models

type Doctor struct {
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	Specialization    string  `json:"specialization"`
	Qualification     string  `json:"qualification"`
	Experience        string  `json:"experience"`
	Rating            float64 `json:"rating"`
	AvgConsultMinutes int     `json:"avg_consult_time_minutes"`
	CurrentQueueCount int     `json:"current_queue_count"`
	Available         bool    `json:"available"`
	Frozen            bool    `json:"frozen"`
}

// QueueStats is the staff dashboard summary.
type QueueStats struct {
	Waiting          int    `json:"waiting"`
	ServedToday      int    `json:"served_today"`
	DoctorsAvailable int    `json:"doctors_available"`
	AvgServiceTime   string `json:"avg_service_time"`
}
