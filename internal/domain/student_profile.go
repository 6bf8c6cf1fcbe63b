package domain

import "time"

// StudentProfile is an externally computed learner aggregate. This service
// only reads it.
type StudentProfile struct {
	UserHash             string    `json:"user_hash"`
	CourseID             string    `json:"course_id"`
	RiskScore            int       `json:"risk_score"`
	EngagementLevel      string    `json:"engagement_level"`
	LastActivity         time.Time `json:"last_activity"`
	TotalTickets         int       `json:"total_tickets"`
	ResolvedTickets      int       `json:"resolved_tickets"`
	AvgResolutionMinutes float64   `json:"avg_resolution_time"`
	PreferredLanguage    string    `json:"preferred_language"`
	LearningProgress     float64   `json:"learning_progress"`
}
