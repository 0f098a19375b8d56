package core

import "time"

// ReviewerCompletedEvent is published once a reviewer's report was delivered.
type ReviewerCompletedEvent struct {
	BatchKey    string    `json:"batch_key"`
	ReviewerID  string    `json:"reviewer_id"`
	Reviews     int       `json:"reviews"`
	DeliveredAt time.Time `json:"delivered_at"`
}
