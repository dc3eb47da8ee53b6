package model

import "time"

// BuildCompletedEvent is broadcast after a build result has been stored.
type BuildCompletedEvent struct {
	BuildID     int64       `json:"build_id"`
	ProjectID   int64       `json:"project_id"`
	UserID      int64       `json:"user_id"`
	Sha         string      `json:"sha"`
	Status      BuildStatus `json:"status"`
	Passed      int         `json:"passed"`
	Failed      int         `json:"failed"`
	Regressions int         `json:"regressions"` // Tests that passed previously and fail now.
	CompletedAt time.Time   `json:"completed_at"`
}
