package models

import "time"

// PurgeTask is a durable, due-dated instruction to remove a delivery's
// artifacts from their destination channel. Tasks have no cancelled state:
// once enqueued, a task is executed at most once and then removed, whatever
// the per-artifact outcomes.
type PurgeTask struct {
	ID                string    `json:"id"`
	TargetChannel     string    `json:"targetChannel"`
	ArtifactRefs      []string  `json:"artifactRefs"`
	DueAt             time.Time `json:"dueAt"`
	SourcePayloadCode string    `json:"sourcePayloadCode"`
	CreatedAt         time.Time `json:"createdAt"`
}

// Due reports whether the task should be executed at the given instant.
func (t *PurgeTask) Due(now time.Time) bool {
	return !t.DueAt.After(now)
}
