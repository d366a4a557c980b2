package platform

import "time"

// Application is a deployable unit on the platform.
type Application struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Version is an immutable snapshot of an application.
type Version struct {
	ID            string    `json:"id"`
	ApplicationID string    `json:"application_id"`
	Name          string    `json:"name"`
	CreatedAt     time.Time `json:"created_at"`
}

// Run is one execution of an application version.
type Run struct {
	ID         string     `json:"id"`
	VersionID  string     `json:"version_id"`
	Status     string     `json:"status"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// ItemResult is the per-item outcome of a run.
type ItemResult struct {
	ID     string         `json:"id"`
	RunID  string         `json:"run_id"`
	ItemID string         `json:"item_id"`
	Status string         `json:"status"`
	Output map[string]any `json:"output,omitempty"`
}
