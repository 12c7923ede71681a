package models

import "time"

// Artifact is a generated media file persisted on local storage.
type Artifact struct {
	Path      string        `json:"path"`
	Size      int64         `json:"size"`
	MIMEType  string        `json:"mime_type,omitempty"`
	Prompt    string        `json:"prompt"`
	Model     string        `json:"model"`
	TaskID    string        `json:"task_id,omitempty"`
	SourceURL string        `json:"source_url,omitempty"`
	Elapsed   time.Duration `json:"-"`
}

// Sidecar is the JSON document written next to an artifact for human inspection.
type Sidecar struct {
	RunID          string    `json:"run_id"`
	Kind           string    `json:"kind"`
	Prompt         string    `json:"prompt"`
	Model          string    `json:"model"`
	TaskID         string    `json:"task_id,omitempty"`
	SourceURL      string    `json:"source_url,omitempty"`
	File           string    `json:"file"`
	Bytes          int64     `json:"bytes"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	Task           *Task     `json:"task,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}
