package models

import "time"

// JobKind distinguishes login-only jobs from full comment runs
type JobKind string

const (
	JobLogin JobKind = "login"
	JobRun   JobKind = "run"
)

// JobStatus is a snapshot of a profile's job slot
type JobStatus struct {
	Profile     string    `json:"profile,omitempty"`
	Running     bool      `json:"running"`
	CurrentTask *string   `json:"current_task"`
	RunID       string    `json:"run_id,omitempty"`
	Kind        JobKind   `json:"kind,omitempty"`
	StartedAt   time.Time `json:"started_at,omitzero"`
}

// RunRequest is the payload for POST /run
type RunRequest struct {
	PostURL     string `json:"post_url"`
	Comment     string `json:"comment"`
	Count       int    `json:"count,omitempty"`
	Headless    *bool  `json:"headless,omitempty"`
	ProfileName string `json:"profile_name"`
}

// LoginRequest is the payload for POST /login
type LoginRequest struct {
	ProfileName string `json:"profile_name"`
	Headless    *bool  `json:"headless,omitempty"`
}
