package models

import (
	"fmt"
	"time"
)

// RunKind names what a pipeline invocation does
type RunKind string

const (
	RunScheduled     RunKind = "scheduled"
	RunBackfill      RunKind = "backfill"
	RunGroups        RunKind = "groups"
	RunSyncFollowing RunKind = "sync_following"
	RunValidate      RunKind = "validate"

	// RunValidateFacebook probes the Facebook session
	RunValidateFacebook RunKind = "validate_facebook"
)

// Platform returns the platform a run kind talks to
func (k RunKind) Platform() Platform {
	if k == RunGroups || k == RunValidateFacebook {
		return PlatformFacebook
	}
	return PlatformInstagram
}

// ParseRunKind validates a run kind read from storage or flags
func ParseRunKind(s string) (RunKind, error) {
	switch k := RunKind(s); k {
	case RunScheduled, RunBackfill, RunGroups, RunSyncFollowing, RunValidate, RunValidateFacebook:
		return k, nil
	default:
		return "", fmt.Errorf("unknown run kind: %q", s)
	}
}

// RunStatus is the lifecycle state of a RunRecord
type RunStatus string

const (
	RunPending RunStatus = "pending"
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// RunRecord is the persisted trace of one pipeline invocation
type RunRecord struct {
	ID            int64      `json:"id"`
	Kind          RunKind    `json:"kind"`
	Since         *time.Time `json:"since,omitempty"`
	Status        RunStatus  `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	NewPostCount  int        `json:"new_post_count"`
	NewStoryCount int        `json:"new_story_count"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	Log           string     `json:"log,omitempty"`
}

// RunCounts are the aggregate totals written when a run finishes
type RunCounts struct {
	NewPosts   int
	NewStories int
}
