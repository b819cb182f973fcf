package model

import (
	"fmt"
	"time"
)

// ProjectState tracks where a project is in its deletion life cycle.
type ProjectState string

const (
	ProjectActive          ProjectState = "active"
	ProjectPendingDeletion ProjectState = "pending_deletion"
	ProjectFailed          ProjectState = "failed"
)

var projectTransitions = map[ProjectState][]ProjectState{
	ProjectActive:          {ProjectPendingDeletion},
	ProjectFailed:          {ProjectPendingDeletion},
	ProjectPendingDeletion: {ProjectFailed},
}

// CanTransition reports whether a project may move from s to next.
// Removal of the row is not a state and is always allowed from pending_deletion.
// The zero value counts as active.
func (s ProjectState) CanTransition(next ProjectState) bool {
	if s == "" {
		s = ProjectActive
	}
	for _, allowed := range projectTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s ProjectState) Valid() bool {
	switch s {
	case ProjectActive, ProjectPendingDeletion, ProjectFailed:
		return true
	}
	return false
}

// RepositorySuffix is appended to every repository path on disk.
const RepositorySuffix = ".git"

// Project is the entity owning database rows and on-disk repositories.
type Project struct {
	ID           int64        `json:"id"`
	Name         string       `json:"name"`
	Path         string       `json:"path"`
	CreatorID    string       `json:"creator_id"`
	ForkedFromID int64        `json:"forked_from_id,omitempty"`
	State        ProjectState `json:"state"`
	DeleteError  string       `json:"delete_error,omitempty"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

func (p Project) PendingDelete() bool {
	return p.State == ProjectPendingDeletion
}

// DiskPath is the repository location relative to the repository root,
// without the ".git" suffix.
func (p Project) DiskPath() string {
	return p.Path
}

func (p Project) WikiPath() string {
	return p.Path + ".wiki"
}

func (p Project) String() string {
	return fmt.Sprintf("%s (%d)", p.Path, p.ID)
}

// DestroyOptions tune a single destroy call.
type DestroyOptions struct {
	// SkipRepo leaves repositories in place; set when an enclosing
	// user or group removal already handles them.
	SkipRepo bool `json:"skip_repo"`
}

// Access levels on project_members.access_level.
const (
	AccessGuest      = 10
	AccessReporter   = 20
	AccessDeveloper  = 30
	AccessMaintainer = 40
	AccessOwner      = 50
)

type Member struct {
	ProjectID   int64  `json:"project_id"`
	UserID      string `json:"user_id"`
	AccessLevel int    `json:"access_level"`
}

type ForkLink struct {
	ForkedToID   int64 `json:"forked_to_id"`
	ForkedFromID int64 `json:"forked_from_id"`
}
