package service

import (
	"context"
	"log/slog"

	"project-reaper/internal/model"
	"project-reaper/internal/repository"
)

const ActionRemoveProject = "remove_project"

// Policy answers permission questions. It fails closed: a lookup error denies.
type Policy struct {
	members repository.MemberReader
}

func NewPolicy(members repository.MemberReader) *Policy {
	return &Policy{members: members}
}

func (p *Policy) Can(ctx context.Context, actor model.Actor, action string, project model.Project) bool {
	if actor.UserID == "" {
		return false
	}

	switch action {
	case ActionRemoveProject:
		if actor.IsAdmin() || actor.UserID == project.CreatorID {
			return true
		}

		level, err := p.members.AccessLevel(ctx, project.ID, actor.UserID)
		if err != nil {
			slog.Error("access level lookup failed", "project_id", project.ID, "user_id", actor.UserID, "error", err)
			return false
		}
		return level >= model.AccessOwner
	default:
		return false
	}
}
