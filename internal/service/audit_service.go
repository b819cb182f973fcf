package service

import (
	"context"
	"log/slog"
	"time"

	"project-reaper/internal/model"
	"project-reaper/internal/repository"
)

const (
	AuditProjectDestroy       = "project.destroy"
	AuditProjectDestroyAsync  = "project.destroy_async"
	AuditProjectDestroyFailed = "project.destroy_failed"
)

// AuditService records who did what. Write failures are logged, not returned.
type AuditService struct {
	writer repository.AuditWriter
}

func NewAuditService(writer repository.AuditWriter) *AuditService {
	return &AuditService{writer: writer}
}

func (s *AuditService) Log(ctx context.Context, action string, actor model.Actor, status string, resource string, details any, errText string) {
	if s == nil || s.writer == nil {
		return
	}

	entry := model.AuditEntry{
		Action:     action,
		OccurredAt: time.Now().UTC(),
		Actor:      actor,
		Status:     status,
		Resource:   resource,
		Details:    details,
		Error:      errText,
	}

	if err := s.writer.Log(context.WithoutCancel(ctx), entry); err != nil {
		slog.Error("audit write failed", "action", action, "resource", resource, "error", err)
	}
}
