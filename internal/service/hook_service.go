package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"project-reaper/internal/model"
	"project-reaper/internal/repository"
)

// HookService delivers system hooks. Delivery is fire-and-forget.
type HookService struct {
	hooks   repository.HookLister
	client  *http.Client
	timeout time.Duration
	wg      sync.WaitGroup
}

func NewHookService(hooks repository.HookLister, timeout time.Duration) *HookService {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HookService{
		hooks:   hooks,
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
	}
}

// Execute posts eventName for project to every enabled hook in the background.
func (s *HookService) Execute(ctx context.Context, project model.Project, actor model.Actor, eventName string) {
	payload := model.HookEvent{
		EventName:  eventName,
		ProjectID:  project.ID,
		Path:       project.Path,
		Name:       project.Name,
		ActorID:    actor.UserID,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}

	ctx = context.WithoutCancel(ctx)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deliverAll(ctx, payload)
	}()
}

// Wait blocks until every pending delivery has finished.
func (s *HookService) Wait() {
	s.wg.Wait()
}

func (s *HookService) deliverAll(ctx context.Context, payload model.HookEvent) {
	listCtx, cancel := context.WithTimeout(ctx, s.timeout)
	hooks, err := s.hooks.ListEnabled(listCtx)
	cancel()
	if err != nil {
		slog.Error("list system hooks failed", "event", payload.EventName, "error", err)
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("encode hook payload failed", "error", err)
		return
	}

	var wg sync.WaitGroup
	for _, hook := range hooks {
		wg.Add(1)
		go func(hook model.SystemHook) {
			defer wg.Done()
			if err := s.post(ctx, hook, body); err != nil {
				slog.Warn("system hook delivery failed", "hook_id", hook.ID, "event", payload.EventName, "error", err)
			}
		}(hook)
	}
	wg.Wait()
}

func (s *HookService) post(ctx context.Context, hook model.SystemHook, body []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Hook-Event", "System Hook")
	if hook.Token != "" {
		req.Header.Set("X-Hook-Token", hook.Token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
