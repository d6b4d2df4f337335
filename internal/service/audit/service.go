// Package audit persists a trail of completed workflow events for later
// review. Logging failures are reported but never fail the run.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/rxguard/audit-api/internal/model"
	"github.com/rxguard/audit-api/internal/repository"
)

type Service struct {
	repo repository.AuditRepository
}

func NewService(repo repository.AuditRepository) *Service {
	return &Service{repo: repo}
}

// LogRun records the outcome of one workflow turn.
func (s *Service) LogRun(ctx context.Context, run *model.WorkflowRun, action string) {
	if s == nil || s.repo == nil {
		return
	}

	entry := &model.AuditLog{
		ID:        uuid.New(),
		SessionID: run.SessionID,
		PatientID: run.PatientID,
		Action:    action,
		Intent:    run.Intent,
		FlagCount: len(run.SafetyFlags),
		CreatedAt: time.Now(),
	}
	if run.Verdict != nil {
		entry.VerdictStatus = string(run.Verdict.Status)
	}
	if detail, err := json.Marshal(map[string]interface{}{
		"prescriptions": run.Prescriptions,
		"confidence":    run.Confidence,
	}); err == nil {
		entry.Detail = detail
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		log.Error().Err(err).Str("session_id", run.SessionID).Msg("failed to write audit log")
	}
}

// History returns the audit trail for one session.
func (s *Service) History(ctx context.Context, sessionID string) ([]*model.AuditLog, error) {
	return s.repo.ListBySession(ctx, sessionID)
}
