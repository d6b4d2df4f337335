package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/rxguard/audit-api/internal/model"
	"github.com/rxguard/audit-api/internal/repository"
)

type auditRepository struct {
	BaseRepository
}

func NewAuditRepository(base BaseRepository) repository.AuditRepository {
	return &auditRepository{base}
}

func (r *auditRepository) Create(ctx context.Context, entry *model.AuditLog) error {
	query := `
		INSERT INTO audit_logs (
			id, session_id, patient_id, action, intent,
			verdict_status, flag_count, detail, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	entry.ID = uuid.New()
	entry.CreatedAt = time.Now()

	_, err := r.db.ExecContext(ctx, query,
		entry.ID,
		entry.SessionID,
		entry.PatientID,
		entry.Action,
		entry.Intent,
		entry.VerdictStatus,
		entry.FlagCount,
		entry.Detail,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create audit log: %w", err)
	}
	return nil
}

func (r *auditRepository) ListBySession(ctx context.Context, sessionID string) ([]*model.AuditLog, error) {
	query := `
		SELECT id, session_id, patient_id, action, intent,
		       verdict_status, flag_count, detail, created_at
		FROM audit_logs
		WHERE session_id = $1
		ORDER BY created_at ASC
	`
	var entries []*model.AuditLog
	if err := r.db.SelectContext(ctx, &entries, query, sessionID); err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return entries, nil
}
