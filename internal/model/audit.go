package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditLog records one completed workflow event for later review.
type AuditLog struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	SessionID     string          `db:"session_id" json:"session_id"`
	PatientID     *uuid.UUID      `db:"patient_id" json:"patient_id,omitempty"`
	Action        string          `db:"action" json:"action"`
	Intent        Intent          `db:"intent" json:"intent"`
	VerdictStatus string          `db:"verdict_status" json:"verdict_status,omitempty"`
	FlagCount     int             `db:"flag_count" json:"flag_count"`
	Detail        json.RawMessage `db:"detail" json:"detail,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}
