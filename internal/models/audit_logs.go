package models

import (
	"time"

	"github.com/google/uuid"
)

// JSONB is a free-form JSON object stored in a jsonb column.
type JSONB map[string]interface{}

type EntityType string

const (
	EntityComponent   EntityType = "component"
	EntityKit         EntityType = "kit"
	EntityDistributor EntityType = "distributor"
)

// Action constants for audit logs
const (
	ActionCreate       = "CREATE"
	ActionStatusChange = "STATUS_CHANGE"
	ActionAssemble     = "ASSEMBLE"
	ActionDistribute   = "DISTRIBUTE"
	ActionCollect      = "COLLECT"
	ActionDisassemble  = "DISASSEMBLE"
	ActionUpdate       = "UPDATE"
)

// AuditLog is one lifecycle transition of a component, kit or distributor.
type AuditLog struct {
	ID         uuid.UUID  `json:"id" db:"id"`
	EntityType EntityType `json:"entity_type" db:"entity_type"`
	EntityID   string     `json:"entity_id" db:"entity_id"`
	Action     string     `json:"action" db:"action"`
	OldStatus  *string    `json:"old_status,omitempty" db:"old_status"`
	NewStatus  *string    `json:"new_status,omitempty" db:"new_status"`
	Details    JSONB      `json:"details,omitempty" db:"details"`
	ChangedBy  *string    `json:"changed_by,omitempty" db:"changed_by"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// AuditLogFilters represents filters for querying audit logs
type AuditLogFilters struct {
	EntityType *EntityType `json:"entity_type"`
	EntityID   *string     `json:"entity_id"`
	Action     *string     `json:"action"`
	ChangedBy  *string     `json:"changed_by"`
	StartDate  *time.Time  `json:"start_date"`
	EndDate    *time.Time  `json:"end_date"`
	Limit      int         `json:"limit"`
	Offset     int         `json:"offset"`
}

// NewAuditLog builds an entry for a status transition. Empty statuses are
// stored as NULL.
func NewAuditLog(entity EntityType, id, action, oldStatus, newStatus string, details JSONB) *AuditLog {
	log := &AuditLog{
		ID:         uuid.New(),
		EntityType: entity,
		EntityID:   id,
		Action:     action,
		Details:    details,
	}
	if oldStatus != "" {
		log.OldStatus = &oldStatus
	}
	if newStatus != "" {
		log.NewStatus = &newStatus
	}
	return log
}
