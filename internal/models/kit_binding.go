package models

import "time"

// KitBinding is one row of the append-only component/kit association log.
// Rows are written at assembly and closed, never removed, at disassembly.
type KitBinding struct {
	ID            int64         `json:"id" db:"id"`
	ComponentID   string        `json:"component_id" db:"component_id"`
	ComponentType ComponentType `json:"component_type" db:"component_type"`
	KitID         string        `json:"kit_id" db:"kit_id"`
	BoundAt       time.Time     `json:"bound_at" db:"bound_at"`
	UnboundAt     *time.Time    `json:"unbound_at,omitempty" db:"unbound_at"`
}
