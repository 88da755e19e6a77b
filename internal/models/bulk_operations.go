package models

import "time"

// Bulk operation statuses
const (
	BulkStatusCompleted = "completed"
	BulkStatusPartial   = "partial"
	BulkStatusFailed    = "failed"
)

// BulkOperationResult represents the outcome of a best-effort batch where
// each item commits on its own.
type BulkOperationResult struct {
	OperationID    string               `json:"operation_id"`
	Status         string               `json:"status"`
	TotalItems     int                  `json:"total_items"`
	Succeeded      []string             `json:"succeeded"`
	Failed         []BulkOperationError `json:"failed"`
	StartTime      time.Time            `json:"start_time"`
	CompletionTime *time.Time           `json:"completion_time,omitempty"`
}

// BulkOperationError represents an error for a specific item in bulk operation
type BulkOperationError struct {
	Index  int    `json:"index"`
	ItemID string `json:"kit_id,omitempty"`
	Reason string `json:"reason"`

	Missing     []ComponentType        `json:"missing,omitempty"`
	Unavailable []UnavailableComponent `json:"unavailable_components,omitempty"`
}

// Finish stamps the completion time and derives the overall status.
func (r *BulkOperationResult) Finish(at time.Time) {
	r.CompletionTime = &at
	switch {
	case len(r.Failed) == 0:
		r.Status = BulkStatusCompleted
	case len(r.Succeeded) == 0:
		r.Status = BulkStatusFailed
	default:
		r.Status = BulkStatusPartial
	}
}

// DisassembleOptions tunes a disassembly. Components listed in
// ScrapComponentIDs are scrapped instead of returned to stock.
type DisassembleOptions struct {
	ScrapComponentIDs []string `json:"scrap_component_ids,omitempty"`
}

type DisassembleResult struct {
	KitID     string   `json:"kit_id"`
	Released  []string `json:"released"`
	Scrapped  []string `json:"scrapped"`
	Preserved []string `json:"preserved"`
}
