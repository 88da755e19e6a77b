package models

import (
	"fmt"
	"strings"
	"time"
)

type ExportFormat string

const (
	ExportFormatJSON ExportFormat = "json"
	ExportFormatCSV  ExportFormat = "csv"
)

// Snapshot is a full dump of every lifecycle table.
type Snapshot struct {
	GeneratedAt  time.Time      `json:"generated_at"`
	Components   []*Component   `json:"components"`
	Kits         []*Kit         `json:"kits"`
	KitBindings  []*KitBinding  `json:"kit_bindings"`
	UsageRecords []*UsageRecord `json:"usage_records"`
	Distributors []*Distributor `json:"distributors"`
	AuditLogs    []*AuditLog    `json:"audit_logs"`
}

type ExportResult struct {
	ExportID    string       `json:"export_id"`
	Format      ExportFormat `json:"format"`
	ObjectName  string       `json:"object_name"`
	Size        int64        `json:"size"`
	DownloadURL string       `json:"download_url,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
}

// ParseExportFormat accepts json or csv in any case; empty means json.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", ExportFormatJSON:
		return ExportFormatJSON, nil
	case ExportFormatCSV:
		return ExportFormatCSV, nil
	}
	return "", NewValidationError("format", fmt.Sprintf("unsupported export format %q", s))
}
