package jobs

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"medkit/internal/logger"
	"medkit/internal/models"
	"medkit/internal/repositories"
	"medkit/internal/services"
)

// SnapshotExporter dumps every lifecycle table into one object in the export
// bucket and hands back a presigned download link.
type SnapshotExporter struct {
	store   repositories.Store
	objects services.ObjectStore
	bucket  string
	expiry  time.Duration
	now     func() time.Time
}

func NewSnapshotExporter(store repositories.Store, objects services.ObjectStore, bucket string, expiry time.Duration, now func() time.Time) *SnapshotExporter {
	if now == nil {
		now = time.Now
	}
	return &SnapshotExporter{store: store, objects: objects, bucket: bucket, expiry: expiry, now: now}
}

func (e *SnapshotExporter) Export(ctx context.Context, format models.ExportFormat) (*models.ExportResult, error) {
	const op = "jobs.SnapshotExporter.Export"

	snap, err := e.snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: read tables: %w", op, err)
	}

	var (
		body        []byte
		ext         string
		contentType string
	)
	switch format {
	case models.ExportFormatJSON:
		body, err = json.MarshalIndent(snap, "", "  ")
		ext, contentType = "json", "application/json"
	case models.ExportFormatCSV:
		body, err = encodeCSVZip(snap)
		ext, contentType = "zip", "application/zip"
	default:
		return nil, models.NewValidationError("format", fmt.Sprintf("unsupported export format %q", format))
	}
	if err != nil {
		return nil, fmt.Errorf("%s: encode: %w", op, err)
	}

	id := uuid.NewString()
	objectName := fmt.Sprintf("snapshots/%s/%s.%s", snap.GeneratedAt.Format("2006/01/02"), id, ext)

	if err := e.objects.Upload(ctx, e.bucket, objectName, bytes.NewReader(body), int64(len(body)), contentType); err != nil {
		return nil, fmt.Errorf("%s: upload %s: %w", op, objectName, err)
	}
	url, err := e.objects.PresignedURL(ctx, e.bucket, objectName, e.expiry)
	if err != nil {
		return nil, fmt.Errorf("%s: presign %s: %w", op, objectName, err)
	}

	logger.Info(ctx, "snapshot exported",
		logger.String("export_id", id),
		logger.String("object", objectName),
		logger.Int("bytes", len(body)),
	)
	return &models.ExportResult{
		ExportID:    id,
		Format:      format,
		ObjectName:  objectName,
		Size:        int64(len(body)),
		DownloadURL: url,
		CreatedAt:   snap.GeneratedAt,
	}, nil
}

// snapshot reads all tables from one consistent view, so a kit assembled
// mid-export shows up in every table or in none.
func (e *SnapshotExporter) snapshot(ctx context.Context) (*models.Snapshot, error) {
	snap := &models.Snapshot{GeneratedAt: e.now().UTC()}
	err := e.store.InSnapshot(ctx, func(r repositories.Repos) error {
		var err error
		if snap.Components, err = r.Components.List(ctx, models.ComponentFilter{}); err != nil {
			return err
		}
		if snap.Kits, err = r.Kits.List(ctx, models.KitFilter{}); err != nil {
			return err
		}
		if snap.KitBindings, err = r.Bindings.ListAll(ctx); err != nil {
			return err
		}
		if snap.UsageRecords, err = r.Usage.ListAll(ctx); err != nil {
			return err
		}
		if snap.Distributors, err = r.Distributors.List(ctx, nil, 0, 0); err != nil {
			return err
		}
		snap.AuditLogs, err = r.Audit.List(ctx, nil)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

type csvTable struct {
	name   string
	header []string
	rows   [][]string
}

func encodeCSVZip(snap *models.Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	tables, err := snapshotTables(snap)
	if err != nil {
		return nil, err
	}
	for _, table := range tables {
		f, err := zw.Create(table.name + ".csv")
		if err != nil {
			return nil, err
		}
		w := csv.NewWriter(f)
		if err := w.Write(table.header); err != nil {
			return nil, err
		}
		if err := w.WriteAll(table.rows); err != nil {
			return nil, fmt.Errorf("%s: %w", table.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func snapshotTables(snap *models.Snapshot) ([]csvTable, error) {
	components := csvTable{
		name:   "components",
		header: []string{"id", "type", "model_number", "batch_number", "status", "kit_id", "created_at", "updated_at", "discarded_at"},
	}
	for _, c := range snap.Components {
		components.rows = append(components.rows, []string{
			c.ID, string(c.Type), c.ModelNumber, c.BatchNumber, string(c.Status), deref(c.KitID),
			formatTime(&c.CreatedAt), formatTime(&c.UpdatedAt), formatTime(c.DiscardedAt),
		})
	}

	kits := csvTable{
		name:   "kits",
		header: []string{"id", "status", "distributor_id", "distributor_name", "dispense_date", "created_at", "updated_at"},
	}
	for _, k := range snap.Kits {
		kits.rows = append(kits.rows, []string{
			k.ID, string(k.Status), deref(k.DistributorID), deref(k.DistributorName),
			formatTime(k.DispenseDate), formatTime(&k.CreatedAt), formatTime(&k.UpdatedAt),
		})
	}

	bindings := csvTable{
		name:   "kit_bindings",
		header: []string{"id", "component_id", "component_type", "kit_id", "bound_at", "unbound_at"},
	}
	for _, b := range snap.KitBindings {
		bindings.rows = append(bindings.rows, []string{
			strconv.FormatInt(b.ID, 10), b.ComponentID, string(b.ComponentType), b.KitID,
			formatTime(&b.BoundAt), formatTime(b.UnboundAt),
		})
	}

	usage := csvTable{
		name:   "usage_records",
		header: []string{"id", "kit_id", "distributor_id", "start_time", "end_time"},
	}
	for _, u := range snap.UsageRecords {
		usage.rows = append(usage.rows, []string{
			u.ID.String(), u.KitID, u.DistributorID, formatTime(&u.StartTime), formatTime(u.EndTime),
		})
	}

	distributors := csvTable{
		name:   "distributors",
		header: []string{"id", "name", "email", "tel", "address", "city", "contact_person", "status", "created_at", "updated_at"},
	}
	for _, d := range snap.Distributors {
		distributors.rows = append(distributors.rows, []string{
			d.ID, d.Name, d.Email, d.Tel, d.Address, d.City, d.ContactPerson, string(d.Status),
			formatTime(&d.CreatedAt), formatTime(&d.UpdatedAt),
		})
	}

	audit := csvTable{
		name:   "audit_logs",
		header: []string{"id", "entity_type", "entity_id", "action", "old_status", "new_status", "details", "changed_by", "created_at"},
	}
	for _, a := range snap.AuditLogs {
		details := ""
		if len(a.Details) > 0 {
			raw, err := json.Marshal(a.Details)
			if err != nil {
				return nil, fmt.Errorf("audit log %s details: %w", a.ID, err)
			}
			details = string(raw)
		}
		audit.rows = append(audit.rows, []string{
			a.ID.String(), string(a.EntityType), a.EntityID, a.Action, deref(a.OldStatus), deref(a.NewStatus),
			details, deref(a.ChangedBy), formatTime(&a.CreatedAt),
		})
	}

	return []csvTable{components, kits, bindings, usage, distributors, audit}, nil
}
