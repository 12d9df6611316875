package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/outcomex/settle/internal/domain"
)

// FillArchiveStore provides read access to fills for archival. The archiver
// only needs the cutoff query, not the full fill store; the Postgres store
// satisfies this implicitly.
type FillArchiveStore interface {
	// ListBefore returns fills created strictly before the cutoff, oldest
	// first.
	ListBefore(ctx context.Context, before time.Time) ([]domain.Fill, error)
}

// Archiver implements domain.Archiver by querying the stores for records
// older than a cutoff, serializing them to JSONL, and uploading the result
// as a monthly object under archive/<kind>/YYYY-MM.jsonl.
//
// Runs are idempotent per month: when the target object already exists the
// run is a no-op, so re-running after a partial failure never produces
// duplicate objects. Deletion of the archived rows from the primary store is
// intentionally not performed here; that is a separate, explicit step once
// the archive has been verified.
type Archiver struct {
	writer domain.BlobWriter
	reader domain.BlobReader
	fills  FillArchiveStore
	audit  domain.AuditStore
}

var _ domain.Archiver = (*Archiver)(nil)

// NewArchiver creates an Archiver over the given blob store and sources.
// The audit store is both an archive source and the log for archive events.
func NewArchiver(writer domain.BlobWriter, reader domain.BlobReader, fills FillArchiveStore, audit domain.AuditStore) *Archiver {
	return &Archiver{
		writer: writer,
		reader: reader,
		fills:  fills,
		audit:  audit,
	}
}

// ArchiveFills exports all fills recorded strictly before the cutoff and
// returns the number of records uploaded. A zero count means either nothing
// matched or this month's archive already exists.
func (a *Archiver) ArchiveFills(ctx context.Context, before time.Time) (int64, error) {
	return archive(ctx, a, "fills", before, a.fills.ListBefore)
}

// ArchiveAudit exports all audit entries recorded strictly before the
// cutoff. The "archive.audit" entry written afterwards post-dates the cutoff
// and lands in a later month's export.
func (a *Archiver) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	return archive(ctx, a, "audit", before, a.audit.ListBefore)
}

// archive runs the shared export flow for one record kind: check the target
// object, query the source, serialize, upload, and record the event.
func archive[T any](ctx context.Context, a *Archiver, kind string, before time.Time, list func(context.Context, time.Time) ([]T, error)) (int64, error) {
	path := archivePath(kind, before)

	exists, err := a.reader.Exists(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s: check %s: %w", kind, path, err)
	}
	if exists {
		// An earlier run already exported this month's slice.
		return 0, nil
	}

	records, err := list(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s: query: %w", kind, err)
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive %s: marshal: %w", kind, err)
	}

	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive %s: upload %s: %w", kind, path, err)
	}

	count := int64(len(records))

	if err := a.audit.Log(ctx, "archive."+kind, map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive %s: audit log: %w", kind, err)
	}

	return count, nil
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/fills/2026-08.jsonl
//	archive/audit/2026-08.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// line per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
