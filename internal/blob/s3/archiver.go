package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/Vardominator/moltmarket/internal/domain"
)

// ArchiveImpl implements domain.Archiver by serializing event batches to
// JSONL and uploading them to object storage. The live stream keeps only a
// bounded window; these archives are the long-term record.
type ArchiveImpl struct {
	writer domain.BlobWriter
	audit  domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer: writer,
		audit:  audit,
	}
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// ArchiveEvents uploads a batch of events as one JSONL object and returns
// the object path. The path is partitioned by the day of the first event and
// suffixed with that event's id, so batches never collide:
//
//	archive/events/2025-06-01/3f8a....jsonl
//
// An empty batch is a no-op and returns an empty path.
func (a *ArchiveImpl) ArchiveEvents(ctx context.Context, events []domain.Event) (string, error) {
	if len(events) == 0 {
		return "", nil
	}

	buf, err := marshalJSONL(events)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive events marshal: %w", err)
	}

	first := events[0]
	path := fmt.Sprintf("archive/events/%s/%s.jsonl", first.At.Format("2006-01-02"), first.ID)

	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("s3blob: archive events upload: %w", err)
	}

	if err := a.audit.Log(ctx, "archive.events", map[string]any{
		"path":  path,
		"count": len(events),
	}); err != nil {
		return path, fmt.Errorf("s3blob: archive events audit log: %w", err)
	}

	return path, nil
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
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
