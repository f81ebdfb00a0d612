package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/outcomebridge/ooadapter/internal/domain"
)

// archiveBatchSize bounds how many records one store query returns.
const archiveBatchSize = 500

// Archiver implements domain.Archiver by querying the question store for
// old resolved records, serializing them to JSONL, and uploading the result
// to object storage.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here -- that is a separate, explicit step to be executed
// after the archive has been verified.
type Archiver struct {
	writer    domain.BlobWriter
	questions domain.QuestionStore
	audit     domain.AuditStore
}

var _ domain.Archiver = (*Archiver)(nil)

// NewArchiver creates a new Archiver. audit may be nil.
func NewArchiver(writer domain.BlobWriter, questions domain.QuestionStore, audit domain.AuditStore) *Archiver {
	return &Archiver{
		writer:    writer,
		questions: questions,
		audit:     audit,
	}
}

// ArchiveResolved queries resolved questions last touched before the cutoff,
// serializes them to JSONL, and uploads the file at
// archive/questions/YYYY-MM.jsonl. The archival event is recorded in the
// audit log and the count of archived records is returned.
func (a *Archiver) ArchiveResolved(ctx context.Context, before time.Time) (int64, error) {
	var records []domain.QuestionData
	offset := 0
	for {
		batch, err := a.questions.ListResolvedBefore(ctx, before, domain.ListOpts{
			Limit:  archiveBatchSize,
			Offset: offset,
		})
		if err != nil {
			return 0, fmt.Errorf("s3blob: archive questions query: %w", err)
		}
		records = append(records, batch...)
		if len(batch) < archiveBatchSize {
			break
		}
		offset += archiveBatchSize
	}
	if len(records) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(records)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive questions marshal: %w", err)
	}

	path := archivePath("questions", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive questions upload: %w", err)
	}

	count := int64(len(records))

	if a.audit != nil {
		if err := a.audit.Log(ctx, "archive.questions", map[string]any{
			"path":   path,
			"count":  count,
			"before": before.Format(time.RFC3339),
		}); err != nil {
			return count, fmt.Errorf("s3blob: archive questions audit log: %w", err)
		}
	}

	return count, nil
}

// archivePath builds the object key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/questions/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON (JSONL).
// Each element is marshalled as a single compact JSON line followed by '\n'.
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
