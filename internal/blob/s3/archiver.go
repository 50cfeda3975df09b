package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/friendbet/internal/domain"
)

// MarketArchiveStore provides read access to settled markets for archival.
// The Postgres market store satisfies this through ListByStatus.
type MarketArchiveStore interface {
	ListByStatus(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.FriendMarket, error)
}

// ArchiveImpl serializes historical engine records to JSONL and uploads them
// to S3.
//
// Deletion of the archived records from the primary store is intentionally
// NOT performed here -- that is a separate, explicit step to be executed
// after the archive has been verified.
type ArchiveImpl struct {
	writer  domain.BlobWriter
	markets MarketArchiveStore
	audit   domain.AuditStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, markets MarketArchiveStore, audit domain.AuditStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer:  writer,
		markets: markets,
		audit:   audit,
	}
}

// ArchiveAuditTrail queries all audit entries before the cutoff, serializes
// them to JSONL, and uploads the file to S3 at archive/audit/YYYY-MM.jsonl.
// The archival event is itself recorded in the audit log and the count of
// archived records is returned.
func (a *ArchiveImpl) ArchiveAuditTrail(ctx context.Context, before time.Time) (int64, error) {
	entries, err := a.audit.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(entries)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := archivePath("audit", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	count := int64(len(entries))

	if err := a.audit.Log(ctx, 0, "archive.audit", map[string]any{
		"path":   path,
		"count":  count,
		"before": before.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive audit log: %w", err)
	}

	return count, nil
}

// ArchiveResolvedMarkets snapshots every resolved market to S3 at
// archive/markets/YYYY-MM.jsonl. Market rows stay in the primary store;
// the snapshot serves long-term retention and offline analysis.
func (a *ArchiveImpl) ArchiveResolvedMarkets(ctx context.Context, asOf time.Time) (int64, error) {
	markets, err := a.markets.ListByStatus(ctx, domain.StatusResolved, domain.ListOpts{})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive markets query: %w", err)
	}
	if len(markets) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(markets)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive markets marshal: %w", err)
	}

	path := archivePath("markets", asOf)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive markets upload: %w", err)
	}

	count := int64(len(markets))

	if err := a.audit.Log(ctx, 0, "archive.markets", map[string]any{
		"path":  path,
		"count": count,
		"as_of": asOf.Format(time.RFC3339),
	}); err != nil {
		return count, fmt.Errorf("s3blob: archive markets audit log: %w", err)
	}

	return count, nil
}

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/audit/2025-01.jsonl
//	archive/markets/2025-01.jsonl
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
