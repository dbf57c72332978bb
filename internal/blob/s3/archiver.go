package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/strikeodds/strikebot/internal/domain"
)

// archiveBatchSize bounds how many snapshots one archive pass pulls from the
// store at a time.
const archiveBatchSize = 5000

// Archiver moves snapshots that have aged out of the rolling history window
// into cold storage as JSONL, then deletes them from the primary store.
// Deletion happens only after the upload succeeded.
type Archiver struct {
	writer    domain.BlobWriter
	snapshots domain.SnapshotStore
	logger    *slog.Logger
}

// NewArchiver creates an Archiver over the given writer and snapshot store.
func NewArchiver(writer domain.BlobWriter, snapshots domain.SnapshotStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:    writer,
		snapshots: snapshots,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// ArchiveSnapshots uploads snapshots captured before the cutoff to
// archive/snapshots/YYYY-MM.jsonl and removes them from the store. It returns
// the number of archived records.
func (a *Archiver) ArchiveSnapshots(ctx context.Context, before time.Time) (int64, error) {
	var total int64

	for {
		snaps, err := a.snapshots.ListBefore(ctx, before, archiveBatchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive snapshots query: %w", err)
		}
		if len(snaps) == 0 {
			return total, nil
		}

		buf, err := marshalJSONL(snaps)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive snapshots marshal: %w", err)
		}

		// Partition by the batch's newest capture month, with an upload stamp
		// so consecutive batches never clobber each other.
		last := snaps[len(snaps)-1].Timestamp
		path := archivePath("snapshots", last)
		if err := a.writer.Put(ctx, path, buf, "application/x-ndjson"); err != nil {
			return total, fmt.Errorf("s3blob: archive snapshots upload: %w", err)
		}

		cutoff := last.Add(time.Millisecond)
		if cutoff.After(before) {
			cutoff = before
		}
		deleted, err := a.snapshots.DeleteBefore(ctx, cutoff)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive snapshots delete: %w", err)
		}
		total += deleted

		a.logger.Info("snapshot batch archived",
			slog.String("path", path),
			slog.Int("uploaded", len(snaps)),
			slog.Int64("deleted", deleted),
		)

		if len(snaps) < archiveBatchSize {
			return total, nil
		}
	}
}

// archivePath builds the key for an archive file, partitioned by year-month
// with an upload timestamp.
//
//	archive/snapshots/2026-08/20260828T190653Z.jsonl
func archivePath(kind string, at time.Time) string {
	return fmt.Sprintf("archive/%s/%s/%s.jsonl",
		kind, at.Format("2006-01"), time.Now().UTC().Format("20060102T150405Z"))
}

// marshalJSONL serialises records as newline-delimited JSON.
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
