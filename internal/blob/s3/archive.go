package s3blob

import (
	"bytes"
	"context"
	"time"

	"github.com/ankhone/alpacahq-zipline/internal/domain"
)

// SnapshotArchiver writes one JSON document per trading day under sessions/.
type SnapshotArchiver struct {
	w domain.BlobWriter
}

// NewSnapshotArchiver creates an archiver over c.
func NewSnapshotArchiver(c *Client) *SnapshotArchiver {
	return &SnapshotArchiver{w: NewWriter(c)}
}

func snapshotKey(date time.Time) string {
	return "sessions/" + date.Format(time.DateOnly) + ".json"
}

// ArchiveSnapshot stores body as the snapshot of date's session.
func (a *SnapshotArchiver) ArchiveSnapshot(ctx context.Context, date time.Time, body []byte) error {
	return a.w.Put(ctx, snapshotKey(date), bytes.NewReader(body), "application/json")
}
