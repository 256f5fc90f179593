package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/guildxyz/tokenbuyer/internal/domain"
)

// archiveBatchSize bounds how many attempts one archive run pulls from the
// store.
const archiveBatchSize = 1000

// AttemptArchiver exports aged purchase attempts to object storage as JSONL
// batches. Deletion of the archived rows from the primary store is
// intentionally not performed here; that is a separate, explicit step to be
// executed after the archive has been verified.
type AttemptArchiver struct {
	writer   domain.BlobWriter
	attempts domain.AttemptStore
}

// NewAttemptArchiver creates an AttemptArchiver reading from the attempt
// store and writing through the blob writer.
func NewAttemptArchiver(writer domain.BlobWriter, attempts domain.AttemptStore) *AttemptArchiver {
	return &AttemptArchiver{writer: writer, attempts: attempts}
}

// ArchiveBefore exports attempts created before the cutoff as one JSONL
// object under archive/attempts/. It returns the number of records written;
// zero with a nil error means there was nothing to archive.
func (a *AttemptArchiver) ArchiveBefore(ctx context.Context, cutoff time.Time) (int, error) {
	attempts, err := a.attempts.ListBefore(ctx, cutoff, archiveBatchSize)
	if err != nil {
		return 0, fmt.Errorf("s3blob: list attempts for archive: %w", err)
	}
	if len(attempts) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, attempt := range attempts {
		if err := enc.Encode(attempt); err != nil {
			return 0, fmt.Errorf("s3blob: encode attempt %s: %w", attempt.ID, err)
		}
	}

	key := fmt.Sprintf("archive/attempts/%s.jsonl", cutoff.UTC().Format("2006-01-02T15-04-05"))
	if err := a.writer.Put(ctx, key, buf.Bytes(), "application/x-ndjson"); err != nil {
		return 0, err
	}
	return len(attempts), nil
}
