package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/soliseum/arenad/internal/domain"
)

// roundSnapshot is the JSON document uploaded per archived round.
type roundSnapshot struct {
	Arena      domain.Arena   `json:"arena"`
	Stakes     []domain.Stake `json:"stakes"`
	ArchivedAt time.Time      `json:"archived_at"`
}

// Archiver implements domain.ArenaArchiver by serializing the final state
// of a settled arena to JSON and uploading it before a reset wipes the
// round. The snapshot is the only durable record of a finished round, since
// reset deletes the arena's stakes.
type Archiver struct {
	writer *Writer
}

// NewArchiver creates an Archiver that uploads through the given writer.
func NewArchiver(writer *Writer) *Archiver {
	return &Archiver{writer: writer}
}

// ArchiveArena uploads the settled arena and its stake book to
// archive/arenas/{id}/round-{nonce}.json. The settlement nonce namespaces
// rounds, so successive resets of one arena never overwrite each other.
func (a *Archiver) ArchiveArena(ctx context.Context, arena domain.Arena, stakes []domain.Stake) error {
	snap := roundSnapshot{
		Arena:      arena,
		Stakes:     stakes,
		ArchivedAt: time.Now().UTC(),
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("s3blob: marshal arena %s snapshot: %w", arena.ID, err)
	}

	path := archivePath(arena.ID, arena.SettlementNonce)
	if err := a.writer.Put(ctx, path, bytes.NewReader(data), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive arena %s: %w", arena.ID, err)
	}
	return nil
}

// archivePath builds the S3 key for one archived round.
//
//	archive/arenas/7d5c.../round-3.json
func archivePath(arenaID string, nonce uint64) string {
	return fmt.Sprintf("archive/arenas/%s/round-%d.json", arenaID, nonce)
}

// Compile-time interface check.
var _ domain.ArenaArchiver = (*Archiver)(nil)
