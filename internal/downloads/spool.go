package downloads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	outboxDirName  = "outbox"
	statusFileName = "status.json"
)

// Spool exchanges work with the external download queue through a shared
// directory: each enqueue writes one JSON envelope under outbox/, and the
// queue publishes its current snapshot to status.json in the same directory.
type Spool struct {
	dir string
}

// NewSpool prepares the exchange directory.
func NewSpool(dir string) (*Spool, error) {
	if dir == "" {
		return nil, errors.New("spool directory is required")
	}
	if err := os.MkdirAll(filepath.Join(dir, outboxDirName), 0o755); err != nil {
		return nil, fmt.Errorf("create spool outbox: %w", err)
	}
	return &Spool{dir: dir}, nil
}

// Dir returns the exchange directory root.
func (s *Spool) Dir() string {
	return s.dir
}

type releaseEnvelope struct {
	Release       json.RawMessage `json:"release"`
	Priority      int             `json:"priority"`
	OwnerID       int64           `json:"ownerId"`
	OwnerUsername string          `json:"ownerUsername"`
	EnqueuedAt    string          `json:"enqueuedAt"`
}

// QueueRelease writes one enqueue envelope. The temp-file rename keeps the
// queue from picking up half-written envelopes.
func (s *Spool) QueueRelease(_ context.Context, release json.RawMessage, priority int, ownerID int64, ownerUsername string) error {
	if len(release) == 0 {
		return errors.New("release payload is required")
	}
	envelope, err := json.MarshalIndent(releaseEnvelope{
		Release:       release,
		Priority:      priority,
		OwnerID:       ownerID,
		OwnerUsername: ownerUsername,
		EnqueuedAt:    time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode release envelope: %w", err)
	}

	name := uuid.NewString() + ".json"
	final := filepath.Join(s.dir, outboxDirName, name)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, envelope, 0o644); err != nil {
		return fmt.Errorf("write release envelope: %w", err)
	}
	if err := os.Rename(tmp, final); err != nil {
		return fmt.Errorf("publish release envelope: %w", err)
	}
	return nil
}

// QueueStatus reads the snapshot the external queue last published. A
// missing status file yields an empty snapshot, not an error.
func (s *Spool) QueueStatus(_ context.Context) (Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, statusFileName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read queue status: %w", err)
	}
	return ParseSnapshot(data)
}

// ParseSnapshot decodes a bucket → ids snapshot document. Unknown bucket
// names are kept; consumers drop them during reverse mapping.
func ParseSnapshot(data []byte) (Snapshot, error) {
	var raw map[string]map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode queue status: %w", err)
	}
	snapshot := make(Snapshot, len(raw))
	for bucket, ids := range raw {
		snapshot[Bucket(bucket)] = ids
	}
	return snapshot, nil
}
