package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	xerrors "github.com/Izanagi078/Final-Work/pkg/utils/errors"
)

// Snapshot is the persisted form of the cache.
type Snapshot struct {
	Customers map[string]Summary `json:"customers"`
	LastSaved time.Time          `json:"last_saved"`
}

// Snapshotter persists whole snapshots. Load returns (nil, nil) when nothing
// has been saved yet and an error wrapping ErrCacheCorrupt when the stored
// bytes cannot be decoded.
type Snapshotter interface {
	Load(ctx context.Context) (*Snapshot, error)
	Save(ctx context.Context, snap *Snapshot) error
}

func decodeSnapshot(data []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("%w: %v", xerrors.ErrCacheCorrupt, err)
	}
	if snap.Customers == nil {
		snap.Customers = make(map[string]Summary)
	}
	return &snap, nil
}

// FileSnapshot keeps the snapshot in a JSON file. Writes go to a temp file
// that is renamed over the target, so readers never see a partial file.
type FileSnapshot struct {
	path string
}

func NewFileSnapshot(path string) *FileSnapshot {
	return &FileSnapshot{path: path}
}

func (f *FileSnapshot) Load(ctx context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read %s: %v", xerrors.ErrCacheCorrupt, f.path, err)
	}
	return decodeSnapshot(data)
}

func (f *FileSnapshot) Save(ctx context.Context, snap *Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if dir := filepath.Dir(f.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
