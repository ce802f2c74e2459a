package storage

import (
	"encoding/json"
	"fmt"

	"github.com/fedchain/node/pkg/csv"
	"github.com/fedchain/node/pkg/errs"
)

// checkpointBlobName is the single named blob a height's whole state is
// serialized to, per the "serializing the whole state to a single file
// per phase transition" storage note: "height-<h>.json".
func checkpointBlobName(height uint64) string {
	return fmt.Sprintf("height-%d.json", height)
}

// Checkpointer persists a csv.Verifier's full snapshot to a BlobStore on
// every phase transition, and reloads the latest one on restart.
// Atomicity across process crashes is the BlobStore implementation's
// responsibility (write to temp + rename, or a synced KV write); the
// node shell's commit thread is Checkpointer's only caller.
type Checkpointer struct {
	store BlobStore
}

// NewCheckpointer wraps store.
func NewCheckpointer(store BlobStore) *Checkpointer {
	return &Checkpointer{store: store}
}

// Save serializes v's current snapshot under the blob name for height.
func (c *Checkpointer) Save(height uint64, v *csv.Verifier) error {
	snap := v.TakeSnapshot()
	data, err := json.Marshal(snap)
	if err != nil {
		return errs.Wrap(errs.KindIntegrityError, err, "marshal checkpoint snapshot")
	}
	return c.store.AddOrOverwriteFile(checkpointBlobName(height), data)
}

// Load reconstructs the Verifier checkpointed at height, or
// errs.KindNotFound if no checkpoint for that height exists.
func (c *Checkpointer) Load(height uint64) (*csv.Verifier, error) {
	data, err := c.store.ReadFile(checkpointBlobName(height))
	if err != nil {
		return nil, err
	}
	var snap csv.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, errs.Wrap(errs.KindIntegrityError, err, "unmarshal checkpoint snapshot")
	}
	return csv.FromSnapshot(snap), nil
}

// LatestHeight scans the store's blob names for the highest checkpointed
// height, returning ok=false if none exist yet.
func (c *Checkpointer) LatestHeight() (height uint64, ok bool, err error) {
	names, err := c.store.ListFiles()
	if err != nil {
		return 0, false, err
	}
	for _, name := range names {
		var h uint64
		if _, scanErr := fmt.Sscanf(name, "height-%d.json", &h); scanErr != nil {
			continue
		}
		if !ok || h > height {
			height, ok = h, true
		}
	}
	return height, ok, nil
}

// LoadLatest loads the highest-height checkpoint, or ok=false if none
// has ever been saved (a fresh node).
func (c *Checkpointer) LoadLatest() (v *csv.Verifier, ok bool, err error) {
	height, found, err := c.LatestHeight()
	if err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	v, err = c.Load(height)
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}
