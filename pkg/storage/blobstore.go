// Package storage implements the checkpoint storage interface consumed by
// the node shell (S1): a keyed blob store used only to persist CSV
// verifier snapshots (which include the reserved state) across restarts.
// Vetomint state is not persisted. Neither pkg/csv nor
// pkg/vetomint import this package directly; the node shell wires them
// together through Checkpointer.
package storage

import (
	"sort"
	"sync"

	dbm "github.com/cometbft/cometbft-db"

	"github.com/fedchain/node/pkg/errs"
)

// BlobStore is a keyed blob store: read_file/list_files/
// add_or_overwrite_file/remove_file/remove_all_files, matching the
// storage interface the core consumes. Implementations never assume
// ordering across files; ListFiles's order is implementation-defined.
type BlobStore interface {
	ReadFile(name string) ([]byte, error)
	ListFiles() ([]string, error)
	AddOrOverwriteFile(name string, data []byte) error
	RemoveFile(name string) error
	RemoveAllFiles() error
}

// errFileNotFound returns the stable NotFound error for a missing blob.
func errFileNotFound(name string) error {
	return errs.New(errs.KindNotFound, "file not found: "+name)
}

// MemoryBlobStore is an in-memory BlobStore, used in tests and for
// ephemeral/dev nodes.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemoryBlobStore constructs an empty MemoryBlobStore.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{files: make(map[string][]byte)}
}

func (m *MemoryBlobStore) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[name]
	if !ok {
		return nil, errFileNotFound(name)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryBlobStore) ListFiles() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryBlobStore) AddOrOverwriteFile(name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.files[name] = cp
	return nil
}

func (m *MemoryBlobStore) RemoveFile(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; !ok {
		return errFileNotFound(name)
	}
	delete(m.files, name)
	return nil
}

func (m *MemoryBlobStore) RemoveAllFiles() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files = make(map[string][]byte)
	return nil
}

// CometBFTBlobStore wraps a cometbft-db dbm.DB, storing each blob under
// its name as the key. Writes use SetSync so a checkpoint is durable
// before the caller proceeds.
type CometBFTBlobStore struct {
	db dbm.DB
}

// NewCometBFTBlobStore wraps db as a BlobStore.
func NewCometBFTBlobStore(db dbm.DB) *CometBFTBlobStore {
	return &CometBFTBlobStore{db: db}
}

func (c *CometBFTBlobStore) ReadFile(name string) ([]byte, error) {
	v, err := c.db.Get([]byte(name))
	if err != nil {
		return nil, errs.Wrap(errs.KindIntegrityError, err, "read file "+name)
	}
	if v == nil {
		return nil, errFileNotFound(name)
	}
	return v, nil
}

func (c *CometBFTBlobStore) ListFiles() ([]string, error) {
	iter, err := c.db.Iterator(nil, nil)
	if err != nil {
		return nil, errs.Wrap(errs.KindIntegrityError, err, "open list-files iterator")
	}
	defer iter.Close()

	var names []string
	for ; iter.Valid(); iter.Next() {
		names = append(names, string(iter.Key()))
	}
	if err := iter.Error(); err != nil {
		return nil, errs.Wrap(errs.KindIntegrityError, err, "iterate files")
	}
	return names, nil
}

func (c *CometBFTBlobStore) AddOrOverwriteFile(name string, data []byte) error {
	if err := c.db.SetSync([]byte(name), data); err != nil {
		return errs.Wrap(errs.KindIntegrityError, err, "write file "+name)
	}
	return nil
}

func (c *CometBFTBlobStore) RemoveFile(name string) error {
	has, err := c.db.Has([]byte(name))
	if err != nil {
		return errs.Wrap(errs.KindIntegrityError, err, "check file "+name)
	}
	if !has {
		return errFileNotFound(name)
	}
	if err := c.db.DeleteSync([]byte(name)); err != nil {
		return errs.Wrap(errs.KindIntegrityError, err, "remove file "+name)
	}
	return nil
}

func (c *CometBFTBlobStore) RemoveAllFiles() error {
	names, err := c.ListFiles()
	if err != nil {
		return err
	}
	batch := c.db.NewBatch()
	defer batch.Close()
	for _, name := range names {
		if err := batch.Delete([]byte(name)); err != nil {
			return errs.Wrap(errs.KindIntegrityError, err, "batch-delete file "+name)
		}
	}
	if err := batch.WriteSync(); err != nil {
		return errs.Wrap(errs.KindIntegrityError, err, "commit remove-all-files batch")
	}
	return nil
}
