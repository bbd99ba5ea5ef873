// Package backup creates, restores, and prunes point-in-time snapshots of
// the data directory. A snapshot is a single snappy-compressed JSON archive
// holding every table and index file, identified by UUID and recorded in an
// index file inside the snapshot directory. Snapshots can be mirrored to an
// object store for off-host retention.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"

	"github.com/jbdura/settlement-project/internal/catalog"
	"github.com/jbdura/settlement-project/internal/objstore"
	"github.com/jbdura/settlement-project/internal/storage"
)

// Domain errors surfaced by the manager. Callers unwrap with errors.Is.
var (
	ErrSnapshotNotFound = errors.New("snapshot not found")
	ErrChecksumMismatch = errors.New("archive checksum mismatch")
)

// archiveVersion guards archives against format drift. Bump it whenever the
// archive layout changes.
const archiveVersion = 1

const indexFileName = "index.json"

// Meta describes one recorded snapshot.
type Meta struct {
	SnapshotID      string    `json:"snapshot_id"`
	CreatedAt       time.Time `json:"created_at"`
	TableCount      int       `json:"table_count"`
	RowCount        int       `json:"row_count"`
	RawBytes        int64     `json:"raw_bytes"`
	CompressedBytes int64     `json:"compressed_bytes"`
	Checksum        uint32    `json:"checksum"`
}

// archive is the uncompressed snapshot payload.
type archive struct {
	Version    int           `json:"version"`
	SnapshotID string        `json:"snapshot_id"`
	CreatedAt  time.Time     `json:"created_at"`
	Files      []archiveFile `json:"files"`
}

// archiveFile is one captured engine file. Data is base64 in the JSON form.
type archiveFile struct {
	Name string `json:"name"`
	Data []byte `json:"data"`
}

// Manager takes and restores snapshots for one catalog.
type Manager struct {
	mu      sync.Mutex
	catalog *catalog.Catalog
	dir     string
	remote  objstore.Store
}

// Option configures a Manager.
type Option func(*Manager)

// WithRemote mirrors every snapshot to the given object store under
// snapshots/<id>.snap and deletes mirrored archives on prune.
func WithRemote(store objstore.Store) Option {
	return func(m *Manager) { m.remote = store }
}

// NewManager creates a snapshot manager writing archives to dir.
func NewManager(cat *catalog.Catalog, dir string, opts ...Option) (*Manager, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("backup: failed to create snapshot dir: %w", err)
	}
	m := &Manager{catalog: cat, dir: dir}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Create takes a snapshot of the current data directory. The snapshot is
// recorded locally before any remote upload, so a failed upload leaves a
// usable local snapshot behind.
func (m *Manager) Create(ctx context.Context) (Meta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return Meta{}, err
	}

	id := uuid.New().String()
	createdAt := time.Now().UTC()

	files, err := m.collectFiles()
	if err != nil {
		return Meta{}, err
	}

	raw, err := json.Marshal(archive{
		Version:    archiveVersion,
		SnapshotID: id,
		CreatedAt:  createdAt,
		Files:      files,
	})
	if err != nil {
		return Meta{}, fmt.Errorf("backup: failed to encode archive: %w", err)
	}
	compressed := snappy.Encode(nil, raw)

	path := m.archivePath(id)
	if err := os.WriteFile(path, compressed, 0644); err != nil {
		return Meta{}, fmt.Errorf("backup: failed to write archive: %w", err)
	}

	meta := Meta{
		SnapshotID:      id,
		CreatedAt:       createdAt,
		TableCount:      len(m.catalog.ListTables()),
		RowCount:        m.catalog.TotalRows(),
		RawBytes:        int64(len(raw)),
		CompressedBytes: int64(len(compressed)),
		Checksum:        crc32.ChecksumIEEE(compressed),
	}
	if err := m.appendToIndex(meta); err != nil {
		return Meta{}, err
	}

	if m.remote != nil {
		if err := m.remote.Upload(ctx, path, remoteKey(id)); err != nil {
			return meta, fmt.Errorf("backup: failed to upload snapshot %s: %w", id, err)
		}
	}
	return meta, nil
}

// Restore replaces the data directory contents with the given snapshot and
// reloads the catalog. The archive checksum is validated before any engine
// file is touched. A snapshot whose archive is missing locally is fetched
// from the remote store when one is configured.
func (m *Manager) Restore(ctx context.Context, snapshotID string) (Meta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	meta, ok, err := m.findMeta(snapshotID)
	if err != nil {
		return Meta{}, err
	}
	if !ok {
		return Meta{}, fmt.Errorf("backup: snapshot %s: %w", snapshotID, ErrSnapshotNotFound)
	}

	path := m.archivePath(snapshotID)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if m.remote == nil {
			return Meta{}, fmt.Errorf("backup: snapshot %s: archive file is missing", snapshotID)
		}
		if err := m.remote.Download(ctx, remoteKey(snapshotID), path); err != nil {
			return Meta{}, fmt.Errorf("backup: failed to fetch snapshot %s: %w", snapshotID, err)
		}
	}

	compressed, err := os.ReadFile(path)
	if err != nil {
		return Meta{}, fmt.Errorf("backup: failed to read archive: %w", err)
	}
	if crc32.ChecksumIEEE(compressed) != meta.Checksum {
		return Meta{}, fmt.Errorf("backup: snapshot %s: %w", snapshotID, ErrChecksumMismatch)
	}

	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return Meta{}, fmt.Errorf("backup: failed to decompress archive: %w", err)
	}
	var ar archive
	if err := json.Unmarshal(raw, &ar); err != nil {
		return Meta{}, fmt.Errorf("backup: archive is corrupt: %w", err)
	}
	if ar.Version != archiveVersion {
		return Meta{}, fmt.Errorf("backup: unsupported archive version %d", ar.Version)
	}

	if err := m.replaceDataDir(ar.Files); err != nil {
		return Meta{}, err
	}
	if err := m.catalog.Reload(); err != nil {
		return Meta{}, fmt.Errorf("backup: failed to reload catalog after restore: %w", err)
	}
	return meta, nil
}

// List returns the recorded snapshots, newest first.
func (m *Manager) List() ([]Meta, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listLocked()
}

// Prune removes all but the keep most recent snapshots, locally and from
// the remote store when one is configured. It returns the removed metas.
func (m *Manager) Prune(ctx context.Context, keep int) ([]Meta, error) {
	if keep < 0 {
		keep = 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	metas, err := m.listLocked()
	if err != nil {
		return nil, err
	}
	if len(metas) <= keep {
		return nil, nil
	}

	removed := metas[keep:]
	for _, meta := range removed {
		if err := os.Remove(m.archivePath(meta.SnapshotID)); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("backup: failed to remove snapshot %s: %w", meta.SnapshotID, err)
		}
		if m.remote != nil {
			if err := m.remote.Delete(ctx, remoteKey(meta.SnapshotID)); err != nil {
				log.Printf("[WARN] backup: failed to remove remote snapshot %s: %v", meta.SnapshotID, err)
			}
		}
	}
	if err := m.writeIndex(metas[:keep]); err != nil {
		return nil, err
	}
	return removed, nil
}

// collectFiles reads every engine file in the data directory. Table files
// persist atomically per statement, so each captured file is internally
// consistent.
func (m *Manager) collectFiles() ([]archiveFile, error) {
	dataDir := m.catalog.Dir()
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return nil, fmt.Errorf("backup: failed to read data dir: %w", err)
	}

	var files []archiveFile
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if _, ok := storage.IsTableFile(name); !ok && !storage.IsIndexFile(name) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dataDir, name))
		if err != nil {
			return nil, fmt.Errorf("backup: failed to read %s: %w", name, err)
		}
		files = append(files, archiveFile{Name: name, Data: data})
	}
	return files, nil
}

// replaceDataDir deletes the current engine files and writes the archived
// ones in their place.
func (m *Manager) replaceDataDir(files []archiveFile) error {
	dataDir := m.catalog.Dir()
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		return fmt.Errorf("backup: failed to read data dir: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if _, ok := storage.IsTableFile(name); !ok && !storage.IsIndexFile(name) {
			continue
		}
		if err := os.Remove(filepath.Join(dataDir, name)); err != nil {
			return fmt.Errorf("backup: failed to remove %s: %w", name, err)
		}
	}

	for _, f := range files {
		// Archived names must be bare file names, never paths.
		if f.Name != filepath.Base(f.Name) {
			return fmt.Errorf("backup: archive holds invalid file name %q", f.Name)
		}
		if err := os.WriteFile(filepath.Join(dataDir, f.Name), f.Data, 0644); err != nil {
			return fmt.Errorf("backup: failed to write %s: %w", f.Name, err)
		}
	}
	return nil
}

func (m *Manager) listLocked() ([]Meta, error) {
	metas, err := m.readIndex()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(metas, func(i, j int) bool {
		return metas[i].CreatedAt.After(metas[j].CreatedAt)
	})
	return metas, nil
}

func (m *Manager) findMeta(snapshotID string) (Meta, bool, error) {
	metas, err := m.readIndex()
	if err != nil {
		return Meta{}, false, err
	}
	for _, meta := range metas {
		if meta.SnapshotID == snapshotID {
			return meta, true, nil
		}
	}
	return Meta{}, false, nil
}

func (m *Manager) readIndex() ([]Meta, error) {
	data, err := os.ReadFile(filepath.Join(m.dir, indexFileName))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("backup: failed to read snapshot index: %w", err)
	}
	var metas []Meta
	if err := json.Unmarshal(data, &metas); err != nil {
		return nil, fmt.Errorf("backup: snapshot index is corrupt: %w", err)
	}
	return metas, nil
}

func (m *Manager) writeIndex(metas []Meta) error {
	data, err := json.MarshalIndent(metas, "", "  ")
	if err != nil {
		return fmt.Errorf("backup: failed to encode snapshot index: %w", err)
	}
	if err := os.WriteFile(filepath.Join(m.dir, indexFileName), data, 0644); err != nil {
		return fmt.Errorf("backup: failed to write snapshot index: %w", err)
	}
	return nil
}

func (m *Manager) appendToIndex(meta Meta) error {
	metas, err := m.readIndex()
	if err != nil {
		return err
	}
	return m.writeIndex(append(metas, meta))
}

// archivePath returns the local path of a snapshot archive.
func (m *Manager) archivePath(snapshotID string) string {
	return filepath.Join(m.dir, snapshotID+".snap")
}

// remoteKey returns the object store key of a snapshot archive.
func remoteKey(snapshotID string) string {
	return "snapshots/" + snapshotID + ".snap"
}
