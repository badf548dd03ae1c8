// Package files implements the one-way migration of locally stored file
// blobs into the blob store, updating each file's metadata as it moves.
package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/school-admin/backend/internal/docstore"
	"github.com/school-admin/backend/internal/models"
)

// Storage types recorded on FileMeta.
const (
	StorageLocal = "local"
	StorageBlob  = "blob"
)

var ErrAlreadyMigrated = errors.New("file already migrated to blob storage")

// Source yields the bytes of a locally stored file by id.
type Source interface {
	Open(fileID string) (io.ReadCloser, error)
}

// BlobStore is the destination for migrated file bytes.
type BlobStore interface {
	Put(ctx context.Context, path string, r io.Reader) (int64, error)
}

// DirSource reads local files from a flat directory keyed by file id.
type DirSource struct {
	dir string
}

func NewDirSource(dir string) *DirSource {
	return &DirSource{dir: dir}
}

func (s *DirSource) Open(fileID string) (io.ReadCloser, error) {
	return os.Open(filepath.Join(s.dir, fileID))
}

// DiskBlobStore stores blobs under a root directory, mirroring the blob
// path layout. It stands in for a cloud bucket behind the same interface.
type DiskBlobStore struct {
	root string
}

func NewDiskBlobStore(root string) *DiskBlobStore {
	return &DiskBlobStore{root: root}
}

func (s *DiskBlobStore) Put(ctx context.Context, path string, r io.Reader) (int64, error) {
	full := filepath.Join(s.root, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return 0, err
	}
	f, err := os.Create(full)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return io.Copy(f, r)
}

// Progress reports the state of one file during a batch migration.
type Progress struct {
	FileID   string `json:"fileId"`
	Filename string `json:"filename"`
	Status   string `json:"status"` // pending, uploading, completed, failed
	Error    string `json:"error,omitempty"`
	Percent  int    `json:"progress,omitempty"`
}

// Migrator copies file bytes from the local source into the blob store and
// flips each file's metadata to the new location. The copy is one-way.
type Migrator struct {
	store  docstore.Store
	source Source
	dest   BlobStore
	log    zerolog.Logger
}

func NewMigrator(store docstore.Store, source Source, dest BlobStore, log zerolog.Logger) *Migrator {
	return &Migrator{
		store:  store,
		source: source,
		dest:   dest,
		log:    log.With().Str("component", "file_migrator").Logger(),
	}
}

// PendingFiles lists every file still on local storage.
func (m *Migrator) PendingFiles(ctx context.Context) ([]models.FileMeta, error) {
	docs, err := m.store.Query(ctx, models.CollectionFileMeta, docstore.Query{
		Filters: []docstore.Filter{docstore.Where("storageType", "==", StorageLocal)},
	})
	if err != nil {
		return nil, err
	}
	return docstore.DecodeAll[models.FileMeta](docs)
}

// MigrateFile moves one file. onProgress, when non-nil, receives coarse
// percentage checkpoints.
func (m *Migrator) MigrateFile(ctx context.Context, meta models.FileMeta, onProgress func(percent int)) error {
	if meta.StorageType == StorageBlob {
		return ErrAlreadyMigrated
	}

	report := func(p int) {
		if onProgress != nil {
			onProgress(p)
		}
	}

	storagePath := fmt.Sprintf("files/%s/%s/%s_%s", meta.OwnerType, meta.OwnerID, meta.ID, meta.Filename)

	report(10)

	src, err := m.source.Open(meta.ID)
	if err != nil {
		return fmt.Errorf("open local file %s: %w", meta.ID, err)
	}
	defer src.Close()

	if _, err := m.dest.Put(ctx, storagePath, src); err != nil {
		return fmt.Errorf("upload %s: %w", meta.ID, err)
	}

	report(80)

	err = m.store.Update(ctx, models.CollectionFileMeta, meta.ID, models.JSONB{
		"storageType": StorageBlob,
		"storagePath": storagePath,
		"migratedAt":  time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("update file meta %s: %w", meta.ID, err)
	}

	report(100)
	return nil
}

// MigrateBatch migrates files one by one, reporting per-file progress. A
// failed file is recorded and skipped; the batch continues.
func (m *Migrator) MigrateBatch(ctx context.Context, metas []models.FileMeta, onFileProgress func(Progress)) (successful, failed int) {
	report := func(p Progress) {
		if onFileProgress != nil {
			onFileProgress(p)
		}
	}

	for _, meta := range metas {
		report(Progress{FileID: meta.ID, Filename: meta.Filename, Status: "uploading"})

		err := m.MigrateFile(ctx, meta, func(percent int) {
			report(Progress{FileID: meta.ID, Filename: meta.Filename, Status: "uploading", Percent: percent})
		})
		if err != nil {
			m.log.Error().Err(err).Str("file_id", meta.ID).Msg("file migration failed")
			report(Progress{FileID: meta.ID, Filename: meta.Filename, Status: "failed", Error: err.Error()})
			failed++
			continue
		}

		report(Progress{FileID: meta.ID, Filename: meta.Filename, Status: "completed", Percent: 100})
		successful++
	}
	return successful, failed
}
