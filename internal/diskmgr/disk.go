// Package diskmgr is the BPM's disk-manager collaborator: synchronous,
// page-granular reads and writes against a single backing file, plus a
// monotonic page-id allocator. It assumes every call is atomic at page
// granularity, the same contract the buffer pool manager is written
// against.
package diskmgr

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/atomic"

	"github.com/tuannm99/pagecache/internal/pagecore"
)

// Manager is the collaborator interface the buffer pool manager
// consumes. A *FileManager satisfies it; tests may substitute a fake.
type Manager interface {
	ReadPage(id pagecore.PageID, dst []byte) error
	WritePage(id pagecore.PageID, src []byte) error
	AllocatePage() pagecore.PageID
	DeallocatePage(id pagecore.PageID)
}

var _ Manager = (*FileManager)(nil)

// FileManager backs pages onto a single OS file, one PageSize slot per
// page id, growing the file as new page ids are written.
type FileManager struct {
	mu   sync.RWMutex
	file *os.File

	nextID     atomic.Int64
	deallocSet sync.Map // pagecore.PageID -> struct{}, tombstones only
}

// NewFileManager opens (or creates) path as the page file.
func NewFileManager(path string) (*FileManager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o664)
	if err != nil {
		return nil, fmt.Errorf("diskmgr: open page file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("diskmgr: stat page file: %w", err)
	}

	fm := &FileManager{file: f}
	fm.nextID.Store(info.Size() / pagecore.PageSize)
	return fm, nil
}

// Close closes the underlying file.
func (fm *FileManager) Close() error {
	fm.mu.Lock()
	defer fm.mu.Unlock()
	return fm.file.Close()
}

func (fm *FileManager) offset(id pagecore.PageID) int64 {
	return int64(id) * pagecore.PageSize
}

// ReadPage reads exactly PageSize bytes for id into dst. Reads beyond
// the current end of file are treated as an all-zero page, so a page
// id that was allocated but never written still reads cleanly.
func (fm *FileManager) ReadPage(id pagecore.PageID, dst []byte) error {
	if len(dst) != pagecore.PageSize {
		return fmt.Errorf("diskmgr: dst must be exactly %d bytes", pagecore.PageSize)
	}

	fm.mu.RLock()
	defer fm.mu.RUnlock()

	n, err := fm.file.ReadAt(dst, fm.offset(id))
	if err != nil && err != io.EOF {
		return fmt.Errorf("diskmgr: read page %d: %w", id, err)
	}
	for i := n; i < pagecore.PageSize; i++ {
		dst[i] = 0
	}
	return nil
}

// WritePage writes exactly PageSize bytes from src for id.
func (fm *FileManager) WritePage(id pagecore.PageID, src []byte) error {
	if len(src) != pagecore.PageSize {
		return fmt.Errorf("diskmgr: src must be exactly %d bytes", pagecore.PageSize)
	}

	fm.mu.Lock()
	defer fm.mu.Unlock()

	n, err := fm.file.WriteAt(src, fm.offset(id))
	if err != nil {
		return fmt.Errorf("diskmgr: write page %d: %w", id, err)
	}
	if n != pagecore.PageSize {
		return fmt.Errorf("diskmgr: short write for page %d: wrote %d of %d bytes", id, n, pagecore.PageSize)
	}
	return nil
}

// AllocatePage returns a fresh page id. Ids are handed out strictly in
// increasing order and never reused, even after DeallocatePage.
func (fm *FileManager) AllocatePage() pagecore.PageID {
	return pagecore.PageID(fm.nextID.Add(1) - 1)
}

// DeallocatePage marks id as deallocated. Idempotent: deallocating the
// same id twice, or an id that was never allocated, is not an error.
// No space is reclaimed on disk — this is pure bookkeeping that the
// disk manager must tolerate being called unconditionally.
func (fm *FileManager) DeallocatePage(id pagecore.PageID) {
	fm.deallocSet.Store(id, struct{}{})
}

// Deallocated reports whether id has been passed to DeallocatePage.
// Exposed for tests that want to assert delete_page's unconditional
// disk.deallocate_page call actually happened.
func (fm *FileManager) Deallocated(id pagecore.PageID) bool {
	_, ok := fm.deallocSet.Load(id)
	return ok
}
