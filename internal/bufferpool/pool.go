// Package bufferpool implements the buffer pool manager: the
// in-memory page cache mediating between a fixed pool of frames and a
// disk manager. All public operations serialize on a single mutex,
// including the disk I/O they perform — coarse, but it trivially keeps
// the frame array, free list, page table, and replacer mutually
// consistent.
package bufferpool

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/tuannm99/pagecache/internal/diskmgr"
	"github.com/tuannm99/pagecache/internal/pagecore"
	"github.com/tuannm99/pagecache/internal/replacer"
	"github.com/tuannm99/pagecache/internal/walref"
)

var logPrefix = "bufferpool: "

// Frame holds one resident page plus the metadata the buffer pool
// manager needs to decide whether it can be evicted.
type Frame struct {
	PageID   pagecore.PageID
	PinCount int32
	IsDirty  bool
	Page     pagecore.Page
}

func (f *Frame) free() bool {
	return f.PageID == pagecore.InvalidPageID
}

func (f *Frame) reset() {
	f.PageID = pagecore.InvalidPageID
	f.PinCount = 0
	f.IsDirty = false
	f.Page.Reset()
}

// BufferPoolManager orchestrates the frame array, free list, page
// table, and replacer behind a single latch.
type BufferPoolManager struct {
	mu sync.Mutex

	frames    []Frame // fixed-size, allocated once in New
	freeList  []int   // FIFO of free frame indices; front consumed first
	pageTable map[pagecore.PageID]int
	repl      replacer.Replacer

	disk diskmgr.Manager

	// log is the log-manager collaborator. Held for future
	// write-ahead-logging hooks; no operation below invokes it.
	log *walref.Manager
}

// New creates a buffer pool manager with poolSize frames, backed by
// disk and replaced according to repl. log may be nil — it is kept
// only as a reference, never called.
func New(poolSize int, disk diskmgr.Manager, repl replacer.Replacer, log *walref.Manager) *BufferPoolManager {
	if poolSize <= 0 {
		poolSize = 1
	}

	bp := &BufferPoolManager{
		frames:    make([]Frame, poolSize),
		freeList:  make([]int, poolSize),
		pageTable: make(map[pagecore.PageID]int, poolSize),
		repl:      repl,
		disk:      disk,
		log:       log,
	}
	for i := range bp.frames {
		bp.frames[i].PageID = pagecore.InvalidPageID
		bp.freeList[i] = i
	}
	return bp
}

// PoolSize returns the fixed number of frames.
func (bp *BufferPoolManager) PoolSize() int {
	return len(bp.frames)
}

// Stats reports the sum-invariant breakdown: every frame is free,
// evictable (resident + unpinned, tracked by the replacer), or pinned,
// and the three counts always add up to PoolSize().
func (bp *BufferPoolManager) Stats() (free, evictable, pinned int) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	free = len(bp.freeList)
	evictable = bp.repl.Size()
	pinned = len(bp.frames) - free - evictable
	return free, evictable, pinned
}

// FetchPage pins pageID and returns its frame, loading it from disk if
// necessary. It returns (nil, nil) when every frame is pinned — that
// is a normal "pool exhausted" outcome, not an error. A non-nil error
// means the disk read itself failed.
func (bp *BufferPoolManager) FetchPage(pageID pagecore.PageID) (*Frame, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	if idx, ok := bp.pageTable[pageID]; ok {
		f := &bp.frames[idx]
		f.PinCount++
		bp.repl.Pin(replacer.FrameID(idx))
		slog.Debug(logPrefix+"fetch hit", "pageID", pageID, "frame", idx, "pinCount", f.PinCount)
		return f, nil
	}

	idx, fromFree, ok := bp.findReplacement()
	if !ok {
		slog.Debug(logPrefix + "fetch miss, pool exhausted")
		return nil, nil
	}

	f := &bp.frames[idx]
	if !fromFree {
		if err := bp.writeBack(f); err != nil {
			// Put the victim back so it is not lost from the pool.
			bp.repl.Unpin(replacer.FrameID(idx))
			return nil, fmt.Errorf("bufferpool: evict frame %d: %w", idx, err)
		}
		delete(bp.pageTable, f.PageID)
	}

	f.PageID = pageID
	f.PinCount = 1
	f.IsDirty = false
	bp.pageTable[pageID] = idx

	if err := bp.disk.ReadPage(pageID, f.Page.Data()); err != nil {
		// Leave the frame free rather than handing back a page whose
		// bytes are indeterminate.
		delete(bp.pageTable, pageID)
		f.reset()
		bp.freeList = append(bp.freeList, idx)
		return nil, fmt.Errorf("bufferpool: read page %d: %w", pageID, err)
	}

	slog.Debug(logPrefix+"fetch miss, loaded", "pageID", pageID, "frame", idx, "fromFree", fromFree)
	return f, nil
}

// findReplacement prefers the free list (FIFO) over the replacer:
// while any frame is free, no frame is taken from the replacer.
func (bp *BufferPoolManager) findReplacement() (idx int, fromFree bool, ok bool) {
	if len(bp.freeList) > 0 {
		idx = bp.freeList[0]
		bp.freeList = bp.freeList[1:]
		return idx, true, true
	}
	fid, ok := bp.repl.Victim()
	if !ok {
		return 0, false, false
	}
	return int(fid), false, true
}

func (bp *BufferPoolManager) writeBack(f *Frame) error {
	if !f.IsDirty {
		return nil
	}
	if err := bp.disk.WritePage(f.PageID, f.Page.Data()); err != nil {
		return err
	}
	f.IsDirty = false
	return nil
}

// UnpinPage decrements pageID's pin count (saturating at zero; a
// double-unpin is tolerated, not an error) and ORs isDirty into the
// frame's sticky dirty bit. Once the pin count reaches zero the frame
// becomes eligible for eviction. Returns false if pageID isn't
// resident.
func (bp *BufferPoolManager) UnpinPage(pageID pagecore.PageID, isDirty bool) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	idx, ok := bp.pageTable[pageID]
	if !ok {
		return false
	}

	f := &bp.frames[idx]
	if f.PinCount > 0 {
		f.PinCount--
	}
	if isDirty {
		f.IsDirty = true
	}
	if f.PinCount == 0 {
		bp.repl.Unpin(replacer.FrameID(idx))
	}
	return true
}

// FlushPage writes pageID's frame back to disk synchronously and
// clears its dirty bit, regardless of pin count. Returns false if
// pageID isn't resident.
func (bp *BufferPoolManager) FlushPage(pageID pagecore.PageID) (bool, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	idx, ok := bp.pageTable[pageID]
	if !ok {
		return false, nil
	}

	f := &bp.frames[idx]
	if err := bp.disk.WritePage(pageID, f.Page.Data()); err != nil {
		return true, fmt.Errorf("bufferpool: flush page %d: %w", pageID, err)
	}
	f.IsDirty = false
	return true, nil
}

// NewPage allocates a fresh page id and pins its frame. It returns
// (nil, nil) when every frame is pinned, checking that *before*
// allocating a page id from the disk manager so a saturated pool never
// leaks an id.
func (bp *BufferPoolManager) NewPage() (*Frame, error) {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	idx, fromFree, ok := bp.findReplacement()
	if !ok {
		slog.Debug(logPrefix + "new_page, pool exhausted")
		return nil, nil
	}

	f := &bp.frames[idx]
	if !fromFree {
		if err := bp.writeBack(f); err != nil {
			bp.repl.Unpin(replacer.FrameID(idx))
			return nil, fmt.Errorf("bufferpool: evict frame %d: %w", idx, err)
		}
		delete(bp.pageTable, f.PageID)
	}

	newID := bp.disk.AllocatePage()

	f.PageID = newID
	f.PinCount = 1
	f.IsDirty = false
	f.Page.Reset()
	bp.pageTable[newID] = idx

	slog.Debug(logPrefix+"new_page", "pageID", newID, "frame", idx)
	return f, nil
}

// DeletePage deallocates pageID on disk unconditionally, then frees its
// frame in memory if resident and unpinned. Returns true on success
// (including "page was never resident" — nothing to do in memory) and
// false if the page is resident but pinned.
func (bp *BufferPoolManager) DeletePage(pageID pagecore.PageID) bool {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	bp.disk.DeallocatePage(pageID)

	idx, ok := bp.pageTable[pageID]
	if !ok {
		return true
	}

	f := &bp.frames[idx]
	if f.PinCount > 0 {
		return false
	}

	bp.repl.Pin(replacer.FrameID(idx))
	delete(bp.pageTable, pageID)
	f.reset()
	bp.freeList = append(bp.freeList, idx)
	return true
}

// FlushAll flushes every resident dirty page. A failing individual
// flush is logged and iteration continues rather than aborting the
// whole pass.
func (bp *BufferPoolManager) FlushAll() {
	bp.mu.Lock()
	defer bp.mu.Unlock()

	for pageID, idx := range bp.pageTable {
		f := &bp.frames[idx]
		if !f.IsDirty {
			continue
		}
		if err := bp.disk.WritePage(pageID, f.Page.Data()); err != nil {
			slog.Error(logPrefix+"flush_all: write failed", "pageID", pageID, "err", err)
			continue
		}
		f.IsDirty = false
	}
}
