// Package storage -- Page Serializer component
//
// EDUCATIONAL NOTES:
// ------------------
// The Page Serializer owns the single backing file end to end: framing
// on disk, the in-memory index of which table owns which live page, and
// a bounded LRU cache of decoded TypedPages. There is no free list and
// no in-place update of live bytes -- pages are appended, and freeing a
// page only flips its frame tag from LIVE to DEAD so a later scan can
// skip it. This mirrors how the teacher's Pager manages a fixed-size
// page cache with container/list-based LRU, generalized to
// variable-length frames and a per-table page index instead of a flat
// page-id space.
package storage

import (
	"container/list"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/rs/zerolog"
)

// fileMagic is the leading CHECK_SEQ constant from SPEC_FULL.md section 6.
const fileMagic uint64 = 0x2C24BB6A4CC25A5A

// chunkHeaderMagic is the "Chunk header check" constant.
const chunkHeaderMagic uint64 = 0x32aa8429

type frameTag uint16

const (
	frameLive frameTag = 31920
	frameDead frameTag = 21923
)

// DefaultCacheCapacity is the default bounded page-cache size (SPEC_FULL
// section 4.3: "Capacity 20 parsed pages").
const DefaultCacheCapacity = 20

// pageEntry is one page's location and key range within a table's page
// index.
type pageEntry struct {
	offset uint64
	limits Limits
}

// SerializerOption configures a PageSerializer, mirroring the teacher's
// functional-options PagerOption.
type SerializerOption func(*PageSerializer)

// WithCacheCapacity overrides the bounded page cache size.
func WithCacheCapacity(n int) SerializerOption {
	return func(ps *PageSerializer) {
		if n > 0 {
			ps.maxCacheSize = n
		}
	}
}

// WithPageCeiling overrides the page-size ceiling that triggers a split.
func WithPageCeiling(n int) SerializerOption {
	return func(ps *PageSerializer) {
		if n > 0 {
			ps.pageCeiling = n
		}
	}
}

// WithLogger attaches a structured logger to the serializer. One logger
// per handle, never a process-wide singleton; a serializer opened
// without this option logs nowhere (zerolog.Nop).
func WithLogger(log zerolog.Logger) SerializerOption {
	return func(ps *PageSerializer) {
		ps.log = log
	}
}

// PageSerializer owns the backing file, the per-table page index, and
// the bounded LRU cache of decoded pages.
type PageSerializer struct {
	file *os.File
	mu   sync.Mutex

	// pageIndex maps table id to its pages in creation order.
	pageIndex map[uint64][]pageEntry

	// cache maps file offset to the decoded page currently in memory.
	cache map[uint64]*TypedPage
	// lruList/lruMap provide O(1) LRU bookkeeping, most-recently-used
	// at the front, exactly as the teacher's Pager does for fixed-size
	// pages.
	lruList *list.List
	lruMap  map[uint64]*list.Element
	pinned  map[uint64]int

	maxCacheSize int
	pageCeiling  int
	frozen       bool

	nextFreeOffset uint64

	log zerolog.Logger
}

// Open creates or reopens the backing file at path, replaying its frame
// stream to rebuild the in-memory page index per SPEC_FULL.md section
// 4.3's Open algorithm.
func Open(path string, opts ...SerializerOption) (*PageSerializer, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, fmt.Errorf("storage: failed to open database file: %w", err)
	}

	ps := &PageSerializer{
		file:         file,
		pageIndex:    make(map[uint64][]pageEntry),
		cache:        make(map[uint64]*TypedPage),
		lruList:      list.New(),
		lruMap:       make(map[uint64]*list.Element),
		pinned:       make(map[uint64]int),
		maxCacheSize: DefaultCacheCapacity,
		pageCeiling:  DefaultPageCeiling,
		log:          zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(ps)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("storage: failed to stat database file: %w", err)
	}

	if stat.Size() == 0 {
		if err := ps.writeFileMagic(); err != nil {
			file.Close()
			return nil, err
		}
		ps.log.Info().Str("path", path).Msg("opened fresh database file")
		return ps, nil
	}

	if err := ps.replay(stat.Size()); err != nil {
		ps.log.Error().Err(err).Str("path", path).Msg("open failed integrity check")
		file.Close()
		return nil, err
	}
	ps.log.Info().Str("path", path).Int64("size", stat.Size()).Msg("opened database file")
	return ps, nil
}

func (ps *PageSerializer) writeFileMagic() error {
	buf := make([]byte, 8)
	binaryLE.PutUint64(buf, fileMagic)
	if _, err := ps.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("storage: failed to write file magic: %w", err)
	}
	ps.nextFreeOffset = 8
	return nil
}

// replay scans every frame from byte 8 to EOF, rebuilding pageIndex.
// Integrity failures here are fatal at open per SPEC_FULL.md section 7.
func (ps *PageSerializer) replay(size int64) error {
	magicBuf := make([]byte, 8)
	if _, err := ps.file.ReadAt(magicBuf, 0); err != nil {
		return fmt.Errorf("storage: failed to read file magic: %w", err)
	}
	if binaryLE.Uint64(magicBuf) != fileMagic {
		return fmt.Errorf("storage: bad file magic %#x, file is presumed corrupt", binaryLE.Uint64(magicBuf))
	}

	offset := int64(8)
	for offset < size {
		header := make([]byte, 6)
		if _, err := ps.file.ReadAt(header, offset); err != nil {
			return fmt.Errorf("storage: failed to read frame header at offset %d: %w", offset, err)
		}
		tag := frameTag(binaryLE.Uint16(header[0:2]))
		frameSize := binaryLE.Uint32(header[2:6])
		bodyOffset := offset + 6

		switch tag {
		case frameLive:
			body := make([]byte, frameSize)
			if _, err := ps.file.ReadAt(body, bodyOffset); err != nil {
				return fmt.Errorf("storage: failed to read live frame body at offset %d: %w", bodyOffset, err)
			}
			page, err := deserializeBody(body)
			if err != nil {
				return fmt.Errorf("storage: corrupt live frame at offset %d: %w", offset, err)
			}
			loc := uint64(offset)
			page.location = &loc
			ps.pageIndex[page.TableID] = append(ps.pageIndex[page.TableID], pageEntry{offset: loc, limits: page.limits})
		case frameDead:
			// Skip: dead frames carry only stale bytes.
		default:
			return fmt.Errorf("storage: unknown frame tag %d at offset %d, file is presumed corrupt", tag, offset)
		}

		offset = bodyOffset + int64(frameSize)
	}
	ps.nextFreeOffset = uint64(offset)
	return nil
}

// Close flushes every dirty cached page and closes the file.
func (ps *PageSerializer) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for _, page := range ps.cache {
		if page.IsDirty() {
			if err := ps.forceFlushLocked(page); err != nil {
				return fmt.Errorf("storage: failed to flush page during close: %w", err)
			}
		}
	}
	ps.log.Info().Msg("closed database file")
	return ps.file.Close()
}

// FlushAll re-flushes every dirty cached page to a fresh frame (the
// Catalog's flush() operation from SPEC_FULL.md section 4.5). It does
// not evict: the flushed pages stay in the cache.
func (ps *PageSerializer) FlushAll() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	for _, page := range ps.cache {
		if page.IsDirty() {
			if err := ps.forceFlushLocked(page); err != nil {
				return err
			}
		}
	}
	ps.log.Info().Msg("flushed all dirty pages")
	return nil
}

// PageCeiling returns the configured page-size ceiling.
func (ps *PageSerializer) PageCeiling() int { return ps.pageCeiling }

// Logger returns the serializer's structured logger, for use by layers
// above storage (catalog, executor) that want to log under the same
// per-handle logger rather than a process-wide singleton.
func (ps *PageSerializer) Logger() zerolog.Logger { return ps.log }

// Freeze disables eviction during a critical section (e.g. while a
// caller holds bare page pointers across several operations).
func (ps *PageSerializer) Freeze() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.frozen = true
}

// Unfreeze re-enables eviction.
func (ps *PageSerializer) Unfreeze() {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.frozen = false
}

// allocate appends a LIVE frame containing body, registers it in the
// page index under tableID/limits, and returns its offset.
func (ps *PageSerializer) allocate(tableID uint64, limits Limits, body []byte) (uint64, error) {
	offset := ps.nextFreeOffset
	header := make([]byte, 6)
	binaryLE.PutUint16(header[0:2], uint16(frameLive))
	binaryLE.PutUint32(header[2:6], uint32(len(body)))

	if _, err := ps.file.WriteAt(header, int64(offset)); err != nil {
		return 0, fmt.Errorf("storage: failed to write frame header: %w", err)
	}
	if _, err := ps.file.WriteAt(body, int64(offset)+6); err != nil {
		return 0, fmt.Errorf("storage: failed to write frame body: %w", err)
	}
	if err := ps.file.Sync(); err != nil {
		return 0, fmt.Errorf("storage: failed to sync after writing frame: %w", err)
	}

	ps.nextFreeOffset = offset + 6 + uint64(len(body))
	ps.pageIndex[tableID] = append(ps.pageIndex[tableID], pageEntry{offset: offset, limits: limits})
	return offset, nil
}

// FreePage locates the page owning minKey within tableID, rewrites its
// frame tag from LIVE to DEAD in place, and removes it from the page
// index. The on-disk size field is left untouched so a later scan can
// still skip the frame.
func (ps *PageSerializer) FreePage(tableID uint64, minKey TypeData) error {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	entries := ps.pageIndex[tableID]
	idx := -1
	for i, e := range entries {
		if e.limits.Contains(minKey) {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("storage: no page for table %d contains key %s", tableID, minKey.String())
	}
	offset := entries[idx].offset

	tagBuf := make([]byte, 2)
	binaryLE.PutUint16(tagBuf, uint16(frameDead))
	if _, err := ps.file.WriteAt(tagBuf, int64(offset)); err != nil {
		return fmt.Errorf("storage: failed to mark frame dead at offset %d: %w", offset, err)
	}

	ps.pageIndex[tableID] = append(append([]pageEntry(nil), entries[:idx]...), entries[idx+1:]...)
	ps.uncacheLocked(offset)
	return nil
}

// GetInAll returns every offset for tableID whose limits overlap key
// (if given), or every offset for the table (if key is nil), in
// insertion order.
func (ps *PageSerializer) GetInAll(tableID uint64, key *TypeData) []uint64 {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	entries := ps.pageIndex[tableID]
	out := make([]uint64, 0, len(entries))
	for _, e := range entries {
		if key == nil || e.limits.Overlaps(*key, *key) {
			out = append(out, e.offset)
		}
	}
	return out
}

// GetInAllInsert returns the existing page offset that key belongs in,
// following the policy from SPEC_FULL.md section 4.3: a page whose
// limits already contain key, else the sole page whose limits.max < key
// (append-to-last), else false to signal "allocate a new page."
func (ps *PageSerializer) GetInAllInsert(tableID uint64, key TypeData) (uint64, bool) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	entries := ps.pageIndex[tableID]
	for _, e := range entries {
		if e.limits.Valid && e.limits.Contains(key) {
			return e.offset, true
		}
	}

	var candidate uint64
	matches := 0
	for _, e := range entries {
		if e.limits.Valid && e.limits.Max.Compare(key) < 0 {
			candidate = e.offset
			matches++
		}
	}
	if matches == 1 {
		return candidate, true
	}
	return 0, false
}

// UpdateLimits expands the page index entry for (tableID, offset) to
// include key.
func (ps *PageSerializer) UpdateLimits(tableID, offset uint64, key TypeData) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	entries := ps.pageIndex[tableID]
	for i := range entries {
		if entries[i].offset == offset {
			entries[i].limits.Add(key)
			return
		}
	}
}

// ResetLimits replaces the page index entry that used to have oldMin as
// its minimum with newLimits -- called after a split changes the
// original page's range.
func (ps *PageSerializer) ResetLimits(tableID uint64, oldMin TypeData, newLimits Limits) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	entries := ps.pageIndex[tableID]
	for i := range entries {
		if entries[i].limits.Valid && entries[i].limits.Min.Equals(oldMin) {
			entries[i].limits = newLimits
			return
		}
	}
}

// LoadPageCached returns the decoded page at offset, pinning it for the
// duration of the caller's operation. The caller must call UnpinPage
// when done. Eviction, when needed, skips pinned pages and flushes a
// dirty evictee first.
func (ps *PageSerializer) LoadPageCached(offset uint64) (*TypedPage, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	if page, ok := ps.cache[offset]; ok {
		if elem, ok := ps.lruMap[offset]; ok {
			ps.lruList.MoveToFront(elem)
		}
		ps.pinned[offset]++
		ps.log.Debug().Uint64("offset", offset).Msg("page cache hit")
		return page, nil
	}

	if err := ps.evictIfNeededLocked(); err != nil {
		return nil, err
	}

	ps.log.Debug().Uint64("offset", offset).Msg("page cache miss")
	page, err := ps.readPageFromDisk(offset)
	if err != nil {
		return nil, err
	}
	ps.cache[offset] = page
	elem := ps.lruList.PushFront(offset)
	ps.lruMap[offset] = elem
	ps.pinned[offset]++
	return page, nil
}

// UnpinPage releases one pin acquired by LoadPageCached.
func (ps *PageSerializer) UnpinPage(offset uint64) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.pinned[offset] > 0 {
		ps.pinned[offset]--
		if ps.pinned[offset] == 0 {
			delete(ps.pinned, offset)
		}
	}
}

// CachePage registers a freshly built or split page in the cache
// (used right after ForceFlush assigns it a location).
func (ps *PageSerializer) CachePage(offset uint64, page *TypedPage) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.cache[offset] = page
	if elem, ok := ps.lruMap[offset]; ok {
		ps.lruList.MoveToFront(elem)
	} else {
		elem := ps.lruList.PushFront(offset)
		ps.lruMap[offset] = elem
	}
}

func (ps *PageSerializer) evictIfNeededLocked() error {
	if ps.frozen {
		return nil
	}
	if len(ps.cache) < ps.maxCacheSize {
		return nil
	}

	for elem := ps.lruList.Back(); elem != nil; elem = elem.Prev() {
		offset := elem.Value.(uint64)
		if ps.pinned[offset] > 0 {
			continue
		}
		page, ok := ps.cache[offset]
		if !ok {
			ps.lruList.Remove(elem)
			delete(ps.lruMap, offset)
			continue
		}
		if page.IsDirty() {
			if err := ps.forceFlushLocked(page); err != nil {
				return fmt.Errorf("storage: failed to flush dirty page %d before eviction: %w", offset, err)
			}
			// forceFlushLocked re-registers the page under its new
			// offset; drop both that entry and the stale one so the
			// slot is actually freed.
			ps.uncacheLocked(*page.location)
			ps.uncacheLocked(offset)
			return nil
		}
		ps.uncacheLocked(offset)
		return nil
	}
	return nil
}

func (ps *PageSerializer) uncacheLocked(offset uint64) {
	delete(ps.cache, offset)
	if elem, ok := ps.lruMap[offset]; ok {
		ps.lruList.Remove(elem)
		delete(ps.lruMap, offset)
	}
	delete(ps.pinned, offset)
}

func (ps *PageSerializer) readPageFromDisk(offset uint64) (*TypedPage, error) {
	header := make([]byte, 6)
	if _, err := ps.file.ReadAt(header, int64(offset)); err != nil {
		return nil, fmt.Errorf("storage: failed to read frame header at offset %d: %w", offset, err)
	}
	tag := frameTag(binaryLE.Uint16(header[0:2]))
	if tag != frameLive {
		return nil, fmt.Errorf("storage: offset %d is not a live frame", offset)
	}
	size := binaryLE.Uint32(header[2:6])
	body := make([]byte, size)
	if _, err := ps.file.ReadAt(body, int64(offset)+6); err != nil {
		return nil, fmt.Errorf("storage: failed to read frame body at offset %d: %w", offset, err)
	}
	page, err := deserializeBody(body)
	if err != nil {
		return nil, err
	}
	loc := offset
	page.location = &loc
	return page, nil
}

// forceFlushLocked frees page's previous location (if any) and appends
// a fresh frame for its current contents. Caller must hold ps.mu.
func (ps *PageSerializer) forceFlushLocked(page *TypedPage) error {
	var oldOffset uint64
	hadOld := page.location != nil
	if hadOld {
		oldOffset = *page.location
	}

	body, err := page.serializeBody()
	if err != nil {
		return fmt.Errorf("storage: failed to serialize page for table %d: %w", page.TableID, err)
	}

	newOffset := ps.nextFreeOffset
	header := make([]byte, 6)
	binaryLE.PutUint16(header[0:2], uint16(frameLive))
	binaryLE.PutUint32(header[2:6], uint32(len(body)))
	if _, err := ps.file.WriteAt(header, int64(newOffset)); err != nil {
		return fmt.Errorf("storage: failed to write frame header: %w", err)
	}
	if _, err := ps.file.WriteAt(body, int64(newOffset)+6); err != nil {
		return fmt.Errorf("storage: failed to write frame body: %w", err)
	}
	if err := ps.file.Sync(); err != nil {
		return fmt.Errorf("storage: failed to sync after writing frame: %w", err)
	}
	ps.nextFreeOffset = newOffset + 6 + uint64(len(body))

	if hadOld {
		tagBuf := make([]byte, 2)
		binaryLE.PutUint16(tagBuf, uint16(frameDead))
		if _, err := ps.file.WriteAt(tagBuf, int64(oldOffset)); err != nil {
			return fmt.Errorf("storage: failed to mark old frame dead at offset %d: %w", oldOffset, err)
		}
		ps.removeEntryLocked(page.TableID, oldOffset)
	}

	ps.pageIndex[page.TableID] = append(ps.pageIndex[page.TableID], pageEntry{offset: newOffset, limits: page.limits})
	page.location = &newOffset
	page.dirty = false

	ps.cache[newOffset] = page
	elem := ps.lruList.PushFront(newOffset)
	ps.lruMap[newOffset] = elem
	return nil
}

func (ps *PageSerializer) removeEntryLocked(tableID, offset uint64) {
	entries := ps.pageIndex[tableID]
	for i, e := range entries {
		if e.offset == offset {
			ps.pageIndex[tableID] = append(append([]pageEntry(nil), entries[:i]...), entries[i+1:]...)
			return
		}
	}
}

// ForceFlush frees page's previous frame (if any) and appends a new
// one, updating page.location. Used directly by TypedTable when a
// newly created page has never been flushed, and by Split's second
// half.
func (ps *PageSerializer) ForceFlush(page *TypedPage) (uint64, error) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if err := ps.forceFlushLocked(page); err != nil {
		return 0, err
	}
	return *page.location, nil
}

// DeleteFile removes the database file. Used for testing.
func DeleteFile(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return os.Remove(path)
}
