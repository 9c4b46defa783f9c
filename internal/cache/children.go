// Package cache memoizes immediate-children listings keyed by the
// parent file's path, validated against file modification times. The
// cache is advisory: every failure path degrades to a fresh scan.
package cache

import (
	"container/list"
	"os"
	"sync"
	"time"

	"github.com/trellis-dev/trellis/internal/types"
)

// DefaultMaxEntries caps the cache when no size is configured.
const DefaultMaxEntries = 1000

// mtimeTolerance absorbs filesystems with coarse timestamp resolution.
const mtimeTolerance = time.Millisecond

type entry struct {
	key            string
	children       []types.ChildSummary
	parentMtime    time.Time
	childrenMtimes map[string]time.Time
	cachedAt       time.Time
}

// Stats exposes hit/miss/eviction counters for observability.
type Stats struct {
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
	Entries   int    `json:"entries"`
}

// Children is an LRU cache of immediate-children listings. One lock
// covers the map and the recency list; lookups, inserts, evictions and
// invalidation all run under it.
type Children struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // front = most recent
	max     int

	hits      uint64
	misses    uint64
	evictions uint64
}

// NewChildren creates a cache holding at most max entries
// (DefaultMaxEntries when max <= 0).
func NewChildren(max int) *Children {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &Children{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		max:     max,
	}
}

// Get returns the cached listing for a parent file if every recorded
// mtime still matches the filesystem. Any mismatch or missing file
// drops the entry and reports a miss.
func (c *Children) Get(parentFile string) ([]types.ChildSummary, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[parentFile]
	if !ok {
		c.misses++
		return nil, false
	}
	e := elem.Value.(*entry)

	if !c.fresh(e) {
		c.removeLocked(elem)
		c.misses++
		return nil, false
	}

	c.order.MoveToFront(elem)
	c.hits++
	out := make([]types.ChildSummary, len(e.children))
	copy(out, e.children)
	return out, true
}

// Put stores a freshly scanned listing together with the mtimes it was
// computed from. Stat failures make the entry uncacheable and are
// swallowed: caching must never fail the read that produced it.
func (c *Children) Put(parentFile string, children []types.ChildSummary, childFiles []string) {
	parentInfo, err := os.Stat(parentFile)
	if err != nil {
		return
	}
	mtimes := make(map[string]time.Time, len(childFiles))
	for _, f := range childFiles {
		info, err := os.Stat(f)
		if err != nil {
			return
		}
		mtimes[f] = info.ModTime()
	}

	stored := make([]types.ChildSummary, len(children))
	copy(stored, children)

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[parentFile]; ok {
		c.removeLocked(elem)
	}
	e := &entry{
		key:            parentFile,
		children:       stored,
		parentMtime:    parentInfo.ModTime(),
		childrenMtimes: mtimes,
		cachedAt:       time.Now(),
	}
	c.entries[parentFile] = c.order.PushFront(e)

	for len(c.entries) > c.max {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest)
		c.evictions++
	}
}

// Invalidate drops the entry for a parent file. Mutating writes to a
// parent or any of its children must call this.
func (c *Children) Invalidate(parentFile string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[parentFile]; ok {
		c.removeLocked(elem)
	}
}

// InvalidateAll empties the cache.
func (c *Children) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*list.Element)
	c.order.Init()
}

// Stats returns a snapshot of the counters.
func (c *Children) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   len(c.entries),
	}
}

func (c *Children) fresh(e *entry) bool {
	info, err := os.Stat(e.key)
	if err != nil || !withinTolerance(info.ModTime(), e.parentMtime) {
		return false
	}
	for f, recorded := range e.childrenMtimes {
		ci, err := os.Stat(f)
		if err != nil || !withinTolerance(ci.ModTime(), recorded) {
			return false
		}
	}
	return true
}

func (c *Children) removeLocked(elem *list.Element) {
	e := elem.Value.(*entry)
	delete(c.entries, e.key)
	c.order.Remove(elem)
}

func withinTolerance(a, b time.Time) bool {
	d := a.Sub(b)
	if d < 0 {
		d = -d
	}
	return d <= mtimeTolerance
}
