package downsample

import (
	"container/list"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/loadpulse/loadpulse/pkg/model"
)

// fingerprint derives a cheap structural digest of a batch plus its
// configuration: the batch length, the first, middle, and last points, and
// the config fields. Two batches that agree on all of those are treated as
// identical. This is an approximate content hash, not collision-proof.
func fingerprint(points []model.MeasurementPoint, cfg Config) uint64 {
	n := len(points)
	first, mid, last := points[0], points[n/2], points[n-1]

	key := fmt.Sprintf("%d|%s|%s|%s|%d|%s|%t",
		n, pointDigest(first), pointDigest(mid), pointDigest(last),
		cfg.MaxPoints, cfg.Strategy, cfg.PreserveKeyPoints)
	return xxhash.Sum64String(key)
}

func pointDigest(p model.MeasurementPoint) string {
	return fmt.Sprintf("%d:%g:%g:%g", p.Timestamp, p.ResponseTime, p.Throughput, p.ErrorRate)
}

// CacheStats is a snapshot of result-cache usage.
type CacheStats struct {
	Size                int     `json:"size"`
	Capacity            int     `json:"capacity"`
	Hits                uint64  `json:"hits"`
	Misses              uint64  `json:"misses"`
	Evictions           uint64  `json:"evictions"`
	AvgCompressionRatio float64 `json:"avg_compression_ratio"`
}

// resultCache is a bounded, mutex-guarded LRU of downsample results. Cached
// results are immutable; eviction is least-recently-used, so the cache never
// grows past its capacity however long the process runs.
type resultCache struct {
	mu       sync.Mutex
	capacity int
	order    *list.List // front = most recently used
	entries  map[uint64]*list.Element

	hits      uint64
	misses    uint64
	evictions uint64
	ratioSum  float64
	ratioN    uint64
}

type cacheEntry struct {
	key    uint64
	result Result
}

func newResultCache(capacity int) *resultCache {
	return &resultCache{
		capacity: capacity,
		order:    list.New(),
		entries:  make(map[uint64]*list.Element, capacity),
	}
}

func (c *resultCache) get(key uint64) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return Result{}, false
	}
	c.hits++
	c.order.MoveToFront(elem)
	return elem.Value.(*cacheEntry).result, true
}

func (c *resultCache) put(key uint64, res Result) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ratioSum += res.CompressionRatio
	c.ratioN++

	if elem, ok := c.entries[key]; ok {
		elem.Value.(*cacheEntry).result = res
		c.order.MoveToFront(elem)
		return
	}

	if c.order.Len() >= c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
			c.evictions++
		}
	}
	c.entries[key] = c.order.PushFront(&cacheEntry{key: key, result: res})
}

func (c *resultCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.order.Init()
	c.entries = make(map[uint64]*list.Element, c.capacity)
	c.hits, c.misses, c.evictions = 0, 0, 0
	c.ratioSum, c.ratioN = 0, 0
}

func (c *resultCache) stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := CacheStats{
		Size:      c.order.Len(),
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if c.ratioN > 0 {
		s.AvgCompressionRatio = c.ratioSum / float64(c.ratioN)
	}
	return s
}
