package downsample

import (
	"testing"

	"github.com/loadpulse/loadpulse/pkg/model"
)

func TestOptimize_CacheIdempotence(t *testing.T) {
	d := New(8)
	points := series(2000, func(i int) float64 { return float64(i % 50) })
	cfg := Config{MaxPoints: 500, Strategy: StrategyAdaptive, CacheEnabled: true}

	first := d.Optimize(points, cfg)
	if first.CacheHit {
		t.Fatal("first call must be a miss")
	}

	second := d.Optimize(points, cfg)
	if !second.CacheHit {
		t.Fatal("second identical call must be a hit")
	}
	if len(first.Points) != len(second.Points) {
		t.Fatalf("cached result differs in length: %d vs %d", len(first.Points), len(second.Points))
	}
	for i := range first.Points {
		if first.Points[i] != second.Points[i] {
			t.Fatalf("cached result differs at point %d", i)
		}
	}

	stats := d.CacheStats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Errorf("stats = %+v, want 1 hit / 1 miss", stats)
	}
	if stats.AvgCompressionRatio != first.CompressionRatio {
		t.Errorf("avg ratio = %v, want %v", stats.AvgCompressionRatio, first.CompressionRatio)
	}
}

func TestOptimize_ConfigChangesFingerprint(t *testing.T) {
	d := New(8)
	points := series(2000, func(i int) float64 { return 100 })

	d.Optimize(points, Config{MaxPoints: 500, Strategy: StrategyUniform, CacheEnabled: true})
	res := d.Optimize(points, Config{MaxPoints: 400, Strategy: StrategyUniform, CacheEnabled: true})

	if res.CacheHit {
		t.Error("different config must not hit the cache")
	}
}

func TestOptimize_CacheDisabled(t *testing.T) {
	d := New(8)
	points := series(2000, func(i int) float64 { return 100 })
	cfg := Config{MaxPoints: 500, Strategy: StrategyUniform}

	d.Optimize(points, cfg)
	if res := d.Optimize(points, cfg); res.CacheHit {
		t.Error("cache hit with caching disabled")
	}
	if stats := d.CacheStats(); stats.Size != 0 {
		t.Errorf("cache populated while disabled: %+v", stats)
	}
}

func TestResultCache_EvictsLRU(t *testing.T) {
	c := newResultCache(2)

	c.put(1, Result{ResultCount: 1, CompressionRatio: 2})
	c.put(2, Result{ResultCount: 2, CompressionRatio: 2})

	// Touch key 1 so key 2 becomes the eviction victim.
	if _, ok := c.get(1); !ok {
		t.Fatal("key 1 missing")
	}
	c.put(3, Result{ResultCount: 3, CompressionRatio: 2})

	if _, ok := c.get(2); ok {
		t.Error("key 2 should have been evicted")
	}
	if _, ok := c.get(1); !ok {
		t.Error("key 1 should have survived")
	}
	if _, ok := c.get(3); !ok {
		t.Error("key 3 should be present")
	}

	stats := c.stats()
	if stats.Evictions != 1 {
		t.Errorf("Evictions = %d, want 1", stats.Evictions)
	}
	if stats.Size != 2 {
		t.Errorf("Size = %d, want 2", stats.Size)
	}
}

func TestResultCache_ClearResetsCounters(t *testing.T) {
	c := newResultCache(4)
	c.put(1, Result{CompressionRatio: 3})
	c.get(1)
	c.get(99)

	c.clear()

	stats := c.stats()
	if stats.Size != 0 || stats.Hits != 0 || stats.Misses != 0 || stats.AvgCompressionRatio != 0 {
		t.Errorf("clear did not reset: %+v", stats)
	}
}

func TestFingerprint_SensitiveToShape(t *testing.T) {
	a := series(100, func(i int) float64 { return 100 })
	cfg := Config{MaxPoints: 10, Strategy: StrategyUniform}

	fpA := fingerprint(a, cfg)

	b := series(100, func(i int) float64 { return 100 })
	b[99].ResponseTime = 999 // last point differs
	if fingerprint(b, cfg) == fpA {
		t.Error("fingerprint ignored a changed last point")
	}

	c := series(101, func(i int) float64 { return 100 })
	if fingerprint(c, cfg) == fpA {
		t.Error("fingerprint ignored a changed length")
	}

	var d []model.MeasurementPoint
	d = append(d, a...)
	if fingerprint(d, cfg) != fpA {
		t.Error("equal batches must share a fingerprint")
	}
}
