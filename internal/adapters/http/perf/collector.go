// Package perf keeps a fixed-size ring of timing entries for HTTP requests,
// SQL statements and outbound remote-store calls, aggregated on read.
package perf

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultRingSize is the default capacity of the ring buffer.
const DefaultRingSize = 10000

// EntryKind distinguishes what was timed.
type EntryKind uint8

const (
	KindRequest EntryKind = iota
	KindQuery
	// KindRemote is a call made by the planner's remote-store client.
	KindRemote
)

func (k EntryKind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindQuery:
		return "query"
	default:
		return "remote"
	}
}

// Entry is a single timing record stored in the ring buffer.
type Entry struct {
	Kind       EntryKind
	Path       string // route pattern, statement label or remote operation
	StatusCode int    // HTTP status; 0 for queries
	DurationMs float64
	Timestamp  time.Time
}

// Collector is a fixed-size ring buffer for timing entries.
// Writes are non-blocking; when full, oldest entries are overwritten.
type Collector struct {
	mu      sync.Mutex
	entries []Entry
	size    int
	pos     int
	count   int64 // total entries ever written
}

// NewCollector creates a collector with the given ring buffer capacity.
// PRE: none; a non-positive size selects DefaultRingSize
// POST: Returns a ready-to-use collector with pre-allocated storage
func NewCollector(size int) *Collector {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Collector{
		entries: make([]Entry, size),
		size:    size,
	}
}

// Record appends an entry to the ring buffer.
// POST: Entry stored; if buffer full, oldest entry overwritten
func (c *Collector) Record(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	c.mu.Lock()
	c.entries[c.pos] = e
	c.pos = (c.pos + 1) % c.size
	c.mu.Unlock()
	atomic.AddInt64(&c.count, 1)
}

// TotalRecorded returns the total number of entries ever recorded.
func (c *Collector) TotalRecorded() int64 {
	return atomic.LoadInt64(&c.count)
}

// Snapshot holds aggregated performance data for the admin endpoint.
type Snapshot struct {
	Since          time.Time  `json:"since"`
	TotalRecorded  int64      `json:"total_recorded"`
	Requests       int        `json:"requests"`
	ServerErrors   int        `json:"server_errors"`
	RequestP50Ms   float64    `json:"request_p50_ms"`
	RequestP95Ms   float64    `json:"request_p95_ms"`
	RequestP99Ms   float64    `json:"request_p99_ms"`
	RemoteP95Ms    float64    `json:"remote_p95_ms"`
	SlowestPaths   []PathStat `json:"slowest_paths"`
	SlowestQueries []PathStat `json:"slowest_queries"`
	SlowestRemote  []PathStat `json:"slowest_remote"`
}

// PathStat aggregates timing for one path, statement or remote operation.
type PathStat struct {
	Path    string  `json:"path"`
	AvgMs   float64 `json:"avg_ms"`
	MaxMs   float64 `json:"max_ms"`
	Count   int     `json:"count"`
	TotalMs float64 `json:"total_ms"`
}

type aggregate struct {
	durations []float64
	stats     map[string]*PathStat
}

func (a *aggregate) add(e Entry) {
	a.durations = append(a.durations, e.DurationMs)
	s, ok := a.stats[e.Path]
	if !ok {
		s = &PathStat{Path: e.Path}
		a.stats[e.Path] = s
	}
	s.Count++
	s.TotalMs += e.DurationMs
	if e.DurationMs > s.MaxMs {
		s.MaxMs = e.DurationMs
	}
}

func (a *aggregate) percentile(p float64) float64 {
	if len(a.durations) == 0 {
		return 0
	}
	if !sort.Float64sAreSorted(a.durations) {
		sort.Float64s(a.durations)
	}
	return percentile(a.durations, p)
}

// Snapshot computes aggregated stats from entries recorded at or after since.
// It sorts, so call it on demand only.
// POST: Returns a Snapshot with percentiles and top-N lists
func (c *Collector) Snapshot(since time.Time, topN int) Snapshot {
	c.mu.Lock()
	buf := make([]Entry, c.size)
	copy(buf, c.entries)
	c.mu.Unlock()

	aggs := map[EntryKind]*aggregate{}
	for _, k := range []EntryKind{KindRequest, KindQuery, KindRemote} {
		aggs[k] = &aggregate{stats: make(map[string]*PathStat)}
	}
	snap := Snapshot{Since: since, TotalRecorded: c.TotalRecorded()}
	for _, e := range buf {
		if e.Timestamp.IsZero() || e.Timestamp.Before(since) {
			continue
		}
		agg, ok := aggs[e.Kind]
		if !ok {
			continue
		}
		agg.add(e)
		if e.Kind == KindRequest && e.StatusCode >= 500 {
			snap.ServerErrors++
		}
	}

	req := aggs[KindRequest]
	snap.Requests = len(req.durations)
	snap.RequestP50Ms = req.percentile(50)
	snap.RequestP95Ms = req.percentile(95)
	snap.RequestP99Ms = req.percentile(99)
	snap.RemoteP95Ms = aggs[KindRemote].percentile(95)
	snap.SlowestPaths = topByAvg(req.stats, topN)
	snap.SlowestQueries = topByAvg(aggs[KindQuery].stats, topN)
	snap.SlowestRemote = topByAvg(aggs[KindRemote].stats, topN)
	return snap
}

// percentile returns the p-th percentile from a sorted slice, interpolating
// between neighbours.
func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	idx := (p / 100) * float64(len(sorted)-1)
	lower := int(math.Floor(idx))
	upper := int(math.Ceil(idx))
	if lower == upper || upper >= len(sorted) {
		return sorted[lower]
	}
	frac := idx - float64(lower)
	return sorted[lower]*(1-frac) + sorted[upper]*frac
}

// topByAvg returns the top N stats by average duration, slowest first.
func topByAvg(stats map[string]*PathStat, n int) []PathStat {
	list := make([]PathStat, 0, len(stats))
	for _, s := range stats {
		s.AvgMs = s.TotalMs / float64(s.Count)
		list = append(list, *s)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].AvgMs != list[j].AvgMs {
			return list[i].AvgMs > list[j].AvgMs
		}
		return list[i].Path < list[j].Path
	})
	if n > 0 && len(list) > n {
		list = list[:n]
	}
	return list
}
