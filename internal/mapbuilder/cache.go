package mapbuilder

import (
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
)

// cache is a process-local response cache keyed by query shape. Entries
// live until the retention scheduler's daily sweep; the working set is
// small enough (one entry per distinct query shape per day) that no
// external cache is warranted.
type cache struct {
	mu      sync.RWMutex
	entries map[string]Result
}

func newCache() *cache {
	return &cache{entries: make(map[string]Result)}
}

// cacheKey canonicalizes a coordinates() query into a lookup key: minute-
// truncated start/end, the report-node-hours window, and the sorted preset
// filter.
func cacheKey(start, end time.Time, reportNodeHours int, presets []string) string {
	sorted := append([]string(nil), presets...)
	sort.Strings(sorted)
	return strings.Join([]string{
		start.Format(time.RFC3339),
		end.Format(time.RFC3339),
		strconv.Itoa(reportNodeHours),
		strings.Join(sorted, ","),
	}, "|")
}

func (c *cache) get(key string) (Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.entries[key]
	return r, ok
}

func (c *cache) put(key string, r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = r
}

// Purge drops every cached response.
func (c *cache) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]Result)
	c.mu.Unlock()
}
