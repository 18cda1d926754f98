package logging

import (
	"sort"
	"sync"
	"time"
)

// DefaultMaxEntries is the number of entries kept per key when none is given.
const DefaultMaxEntries = 200

// LogEntry represents a single log record with structured data.
type LogEntry struct {
	Time       time.Time      `json:"time"`
	Level      string         `json:"level"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes"`
}

// LogCollector keeps the most recent log entries per key.
type LogCollector struct {
	max  int
	mu   sync.RWMutex
	logs map[string][]LogEntry
}

// NewLogCollector creates a LogCollector that keeps up to max entries per
// key. A non-positive max uses DefaultMaxEntries.
func NewLogCollector(max int) *LogCollector {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &LogCollector{
		max:  max,
		logs: make(map[string][]LogEntry),
	}
}

// AddLog appends an entry for key, dropping the oldest entry when full.
func (c *LogCollector) AddLog(key string, entry LogEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	logs := append(c.logs[key], entry)
	if len(logs) > c.max {
		logs = append(logs[:0:0], logs[len(logs)-c.max:]...)
	}
	c.logs[key] = logs
}

// GetLogs returns a copy of the entries for key, oldest first.
func (c *LogCollector) GetLogs(key string) []LogEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	logs, exists := c.logs[key]
	if !exists {
		return nil
	}
	result := make([]LogEntry, len(logs))
	copy(result, logs)
	return result
}

// Keys returns the keys with captured entries in sorted order.
func (c *LogCollector) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.logs))
	for k := range c.logs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Remove discards the entries for key.
func (c *LogCollector) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.logs, key)
}
