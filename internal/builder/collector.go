package builder

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sync"
)

// recordOverhead approximates the slice header cost of a held record.
const recordOverhead = 24

// collector gathers the lines of one shard. When the tracker reports
// memory pressure the largest collectors spill their lines to a
// length-prefixed temp file.
type collector struct {
	shardID     int
	records     [][]byte
	memoryBytes int64
	tempDir     string
	spillPath   string
	spilled     int
	tracker     *memoryTracker
}

func newCollector(shardID int, tempDir string, tracker *memoryTracker) *collector {
	return &collector{
		shardID: shardID,
		tempDir: tempDir,
		tracker: tracker,
	}
}

// Add stores a copy of record.
func (c *collector) Add(record []byte) error {
	rec := append([]byte(nil), record...)
	c.records = append(c.records, rec)

	size := int64(len(rec) + recordOverhead)
	c.memoryBytes += size
	c.tracker.add(size)

	if c.tracker.overLimit() {
		if err := c.tracker.spill(); err != nil {
			return fmt.Errorf("spilling to disk: %w", err)
		}
	}
	return nil
}

// Count returns the number of records held in memory and on disk.
func (c *collector) Count() int {
	return len(c.records) + c.spilled
}

// All returns spilled records followed by in-memory ones.
func (c *collector) All() ([][]byte, error) {
	var all [][]byte
	if c.spillPath != "" {
		f, err := os.Open(c.spillPath)
		if err != nil {
			return nil, fmt.Errorf("opening spill file: %w", err)
		}
		defer f.Close()

		r := bufio.NewReader(f)
		for {
			var n uint32
			if err := binary.Read(r, binary.BigEndian, &n); err != nil {
				if errors.Is(err, io.EOF) {
					break
				}
				return nil, fmt.Errorf("reading length: %w", err)
			}
			rec := make([]byte, n)
			if _, err := io.ReadFull(r, rec); err != nil {
				return nil, fmt.Errorf("reading record: %w", err)
			}
			all = append(all, rec)
		}
	}
	return append(all, c.records...), nil
}

func (c *collector) spillToDisk() error {
	if len(c.records) == 0 {
		return nil
	}

	path := filepath.Join(c.tempDir, fmt.Sprintf("shard_%05d.tmp", c.shardID))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening spill file: %w", err)
	}

	w := bufio.NewWriter(f)
	for _, rec := range c.records {
		if err := binary.Write(w, binary.BigEndian, uint32(len(rec))); err != nil {
			f.Close()
			return fmt.Errorf("writing length: %w", err)
		}
		if _, err := w.Write(rec); err != nil {
			f.Close()
			return fmt.Errorf("writing record: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flushing spill file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing spill file: %w", err)
	}

	c.tracker.remove(c.memoryBytes)
	c.spillPath = path
	c.spilled += len(c.records)
	c.records = nil
	c.memoryBytes = 0
	return nil
}

// memoryTracker sums the memory held by all collectors.
type memoryTracker struct {
	mu         sync.Mutex
	totalBytes int64
	maxBytes   int64
	collectors []*collector
}

func newMemoryTracker(maxMB int) *memoryTracker {
	return &memoryTracker{maxBytes: int64(maxMB) << 20}
}

func (m *memoryTracker) add(n int64) {
	m.mu.Lock()
	m.totalBytes += n
	m.mu.Unlock()
}

func (m *memoryTracker) remove(n int64) {
	m.mu.Lock()
	m.totalBytes -= n
	m.mu.Unlock()
}

func (m *memoryTracker) overLimit() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalBytes > m.maxBytes
}

// spill empties the largest collectors until memory is under the limit.
func (m *memoryTracker) spill() error {
	spilled := 0
	for m.overLimit() {
		m.mu.Lock()
		var largest *collector
		for _, c := range m.collectors {
			if len(c.records) > 0 && (largest == nil || c.memoryBytes > largest.memoryBytes) {
				largest = c
			}
		}
		m.mu.Unlock()

		if largest == nil {
			break
		}
		if err := largest.spillToDisk(); err != nil {
			return err
		}
		spilled++
	}

	if spilled > 0 {
		runtime.GC()
	}
	return nil
}
