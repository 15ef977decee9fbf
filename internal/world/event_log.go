package world

import (
	"encoding/json"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

const (
	EventBufferSize    = 1024                   // Circular buffer size
	MaxEventsPerSec    = 10000                  // Global rate limit
	MaxEventsPerBody   = 100                    // Per-body rate limit per second
	BatchFlushSize     = 64                     // Events per batch write
	BatchFlushInterval = 100 * time.Millisecond // How often to flush
	BodyLimiterCleanup = 5 * time.Minute        // Cleanup interval for body limiters
)

// EventLog provides bounded, rate-limited JSONL event logging with
// backpressure. Contacts can fire every tick for every body, so both a
// global and a per-body limiter sit in front of the buffer.
type EventLog struct {
	// Circular buffer guarded by mu; the writer goroutine drains it.
	mu        sync.Mutex
	buffer    [EventBufferSize]Event
	writeHead uint64
	readHead  uint64

	globalLimiter *rate.Limiter
	bodyLimiters  sync.Map // map[string]*bodyLimiterEntry

	// lifeMu serialises Start and Stop; running is the lock-free view
	// Emit checks.
	lifeMu   sync.Mutex
	writerWg sync.WaitGroup
	stopChan chan struct{}
	running  atomic.Bool

	filePath string
	file     *os.File
	fileMu   sync.Mutex

	droppedCount uint64 // atomic
	totalCount   uint64 // atomic
}

type bodyLimiterEntry struct {
	limiter  *rate.Limiter
	lastUsed atomic.Int64 // unix nano
}

// NewEventLog creates a new bounded event log
func NewEventLog() *EventLog {
	return &EventLog{
		globalLimiter: rate.NewLimiter(MaxEventsPerSec, MaxEventsPerSec/10),
	}
}

// Start opens filePath for append and begins the async writer. An empty
// path keeps events in memory only (useful for tests and stats). Starting
// a running log is a no-op; a stopped log can be started again.
func (el *EventLog) Start(filePath string) error {
	el.lifeMu.Lock()
	defer el.lifeMu.Unlock()

	if !el.running.CompareAndSwap(false, true) {
		return nil
	}

	var file *os.File
	if filePath != "" {
		f, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			el.running.Store(false)
			return err
		}
		file = f
	}

	el.fileMu.Lock()
	el.filePath = filePath
	el.file = file
	el.fileMu.Unlock()

	stop := make(chan struct{})
	el.stopChan = stop
	el.writerWg.Add(2)
	go el.writerLoop(stop)
	go el.cleanupLoop(stop)

	return nil
}

// Stop flushes pending events and closes the file. Stopping a log that is
// not running does nothing.
func (el *EventLog) Stop() {
	el.lifeMu.Lock()
	defer el.lifeMu.Unlock()

	if !el.running.CompareAndSwap(true, false) {
		return
	}
	close(el.stopChan)
	el.writerWg.Wait()

	el.fileMu.Lock()
	if el.file != nil {
		el.file.Close()
		el.file = nil
	}
	el.fileMu.Unlock()
}

// Emit adds an event with rate limiting.
// Returns false if not running or rate limited. A full buffer drops the
// oldest unflushed event instead.
func (el *EventLog) Emit(event Event) bool {
	if !el.running.Load() {
		return false
	}

	if !el.globalLimiter.Allow() {
		atomic.AddUint64(&el.droppedCount, 1)
		return false
	}

	if event.BodyID != "" && !el.bodyLimiter(event.BodyID).Allow() {
		atomic.AddUint64(&el.droppedCount, 1)
		return false
	}

	el.mu.Lock()
	el.writeHead++
	event.Sequence = el.writeHead
	el.buffer[el.writeHead%EventBufferSize] = event
	displaced := el.writeHead-el.readHead > EventBufferSize
	if displaced {
		// Drop oldest events (rolling window)
		el.readHead = el.writeHead - EventBufferSize
	}
	el.mu.Unlock()

	atomic.AddUint64(&el.totalCount, 1)
	if displaced {
		atomic.AddUint64(&el.droppedCount, 1)
	}
	return true
}

// EmitSimple is a convenience method to emit an event with automatic creation
func (el *EventLog) EmitSimple(eventType EventType, tick uint64, bodyID string, payload interface{}) bool {
	if !el.running.Load() {
		return false
	}
	return el.Emit(NewEvent(eventType, tick, bodyID, payload))
}

func (el *EventLog) bodyLimiter(bodyID string) *rate.Limiter {
	now := time.Now().UnixNano()
	if entry, ok := el.bodyLimiters.Load(bodyID); ok {
		e := entry.(*bodyLimiterEntry)
		e.lastUsed.Store(now)
		return e.limiter
	}

	entry := &bodyLimiterEntry{limiter: rate.NewLimiter(MaxEventsPerBody, MaxEventsPerBody/10)}
	entry.lastUsed.Store(now)
	actual, _ := el.bodyLimiters.LoadOrStore(bodyID, entry)
	return actual.(*bodyLimiterEntry).limiter
}

// writerLoop batches and writes events to disk asynchronously
func (el *EventLog) writerLoop(stop <-chan struct{}) {
	defer el.writerWg.Done()

	ticker := time.NewTicker(BatchFlushInterval)
	defer ticker.Stop()

	batch := make([]Event, 0, BatchFlushSize)

	for {
		select {
		case <-stop:
			// Final flush of everything still buffered
			for {
				batch = el.collectBatch(batch[:0])
				if len(batch) == 0 {
					return
				}
				el.flushBatch(batch)
			}

		case <-ticker.C:
			batch = el.collectBatch(batch[:0])
			if len(batch) > 0 {
				el.flushBatch(batch)
			}
		}
	}
}

// cleanupLoop removes stale body limiters to prevent memory leak
func (el *EventLog) cleanupLoop(stop <-chan struct{}) {
	defer el.writerWg.Done()

	ticker := time.NewTicker(BodyLimiterCleanup)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			el.cleanupBodyLimiters()
		}
	}
}

func (el *EventLog) cleanupBodyLimiters() {
	cutoff := time.Now().Add(-BodyLimiterCleanup).UnixNano()
	el.bodyLimiters.Range(func(key, value interface{}) bool {
		if value.(*bodyLimiterEntry).lastUsed.Load() < cutoff {
			el.bodyLimiters.Delete(key)
		}
		return true
	})
}

// collectBatch reads available events from the circular buffer
func (el *EventLog) collectBatch(batch []Event) []Event {
	el.mu.Lock()
	defer el.mu.Unlock()

	for el.readHead < el.writeHead && len(batch) < BatchFlushSize {
		el.readHead++
		batch = append(batch, el.buffer[el.readHead%EventBufferSize])
	}
	return batch
}

// flushBatch writes events to disk (append-only, newline-delimited JSON)
func (el *EventLog) flushBatch(batch []Event) {
	el.fileMu.Lock()
	defer el.fileMu.Unlock()

	if el.file == nil {
		return
	}

	for _, event := range batch {
		data, err := json.Marshal(event)
		if err != nil {
			continue
		}
		el.file.Write(append(data, '\n'))
	}
}

// Stats returns counters for monitoring
func (el *EventLog) Stats() EventLogStats {
	el.mu.Lock()
	pending := el.writeHead - el.readHead
	el.mu.Unlock()

	return EventLogStats{
		Total:   atomic.LoadUint64(&el.totalCount),
		Dropped: atomic.LoadUint64(&el.droppedCount),
		Pending: pending,
		Running: el.running.Load(),
	}
}

// EventLogStats is a point-in-time view of EventLog counters.
type EventLogStats struct {
	Total   uint64 `json:"total"`
	Dropped uint64 `json:"dropped"`
	Pending uint64 `json:"pending"`
	Running bool   `json:"running"`
}
