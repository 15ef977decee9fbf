package render

import (
	"bytes"
	"fmt"
	"sync"
	"time"
)

const (
	DefaultMaxFrames = 16
	FrameTTL         = 30 * time.Second
)

// FrameKey identifies one rendered frame: the step it shows and the tile
// map it was drawn from.
type FrameKey struct {
	Tick      uint64
	TilesHash uint64
}

func (k FrameKey) String() string {
	return fmt.Sprintf("%d-%016x", k.Tick, k.TilesHash)
}

type cachedFrame struct {
	png        []byte
	renderedAt time.Time
}

// FrameCache stores encoded PNG frames with LRU eviction, so repeated
// requests for the same step are served without drawing again.
type FrameCache struct {
	mu      sync.Mutex
	frames  map[FrameKey]*cachedFrame
	order   []FrameKey // LRU order (oldest first)
	maxSize int
	ttl     time.Duration
	now     func() time.Time

	hits   uint64
	misses uint64
}

// NewFrameCache creates a cache holding at most maxSize frames.
func NewFrameCache(maxSize int) *FrameCache {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrames
	}
	return &FrameCache{
		frames:  make(map[FrameKey]*cachedFrame),
		order:   make([]FrameKey, 0, maxSize),
		maxSize: maxSize,
		ttl:     FrameTTL,
		now:     time.Now,
	}
}

// Get returns a cached frame or nil.
func (c *FrameCache) Get(key FrameKey) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	f, ok := c.frames[key]
	if !ok {
		c.misses++
		return nil
	}
	if c.now().Sub(f.renderedAt) > c.ttl {
		c.removeLocked(key)
		c.misses++
		return nil
	}
	c.touchLocked(key)
	c.hits++
	return f.png
}

// Put stores a frame, evicting the least recently used one when full.
func (c *FrameCache) Put(key FrameKey, png []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.frames[key]; ok {
		c.frames[key] = &cachedFrame{png: png, renderedAt: c.now()}
		c.touchLocked(key)
		return
	}
	for len(c.order) >= c.maxSize {
		c.removeLocked(c.order[0])
	}
	c.frames[key] = &cachedFrame{png: png, renderedAt: c.now()}
	c.order = append(c.order, key)
}

// Len returns the number of cached frames.
func (c *FrameCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.frames)
}

// Stats returns hit and miss counts.
func (c *FrameCache) Stats() (hits, misses uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func (c *FrameCache) touchLocked(key FrameKey) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.order = append(c.order, key)
}

func (c *FrameCache) removeLocked(key FrameKey) {
	delete(c.frames, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}

// CachedPNG returns the encoded frame for key, drawing s on a miss. The
// bool reports a cache hit. A nil cache always draws.
func (r *Renderer) CachedPNG(c *FrameCache, key FrameKey, s Scene) ([]byte, bool, error) {
	if c != nil {
		if png := c.Get(key); png != nil {
			return png, true, nil
		}
	}

	var buf bytes.Buffer
	if err := r.WritePNG(&buf, s); err != nil {
		return nil, false, err
	}
	if c != nil {
		c.Put(key, buf.Bytes())
	}
	return buf.Bytes(), false, nil
}
