package rcnn

import (
	"sync"

	"github.com/okieraised/go-rpn-proposal/processing"
)

type gridKey struct {
	height, width int
}

// AnchorCache memoises anchor grids for one stride and template set. Cached grids are shared
// and must be treated as read-only.
type AnchorCache struct {
	stride    int
	templates []processing.Box

	mu    sync.RWMutex
	grids map[gridKey][]processing.Box
}

func NewAnchorCache(stride int, templates []processing.Box) *AnchorCache {
	return &AnchorCache{
		stride:    stride,
		templates: append([]processing.Box(nil), templates...),
		grids:     make(map[gridKey][]processing.Box),
	}
}

// Get returns the grid for a height x width feature map, building it on first use.
func (c *AnchorCache) Get(height, width int) ([]processing.Box, error) {
	key := gridKey{height: height, width: width}

	c.mu.RLock()
	grid, ok := c.grids[key]
	c.mu.RUnlock()
	if ok {
		return grid, nil
	}

	grid, err := Anchors(height, width, c.stride, c.templates)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cached, ok := c.grids[key]; ok {
		return cached, nil
	}
	c.grids[key] = grid
	return grid, nil
}

func (c *AnchorCache) NumAnchors() int {
	return len(c.templates)
}

func (c *AnchorCache) Stride() int {
	return c.stride
}
