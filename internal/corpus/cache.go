package corpus

import (
	"fmt"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
)

// BlockSource is anything that can produce a decoded block.
type BlockSource interface {
	DecodeBlock(b Block) (string, error)
}

// CachedDecoder keeps the most recently decoded blocks in memory, keyed by
// block start. Neighbouring titles share a block, so a warm cache skips the
// decompression for them. Failed decodes are never cached.
type CachedDecoder struct {
	next   BlockSource
	blocks *lru.Cache[uint64, string]
	hits   atomic.Int64
	misses atomic.Int64
}

// NewCachedDecoder wraps next with an LRU holding up to size blocks.
func NewCachedDecoder(next BlockSource, size int) (*CachedDecoder, error) {
	blocks, err := lru.New[uint64, string](size)
	if err != nil {
		return nil, fmt.Errorf("creating block cache: %w", err)
	}
	return &CachedDecoder{next: next, blocks: blocks}, nil
}

func (c *CachedDecoder) DecodeBlock(b Block) (string, error) {
	if text, ok := c.blocks.Get(b.Start); ok {
		c.hits.Add(1)
		return text, nil
	}
	c.misses.Add(1)
	text, err := c.next.DecodeBlock(b)
	if err != nil {
		return "", err
	}
	c.blocks.Add(b.Start, text)
	return text, nil
}

// Stats returns cache hit and miss counts.
func (c *CachedDecoder) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// Purge empties the cache, e.g. after the corpus file is replaced.
func (c *CachedDecoder) Purge() {
	c.blocks.Purge()
}
