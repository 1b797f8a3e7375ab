package resbind

import (
	"fmt"
	"math/bits"
)

// CacheContent tells who owns a resource cache.
type CacheContent uint8

const (
	// CacheSignature is the static resource cache of a signature.
	CacheSignature CacheContent = iota
	// CacheSRB is the draw-ready cache of a shader resource binding.
	CacheSRB
)

func (c CacheContent) String() string {
	if c == CacheSRB {
		return "srb"
	}
	return "signature"
}

// Cache holds the objects bound to every (range, stage, slot) cell of a
// signature layout. Backends decide how many ranges and stages exist and
// size the cache from their range counters.
//
// Cache is not safe for concurrent use. A cache is populated once and may
// then be read from several goroutines.
type Cache struct {
	content   CacheContent
	numRanges int
	numStages int
	counts    []uint32 // [range*numStages+stage]
	offsets   []uint32
	cells     []Binding

	// Dynamic constant buffer slots per stage.
	dynRange int
	dynMasks []uint64

	immutableSamplersInit bool
}

// NewCache creates a cache with counts[r][s] slots for range r and stage s.
// All rows of counts must have the same length.
func NewCache(content CacheContent, counts [][]uint32) *Cache {
	c := &Cache{content: content, numRanges: len(counts), dynRange: -1}
	if len(counts) > 0 {
		c.numStages = len(counts[0])
	}
	c.counts = make([]uint32, c.numRanges*c.numStages)
	c.offsets = make([]uint32, c.numRanges*c.numStages)
	var total uint32
	for r, row := range counts {
		Verify(len(row) == c.numStages, "cache range %d has %d stages, want %d", r, len(row), c.numStages)
		for s, n := range row {
			i := r*c.numStages + s
			c.counts[i] = n
			c.offsets[i] = total
			total += n
		}
	}
	c.cells = make([]Binding, total)
	return c
}

// ContentType returns who owns the cache.
func (c *Cache) ContentType() CacheContent { return c.content }

// NumRanges returns the range dimension of the cache.
func (c *Cache) NumRanges() int { return c.numRanges }

// NumStages returns the stage dimension of the cache.
func (c *Cache) NumStages() int { return c.numStages }

// SlotCount returns the number of slots for range r in stage s.
func (c *Cache) SlotCount(r, s int) uint32 {
	if r < 0 || r >= c.numRanges || s < 0 || s >= c.numStages {
		return 0
	}
	return c.counts[r*c.numStages+s]
}

// TotalCells returns the number of cells across all ranges and stages.
func (c *Cache) TotalCells() int { return len(c.cells) }

func (c *Cache) cell(r, s int, slot uint32) *Binding {
	Verify(r >= 0 && r < c.numRanges && s >= 0 && s < c.numStages,
		"cache cell (%d,%d) outside %dx%d", r, s, c.numRanges, c.numStages)
	i := r*c.numStages + s
	Verify(slot < c.counts[i], "cache slot %d of range %d stage %d exceeds %d", slot, r, s, c.counts[i])
	return &c.cells[c.offsets[i]+slot]
}

// Set binds b to a cell. A dynamic buffer is rejected in a constant
// buffer slot that is not marked dynamic.
func (c *Cache) Set(r, s int, slot uint32, b Binding) error {
	cell := c.cell(r, s, slot)
	if b.Dynamic && r == c.dynRange && slot < 64 && c.dynMasks[s]&(1<<slot) == 0 {
		return fmt.Errorf("%w: dynamic buffer in non-dynamic slot %d of stage %d", ErrIncompatibleBinding, slot, s)
	}
	*cell = b
	return nil
}

// Get returns the object bound to a cell.
func (c *Cache) Get(r, s int, slot uint32) Binding { return *c.cell(r, s, slot) }

// IsBound reports whether a cell holds an object.
func (c *Cache) IsBound(r, s int, slot uint32) bool { return !c.cell(r, s, slot).IsNil() }

// CopyFrom copies one cell from src into the same position of c. It
// returns false, leaving c untouched, when the source cell is unbound.
func (c *Cache) CopyFrom(src *Cache, r, s int, srcSlot, dstSlot uint32) bool {
	b := src.Get(r, s, srcSlot)
	if b.IsNil() {
		return false
	}
	*c.cell(r, s, dstSlot) = b
	return true
}

// TrackDynamicBuffers records which constant buffer slots of range cbRange
// accept dynamic buffers, one mask per stage.
func (c *Cache) TrackDynamicBuffers(cbRange int, masks []uint64) {
	Verify(len(masks) == c.numStages, "dynamic buffer masks for %d stages, cache has %d", len(masks), c.numStages)
	c.dynRange = cbRange
	c.dynMasks = append([]uint64(nil), masks...)
}

// DynamicCBSlots returns the dynamic constant buffer mask of stage s.
func (c *Cache) DynamicCBSlots(s int) uint64 {
	if c.dynRange < 0 || s < 0 || s >= c.numStages {
		return 0
	}
	return c.dynMasks[s]
}

// BoundDynamicCBs returns the dynamic slots of stage s that currently hold
// a buffer bound with a dynamic offset.
func (c *Cache) BoundDynamicCBs(s int) uint64 {
	var bound uint64
	for m := c.DynamicCBSlots(s); m != 0; m &= m - 1 {
		slot := uint32(bits.TrailingZeros64(m))
		if slot < c.SlotCount(c.dynRange, s) && c.Get(c.dynRange, s, slot).Dynamic {
			bound |= 1 << slot
		}
	}
	return bound
}

// VerifyDynamicBufferMasks panics if a dynamic buffer sits in a slot
// outside the dynamic mask of its stage.
func (c *Cache) VerifyDynamicBufferMasks() {
	if c.dynRange < 0 {
		return
	}
	for s := range c.numStages {
		for slot := range c.SlotCount(c.dynRange, s) {
			if c.Get(c.dynRange, s, slot).Dynamic {
				Verify(slot < 64 && c.dynMasks[s]&(1<<slot) != 0,
					"dynamic buffer in stage %d slot %d outside dynamic mask %#x", s, slot, c.dynMasks[s])
			}
		}
	}
}

// MarkImmutableSamplersInitialized records that the immutable samplers of
// the owning signature have been written into the cache.
func (c *Cache) MarkImmutableSamplersInitialized() { c.immutableSamplersInit = true }

// ImmutableSamplersInitialized reports whether immutable samplers were
// written.
func (c *Cache) ImmutableSamplersInitialized() bool { return c.immutableSamplersInit }
