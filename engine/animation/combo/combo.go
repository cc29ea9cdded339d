// package combo contains the weighted multi-animation blend state evaluated by a pivot hierarchy.
package combo

import (
	"math"

	"github.com/Carmen-Shannon/oxy-anim/engine/animation/clip"
)

// weightEpsilon is how far a weight sum may stray from 1 before NormalizeWeights rescales it.
const weightEpsilon = 0.0001

// Ownership records whether a combo entry holds its clip exclusively or shares it with other owners.
type Ownership int

const (
	// OwnershipShared entries reference a clip that other objects also use.
	OwnershipShared Ownership = iota
	// OwnershipExclusive entries own their clip; it is released with the entry.
	OwnershipExclusive
)

// Entry is one clip of a combo.
type Entry struct {
	Clip      clip.Clip
	Frame     float32
	Weight    float32
	PivotMap  *PivotMap
	Ownership Ownership
}

// PivotWeight returns the entry weight for a pivot, scaled by the pivot map when one is set.
func (e *Entry) PivotWeight(pivot int) float32 {
	if e.PivotMap == nil {
		return e.Weight
	}
	return e.Weight * e.PivotMap.Weight(pivot)
}

// comboImpl is the implementation of the Combo interface.
type comboImpl struct {
	entries []Entry
}

// Combo is an ordered set of weighted clips blended together per pivot.
//
// Entry order matters: rotations are blended pairwise in order, so reordering entries changes the result.
type Combo interface {
	// Add appends an entry.
	//
	// Parameters:
	//   - c: the clip
	//   - frame: the frame to sample the clip at
	//   - weight: the entry weight
	//   - pivotMap: optional per-pivot weights, may be nil
	//   - ownership: whether the entry owns the clip
	//
	// Returns:
	//   - int: the index of the new entry
	Add(c clip.Clip, frame, weight float32, pivotMap *PivotMap, ownership Ownership) int

	// Remove deletes the entry at index i, shifting later entries down. Out of range indices are ignored.
	Remove(i int)

	// Clear removes every entry.
	Clear()

	// NumAnims returns the number of entries.
	NumAnims() int

	// Entry returns a copy of the entry at index i.
	//
	// Returns:
	//   - Entry: the entry
	//   - bool: false if i is out of range
	Entry(i int) (Entry, bool)

	// Clip returns the clip of entry i, nil when out of range.
	Clip(i int) clip.Clip

	// SetClip replaces the clip of entry i.
	SetClip(i int, c clip.Clip, ownership Ownership)

	// Frame returns the frame of entry i, 0 when out of range.
	Frame(i int) float32

	// SetFrame sets the frame of entry i.
	SetFrame(i int, frame float32)

	// Weight returns the weight of entry i, 0 when out of range.
	Weight(i int) float32

	// SetWeight sets the weight of entry i.
	SetWeight(i int, weight float32)

	// PivotMap returns the pivot map of entry i, nil when unset or out of range.
	PivotMap(i int) *PivotMap

	// SetPivotMap sets or clears the pivot map of entry i.
	SetPivotMap(i int, m *PivotMap)

	// NumPivots returns the smallest pivot count among the entries' clips, 0 without clips.
	NumPivots() int

	// NormalizeWeights rescales the weights so they sum to 1.
	//
	// When no entry has a pivot map the clip weights are rescaled. When every entry has one, the map
	// entries are rescaled per pivot so that the sum of weight*map[pivot] is 1 for each pivot. Entries
	// without a clip are ignored. A combo mixing both kinds is left untouched.
	//
	// Returns:
	//   - bool: false if entries with and without pivot maps are mixed
	NormalizeWeights() bool
}

var _ Combo = &comboImpl{}

// NewCombo creates an empty combo.
//
// Returns:
//   - Combo: the combo
func NewCombo() Combo {
	return &comboImpl{}
}

func (c *comboImpl) Add(cl clip.Clip, frame, weight float32, pivotMap *PivotMap, ownership Ownership) int {
	c.entries = append(c.entries, Entry{
		Clip:      cl,
		Frame:     frame,
		Weight:    weight,
		PivotMap:  pivotMap,
		Ownership: ownership,
	})
	return len(c.entries) - 1
}

func (c *comboImpl) Remove(i int) {
	if i < 0 || i >= len(c.entries) {
		return
	}
	c.entries = append(c.entries[:i], c.entries[i+1:]...)
}

func (c *comboImpl) Clear() {
	c.entries = nil
}

func (c *comboImpl) NumAnims() int {
	return len(c.entries)
}

func (c *comboImpl) entry(i int) *Entry {
	if i < 0 || i >= len(c.entries) {
		return nil
	}
	return &c.entries[i]
}

func (c *comboImpl) Entry(i int) (Entry, bool) {
	if e := c.entry(i); e != nil {
		return *e, true
	}
	return Entry{}, false
}

func (c *comboImpl) Clip(i int) clip.Clip {
	if e := c.entry(i); e != nil {
		return e.Clip
	}
	return nil
}

func (c *comboImpl) SetClip(i int, cl clip.Clip, ownership Ownership) {
	if e := c.entry(i); e != nil {
		e.Clip = cl
		e.Ownership = ownership
	}
}

func (c *comboImpl) Frame(i int) float32 {
	if e := c.entry(i); e != nil {
		return e.Frame
	}
	return 0
}

func (c *comboImpl) SetFrame(i int, frame float32) {
	if e := c.entry(i); e != nil {
		e.Frame = frame
	}
}

func (c *comboImpl) Weight(i int) float32 {
	if e := c.entry(i); e != nil {
		return e.Weight
	}
	return 0
}

func (c *comboImpl) SetWeight(i int, weight float32) {
	if e := c.entry(i); e != nil {
		e.Weight = weight
	}
}

func (c *comboImpl) PivotMap(i int) *PivotMap {
	if e := c.entry(i); e != nil {
		return e.PivotMap
	}
	return nil
}

func (c *comboImpl) SetPivotMap(i int, m *PivotMap) {
	if e := c.entry(i); e != nil {
		e.PivotMap = m
	}
}

func (c *comboImpl) NumPivots() int {
	n := -1
	for i := range c.entries {
		if cl := c.entries[i].Clip; cl != nil && (n < 0 || cl.NumPivots() < n) {
			n = cl.NumPivots()
		}
	}
	return max(n, 0)
}

func (c *comboImpl) NormalizeWeights() bool {
	withMap, withoutMap := 0, 0
	for i := range c.entries {
		if c.entries[i].Clip == nil {
			continue
		}
		if c.entries[i].PivotMap != nil {
			withMap++
		} else {
			withoutMap++
		}
	}

	switch {
	case withMap > 0 && withoutMap > 0:
		return false
	case withMap > 0:
		c.normalizePivotMaps()
	default:
		c.normalizeClipWeights()
	}
	return true
}

func (c *comboImpl) normalizeClipWeights() {
	var total float32
	for i := range c.entries {
		if c.entries[i].Clip != nil {
			total += c.entries[i].Weight
		}
	}
	if total == 0 || math.Abs(float64(total-1)) <= weightEpsilon {
		return
	}
	scale := 1 / total
	for i := range c.entries {
		if c.entries[i].Clip != nil {
			c.entries[i].Weight *= scale
		}
	}
}

// normalizePivotMaps rescales each shared map once per pivot, even when several entries reference it.
func (c *comboImpl) normalizePivotMaps() {
	var maps []*PivotMap
	seen := make(map[*PivotMap]bool)
	for i := range c.entries {
		if m := c.entries[i].PivotMap; c.entries[i].Clip != nil && !seen[m] {
			seen[m] = true
			maps = append(maps, m)
		}
	}

	numPivots := c.NumPivots()
	for p := 0; p < numPivots; p++ {
		var total float32
		for i := range c.entries {
			if c.entries[i].Clip != nil {
				total += c.entries[i].PivotWeight(p)
			}
		}
		if total == 0 || math.Abs(float64(total-1)) <= weightEpsilon {
			continue
		}
		scale := 1 / total
		for _, m := range maps {
			m.SetWeight(p, m.Weight(p)*scale)
		}
	}
}
