package state

import (
	"runtime"
	"sync"
	"weak"
)

// WeakContainer maps keys to weakly held cells.
//
// A cell stays reachable through the container only while something else
// holds a strong reference to it. Once collected, the key behaves as if it
// had never been created and the next GetOrCreate builds a fresh cell.
// At most one live cell exists per key.
type WeakContainer[K comparable, V any] struct {
	mu    sync.Mutex
	cells map[K]weak.Pointer[Cell[V]]
}

type cleanupArg[K comparable, V any] struct {
	key K
	ptr weak.Pointer[Cell[V]]
}

// NewWeakContainer returns an empty container.
func NewWeakContainer[K comparable, V any]() *WeakContainer[K, V] {
	return &WeakContainer[K, V]{
		cells: make(map[K]weak.Pointer[Cell[V]]),
	}
}

// Value returns the value of the live cell for key, or nil. It never creates a cell.
func (c *WeakContainer[K, V]) Value(key K) *V {
	if cell, ok := c.Lookup(key); ok {
		return cell.Value()
	}
	return nil
}

// Lookup returns the live cell for key without creating one.
func (c *WeakContainer[K, V]) Lookup(key K) (*Cell[V], bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cell := c.liveLocked(key)
	return cell, cell != nil
}

// GetOrCreate returns the live cell for key or creates one holding
// defaultValue(). onCreate, when set, receives the default after the
// container lock is released and only for the caller that created the cell.
func (c *WeakContainer[K, V]) GetOrCreate(key K, defaultValue func() *V, onCreate func(*V)) *Cell[V] {
	c.mu.Lock()
	if cell := c.liveLocked(key); cell != nil {
		c.mu.Unlock()
		return cell
	}

	var initial *V
	if defaultValue != nil {
		initial = defaultValue()
	}
	cell := c.createLocked(key, initial)
	c.mu.Unlock()

	if onCreate != nil {
		onCreate(initial)
	}
	return cell
}

// GetOrCreateBatch resolves every key, in order, to its cell. Duplicated keys
// resolve to the same cell. Creation happens atomically with respect to other
// callers and onCreate receives the created subset once, if it is not empty.
func (c *WeakContainer[K, V]) GetOrCreateBatch(keys []K, defaultValue func(K) *V, onCreate func(map[K]*V)) []*Cell[V] {
	out := make([]*Cell[V], len(keys))
	created := make(map[K]*V)

	c.mu.Lock()
	for i, key := range keys {
		if cell := c.liveLocked(key); cell != nil {
			out[i] = cell
			continue
		}
		var initial *V
		if defaultValue != nil {
			initial = defaultValue(key)
		}
		out[i] = c.createLocked(key, initial)
		created[key] = initial
	}
	c.mu.Unlock()

	if onCreate != nil && len(created) > 0 {
		onCreate(created)
	}
	return out
}

// UpdateValue sets the value of the live cell for key. Missing or
// collected cells are ignored.
func (c *WeakContainer[K, V]) UpdateValue(key K, value *V) {
	if cell, ok := c.Lookup(key); ok {
		cell.Set(value)
	}
}

// UpdateValueFunc is the read-modify-write form of UpdateValue.
func (c *WeakContainer[K, V]) UpdateValueFunc(key K, fn func(*V) *V) {
	if cell, ok := c.Lookup(key); ok {
		cell.Update(fn)
	}
}

// ComputeAll replaces the value of every live cell with compute(key, current).
func (c *WeakContainer[K, V]) ComputeAll(compute func(key K, current *V) *V) {
	type entry struct {
		key  K
		cell *Cell[V]
	}

	c.mu.Lock()
	live := make([]entry, 0, len(c.cells))
	for key := range c.cells {
		if cell := c.liveLocked(key); cell != nil {
			live = append(live, entry{key: key, cell: cell})
		}
	}
	c.mu.Unlock()

	for _, e := range live {
		key := e.key
		e.cell.Update(func(current *V) *V {
			return compute(key, current)
		})
	}
}

// Keys returns the keys that currently have a live cell.
func (c *WeakContainer[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]K, 0, len(c.cells))
	for key := range c.cells {
		if c.liveLocked(key) != nil {
			keys = append(keys, key)
		}
	}
	return keys
}

// Len returns the number of registry entries, live or awaiting cleanup.
func (c *WeakContainer[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cells)
}

// Clear drops every entry. Cells already handed out keep working but are no
// longer reachable through the container.
func (c *WeakContainer[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.cells)
}

func (c *WeakContainer[K, V]) liveLocked(key K) *Cell[V] {
	ptr, ok := c.cells[key]
	if !ok {
		return nil
	}
	cell := ptr.Value()
	if cell == nil {
		delete(c.cells, key)
	}
	return cell
}

func (c *WeakContainer[K, V]) createLocked(key K, initial *V) *Cell[V] {
	cell := NewCell(initial)
	ptr := weak.Make(cell)
	c.cells[key] = ptr
	runtime.AddCleanup(cell, c.remove, cleanupArg[K, V]{key: key, ptr: ptr})
	return cell
}

// remove drops key only if it still points at the collected cell.
func (c *WeakContainer[K, V]) remove(arg cleanupArg[K, V]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if current, ok := c.cells[arg.key]; ok && current == arg.ptr {
		delete(c.cells, arg.key)
	}
}
