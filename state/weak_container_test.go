package state

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWeakContainerGetOrCreate(t *testing.T) {
	c := NewWeakContainer[string, int]()

	var created []*int
	cell := c.GetOrCreate("a", func() *int { return ptr(1) }, func(v *int) {
		created = append(created, v)
	})
	require.NotNil(t, cell)
	assert.Equal(t, 1, *cell.Value())
	require.Len(t, created, 1)
	assert.Equal(t, 1, *created[0])

	again := c.GetOrCreate("a", func() *int {
		t.Fatal("default evaluated for an existing cell")
		return nil
	}, func(*int) {
		t.Fatal("onCreate invoked for an existing cell")
	})
	assert.Same(t, cell, again)
	assert.Equal(t, 1, *c.Value("a"))
	assert.Nil(t, c.Value("missing"))
	runtime.KeepAlive(cell)
}

func TestWeakContainerExactlyOnceUnderContention(t *testing.T) {
	c := NewWeakContainer[string, int]()

	const workers = 64
	var defaults atomic.Int32
	var creates atomic.Int32
	cells := make([]*Cell[int], workers)

	start := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			cells[i] = c.GetOrCreate("key", func() *int {
				defaults.Add(1)
				return ptr(7)
			}, func(*int) {
				creates.Add(1)
			})
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), defaults.Load())
	assert.Equal(t, int32(1), creates.Load())
	for i := 1; i < workers; i++ {
		assert.Same(t, cells[0], cells[i])
	}
}

func TestWeakContainerBatch(t *testing.T) {
	c := NewWeakContainer[string, int]()
	existing := c.GetOrCreate("b", func() *int { return ptr(20) }, nil)

	var reported map[string]*int
	calls := 0
	cells := c.GetOrCreateBatch([]string{"a", "b", "a", "c"}, func(k string) *int {
		switch k {
		case "a":
			return ptr(10)
		default:
			return nil
		}
	}, func(created map[string]*int) {
		calls++
		reported = created
	})

	require.Len(t, cells, 4)
	assert.Same(t, cells[0], cells[2])
	assert.Same(t, existing, cells[1])
	assert.Equal(t, 10, *cells[0].Value())
	assert.Nil(t, cells[3].Value())

	assert.Equal(t, 1, calls)
	require.Len(t, reported, 2)
	assert.Equal(t, 10, *reported["a"])
	v, ok := reported["c"]
	assert.True(t, ok)
	assert.Nil(t, v)

	again := c.GetOrCreateBatch([]string{"a", "b"}, nil, func(map[string]*int) {
		t.Fatal("onCreate invoked with nothing created")
	})
	assert.Same(t, cells[0], again[0])
	runtime.KeepAlive(existing)
	runtime.KeepAlive(cells)
}

func TestWeakContainerBatchConcurrentWithSingles(t *testing.T) {
	c := NewWeakContainer[int, int]()
	keys := make([]int, 100)
	for i := range keys {
		keys[i] = i
	}

	var defaults atomic.Int32
	def := func(k int) *int {
		defaults.Add(1)
		return ptr(k)
	}

	var wg sync.WaitGroup
	var batch []*Cell[int]
	singles := make([]*Cell[int], len(keys))
	wg.Add(2)
	go func() {
		defer wg.Done()
		batch = c.GetOrCreateBatch(keys, def, nil)
	}()
	go func() {
		defer wg.Done()
		for i := len(keys) - 1; i >= 0; i-- {
			k := keys[i]
			singles[i] = c.GetOrCreate(k, func() *int { return def(k) }, nil)
		}
	}()
	wg.Wait()

	assert.Equal(t, int32(len(keys)), defaults.Load())
	for i := range keys {
		assert.Same(t, batch[i], singles[i])
	}
}

func TestWeakContainerUpdates(t *testing.T) {
	c := NewWeakContainer[string, int]()
	a := c.GetOrCreate("a", func() *int { return ptr(1) }, nil)
	b := c.GetOrCreate("b", nil, nil)

	c.UpdateValue("a", ptr(2))
	c.UpdateValue("missing", ptr(9))
	assert.Equal(t, 2, *a.Value())
	assert.Nil(t, c.Value("missing"))
	_, ok := c.Lookup("missing")
	assert.False(t, ok)

	c.UpdateValueFunc("a", func(v *int) *int { return ptr(*v * 10) })
	assert.Equal(t, 20, *a.Value())

	c.ComputeAll(func(key string, cur *int) *int {
		if key == "b" {
			return ptr(5)
		}
		return ptr(*cur + 1)
	})
	assert.Equal(t, 21, *a.Value())
	assert.Equal(t, 5, *b.Value())
	assert.ElementsMatch(t, []string{"a", "b"}, c.Keys())

	c.Clear()
	assert.Equal(t, 0, c.Len())
	assert.Nil(t, c.Value("a"))
	// handed out cells keep working
	a.Set(ptr(100))
	assert.Equal(t, 100, *a.Value())
	runtime.KeepAlive(b)
}

//go:noinline
func createAndDrop(c *WeakContainer[string, int], key string, defaults *atomic.Int32) {
	cell := c.GetOrCreate(key, func() *int {
		defaults.Add(1)
		return ptr(1)
	}, nil)
	_ = cell.Value()
}

func TestWeakContainerCollectsUnreferencedCells(t *testing.T) {
	c := NewWeakContainer[string, int]()
	var defaults atomic.Int32

	createAndDrop(c, "gone", &defaults)
	require.Equal(t, int32(1), defaults.Load())

	require.Eventually(t, func() bool {
		runtime.GC()
		return c.Value("gone") == nil && c.Len() == 0
	}, 2*time.Second, 10*time.Millisecond)

	computed := 0
	c.ComputeAll(func(string, *int) *int {
		computed++
		return nil
	})
	assert.Equal(t, 0, computed)

	fresh := c.GetOrCreate("gone", func() *int {
		defaults.Add(1)
		return ptr(2)
	}, nil)
	assert.Equal(t, int32(2), defaults.Load())
	assert.Equal(t, 2, *fresh.Value())
	runtime.KeepAlive(fresh)
}
