package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriorityQueue_Order(t *testing.T) {
	pq := NewPriorityQueue[string]()
	pq.Enqueue("small.css", 0)
	pq.Enqueue("large.bin", -4096)
	pq.Enqueue("mid.js", -512)

	v, ok := pq.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "large.bin", v)

	v, ok = pq.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "mid.js", v)

	v, ok = pq.Dequeue()
	require.True(t, ok)
	assert.Equal(t, "small.css", v)

	_, ok = pq.Dequeue()
	assert.False(t, ok)
}

func TestPriorityQueue_StableForEqualPriority(t *testing.T) {
	pq := NewPriorityQueue[int]()
	for i := 0; i < 50; i++ {
		pq.Enqueue(i, 7)
	}

	got := pq.Drain()
	require.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
	assert.Equal(t, 0, pq.Len())
}

func TestPriorityQueue_Drain(t *testing.T) {
	pq := NewPriorityQueue[string]()
	assert.Empty(t, pq.Drain())

	pq.Enqueue("c", 3)
	pq.Enqueue("a", 1)
	pq.Enqueue("b", 2)
	assert.Equal(t, []string{"a", "b", "c"}, pq.Drain())
}

func TestPriorityQueue_Concurrent(t *testing.T) {
	pq := NewPriorityQueue[int]()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				pq.Enqueue(base*100+i, int64(i))
			}
		}(w)
	}
	wg.Wait()
	assert.Equal(t, 800, pq.Len())

	seen := make(map[int]bool)
	var mu sync.Mutex
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, ok := pq.Dequeue()
				if !ok {
					return
				}
				mu.Lock()
				seen[v] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 800)
}
