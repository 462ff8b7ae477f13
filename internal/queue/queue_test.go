package queue

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain[T any](q *Queue[T]) []T {
	items := make([]T, 0, q.Size())
	for q.Size() > 0 {
		items = append(items, q.Pop())
	}
	return items
}

func TestQueue_FIFO(t *testing.T) {
	q := New[int](0)
	for i := 0; i < 100; i++ {
		require.True(t, q.Push(i))
	}

	items := drain(q)
	require.Len(t, items, 100)
	for i, v := range items {
		assert.Equal(t, i, v)
	}
}

func TestQueue_PushFrontOvertakes(t *testing.T) {
	q := New[string](0)
	q.Push("a")
	q.Push("b")
	q.PushFront("x")
	q.Push("c")
	q.PushFront("y")

	assert.Equal(t, []string{"y", "x", "a", "b", "c"}, drain(q))
}

func TestQueue_DropAccounting(t *testing.T) {
	const threshold = 10
	const extra = 7

	q := New[int](threshold)
	accepted := 0
	for i := 0; i < threshold+extra; i++ {
		if q.Push(i) {
			accepted++
		}
	}

	assert.Equal(t, threshold, accepted)
	assert.Equal(t, threshold, q.Size())

	c := q.GetAndResetCounters()
	assert.Equal(t, int64(threshold), c.In)
	assert.Equal(t, int64(extra), c.Drop)
	assert.Equal(t, int64(0), c.Out)

	assert.Equal(t, Counters{}, q.GetAndResetCounters())

	drain(q)
	c = q.GetAndResetCounters()
	assert.Equal(t, int64(threshold), c.Out)
	assert.Equal(t, int64(0), c.In)
	assert.Equal(t, int64(0), c.Drop)
}

func TestQueue_PushFrontEvictsTailWhenFull(t *testing.T) {
	q := New[int](3)
	q.Push(1)
	q.Push(2)
	q.Push(3)

	q.PushFront(0)

	assert.Equal(t, 3, q.Size())
	c := q.GetAndResetCounters()
	assert.Equal(t, int64(1), c.Drop)
	assert.Equal(t, int64(4), c.In)
	assert.Equal(t, []int{0, 1, 2}, drain(q))
}

func TestQueue_SetDropThreshold(t *testing.T) {
	q := New[int](1)
	assert.True(t, q.Push(1))
	assert.False(t, q.Push(2))

	q.SetDropThreshold(0)
	for i := 0; i < 50; i++ {
		assert.True(t, q.Push(i))
	}
	assert.Equal(t, 51, q.Size())

	q.SetDropThreshold(-5)
	assert.Equal(t, 0, q.DropThreshold())
}

func TestQueue_WrapAroundAndGrowth(t *testing.T) {
	q := New[int](0)
	next := 0
	var got []int
	for round := 0; round < 10; round++ {
		for i := 0; i < 13; i++ {
			q.Push(next)
			next++
		}
		for i := 0; i < 9; i++ {
			got = append(got, q.Pop())
		}
	}
	got = append(got, drain(q)...)

	require.Len(t, got, next)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestQueue_RemoveFunc(t *testing.T) {
	q := New[int](0)
	for i := 0; i < 10; i++ {
		q.Push(i)
	}

	removed := q.RemoveFunc(func(v int) bool { return v%2 == 0 })
	assert.Equal(t, 5, removed)
	assert.Equal(t, []int{1, 3, 5, 7, 9}, drain(q))

	assert.Equal(t, 0, New[int](0).RemoveFunc(func(int) bool { return true }))
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := New[int](0)
	result := make(chan int, 1)

	go func() {
		result <- q.Pop()
	}()

	select {
	case <-result:
		t.Fatal("Pop returned on an empty queue")
	case <-time.After(50 * time.Millisecond):
	}

	q.Push(42)

	select {
	case v := <-result:
		assert.Equal(t, 42, v)
	case <-time.After(time.Second):
		t.Fatal("Pop did not wake up after Push")
	}
}

func TestQueue_ConcurrentProducersConsumers(t *testing.T) {
	const producers = 8
	const perProducer = 500

	q := New[int](0)
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Push(base*perProducer + i)
			}
		}(p)
	}

	seen := make(chan int, producers*perProducer)
	var consumers sync.WaitGroup
	for c := 0; c < 4; c++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for {
				v := q.Pop()
				if v < 0 {
					return
				}
				seen <- v
			}
		}()
	}

	wg.Wait()
	for c := 0; c < 4; c++ {
		q.Push(-1)
	}
	consumers.Wait()
	close(seen)

	unique := make(map[int]struct{})
	for v := range seen {
		unique[v] = struct{}{}
	}
	assert.Len(t, unique, producers*perProducer)
}
