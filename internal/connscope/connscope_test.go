package connscope

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type client struct{ n int64 }

func TestWorkerID(t *testing.T) {
	assert.Equal(t, NoWorker, WorkerID(context.Background()))
	assert.Equal(t, 3, WorkerID(WithWorker(context.Background(), 3)))
}

func TestScope_PerWorker(t *testing.T) {
	var built atomic.Int64
	s := New(func(context.Context) (*client, error) {
		return &client{n: built.Add(1)}, nil
	})

	w0 := WithWorker(context.Background(), 0)
	w1 := WithWorker(context.Background(), 1)

	a, err := s.Get(w0)
	require.NoError(t, err)
	b, err := s.Get(w0)
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := s.Get(w1)
	require.NoError(t, err)
	assert.NotSame(t, a, c)
	assert.Equal(t, 2, s.Len())

	s.Reset(w0)
	d, err := s.Get(w0)
	require.NoError(t, err)
	assert.NotSame(t, a, d)
	assert.Equal(t, int64(3), built.Load())

	// resetting one worker leaves the others alone
	e, _ := s.Get(w1)
	assert.Same(t, c, e)
}

func TestScope_BuildError(t *testing.T) {
	boom := errors.New("boom")
	s := New(func(context.Context) (*client, error) { return nil, boom })

	_, err := s.Get(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, s.Len())
}

func TestScope_Concurrent(t *testing.T) {
	var built atomic.Int64
	s := New(func(context.Context) (*client, error) {
		return &client{n: built.Add(1)}, nil
	})

	var wg sync.WaitGroup
	for w := 0; w < 5; w++ {
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func(id int) {
				defer wg.Done()
				_, err := s.Get(WithWorker(context.Background(), id))
				assert.NoError(t, err)
			}(w)
		}
	}
	wg.Wait()
	assert.Equal(t, int64(5), built.Load())
	assert.Equal(t, 5, s.Len())
}
