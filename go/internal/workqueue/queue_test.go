package workqueue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunsJobsInOrder(t *testing.T) {
	q := New()
	defer q.Stop()

	var got []int
	for i := 0; i < 100; i++ {
		i := i
		require.True(t, q.Push(func() { got = append(got, i) }))
	}
	require.NoError(t, q.Flush(context.Background()))

	require.Len(t, got, 100)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestQueueJobCanPushMoreWork(t *testing.T) {
	q := New()
	defer q.Stop()

	ran := make(chan string, 2)
	q.Push(func() {
		ran <- "outer"
		q.Push(func() { ran <- "inner" })
	})

	assert.Equal(t, "outer", <-ran)
	select {
	case v := <-ran:
		assert.Equal(t, "inner", v)
	case <-time.After(time.Second):
		t.Fatal("nested job never ran")
	}
}

func TestQueueStop(t *testing.T) {
	q := New()
	q.Stop()
	q.Stop()

	<-q.Done()
	assert.False(t, q.Push(func() {}))
	assert.ErrorIs(t, q.Flush(context.Background()), ErrStopped)
}
