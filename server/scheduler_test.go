package server

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler(t *testing.T) {
	t.Run("fires once", func(t *testing.T) {
		s := NewScheduler()
		fired := make(chan int64, 4)
		s.Schedule(1, 5*time.Millisecond, func() { fired <- 1 })
		select {
		case id := <-fired:
			assert.Equal(t, int64(1), id)
		case <-time.After(time.Second):
			t.Fatal("task did not fire")
		}
		assert.Equal(t, 0, s.Pending())
		assert.False(t, s.Cancel(1))
	})

	t.Run("cancel prevents firing", func(t *testing.T) {
		s := NewScheduler()
		var n atomic.Int32
		s.Schedule(2, 20*time.Millisecond, func() { n.Add(1) })
		require.True(t, s.Cancel(2))
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, int32(0), n.Load())
	})

	t.Run("rescheduling replaces the old task", func(t *testing.T) {
		s := NewScheduler()
		fired := make(chan string, 4)
		s.Schedule(3, 10*time.Millisecond, func() { fired <- "old" })
		s.Schedule(3, 30*time.Millisecond, func() { fired <- "new" })
		assert.Equal(t, 1, s.Pending())
		select {
		case v := <-fired:
			assert.Equal(t, "new", v)
		case <-time.After(time.Second):
			t.Fatal("task did not fire")
		}
		time.Sleep(20 * time.Millisecond)
		assert.Empty(t, fired)
	})

	t.Run("stop cancels everything", func(t *testing.T) {
		s := NewScheduler()
		var n atomic.Int32
		for i := int64(0); i < 3; i++ {
			s.Schedule(i, 20*time.Millisecond, func() { n.Add(1) })
		}
		s.Stop()
		s.Schedule(9, time.Millisecond, func() { n.Add(1) })
		assert.Equal(t, 0, s.Pending())
		time.Sleep(50 * time.Millisecond)
		assert.Equal(t, int32(0), n.Load())
	})
}
