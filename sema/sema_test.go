package sema

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *Sema) queued() int {
	s.mu.Acquire()
	n := 0
	for w := s.head; w != nil; w = w.next {
		n++
	}
	s.mu.Release()
	return n
}

func waitQueued(t *testing.T, s *Sema, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for s.queued() != n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d queued waiters, have %d", n, s.queued())
		}
		runtime.Gosched()
	}
}

func TestSema(t *testing.T) {
	t.Run("a banked token satisfies a later wait", func(t *testing.T) {
		s := New()
		s.Signal()
		s.Wait(false) // must not block
		assert.Zero(t, s.queued())
	})

	t.Run("signal wakes exactly one waiter", func(t *testing.T) {
		s := New()
		var woken atomic.Int32
		for i := 0; i < 3; i++ {
			go func() {
				s.Wait(false)
				woken.Add(1)
			}()
		}
		waitQueued(t, s, 3)

		s.Signal()
		deadline := time.Now().Add(5 * time.Second)
		for woken.Load() == 0 && time.Now().Before(deadline) {
			runtime.Gosched()
		}
		time.Sleep(10 * time.Millisecond)
		require.Equal(t, int32(1), woken.Load(), "one signal must wake exactly one waiter")

		s.Signal()
		s.Signal()
		for woken.Load() != 3 && time.Now().Before(deadline) {
			runtime.Gosched()
		}
		assert.Equal(t, int32(3), woken.Load())
	})

	t.Run("waiters are served in arrival order", func(t *testing.T) {
		s := New()
		order := make(chan int, 5)
		for i := 0; i < 5; i++ {
			go func(id int) {
				s.Wait(false)
				order <- id
			}(i)
			waitQueued(t, s, i+1)
		}
		for want := 0; want < 5; want++ {
			s.Signal()
			select {
			case got := <-order:
				assert.Equal(t, want, got, "wake order must match arrival order")
			case <-time.After(5 * time.Second):
				t.Fatalf("waiter %d never woke", want)
			}
		}
	})

	t.Run("lifo wait enqueues at the front", func(t *testing.T) {
		s := New()
		order := make(chan string, 2)
		go func() {
			s.Wait(false)
			order <- "first"
		}()
		waitQueued(t, s, 1)
		go func() {
			s.Wait(true)
			order <- "requeued"
		}()
		waitQueued(t, s, 2)

		s.Signal()
		assert.Equal(t, "requeued", <-order)
		s.Signal()
		assert.Equal(t, "first", <-order)
	})

	t.Run("concurrent signals and waits all complete", func(t *testing.T) {
		s := New()
		const pairs = 64
		var wg sync.WaitGroup
		for i := 0; i < pairs; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				s.Wait(false)
			}()
			go func() {
				defer wg.Done()
				s.Signal()
			}()
		}
		wg.Wait()
		assert.Zero(t, s.queued())
	})
}

func ExampleSema() {
	s := New()
	done := make(chan struct{})
	go func() {
		s.Wait(false)
		fmt.Println("woken")
		close(done)
	}()
	time.Sleep(time.Millisecond)
	s.Signal()
	<-done
	// Output: woken
}
