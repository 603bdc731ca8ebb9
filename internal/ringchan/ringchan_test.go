package ringchan

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain[T any](rc *RingChannel[T]) []T {
	var out []T
	for v := range rc.C() {
		out = append(out, v)
	}
	return out
}

func TestSendOverwritesOldest(t *testing.T) {
	rc := New[int](3)

	for i := 0; i < 10; i++ {
		rc.Send(i)
	}
	rc.Close()

	assert.Equal(t, []int{7, 8, 9}, drain(rc), "only the newest elements MUST survive")
	assert.Equal(t, uint64(10), rc.Written())
	assert.Equal(t, uint64(7), rc.Dropped())
}

func TestSendReportsDrop(t *testing.T) {
	rc := New[string](1)

	assert.False(t, rc.Send("a"))
	assert.True(t, rc.Send("b"))
	assert.Equal(t, 1, rc.Len())
	assert.Equal(t, 1, rc.Cap())
}

func TestCloseIsIdempotentAndIgnoresLateSends(t *testing.T) {
	rc := New[int](2)
	rc.Send(1)
	rc.Close()
	rc.Close()

	assert.NotPanics(t, func() { rc.Send(2) })
	assert.Equal(t, []int{1}, drain(rc))
}

func TestNewRejectsZeroCapacity(t *testing.T) {
	assert.Panics(t, func() { New[int](0) })
}

func TestConcurrentProducersNeverBlock(t *testing.T) {
	rc := New[int](4)

	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				rc.Send(i)
			}
		}()
	}

	received := make(chan int)
	go func() {
		n := 0
		for range rc.C() {
			n++
		}
		received <- n
	}()

	wg.Wait()
	rc.Close()
	n := <-received

	require.Equal(t, uint64(4000), rc.Written())
	assert.Equal(t, uint64(n)+rc.Dropped(), rc.Written(), "every element MUST be either received or counted as dropped")
}
