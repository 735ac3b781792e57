package jobs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkQueueOrdersByReadiness(t *testing.T) {
	wq := NewWorkQueue()

	wq.Enqueue("later", 50*time.Millisecond)
	wq.Enqueue("now", 0)

	id, ok := wq.Dequeue()
	require.True(t, ok)
	assert.Equal(t, JobID("now"), id)

	// "later" is not ready yet.
	_, ok = wq.Dequeue()
	assert.False(t, ok)

	time.Sleep(60 * time.Millisecond)
	id, ok = wq.Dequeue()
	require.True(t, ok)
	assert.Equal(t, JobID("later"), id)
}

func TestWorkQueueDeduplicatesKeepingEarlier(t *testing.T) {
	wq := NewWorkQueue()

	wq.Enqueue("job", time.Hour)
	wq.Enqueue("job", 0)
	assert.Equal(t, 1, wq.Len())

	id, ok := wq.Dequeue()
	require.True(t, ok)
	assert.Equal(t, JobID("job"), id)
	assert.Equal(t, 0, wq.Len())
}

func TestWorkQueueNotifies(t *testing.T) {
	wq := NewWorkQueue()

	select {
	case <-wq.Wait():
		t.Fatal("wait fired on empty queue")
	default:
	}

	wq.Enqueue("job", 0)
	select {
	case <-wq.Wait():
	case <-time.After(time.Second):
		t.Fatal("no notification after enqueue")
	}
}

func TestExponentialBackoff(t *testing.T) {
	base := 100 * time.Millisecond
	max := 5 * time.Second

	prev := time.Duration(0)
	for attempt := 1; attempt <= 10; attempt++ {
		d := ExponentialBackoff(attempt, base, max)
		assert.Greater(t, d, time.Duration(0), "attempt %d", attempt)
		assert.LessOrEqual(t, d, max+max/4, "attempt %d", attempt)
		if attempt <= 3 {
			assert.GreaterOrEqual(t, d, prev/2, "attempt %d", attempt)
		}
		prev = d
	}
}

func TestJitterStaysWithinFraction(t *testing.T) {
	base := time.Second
	for i := 0; i < 100; i++ {
		d := Jitter(base, 0.25)
		assert.GreaterOrEqual(t, d, 750*time.Millisecond)
		assert.LessOrEqual(t, d, 1250*time.Millisecond)
	}
}
