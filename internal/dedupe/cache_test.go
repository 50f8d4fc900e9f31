package dedupe

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCache_FirstSightIsNotSeen(t *testing.T) {
	c := New(time.Minute, 10)
	defer c.Close()

	assert.False(t, c.Seen("wamid.1"))
	assert.True(t, c.Seen("wamid.1"))
	assert.False(t, c.Seen("wamid.2"))
}

func TestCache_ExpiredKeyIsNew(t *testing.T) {
	c := New(time.Minute, 10)
	defer c.Close()

	now := time.Now()
	c.now = func() time.Time { return now }
	assert.False(t, c.Seen("k"))

	now = now.Add(2 * time.Minute)
	assert.False(t, c.Seen("k"), "expired key should be treated as new")
	assert.True(t, c.Seen("k"))
}

func TestCache_EvictsOldestAtCapacity(t *testing.T) {
	c := New(time.Minute, 3)
	defer c.Close()

	for i := 0; i < 4; i++ {
		c.Seen(fmt.Sprintf("k%d", i))
	}
	assert.Equal(t, 3, c.Len())
	assert.False(t, c.Seen("k0"), "oldest key should have been evicted")
	assert.True(t, c.Seen("k3"))
}

func TestCache_Sweep(t *testing.T) {
	c := New(time.Minute, 10)
	defer c.Close()

	now := time.Now()
	c.now = func() time.Time { return now }
	c.Seen("old")
	now = now.Add(30 * time.Second)
	c.Seen("young")

	now = now.Add(45 * time.Second)
	c.sweep()
	assert.Equal(t, 1, c.Len())
	assert.True(t, c.Seen("young"))
}

func TestCache_ConcurrentSeenMarksOnce(t *testing.T) {
	c := New(time.Minute, 100)
	defer c.Close()

	var wg sync.WaitGroup
	var mu sync.Mutex
	fresh := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !c.Seen("same") {
				mu.Lock()
				fresh++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, fresh)
}

func TestCache_CloseTwice(t *testing.T) {
	c := New(10*time.Millisecond, 10)
	c.Close()
	c.Close()
}
