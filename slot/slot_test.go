package slot

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSlotLastWriteWins(t *testing.T) {
	assert := assert.New(t)

	var s Slot[int]

	v, ok := s.Take()
	assert.False(ok)
	assert.Zero(v)

	s.Store(1)
	s.Store(2)

	v, ok = s.Peek()
	assert.True(ok)
	assert.Equal(2, v)

	v, ok = s.Take()
	assert.True(ok)
	assert.Equal(2, v)
	assert.Equal(1, s.Dropped())

	// destructive read
	_, ok = s.Take()
	assert.False(ok)
}

func TestSlotConcurrent(t *testing.T) {
	assert := assert.New(t)

	var s Slot[int]
	var wg sync.WaitGroup

	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.Store(i)
		}(i)
	}
	wg.Wait()

	v, ok := s.Take()
	assert.True(ok)
	assert.True(v >= 1 && v <= 100)
	assert.Equal(99, s.Dropped())
}
