package recordcache

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCache_GetPut(t *testing.T) {
	c := New[string]()

	_, ok := c.Get(1)
	assert.False(t, ok)

	c.Put(1, "Guru Nanak Dev Ji")
	v, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, "Guru Nanak Dev Ji", v)
	assert.Equal(t, 1, c.Len())
}

func TestCache_NeverEvicts(t *testing.T) {
	c := New[int]()
	for i := uint64(1); i <= 10000; i++ {
		c.Put(i, int(i))
	}

	assert.Equal(t, 10000, c.Len())
	v, ok := c.Get(1)
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}

func TestCache_ConcurrentAccess(t *testing.T) {
	c := New[uint64]()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := uint64(0); i < 100; i++ {
				id := uint64(g)*100 + i
				c.Put(id, id)
				c.Get(id)
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 800, c.Len())
}
