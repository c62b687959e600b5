package render

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVersions_DefaultsToZero(t *testing.T) {
	v := NewVersions()
	assert.Equal(t, uint64(0), v.Current("screen01"))
}

func TestVersions_BumpIsMonotonic(t *testing.T) {
	v := NewVersions()
	var last uint64
	for i := 0; i < 10; i++ {
		next := v.Bump("screen01")
		assert.Greater(t, next, last)
		last = next
	}
	assert.Equal(t, uint64(10), v.Current("screen01"))
	assert.Equal(t, uint64(0), v.Current("screen02"))
}

func TestVersions_ConcurrentBumps(t *testing.T) {
	v := NewVersions()
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v.Bump("screen01")
		}()
	}
	wg.Wait()
	assert.Equal(t, uint64(64), v.Current("screen01"))
}

func TestVersions_Forget(t *testing.T) {
	v := NewVersions()
	v.Bump("screen01")
	v.Bump("screen02")
	v.Forget("screen01")
	assert.Equal(t, uint64(0), v.Current("screen01"))
	assert.Equal(t, 1, v.Len())
}
