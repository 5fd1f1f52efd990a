package engine

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	locks := newKeyedMutex()

	var (
		wg      sync.WaitGroup
		counter int
	)

	for range 50 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			unlock := locks.Lock("sub-1")
			defer unlock()

			counter++
		}()
	}

	wg.Wait()

	assert.Equal(t, 50, counter)
	assert.Zero(t, locks.size())
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	locks := newKeyedMutex()

	unlockA := locks.Lock("a")
	unlockB := locks.Lock("b")
	assert.Equal(t, 2, locks.size())

	unlockA()
	unlockB()
	assert.Zero(t, locks.size())
}
