package idgen

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnowflake_NewTransactionID(t *testing.T) {
	gen, err := NewSnowflake(7)
	require.NoError(t, err)

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		seen = make(map[string]bool)
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 500; j++ {
				id := gen.NewTransactionID()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 4000)
	for id := range seen {
		assert.True(t, strings.HasPrefix(id, "TXN"))
		assert.LessOrEqual(t, len(id), 38)
		break
	}
}

func TestNewSnowflake_invalidNode(t *testing.T) {
	_, err := NewSnowflake(4096)
	assert.Error(t, err)
}
