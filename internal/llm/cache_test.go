package llm

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResponseCache(t *testing.T) {
	t.Run("basic operations", func(t *testing.T) {
		cache := newResponseCache(5 * time.Minute)

		_, found := cache.get("missing")
		assert.False(t, found)

		resp := ClassificationResponse{Category: "Aluguel", Confidence: 0.9}
		cache.set("p1", resp)

		got, found := cache.get("p1")
		assert.True(t, found)
		assert.Equal(t, resp, got)
		assert.Equal(t, 1, cache.size())
	})

	t.Run("expiration", func(t *testing.T) {
		now := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
		cache := newResponseCache(time.Minute)
		cache.now = func() time.Time { return now }

		cache.set("p1", ClassificationResponse{Category: "Aluguel"})
		now = now.Add(2 * time.Minute)

		_, found := cache.get("p1")
		assert.False(t, found)

		// Inserting drops expired entries.
		cache.set("p2", ClassificationResponse{Category: "Energia"})
		assert.Equal(t, 1, cache.size())
	})

	t.Run("concurrent access", func(t *testing.T) {
		cache := newResponseCache(time.Minute)
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					key := fmt.Sprintf("p%d", j%5)
					cache.set(key, ClassificationResponse{Category: key})
					_, _ = cache.get(key)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, 5, cache.size())
	})
}
