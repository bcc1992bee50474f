package database

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentReservation(t *testing.T) {
	logger := zerolog.Nop()
	dbPath := filepath.Join(t.TempDir(), "concurrency.db")
	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	ctx := context.Background()
	now := time.Now()

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make(chan bool, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			r := reservation(fmt.Sprintf("session-%d", id), now, 5*time.Minute)
			_, ok, rErr := db.InsertIfAvailable(ctx, r, now)
			assert.NoError(t, rErr)
			results <- ok
		}(i)
	}

	wg.Wait()
	close(results)

	successCount := 0
	for ok := range results {
		if ok {
			successCount++
		}
	}

	// Only one session may hold the slot
	assert.Equal(t, 1, successCount)

	list, err := db.ListReservations(ctx, "2025-06-02")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
