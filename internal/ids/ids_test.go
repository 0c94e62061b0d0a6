package ids

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequenceIncreases(t *testing.T) {
	var s Sequence
	ctx := context.Background()
	a, _ := s.Next(ctx)
	b, _ := s.Next(ctx)
	assert.Equal(t, "1", a)
	assert.Equal(t, "2", b)
}

func TestSequenceUniqueUnderConcurrency(t *testing.T) {
	var s Sequence
	const n = 200
	var (
		mu   sync.Mutex
		seen = make(map[string]bool, n)
		wg   sync.WaitGroup
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := s.Next(context.Background())
			assert.NoError(t, err)
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)
	assert.True(t, seen[strconv.Itoa(n)])
}

func TestRedisSequence(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectIncr("ride:id:seq").SetVal(41)
	mock.ExpectIncr("ride:id:seq").SetVal(42)

	seq := NewRedisSequence(db, "")
	a, err := seq.Next(context.Background())
	require.NoError(t, err)
	b, err := seq.Next(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "41", a)
	assert.Equal(t, "42", b)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSequenceError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	mock.ExpectIncr("rides").SetErr(errors.New("connection refused"))

	_, err := NewRedisSequence(db, "rides").Next(context.Background())
	assert.ErrorContains(t, err, "connection refused")
}
