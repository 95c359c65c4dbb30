package optimistic

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCache() *GoCache[[]string] {
	return NewGoCache[[]string](cache.New(time.Minute, time.Minute), time.Minute)
}

func appendName(name string) func([]string) []string {
	return func(cur []string) []string {
		next := make([]string, 0, len(cur)+1)
		next = append(next, cur...)
		return append(next, name)
	}
}

func TestApplyKeepsMutationOnCommit(t *testing.T) {
	c := newCache()
	c.Set("day", []string{"Q001"})
	u := NewUpdater[[]string](c)

	err := u.Apply("day", appendName("Q002"), func() error { return nil })
	require.NoError(t, err)

	got, ok := c.Get("day")
	require.True(t, ok)
	assert.Equal(t, []string{"Q001", "Q002"}, got)
}

func TestApplyRevertsOnFailure(t *testing.T) {
	c := newCache()
	c.Set("day", []string{"Q001"})
	u := NewUpdater[[]string](c)

	var seenDuringCommit []string
	boom := errors.New("write failed")
	err := u.Apply("day", appendName("Q002"), func() error {
		seenDuringCommit, _ = c.Get("day")
		return boom
	})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"Q001", "Q002"}, seenDuringCommit)
	got, _ := c.Get("day")
	assert.Equal(t, []string{"Q001"}, got)
}

func TestApplyWithoutCachedValue(t *testing.T) {
	c := newCache()
	u := NewUpdater[[]string](c)

	called := false
	err := u.Apply("day", func(v []string) []string { called = true; return v }, func() error { return nil })
	require.NoError(t, err)
	assert.False(t, called)

	_, ok := c.Get("day")
	assert.False(t, ok)
}

func TestUpdateStartsFromFallback(t *testing.T) {
	c := newCache()
	u := NewUpdater[[]string](c)

	got, err := u.Update("day", []string{"Q001"}, func(cur []string) ([]string, error) {
		return appendName("Q002")(cur), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Q001", "Q002"}, got)

	stored, ok := c.Get("day")
	require.True(t, ok)
	assert.Equal(t, []string{"Q001", "Q002"}, stored)
}

func TestUpdateLeavesCacheOnError(t *testing.T) {
	c := newCache()
	c.Set("day", []string{"Q001"})
	u := NewUpdater[[]string](c)

	boom := errors.New("rejected")
	_, err := u.Update("day", nil, func([]string) ([]string, error) { return nil, boom })
	assert.ErrorIs(t, err, boom)

	stored, _ := c.Get("day")
	assert.Equal(t, []string{"Q001"}, stored)
}

func TestUpdateSerializesPerKey(t *testing.T) {
	c := newCache()
	u := NewUpdater[[]string](c)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = u.Update("day", nil, func(cur []string) ([]string, error) {
				return appendName("Q")(cur), nil
			})
		}()
	}
	wg.Wait()

	stored, _ := c.Get("day")
	assert.Len(t, stored, 50)
}
