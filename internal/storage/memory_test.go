package storage

import (
	"context"
	"sync"
	"testing"

	"webhook-dispatcher/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newHook(id string) *models.WebHook {
	return &models.WebHook{
		ID:         id,
		WebHookURI: "https://example.com/hook",
		Secret:     "0123456789abcdef",
		Filters:    []string{"a"},
	}
}

func TestMemoryStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	w := newHook("Hook1")
	assert.Equal(t, models.StoreSuccess, s.InsertWebHook(ctx, "alice", w))
	assert.Equal(t, int64(1), w.Version)
	assert.Equal(t, models.StoreConflict, s.InsertWebHook(ctx, "alice", newHook("hook1")))

	got, err := s.LookupWebHook(ctx, "ALICE", "HOOK1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Hook1", got.ID)

	// per-user isolation
	other, err := s.LookupWebHook(ctx, "bob", "hook1")
	require.NoError(t, err)
	assert.Nil(t, other)
	assert.Equal(t, models.StoreNotFound, s.DeleteWebHook(ctx, "bob", "hook1"))

	got.Filters = []string{"b"}
	assert.Equal(t, models.StoreSuccess, s.UpdateWebHook(ctx, "alice", got))
	assert.Equal(t, int64(2), got.Version)

	assert.Equal(t, models.StoreNotFound, s.UpdateWebHook(ctx, "alice", newHook("missing")))

	all, err := s.GetAllWebHooks(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, []string{"b"}, all[0].Filters)

	assert.Equal(t, models.StoreSuccess, s.DeleteWebHook(ctx, "alice", "hook1"))
	assert.Equal(t, models.StoreNotFound, s.DeleteWebHook(ctx, "alice", "hook1"))
}

func TestMemoryStoreDetectsLostUpdates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.Equal(t, models.StoreSuccess, s.InsertWebHook(ctx, "alice", newHook("h")))

	first, _ := s.LookupWebHook(ctx, "alice", "h")
	second, _ := s.LookupWebHook(ctx, "alice", "h")

	first.Description = "first"
	assert.Equal(t, models.StoreSuccess, s.UpdateWebHook(ctx, "alice", first))

	second.Description = "second"
	assert.Equal(t, models.StoreConflict, s.UpdateWebHook(ctx, "alice", second))
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	w := newHook("h")
	require.Equal(t, models.StoreSuccess, s.InsertWebHook(ctx, "alice", w))

	w.Filters[0] = "mutated"
	got, _ := s.LookupWebHook(ctx, "alice", "h")
	assert.Equal(t, []string{"a"}, got.Filters)

	got.Filters[0] = "mutated"
	again, _ := s.LookupWebHook(ctx, "alice", "h")
	assert.Equal(t, []string{"a"}, again.Filters)
}

func TestMemoryStoreAcrossUsersAndDeleteAll(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.Equal(t, models.StoreSuccess, s.InsertWebHook(ctx, "alice", newHook("a1")))
	require.Equal(t, models.StoreSuccess, s.InsertWebHook(ctx, "alice", newHook("a2")))
	require.Equal(t, models.StoreSuccess, s.InsertWebHook(ctx, "bob", newHook("b1")))

	all, err := s.GetAllWebHooksAcrossUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, all["alice"], 2)
	assert.Len(t, all["bob"], 1)

	require.NoError(t, s.DeleteAllWebHooks(ctx, "alice"))
	hooks, err := s.GetAllWebHooks(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, hooks)

	all, err = s.GetAllWebHooksAcrossUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestMemoryStoreConcurrentInsert(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var wg sync.WaitGroup
	results := make(chan models.StoreResult, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- s.InsertWebHook(ctx, "alice", newHook("same"))
		}()
	}
	wg.Wait()
	close(results)

	var ok, conflict int
	for r := range results {
		switch r {
		case models.StoreSuccess:
			ok++
		case models.StoreConflict:
			conflict++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 9, conflict)
}
