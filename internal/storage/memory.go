package storage

import (
	"context"
	"sort"
	"sync"

	"webhook-dispatcher/internal/models"
)

// MemoryStore keeps registrations in process. It is used for single-node
// deployments and tests.
type MemoryStore struct {
	mu    sync.RWMutex
	users map[string]map[string]*models.WebHook
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{users: make(map[string]map[string]*models.WebHook)}
}

func (s *MemoryStore) GetAllWebHooks(_ context.Context, user string) ([]*models.WebHook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneAll(s.users[normalizeKey(user)]), nil
}

func (s *MemoryStore) GetAllWebHooksAcrossUsers(_ context.Context) (map[string][]*models.WebHook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string][]*models.WebHook, len(s.users))
	for user, hooks := range s.users {
		if len(hooks) == 0 {
			continue
		}
		out[user] = cloneAll(hooks)
	}
	return out, nil
}

func (s *MemoryStore) LookupWebHook(_ context.Context, user, id string) (*models.WebHook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users[normalizeKey(user)][normalizeKey(id)].Clone(), nil
}

func (s *MemoryStore) InsertWebHook(_ context.Context, user string, webHook *models.WebHook) models.StoreResult {
	if webHook == nil || webHook.ID == "" {
		return models.StoreOperationError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u := normalizeKey(user)
	hooks, ok := s.users[u]
	if !ok {
		hooks = make(map[string]*models.WebHook)
		s.users[u] = hooks
	}
	id := normalizeKey(webHook.ID)
	if _, exists := hooks[id]; exists {
		return models.StoreConflict
	}
	stored := webHook.Clone()
	stored.Version = 1
	hooks[id] = stored
	webHook.Version = stored.Version
	return models.StoreSuccess
}

func (s *MemoryStore) UpdateWebHook(_ context.Context, user string, webHook *models.WebHook) models.StoreResult {
	if webHook == nil {
		return models.StoreOperationError
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	hooks := s.users[normalizeKey(user)]
	id := normalizeKey(webHook.ID)
	current, ok := hooks[id]
	if !ok {
		return models.StoreNotFound
	}
	if current.Version != webHook.Version {
		return models.StoreConflict
	}
	stored := webHook.Clone()
	stored.Version = current.Version + 1
	hooks[id] = stored
	webHook.Version = stored.Version
	return models.StoreSuccess
}

func (s *MemoryStore) DeleteWebHook(_ context.Context, user, id string) models.StoreResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	hooks := s.users[normalizeKey(user)]
	key := normalizeKey(id)
	if _, ok := hooks[key]; !ok {
		return models.StoreNotFound
	}
	delete(hooks, key)
	return models.StoreSuccess
}

func (s *MemoryStore) DeleteAllWebHooks(_ context.Context, user string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, normalizeKey(user))
	return nil
}

func (s *MemoryStore) Close(context.Context) error { return nil }

func cloneAll(hooks map[string]*models.WebHook) []*models.WebHook {
	out := make([]*models.WebHook, 0, len(hooks))
	for _, w := range hooks {
		out = append(out, w.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
