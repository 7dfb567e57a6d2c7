package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"webhook-dispatcher/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeAPI is a minimal registration API keyed by id.
type fakeAPI struct {
	mu    sync.Mutex
	hooks map[string]models.WebHook
	calls []string
	fail  int
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, r.Method+" "+r.URL.Path)

	if r.Header.Get("X-API-Key") != "secret-key" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	if f.fail > 0 {
		f.fail--
		w.WriteHeader(http.StatusBadGateway)
		return
	}

	switch r.Method {
	case http.MethodGet:
		list := make([]models.WebHook, 0, len(f.hooks))
		for _, h := range f.hooks {
			list = append(list, h)
		}
		_ = json.NewEncoder(w).Encode(list)
	case http.MethodPost, http.MethodPut:
		var h models.WebHook
		_ = json.NewDecoder(r.Body).Decode(&h)
		status := http.StatusOK
		if r.Method == http.MethodPost {
			h.ID = "new"
			status = http.StatusCreated
		}
		f.hooks[h.ID] = h
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(h)
	}
}

func newClient(url string) *Client {
	return &Client{ID: "alice", APIKey: "secret-key", APIKeyHeader: "X-API-Key", BaseURL: url, HTTP: http.DefaultClient}
}

func TestSyncRegistersWhenMissing(t *testing.T) {
	api := &fakeAPI{hooks: map[string]models.WebHook{}}
	srv := httptest.NewServer(api)
	defer srv.Close()

	ids, err := newClient(srv.URL).Sync(context.Background(), "https://tunnel.example/hook", "dev tunnel", []string{"order_created"})
	require.NoError(t, err)
	assert.Equal(t, []string{"new"}, ids)
	assert.Equal(t, []string{"order_created"}, api.hooks["new"].Filters)
	assert.Equal(t, []string{"GET /api/webhooks/registrations", "POST /api/webhooks/registrations"}, api.calls)
}

func TestSyncUpdatesTaggedWebhooks(t *testing.T) {
	api := &fakeAPI{hooks: map[string]models.WebHook{
		"a": {ID: "a", WebHookURI: "https://old.example/hook", Description: "dev tunnel", IsPaused: true},
		"b": {ID: "b", WebHookURI: "https://prod.example/hook", Description: "production"},
	}}
	srv := httptest.NewServer(api)
	defer srv.Close()

	ids, err := newClient(srv.URL).Sync(context.Background(), "https://tunnel.example/hook", "dev tunnel", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids)
	assert.Equal(t, "https://tunnel.example/hook", api.hooks["a"].WebHookURI)
	assert.False(t, api.hooks["a"].IsPaused)
	assert.Equal(t, "https://prod.example/hook", api.hooks["b"].WebHookURI)
}

func TestMakeRequestRetriesServerErrors(t *testing.T) {
	defer func(d time.Duration) { retryInterval = d }(retryInterval)
	retryInterval = time.Millisecond

	api := &fakeAPI{hooks: map[string]models.WebHook{}, fail: 1}
	srv := httptest.NewServer(api)
	defer srv.Close()

	hooks, err := newClient(srv.URL).listWebHooks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, hooks)
	assert.Len(t, api.calls, 2)
}

func TestParseClients(t *testing.T) {
	clients, err := parseClients("alice:k1, bob:k2")
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, "bob", clients[1].ID)
	assert.Equal(t, "k2", clients[1].APIKey)

	_, err = parseClients("alice")
	assert.Error(t, err)
}
