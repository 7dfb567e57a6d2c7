package notify

import (
	"context"
	"errors"
	"testing"

	"webhook-dispatcher/internal/models"
	"webhook-dispatcher/internal/storage"
	"webhook-dispatcher/internal/user"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockEnqueuer struct {
	mock.Mock
}

func (m *MockEnqueuer) Enqueue(ctx context.Context, items ...*models.WorkItem) error {
	args := m.Called(items)
	return args.Error(0)
}

type MockStore struct {
	mock.Mock
	storage.Store
}

func (m *MockStore) GetAllWebHooks(ctx context.Context, u string) ([]*models.WebHook, error) {
	args := m.Called(u)
	hooks, _ := args.Get(0).([]*models.WebHook)
	return hooks, args.Error(1)
}

func (m *MockStore) GetAllWebHooksAcrossUsers(ctx context.Context) (map[string][]*models.WebHook, error) {
	args := m.Called()
	hooks, _ := args.Get(0).(map[string][]*models.WebHook)
	return hooks, args.Error(1)
}

var alice = user.Principal{Name: "alice", Authenticated: true}

func seed(t *testing.T, s storage.Store, owner string, hooks ...*models.WebHook) {
	t.Helper()
	for _, w := range hooks {
		require.Equal(t, models.StoreSuccess, s.InsertWebHook(context.Background(), owner, w))
	}
}

func hook(id string, filters ...string) *models.WebHook {
	return &models.WebHook{
		ID:         id,
		WebHookURI: "https://example.com/" + id,
		Secret:     "0123456789abcdef",
		Filters:    filters,
	}
}

func ids(items []*models.WorkItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.WebHook.ID)
	}
	return out
}

func TestNotifySelectsMatchingWebhook(t *testing.T) {
	s := storage.NewMemoryStore()
	seed(t, s, "alice", hook("h1", "a"))

	q := new(MockEnqueuer)
	q.On("Enqueue", mock.MatchedBy(func(items []*models.WorkItem) bool {
		return len(items) == 1 && items[0].WebHook.ID == "h1" && items[0].Offset == 0 && items[0].User == "alice"
	})).Return(nil)

	m := NewManager(s, user.NameResolver{}, q, zap.NewNop())
	n, err := m.Notify(context.Background(), alice, []models.Notification{models.NewNotification("a", nil)}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	q.AssertExpectations(t)
}

func TestNotifyMatchingRules(t *testing.T) {
	s := storage.NewMemoryStore()
	paused := hook("paused", "*")
	paused.IsPaused = true
	seed(t, s, "alice",
		hook("named", "A"),
		hook("wild", "*"),
		hook("other", "b"),
		hook("private", "MS_Private_x", "a"),
		paused,
	)
	seed(t, s, "bob", hook("bobs", "*"))

	var got []*models.WorkItem
	q := new(MockEnqueuer)
	q.On("Enqueue", mock.Anything).Run(func(args mock.Arguments) {
		got = args.Get(0).([]*models.WorkItem)
	}).Return(nil)

	m := NewManager(s, user.NameResolver{}, q, zap.NewNop())
	batch := []models.Notification{models.NewNotification("a", map[string]any{"k": 1}), models.NewNotification("c", nil)}
	n, err := m.Notify(context.Background(), alice, batch, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.ElementsMatch(t, []string{"named", "wild", "private"}, ids(got))
	for _, it := range got {
		// the whole batch travels with each item
		assert.Len(t, it.Notifications, 2)
	}
}

func TestNotifyAppliesPredicate(t *testing.T) {
	s := storage.NewMemoryStore()
	seed(t, s, "alice", hook("keep", "*"), hook("drop", "*"))

	var got []*models.WorkItem
	q := new(MockEnqueuer)
	q.On("Enqueue", mock.Anything).Run(func(args mock.Arguments) {
		got = args.Get(0).([]*models.WorkItem)
	}).Return(nil)

	m := NewManager(s, user.NameResolver{}, q, zap.NewNop())
	n, err := m.Notify(context.Background(), alice, []models.Notification{{Action: "x"}}, func(w *models.WebHook, u string) bool {
		return w.ID == "keep" && u == "alice"
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"keep"}, ids(got))
}

func TestNotifyEmptyBatchSkipsStore(t *testing.T) {
	s := new(MockStore)
	q := new(MockEnqueuer)
	m := NewManager(s, user.NameResolver{}, q, zap.NewNop())

	n, err := m.Notify(context.Background(), alice, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = m.NotifyAll(context.Background(), []models.Notification{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	s.AssertNotCalled(t, "GetAllWebHooks", mock.Anything)
	s.AssertNotCalled(t, "GetAllWebHooksAcrossUsers")
	q.AssertNotCalled(t, "Enqueue", mock.Anything)
}

func TestNotifyNoMatchDoesNotEnqueue(t *testing.T) {
	s := storage.NewMemoryStore()
	seed(t, s, "alice", hook("h", "b"))
	q := new(MockEnqueuer)

	m := NewManager(s, user.NameResolver{}, q, zap.NewNop())
	n, err := m.Notify(context.Background(), alice, []models.Notification{{Action: "a"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	q.AssertNotCalled(t, "Enqueue", mock.Anything)
}

func TestNotifyPropagatesErrors(t *testing.T) {
	boom := errors.New("store down")
	s := new(MockStore)
	s.On("GetAllWebHooks", "alice").Return(nil, boom)
	s.On("GetAllWebHooksAcrossUsers").Return(nil, boom)

	m := NewManager(s, user.NameResolver{}, new(MockEnqueuer), zap.NewNop())
	_, err := m.Notify(context.Background(), alice, []models.Notification{{Action: "a"}}, nil)
	assert.ErrorIs(t, err, boom)

	_, err = m.NotifyAll(context.Background(), []models.Notification{{Action: "a"}}, nil)
	assert.ErrorIs(t, err, boom)

	_, err = m.Notify(context.Background(), user.Principal{}, []models.Notification{{Action: "a"}}, nil)
	assert.ErrorIs(t, err, user.ErrUnauthenticated)
}

func TestNotifyAllSpansUsers(t *testing.T) {
	s := storage.NewMemoryStore()
	seed(t, s, "alice", hook("a1", "a"))
	seed(t, s, "bob", hook("b1", "*"), hook("b2", "z"))

	var got []*models.WorkItem
	q := new(MockEnqueuer)
	q.On("Enqueue", mock.Anything).Run(func(args mock.Arguments) {
		got = args.Get(0).([]*models.WorkItem)
	}).Return(nil)

	m := NewManager(s, user.NameResolver{}, q, zap.NewNop())
	n, err := m.NotifyAll(context.Background(), []models.Notification{{Action: "a"}}, func(_ *models.WebHook, u string) bool {
		return u != ""
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.ElementsMatch(t, []string{"a1", "b1"}, ids(got))

	owners := map[string]string{}
	for _, it := range got {
		owners[it.WebHook.ID] = it.User
	}
	assert.Equal(t, "alice", owners["a1"])
	assert.Equal(t, "bob", owners["b1"])
}

func TestNotifyReportsEnqueueFailure(t *testing.T) {
	s := storage.NewMemoryStore()
	seed(t, s, "alice", hook("h", "*"))
	q := new(MockEnqueuer)
	q.On("Enqueue", mock.Anything).Return(errors.New("closed"))

	m := NewManager(s, user.NameResolver{}, q, zap.NewNop())
	n, err := m.Notify(context.Background(), alice, []models.Notification{{Action: "a"}}, nil)
	assert.Error(t, err)
	assert.Equal(t, 1, n)
}
