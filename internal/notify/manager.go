// Package notify selects the webhooks a notification batch must reach and
// hands one work item per selected webhook to the dispatch queue.
package notify

import (
	"context"
	"fmt"

	"webhook-dispatcher/internal/models"
	"webhook-dispatcher/internal/storage"
	"webhook-dispatcher/internal/user"
	"webhook-dispatcher/pkg/metrics"

	"go.uber.org/zap"
)

// Predicate lets a caller veto individual webhooks. A nil Predicate
// accepts everything.
type Predicate func(webHook *models.WebHook, user string) bool

// Enqueuer accepts work items for asynchronous delivery.
type Enqueuer interface {
	Enqueue(ctx context.Context, items ...*models.WorkItem) error
}

type Manager struct {
	store    storage.Store
	resolver user.Resolver
	queue    Enqueuer
	logger   *zap.Logger
}

func NewManager(store storage.Store, resolver user.Resolver, queue Enqueuer, logger *zap.Logger) *Manager {
	return &Manager{
		store:    store,
		resolver: resolver,
		queue:    queue,
		logger:   logger,
	}
}

// Notify delivers the batch to the principal's matching webhooks and
// returns how many were selected. Delivery itself happens later; its
// failures are never reported here.
func (m *Manager) Notify(ctx context.Context, principal user.Principal, notifications []models.Notification, predicate Predicate) (int, error) {
	if len(notifications) == 0 {
		return 0, nil
	}
	userID, err := m.resolver.GetUserID(ctx, principal)
	if err != nil {
		return 0, err
	}
	return m.NotifyUser(ctx, userID, notifications, predicate)
}

// NotifyUser is Notify for an already resolved user id.
func (m *Manager) NotifyUser(ctx context.Context, userID string, notifications []models.Notification, predicate Predicate) (int, error) {
	if len(notifications) == 0 {
		return 0, nil
	}
	metrics.NotificationsReceived.WithLabelValues("user").Inc()

	hooks, err := m.store.GetAllWebHooks(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load webhooks for user %q: %w", userID, err)
	}
	return m.dispatch(ctx, "user", map[string][]*models.WebHook{userID: hooks}, notifications, predicate)
}

// NotifyAll applies the same matching to every user's webhooks.
func (m *Manager) NotifyAll(ctx context.Context, notifications []models.Notification, predicate Predicate) (int, error) {
	if len(notifications) == 0 {
		return 0, nil
	}
	metrics.NotificationsReceived.WithLabelValues("all").Inc()

	hooks, err := m.store.GetAllWebHooksAcrossUsers(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to load webhooks: %w", err)
	}
	return m.dispatch(ctx, "all", hooks, notifications, predicate)
}

func (m *Manager) dispatch(ctx context.Context, scope string, byUser map[string][]*models.WebHook, notifications []models.Notification, predicate Predicate) (int, error) {
	actions := models.Actions(notifications)

	var items []*models.WorkItem
	for userID, hooks := range byUser {
		for _, w := range Match(hooks, userID, actions, predicate) {
			items = append(items, models.NewWorkItem(userID, w, notifications))
		}
	}
	if len(items) == 0 {
		return 0, nil
	}

	metrics.WebhooksMatched.WithLabelValues(scope).Add(float64(len(items)))
	m.logger.Debug("Notification matched webhooks",
		zap.String("scope", scope),
		zap.Strings("actions", actions),
		zap.Int("matched", len(items)))

	if err := m.queue.Enqueue(ctx, items...); err != nil {
		return len(items), fmt.Errorf("failed to enqueue work items: %w", err)
	}
	return len(items), nil
}

// Match returns the webhooks that are not paused, have a filter for one of
// the actions (or the wildcard), and pass the predicate.
func Match(hooks []*models.WebHook, userID string, actions []string, predicate Predicate) []*models.WebHook {
	var out []*models.WebHook
	for _, w := range hooks {
		if w == nil || w.IsPaused {
			continue
		}
		if !w.MatchesAction(actions...) {
			continue
		}
		if predicate != nil && !predicate(w, userID) {
			continue
		}
		out = append(out, w)
	}
	return out
}
