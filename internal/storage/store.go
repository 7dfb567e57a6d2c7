package storage

import (
	"context"
	"strings"

	"webhook-dispatcher/internal/models"
)

// Store persists webhook registrations scoped per user. Mutating calls
// report expected failures through models.StoreResult.
type Store interface {
	GetAllWebHooks(ctx context.Context, user string) ([]*models.WebHook, error)
	// GetAllWebHooksAcrossUsers returns every registration keyed by owner.
	GetAllWebHooksAcrossUsers(ctx context.Context) (map[string][]*models.WebHook, error)
	// LookupWebHook returns nil when the webhook does not exist.
	LookupWebHook(ctx context.Context, user, id string) (*models.WebHook, error)
	InsertWebHook(ctx context.Context, user string, webHook *models.WebHook) models.StoreResult
	// UpdateWebHook succeeds only if webHook.Version matches the stored one.
	UpdateWebHook(ctx context.Context, user string, webHook *models.WebHook) models.StoreResult
	DeleteWebHook(ctx context.Context, user, id string) models.StoreResult
	DeleteAllWebHooks(ctx context.Context, user string) error
	Close(ctx context.Context) error
}

// DeliveryLog records delivery attempts.
type DeliveryLog interface {
	RecordDelivery(ctx context.Context, rec models.DeliveryRecord) error
}

func normalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
