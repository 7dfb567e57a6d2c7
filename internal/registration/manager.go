// Package registration validates webhook registrations and keeps them in
// the store on behalf of a user.
package registration

import (
	"context"
	"errors"
	"net/http"

	"webhook-dispatcher/internal/filters"
	"webhook-dispatcher/internal/models"
	"webhook-dispatcher/internal/storage"
	"webhook-dispatcher/pkg/metrics"

	"go.uber.org/zap"
)

// updateAttempts bounds the read-modify-write loop on store conflicts.
const updateAttempts = 3

type Options struct {
	RequireHTTPS  bool
	VerifyAddress bool
	MaxPerUser    int
}

type Manager struct {
	store      storage.Store
	filters    *filters.Manager
	ids        IDValidator
	address    AddressVerifier
	registrars []Registrar
	opts       Options
	logger     *zap.Logger
}

func NewManager(store storage.Store, catalogue *filters.Manager, ids IDValidator, address AddressVerifier, registrars []Registrar, opts Options, logger *zap.Logger) *Manager {
	if ids == nil {
		ids = DefaultIDValidator{}
	}
	return &Manager{
		store:      store,
		filters:    catalogue,
		ids:        ids,
		address:    address,
		registrars: registrars,
		opts:       opts,
		logger:     logger,
	}
}

// GetWebHooks lists the user's webhooks with private filters removed.
func (m *Manager) GetWebHooks(ctx context.Context, userID string) ([]*models.WebHook, error) {
	hooks, err := m.store.GetAllWebHooks(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, w := range hooks {
		filters.RemovePrivateFilters(w)
	}
	return hooks, nil
}

// Lookup returns one webhook with private filters removed.
func (m *Manager) Lookup(ctx context.Context, userID, id string) (*models.WebHook, error) {
	w, err := m.store.LookupWebHook(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, models.ErrNotFound
	}
	filters.RemovePrivateFilters(w)
	return w, nil
}

// Register validates w, runs the registrars and inserts it. The returned
// copy has private filters removed.
func (m *Manager) Register(ctx context.Context, r *http.Request, userID string, w *models.WebHook) (*models.WebHook, error) {
	if w == nil {
		return nil, models.NewValidationError(componentRequest, "webhook is required")
	}
	if err := asValidation(componentID, m.ids.ValidateID(ctx, r, w)); err != nil {
		m.record("register", err)
		return nil, err
	}
	if m.opts.MaxPerUser > 0 {
		existing, err := m.store.GetAllWebHooks(ctx, userID)
		if err != nil {
			return nil, err
		}
		if len(existing) >= m.opts.MaxPerUser {
			err := models.NewValidationError(componentLimit, "a user may register at most %d webhooks", m.opts.MaxPerUser)
			m.record("register", err)
			return nil, err
		}
	}
	if err := m.verify(ctx, r, w); err != nil {
		m.record("register", err)
		return nil, err
	}

	result := m.store.InsertWebHook(ctx, userID, w)
	if err := result.Err(); err != nil {
		m.record("register", err)
		return nil, err
	}
	m.record("register", nil)
	m.logger.Info("Webhook registered",
		zap.String("user", userID),
		zap.String("webhook_id", w.ID),
		zap.Strings("filters", w.Filters))

	out := w.Clone()
	filters.RemovePrivateFilters(out)
	return out, nil
}

// Update replaces the stored webhook id with w after revalidating it.
// Lost update races are retried by re-reading the current version.
func (m *Manager) Update(ctx context.Context, r *http.Request, userID, id string, w *models.WebHook) (*models.WebHook, error) {
	if w == nil {
		return nil, models.NewValidationError(componentRequest, "webhook is required")
	}
	w.ID = id
	if err := asValidation(componentID, m.ids.ValidateID(ctx, r, w)); err != nil {
		m.record("update", err)
		return nil, err
	}
	if err := m.verify(ctx, r, w); err != nil {
		m.record("update", err)
		return nil, err
	}

	var err error
	for attempt := 0; attempt < updateAttempts; attempt++ {
		current, lookupErr := m.store.LookupWebHook(ctx, userID, id)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if current == nil {
			err = models.ErrNotFound
			break
		}
		w.Version = current.Version
		err = m.store.UpdateWebHook(ctx, userID, w).Err()
		if !errors.Is(err, models.ErrConflict) {
			break
		}
		m.logger.Warn("Webhook update conflict, retrying",
			zap.String("user", userID),
			zap.String("webhook_id", id),
			zap.Int("attempt", attempt+1))
	}
	m.record("update", err)
	if err != nil {
		return nil, err
	}

	out := w.Clone()
	filters.RemovePrivateFilters(out)
	return out, nil
}

func (m *Manager) Delete(ctx context.Context, userID, id string) error {
	err := m.store.DeleteWebHook(ctx, userID, id).Err()
	m.record("delete", err)
	return err
}

func (m *Manager) DeleteAll(ctx context.Context, userID string) error {
	err := m.store.DeleteAllWebHooks(ctx, userID)
	m.record("delete_all", err)
	return err
}

// verify runs the secret, filter and address checks followed by the
// registrars. Private filters come only from registrars.
func (m *Manager) verify(ctx context.Context, r *http.Request, w *models.WebHook) error {
	if err := VerifySecret(w); err != nil {
		return err
	}
	if err := VerifyFilters(ctx, m.filters, w); err != nil {
		return err
	}
	if err := VerifyURI(w, m.opts.RequireHTTPS); err != nil {
		return err
	}
	if m.opts.VerifyAddress && m.address != nil {
		if err := asValidation(componentAddress, m.address.VerifyAddress(ctx, w)); err != nil {
			return err
		}
	}
	return runRegistrars(ctx, m.registrars, r, w)
}

func (m *Manager) record(operation string, err error) {
	result := "success"
	var verr *models.ValidationError
	var rerr *models.RegistrarError
	switch {
	case err == nil:
	case errors.As(err, &verr):
		result = "invalid"
	case errors.As(err, &rerr):
		result = "rejected"
	case errors.Is(err, models.ErrConflict):
		result = "conflict"
	case errors.Is(err, models.ErrNotFound):
		result = "not_found"
	default:
		result = "error"
	}
	metrics.Registrations.WithLabelValues(operation, result).Inc()
}
