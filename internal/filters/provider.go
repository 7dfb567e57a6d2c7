package filters

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"webhook-dispatcher/internal/models"

	"go.uber.org/zap"
)

// Provider contributes filters to the catalogue.
type Provider interface {
	GetFilters(ctx context.Context) ([]WebHookFilter, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) ([]WebHookFilter, error)

func (f ProviderFunc) GetFilters(ctx context.Context) ([]WebHookFilter, error) { return f(ctx) }

// WildcardProvider contributes the single "*" filter.
type WildcardProvider struct{}

func (WildcardProvider) GetFilters(context.Context) ([]WebHookFilter, error) {
	return []WebHookFilter{NewFilter(models.WildcardFilter, "Wildcard filter which matches every notification.")}, nil
}

// ActionsProvider exposes a fixed list of action names, typically from config.
type ActionsProvider struct {
	Actions map[string]string // name -> description
}

func NewActionsProvider(actions map[string]string) *ActionsProvider {
	return &ActionsProvider{Actions: actions}
}

func (p *ActionsProvider) GetFilters(context.Context) ([]WebHookFilter, error) {
	out := make([]WebHookFilter, 0, len(p.Actions))
	for name, description := range p.Actions {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		out = append(out, NewFilter(name, description))
	}
	return out, nil
}

// DuplicateFilterError is returned when two providers register the same name.
type DuplicateFilterError struct {
	Name string
}

func (e *DuplicateFilterError) Error() string {
	return fmt.Sprintf("filter %q is registered by more than one provider", e.Name)
}

func (e *DuplicateFilterError) Unwrap() error { return models.ErrOperation }

// Manager aggregates providers into one catalogue keyed by the folded name.
type Manager struct {
	providers []Provider
	logger    *zap.Logger
}

func NewManager(logger *zap.Logger, providers ...Provider) *Manager {
	return &Manager{
		providers: providers,
		logger:    logger,
	}
}

// GetAllFilters queries every provider and returns a fresh catalogue.
// Provider errors and name collisions are returned.
func (m *Manager) GetAllFilters(ctx context.Context) (map[string]WebHookFilter, error) {
	all := make(map[string]WebHookFilter)
	for _, p := range m.providers {
		fs, err := p.GetFilters(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load filters: %w", err)
		}
		for _, f := range fs {
			key := strings.ToLower(f.Name)
			if _, exists := all[key]; exists {
				m.logger.Error("Duplicate filter name", zap.String("filter", f.Name))
				return nil, &DuplicateFilterError{Name: f.Name}
			}
			all[key] = f
		}
	}
	return all, nil
}

// Lookup finds a filter by name, ignoring case.
func (m *Manager) Lookup(ctx context.Context, name string) (WebHookFilter, bool, error) {
	all, err := m.GetAllFilters(ctx)
	if err != nil {
		return WebHookFilter{}, false, err
	}
	f, ok := all[strings.ToLower(name)]
	return f, ok, nil
}

// VisibleFilters returns the public filters a client may register for.
func (m *Manager) VisibleFilters(ctx context.Context) ([]WebHookFilter, error) {
	all, err := m.GetAllFilters(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]WebHookFilter, 0, len(all))
	for _, f := range all {
		if f.IsPrivate() {
			continue
		}
		out = append(out, f)
	}
	sortFilters(out)
	return out, nil
}

func sortFilters(fs []WebHookFilter) {
	sort.Slice(fs, func(i, j int) bool {
		return strings.ToLower(fs[i].Name) < strings.ToLower(fs[j].Name)
	})
}
