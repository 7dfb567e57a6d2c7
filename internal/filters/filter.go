// Package filters holds the filter model: the filter catalogue built from
// pluggable providers and the private filter convention.
package filters

import (
	"strings"

	"webhook-dispatcher/internal/models"
)

// PrivatePrefix marks filters injected server-side. They take part in
// dispatch matching but are never shown to clients.
const PrivatePrefix = "MS_Private_"

type Visibility string

const (
	VisibilityPublic  Visibility = "public"
	VisibilityPrivate Visibility = "private"
)

// WebHookFilter describes a filter a client may register for.
type WebHookFilter struct {
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Visibility  Visibility `json:"-"`
}

// NewFilter tags the filter with its visibility from the name.
func NewFilter(name, description string) WebHookFilter {
	return WebHookFilter{
		Name:        name,
		Description: description,
		Visibility:  VisibilityOf(name),
	}
}

// IsPrivate reports whether the filter is hidden from clients.
func (f WebHookFilter) IsPrivate() bool {
	return f.Visibility == VisibilityPrivate
}

// VisibilityOf derives visibility from the reserved name prefix, ignoring case.
func VisibilityOf(name string) Visibility {
	if IsPrivateFilter(name) {
		return VisibilityPrivate
	}
	return VisibilityPublic
}

func IsPrivateFilter(name string) bool {
	return len(name) >= len(PrivatePrefix) && strings.EqualFold(name[:len(PrivatePrefix)], PrivatePrefix)
}

// PrivateName prefixes name with the private marker unless it already has it.
func PrivateName(name string) string {
	if IsPrivateFilter(name) {
		return name
	}
	return PrivatePrefix + name
}

// RemovePrivateFilters strips every private filter from the webhook.
// Calling it on a webhook without private filters leaves it unchanged.
func RemovePrivateFilters(w *models.WebHook) {
	if w == nil {
		return
	}
	kept := w.Filters[:0:0]
	for _, f := range w.Filters {
		if !IsPrivateFilter(f) {
			kept = append(kept, f)
		}
	}
	if len(kept) == len(w.Filters) {
		return
	}
	w.Filters = kept
}
