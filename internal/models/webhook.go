package models

import (
	"strings"
)

// WildcardFilter matches every notification action.
const WildcardFilter = "*"

// WebHook is a single subscription owned by one user.
type WebHook struct {
	ID          string            `json:"Id" bson:"webhook_id"`
	WebHookURI  string            `json:"WebHookUri" bson:"webhook_uri"`
	Secret      string            `json:"Secret,omitempty" bson:"secret"`
	Description string            `json:"Description,omitempty" bson:"description,omitempty"`
	IsPaused    bool              `json:"IsPaused" bson:"is_paused"`
	Filters     []string          `json:"Filters" bson:"filters"`
	Headers     map[string]string `json:"Headers,omitempty" bson:"headers,omitempty"`
	Properties  map[string]any    `json:"Properties,omitempty" bson:"properties,omitempty"`

	// Version guards optimistic updates in the store.
	Version int64 `json:"-" bson:"version"`
}

// HasFilter reports whether name is in the filter set, ignoring case.
func (w *WebHook) HasFilter(name string) bool {
	for _, f := range w.Filters {
		if strings.EqualFold(f, name) {
			return true
		}
	}
	return false
}

// AddFilter inserts name unless an equal (case-insensitive) entry exists.
func (w *WebHook) AddFilter(name string) bool {
	if w.HasFilter(name) {
		return false
	}
	w.Filters = append(w.Filters, name)
	return true
}

// NormalizeFilters trims entries and drops empty and duplicate ones,
// keeping the first spelling seen.
func (w *WebHook) NormalizeFilters() {
	filters := w.Filters
	w.Filters = make([]string, 0, len(filters))
	for _, f := range filters {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		w.AddFilter(f)
	}
}

// MatchesAction is true for the wildcard filter or any filter equal to
// one of the actions.
func (w *WebHook) MatchesAction(actions ...string) bool {
	for _, f := range w.Filters {
		if f == WildcardFilter {
			return true
		}
		for _, action := range actions {
			if strings.EqualFold(f, action) {
				return true
			}
		}
	}
	return false
}

// Clone returns a deep copy so callers cannot mutate stored or in-flight
// registrations.
func (w *WebHook) Clone() *WebHook {
	if w == nil {
		return nil
	}
	c := *w
	if w.Filters != nil {
		c.Filters = append([]string(nil), w.Filters...)
	}
	if w.Headers != nil {
		c.Headers = make(map[string]string, len(w.Headers))
		for k, v := range w.Headers {
			c.Headers[k] = v
		}
	}
	if w.Properties != nil {
		c.Properties = make(map[string]any, len(w.Properties))
		for k, v := range w.Properties {
			c.Properties[k] = v
		}
	}
	return &c
}

// StoreResult is the outcome of a mutating store operation.
type StoreResult int

const (
	StoreSuccess StoreResult = iota
	StoreConflict
	StoreNotFound
	StoreOperationError
)

func (r StoreResult) String() string {
	switch r {
	case StoreSuccess:
		return "success"
	case StoreConflict:
		return "conflict"
	case StoreNotFound:
		return "not_found"
	default:
		return "operation_error"
	}
}

// Err maps a result to the matching sentinel error, nil on success.
func (r StoreResult) Err() error {
	switch r {
	case StoreSuccess:
		return nil
	case StoreConflict:
		return ErrConflict
	case StoreNotFound:
		return ErrNotFound
	default:
		return ErrOperation
	}
}
