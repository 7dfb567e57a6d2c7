package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesAction(t *testing.T) {
	tests := []struct {
		name    string
		filters []string
		actions []string
		want    bool
	}{
		{"named filter", []string{"a"}, []string{"a"}, true},
		{"case-insensitive", []string{"Order.Created"}, []string{"order.created"}, true},
		{"wildcard", []string{"*"}, []string{"anything"}, true},
		{"any of batch", []string{"b"}, []string{"a", "b"}, true},
		{"no overlap", []string{"a"}, []string{"b"}, false},
		{"no filters", nil, []string{"a"}, false},
		{"private filter participates", []string{"MS_Private_x"}, []string{"ms_private_X"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &WebHook{Filters: tt.filters}
			assert.Equal(t, tt.want, w.MatchesAction(tt.actions...))
		})
	}
}

func TestFilterSetIsCaseInsensitive(t *testing.T) {
	w := &WebHook{Filters: []string{" a ", "A", "", "b"}}
	w.NormalizeFilters()
	assert.Equal(t, []string{"a", "b"}, w.Filters)

	assert.True(t, w.HasFilter("B"))
	assert.False(t, w.AddFilter("B"))
	assert.True(t, w.AddFilter("c"))
	assert.Equal(t, []string{"a", "b", "c"}, w.Filters)
}

func TestCloneIsDeep(t *testing.T) {
	w := &WebHook{
		ID:         "h",
		Filters:    []string{"a"},
		Headers:    map[string]string{"X-A": "1"},
		Properties: map[string]any{"p": 1},
	}
	c := w.Clone()
	c.Filters[0] = "z"
	c.Headers["X-A"] = "2"
	c.Properties["p"] = 2

	assert.Equal(t, "a", w.Filters[0])
	assert.Equal(t, "1", w.Headers["X-A"])
	assert.Equal(t, 1, w.Properties["p"])
	assert.Nil(t, (*WebHook)(nil).Clone())
}

func TestStoreResultErr(t *testing.T) {
	assert.NoError(t, StoreSuccess.Err())
	assert.ErrorIs(t, StoreConflict.Err(), ErrConflict)
	assert.ErrorIs(t, StoreNotFound.Err(), ErrNotFound)
	assert.ErrorIs(t, StoreOperationError.Err(), ErrOperation)
	assert.Equal(t, "conflict", StoreConflict.String())
}

func TestWorkItemNextAttempt(t *testing.T) {
	w := &WebHook{ID: "h"}
	item := NewWorkItem("alice", w, []Notification{NewNotification("a", nil)})
	assert.Len(t, item.ID, 32)
	assert.Equal(t, 1, item.Attempt())

	next := item.NextAttempt()
	assert.Equal(t, item.ID, next.ID)
	assert.Equal(t, 1, next.Offset)
	assert.Equal(t, 2, next.Attempt())
	assert.Same(t, w, next.WebHook)
	assert.Equal(t, 0, item.Offset)
}
