package models

import (
	"strings"

	"github.com/google/uuid"
)

// WorkItem is one delivery attempt of a notification batch to a webhook.
// Items are never modified after construction; a retry is a new item
// with the same ID and the next Offset.
type WorkItem struct {
	ID            string         `json:"id"`
	User          string         `json:"user"`
	WebHook       *WebHook       `json:"webhook"`
	Notifications []Notification `json:"notifications"`
	Offset        int            `json:"offset"`
}

func NewWorkItem(user string, webHook *WebHook, notifications []Notification) *WorkItem {
	return &WorkItem{
		ID:            strings.ReplaceAll(uuid.NewString(), "-", ""),
		User:          user,
		WebHook:       webHook,
		Notifications: notifications,
	}
}

// Attempt is the 1-based attempt number reported to the receiver.
func (w *WorkItem) Attempt() int {
	return w.Offset + 1
}

// NextAttempt builds the item for the following attempt of this lineage.
func (w *WorkItem) NextAttempt() *WorkItem {
	return &WorkItem{
		ID:            w.ID,
		User:          w.User,
		WebHook:       w.WebHook,
		Notifications: w.Notifications,
		Offset:        w.Offset + 1,
	}
}
