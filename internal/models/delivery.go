package models

import (
	"time"
)

// DeliveryStatus represents the possible states of a delivery attempt
type DeliveryStatus string

const (
	DeliveryStatusPending   DeliveryStatus = "pending"
	DeliveryStatusSending   DeliveryStatus = "sending"
	DeliveryStatusDelivered DeliveryStatus = "delivered"
	DeliveryStatusFailed    DeliveryStatus = "failed"
	DeliveryStatusRetrying  DeliveryStatus = "retrying"
)

// Terminal failure reasons.
const (
	ReasonExhausted = "exhausted"
	ReasonGone      = "gone"
	ReasonRequest   = "request"
	ReasonShutdown  = "shutdown"
)

// DeliveryRecord is one attempt as written to the delivery log.
type DeliveryRecord struct {
	WorkItemID string         `json:"work_item_id" bson:"work_item_id"`
	WebHookID  string         `json:"webhook_id" bson:"webhook_id"`
	User       string         `json:"user" bson:"user"`
	Attempt    int            `json:"attempt" bson:"attempt"`
	Status     DeliveryStatus `json:"status" bson:"status"`
	Reason     string         `json:"reason,omitempty" bson:"reason,omitempty"`
	StatusCode int            `json:"status_code,omitempty" bson:"status_code,omitempty"`
	Error      string         `json:"error,omitempty" bson:"error,omitempty"`
	Duration   time.Duration  `json:"duration" bson:"duration"`
	CreatedAt  time.Time      `json:"created_at" bson:"created_at"`
}

// NewDeliveryRecord captures the attempt described by item.
func NewDeliveryRecord(item *WorkItem, status DeliveryStatus) DeliveryRecord {
	rec := DeliveryRecord{
		WorkItemID: item.ID,
		User:       item.User,
		Attempt:    item.Attempt(),
		Status:     status,
		CreatedAt:  time.Now().UTC(),
	}
	if item.WebHook != nil {
		rec.WebHookID = item.WebHook.ID
	}
	return rec
}

// Terminal reports whether the record closes its lineage.
func (r DeliveryRecord) Terminal() bool {
	return r.Status == DeliveryStatusDelivered || r.Status == DeliveryStatusFailed
}
