package worker

import (
	"context"

	"webhook-dispatcher/internal/models"
	"webhook-dispatcher/internal/storage"

	"go.uber.org/zap"
)

// Observer is told about every attempt, including the terminal one.
type Observer interface {
	Observe(ctx context.Context, rec models.DeliveryRecord)
}

// DeliveryLogObserver writes each attempt to a delivery log.
type DeliveryLogObserver struct {
	log    storage.DeliveryLog
	logger *zap.Logger
}

func NewDeliveryLogObserver(log storage.DeliveryLog, logger *zap.Logger) *DeliveryLogObserver {
	return &DeliveryLogObserver{log: log, logger: logger}
}

func (o *DeliveryLogObserver) Observe(ctx context.Context, rec models.DeliveryRecord) {
	if err := o.log.RecordDelivery(ctx, rec); err != nil {
		o.logger.Warn("Failed to record delivery attempt",
			zap.Error(err),
			zap.String("work_item_id", rec.WorkItemID),
			zap.Int("attempt", rec.Attempt))
	}
}
