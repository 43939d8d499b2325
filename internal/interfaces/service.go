package interfaces

import (
	"context"

	"statusflow/internal/models"
)

// A ChannelHandler knows how to parse and apply delivery reports of one channel
type ChannelHandler interface {
	Channel() string
	Parse(payload []byte) (*models.DeliveryReport, error)
	UpdateStatus(ctx context.Context, report *models.DeliveryReport) error
	SuppressionKey(report *models.DeliveryReport) string
}
