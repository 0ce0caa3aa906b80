package ports

import (
	"context"

	"github.com/kevin07696/settlement-service/internal/domain/models"
)

// SettlementPublisher notifies downstream payout/reporting consumers of new settlements
type SettlementPublisher interface {
	PublishSettlementCreated(ctx context.Context, settlement *models.Settlement) error
	Close() error
}
