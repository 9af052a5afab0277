package ports

import (
	"context"

	"github.com/ArkLabsHQ/escrowd/internal/core/domain"
)

// AlertService raises conditions that need an operator.
type AlertService interface {
	PartialSettlement(ctx context.Context, order domain.Order, err error)
}

type MetricsService interface {
	OrderTransition(from, to domain.OrderStatus)
	TransferExecuted(chain domain.ChainKind, leg domain.TransferLeg, err error)
	SweepCompleted(expired int, err error)
}
