package telemetry

import (
	"context"
	"strconv"

	"github.com/ArkLabsHQ/escrowd/internal/core/domain"
	"github.com/ArkLabsHQ/escrowd/internal/core/ports"
	"github.com/getsentry/sentry-go"
	log "github.com/sirupsen/logrus"
)

type alertService struct {
	sentryEnabled bool
}

// NewAlertService logs alerts at error level and, if enabled, reports them
// to Sentry.
func NewAlertService(sentryEnabled bool) ports.AlertService {
	return &alertService{sentryEnabled}
}

func (a *alertService) PartialSettlement(ctx context.Context, order domain.Order, err error) {
	log.WithError(err).WithFields(log.Fields{
		"order_id":         order.Id,
		"settlement_error": order.SettlementError,
	}).Error("order partially settled, operator action required")

	if !a.sentryEnabled {
		return
	}

	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	hub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(sentry.LevelFatal)
		scope.SetTag("alert", "partial_settlement")
		scope.SetTag("order_id", strconv.FormatUint(order.Id, 10))
		scope.SetContext("order", map[string]interface{}{
			"status":     order.Status.String(),
			"from_asset": order.FromAsset.String(),
			"to_asset":   order.ToAsset.String(),
			"transfers":  transfersSummary(order.Transfers),
		})
		hub.CaptureException(err)
	})
}

func transfersSummary(transfers []domain.Transfer) []map[string]string {
	summary := make([]map[string]string, 0, len(transfers))
	for _, t := range transfers {
		summary = append(summary, map[string]string{
			"leg":    t.Leg.String(),
			"status": t.Status.String(),
			"txid":   t.Txid,
			"error":  t.Error,
		})
	}
	return summary
}
