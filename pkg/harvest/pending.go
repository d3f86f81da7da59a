package harvest

import (
	"context"

	"github.com/Sternrassler/portal-sync/pkg/portal"
	"github.com/Sternrassler/portal-sync/pkg/records"
)

// PendingPayments pages through the pending-installments report and returns
// the "Pagamentos Pendentes" batch. Each listing item maps to one record.
func (h *Harvester) PendingPayments(ctx context.Context, template []byte) ([]records.Batch, error) {
	raw, listErr := h.listing(ctx, h.pending, template)
	if raw == nil && listErr != nil {
		return nil, listErr
	}

	items := decodeItems[portal.PendingItem](h.logger, "pending_payments", raw)
	pending := make([]records.PendingPayment, 0, len(items))
	for _, item := range items {
		pending = append(pending, portal.NormalizePending(item))
	}

	h.logger.Info().Int("pending_payments", len(pending)).Msg("Pending payments workflow finished")

	b, err := newBatch(records.BatchPendingPayments, pending)
	if err != nil {
		return nil, err
	}
	return []records.Batch{b}, listErr
}
