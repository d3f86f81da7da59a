package syncer

import (
	"context"
	"time"

	"github.com/Sternrassler/portal-sync/pkg/records"
	"github.com/Sternrassler/portal-sync/pkg/store"
)

// PendingPayments upserts delinquency rows for pending installments that are
// past due. Installments not yet due are counted as not delinquent and
// leave no trace in the store.
func (e *Engine) PendingPayments(ctx context.Context, scope Scope, pending []records.PendingPayment) (Counts, error) {
	logger := e.logger.With().Str("entity", string(EntityPendingPayments)).Logger()
	now := e.config.Now()

	return e.runBatch(ctx, EntityPendingPayments, len(pending), func(ctx context.Context, repos store.Repos, i int) (outcome, error) {
		p := pending[i]
		document := scope.Index.Resolve(p.CustomerID.String, p.CustomerDocument)
		if document == "" {
			logger.Warn().Str("proposta", p.ProposalNumber.String).Msg("Customer document unresolved; skipped")
			return outcomeSkipped, nil
		}

		delay := DelayDays(p, now)
		if delay <= 0 {
			return outcomeNotDelinquent, nil
		}

		clientID, err := e.resolveClient(ctx, repos, scope, document, p.CustomerName)
		if err != nil {
			return outcomeFailed, err
		}

		row := store.DefaulterRow{
			DefaulterKey: store.DefaulterKey{
				TenantID:          e.config.TenantID,
				ClientID:          clientID,
				ProposalNumber:    p.ProposalNumber.String,
				CertificateNumber: p.CertificateNumber.String,
				Competency:        p.Competency.String,
			},
			BrokerName:      records.NonBlank(scope.BrokerName),
			ClientName:      p.CustomerName,
			ClientCPF:       document,
			BusinessLine:    p.BusinessLine,
			ProductName:     p.Product,
			OriginalDueDate: records.DatePtr(p.OriginalDueDate),
			CurrentDueDate:  records.DatePtr(p.CurrentDueDate),
			Contribution:    p.Contribution,
			PaymentStatus:   p.PaymentStatus,
			PaymentMethod:   p.PaymentMethod,
			DelayDays:       delay,
		}

		return upsert(ctx,
			func(ctx context.Context) (*store.DefaulterRow, error) {
				return repos.FindDefaulter(ctx, row.DefaulterKey)
			},
			row.Differs,
			func(ctx context.Context) error { return repos.InsertDefaulter(ctx, row) },
			func(ctx context.Context, stored store.DefaulterRow) error {
				row.ID = stored.ID
				return repos.UpdateDefaulter(ctx, row)
			},
		)
	})
}

// DelayDays returns how many whole days p is overdue at now, counting from
// its current due date or, when that is absent, its original one. It is 0
// when neither date parses or the due date has not passed.
func DelayDays(p records.PendingPayment, now time.Time) int {
	raw := p.CurrentDueDate
	if raw.Blank() {
		raw = p.OriginalDueDate
	}
	due, ok := records.ParseDate(raw)
	if !ok {
		return 0
	}
	return records.DaysOverdue(due, now)
}
