package syncer

import (
	"context"
	"strings"

	"github.com/Sternrassler/portal-sync/pkg/records"
	"github.com/Sternrassler/portal-sync/pkg/store"
	"github.com/shopspring/decimal"
)

// PensionCoverageName is the coverage a pension certificate is stored under.
const PensionCoverageName = "Plano de Previdência"

// LifeProducts upserts one row per life coverage.
func (e *Engine) LifeProducts(ctx context.Context, scope Scope, products []records.LifeProduct) (Counts, error) {
	rows := make([]productInput, len(products))
	for i, p := range products {
		rows[i] = productInput{
			common:         p.ProductCommon,
			status:         p.Status,
			certificate:    p.CertificateNumber.String,
			coverage:       p.CoverageName.String,
			businessLine:   records.NonBlank(p.BusinessLine),
			insuredCapital: p.InsuredCapital,
			coveragePeriod: p.CoveragePeriod,
		}
	}
	return e.products(ctx, EntityLifeProducts, scope, rows)
}

// PensionProducts upserts one row per pension certificate. A certificate
// without its own number is stored under its proposal number, and its gross
// reserve stands in for the insured capital.
func (e *Engine) PensionProducts(ctx context.Context, scope Scope, products []records.PensionProduct) (Counts, error) {
	rows := make([]productInput, len(products))
	for i, p := range products {
		capital := p.GrossReserve
		if !capital.Valid {
			capital = decimal.NewNullDecimal(decimal.Zero)
		}
		rows[i] = productInput{
			common:         p.ProductCommon,
			status:         records.TextOf(p.Status.Or(records.StatusActive)),
			certificate:    p.CertificateNumber.Or(p.ProposalNumber.String),
			coverage:       PensionCoverageName,
			businessLine:   records.TextOf(records.NonBlank(p.BusinessLine).Or(records.LinePension)),
			insuredCapital: capital,
			pension:        true,
		}
	}
	return e.products(ctx, EntityPensionProducts, scope, rows)
}

// productInput is a life or pension product reduced to what the products
// table stores.
type productInput struct {
	common         records.ProductCommon
	status         records.Text
	certificate    string
	coverage       string
	businessLine   records.Text
	insuredCapital decimal.NullDecimal
	coveragePeriod records.Text
	pension        bool
}

func isCancelled(status records.Text) bool {
	return strings.EqualFold(strings.TrimSpace(status.String), records.StatusCancelled)
}

func (e *Engine) products(ctx context.Context, entity Entity, scope Scope, inputs []productInput) (Counts, error) {
	logger := e.logger.With().Str("entity", string(entity)).Logger()

	return e.runBatch(ctx, entity, len(inputs), func(ctx context.Context, repos store.Repos, i int) (outcome, error) {
		in := inputs[i]
		if isCancelled(in.status) {
			return outcomeCancelled, nil
		}
		document, ok := scope.Index.Lookup(in.common.CustomerID.String)
		if !ok {
			logger.Warn().Str("id_cliente", in.common.CustomerID.String).Msg("Customer id not in index; skipped")
			return outcomeSkipped, nil
		}

		clientID, err := e.resolveClient(ctx, repos, scope, document, records.Text{})
		if err != nil {
			return outcomeFailed, err
		}

		row := store.ProductRow{
			ProductKey: store.ProductKey{
				TenantID:          e.config.TenantID,
				ClientID:          clientID,
				ProposalNumber:    in.common.ProposalNumber.String,
				CertificateNumber: in.certificate,
				CoverageName:      in.coverage,
			},
			BrokerName:            records.NonBlank(scope.BrokerName),
			BusinessLine:          in.businessLine,
			ProductType:           in.common.ProductType,
			Status:                in.status,
			InsuredCapital:        in.insuredCapital,
			CoveragePaymentPeriod: in.coveragePeriod,
			DueDay:                in.common.DueDay,
			LastPayment:           records.DatePtr(in.common.LastPayment),
			NextPayment:           records.DatePtr(in.common.NextPayment),
			PaidInstallments:      in.common.PaidInstallments,
			PendingInstallments:   in.common.PendingInstallments,
			PaymentFrequency:      in.common.PaymentFrequency,
		}

		differs := row.Differs
		if in.pension {
			differs = row.PensionDiffers
		}

		return upsert(ctx,
			func(ctx context.Context) (*store.ProductRow, error) {
				return repos.FindProduct(ctx, row.ProductKey)
			},
			differs,
			func(ctx context.Context) error { return repos.InsertProduct(ctx, row) },
			func(ctx context.Context, stored store.ProductRow) error {
				row.ID = stored.ID
				return repos.UpdateProduct(ctx, row)
			},
		)
	})
}
