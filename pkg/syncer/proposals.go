package syncer

import (
	"context"
	"strings"

	"github.com/Sternrassler/portal-sync/pkg/records"
	"github.com/Sternrassler/portal-sync/pkg/store"
)

// Proposals upserts proposal status records keyed by proposal number.
// Records without a number, a resolvable customer document or a parseable
// due date are skipped.
func (e *Engine) Proposals(ctx context.Context, scope Scope, proposals []records.ProposalStatus) (Counts, error) {
	logger := e.logger.With().Str("entity", string(EntityProposals)).Logger()

	return e.runBatch(ctx, EntityProposals, len(proposals), func(ctx context.Context, repos store.Repos, i int) (outcome, error) {
		p := proposals[i]
		number := strings.TrimSpace(p.ProposalNumber.String)
		if number == "" {
			logger.Debug().Int("record", i+1).Msg("No proposal number; skipped")
			return outcomeSkipped, nil
		}
		document := scope.Index.Resolve(p.CustomerID.String, p.Document)
		if document == "" {
			logger.Warn().Str("proposta", number).Msg("Customer document unresolved; skipped")
			return outcomeSkipped, nil
		}
		due := records.DatePtr(p.DueDate)
		if due == nil {
			logger.Debug().Str("proposta", number).Msg("No valid due date; skipped")
			return outcomeSkipped, nil
		}

		clientID, err := e.resolveClient(ctx, repos, scope, document, p.Name)
		if err != nil {
			return outcomeFailed, err
		}

		row := store.ProposalRow{
			TenantID:           e.config.TenantID,
			ClientID:           clientID,
			BrokerID:           scope.BrokerID,
			InsuranceCompanyID: e.config.InsuranceCompanyID,
			Number:             number,
			Product:            p.Product,
			BusinessLine:       p.BusinessLine,
			CreatedAt:          records.DatePtr(p.CreatedAt),
			Phase:              p.ProposalPhase,
			PaymentMethod:      p.PaymentMethod,
			Amount:             p.Amount,
			DueDate:            due,
			Competency:         p.Competency,
			PaymentStatus:      p.PaymentStatus,
			PendingReason:      p.PendingReason,
			StatusDate:         records.DatePtr(p.StatusDate),
		}

		return upsert(ctx,
			func(ctx context.Context) (*store.ProposalRow, error) {
				return repos.FindProposal(ctx, e.config.TenantID, number)
			},
			row.Differs,
			func(ctx context.Context) error { return repos.InsertProposal(ctx, row) },
			func(ctx context.Context, stored store.ProposalRow) error {
				row.ID = stored.ID
				return repos.UpdateProposal(ctx, row)
			},
		)
	})
}
