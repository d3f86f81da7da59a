package harvest

import (
	"context"
	"time"

	"github.com/Sternrassler/portal-sync/pkg/pagination"
	"github.com/Sternrassler/portal-sync/pkg/portal"
	"github.com/Sternrassler/portal-sync/pkg/records"
)

type proposalFetch struct {
	item        portal.ProposalItem
	installment portal.Installment
	ok          bool
}

// ProposalStatus pages through the proposal report, fetches the first
// installment of every listed proposal, and returns the "Status Propostas"
// batch. Only proposals whose installment call returned a result produce a
// record.
func (h *Harvester) ProposalStatus(ctx context.Context, template []byte) ([]records.Batch, error) {
	const workflow = "proposals"
	start := time.Now()

	raw, listErr := h.listing(ctx, portal.ProposalsListing, template)
	if raw == nil && listErr != nil {
		return nil, listErr
	}
	items := decodeItems[portal.ProposalItem](h.logger, workflow, raw)
	h.logger.Info().Int("proposals", len(items)).Msg("Proposal listing fetched; loading first installments")

	fetched := pagination.FanOut(ctx, items, func(ctx context.Context, item portal.ProposalItem) proposalFetch {
		if item.ProposerDocument.Blank() || item.Proposal.Blank() {
			return proposalFetch{item: item}
		}
		body := h.get(ctx, portal.EndpointFirstInstallment,
			portal.FirstInstallmentPath(item.ProposerDocument.String, item.Proposal.String))
		if body == nil {
			return proposalFetch{item: item}
		}
		inst, ok, err := portal.DecodeInstallment(body)
		if err != nil {
			h.logger.Warn().Err(err).Str("proposta", item.Proposal.String).Msg("Undecodable first installment")
		}
		return proposalFetch{item: item, installment: inst, ok: ok}
	})

	statuses := make([]records.ProposalStatus, 0, len(fetched))
	for _, f := range fetched {
		if !f.ok {
			harvestDroppedTotal.WithLabelValues(workflow, "no_installment").Inc()
			continue
		}
		statuses = append(statuses, portal.NormalizeProposal(f.item, f.installment))
	}

	h.logger.Info().
		Int("listed", len(items)).
		Int("proposals", len(statuses)).
		Dur("duration", time.Since(start)).
		Msg("Proposal workflow finished")

	b, err := newBatch(records.BatchProposalStatuses, statuses)
	if err != nil {
		return nil, err
	}
	return []records.Batch{b}, listErr
}
