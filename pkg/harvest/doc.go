// Package harvest runs the three portal extraction workflows.
//
// A Harvester is bound to one broker session: one bearer token, one run id.
// Each workflow pages through a listing, fans out per-item detail calls where
// the workflow needs them, and normalizes the results into named record
// batches:
//
//   - Customers: "Clientes", "Produtos Previdencia" and "Produtos Vida"
//   - PendingPayments: "Pagamentos Pendentes"
//   - ProposalStatus: "Status Propostas"
//
// Failed calls yield no data for the item they were for; the workflow carries
// on with the rest. A listing cut short by a failed page still produces
// batches from the pages that arrived, and the workflow reports the
// truncation through an error wrapping pagination.ErrPageFailed.
//
// Example usage:
//
//	h := harvest.New(portalClient, harvest.Options{Broker: "Acme Corretora"})
//	batches, err := h.HarvestAll(ctx, harvest.Templates{Customers: tpl})
//	path, err := harvest.WriteFile(outDir, "Acme Corretora", time.Now(), batches)
package harvest
