package harvest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Sternrassler/portal-sync/pkg/pagination"
	"github.com/Sternrassler/portal-sync/pkg/portal"
	"github.com/Sternrassler/portal-sync/pkg/records"
)

type customerFetch struct {
	item     portal.CustomerItem
	details  json.RawMessage
	products json.RawMessage
}

// Customers pages through the customer listing, fetches details and products
// for every listed customer, and returns the "Clientes", "Produtos
// Previdencia" and "Produtos Vida" batches.
//
// Customers are deduplicated by internal id, first occurrence wins. A
// customer whose details or products call failed, or whose details carry no
// internal id, is dropped together with its products.
func (h *Harvester) Customers(ctx context.Context, template []byte) ([]records.Batch, error) {
	const workflow = "customers"
	start := time.Now()

	raw, listErr := h.listing(ctx, portal.CustomersListing, template)
	if raw == nil && listErr != nil {
		return nil, listErr
	}
	items := decodeItems[portal.CustomerItem](h.logger, workflow, raw)
	h.logger.Info().Int("customers", len(items)).Msg("Customer listing fetched; loading details")

	fetched := pagination.FanOut(ctx, items, func(ctx context.Context, item portal.CustomerItem) customerFetch {
		code := item.GroupCode.String
		details, products := h.fetchPair(ctx,
			portal.EndpointCustomerDetails, portal.CustomerDetailsPath(code),
			portal.EndpointCustomerProducts, portal.CustomerProductsPath(code, item.TaxID.String),
		)
		return customerFetch{item: item, details: details, products: products}
	})

	var (
		customers []records.Customer
		pensions  []records.PensionProduct
		lives     []records.LifeProduct
		seen      = make(map[string]struct{}, len(fetched))
	)
	for i, f := range fetched {
		if f.details == nil || f.products == nil {
			harvestDroppedTotal.WithLabelValues(workflow, "no_result").Inc()
			continue
		}

		var detailsResp portal.CustomerDetailsResponse
		if err := json.Unmarshal(f.details, &detailsResp); err != nil {
			h.logger.Warn().Err(err).Int("index", i).Msg("Skipping customer with undecodable details")
			harvestDroppedTotal.WithLabelValues(workflow, "decode").Inc()
			continue
		}
		details := records.FirstOrDefault(detailsResp.Details.Customers)
		id := details.GroupCode.String
		if details.GroupCode.Blank() {
			harvestDroppedTotal.WithLabelValues(workflow, "no_internal_id").Inc()
			continue
		}

		var productsResp portal.CustomerProductsResponse
		if err := json.Unmarshal(f.products, &productsResp); err != nil {
			h.logger.Warn().Err(err).Str("id_cliente", id).Msg("Skipping customer with undecodable products")
			harvestDroppedTotal.WithLabelValues(workflow, "decode").Inc()
			continue
		}

		if _, dup := seen[id]; !dup {
			seen[id] = struct{}{}
			customers = append(customers, portal.NormalizeCustomer(f.item, details))
		}

		for _, p := range productsResp.Products.List {
			switch p.BusinessLine.String {
			case portal.LineCodePension:
				pensions = append(pensions, portal.NormalizePension(p, id))
			case portal.LineCodeLife:
				lives = append(lives, portal.NormalizeLife(p, id)...)
			}
		}
	}

	h.logger.Info().
		Int("customers", len(customers)).
		Int("pension_products", len(pensions)).
		Int("life_products", len(lives)).
		Dur("duration", time.Since(start)).
		Msg("Customers workflow finished")

	var batches []records.Batch
	for _, build := range []func() (records.Batch, error){
		func() (records.Batch, error) { return newBatch(records.BatchCustomers, customers) },
		func() (records.Batch, error) { return newBatch(records.BatchPensionProducts, pensions) },
		func() (records.Batch, error) { return newBatch(records.BatchLifeProducts, lives) },
	} {
		b, err := build()
		if err != nil {
			return batches, err
		}
		batches = append(batches, b)
	}
	return batches, listErr
}
