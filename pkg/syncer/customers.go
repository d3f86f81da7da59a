package syncer

import (
	"context"

	"github.com/Sternrassler/portal-sync/pkg/records"
	"github.com/Sternrassler/portal-sync/pkg/store"
)

// Customers creates every customer not yet known for the tenant. Existing
// customers are left unchanged.
func (e *Engine) Customers(ctx context.Context, scope Scope, customers []records.Customer) (Counts, error) {
	return e.runBatch(ctx, EntityCustomers, len(customers), func(ctx context.Context, repos store.Repos, i int) (outcome, error) {
		c := customers[i]
		document := records.CleanDocument(c.Document.String)
		if len(document) < records.MinDocumentDigits {
			e.logger.Debug().Str("entity", string(EntityCustomers)).Int("record", i+1).Msg("Document missing or too short; skipped")
			return outcomeSkipped, nil
		}

		_, ok, err := repos.FindClientID(ctx, e.config.TenantID, document)
		if err != nil {
			return outcomeFailed, err
		}
		if ok {
			return outcomeUnchanged, nil
		}

		if _, err := repos.CreateClient(ctx, customerRow(e.config.TenantID, scope.BrokerID, document, c)); err != nil {
			return outcomeFailed, err
		}
		return outcomeInserted, nil
	})
}

func customerRow(tenantID, brokerID int64, document string, c records.Customer) store.ClientRow {
	return store.ClientRow{
		TenantID:      tenantID,
		BrokerID:      brokerID,
		Name:          c.Name,
		DocumentKind:  "CPF",
		Document:      document,
		BirthDate:     records.DatePtr(c.BirthDate),
		Phone:         c.Phones,
		Email:         c.Email,
		Street:        c.Street,
		City:          c.City,
		PostalCode:    c.PostalCode,
		HolderCPF:     c.HolderCPF,
		Sex:           c.Sex,
		MaritalStatus: c.MaritalStatus,
		IDNumber:      c.IDNumber,
		IDIssuer:      c.IDIssuer,
		Income:        c.IncomeBracket,
		Occupation:    c.Occupation,
		StreetNumber:  c.StreetNumber,
		AddressLine2:  c.AddressLine2,
		District:      c.District,
		State:         c.State,
	}
}
