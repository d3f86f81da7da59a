package portal

import (
	"fmt"
	"net/http"
	"net/url"

	"github.com/Sternrassler/portal-sync/pkg/pagination"
)

// DefaultBaseURL is the portal gateway root.
const DefaultBaseURL = "https://portalcorretor.icatuseguros.com.br/casadocorretorgateway/api"

// Endpoint labels used in logs and metrics.
const (
	EndpointCustomers        = "customers"
	EndpointCustomerDetails  = "customer_details"
	EndpointCustomerProducts = "customer_products"
	EndpointPendingPayments  = "pending_payments"
	EndpointProposals        = "proposals"
	EndpointFirstInstallment = "first_installment"
)

// PendingPageSize is the page size requested from the pending-payments report.
const PendingPageSize = 100

// PendingMaxPages caps the pending-payments listing.
const PendingMaxPages = 1000

// CustomersListing pages through the broker's customer base.
var CustomersListing = pagination.Endpoint{
	Name:      EndpointCustomers,
	Method:    http.MethodPost,
	Path:      "/RelacionamentoCliente/Tombamento/clientes",
	PageKey:   "Pagina",
	FirstPage: 1,
	ListField: "clientes",
}

// PendingPaymentsListing pages through the pending-installments report.
var PendingPaymentsListing = pagination.Endpoint{
	Name:      EndpointPendingPayments,
	Method:    http.MethodPost,
	Path:      "/Relatorio/pendentes/tabela/v2",
	PageKey:   "paginaAtual",
	FirstPage: 0,
	SizeKey:   "tamanhoPagina",
	PageSize:  PendingPageSize,
	ListField: "pendentes",
	MaxPages:  PendingMaxPages,
}

// ProposalsListing pages through the proposal status report.
var ProposalsListing = pagination.Endpoint{
	Name:      EndpointProposals,
	Method:    http.MethodPost,
	Path:      "/relatorio/consulta/status/v2",
	PageKey:   "Pagina",
	FirstPage: 1,
	ListField: "listaPropostas",
}

// CustomerDetailsPath returns the details path for a customer group code.
func CustomerDetailsPath(groupCode string) string {
	return fmt.Sprintf("/RelacionamentoCliente/Tombamento/clientes/%s", url.PathEscape(groupCode))
}

// CustomerProductsPath returns the products path for a customer.
func CustomerProductsPath(groupCode, taxID string) string {
	return fmt.Sprintf("/RelacionamentoCliente/Tombamento/clientes/%s/produtos?documento=%s",
		url.PathEscape(groupCode), url.QueryEscape(taxID))
}

// FirstInstallmentPath returns the first-installment path for a proposal.
func FirstInstallmentPath(proposerDocument, proposalNumber string) string {
	return fmt.Sprintf("/Clientes/%s/primeira-parcela/%s/0",
		url.PathEscape(proposerDocument), url.PathEscape(proposalNumber))
}
