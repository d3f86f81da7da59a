package portal

import (
	"bytes"
	"encoding/json"

	"github.com/Sternrassler/portal-sync/pkg/records"
)

// CustomerItem is one entry of the customers listing.
type CustomerItem struct {
	GroupCode records.Text `json:"codigoBaseAgrupada"`
	TaxID     records.Text `json:"cpfCnpj"`
	Document  struct {
		Kind      records.Text `json:"tipo"`
		Formatted records.Text `json:"numeroFormatado"`
	} `json:"documento"`
}

// CustomerDetailsResponse wraps the customer details call.
type CustomerDetailsResponse struct {
	Details struct {
		Customers []CustomerDetails `json:"clientes"`
	} `json:"detalhesCliente"`
}

// CustomerDetails is the full profile of one customer.
type CustomerDetails struct {
	GroupCode     records.Text `json:"codigoBaseAgrupada"`
	Name          records.Text `json:"nome"`
	HolderCPF     records.Text `json:"titularCPF"`
	Sex           records.Text `json:"sexo"`
	BirthDate     records.Text `json:"dataNascimentoFormatada"`
	MaritalStatus records.Text `json:"estadoCivilFormatado"`
	Identities    []Identity   `json:"identidade"`
	Income        records.Text `json:"rendaResumidaFormatada"`
	Occupation    records.Text `json:"profissao"`
	Phones        []Phone      `json:"telefone"`
	Emails        []Email      `json:"emails"`
	Addresses     []Address    `json:"endereco"`
}

type Identity struct {
	Kind   records.Text `json:"tipoDocumento"`
	Number records.Text `json:"documento"`
	Issuer records.Text `json:"orgaoExpedidor"`
}

type Phone struct {
	Number records.Text `json:"numeroTelefone"`
}

type Email struct {
	Address records.Text `json:"email"`
}

type Address struct {
	Street     records.Text `json:"descricaoEndereco"`
	Number     records.Text `json:"numero"`
	Line2      records.Text `json:"complemento"`
	District   records.Text `json:"bairro"`
	City       records.Text `json:"municipio"`
	State      records.Text `json:"uf"`
	PostalCode records.Text `json:"cepFormatado"`
}

// CustomerProductsResponse wraps the customer products call.
type CustomerProductsResponse struct {
	Products struct {
		List []Product `json:"listarProdutos"`
	} `json:"produtosCliente"`
}

// Business line codes used by the products call.
const (
	LineCodePension = "PREV"
	LineCodeLife    = "VIDA"
)

// Product is one product a customer holds.
type Product struct {
	BusinessLine        records.Text `json:"linhaNegocio"`
	Name                records.Text `json:"nomeProduto"`
	Proposal            records.Text `json:"proposta"`
	Certificate         records.Text `json:"certificado"`
	PaymentAmount       Money        `json:"valorPagamento"`
	CertificateStatus   records.Text `json:"situacaoCertificado"`
	PolicyStatus        records.Text `json:"situacaoTitulo"`
	SusepProcess        records.Text `json:"numeroProcessoSusep"`
	DueDay              records.Text `json:"diaVencimento"`
	LastPaymentDate     records.Text `json:"dataUltimoPagamento"`
	NextPaymentDate     records.Text `json:"dataProximoPagamento"`
	PaidInstallments    records.Text `json:"quantidadeParcelasPagas"`
	PendingInstallments records.Text `json:"quantidadeParcelasPendentes"`
	PaymentFrequency    records.Text `json:"periodicidadePagamento"`
	PaymentMethod       records.Text `json:"formaPagamento"`
	Pension             *struct {
		Accumulation *Accumulation `json:"acumulacao"`
	} `json:"prev"`
	Life *struct {
		Benefits []Benefit `json:"beneficios"`
	} `json:"vida"`
}

// Accumulation is the fund block of a pension certificate.
type Accumulation struct {
	Fund      records.Text `json:"fundo"`
	FundCNPJ  records.Text `json:"cnpjFundo"`
	TaxRegime records.Text `json:"regimeTribCertAcumulacao"`
	Indexer   records.Text `json:"indexadorCertificadoAcumulacao"`
}

// Benefit is one coverage of a life policy.
type Benefit struct {
	Name          records.Text `json:"nomeBeneficio"`
	Capital       Money        `json:"capitalBeneficioSegurado"`
	PaymentPeriod records.Text `json:"prazoPagamento"`
}

// PendingItem is one row of the pending-installments report.
type PendingItem struct {
	BusinessLine    records.Text `json:"linhaNegocio"`
	ProductName     records.Text `json:"nomeProdutoComercial"`
	Proposal        records.Text `json:"numeroProposta"`
	Certificate     records.Text `json:"numeroCertificado"`
	CustomerName    records.Text `json:"nomeCliente"`
	CustomerTaxID   records.Text `json:"cpfCnpjCliente"`
	PaymentStatus   records.Text `json:"statusPagamento"`
	OriginalDueDate records.Text `json:"diaVencimentoOriginal"`
	CurrentDueDate  records.Text `json:"diaVencimentoAtual"`
	Competency      records.Text `json:"competencia"`
	BillingMethod   records.Text `json:"formaCobranca"`
	Installment     Money        `json:"valorParcela"`
	DaysLate        records.Text `json:"diasDeAtraso"`
	Email           records.Text `json:"email"`
	Phone1          records.Text `json:"telefone1"`
	Phone2          records.Text `json:"telefone2"`
}

// ProposalItem is one entry of the proposal status report.
type ProposalItem struct {
	ProposerName     records.Text `json:"nomeProponente"`
	ProposerDocument records.Text `json:"cpfProponente"`
	ProductName      records.Text `json:"nomeProduto"`
	BusinessLine     records.Text `json:"linhaNegocio"`
	Proposal         records.Text `json:"numeroProposta"`
	ProtocolDate     records.Text `json:"dataProtocolo"`
	Phase            records.Text `json:"statusFase"`
	StatusDate       records.Text `json:"dataStatus"`
	PaymentMethod    records.Text `json:"formaPagamento"`
	PaymentStatus    records.Text `json:"statusPagamento"`
	PendingReason    records.Text `json:"motivoPendencia"`
}

// FirstInstallmentResponse wraps the first-installment call. Result is kept
// raw so an empty result can be told apart from a populated one.
type FirstInstallmentResponse struct {
	Result json.RawMessage `json:"resultado"`
}

// HasResult reports whether the portal returned a non-empty result. Null,
// false, zero, empty strings and empty objects or arrays count as no result.
func (r FirstInstallmentResponse) HasResult() bool {
	if len(bytes.TrimSpace(r.Result)) == 0 {
		return false
	}
	var v any
	if err := json.Unmarshal(r.Result, &v); err != nil {
		return false
	}
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case float64:
		return v != 0
	case string:
		return v != ""
	case map[string]any:
		return len(v) > 0
	case []any:
		return len(v) > 0
	}
	return true
}

// Installment is the first installment of a proposal.
type Installment struct {
	Amount     Money        `json:"valor"`
	DebitDate  records.Text `json:"agendamentoDebito"`
	Competency records.Text `json:"competencia"`
}
