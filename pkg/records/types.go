package records

import "github.com/shopspring/decimal"

// Product status values after normalization.
const (
	StatusActive    = "Ativo"
	StatusCancelled = "Cancelado"
)

// Business line display names.
const (
	LinePension = "Previdência"
	LineLife    = "Vida"
)

// Customer is one portal customer, built from the listing item and its
// details call.
type Customer struct {
	InternalID    Text `json:"id_cliente"`
	Name          Text `json:"nome"`
	Document      Text `json:"documento"`
	HolderCPF     Text `json:"titular_cpf"`
	Sex           Text `json:"sexo"`
	BirthDate     Text `json:"data_nascimento"`
	MaritalStatus Text `json:"estado_civil"`
	IDKind        Text `json:"tipo_documento"`
	IDNumber      Text `json:"numero_documento"`
	IDIssuer      Text `json:"orgao_expedidor"`
	IncomeBracket Text `json:"renda_patrimonio"`
	Occupation    Text `json:"profissao"`
	Phones        Text `json:"telefone"`
	Email         Text `json:"email"`
	Street        Text `json:"endereco"`
	StreetNumber  Text `json:"numero"`
	AddressLine2  Text `json:"complemento"`
	District      Text `json:"bairro"`
	City          Text `json:"cidade"`
	State         Text `json:"uf"`
	PostalCode    Text `json:"cep"`
}

// ProductCommon holds the fields pension and life products share.
type ProductCommon struct {
	CustomerID          Text                `json:"id_cliente"`
	BusinessLine        string              `json:"linha_negocio"`
	ProductType         Text                `json:"tipo_produto"`
	ProposalNumber      Text                `json:"numero_proposta"`
	CertificateNumber   Text                `json:"numero_certificado"`
	Contribution        decimal.NullDecimal `json:"valor_contribuicao"`
	Status              Text                `json:"situacao_produto"`
	SusepProcess        Text                `json:"numero_processo_susep"`
	DueDay              Text                `json:"dia_vencimento"`
	LastPayment         Text                `json:"ultimo_pagamento"`
	NextPayment         Text                `json:"proximo_pagamento"`
	PaidInstallments    Text                `json:"quantidade_parcelas_pagas"`
	PendingInstallments Text                `json:"quantidade_parcelas_pendentes"`
	PaymentFrequency    Text                `json:"periodicidade_pagamentos"`
	PaymentMethod       Text                `json:"forma_pagamento"`
}

// PensionProduct is one pension certificate. Fund fields are present only
// when the portal reported an accumulation block.
type PensionProduct struct {
	ProductCommon
	FundName    Text `json:"nome_fundo"`
	FundCNPJ    Text `json:"cnpj_fundo"`
	TaxRegime   Text `json:"regime_tributario"`
	PlanIndexer Text `json:"indexador_plano"`
	// GrossReserve is not reported by the customer products call; batches
	// assembled elsewhere may carry it.
	GrossReserve decimal.NullDecimal `json:"reserva_bruta"`
}

// LifeProduct is one coverage of a life policy.
type LifeProduct struct {
	ProductCommon
	CoverageName   Text                `json:"nome_cobertura"`
	InsuredCapital decimal.NullDecimal `json:"capital_segurado"`
	CoveragePeriod Text                `json:"periodo_pagamento_cobertura"`
}

// PendingPayment is one row of the pending-installments report.
type PendingPayment struct {
	BusinessLine      Text                `json:"linha_negocio"`
	Product           Text                `json:"produto"`
	ProposalNumber    Text                `json:"numero_proposta"`
	CertificateNumber Text                `json:"numero_certificado"`
	CustomerName      Text                `json:"nome_cliente"`
	CustomerDocument  Text                `json:"cpf_cliente"`
	CustomerID        Text                `json:"id_cliente"`
	PaymentStatus     Text                `json:"status_pagamento"`
	OriginalDueDate   Text                `json:"vencimento_original"`
	CurrentDueDate    Text                `json:"vencimento_atual"`
	Competency        Text                `json:"competencia"`
	PaymentMethod     Text                `json:"forma_pagamento"`
	Contribution      decimal.NullDecimal `json:"contribuicao"`
	DaysLate          Text                `json:"dias_em_atraso"`
	Email             Text                `json:"email_cliente"`
	Phone1            Text                `json:"telefone1"`
	Phone2            Text                `json:"telefone2"`
}

// ProposalStatus merges a proposal listing item with its first installment.
type ProposalStatus struct {
	Name           Text                `json:"nome"`
	Document       Text                `json:"cpf"`
	CustomerID     Text                `json:"id_cliente"`
	Product        Text                `json:"produto"`
	BusinessLine   Text                `json:"linha_negocio"`
	ProposalNumber Text                `json:"proposta"`
	CreatedAt      Text                `json:"criada_em"`
	ProposalPhase  Text                `json:"status_proposta"`
	StatusDate     Text                `json:"data"`
	PaymentMethod  Text                `json:"forma_pagamento"`
	Amount         decimal.NullDecimal `json:"valor"`
	DueDate        Text                `json:"vencimento"`
	Competency     Text                `json:"competencia"`
	PaymentStatus  Text                `json:"status_pagamento"`
	PendingReason  Text                `json:"motivo_pendencia"`
}
