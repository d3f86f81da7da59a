package portal

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Sternrassler/portal-sync/pkg/records"
)

// LineOfBusiness maps a business line code to its display name. Unknown codes
// pass through unchanged.
func LineOfBusiness(code string) string {
	switch code {
	case LineCodePension:
		return records.LinePension
	case LineCodeLife:
		return records.LineLife
	default:
		return code
	}
}

// ProductStatus reads the status field that applies to the product's
// business line and maps "A" and "C" to their display names.
func ProductStatus(p Product) records.Text {
	var status records.Text
	switch p.BusinessLine.String {
	case LineCodePension:
		status = p.CertificateStatus
	case LineCodeLife:
		status = p.PolicyStatus
	default:
		return records.TextOf("")
	}
	switch status.String {
	case "A":
		return records.TextOf(records.StatusActive)
	case "C":
		return records.TextOf(records.StatusCancelled)
	}
	return status
}

// NormalizeCustomer builds a customer record from its listing item and its
// details.
func NormalizeCustomer(item CustomerItem, d CustomerDetails) records.Customer {
	identity := records.FirstOrDefault(d.Identities)
	email := records.FirstOrDefault(d.Emails)
	addr := records.FirstOrDefault(d.Addresses)

	return records.Customer{
		InternalID:    d.GroupCode,
		Name:          d.Name,
		Document:      documentLabel(item),
		HolderCPF:     d.HolderCPF,
		Sex:           d.Sex,
		BirthDate:     d.BirthDate,
		MaritalStatus: d.MaritalStatus,
		IDKind:        identity.Kind,
		IDNumber:      identity.Number,
		IDIssuer:      identity.Issuer,
		IncomeBracket: d.Income,
		Occupation:    d.Occupation,
		Phones:        joinPhones(d.Phones),
		Email:         email.Address,
		Street:        addr.Street,
		StreetNumber:  addr.Number,
		AddressLine2:  addr.Line2,
		District:      addr.District,
		City:          addr.City,
		State:         addr.State,
		PostalCode:    addr.PostalCode,
	}
}

// documentLabel renders the listing document as "<kind>: <formatted number>".
func documentLabel(item CustomerItem) records.Text {
	if item.Document.Kind.Blank() && item.Document.Formatted.Blank() {
		return records.Text{}
	}
	return records.TextOf(fmt.Sprintf("%s: %s", item.Document.Kind.String, item.Document.Formatted.String))
}

func joinPhones(phones []Phone) records.Text {
	if len(phones) == 0 {
		return records.TextOf("")
	}
	numbers := make([]string, len(phones))
	for i, p := range phones {
		numbers[i] = p.Number.String
	}
	return records.TextOf(strings.Join(numbers, ";"))
}

func productCommon(p Product, customerID string) records.ProductCommon {
	return records.ProductCommon{
		CustomerID:          records.TextOf(customerID),
		BusinessLine:        LineOfBusiness(p.BusinessLine.String),
		ProductType:         p.Name,
		ProposalNumber:      p.Proposal,
		CertificateNumber:   p.Certificate,
		Status:              ProductStatus(p),
		SusepProcess:        p.SusepProcess,
		DueDay:              p.DueDay,
		LastPayment:         records.NormalizeDate(p.LastPaymentDate),
		NextPayment:         records.NormalizeDate(p.NextPaymentDate),
		PaidInstallments:    p.PaidInstallments,
		PendingInstallments: p.PendingInstallments,
		PaymentFrequency:    p.PaymentFrequency,
	}
}

// NormalizePension builds a pension product record. Fund fields are filled
// only when the product carries an accumulation block.
func NormalizePension(p Product, customerID string) records.PensionProduct {
	common := productCommon(p, customerID)
	common.Contribution = p.PaymentAmount.NullDecimal
	common.PaymentMethod = p.PaymentMethod

	out := records.PensionProduct{ProductCommon: common}
	if p.Pension != nil && p.Pension.Accumulation != nil {
		acc := p.Pension.Accumulation
		out.FundName = acc.Fund
		out.FundCNPJ = acc.FundCNPJ
		out.TaxRegime = acc.TaxRegime
		out.PlanIndexer = acc.Indexer
	}
	return out
}

// NormalizeLife builds one life product record per coverage. A policy
// without coverages yields nothing.
func NormalizeLife(p Product, customerID string) []records.LifeProduct {
	if p.Life == nil || len(p.Life.Benefits) == 0 {
		return nil
	}
	common := productCommon(p, customerID)
	out := make([]records.LifeProduct, 0, len(p.Life.Benefits))
	for _, b := range p.Life.Benefits {
		out = append(out, records.LifeProduct{
			ProductCommon:  common,
			CoverageName:   b.Name,
			InsuredCapital: b.Capital.NullDecimal,
			CoveragePeriod: b.PaymentPeriod,
		})
	}
	return out
}

// NormalizePending builds a pending payment record.
func NormalizePending(item PendingItem) records.PendingPayment {
	return records.PendingPayment{
		BusinessLine:      item.BusinessLine,
		Product:           item.ProductName,
		ProposalNumber:    item.Proposal,
		CertificateNumber: item.Certificate,
		CustomerName:      item.CustomerName,
		CustomerDocument:  item.CustomerTaxID,
		PaymentStatus:     item.PaymentStatus,
		OriginalDueDate:   item.OriginalDueDate,
		CurrentDueDate:    item.CurrentDueDate,
		Competency:        item.Competency,
		PaymentMethod:     item.BillingMethod,
		Contribution:      item.Installment.NullDecimal,
		DaysLate:          item.DaysLate,
		Email:             item.Email,
		Phone1:            item.Phone1,
		Phone2:            item.Phone2,
	}
}

// NormalizeProposal merges a proposal listing item with its first
// installment.
func NormalizeProposal(item ProposalItem, inst Installment) records.ProposalStatus {
	return records.ProposalStatus{
		Name:           item.ProposerName,
		Document:       item.ProposerDocument,
		Product:        item.ProductName,
		BusinessLine:   item.BusinessLine,
		ProposalNumber: item.Proposal,
		CreatedAt:      item.ProtocolDate,
		ProposalPhase:  item.Phase,
		StatusDate:     item.StatusDate,
		PaymentMethod:  item.PaymentMethod,
		Amount:         inst.Amount.NullDecimal,
		DueDate:        inst.DebitDate,
		Competency:     inst.Competency,
		PaymentStatus:  item.PaymentStatus,
		PendingReason:  item.PendingReason,
	}
}

// DecodeInstallment reads the first-installment response. ok is false when
// the portal returned no result.
func DecodeInstallment(raw json.RawMessage) (inst Installment, ok bool, err error) {
	var resp FirstInstallmentResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Installment{}, false, fmt.Errorf("decode first installment: %w", err)
	}
	if !resp.HasResult() {
		return Installment{}, false, nil
	}
	if err := json.Unmarshal(resp.Result, &inst); err != nil {
		return Installment{}, false, fmt.Errorf("decode first installment result: %w", err)
	}
	return inst, true, nil
}
