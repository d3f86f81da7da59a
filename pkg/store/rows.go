package store

import (
	"time"

	"github.com/Sternrassler/portal-sync/pkg/records"
	"github.com/shopspring/decimal"
)

// ClientRow is a row of the clients table.
type ClientRow struct {
	ID            int64
	TenantID      int64
	BrokerID      int64
	Name          records.Text
	DocumentKind  string
	Document      string
	BirthDate     *time.Time
	Phone         records.Text
	Email         records.Text
	Street        records.Text
	City          records.Text
	PostalCode    records.Text
	HolderCPF     records.Text
	Sex           records.Text
	MaritalStatus records.Text
	IDNumber      records.Text
	IDIssuer      records.Text
	Income        records.Text
	Occupation    records.Text
	StreetNumber  records.Text
	AddressLine2  records.Text
	District      records.Text
	State         records.Text
}

// ProposalRow is a row of the proposals table, keyed by (tenant, number).
type ProposalRow struct {
	ID                 int64
	TenantID           int64
	ClientID           int64
	BrokerID           int64
	InsuranceCompanyID int64
	Number             string
	Product            records.Text
	BusinessLine       records.Text
	CreatedAt          *time.Time
	Phase              records.Text
	PaymentMethod      records.Text
	Amount             decimal.NullDecimal
	DueDate            *time.Time
	Competency         records.Text
	PaymentStatus      records.Text
	PendingReason      records.Text
	StatusDate         *time.Time
}

// Differs reports whether any field the sync tracks for changes differs
// between p and stored.
func (p ProposalRow) Differs(stored ProposalRow) bool {
	return p.Phase != stored.Phase ||
		p.PaymentMethod != stored.PaymentMethod ||
		!SameAmount(p.Amount, stored.Amount) ||
		!records.SameDate(p.DueDate, stored.DueDate) ||
		p.Competency != stored.Competency ||
		p.PaymentStatus != stored.PaymentStatus ||
		p.PendingReason != stored.PendingReason
}

// DefaulterKey is the natural key of a delinquency row.
type DefaulterKey struct {
	TenantID          int64
	ClientID          int64
	ProposalNumber    string
	CertificateNumber string
	Competency        string
}

// DefaulterRow is a row of the defaulters_detailed table.
type DefaulterRow struct {
	ID int64
	DefaulterKey
	BrokerName      records.Text
	ClientName      records.Text
	ClientCPF       string
	BusinessLine    records.Text
	ProductName     records.Text
	OriginalDueDate *time.Time
	CurrentDueDate  *time.Time
	Contribution    decimal.NullDecimal
	PaymentStatus   records.Text
	PaymentMethod   records.Text
	DelayDays       int
}

// Differs reports whether any tracked field differs between d and stored.
func (d DefaulterRow) Differs(stored DefaulterRow) bool {
	return !records.SameDate(d.OriginalDueDate, stored.OriginalDueDate) ||
		!records.SameDate(d.CurrentDueDate, stored.CurrentDueDate) ||
		!SameAmount(d.Contribution, stored.Contribution) ||
		d.PaymentStatus != stored.PaymentStatus ||
		d.PaymentMethod != stored.PaymentMethod ||
		d.DelayDays != stored.DelayDays
}

// ProductKey is the natural key of a product row.
type ProductKey struct {
	TenantID          int64
	ClientID          int64
	ProposalNumber    string
	CertificateNumber string
	CoverageName      string
}

// ProductRow is a row of the products_clients table.
type ProductRow struct {
	ID int64
	ProductKey
	BrokerName            records.Text
	BusinessLine          records.Text
	ProductType           records.Text
	Status                records.Text
	InsuredCapital        decimal.NullDecimal
	CoveragePaymentPeriod records.Text
	DueDay                records.Text
	LastPayment           *time.Time
	NextPayment           *time.Time
	PaidInstallments      records.Text
	PendingInstallments   records.Text
	PaymentFrequency      records.Text
}

// Differs reports whether any tracked field differs between p and stored.
func (p ProductRow) Differs(stored ProductRow) bool {
	return p.PensionDiffers(stored) ||
		!records.SameDate(p.NextPayment, stored.NextPayment)
}

// PensionDiffers is Differs without the next payment date, which is not
// tracked for pension certificates.
func (p ProductRow) PensionDiffers(stored ProductRow) bool {
	return p.Status != stored.Status ||
		!SameAmount(p.InsuredCapital, stored.InsuredCapital) ||
		!records.SameDate(p.LastPayment, stored.LastPayment) ||
		p.PaidInstallments != stored.PaidInstallments ||
		p.PendingInstallments != stored.PendingInstallments
}

// SameAmount compares two optional amounts by value, so 10 and 10.00 match.
func SameAmount(a, b decimal.NullDecimal) bool {
	if !a.Valid || !b.Valid {
		return a.Valid == b.Valid
	}
	return a.Decimal.Equal(b.Decimal)
}
