package records

import (
	"encoding/json"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Batch names written by a harvest.
const (
	BatchCustomers        = "Clientes"
	BatchPensionProducts  = "Produtos Previdencia"
	BatchLifeProducts     = "Produtos Vida"
	BatchPendingPayments  = "Pagamentos Pendentes"
	BatchProposalStatuses = "Status Propostas"
)

// Batch is a named list of records of one kind. Data holds the records as
// raw JSON so a file can be classified before any record is decoded.
type Batch struct {
	Name string            `json:"name"`
	Data []json.RawMessage `json:"data"`
}

// Kind identifies which record type a batch carries.
type Kind string

const (
	KindUnknown         Kind = ""
	KindCustomers       Kind = "customers"
	KindProposals       Kind = "proposals"
	KindPendingPayments Kind = "pending_payments"
	KindLifeProducts    Kind = "life_products"
	KindPensionProducts Kind = "pension_products"
)

// Classify maps a batch name to its Kind. Matching is case and accent
// insensitive and checked in this order: "clientes"; "propostas" or
// "status"; "pendentes" or "inadimplentes"; "produtos" with "vida";
// "produtos" with "previdencia". Anything else is KindUnknown.
func Classify(name string) Kind {
	n := fold(name)
	switch {
	case strings.Contains(n, "clientes"):
		return KindCustomers
	case strings.Contains(n, "propostas"), strings.Contains(n, "status"):
		return KindProposals
	case strings.Contains(n, "pendentes"), strings.Contains(n, "inadimplentes"):
		return KindPendingPayments
	case strings.Contains(n, "produtos") && strings.Contains(n, "vida"):
		return KindLifeProducts
	case strings.Contains(n, "produtos") && strings.Contains(n, "previdencia"):
		return KindPensionProducts
	default:
		return KindUnknown
	}
}

// fold lower-cases s and strips combining marks ("Previdência" -> "previdencia").
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}

// NewBatch encodes records into a named batch.
func NewBatch[T any](name string, items []T) (Batch, error) {
	b := Batch{Name: name, Data: make([]json.RawMessage, 0, len(items))}
	for _, item := range items {
		raw, err := json.Marshal(item)
		if err != nil {
			return Batch{}, err
		}
		b.Data = append(b.Data, raw)
	}
	return b, nil
}

// Decode unmarshals every record of b into T. Records that fail to decode are
// reported through onError and left out of the result.
func Decode[T any](b Batch, onError func(index int, err error)) []T {
	out := make([]T, 0, len(b.Data))
	for i, raw := range b.Data {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			if onError != nil {
				onError(i, err)
			}
			continue
		}
		out = append(out, item)
	}
	return out
}
