package store

import (
	"testing"
	"time"

	"github.com/Sternrassler/portal-sync/pkg/records"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func amount(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestSameAmount(t *testing.T) {
	assert.True(t, SameAmount(amount("10"), amount("10.00")))
	assert.True(t, SameAmount(decimal.NullDecimal{}, decimal.NullDecimal{}))
	assert.False(t, SameAmount(amount("10"), decimal.NullDecimal{}))
	assert.False(t, SameAmount(amount("10"), amount("10.01")))
}

func TestProposalRow_Differs(t *testing.T) {
	base := ProposalRow{
		Number:        "P1",
		Phase:         records.TextOf("Emitida"),
		Amount:        amount("99.90"),
		DueDate:       date(2024, 5, 10),
		PaymentStatus: records.TextOf("Pago"),
	}
	same := base
	same.Amount = amount("99.9")
	same.DueDate = date(2024, 5, 10)
	// Fields outside the tracked set never trigger an update.
	same.Product = records.TextOf("Outro")
	same.StatusDate = date(2020, 1, 1)
	assert.False(t, same.Differs(base))

	changed := base
	changed.Amount = amount("100")
	assert.True(t, changed.Differs(base))

	changed = base
	changed.PendingReason = records.TextOf("Documento")
	assert.True(t, changed.Differs(base))

	changed = base
	changed.DueDate = nil
	assert.True(t, changed.Differs(base))
}

func TestDefaulterRow_Differs(t *testing.T) {
	base := DefaulterRow{
		CurrentDueDate: date(2024, 1, 15),
		Contribution:   amount("50"),
		DelayDays:      10,
	}
	same := base
	same.ClientName = records.TextOf("Outro nome")
	assert.False(t, same.Differs(base))

	changed := base
	changed.DelayDays = 11
	assert.True(t, changed.Differs(base))
}

func TestProductRow_Differs(t *testing.T) {
	base := ProductRow{
		Status:         records.TextOf(records.StatusActive),
		InsuredCapital: amount("1000"),
		LastPayment:    date(2024, 3, 10),
	}
	same := base
	same.DueDay = records.TextOf("10")
	assert.False(t, same.Differs(base))

	changed := base
	changed.NextPayment = date(2024, 4, 10)
	assert.True(t, changed.Differs(base))
	assert.False(t, changed.PensionDiffers(base))

	changed = base
	changed.PaidInstallments = records.TextOf("3")
	assert.True(t, changed.Differs(base))
	assert.True(t, changed.PensionDiffers(base))
}
