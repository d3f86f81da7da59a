package syncer

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/Sternrassler/portal-sync/internal/testutil"
	"github.com/Sternrassler/portal-sync/pkg/records"
	"github.com/Sternrassler/portal-sync/pkg/store"
	"github.com/Sternrassler/portal-sync/pkg/xref"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestEngine(st store.Store) *Engine {
	cfg := DefaultConfig()
	cfg.Now = func() time.Time { return testNow }
	return NewEngine(st, cfg)
}

func text(s string) records.Text {
	return records.TextOf(s)
}

func testScope(st *testutil.MemStore, customers ...records.Customer) Scope {
	return Scope{
		BrokerID:   st.AddBroker("Acme Corretora"),
		BrokerName: "Acme Corretora",
		Index:      xref.Build(customers),
	}
}

func proposal(number, document string) records.ProposalStatus {
	return records.ProposalStatus{
		Name:           text("Maria Silva"),
		Document:       text(document),
		ProposalNumber: text(number),
		ProposalPhase:  text("Em análise"),
		Amount:         decimal.NewNullDecimal(decimal.RequireFromString("150.25")),
		DueDate:        text("2024-06-10"),
		Competency:     text("06/2024"),
		PaymentStatus:  text("Pendente"),
	}
}

func TestResolveBroker(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewMemStore()
	id := st.AddBroker("ACME CORRETORA DE SEGUROS LTDA")
	e := newTestEngine(st)

	got, err := e.ResolveBroker(ctx, "Acme Corretora")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = e.ResolveBroker(ctx, "Outra")
	assert.ErrorIs(t, err, store.ErrBrokerNotFound)

	_, err = e.ResolveBroker(ctx, "")
	assert.ErrorIs(t, err, store.ErrBrokerNotFound)
}

func TestCustomers(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewMemStore()
	e := newTestEngine(st)
	scope := testScope(st)
	st.AddClient(store.ClientRow{TenantID: DefaultTenantID, Document: "98765432100"})

	customers := []records.Customer{
		{InternalID: text("c1"), Name: text("Maria Silva"), Document: text("123.456.789-09"), BirthDate: text("03/02/1980"), City: text("Recife")},
		{InternalID: text("c2"), Name: text("Sem Documento"), Document: text("123")},
		{InternalID: text("c3"), Name: text("João"), Document: text("987.654.321-00")},
	}

	counts, err := e.Customers(ctx, scope, customers)
	require.NoError(t, err)
	assert.Equal(t, Counts{Inserted: 1, Skipped: 1, Unchanged: 1}, counts)

	clients := st.Clients()
	require.Len(t, clients, 2)
	created := clients[1]
	assert.Equal(t, "12345678909", created.Document)
	assert.Equal(t, "CPF", created.DocumentKind)
	assert.Equal(t, scope.BrokerID, created.BrokerID)
	assert.Equal(t, text("Recife"), created.City)
	require.NotNil(t, created.BirthDate)
	assert.Equal(t, time.Date(1980, 2, 3, 0, 0, 0, 0, time.UTC), *created.BirthDate)

	counts, err = e.Customers(ctx, scope, customers)
	require.NoError(t, err)
	assert.Equal(t, Counts{Skipped: 1, Unchanged: 2}, counts)
	assert.Len(t, st.Clients(), 2)
}

func TestProposals_CreatesMissingCustomer(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewMemStore()
	e := newTestEngine(st)
	scope := testScope(st)

	named := proposal("P1", "111.222.333-44")
	unnamed := proposal("P2", "555.666.777-88")
	unnamed.Name = records.Text{}

	counts, err := e.Proposals(ctx, scope, []records.ProposalStatus{named, unnamed})
	require.NoError(t, err)
	assert.Equal(t, Counts{Inserted: 2}, counts)

	clients := st.Clients()
	require.Len(t, clients, 2)
	assert.Equal(t, text("Maria Silva"), clients[0].Name)
	assert.Equal(t, "11122233344", clients[0].Document)
	assert.Equal(t, text(UnknownCustomerName), clients[1].Name)
	assert.Equal(t, "CPF", clients[1].DocumentKind)

	proposals := st.Proposals()
	require.Len(t, proposals, 2)
	assert.Equal(t, clients[0].ID, proposals[0].ClientID)
	assert.Equal(t, int64(DefaultInsuranceCompanyID), proposals[0].InsuranceCompanyID)
	assert.Equal(t, scope.BrokerID, proposals[0].BrokerID)
}

func TestProposals_ChangeDetection(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewMemStore()
	e := newTestEngine(st)
	scope := testScope(st)

	p := proposal("P1", "11122233344")
	_, err := e.Proposals(ctx, scope, []records.ProposalStatus{p})
	require.NoError(t, err)

	counts, err := e.Proposals(ctx, scope, []records.ProposalStatus{p})
	require.NoError(t, err)
	assert.Equal(t, Counts{Unchanged: 1}, counts)

	// Same value written with a different scale is not a change.
	p.Amount = decimal.NewNullDecimal(decimal.RequireFromString("150.250"))
	counts, err = e.Proposals(ctx, scope, []records.ProposalStatus{p})
	require.NoError(t, err)
	assert.Equal(t, Counts{Unchanged: 1}, counts)

	p.ProposalPhase = text("Emitida")
	counts, err = e.Proposals(ctx, scope, []records.ProposalStatus{p})
	require.NoError(t, err)
	assert.Equal(t, Counts{Updated: 1}, counts)

	proposals := st.Proposals()
	require.Len(t, proposals, 1)
	assert.Equal(t, text("Emitida"), proposals[0].Phase)
	assert.Len(t, st.Clients(), 1)
}

func TestProposals_SkipRules(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewMemStore()
	e := newTestEngine(st)
	scope := testScope(st)

	noNumber := proposal("  ", "11122233344")
	noDocument := proposal("P2", "")
	badDate := proposal("P3", "11122233344")
	badDate.DueDate = text("amanhã")

	counts, err := e.Proposals(ctx, scope, []records.ProposalStatus{noNumber, noDocument, badDate})
	require.NoError(t, err)
	assert.Equal(t, Counts{Skipped: 3}, counts)
	assert.Empty(t, st.Proposals())
	assert.Empty(t, st.Clients())
}

func TestProposals_ResolvesDocumentThroughIndex(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewMemStore()
	e := newTestEngine(st)
	scope := testScope(st, records.Customer{InternalID: text("c9"), Document: text("999.888.777-66")})

	p := proposal("P1", "")
	p.CustomerID = text("c9")
	counts, err := e.Proposals(ctx, scope, []records.ProposalStatus{p})
	require.NoError(t, err)
	assert.Equal(t, Counts{Inserted: 1}, counts)

	clients := st.Clients()
	require.Len(t, clients, 1)
	assert.Equal(t, "99988877766", clients[0].Document)
}

func TestFaultIsolation(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewMemStore()
	e := newTestEngine(st)
	scope := testScope(st)
	st.FailOn = func(op testutil.Op, key string) error {
		if op == testutil.OpInsertProposal && key == "P3" {
			return errors.New("check constraint violated")
		}
		return nil
	}

	var batch []records.ProposalStatus
	for i := 1; i <= 5; i++ {
		batch = append(batch, proposal(fmt.Sprintf("P%d", i), fmt.Sprintf("1112223334%d", i)))
	}

	counts, err := e.Proposals(ctx, scope, batch)
	require.NoError(t, err)
	assert.Equal(t, Counts{Inserted: 4, Failed: 1}, counts)
	assert.Equal(t, 1, st.Commits)

	var numbers []string
	for _, p := range st.Proposals() {
		numbers = append(numbers, p.Number)
	}
	assert.Equal(t, []string{"P1", "P2", "P4", "P5"}, numbers)

	// The failed record's customer stub was rolled back with it.
	for _, c := range st.Clients() {
		assert.NotEqual(t, "11122233343", c.Document)
	}
	assert.Len(t, st.Clients(), 4)
}

func TestConnectionLostAbortsBatch(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewMemStore()
	e := newTestEngine(st)
	scope := testScope(st)
	st.FailOn = func(op testutil.Op, key string) error {
		if op == testutil.OpInsertProposal && key == "P2" {
			return fmt.Errorf("%w: broken pipe", store.ErrConnectionLost)
		}
		return nil
	}

	batch := []records.ProposalStatus{
		proposal("P1", "11122233341"),
		proposal("P2", "11122233342"),
		proposal("P3", "11122233343"),
	}
	counts, err := e.Proposals(ctx, scope, batch)
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrConnectionLost)
	assert.Equal(t, Counts{Inserted: 1}, counts)
	assert.Zero(t, st.Commits)
	assert.Empty(t, st.Proposals())
	assert.Empty(t, st.Clients())
}

func TestBeginFailureAbortsBatch(t *testing.T) {
	st := testutil.NewMemStore()
	e := newTestEngine(st)
	scope := testScope(st)
	st.BeginErr = errors.New("connection refused")

	_, err := e.Proposals(context.Background(), scope, []records.ProposalStatus{proposal("P1", "11122233344")})
	assert.ErrorIs(t, err, store.ErrConnectionLost)
}

func TestEmptyBatchDoesNotOpenTransaction(t *testing.T) {
	st := testutil.NewMemStore()
	st.BeginErr = errors.New("connection refused")
	e := newTestEngine(st)

	counts, err := e.Customers(context.Background(), Scope{}, nil)
	require.NoError(t, err)
	assert.Zero(t, counts.Total())
}

func TestPendingPayments(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewMemStore()
	e := newTestEngine(st)
	scope := testScope(st, records.Customer{InternalID: text("c1"), Document: text("111.222.333-44")})

	overdue := records.PendingPayment{
		CustomerID:        text("c1"),
		CustomerName:      text("Maria Silva"),
		ProposalNumber:    text("P1"),
		CertificateNumber: text("C1"),
		Competency:        text("04/2024"),
		OriginalDueDate:   text("2024-04-25"),
		CurrentDueDate:    text("01/05/2024"),
		Contribution:      decimal.NewNullDecimal(decimal.RequireFromString("80")),
		PaymentStatus:     text("Em aberto"),
	}
	future := overdue
	future.Competency = text("06/2024")
	future.CurrentDueDate = text("2024-06-01")
	unresolved := overdue
	unresolved.CustomerID = text("unknown")

	counts, err := e.PendingPayments(ctx, scope, []records.PendingPayment{overdue, future, unresolved})
	require.NoError(t, err)
	assert.Equal(t, Counts{Inserted: 1, NotDelinquent: 1, Skipped: 1}, counts)

	rows := st.Defaulters()
	require.Len(t, rows, 1)
	assert.Equal(t, 9, rows[0].DelayDays)
	assert.Equal(t, "11122233344", rows[0].ClientCPF)
	assert.Equal(t, text("Acme Corretora"), rows[0].BrokerName)
	assert.Equal(t, "04/2024", rows[0].Competency)

	counts, err = e.PendingPayments(ctx, scope, []records.PendingPayment{overdue})
	require.NoError(t, err)
	assert.Equal(t, Counts{Unchanged: 1}, counts)

	e.config.Now = func() time.Time { return testNow.AddDate(0, 0, 2) }
	counts, err = e.PendingPayments(ctx, scope, []records.PendingPayment{overdue})
	require.NoError(t, err)
	assert.Equal(t, Counts{Updated: 1}, counts)
	assert.Equal(t, 11, st.Defaulters()[0].DelayDays)
}

func TestDelayDays(t *testing.T) {
	tests := []struct {
		name     string
		original string
		current  string
		want     int
	}{
		{"current date wins", "2024-04-01", "2024-05-01", 9},
		{"original when current blank", "2024-05-05", "", 5},
		{"due today", "", "10/05/2024", 0},
		{"future", "", "2024-05-11", 0},
		{"unparseable", "", "soon", 0},
		{"both absent", "", "", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := records.PendingPayment{
				OriginalDueDate: records.NonBlank(tt.original),
				CurrentDueDate:  records.NonBlank(tt.current),
			}
			assert.Equal(t, tt.want, DelayDays(p, testNow))
		})
	}
}

func lifeProduct(customerID, proposal, coverage string) records.LifeProduct {
	return records.LifeProduct{
		ProductCommon: records.ProductCommon{
			CustomerID:        text(customerID),
			BusinessLine:      records.LineLife,
			ProposalNumber:    text(proposal),
			CertificateNumber: text("CERT-" + proposal),
			Status:            text("Ativo"),
			LastPayment:       text("2024-04-10"),
			NextPayment:       text("2024-05-10"),
		},
		CoverageName:   text(coverage),
		InsuredCapital: decimal.NewNullDecimal(decimal.RequireFromString("100000")),
	}
}

func TestLifeProducts(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewMemStore()
	e := newTestEngine(st)
	scope := testScope(st, records.Customer{InternalID: text("c1"), Document: text("11122233344")})

	death := lifeProduct("c1", "P1", "Morte")
	accident := lifeProduct("c1", "P1", "Invalidez")
	cancelled := lifeProduct("c1", "P2", "Morte")
	cancelled.Status = text(" CANCELADO ")
	orphan := lifeProduct("c404", "P3", "Morte")

	counts, err := e.LifeProducts(ctx, scope, []records.LifeProduct{death, accident, cancelled, orphan})
	require.NoError(t, err)
	assert.Equal(t, Counts{Inserted: 2, Cancelled: 1, Skipped: 1}, counts)

	rows := st.Products()
	require.Len(t, rows, 2)
	assert.Equal(t, "Morte", rows[0].CoverageName)
	assert.Equal(t, "CERT-P1", rows[0].CertificateNumber)
	assert.Equal(t, text(records.LineLife), rows[0].BusinessLine)
	assert.Len(t, st.Clients(), 1)
	assert.Equal(t, text(UnknownCustomerName), st.Clients()[0].Name)

	death.NextPayment = text("2024-06-10")
	counts, err = e.LifeProducts(ctx, scope, []records.LifeProduct{death, accident})
	require.NoError(t, err)
	assert.Equal(t, Counts{Updated: 1, Unchanged: 1}, counts)
}

func TestProducts_CancelledNeverUpdatesStoredRow(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewMemStore()
	e := newTestEngine(st)
	scope := testScope(st, records.Customer{InternalID: text("c1"), Document: text("11122233344")})

	active := lifeProduct("c1", "P1", "Morte")
	counts, err := e.LifeProducts(ctx, scope, []records.LifeProduct{active})
	require.NoError(t, err)
	require.Equal(t, Counts{Inserted: 1}, counts)
	before := st.Products()

	cancelled := active
	cancelled.Status = text(records.StatusCancelled)
	cancelled.InsuredCapital = decimal.NewNullDecimal(decimal.RequireFromString("1"))
	counts, err = e.LifeProducts(ctx, scope, []records.LifeProduct{cancelled})
	require.NoError(t, err)
	assert.Equal(t, Counts{Cancelled: 1}, counts)
	assert.Equal(t, before, st.Products())
	assert.Equal(t, text(records.StatusActive), st.Products()[0].Status)

	pension := records.PensionProduct{ProductCommon: active.ProductCommon}
	pension.ProposalNumber = text("PV1")
	pension.BusinessLine = records.LinePension
	counts, err = e.PensionProducts(ctx, scope, []records.PensionProduct{pension})
	require.NoError(t, err)
	require.Equal(t, Counts{Inserted: 1}, counts)
	before = st.Products()

	pension.Status = text(records.StatusCancelled)
	counts, err = e.PensionProducts(ctx, scope, []records.PensionProduct{pension})
	require.NoError(t, err)
	assert.Equal(t, Counts{Cancelled: 1}, counts)
	assert.Equal(t, before, st.Products())
}

func TestPensionProducts_Defaults(t *testing.T) {
	ctx := context.Background()
	st := testutil.NewMemStore()
	e := newTestEngine(st)
	scope := testScope(st, records.Customer{InternalID: text("c1"), Document: text("11122233344")})

	bare := records.PensionProduct{
		ProductCommon: records.ProductCommon{
			CustomerID:     text("c1"),
			ProposalNumber: text("P1"),
		},
	}
	withReserve := records.PensionProduct{
		ProductCommon: records.ProductCommon{
			CustomerID:        text("c1"),
			BusinessLine:      "Previdência Privada",
			ProposalNumber:    text("P2"),
			CertificateNumber: text("C2"),
			Status:            text("Suspenso"),
		},
		GrossReserve: decimal.NewNullDecimal(decimal.RequireFromString("5432.10")),
	}

	counts, err := e.PensionProducts(ctx, scope, []records.PensionProduct{bare, withReserve})
	require.NoError(t, err)
	assert.Equal(t, Counts{Inserted: 2}, counts)

	rows := st.Products()
	require.Len(t, rows, 2)

	assert.Equal(t, text(records.StatusActive), rows[0].Status)
	assert.Equal(t, "P1", rows[0].CertificateNumber)
	assert.Equal(t, PensionCoverageName, rows[0].CoverageName)
	assert.Equal(t, text(records.LinePension), rows[0].BusinessLine)
	require.True(t, rows[0].InsuredCapital.Valid)
	assert.True(t, rows[0].InsuredCapital.Decimal.IsZero())

	assert.Equal(t, "C2", rows[1].CertificateNumber)
	assert.Equal(t, text("Suspenso"), rows[1].Status)
	assert.Equal(t, text("Previdência Privada"), rows[1].BusinessLine)
	assert.Equal(t, "5432.1", rows[1].InsuredCapital.Decimal.String())

	counts, err = e.PensionProducts(ctx, scope, []records.PensionProduct{bare, withReserve})
	require.NoError(t, err)
	assert.Equal(t, Counts{Unchanged: 2}, counts)

	// The next payment date alone is not a pension change.
	bare.NextPayment = text("2024-07-10")
	withReserve.PaidInstallments = text("4")
	counts, err = e.PensionProducts(ctx, scope, []records.PensionProduct{bare, withReserve})
	require.NoError(t, err)
	assert.Equal(t, Counts{Updated: 1, Unchanged: 1}, counts)
}

func TestCountsTotal(t *testing.T) {
	c := Counts{Inserted: 1, Updated: 2, Unchanged: 3, Skipped: 4, Cancelled: 5, NotDelinquent: 6, Failed: 7}
	assert.Equal(t, 28, c.Total())
}
