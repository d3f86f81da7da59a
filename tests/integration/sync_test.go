//go:build integration

package integration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Sternrassler/portal-sync/pkg/harvest"
	"github.com/Sternrassler/portal-sync/pkg/records"
	"github.com/Sternrassler/portal-sync/pkg/store"
	"github.com/Sternrassler/portal-sync/pkg/store/postgres"
	"github.com/Sternrassler/portal-sync/pkg/syncer"
	"github.com/shopspring/decimal"
)

var syncNow = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

func text(s string) records.Text {
	return records.TextOf(s)
}

func amount(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func newEngine(st store.Store) *syncer.Engine {
	cfg := syncer.DefaultConfig()
	cfg.Now = func() time.Time { return syncNow }
	return syncer.NewEngine(st, cfg)
}

type harvestSet struct {
	customers []records.Customer
	proposals []records.ProposalStatus
	pending   []records.PendingPayment
	life      []records.LifeProduct
	pension   []records.PensionProduct
}

func sampleHarvest() harvestSet {
	common := func(proposal string) records.ProductCommon {
		return records.ProductCommon{
			CustomerID:        text("c1"),
			ProposalNumber:    text(proposal),
			CertificateNumber: text("CERT-" + proposal),
			Status:            text(records.StatusActive),
			LastPayment:       text("2024-04-10"),
		}
	}
	lifeCommon := common("V1")
	lifeCommon.BusinessLine = records.LineLife
	cancelled := common("V2")
	cancelled.Status = text(records.StatusCancelled)

	return harvestSet{
		customers: []records.Customer{
			{InternalID: text("c1"), Name: text("Maria Silva"), Document: text("111.222.333-44"), BirthDate: text("1980-02-03")},
			{InternalID: text("c2"), Name: text("Sem CPF"), Document: text("12")},
		},
		proposals: []records.ProposalStatus{
			{CustomerID: text("c1"), ProposalNumber: text("P1"), ProposalPhase: text("Em análise"), Amount: amount("150.25"), DueDate: text("2024-06-10")},
			{Name: text("João"), Document: text("555.666.777-88"), ProposalNumber: text("P2"), DueDate: text("10/06/2024")},
		},
		pending: []records.PendingPayment{
			{CustomerID: text("c1"), ProposalNumber: text("P1"), CertificateNumber: text("C1"), Competency: text("04/2024"), CurrentDueDate: text("2024-05-01"), Contribution: amount("80.00")},
			{CustomerID: text("c1"), ProposalNumber: text("P1"), CertificateNumber: text("C1"), Competency: text("06/2024"), CurrentDueDate: text("2024-06-01")},
		},
		life: []records.LifeProduct{
			{ProductCommon: lifeCommon, CoverageName: text("Morte"), InsuredCapital: amount("100000")},
			{ProductCommon: lifeCommon, CoverageName: text("Invalidez"), InsuredCapital: amount("50000")},
			{ProductCommon: cancelled, CoverageName: text("Morte")},
		},
		pension: []records.PensionProduct{
			{ProductCommon: common("PV1"), GrossReserve: amount("1234.5")},
		},
	}
}

func (h harvestSet) batches(t *testing.T) []records.Batch {
	t.Helper()
	var out []records.Batch
	add := func(b records.Batch, err error) {
		if err != nil {
			t.Fatalf("NewBatch: %v", err)
		}
		out = append(out, b)
	}
	add(records.NewBatch(records.BatchCustomers, h.customers))
	add(records.NewBatch(records.BatchProposalStatuses, h.proposals))
	add(records.NewBatch(records.BatchPendingPayments, h.pending))
	add(records.NewBatch(records.BatchLifeProducts, h.life))
	add(records.NewBatch(records.BatchPensionProducts, h.pension))
	return out
}

func writeFile(t *testing.T, dir, broker string, at time.Time, batches []records.Batch) string {
	t.Helper()
	path, err := harvest.WriteFile(dir, broker, at, batches)
	if err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func expectCounts(t *testing.T, result syncer.Result, entity syncer.Entity, want syncer.Counts) {
	t.Helper()
	if got := result.Counts[entity]; got != want {
		t.Errorf("%s counts = %+v, want %+v", entity, got, want)
	}
}

// TestSync_IdempotentAgainstPostgres syncs the same harvest twice and then a
// changed one.
func TestSync_IdempotentAgainstPostgres(t *testing.T) {
	pool, cleanup := setupPostgres(t)
	defer cleanup()
	ctx := context.Background()

	brokerID := addBroker(t, pool, "ACME CORRETORA DE SEGUROS LTDA")
	root := t.TempDir()
	runner := syncer.NewRunner(newEngine(postgres.New(pool)), syncer.RunnerConfig{
		DownloadDir:  filepath.Join(root, "downloads"),
		ProcessedDir: filepath.Join(root, "processed"),
	})

	h := sampleHarvest()
	first := writeFile(t, filepath.Join(root, "downloads"), "ACME CORRETORA", syncNow, h.batches(t))

	report, err := runner.ProcessFile(ctx, first)
	if err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if report.Result.BrokerID != brokerID {
		t.Errorf("broker id = %d, want %d", report.Result.BrokerID, brokerID)
	}
	expectCounts(t, report.Result, syncer.EntityCustomers, syncer.Counts{Inserted: 1, Skipped: 1})
	expectCounts(t, report.Result, syncer.EntityProposals, syncer.Counts{Inserted: 2})
	expectCounts(t, report.Result, syncer.EntityPendingPayments, syncer.Counts{Inserted: 1, NotDelinquent: 1})
	expectCounts(t, report.Result, syncer.EntityLifeProducts, syncer.Counts{Inserted: 2, Cancelled: 1})
	expectCounts(t, report.Result, syncer.EntityPensionProducts, syncer.Counts{Inserted: 1})
	if !report.Moved {
		t.Error("first file was not moved")
	}

	// Maria plus the stub created for João's proposal.
	if n := count(t, pool, "clients"); n != 2 {
		t.Errorf("clients = %d, want 2", n)
	}

	var delay int
	var contribution decimal.Decimal
	if err := pool.QueryRow(ctx,
		`SELECT delay_days, contribution_value FROM defaulters_detailed WHERE competency = '04/2024'`,
	).Scan(&delay, &contribution); err != nil {
		t.Fatalf("read defaulter: %v", err)
	}
	if delay != 9 {
		t.Errorf("delay_days = %d, want 9", delay)
	}
	if !contribution.Equal(decimal.RequireFromString("80")) {
		t.Errorf("contribution = %s, want 80", contribution)
	}

	second := writeFile(t, filepath.Join(root, "downloads"), "ACME CORRETORA", syncNow.Add(time.Minute), h.batches(t))
	report, err = runner.ProcessFile(ctx, second)
	if err != nil {
		t.Fatalf("second sync: %v", err)
	}
	expectCounts(t, report.Result, syncer.EntityCustomers, syncer.Counts{Unchanged: 1, Skipped: 1})
	expectCounts(t, report.Result, syncer.EntityProposals, syncer.Counts{Unchanged: 2})
	expectCounts(t, report.Result, syncer.EntityPendingPayments, syncer.Counts{Unchanged: 1, NotDelinquent: 1})
	expectCounts(t, report.Result, syncer.EntityLifeProducts, syncer.Counts{Unchanged: 2, Cancelled: 1})
	expectCounts(t, report.Result, syncer.EntityPensionProducts, syncer.Counts{Unchanged: 1})

	h.proposals[0].ProposalPhase = text("Emitida")
	h.life[0].InsuredCapital = amount("120000")
	third := writeFile(t, filepath.Join(root, "downloads"), "ACME CORRETORA", syncNow.Add(2*time.Minute), h.batches(t))
	report, err = runner.ProcessFile(ctx, third)
	if err != nil {
		t.Fatalf("third sync: %v", err)
	}
	expectCounts(t, report.Result, syncer.EntityProposals, syncer.Counts{Updated: 1, Unchanged: 1})
	expectCounts(t, report.Result, syncer.EntityLifeProducts, syncer.Counts{Updated: 1, Unchanged: 1, Cancelled: 1})

	var phase string
	if err := pool.QueryRow(ctx, `SELECT status_proposta FROM proposals WHERE proposta = 'P1'`).Scan(&phase); err != nil {
		t.Fatalf("read proposal: %v", err)
	}
	if phase != "Emitida" {
		t.Errorf("status_proposta = %q, want Emitida", phase)
	}

	for table, want := range map[string]int{
		"clients":             2,
		"proposals":           2,
		"defaulters_detailed": 1,
		"products_clients":    3,
	} {
		if n := count(t, pool, table); n != want {
			t.Errorf("%s = %d, want %d", table, n, want)
		}
	}
}

// TestSync_FailingRecordRollsBackAlone makes one insert violate a constraint
// and checks the rest of the batch commits.
func TestSync_FailingRecordRollsBackAlone(t *testing.T) {
	pool, cleanup := setupPostgres(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := pool.Exec(ctx, `ALTER TABLE proposals ADD CONSTRAINT reject_p3 CHECK (proposta <> 'P3')`); err != nil {
		t.Fatalf("add constraint: %v", err)
	}
	brokerID := addBroker(t, pool, "Acme")

	var proposals []records.ProposalStatus
	for i := 1; i <= 5; i++ {
		proposals = append(proposals, records.ProposalStatus{
			Name:           text(fmt.Sprintf("Cliente %d", i)),
			Document:       text(fmt.Sprintf("1112223334%d", i)),
			ProposalNumber: text(fmt.Sprintf("P%d", i)),
			DueDate:        text("2024-06-10"),
		})
	}

	engine := newEngine(postgres.New(pool))
	counts, err := engine.Proposals(ctx, syncer.Scope{BrokerID: brokerID, BrokerName: "Acme"}, proposals)
	if err != nil {
		t.Fatalf("Proposals: %v", err)
	}
	if counts != (syncer.Counts{Inserted: 4, Failed: 1}) {
		t.Errorf("counts = %+v, want 4 inserted 1 failed", counts)
	}
	if n := count(t, pool, "proposals"); n != 4 {
		t.Errorf("proposals = %d, want 4", n)
	}
	// The customer stub of the failed record was rolled back with it.
	if n := count(t, pool, "clients"); n != 4 {
		t.Errorf("clients = %d, want 4", n)
	}
}

func TestSync_UnknownBrokerLeavesFile(t *testing.T) {
	pool, cleanup := setupPostgres(t)
	defer cleanup()

	root := t.TempDir()
	downloads := filepath.Join(root, "downloads")
	runner := syncer.NewRunner(newEngine(postgres.New(pool)), syncer.RunnerConfig{
		DownloadDir:  downloads,
		ProcessedDir: filepath.Join(root, "processed"),
	})
	path := writeFile(t, downloads, "NINGUEM", syncNow, sampleHarvest().batches(t))

	_, err := runner.Run(context.Background())
	if !errors.Is(err, store.ErrBrokerNotFound) {
		t.Fatalf("Run error = %v, want ErrBrokerNotFound", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("file should stay in place: %v", err)
	}
	if n := count(t, pool, "clients"); n != 0 {
		t.Errorf("clients = %d, want 0", n)
	}
}

func TestSync_LostConnectionAbortsBatch(t *testing.T) {
	pool, cleanup := setupPostgres(t)
	brokerID := addBroker(t, pool, "Acme")
	st := postgres.New(pool)
	cleanup()

	engine := newEngine(st)
	_, err := engine.Customers(context.Background(), syncer.Scope{BrokerID: brokerID}, sampleHarvest().customers)
	if !errors.Is(err, store.ErrConnectionLost) {
		t.Fatalf("Customers error = %v, want ErrConnectionLost", err)
	}
}
