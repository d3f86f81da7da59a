package syncer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/portal-sync/pkg/records"
	"github.com/Sternrassler/portal-sync/pkg/store"
	"github.com/Sternrassler/portal-sync/pkg/xref"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	syncRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_records_total",
		Help: "Records processed by the sync engine, by entity and outcome",
	}, []string{"entity", "outcome"})

	syncBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_batches_total",
		Help: "Entity batches run by the sync engine, by entity and result",
	}, []string{"entity", "result"})

	syncBatchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sync_batch_duration_seconds",
		Help:    "Duration of one entity batch",
		Buckets: prometheus.DefBuckets,
	}, []string{"entity"})
)

// Entity labels one sync operation.
type Entity string

const (
	EntityCustomers       Entity = "customers"
	EntityProposals       Entity = "proposals"
	EntityPendingPayments Entity = "pending_payments"
	EntityLifeProducts    Entity = "life_products"
	EntityPensionProducts Entity = "pension_products"
)

// Defaults for Config.
const (
	DefaultTenantID           = 20
	DefaultInsuranceCompanyID = 44
)

// UnknownCustomerName names customer rows created only to own a dependent
// record.
const UnknownCustomerName = "Cliente não informado"

// Config holds the engine's scope.
type Config struct {
	TenantID           int64
	InsuranceCompanyID int64

	// Now is the clock used for delay computation. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns the default engine scope.
func DefaultConfig() Config {
	return Config{
		TenantID:           DefaultTenantID,
		InsuranceCompanyID: DefaultInsuranceCompanyID,
		Now:                time.Now,
	}
}

// Scope carries what one file's batches share: the resolved broker and the
// customer cross-reference index.
type Scope struct {
	BrokerID   int64
	BrokerName string
	Index      *xref.Index
}

// Counts reports the outcome of one operation.
type Counts struct {
	Inserted      int
	Updated       int
	Unchanged     int
	Skipped       int
	Cancelled     int
	NotDelinquent int
	Failed        int
}

// Total returns the number of records the operation saw.
func (c Counts) Total() int {
	return c.Inserted + c.Updated + c.Unchanged + c.Skipped + c.Cancelled + c.NotDelinquent + c.Failed
}

type outcome int

const (
	outcomeInserted outcome = iota
	outcomeUpdated
	outcomeUnchanged
	outcomeSkipped
	outcomeCancelled
	outcomeNotDelinquent
	outcomeFailed
)

var outcomeLabels = [...]string{
	outcomeInserted:      "inserted",
	outcomeUpdated:       "updated",
	outcomeUnchanged:     "unchanged",
	outcomeSkipped:       "skipped",
	outcomeCancelled:     "cancelled",
	outcomeNotDelinquent: "not_delinquent",
	outcomeFailed:        "failed",
}

func (o outcome) String() string {
	return outcomeLabels[o]
}

func (c *Counts) add(o outcome) {
	switch o {
	case outcomeInserted:
		c.Inserted++
	case outcomeUpdated:
		c.Updated++
	case outcomeUnchanged:
		c.Unchanged++
	case outcomeSkipped:
		c.Skipped++
	case outcomeCancelled:
		c.Cancelled++
	case outcomeNotDelinquent:
		c.NotDelinquent++
	case outcomeFailed:
		c.Failed++
	}
}

// Engine runs sync operations against a store.
type Engine struct {
	store  store.Store
	config Config
	logger zerolog.Logger
}

// NewEngine creates a new engine.
func NewEngine(st store.Store, config Config) *Engine {
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Engine{
		store:  st,
		config: config,
		logger: log.With().Str("component", "sync").Int64("tenant_id", config.TenantID).Logger(),
	}
}

// ResolveBroker finds the broker whose name starts with name, ignoring case.
// It returns store.ErrBrokerNotFound when there is none.
func (e *Engine) ResolveBroker(ctx context.Context, name string) (int64, error) {
	if name == "" {
		return 0, fmt.Errorf("%w: empty broker name", store.ErrBrokerNotFound)
	}
	tx, err := e.store.BeginBatch(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, ok, err := tx.FindBrokerID(ctx, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %q", store.ErrBrokerNotFound, name)
	}
	e.logger.Info().Str("broker", name).Int64("broker_id", id).Msg("Broker resolved")
	return id, nil
}

// recordFunc syncs record i of a batch.
type recordFunc func(ctx context.Context, repos store.Repos, i int) (outcome, error)

// runBatch runs n records through fn inside one transaction, one savepoint
// per record, and commits once at the end. It aborts without committing
// when the transaction becomes unusable.
func (e *Engine) runBatch(ctx context.Context, entity Entity, n int, fn recordFunc) (Counts, error) {
	logger := e.logger.With().Str("entity", string(entity)).Logger()
	var counts Counts

	if n == 0 {
		logger.Info().Msg("Nothing to sync")
		return counts, nil
	}

	start := time.Now()
	defer func() {
		syncBatchDuration.WithLabelValues(string(entity)).Observe(time.Since(start).Seconds())
	}()

	tx, err := e.store.BeginBatch(ctx)
	if err != nil {
		syncBatchesTotal.WithLabelValues(string(entity), "aborted").Inc()
		return counts, fmt.Errorf("%s: %w", entity, err)
	}
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(ctx); err != nil {
				logger.Warn().Err(err).Msg("Rollback failed")
			}
		}
	}()

	logger.Info().Int("records", n).Msg("Starting sync")
	for i := 0; i < n; i++ {
		var out outcome
		err := tx.Record(ctx, func(repos store.Repos) error {
			var err error
			out, err = fn(ctx, repos, i)
			return err
		})
		if err != nil {
			if errors.Is(err, store.ErrConnectionLost) {
				logger.Error().Err(err).Int("record", i+1).Msg("Store connection lost; aborting batch")
				syncBatchesTotal.WithLabelValues(string(entity), "aborted").Inc()
				return counts, fmt.Errorf("%s: record %d: %w", entity, i+1, err)
			}
			logger.Error().Err(err).Int("record", i+1).Msg("Record failed; rolled back")
			out = outcomeFailed
		}
		counts.add(out)
		syncRecordsTotal.WithLabelValues(string(entity), out.String()).Inc()
	}

	if err := tx.Commit(ctx); err != nil {
		syncBatchesTotal.WithLabelValues(string(entity), "aborted").Inc()
		return counts, fmt.Errorf("%s: %w", entity, err)
	}
	committed = true
	syncBatchesTotal.WithLabelValues(string(entity), "committed").Inc()

	logger.Info().
		Int("inserted", counts.Inserted).
		Int("updated", counts.Updated).
		Int("unchanged", counts.Unchanged).
		Int("skipped", counts.Skipped).
		Int("cancelled", counts.Cancelled).
		Int("not_delinquent", counts.NotDelinquent).
		Int("failed", counts.Failed).
		Dur("duration", time.Since(start)).
		Msg("Sync finished")
	return counts, nil
}

// resolveClient returns the id of the customer with document, creating a
// minimal customer row when none exists.
func (e *Engine) resolveClient(ctx context.Context, repos store.Repos, scope Scope, document string, name records.Text) (int64, error) {
	id, ok, err := repos.FindClientID(ctx, e.config.TenantID, document)
	if err != nil {
		return 0, err
	}
	if ok {
		return id, nil
	}

	id, err = repos.CreateClient(ctx, store.ClientRow{
		TenantID:     e.config.TenantID,
		BrokerID:     scope.BrokerID,
		Name:         records.TextOf(name.Or(UnknownCustomerName)),
		DocumentKind: "CPF",
		Document:     document,
	})
	if err != nil {
		return 0, fmt.Errorf("create customer stub: %w", err)
	}
	e.logger.Info().Str("documento", document).Int64("client_id", id).Msg("Customer not found; created minimal customer")
	return id, nil
}

// upsert applies the insert/update/unchanged decision shared by every
// dependent entity.
func upsert[R any](
	ctx context.Context,
	find func(context.Context) (*R, error),
	differs func(stored R) bool,
	insert func(context.Context) error,
	update func(ctx context.Context, stored R) error,
) (outcome, error) {
	stored, err := find(ctx)
	if err != nil {
		return outcomeFailed, err
	}
	if stored == nil {
		if err := insert(ctx); err != nil {
			return outcomeFailed, err
		}
		return outcomeInserted, nil
	}
	if !differs(*stored) {
		return outcomeUnchanged, nil
	}
	if err := update(ctx, *stored); err != nil {
		return outcomeFailed, err
	}
	return outcomeUpdated, nil
}
