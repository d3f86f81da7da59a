package harvest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Sternrassler/portal-sync/pkg/client"
	"github.com/Sternrassler/portal-sync/pkg/pagination"
	"github.com/Sternrassler/portal-sync/pkg/portal"
	"github.com/Sternrassler/portal-sync/pkg/records"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrSessionExpired is returned when the portal rejected the session token;
// workflows not yet started are skipped.
var ErrSessionExpired = errors.New("portal session expired")

var (
	harvestRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_records_total",
		Help: "Records produced by the harvester, by batch",
	}, []string{"batch"})

	harvestDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "harvest_items_dropped_total",
		Help: "Listing items that produced no record, by workflow and reason",
	}, []string{"workflow", "reason"})
)

// SessionState reports whether the portal has rejected the session token.
// *client.Client implements it.
type SessionState interface {
	TokenExpired() bool
}

// Templates holds the request bodies captured from the portal front end, one
// per workflow. A workflow whose template is empty is skipped by HarvestAll.
type Templates struct {
	Customers       json.RawMessage
	PendingPayments json.RawMessage
	Proposals       json.RawMessage
}

// Options configures a Harvester.
type Options struct {
	// Broker names the session in logs.
	Broker string

	// RunID correlates log lines of one harvest. Generated when empty.
	RunID string

	Pagination pagination.Config

	// PendingPageSize and PendingMaxPages override the pending-payments
	// listing's page size and page cap when positive.
	PendingPageSize int
	PendingMaxPages int
}

// Harvester runs extraction workflows for one broker session.
type Harvester struct {
	caller  pagination.Caller
	fetcher *pagination.Fetcher
	pending pagination.Endpoint
	runID   string
	logger  zerolog.Logger
}

// New creates a Harvester that issues every call through caller.
func New(caller pagination.Caller, opts Options) *Harvester {
	if opts.RunID == "" {
		opts.RunID = uuid.NewString()
	}
	logger := log.With().
		Str("component", "harvester").
		Str("run_id", opts.RunID).
		Str("broker", opts.Broker).
		Logger()

	pending := portal.PendingPaymentsListing
	if opts.PendingPageSize > 0 {
		pending.PageSize = opts.PendingPageSize
	}
	if opts.PendingMaxPages > 0 {
		pending.MaxPages = opts.PendingMaxPages
	}

	return &Harvester{
		caller:  caller,
		fetcher: pagination.NewFetcher(caller, opts.Pagination),
		pending: pending,
		runID:   opts.RunID,
		logger:  logger,
	}
}

// RunID returns the run id attached to this harvester's logs.
func (h *Harvester) RunID() string {
	return h.runID
}

// HarvestAll runs the customers, pending-payments and proposal workflows in
// that order and returns every batch produced. Workflow errors are joined;
// batches from workflows that failed part way are still returned. When the
// session token expires, the remaining workflows are skipped.
func (h *Harvester) HarvestAll(ctx context.Context, tpl Templates) ([]records.Batch, error) {
	workflows := []struct {
		name     string
		template json.RawMessage
		run      func(context.Context, []byte) ([]records.Batch, error)
	}{
		{"customers", tpl.Customers, h.Customers},
		{"pending_payments", tpl.PendingPayments, h.PendingPayments},
		{"proposals", tpl.Proposals, h.ProposalStatus},
	}

	start := time.Now()
	var (
		all  []records.Batch
		errs []error
	)
	for _, wf := range workflows {
		if len(wf.template) == 0 {
			h.logger.Info().Str("workflow", wf.name).Msg("No request template captured; skipping workflow")
			continue
		}
		if h.sessionExpired() {
			h.logger.Error().Str("workflow", wf.name).Msg("Session token expired; skipping workflow")
			errs = append(errs, fmt.Errorf("%s: %w", wf.name, ErrSessionExpired))
			continue
		}

		batches, err := wf.run(ctx, wf.template)
		all = append(all, batches...)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", wf.name, err))
		}
	}

	h.logger.Info().
		Int("batches", len(all)).
		Int("errors", len(errs)).
		Dur("duration", time.Since(start)).
		Msg("Harvest finished")
	return all, errors.Join(errs...)
}

func (h *Harvester) sessionExpired() bool {
	s, ok := h.caller.(SessionState)
	return ok && s.TokenExpired()
}

// get issues a detail call. Failures were already logged by the client and
// count as no result.
func (h *Harvester) get(ctx context.Context, endpoint, path string) json.RawMessage {
	body, err := h.caller.Do(ctx, client.Request{Method: http.MethodGet, Path: path, Endpoint: endpoint})
	if err != nil {
		return nil
	}
	return body
}

// listing runs a paginated fetch. A truncated listing is returned together
// with its error; any other error means nothing was fetched.
func (h *Harvester) listing(ctx context.Context, ep pagination.Endpoint, template []byte) ([]json.RawMessage, error) {
	items, err := h.fetcher.FetchAll(ctx, ep, template)
	if err != nil && !errors.Is(err, pagination.ErrPageFailed) {
		return nil, err
	}
	return items, err
}

func decodeItems[T any](logger zerolog.Logger, workflow string, raw []json.RawMessage) []T {
	out := make([]T, 0, len(raw))
	for i, r := range raw {
		var v T
		if err := json.Unmarshal(r, &v); err != nil {
			logger.Warn().Err(err).Int("index", i).Str("workflow", workflow).Msg("Skipping undecodable listing item")
			harvestDroppedTotal.WithLabelValues(workflow, "decode").Inc()
			continue
		}
		out = append(out, v)
	}
	return out
}

func newBatch[T any](name string, items []T) (records.Batch, error) {
	b, err := records.NewBatch(name, items)
	if err != nil {
		return records.Batch{}, fmt.Errorf("encode %s: %w", name, err)
	}
	harvestRecordsTotal.WithLabelValues(name).Add(float64(len(items)))
	return b, nil
}

// fetchPair issues two GET calls together and waits for both.
func (h *Harvester) fetchPair(ctx context.Context, endpointA, pathA, endpointB, pathB string) (a, b json.RawMessage) {
	var g errgroup.Group
	g.Go(func() error {
		a = h.get(ctx, endpointA, pathA)
		return nil
	})
	g.Go(func() error {
		b = h.get(ctx, endpointB, pathB)
		return nil
	})
	_ = g.Wait()
	return a, b
}
