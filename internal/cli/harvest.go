package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Sternrassler/portal-sync/pkg/cache"
	"github.com/Sternrassler/portal-sync/pkg/client"
	"github.com/Sternrassler/portal-sync/pkg/harvest"
	"github.com/Sternrassler/portal-sync/pkg/pagination"
	"github.com/Sternrassler/portal-sync/pkg/session"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// HarvestOptions holds flags for the harvest command.
type HarvestOptions struct {
	*RootOptions
	Broker            string
	Token             string
	CustomersTemplate string
	PendingTemplate   string
	ProposalsTemplate string
	OutDir            string
}

// NewHarvestCommand creates the harvest command.
func NewHarvestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HarvestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "harvest",
		Short: "Extract one broker's records from the partner portal",
		Long: `Run the customers, pending-payments and proposal-status workflows for one
broker session and write the batches to a backup file in the output
directory.

Each workflow needs the request body captured from the portal front end.
Workflows without a template are skipped.

Example:
  portal-sync harvest --broker "ACME CORRETORA" \
    --customers-template clientes.json \
    --pending-template pendentes.json \
    --proposals-template propostas.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHarvest(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Broker, "broker", "", "broker name used in the output file name (required)")
	cmd.Flags().StringVar(&opts.Token, "token", "", "portal bearer token, overrides PORTAL_TOKEN")
	cmd.Flags().StringVar(&opts.CustomersTemplate, "customers-template", "", "captured request body for the customers listing")
	cmd.Flags().StringVar(&opts.PendingTemplate, "pending-template", "", "captured request body for the pending-payments report")
	cmd.Flags().StringVar(&opts.ProposalsTemplate, "proposals-template", "", "captured request body for the proposal status report")
	cmd.Flags().StringVarP(&opts.OutDir, "out", "o", "", "output directory, overrides HARVEST_OUTPUT_DIR")
	_ = cmd.MarkFlagRequired("broker")

	return cmd
}

func runHarvest(ctx context.Context, opts *HarvestOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg := opts.Config

	token := opts.Token
	if token == "" {
		token = cfg.Portal.Token
	}
	if token == "" {
		return NewExitError(ExitCommandError, "portal token missing: set PORTAL_TOKEN or --token")
	}

	templates, err := readTemplates(opts.CustomersTemplate, opts.PendingTemplate, opts.ProposalsTemplate)
	if err != nil {
		return WrapExitError(ExitCommandError, "read request templates", err)
	}
	if len(templates.Customers) == 0 && len(templates.PendingPayments) == 0 && len(templates.Proposals) == 0 {
		return NewExitError(ExitCommandError, "no request template given")
	}

	outDir := opts.OutDir
	if outDir == "" {
		outDir = cfg.Portal.OutputDir
	}

	opts.startMetrics(ctx)

	rdb := opts.connectRedis(ctx)
	if rdb != nil {
		defer rdb.Close()
	}

	logger := log.With().Str("component", "cli").Str("broker", opts.Broker).Logger()
	tracker := session.NewTracker(rdb, opts.Broker, logger)
	if err := tracker.Reset(ctx); err != nil {
		logger.Warn().Err(err).Msg("Cannot reset mirrored session state")
	}

	clientCfg := client.DefaultConfig(cfg.Portal.BaseURL, token)
	clientCfg.CustomHeader = cfg.Portal.CustomHeader
	clientCfg.MaxConcurrency = cfg.Portal.MaxConcurrency
	clientCfg.CallTimeout = cfg.Portal.CallTimeout
	clientCfg.FailureBackoff = cfg.Portal.FailureBackoff
	clientCfg.Session = tracker
	clientCfg.Scope = opts.Broker
	if rdb != nil && cfg.Portal.DetailCacheTTL > 0 {
		clientCfg.Cache = cache.NewManager(rdb)
		clientCfg.CacheTTL = cfg.Portal.DetailCacheTTL
	}

	c, err := client.New(clientCfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "create portal client", err)
	}

	h := harvest.New(c, harvest.Options{
		Broker:          opts.Broker,
		Pagination:      pagination.DefaultConfig(),
		PendingPageSize: cfg.Portal.PendingPageSize,
		PendingMaxPages: cfg.Portal.PendingMaxPages,
	})
	batches, harvestErr := h.HarvestAll(ctx, templates)

	if len(batches) > 0 {
		path, err := harvest.WriteFile(outDir, opts.Broker, time.Now(), batches)
		if err != nil {
			return WrapExitError(ExitFailure, "write harvest file", err)
		}
		fmt.Fprintln(out, path)
	}

	if harvestErr != nil {
		if errors.Is(harvestErr, harvest.ErrSessionExpired) || c.TokenExpired() {
			return WrapExitError(ExitFailure, "harvest incomplete, portal token expired", harvestErr)
		}
		return WrapExitError(ExitFailure, "harvest incomplete", harvestErr)
	}
	return nil
}

// readTemplates loads the captured request bodies. An empty path leaves that
// workflow's template empty.
func readTemplates(customers, pending, proposals string) (harvest.Templates, error) {
	var tpl harvest.Templates
	for _, f := range []struct {
		path string
		dst  *json.RawMessage
	}{
		{customers, &tpl.Customers},
		{pending, &tpl.PendingPayments},
		{proposals, &tpl.Proposals},
	} {
		if f.path == "" {
			continue
		}
		data, err := os.ReadFile(f.path)
		if err != nil {
			return tpl, err
		}
		if !json.Valid(data) {
			return tpl, fmt.Errorf("%s: not valid JSON", f.path)
		}
		*f.dst = data
	}
	return tpl, nil
}
