package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Sternrassler/portal-sync/pkg/cache"
	"github.com/Sternrassler/portal-sync/pkg/session"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// SessionOptions holds flags for the session command.
type SessionOptions struct {
	*RootOptions
	Broker     string
	Reset      bool
	PurgeCache bool
}

// NewSessionCommand creates the session command.
func NewSessionCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SessionOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Show or reset a broker's mirrored portal session state",
		Long: `Print the session state a harvest mirrored to Redis: whether the portal
rejected the token and when. --reset clears the flag after a new token was
issued; --purge-cache drops the broker's cached detail responses.

Example:
  portal-sync session --broker "ACME CORRETORA"
  portal-sync session --broker "ACME CORRETORA" --reset --purge-cache`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSession(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Broker, "broker", "", "broker session scope (required)")
	cmd.Flags().BoolVar(&opts.Reset, "reset", false, "clear the token-expired flag")
	cmd.Flags().BoolVar(&opts.PurgeCache, "purge-cache", false, "delete the broker's cached detail responses")
	_ = cmd.MarkFlagRequired("broker")

	return cmd
}

func runSession(ctx context.Context, opts *SessionOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	rdb := opts.connectRedis(ctx)
	if err := requireRedis(rdb); err != nil {
		return err
	}
	defer rdb.Close()

	tracker := session.NewTracker(rdb, opts.Broker, log.With().Str("component", "cli").Logger())
	if opts.Reset {
		if err := tracker.Reset(ctx); err != nil {
			return WrapExitError(ExitFailure, "reset session", err)
		}
	}
	if opts.PurgeCache {
		n, err := cache.NewManager(rdb).Purge(ctx, opts.Broker)
		if err != nil {
			return WrapExitError(ExitFailure, "purge cache", err)
		}
		fmt.Fprintf(out, "purged %d cached responses\n", n)
	}

	state, err := tracker.GetState(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "read session", err)
	}
	writeSessionState(out, state)
	return nil
}

func writeSessionState(out io.Writer, s *session.State) {
	health := "healthy"
	if !s.Healthy() {
		health = "token expired"
	}
	fmt.Fprintf(out, "scope:        %s\n", s.Scope)
	fmt.Fprintf(out, "status:       %s\n", health)
	fmt.Fprintf(out, "unauthorized: %d\n", s.Unauthorized)
	if !s.LastFailure.IsZero() {
		fmt.Fprintf(out, "last 401:     %s\n", s.LastFailure.Format(time.RFC3339))
	}
	updated := s.LastUpdate.Format(time.RFC3339)
	if s.IsStale(session.StateTTL) {
		updated += " (stale)"
	}
	fmt.Fprintf(out, "updated:      %s\n", updated)
}
