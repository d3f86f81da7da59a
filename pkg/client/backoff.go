package client

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var portalBackoffSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "portal_failure_backoff_seconds",
	Help:    "Backoff slept after a failed call by error class",
	Buckets: []float64{0.5, 1, 2, 5, 10},
}, []string{"class"})

// backoff sleeps FailureBackoff once while the caller still holds its permit,
// returning early if ctx ends. The failed call is not retried.
func (c *Client) backoff(ctx context.Context, class ErrorClass) {
	d := c.config.FailureBackoff
	if d <= 0 {
		return
	}
	portalBackoffSeconds.WithLabelValues(string(class)).Observe(d.Seconds())

	c.logger.Debug().
		Str("error_class", string(class)).
		Dur("backoff", d).
		Msg("Pausing after failed call")

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
