package pagination

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/portal-sync/pkg/client"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	// ErrPageFailed marks a listing cut short by a failed page.
	ErrPageFailed = errors.New("page fetch failed")

	// ErrInvalidTemplate is returned when the request template is not a JSON object.
	ErrInvalidTemplate = errors.New("invalid request template")
)

var pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "portal_pages_fetched_total",
	Help: "Listing pages fetched by endpoint and outcome",
}, []string{"endpoint", "outcome"})

// Outcome is the result class of one page.
type Outcome int

const (
	OutcomePage Outcome = iota
	OutcomeEmpty
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomePage:
		return "page"
	case OutcomeEmpty:
		return "empty"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Endpoint describes one paginated listing.
type Endpoint struct {
	// Name labels logs and metrics.
	Name string

	Method string
	Path   string

	// PageKey is the template field (POST) or query parameter (GET) that
	// carries the page number.
	PageKey string

	// FirstPage is the number of the first page (0 or 1 by endpoint).
	FirstPage int

	// SizeKey and PageSize set an explicit page size when SizeKey is not empty.
	SizeKey  string
	PageSize int

	// ListField is the response field holding the page's items.
	ListField string

	// MaxPages caps how many pages are requested; 0 means no cap.
	MaxPages int
}

// Caller issues one portal call. *client.Client satisfies it.
type Caller interface {
	Do(ctx context.Context, req client.Request) (json.RawMessage, error)
}

// PageResult is the outcome of fetching one page.
type PageResult struct {
	Number  int
	Outcome Outcome
	Items   []json.RawMessage
	Err     error
}

// Config holds fetcher configuration.
type Config struct {
	// ProgressEvery logs a progress line every N pages.
	ProgressEvery int
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() Config {
	return Config{ProgressEvery: 10}
}

// Fetcher reads paginated listings sequentially.
type Fetcher struct {
	caller Caller
	config Config
	logger zerolog.Logger
}

// NewFetcher creates a new fetcher.
func NewFetcher(caller Caller, config Config) *Fetcher {
	if config.ProgressEvery <= 0 {
		config.ProgressEvery = 10
	}
	return &Fetcher{
		caller: caller,
		config: config,
		logger: log.With().Str("component", "paginator").Logger(),
	}
}

// FetchAll reads every page of ep and returns the concatenated items.
//
// It stops cleanly at the first empty page or when MaxPages pages were read.
// When a page fails, the items collected so far are returned along with an
// error wrapping ErrPageFailed.
func (f *Fetcher) FetchAll(ctx context.Context, ep Endpoint, template []byte) ([]json.RawMessage, error) {
	base, err := parseTemplate(template)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	logger := f.logger.With().Str("endpoint", ep.Name).Logger()
	logger.Info().Int("first_page", ep.FirstPage).Msg("Starting paginated fetch")

	var items []json.RawMessage
	pages := 0
	for page := ep.FirstPage; ; page++ {
		if ep.MaxPages > 0 && pages >= ep.MaxPages {
			logger.Warn().
				Int("pages", pages).
				Int("max_pages", ep.MaxPages).
				Msg("Page cap reached; stopping pagination")
			break
		}
		if err := ctx.Err(); err != nil {
			return items, fmt.Errorf("%w: page %d: %v", ErrPageFailed, page, err)
		}

		res := f.FetchPage(ctx, ep, base, page)
		pagesFetchedTotal.WithLabelValues(ep.Name, res.Outcome.String()).Inc()

		switch res.Outcome {
		case OutcomeEmpty:
			logger.Info().
				Int("pages", pages).
				Int("items", len(items)).
				Dur("duration", time.Since(start)).
				Msg("Fetch complete")
			return items, nil

		case OutcomeFailed:
			logger.Warn().
				Err(res.Err).
				Int("page", page).
				Int("items", len(items)).
				Msg("Page failed; returning partial listing")
			return items, fmt.Errorf("%w: %s page %d: %v", ErrPageFailed, ep.Name, page, res.Err)
		}

		items = append(items, res.Items...)
		pages++
		if pages%f.config.ProgressEvery == 0 {
			logger.Info().
				Int("pages", pages).
				Int("items", len(items)).
				Msg("Fetch progress")
		}
	}

	logger.Info().
		Int("pages", pages).
		Int("items", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Fetch complete")
	return items, nil
}

// FetchPage requests a single page. base is the decoded request template and
// is not modified.
func (f *Fetcher) FetchPage(ctx context.Context, ep Endpoint, base map[string]any, page int) PageResult {
	req := client.Request{Method: ep.Method, Path: ep.Path, Endpoint: ep.Name}

	if ep.Method == http.MethodGet {
		req.Path = withQuery(ep, page)
	} else {
		body, err := injectPage(base, ep, page)
		if err != nil {
			return PageResult{Number: page, Outcome: OutcomeFailed, Err: err}
		}
		req.Body = body
	}

	raw, err := f.caller.Do(ctx, req)
	if err != nil {
		return PageResult{Number: page, Outcome: OutcomeFailed, Err: err}
	}
	if raw == nil {
		return PageResult{Number: page, Outcome: OutcomeEmpty}
	}

	items, err := extractList(raw, ep.ListField)
	if err != nil {
		return PageResult{Number: page, Outcome: OutcomeFailed, Err: err}
	}
	if len(items) == 0 {
		return PageResult{Number: page, Outcome: OutcomeEmpty}
	}

	f.logger.Debug().Str("endpoint", ep.Name).Int("page", page).Int("items", len(items)).Msg("Page fetched")
	return PageResult{Number: page, Outcome: OutcomePage, Items: items}
}

// parseTemplate decodes the captured request body. An empty template is an
// empty object. Numbers keep their original text.
func parseTemplate(template []byte) (map[string]any, error) {
	if len(bytes.TrimSpace(template)) == 0 {
		return map[string]any{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(template))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTemplate, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%w: not a JSON object", ErrInvalidTemplate)
	}
	return m, nil
}

func injectPage(base map[string]any, ep Endpoint, page int) ([]byte, error) {
	body := make(map[string]any, len(base)+2)
	for k, v := range base {
		body[k] = v
	}
	body[ep.PageKey] = page
	if ep.SizeKey != "" {
		body[ep.SizeKey] = ep.PageSize
	}
	return json.Marshal(body)
}

func withQuery(ep Endpoint, page int) string {
	q := url.Values{}
	q.Set(ep.PageKey, strconv.Itoa(page))
	if ep.SizeKey != "" {
		q.Set(ep.SizeKey, strconv.Itoa(ep.PageSize))
	}
	sep := "?"
	if strings.Contains(ep.Path, "?") {
		sep = "&"
	}
	return ep.Path + sep + q.Encode()
}

// extractList returns the items under field. A missing or null field is an
// empty page; a field that is not an array is malformed.
func extractList(raw json.RawMessage, field string) ([]json.RawMessage, error) {
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode page: %w", err)
	}
	list, ok := envelope[field]
	if !ok || bytes.Equal(bytes.TrimSpace(list), []byte("null")) {
		return nil, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(list, &items); err != nil {
		return nil, fmt.Errorf("decode %q: %w", field, err)
	}
	return items, nil
}
