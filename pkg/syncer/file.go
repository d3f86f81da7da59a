package syncer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/Sternrassler/portal-sync/pkg/harvest"
	"github.com/Sternrassler/portal-sync/pkg/records"
	"github.com/Sternrassler/portal-sync/pkg/store"
	"github.com/Sternrassler/portal-sync/pkg/xref"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/cases"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/language"
)

var syncFilesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "sync_files_total",
	Help: "Harvest files handled by the sync runner, by result",
}, []string{"result"})

// ErrInvalidFile is returned for harvest files that are not a JSON array of
// batches in any supported encoding.
var ErrInvalidFile = errors.New("invalid harvest file")

// legacyEncodings are tried in order for files that are not valid UTF-8.
var legacyEncodings = []encoding.Encoding{
	charmap.Windows1252,
	charmap.ISO8859_1,
}

// Result is the outcome of syncing one harvest.
type Result struct {
	BrokerID int64
	Counts   map[Entity]Counts
}

// SyncBatches syncs one harvest for brokerName: it resolves the broker,
// indexes the customers batch, then runs customers, proposals, pending
// payments, life products and pension products in that order. Batches of
// the same kind are concatenated; unknown batches are ignored.
//
// It stops at the first operation error, which is either
// store.ErrBrokerNotFound or a store failure that aborted a batch.
func (e *Engine) SyncBatches(ctx context.Context, brokerName string, batches []records.Batch) (Result, error) {
	result := Result{Counts: make(map[Entity]Counts)}

	byKind := make(map[records.Kind]records.Batch)
	for _, b := range batches {
		kind := records.Classify(b.Name)
		if kind == records.KindUnknown {
			e.logger.Warn().Str("batch", b.Name).Msg("Unknown batch; ignored")
			continue
		}
		merged := byKind[kind]
		merged.Name = b.Name
		merged.Data = append(merged.Data, b.Data...)
		byKind[kind] = merged
	}

	brokerID, err := e.ResolveBroker(ctx, brokerName)
	if err != nil {
		return result, err
	}
	result.BrokerID = brokerID

	customers, customersBad := decodeBatch[records.Customer](e.logger, byKind[records.KindCustomers])
	proposals, proposalsBad := decodeBatch[records.ProposalStatus](e.logger, byKind[records.KindProposals])
	pending, pendingBad := decodeBatch[records.PendingPayment](e.logger, byKind[records.KindPendingPayments])
	life, lifeBad := decodeBatch[records.LifeProduct](e.logger, byKind[records.KindLifeProducts])
	pension, pensionBad := decodeBatch[records.PensionProduct](e.logger, byKind[records.KindPensionProducts])

	scope := Scope{
		BrokerID:   brokerID,
		BrokerName: brokerName,
		Index:      xref.Build(customers),
	}
	e.logger.Info().Int("indexed_customers", scope.Index.Len()).Msg("Customer index built")

	steps := []struct {
		entity  Entity
		invalid int
		run     func() (Counts, error)
	}{
		{EntityCustomers, customersBad, func() (Counts, error) { return e.Customers(ctx, scope, customers) }},
		{EntityProposals, proposalsBad, func() (Counts, error) { return e.Proposals(ctx, scope, proposals) }},
		{EntityPendingPayments, pendingBad, func() (Counts, error) { return e.PendingPayments(ctx, scope, pending) }},
		{EntityLifeProducts, lifeBad, func() (Counts, error) { return e.LifeProducts(ctx, scope, life) }},
		{EntityPensionProducts, pensionBad, func() (Counts, error) { return e.PensionProducts(ctx, scope, pension) }},
	}
	for _, step := range steps {
		counts, err := step.run()
		counts.Failed += step.invalid
		result.Counts[step.entity] = counts
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

// decodeBatch decodes b's records, logging and counting those that do not
// decode.
func decodeBatch[T any](logger zerolog.Logger, b records.Batch) ([]T, int) {
	invalid := 0
	items := records.Decode[T](b, func(index int, err error) {
		invalid++
		logger.Warn().Err(err).Str("batch", b.Name).Int("record", index+1).Msg("Record does not decode; counted as failed")
	})
	return items, invalid
}

// ReadBatches reads a harvest file. Files that are not valid UTF-8 are
// decoded as Windows-1252, then ISO-8859-1.
func ReadBatches(path string) ([]records.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	if utf8.Valid(data) {
		return parseBatches(data)
	}
	var lastErr error
	for _, enc := range legacyEncodings {
		decoded, err := enc.NewDecoder().Bytes(data)
		if err != nil {
			lastErr = err
			continue
		}
		batches, err := parseBatches(decoded)
		if err == nil {
			return batches, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// parseBatches reads a JSON array of batches. Entries that are not batch
// objects are dropped.
func parseBatches(data []byte) ([]records.Batch, error) {
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	batches := make([]records.Batch, 0, len(entries))
	for _, raw := range entries {
		var b records.Batch
		if err := json.Unmarshal(raw, &b); err != nil || b.Name == "" {
			continue
		}
		batches = append(batches, b)
	}
	return batches, nil
}

// BrokerFromFileName recovers the broker name from a harvest file name:
// "Extracao_ACME_CORRETORA_2024-05-01_10-00-00_backup.json" yields
// "Acme Corretora". It returns "" when the name does not follow that form.
func BrokerFromFileName(name string) string {
	base := filepath.Base(name)
	if !strings.HasPrefix(base, harvest.FilePrefix) || !strings.HasSuffix(base, harvest.FileSuffix) {
		return ""
	}
	middle := strings.TrimSuffix(strings.TrimPrefix(base, harvest.FilePrefix), harvest.FileSuffix)
	parts := strings.Split(middle, "_")
	if len(parts) < 3 {
		return ""
	}
	broker := strings.Join(parts[:len(parts)-2], " ")
	return cases.Title(language.BrazilianPortuguese).String(broker)
}

// RunnerConfig locates harvest files.
type RunnerConfig struct {
	DownloadDir  string
	ProcessedDir string
}

// FileReport is the outcome of one harvest file.
type FileReport struct {
	Path   string
	Broker string
	Result Result
	Moved  bool
}

// Runner syncs every harvest file in a directory.
type Runner struct {
	engine *Engine
	config RunnerConfig
	logger zerolog.Logger
}

// NewRunner creates a new runner.
func NewRunner(engine *Engine, config RunnerConfig) *Runner {
	return &Runner{
		engine: engine,
		config: config,
		logger: log.With().Str("component", "sync_runner").Logger(),
	}
}

// Files lists the harvest files waiting in the download directory, oldest
// name first.
func (r *Runner) Files() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(r.config.DownloadDir, "*"+harvest.FileSuffix))
	if err != nil {
		return nil, err
	}
	slices.Sort(files)
	return files, nil
}

// Run processes every waiting file. A file that fails stays where it is
// and the runner moves on to the next one; the failures are joined into
// the returned error.
func (r *Runner) Run(ctx context.Context) ([]FileReport, error) {
	files, err := r.Files()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		r.logger.Info().Str("dir", r.config.DownloadDir).Msg("No harvest files to sync")
		return nil, nil
	}

	reports := make([]FileReport, 0, len(files))
	var errs []error
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		report, err := r.ProcessFile(ctx, path)
		reports = append(reports, report)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", filepath.Base(path), err))
		}
	}
	return reports, errors.Join(errs...)
}

// ProcessFile syncs one harvest file and, when every operation ran, moves it
// to the processed directory. Files whose broker is unknown or whose sync
// lost the store connection are left in place for the next run.
func (r *Runner) ProcessFile(ctx context.Context, path string) (FileReport, error) {
	report := FileReport{Path: path, Broker: BrokerFromFileName(path)}
	logger := r.logger.With().Str("file", filepath.Base(path)).Str("broker", report.Broker).Logger()

	batches, err := ReadBatches(path)
	if err != nil {
		syncFilesTotal.WithLabelValues("invalid").Inc()
		logger.Error().Err(err).Msg("Cannot read harvest file")
		return report, err
	}

	report.Result, err = r.engine.SyncBatches(ctx, report.Broker, batches)
	if err != nil {
		result := "failed"
		if errors.Is(err, store.ErrBrokerNotFound) {
			result = "broker_not_found"
		}
		syncFilesTotal.WithLabelValues(result).Inc()
		logger.Error().Err(err).Msg("Sync aborted; file left in place")
		return report, err
	}

	if err := r.moveProcessed(path); err != nil {
		syncFilesTotal.WithLabelValues("move_failed").Inc()
		logger.Error().Err(err).Msg("Synced but cannot move file")
		return report, err
	}
	report.Moved = true
	syncFilesTotal.WithLabelValues("processed").Inc()
	logger.Info().Str("processed_dir", r.config.ProcessedDir).Msg("File synced and moved")
	return report, nil
}

func (r *Runner) moveProcessed(path string) error {
	if err := os.MkdirAll(r.config.ProcessedDir, 0o755); err != nil {
		return err
	}
	return os.Rename(path, filepath.Join(r.config.ProcessedDir, filepath.Base(path)))
}
