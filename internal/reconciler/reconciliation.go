// Package reconciler runs the conciliation pipeline end to end.
//
// A run reads the payment exports and ledger files, maps and classifies them
// into records, matches the three reconcilable families and aggregates the
// resulting states into a Result. The engine itself is synchronous; only file
// reading fans out across goroutines.
//
// Example usage:
//
//	service, err := reconciler.NewService(reconciler.DefaultConfig(), log)
//	if err != nil {
//		return err
//	}
//	result, err := service.ReconcileFiles(ctx, &reconciler.FileSet{
//		Status:   "estado_pagos.xlsx",
//		Receipts: "cobranzas.xlsx",
//		Ledgers:  []reconciler.LedgerSource{{Path: "banco_pesos.xlsx"}},
//	})
package reconciler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang-conciliation-service/internal/classifier"
	"golang-conciliation-service/internal/matcher"
	"golang-conciliation-service/internal/models"
	"golang-conciliation-service/internal/normalizer"
	"golang-conciliation-service/internal/parsers"
	"golang-conciliation-service/pkg/errors"
	"golang-conciliation-service/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// Pipeline stage names, as reported in timings and progress
const (
	StageRead      = "read"
	StageMap       = "map"
	StageClassify  = "classify"
	StageMatch     = "match"
	StageVerify    = "verify"
	StageAggregate = "aggregate"
)

// Config holds configuration for the conciliation service
type Config struct {
	Normalizer normalizer.Config
	Classifier classifier.Config
	Matching   *matcher.MatchingConfig
	Exports    parsers.ExportConfig

	// ReadWorkers bounds concurrent file reads, 0 means one per CPU
	ReadWorkers int

	// VerifyPairings checks the one-to-one pairing invariant after matching
	VerifyPairings bool
}

// DefaultConfig returns the default service configuration
func DefaultConfig() *Config {
	return &Config{
		Normalizer:     normalizer.DefaultConfig(),
		Classifier:     classifier.DefaultConfig(),
		Matching:       matcher.DefaultMatchingConfig(),
		Exports:        parsers.DefaultExportConfig(),
		ReadWorkers:    4,
		VerifyPairings: true,
	}
}

// Validate checks every section and reports all problems at once
func (c *Config) Validate() error {
	var err error

	if nerr := c.Normalizer.Validate(); nerr != nil {
		err = multierr.Append(err, fmt.Errorf("normalizer: %w", nerr))
	}
	if cerr := c.Classifier.Validate(); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("classifier: %w", cerr))
	}
	if c.Matching == nil {
		err = multierr.Append(err, fmt.Errorf("matching: configuration is required"))
	} else if merr := c.Matching.Validate(); merr != nil {
		err = multierr.Append(err, fmt.Errorf("matching: %w", merr))
	}
	if eerr := c.Exports.Validate(); eerr != nil {
		err = multierr.Append(err, fmt.Errorf("exports: %w", eerr))
	}
	if c.ReadWorkers < 0 {
		err = multierr.Append(err, fmt.Errorf("read workers cannot be negative, got %d", c.ReadWorkers))
	}

	return err
}

// Service wires the pipeline components together. A Service keeps no state
// between runs and may be shared by concurrent callers.
type Service struct {
	config     *Config
	classifier *classifier.Classifier
	engine     *matcher.Engine
	mapper     *parsers.ExportMapper
	logger     logger.Logger
	progress   *progressNotifier
}

// NewService validates config and builds the pipeline. A nil config uses
// DefaultConfig and a nil logger the global one.
func NewService(config *Config, log logger.Logger) (*Service, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if log == nil {
		log = logger.GetGlobalLogger()
	}

	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciler", nil, err).
			WithSuggestion("Review the configuration file and flags")
	}

	norm := normalizer.New(config.Normalizer)
	return &Service{
		config:     config,
		classifier: classifier.New(config.Classifier, norm, log),
		engine:     matcher.NewEngine(config.Matching, log),
		mapper:     parsers.NewExportMapper(config.Exports, norm, log),
		logger:     log.WithComponent("reconciler"),
		progress:   &progressNotifier{},
	}, nil
}

// Config returns the service configuration
func (s *Service) Config() *Config {
	return s.config
}

// AddProgressCallback registers fn to be called after each pipeline stage
func (s *Service) AddProgressCallback(fn ProgressCallback) {
	s.progress.add(fn)
}

// Input holds already parsed records and raw ledger grids
type Input struct {
	Requests []models.Record
	Receipts []models.Record
	Ledgers  []classifier.LedgerFile

	// Sequence issues ids for ledger records; a fresh one is used when nil
	Sequence *models.Sequence
}

// run tracks the stages of one invocation
type run struct {
	service *Service
	started time.Time
	total   int
	stages  []StageTiming
}

func (s *Service) newRun(total int) *run {
	return &run{service: s, started: time.Now(), total: total}
}

// stage runs fn as a named, timed pipeline stage
func (r *run) stage(ctx context.Context, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, name, err).
			WithSuggestion("The run was cancelled before completing")
	}

	elapsed, err := logger.TimedOperation(name, r.service.logger, fn)
	if err != nil {
		err = errors.WrapIfNeeded(err, errors.CategoryInternal, errors.CodeUnexpectedError, "unexpected error during "+name)
	}
	r.stages = append(r.stages, StageTiming{Stage: name, Duration: elapsed})
	r.service.progress.notify(Progress{
		Stage:     name,
		Completed: len(r.stages),
		Total:     r.total,
		Elapsed:   time.Since(r.started),
		Failed:    err != nil,
	})
	return err
}

// Reconcile classifies the ledgers, matches the three families and
// aggregates the result. Input slices are never modified.
func (s *Service) Reconcile(ctx context.Context, in *Input) (*Result, error) {
	return s.reconcile(ctx, in, s.newRun(s.stageCount(0)))
}

func (s *Service) stageCount(extra int) int {
	n := 3 + extra
	if s.config.VerifyPairings {
		n++
	}
	return n
}

func (s *Service) reconcile(ctx context.Context, in *Input, r *run) (*Result, error) {
	if in == nil {
		return nil, errors.ReconciliationError(errors.CodeMissingField, "reconcile", fmt.Errorf("input is required"))
	}

	seq := in.Sequence
	if seq == nil {
		seq = models.NewSequence()
	}

	s.logger.WithFields(logger.Fields{
		"requests": len(in.Requests),
		"receipts": len(in.Receipts),
		"ledgers":  len(in.Ledgers),
	}).Info("Starting conciliation run")

	var batch *classifier.Batch
	err := r.stage(ctx, StageClassify, func() error {
		batch = s.classifier.ClassifyAll(in.Ledgers, seq)
		return nil
	})
	if err != nil {
		return nil, err
	}

	var outcome *matcher.Outcome
	err = r.stage(ctx, StageMatch, func() error {
		outcome = s.engine.Match(in.Requests, in.Receipts, batch.Movements)
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.config.VerifyPairings {
		err = r.stage(ctx, StageVerify, func() error {
			if verr := outcome.Verify(in.Requests, in.Receipts, batch.Movements); verr != nil {
				return errors.ReconciliationError(errors.CodeInconsistentState, StageVerify, verr)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	var result *Result
	err = r.stage(ctx, StageAggregate, func() error {
		result = Aggregate(in.Requests, in.Receipts, batch.Movements, outcome, batch.Transfers, batch.Market)
		result.Discrepancies = Inspect(in.Requests, in.Receipts, batch.Movements)
		return nil
	})
	if err != nil {
		return nil, err
	}

	result.Ledgers = batch.Reports
	summary := result.Summary
	summary.RunID = uuid.NewString()
	summary.GeneratedAt = time.Now()
	summary.ProcessingTime = time.Since(r.started)
	summary.Stages = r.stages
	summary.LedgerFiles = len(batch.Reports)
	summary.SkippedLedgerFiles = len(batch.Failed())
	summary.Discrepancies = len(result.Discrepancies)

	s.logger.WithFields(logger.Fields{
		"run_id":          summary.RunID,
		"requests_full":   summary.Requests.Full,
		"receipts_full":   summary.Receipts.Full,
		"movements_full":  summary.Movements.Full,
		"exact_pairs":     summary.ExactPairs,
		"fallback_pairs":  summary.FallbackPairs,
		"skipped_ledgers": summary.SkippedLedgerFiles,
		"processing_time": summary.ProcessingTime,
	}).Info("Conciliation run completed")

	return result, nil
}

// LedgerSource is a ledger file path and its restricted tag
type LedgerSource struct {
	Path       string
	Restricted bool
}

// FileSet names the files of a file-based run
type FileSet struct {
	Status        string
	Confirmations string
	Receipts      string
	Ledgers       []LedgerSource
}

// Validate checks that the required files are named
func (fs *FileSet) Validate() error {
	var err error
	if strings.TrimSpace(fs.Status) == "" {
		err = multierr.Append(err, fmt.Errorf("status export path is required"))
	}
	if strings.TrimSpace(fs.Receipts) == "" {
		err = multierr.Append(err, fmt.Errorf("receipt export path is required"))
	}
	if len(fs.Ledgers) == 0 {
		err = multierr.Append(err, fmt.Errorf("at least one ledger file is required"))
	}
	for i, l := range fs.Ledgers {
		if strings.TrimSpace(l.Path) == "" {
			err = multierr.Append(err, fmt.Errorf("ledger %d: path is required", i+1))
		}
	}
	return err
}

func (fs *FileSet) paths() []string {
	paths := []string{fs.Status, fs.Receipts}
	if fs.Confirmations != "" {
		paths = append(paths, fs.Confirmations)
	}
	for _, l := range fs.Ledgers {
		paths = append(paths, l.Path)
	}
	return paths
}

// ReconcileFiles reads every file of fs, maps the exports and runs Reconcile.
// A file that cannot be read or an export missing required columns fails the
// run; a ledger missing columns is skipped and reported.
func (s *Service) ReconcileFiles(ctx context.Context, fs *FileSet) (*Result, error) {
	if fs == nil {
		return nil, errors.ReconciliationError(errors.CodeMissingField, "reconcile_files", fmt.Errorf("file set is required"))
	}
	if err := fs.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "files", nil, err).
			WithSuggestion("Provide the status export, the receipt export and at least one ledger")
	}

	r := s.newRun(s.stageCount(2))

	var tables []*parsers.Table
	err := r.stage(ctx, StageRead, func() error {
		var rerr error
		tables, rerr = parsers.ReadTables(ctx, fs.paths(), s.config.ReadWorkers)
		return rerr
	})
	if err != nil {
		return nil, err
	}

	seq := models.NewSequence()
	in := &Input{Sequence: seq}
	var exports []*parsers.ExportReport

	err = r.stage(ctx, StageMap, func() error {
		status, receipts := tables[0], tables[1]
		rest := tables[2:]

		var confirmations map[string]string
		if fs.Confirmations != "" {
			dates, report, merr := s.mapper.Confirmations(rest[0])
			if merr != nil {
				return merr
			}
			confirmations = dates
			exports = append(exports, report)
			rest = rest[1:]
		}

		requests, report, merr := s.mapper.Requests(status, confirmations, seq)
		if merr != nil {
			return merr
		}
		in.Requests = requests
		exports = append(exports, report)

		receiptRecords, report, merr := s.mapper.Receipts(receipts, seq)
		if merr != nil {
			return merr
		}
		in.Receipts = receiptRecords
		exports = append(exports, report)

		in.Ledgers = make([]classifier.LedgerFile, len(rest))
		for i, table := range rest {
			in.Ledgers[i] = classifier.LedgerFile{
				Name:       table.Name,
				Rows:       table.Rows,
				Restricted: fs.Ledgers[i].Restricted,
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	result, err := s.reconcile(ctx, in, r)
	if err != nil {
		return nil, err
	}
	result.Exports = exports
	return result, nil
}

// ClassifyFiles reads and classifies ledger files without matching
func (s *Service) ClassifyFiles(ctx context.Context, ledgers []LedgerSource) (*classifier.Batch, error) {
	if len(ledgers) == 0 {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "ledgers", nil, fmt.Errorf("at least one ledger file is required"))
	}

	paths := make([]string, len(ledgers))
	for i, l := range ledgers {
		paths[i] = l.Path
	}

	r := s.newRun(2)

	var tables []*parsers.Table
	err := r.stage(ctx, StageRead, func() error {
		var rerr error
		tables, rerr = parsers.ReadTables(ctx, paths, s.config.ReadWorkers)
		return rerr
	})
	if err != nil {
		return nil, err
	}

	var batch *classifier.Batch
	err = r.stage(ctx, StageClassify, func() error {
		files := make([]classifier.LedgerFile, len(tables))
		for i, table := range tables {
			files[i] = classifier.LedgerFile{Name: table.Name, Rows: table.Rows, Restricted: ledgers[i].Restricted}
		}
		batch = s.classifier.ClassifyAll(files, models.NewSequence())
		return nil
	})
	if err != nil {
		return nil, err
	}

	return batch, nil
}
