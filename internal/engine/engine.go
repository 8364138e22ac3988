// Package engine runs registered source adapters, normalizes their output
// and persists new records, isolating every adapter's failure from the rest
// of the run.
package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/realtime-content-feed/internal/feed"
	"github.com/JakeFAU/realtime-content-feed/internal/metrics"
	"github.com/JakeFAU/realtime-content-feed/internal/normalize"
)

// State is the engine lifecycle state.
type State string

// Engine states. A run moves IDLE -> RUNNING -> SUCCEEDED|PARTIALLY_FAILED
// and the engine returns to IDLE once the run is reported.
const (
	StateIdle            State = "IDLE"
	StateRunning         State = "RUNNING"
	StateSucceeded       State = "SUCCEEDED"
	StatePartiallyFailed State = "PARTIALLY_FAILED"
)

// ErrRunInProgress is returned when RunAll is called during another run.
var ErrRunInProgress = errors.New("aggregation run already in progress")

// Store is the persistence the engine writes to.
type Store interface {
	InsertIfAbsent(ctx context.Context, rec feed.Record) (bool, error)
	AppendRunLog(ctx context.Context, entry feed.RunLogEntry) error
}

// Normalizer converts raw candidates into records.
type Normalizer interface {
	Normalize(raw feed.RawCandidate) (feed.Record, error)
}

// Config tunes run execution.
type Config struct {
	// Concurrency > 1 runs adapters on a bounded pool; otherwise sequentially.
	Concurrency int
	// AdapterTimeout bounds each adapter's Fetch when > 0.
	AdapterTimeout time.Duration
	// ArchivePrefix is the blob path prefix for raw candidate dumps.
	ArchivePrefix string
	// NotifyTopic receives one message per newly ingested record.
	NotifyTopic string
}

// AdapterOutcome summarizes one adapter invocation within a run.
type AdapterOutcome struct {
	Source   string          `json:"source"`
	Outcome  feed.RunOutcome `json:"outcome"`
	Fetched  int             `json:"fetched"`
	Ingested int             `json:"ingested"`
	Skipped  int             `json:"skipped"`
	Message  string          `json:"message,omitempty"`
	Duration time.Duration   `json:"duration"`
}

// Report is the result of one run. Ingested counts new records only; the
// per-adapter outcomes tell "nothing new" apart from "every adapter failed".
type Report struct {
	State      State            `json:"state"`
	Ingested   int              `json:"ingested"`
	Records    []feed.Record    `json:"-"`
	Outcomes   []AdapterOutcome `json:"outcomes"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
}

// Option customizes an Engine.
type Option func(*Engine)

// WithArchive dumps each adapter's raw candidates to the blob store, naming
// each dump by its content digest.
func WithArchive(blobs feed.BlobStore, hasher feed.Hasher) Option {
	return func(e *Engine) {
		e.archive = blobs
		e.hasher = hasher
	}
}

// WithPublisher announces newly ingested records.
func WithPublisher(pub feed.Publisher) Option {
	return func(e *Engine) { e.publisher = pub }
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(e *Engine) { e.tracer = tp.Tracer(tracerName) }
}

const tracerName = "github.com/JakeFAU/realtime-content-feed/internal/engine"

// Engine owns the ordered adapter registry and executes runs.
type Engine struct {
	store      Store
	normalizer Normalizer
	ids        feed.IDGenerator
	clock      feed.Clock
	cfg        Config
	logger     *zap.Logger
	archive    feed.BlobStore
	hasher     feed.Hasher
	publisher  feed.Publisher
	tracer     trace.Tracer

	mu       sync.Mutex
	adapters []feed.Adapter
	state    State
	last     *Report
}

// New constructs an Engine.
func New(
	st Store,
	normalizer Normalizer,
	ids feed.IDGenerator,
	clock feed.Clock,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ArchivePrefix == "" {
		cfg.ArchivePrefix = "raw"
	}
	e := &Engine{
		store:      st,
		normalizer: normalizer,
		ids:        ids,
		clock:      clock,
		cfg:        cfg,
		logger:     logger.Named("engine"),
		state:      StateIdle,
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Register appends adapters to the registry. Runs invoke them in
// registration order.
func (e *Engine) Register(adapters ...feed.Adapter) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.adapters = append(e.adapters, adapters...)
}

// Adapters returns the registered adapter names in order.
func (e *Engine) Adapters() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	names := make([]string, 0, len(e.adapters))
	for _, a := range e.adapters {
		names = append(names, a.Name())
	}
	return names
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// LastReport returns the most recent finished run, if any.
func (e *Engine) LastReport() (Report, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return Report{}, false
	}
	return *e.last, true
}

// RunAll executes one run across every registered adapter. Adapter failures
// are recorded as ERROR run-log entries and never abort the run. The returned
// error is non-nil only when the run could not start or its run log could not
// be written; the report is valid in the latter case.
func (e *Engine) RunAll(ctx context.Context) (Report, error) {
	e.mu.Lock()
	if e.state == StateRunning {
		e.mu.Unlock()
		return Report{}, ErrRunInProgress
	}
	if err := ctx.Err(); err != nil {
		e.mu.Unlock()
		return Report{}, fmt.Errorf("start run: %w", err)
	}
	e.state = StateRunning
	adapters := append([]feed.Adapter(nil), e.adapters...)
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.state = StateIdle
		e.mu.Unlock()
		metrics.SetRunning(false)
	}()

	ctx, span := e.tracer.Start(ctx, "engine.run", trace.WithAttributes(attribute.Int("feed.adapters", len(adapters))))
	defer span.End()

	metrics.SetRunning(true)
	report := Report{StartedAt: e.clock.Now()}
	e.logger.Info("run started", zap.Int("adapters", len(adapters)), zap.Int("concurrency", e.cfg.Concurrency))

	var results []adapterResult
	if e.cfg.Concurrency > 1 && len(adapters) > 1 {
		results = e.runPool(ctx, adapters)
	} else {
		results = make([]adapterResult, 0, len(adapters))
		for _, a := range adapters {
			results = append(results, e.runAdapter(ctx, a))
		}
	}

	// Log entries follow registration order in both modes.
	var logErrs []error
	report.State = StateSucceeded
	for _, res := range results {
		report.Outcomes = append(report.Outcomes, res.outcome)
		report.Records = append(report.Records, res.records...)
		report.Ingested += res.outcome.Ingested
		if res.outcome.Outcome == feed.OutcomeError {
			report.State = StatePartiallyFailed
		}
		if err := e.appendLog(ctx, res.outcome); err != nil {
			logErrs = append(logErrs, err)
		}
	}
	report.FinishedAt = e.clock.Now()
	span.SetAttributes(attribute.String("feed.state", string(report.State)), attribute.Int("feed.ingested", report.Ingested))

	metrics.ObserveRun(string(report.State))
	e.logger.Info("run finished",
		zap.String("state", string(report.State)),
		zap.Int("ingested", report.Ingested),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)

	e.mu.Lock()
	e.last = &report
	e.mu.Unlock()

	if len(logErrs) > 0 {
		return report, fmt.Errorf("write run log: %w", errors.Join(logErrs...))
	}
	return report, nil
}

type adapterResult struct {
	outcome AdapterOutcome
	records []feed.Record
}

// runPool executes adapters on at most cfg.Concurrency goroutines. Results
// keep registration order.
func (e *Engine) runPool(ctx context.Context, adapters []feed.Adapter) []adapterResult {
	results := make([]adapterResult, len(adapters))
	sem := make(chan struct{}, e.cfg.Concurrency)
	var wg sync.WaitGroup
	for i, a := range adapters {
		wg.Add(1)
		go func(idx int, ad feed.Adapter) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[idx] = e.runAdapter(ctx, ad)
		}(i, a)
	}
	wg.Wait()
	return results
}

// runAdapter fetches, normalizes and persists one adapter's output. A panic
// anywhere in that chain becomes an ERROR outcome for this adapter only.
func (e *Engine) runAdapter(ctx context.Context, a feed.Adapter) (res adapterResult) {
	name := a.Name()
	logger := e.logger.With(zap.String("source", name))
	ctx, span := e.tracer.Start(ctx, "engine.adapter", trace.WithAttributes(attribute.String("feed.source", name)))
	start := time.Now()
	res = adapterResult{outcome: AdapterOutcome{Source: name, Outcome: feed.OutcomeSuccess}}
	defer func() {
		if r := recover(); r != nil {
			logger.Error("adapter panic", zap.Any("panic", r))
			res.outcome.Outcome = feed.OutcomeError
			res.outcome.Message = fmt.Sprintf("adapter panic: %v", r)
		}
		res.outcome.Duration = time.Since(start)
		metrics.ObserveAdapter(name, string(res.outcome.Outcome), res.outcome.Ingested, res.outcome.Skipped, res.outcome.Duration)
		span.SetAttributes(
			attribute.Int("feed.fetched", res.outcome.Fetched),
			attribute.Int("feed.ingested", res.outcome.Ingested),
			attribute.Int("feed.skipped", res.outcome.Skipped),
		)
		if res.outcome.Outcome == feed.OutcomeError {
			span.SetStatus(codes.Error, res.outcome.Message)
		}
		span.End()
	}()

	candidates, err := e.fetch(ctx, a)
	if err != nil && len(candidates) > 0 && errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("adapter timed out, keeping partial results", zap.Int("candidates", len(candidates)), zap.Error(err))
		err = nil
	}
	if err != nil {
		logger.Warn("adapter failed", zap.Error(err))
		res.outcome.Outcome = feed.OutcomeError
		res.outcome.Message = err.Error()
		return res
	}
	res.outcome.Fetched = len(candidates)
	e.archiveRaw(ctx, name, candidates, logger)

	for _, raw := range candidates {
		rec, err := e.normalizer.Normalize(raw)
		if err != nil {
			res.outcome.Skipped++
			if errors.Is(err, normalize.ErrInvalidCandidate) {
				logger.Debug("candidate dropped", zap.String("url", raw.URL), zap.Error(err))
			} else {
				logger.Warn("normalize candidate", zap.String("url", raw.URL), zap.Error(err))
			}
			continue
		}
		inserted, err := e.store.InsertIfAbsent(ctx, rec)
		if err != nil {
			logger.Error("persist record", zap.String("url", rec.URL), zap.Error(err))
			res.outcome.Outcome = feed.OutcomeError
			res.outcome.Message = fmt.Sprintf("persist record: %v", err)
			return res
		}
		if !inserted {
			res.outcome.Skipped++
			continue
		}
		res.outcome.Ingested++
		res.records = append(res.records, rec)
		e.notify(ctx, rec, logger)
	}
	res.outcome.Message = fmt.Sprintf("Scraped %d items", res.outcome.Ingested)
	logger.Info("adapter finished",
		zap.Int("fetched", res.outcome.Fetched),
		zap.Int("ingested", res.outcome.Ingested),
		zap.Int("skipped", res.outcome.Skipped),
	)
	return res
}

// fetch calls the adapter under the per-adapter timeout.
func (e *Engine) fetch(ctx context.Context, a feed.Adapter) ([]feed.RawCandidate, error) {
	if e.cfg.AdapterTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.AdapterTimeout)
		defer cancel()
	}
	return a.Fetch(ctx)
}

func (e *Engine) appendLog(ctx context.Context, out AdapterOutcome) error {
	id, err := e.ids.NewID()
	if err != nil {
		return fmt.Errorf("run log id: %w", err)
	}
	entry := feed.RunLogEntry{
		ID:        id,
		Source:    out.Source,
		Outcome:   out.Outcome,
		Message:   out.Message,
		Count:     out.Ingested,
		CreatedAt: e.clock.Now(),
	}
	if err := e.store.AppendRunLog(ctx, entry); err != nil {
		e.logger.Error("append run log", zap.String("source", out.Source), zap.Error(err))
		return err
	}
	return nil
}

func (e *Engine) archiveRaw(ctx context.Context, source string, candidates []feed.RawCandidate, logger *zap.Logger) {
	if e.archive == nil || e.hasher == nil || len(candidates) == 0 {
		return
	}
	body, err := json.Marshal(candidates)
	if err != nil {
		logger.Warn("encode raw candidates", zap.Error(err))
		return
	}
	digest, err := e.hasher.Hash(body)
	if err != nil {
		logger.Warn("hash raw candidates", zap.Error(err))
		return
	}
	path := ArchivePath(e.cfg.ArchivePrefix, source, e.clock.Now(), digest)
	uri, err := e.archive.PutObject(ctx, path, "application/json", bytes.NewReader(body))
	if err != nil {
		logger.Warn("archive raw candidates", zap.Error(err))
		return
	}
	logger.Debug("raw candidates archived", zap.String("uri", uri))
}

func (e *Engine) notify(ctx context.Context, rec feed.Record, logger *zap.Logger) {
	if e.publisher == nil || e.cfg.NotifyTopic == "" {
		return
	}
	if _, err := e.publisher.Publish(ctx, e.cfg.NotifyTopic, rec); err != nil {
		logger.Warn("publish ingest notification", zap.String("url", rec.URL), zap.Error(err))
	}
}

// ArchivePath builds the blob path for one adapter's raw output. Identical
// dumps on the same day share a path.
func ArchivePath(prefix, source string, at time.Time, digest string) string {
	return fmt.Sprintf("%s/%s/%s/%s.json", prefix, source, at.UTC().Format("2006-01-02"), digest)
}
