package backfill

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/product-directory/internal/metrics"
)

// Default pacing values between processed records.
const (
	DefaultPacing           = 200 * time.Millisecond
	DefaultRateLimitBackoff = 5 * time.Second
)

// Config controls Runner behavior.
type Config struct {
	Fields           FieldNames
	Pacing           time.Duration
	RateLimitBackoff time.Duration
	// DryRun skips write-back and event publishing. Uploads still go to the runner's
	// ImageHost, which the app swaps for an in-memory host in dry-run mode.
	DryRun bool
	// Topic is the publish topic for logo-updated events; empty disables publishing.
	Topic string
}

// Option configures optional Runner collaborators.
type Option func(*Runner)

// WithRecorder attaches an audit trail for outcomes and run summaries.
func WithRecorder(recorder OutcomeRecorder) Option {
	return func(r *Runner) { r.recorder = recorder }
}

// WithPublisher attaches a publisher for logo-updated events.
func WithPublisher(publisher Publisher) Option {
	return func(r *Runner) { r.publisher = publisher }
}

// Runner executes one backfill pass over the record store.
type Runner struct {
	store     RecordStore
	lookup    LogoLookup
	host      ImageHost
	sleeper   Sleeper
	clock     Clock
	ids       IDGenerator
	recorder  OutcomeRecorder
	publisher Publisher
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Runner.
func New(
	store RecordStore,
	lookup LogoLookup,
	host ImageHost,
	sleeper Sleeper,
	clock Clock,
	ids IDGenerator,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Fields.Website == "" {
		cfg.Fields.Website = DefaultFieldNames().Website
	}
	if cfg.Fields.Logo == "" {
		cfg.Fields.Logo = DefaultFieldNames().Logo
	}
	r := &Runner{
		store:   store,
		lookup:  lookup,
		host:    host,
		sleeper: sleeper,
		clock:   clock,
		ids:     ids,
		cfg:     cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunOnce lists every record and backfills the eligible ones sequentially.
// Only a listing failure is returned as an error; per-record failures are counted.
// A canceled context stops the loop between records and returns the partial summary.
func (r *Runner) RunOnce(ctx context.Context) (Summary, error) {
	runID, err := r.ids.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	summary := Summary{RunID: runID, StartedAt: r.clock.Now()}
	logger := r.logger.With(zap.String("run_id", runID))
	logger.Info("starting logo backfill", zap.Bool("dry_run", r.cfg.DryRun))

	records, err := r.store.List(ctx)
	if err != nil {
		return summary, fmt.Errorf("list records: %w", err)
	}
	summary.Total = len(records)
	logger.Info("listed records", zap.Int("total", summary.Total))

	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			summary.FinishedAt = r.clock.Now()
			return summary, fmt.Errorf("backfill interrupted: %w", err)
		}
		if _, dup := seen[rec.ID]; dup || !IsEligible(rec, r.cfg.Fields) {
			summary.Skipped++
			metrics.ObserveRecord("skipped")
			continue
		}
		seen[rec.ID] = struct{}{}

		summary.Processed++
		outcome := r.processRecord(ctx, runID, summary.Processed, rec)
		if outcome.Succeeded {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		r.recordOutcome(ctx, outcome)

		if err := r.pause(ctx, outcome, logger); err != nil {
			summary.FinishedAt = r.clock.Now()
			return summary, fmt.Errorf("backfill interrupted: %w", err)
		}
	}

	summary.FinishedAt = r.clock.Now()
	r.recordSummary(ctx, summary)
	logger.Info("logo backfill complete",
		zap.Int("total", summary.Total),
		zap.Int("skipped", summary.Skipped),
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
	)
	return summary, nil
}

func (r *Runner) processRecord(ctx context.Context, runID string, seq int, rec Record) Outcome {
	domain := DeriveKey(rec.String(r.cfg.Fields.Website))
	outcome := Outcome{
		RunID:     runID,
		RecordID:  rec.ID,
		Domain:    domain,
		Stage:     StageEligible,
		StartedAt: r.clock.Now(),
	}
	logger := r.logger.With(
		zap.String("run_id", runID),
		zap.Int("seq", seq),
		zap.String("record_id", rec.ID),
		zap.String("domain", domain),
	)
	logger.Info("processing record")

	hostedURL, stage, err := r.runPipeline(ctx, rec.ID, domain, logger)
	outcome.Stage = stage
	outcome.FinishedAt = r.clock.Now()
	if err != nil {
		outcome.Err = err
		outcome.Failure = Classify(err)
		r.logFailure(logger, outcome)
		metrics.ObserveRecord("failed")
		metrics.ObserveFailure(string(outcome.Failure))
		return outcome
	}

	outcome.Succeeded = true
	outcome.HostedURL = hostedURL
	metrics.ObserveRecord("succeeded")
	r.publishResult(ctx, outcome, logger)
	return outcome
}

// runPipeline walks Fetching -> Validating -> Uploading -> WritingBack and returns the
// stage it stopped at.
func (r *Runner) runPipeline(ctx context.Context, recordID, domain string, logger *zap.Logger) (string, Stage, error) {
	if domain == "" {
		return "", StageFetching, ErrNoDomain
	}

	start := r.clock.Now()
	img, err := r.lookup.Lookup(ctx, domain)
	metrics.ObserveStep(string(StageFetching), r.clock.Now().Sub(start))
	if err != nil {
		return "", StageFetching, fmt.Errorf("fetch logo: %w", err)
	}

	if !img.IsImage() {
		return "", StageValidating, fmt.Errorf("validate %q: %w", img.ContentType, ErrNotImage)
	}

	start = r.clock.Now()
	hostedURL, err := r.host.Upload(ctx, img, domain)
	metrics.ObserveStep(string(StageUploading), r.clock.Now().Sub(start))
	if err != nil {
		return "", StageUploading, fmt.Errorf("upload logo: %w", err)
	}
	logger.Info("uploaded logo", zap.String("hosted_url", hostedURL))

	if r.cfg.DryRun {
		logger.Info("dry run; record left unchanged")
		return hostedURL, StageDone, nil
	}

	start = r.clock.Now()
	err = r.store.UpdateLogo(ctx, recordID, []Attachment{{URL: hostedURL}})
	metrics.ObserveStep(string(StageWritingBack), r.clock.Now().Sub(start))
	if err != nil {
		return "", StageWritingBack, fmt.Errorf("write back logo: %w", err)
	}
	logger.Info("updated record")
	return hostedURL, StageDone, nil
}

func (r *Runner) logFailure(logger *zap.Logger, outcome Outcome) {
	fields := []zap.Field{
		zap.String("stage", string(outcome.Stage)),
		zap.String("failure", string(outcome.Failure)),
		zap.Error(outcome.Err),
	}
	switch outcome.Failure {
	case FailureNotFound:
		logger.Info("no logo available for this domain", fields...)
	case FailureRateLimited:
		logger.Warn("rate limited", fields...)
	default:
		logger.Error("record failed", fields...)
	}
}

func (r *Runner) pause(ctx context.Context, outcome Outcome, logger *zap.Logger) error {
	delay := r.cfg.Pacing
	if outcome.Failure == FailureRateLimited && r.cfg.RateLimitBackoff > delay {
		delay = r.cfg.RateLimitBackoff
		metrics.ObserveRateLimitBackoff()
		logger.Info("backing off after rate limit", zap.Duration("delay", delay))
	}
	if delay <= 0 {
		return nil
	}
	if err := r.sleeper.Sleep(ctx, delay); err != nil {
		return fmt.Errorf("sleep: %w", err)
	}
	return nil
}

func (r *Runner) recordOutcome(ctx context.Context, outcome Outcome) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordOutcome(ctx, outcome); err != nil {
		r.logger.Warn("record outcome failed",
			zap.String("run_id", outcome.RunID),
			zap.String("record_id", outcome.RecordID),
			zap.Error(err),
		)
	}
}

func (r *Runner) recordSummary(ctx context.Context, summary Summary) {
	if r.recorder == nil {
		return
	}
	if err := r.recorder.RecordSummary(ctx, summary); err != nil {
		r.logger.Warn("record summary failed", zap.String("run_id", summary.RunID), zap.Error(err))
	}
}

func (r *Runner) publishResult(ctx context.Context, outcome Outcome, logger *zap.Logger) {
	if r.cfg.Topic == "" || r.publisher == nil || r.cfg.DryRun {
		return
	}
	payload := map[string]any{
		"run_id":    outcome.RunID,
		"record_id": outcome.RecordID,
		"domain":    outcome.Domain,
		"logo_url":  outcome.HostedURL,
		"timestamp": outcome.FinishedAt.Format(time.RFC3339),
	}
	id, err := r.publisher.Publish(ctx, r.cfg.Topic, payload)
	if err != nil {
		logger.Warn("publish logo event failed", zap.Error(err))
		return
	}
	logger.Debug("logo event published", zap.String("message_id", id))
}
