package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/fwmatrix/fwmatrix/pkg/config"
	"github.com/fwmatrix/fwmatrix/pkg/matrix"
	"github.com/fwmatrix/fwmatrix/pkg/telemetry"
	"github.com/fwmatrix/fwmatrix/pkg/toolchain"
)

const defaultWorkers = 4

// Runner executes every valid configuration of a matrix through the
// toolchain invoker and aggregates the outcomes into a run verdict.
type Runner struct {
	cfg      *config.MatrixConfig
	registry *matrix.Registry
	cons     *matrix.Constraints
	tol      *matrix.Tolerance
	features *matrix.FeatureBuilder
	invoker  toolchain.Invoker
	reporter *Reporter
	store    Store
	filters  []matrix.Filter
	logger   zerolog.Logger

	mu       sync.Mutex
	outcomes []Outcome
}

// Option customizes a Runner.
type Option func(*Runner)

// WithStore persists the run and its outcomes.
func WithStore(store Store) Option {
	return func(r *Runner) { r.store = store }
}

// WithReporter replaces the default log-backed reporter.
func WithReporter(reporter *Reporter) Option {
	return func(r *Runner) { r.reporter = reporter }
}

// WithFilters appends resolver filters (policy denials and the like).
func WithFilters(filters ...matrix.Filter) Option {
	return func(r *Runner) { r.filters = append(r.filters, filters...) }
}

// New builds a runner from a validated matrix configuration.
func New(logger zerolog.Logger, cfg *config.MatrixConfig, invoker toolchain.Invoker, opts ...Option) (*Runner, error) {
	reg, cons, tol, fb, err := cfg.ToModel()
	if err != nil {
		return nil, NewConfigError("matrix configuration is unusable", err)
	}
	if invoker == nil {
		return nil, NewConfigError("no toolchain invoker configured", nil)
	}

	r := &Runner{
		cfg:      cfg,
		registry: reg,
		cons:     cons,
		tol:      tol,
		features: fb,
		invoker:  invoker,
		logger:   logger.With().Str("component", "runner").Str("matrix", cfg.Name).Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.reporter == nil {
		r.reporter = NewReporter(logger, cfg.Check.PathRewrite, NewLogPublisher(logger))
	}
	return r, nil
}

// Resolve returns the valid configurations without running any checks.
func (r *Runner) Resolve() []matrix.Configuration {
	return matrix.ResolveAll(r.registry, r.cons, r.filters...)
}

// resolveCounted resolves under a tracing span and reports how many
// candidates each filtering layer removed.
func (r *Runner) resolveCounted(ctx context.Context) (configs []matrix.Configuration, byTable, byPolicy int) {
	if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
		_, span := tel.Tracer.StartResolveSpan(ctx, r.cfg.Name)
		defer span.End()
	}

	raw := 1
	for _, a := range r.registry.Axes() {
		raw *= len(a.Members)
	}

	survived := matrix.ResolveAll(r.registry, r.cons)
	byTable = raw - len(survived)

	configs = survived
	if len(r.filters) > 0 {
		configs = configs[:0:0]
	next:
		for _, c := range survived {
			for _, f := range r.filters {
				if !f(c) {
					continue next
				}
			}
			configs = append(configs, c)
		}
	}
	byPolicy = len(survived) - len(configs)
	return configs, byTable, byPolicy
}

// Run checks every valid configuration and returns the finished run and
// its outcomes. The returned error is non-nil only for infrastructure
// failures; failed checks are expressed through the run verdict.
func (r *Runner) Run(ctx context.Context) (*Run, []Outcome, error) {
	configs, excludedByTable, excludedByPolicy := r.resolveCounted(ctx)

	run := &Run{
		ID:        uuid.New().String(),
		Matrix:    r.cfg.Name,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
		Summary:   Summary{Total: len(configs), Pending: len(configs)},
	}

	ctx = telemetry.WithRunContext(ctx, run.ID, r.cfg.Name, len(configs))
	if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
		for _, c := range configs {
			mcu, _ := c.Value(r.outerAxis())
			tel.Metrics.RecordConfigResolved(mcu)
		}
		tel.Metrics.RecordConfigExcluded("table", excludedByTable)
		tel.Metrics.RecordConfigExcluded("policy", excludedByPolicy)
		tel.Metrics.SetQueuedConfigs(float64(len(configs)))
		_ = tel.Events.PublishMatrixResolved(run.ID, r.cfg.Name, len(configs), excludedByTable+excludedByPolicy)
	}

	r.logger.Info().
		Str("run_id", run.ID).
		Int("configurations", len(configs)).
		Msg("run started")

	if r.store != nil {
		if err := r.store.SaveRun(ctx, run); err != nil {
			return nil, nil, NewConfigError("failed to save run", err)
		}
	}

	firstErr := r.executeAll(ctx, run.ID, configs)

	r.mu.Lock()
	outcomes := make([]Outcome, len(r.outcomes))
	copy(outcomes, r.outcomes)
	r.mu.Unlock()

	run.Summary = summarize(len(configs), outcomes)
	completed := time.Now()
	run.CompletedAt = &completed
	run.Duration = completed.Sub(run.StartedAt)

	if firstErr != nil {
		run.Status = RunStatusFailed
	} else {
		run.Status = run.Summary.Verdict()
	}

	telemetry.EndRunContext(ctx, run.ID, string(run.Status), firstErr)

	if r.store != nil {
		if err := r.store.SaveRun(ctx, run); err != nil {
			r.logger.Error().Err(err).Str("run_id", run.ID).Msg("failed to save final run state")
		}
	}

	r.logger.Info().
		Str("run_id", run.ID).
		Str("status", string(run.Status)).
		Int("passed", run.Summary.Passed).
		Int("failed_fatal", run.Summary.FailedFatal).
		Int("failed_tolerated", run.Summary.FailedTolerated).
		Dur("duration", run.Duration).
		Msg("run finished")

	return run, outcomes, firstErr
}

// executeAll fans the configurations out over the worker pool. The first
// infrastructure error cancels the remaining work.
func (r *Runner) executeAll(ctx context.Context, runID string, configs []matrix.Configuration) error {
	workers := r.cfg.Check.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	if len(configs) < workers {
		workers = len(configs)
	}

	work := make(chan matrix.Configuration, len(configs))
	for _, c := range configs {
		work <- c
	}
	close(work)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errChan := make(chan error, len(configs))

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for c := range work {
				select {
				case <-runCtx.Done():
					return
				default:
				}

				if err := r.checkOne(runCtx, runID, c); err != nil {
					errChan <- err
					cancel()
					return
				}
			}
		}()
	}

	wg.Wait()
	close(errChan)

	var firstErr error
	for err := range errChan {
		if firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// checkOne runs the toolchain for a single configuration and records its
// outcome. A non-nil return is an infrastructure failure.
func (r *Runner) checkOne(ctx context.Context, runID string, c matrix.Configuration) error {
	target, ok := c.DerivedValue(r.cfg.Check.TargetDerivedName())
	if !ok {
		return NewConfigError(
			fmt.Sprintf("configuration has no %q derived attribute", r.cfg.Check.TargetDerivedName()), nil).
			WithConfig(c.ID())
	}
	variant, _ := c.DerivedValue(r.cfg.Check.ToolchainDerivedName())
	mcu, _ := c.Value(r.outerAxis())
	fs := r.features.Build(c)

	inv := toolchain.Invocation{
		Config:    c,
		Features:  fs,
		Target:    target,
		Toolchain: variant,
		WorkDir:   r.cfg.Check.WorkDir,
		Timeout:   r.cfg.Check.Timeout(),
	}

	checkCtx := telemetry.WithCheckContext(ctx, runID, c.ID(), target, variant)

	out, err := r.invoker.Check(checkCtx, inv)
	if err != nil {
		telemetry.EndCheckContext(checkCtx, runID, c.ID(), mcu, variant, "errored", false, err)
		return NewBuildFailure("toolchain invocation failed", err).
			WithConfig(c.ID()).
			WithOp("check")
	}

	tolerated := r.tol.IsTolerated(c)
	status := StatusPassed
	if !out.Succeeded() {
		if tolerated {
			status = StatusFailedTolerated
		} else {
			status = StatusFailedFatal
		}
	}

	outcome := Outcome{
		ID:         uuid.New().String(),
		RunID:      runID,
		ConfigID:   c.ID(),
		FeatureKey: fs.Key(),
		Status:     status,
		MCU:        mcu,
		Target:     target,
		Toolchain:  variant,
		ExitCode:   out.ExitCode,
		StartedAt:  out.StartedAt,
		Duration:   out.Duration,
	}

	// Findings are published only when the step produced output.
	if out.RawOutput != "" {
		rewritten, repErr := r.reporter.Report(ctx, runID, fs.Key(), out.Findings)
		outcome.Findings = rewritten
		if repErr != nil {
			r.logger.Error().Err(repErr).Str("config", c.ID()).Msg("reporting failed")
			if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
				tel.Metrics.RecordReportingError("publish")
				_ = tel.Events.PublishReportingError(runID, c.ID(), repErr.Error())
			}
		}
		if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
			for level, n := range toolchain.CountByLevel(out.Findings) {
				tel.Metrics.RecordFindings(string(level), n)
			}
		}
	}

	r.mu.Lock()
	r.outcomes = append(r.outcomes, outcome)
	r.mu.Unlock()

	if r.store != nil {
		if err := r.store.SaveOutcome(ctx, &outcome); err != nil {
			r.logger.Error().Err(err).Str("config", c.ID()).Msg("failed to persist outcome")
			if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
				tel.Metrics.RecordReportingError("store")
			}
		}
	}

	telemetry.EndCheckContext(checkCtx, runID, c.ID(), mcu, variant, string(status), tolerated, nil)

	evt := r.logger.Info()
	if status == StatusFailedFatal {
		evt = r.logger.Error()
	} else if status == StatusFailedTolerated {
		evt = r.logger.Warn()
	}
	evt.
		Str("run_id", runID).
		Str("config", c.ID()).
		Str("status", string(status)).
		Int("exit_code", out.ExitCode).
		Int("findings", len(out.Findings)).
		Dur("duration", out.Duration).
		Msg("check finished")

	return nil
}

// outerAxis is the first declared axis (the MCU axis by convention).
func (r *Runner) outerAxis() string {
	axes := r.registry.Axes()
	if len(axes) == 0 {
		return ""
	}
	return axes[0].Name
}

// summarize folds outcomes into a run summary.
func summarize(total int, outcomes []Outcome) Summary {
	s := Summary{Total: total}
	for _, o := range outcomes {
		switch o.Status {
		case StatusPassed:
			s.Passed++
		case StatusFailedFatal:
			s.FailedFatal++
		case StatusFailedTolerated:
			s.FailedTolerated++
		}
	}
	s.Pending = total - len(outcomes)
	return s
}
