package runner

import (
	"context"
	"strings"

	"github.com/rs/zerolog"

	"github.com/fwmatrix/fwmatrix/pkg/config"
	"github.com/fwmatrix/fwmatrix/pkg/toolchain"
)

// Reporter rewrites finding paths to the public repository-relative
// layout and publishes them keyed by feature-set key. Reporting failures
// are surfaced as classified errors for the caller to log; they never
// change a check outcome.
type Reporter struct {
	rewrite   config.RewriteConfig
	publisher Publisher
	logger    zerolog.Logger
}

// NewReporter creates a reporter with the given path rewrite rule.
func NewReporter(logger zerolog.Logger, rewrite config.RewriteConfig, publisher Publisher) *Reporter {
	return &Reporter{
		rewrite:   rewrite,
		publisher: publisher,
		logger:    logger.With().Str("component", "reporter").Logger(),
	}
}

// RewritePath applies the fixed prefix substitution to a finding path.
// Paths outside the prefix pass through unchanged.
func (r *Reporter) RewritePath(path string) string {
	if r.rewrite.From == "" || !strings.HasPrefix(path, r.rewrite.From) {
		return path
	}
	return r.rewrite.To + strings.TrimPrefix(path, r.rewrite.From)
}

// Rewrite returns a copy of the findings with rewritten file paths.
func (r *Reporter) Rewrite(findings []toolchain.Finding) []toolchain.Finding {
	if len(findings) == 0 {
		return nil
	}
	out := make([]toolchain.Finding, len(findings))
	for i, f := range findings {
		f.File = r.RewritePath(f.File)
		out[i] = f
	}
	return out
}

// Report rewrites and publishes findings for one configuration.
func (r *Reporter) Report(ctx context.Context, runID, featureKey string, findings []toolchain.Finding) ([]toolchain.Finding, error) {
	rewritten := r.Rewrite(findings)

	if r.publisher == nil {
		return rewritten, nil
	}
	if err := r.publisher.Publish(ctx, runID, featureKey, rewritten); err != nil {
		return rewritten, NewReportingError("failed to publish findings", err).
			WithConfig(featureKey).
			WithOp("publish")
	}

	r.logger.Debug().
		Str("run_id", runID).
		Str("feature_key", featureKey).
		Int("findings", len(rewritten)).
		Msg("findings published")
	return rewritten, nil
}

// LogPublisher writes findings to the structured log. It is the default
// publisher when no store-backed one is configured.
type LogPublisher struct {
	logger zerolog.Logger
}

// NewLogPublisher creates a log-backed publisher.
func NewLogPublisher(logger zerolog.Logger) *LogPublisher {
	return &LogPublisher{logger: logger.With().Str("component", "findings").Logger()}
}

// Publish implements Publisher.
func (p *LogPublisher) Publish(_ context.Context, runID, featureKey string, findings []toolchain.Finding) error {
	for _, f := range findings {
		evt := p.logger.Info()
		if f.Level == toolchain.LevelError {
			evt = p.logger.Error()
		} else if f.Level == toolchain.LevelWarning {
			evt = p.logger.Warn()
		}
		evt.
			Str("run_id", runID).
			Str("feature_key", featureKey).
			Str("file", f.File).
			Int("line", f.Line).
			Str("code", f.Code).
			Msg(f.Message)
	}
	return nil
}
