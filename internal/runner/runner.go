// Package runner executes a corpus against the target page and applies the
// strict or exploratory acceptance policy to every observed output.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/singlish-check/internal/browser"
	"github.com/xkilldash9x/singlish-check/internal/corpus"
	"github.com/xkilldash9x/singlish-check/internal/match"
	"github.com/xkilldash9x/singlish-check/internal/script"
)

const (
	artifactTimeout     = 15 * time.Second
	sessionCloseTimeout = 10 * time.Second
)

// Invoker performs one transliteration on a session.
type Invoker interface {
	Invoke(ctx context.Context, s browser.Session, rec corpus.Record) (string, error)
}

// ArtifactSink stores debug artifacts and returns where they went.
type ArtifactSink interface {
	SavePNG(ctx context.Context, scenarioID, reason string, data []byte) (string, error)
}

// Options tune a Runner. Zero values fall back to sensible defaults.
type Options struct {
	Workers         int
	ScenarioTimeout time.Duration
	// Pace is the minimum interval between scenario starts. Zero disables
	// pacing.
	Pace      time.Duration
	Threshold float64
	Target    script.Range
	Sink      ArtifactSink
	TargetURL string
	Driver    string
}

// Runner executes scenarios with a pool of workers, each owning one session.
type Runner struct {
	logger    *zap.Logger
	manager   browser.Manager
	invoker   Invoker
	validator *match.Validator
	opts      Options
	limiter   *rate.Limiter
}

// New builds a runner.
func New(logger *zap.Logger, manager browser.Manager, inv Invoker, opts Options) *Runner {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.ScenarioTimeout <= 0 {
		opts.ScenarioTimeout = time.Minute
	}
	if opts.Target == (script.Range{}) {
		opts.Target = script.Sinhala
	}
	r := &Runner{
		logger:    logger.Named("runner"),
		manager:   manager,
		invoker:   inv,
		validator: match.NewValidator(opts.Threshold),
		opts:      opts,
	}
	if opts.Pace > 0 {
		r.limiter = rate.NewLimiter(rate.Every(opts.Pace), 1)
	}
	return r
}

// Run executes every record of c. Outcomes come back in corpus order
// regardless of worker count. The error is non-nil only when the run could
// not complete, in which case unfinished scenarios are marked CANCELLED.
func (r *Runner) Run(ctx context.Context, c *corpus.Corpus) (*Report, error) {
	records := c.Records()
	report := &Report{
		RunID:     uuid.NewString(),
		Target:    r.opts.TargetURL,
		Driver:    r.opts.Driver,
		StartedAt: time.Now(),
		Outcomes:  make([]Outcome, len(records)),
	}
	log := r.logger.With(zap.String("run_id", report.RunID))
	log.Info("Run started.", zap.Int("scenarios", len(records)), zap.Int("workers", r.opts.Workers))

	workers := min(r.opts.Workers, max(len(records), 1))
	jobs := make(chan int)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for i := range records {
			select {
			case jobs <- i:
			case <-gctx.Done():
				return nil
			}
		}
		return nil
	})

	for w := 0; w < workers; w++ {
		g.Go(func() error {
			return r.worker(gctx, log.With(zap.Int("worker", w)), records, report.Outcomes, jobs)
		})
	}

	err := g.Wait()
	for i, o := range report.Outcomes {
		if o.ScenarioID == "" {
			report.Outcomes[i] = cancelledOutcome(records[i])
		}
	}
	report.FinishedAt = time.Now()

	s := report.Summary()
	log.Info("Run finished.",
		zap.Int("passed", s.Passed),
		zap.Int("failed", s.Failed),
		zap.Duration("duration", report.Duration()),
	)
	if err != nil {
		return report, fmt.Errorf("run %s aborted: %w", report.RunID, err)
	}
	return report, nil
}

// worker owns one session for its whole life. Each index is written by
// exactly one worker, so outcomes needs no lock.
func (r *Runner) worker(ctx context.Context, log *zap.Logger, records []corpus.Record, outcomes []Outcome, jobs <-chan int) error {
	sess, err := r.manager.NewSession(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("open browser session: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), sessionCloseTimeout)
		defer cancel()
		if err := sess.Close(closeCtx); err != nil {
			log.Warn("Failed to close browser session.", zap.Error(err))
		}
	}()

	for i := range jobs {
		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				outcomes[i] = cancelledOutcome(records[i])
				continue
			}
		}
		outcomes[i] = r.runScenario(ctx, log, sess, records[i])
	}
	return nil
}

func cancelledOutcome(rec corpus.Record) Outcome {
	expected, _ := rec.ExpectedOutput()
	return Outcome{
		ScenarioID: rec.ID,
		Name:       rec.Name,
		Kind:       rec.Kind(),
		Input:      rec.Input,
		Expected:   expected,
		Code:       CodeCancelled,
		Err:        "run cancelled before the scenario started",
	}
}

func (r *Runner) runScenario(ctx context.Context, log *zap.Logger, sess browser.Session, rec corpus.Record) (out Outcome) {
	log = log.With(zap.String("scenario", rec.ID))
	expected, _ := rec.ExpectedOutput()
	out = Outcome{
		ScenarioID: rec.ID,
		Name:       rec.Name,
		Kind:       rec.Kind(),
		Input:      rec.Input,
		Expected:   expected,
		StartedAt:  time.Now(),
	}
	defer func() { out.Duration = time.Since(out.StartedAt) }()

	sctx, cancel := context.WithTimeout(ctx, r.opts.ScenarioTimeout)
	actual, err := r.invoker.Invoke(sctx, sess, rec)
	cancel()
	if err != nil {
		out.Code = Classify(err)
		if ctx.Err() != nil {
			out.Code = CodeCancelled
		}
		out.Err = err.Error()
		if out.Code.Hard() {
			out.Artifact = r.captureFailure(ctx, log, sess, rec.ID)
		}
		log.Error("Scenario failed.", zap.String("code", string(out.Code)), zap.Error(err))
		return out
	}
	out.Actual = actual

	if rec.Kind() == corpus.KindStrict {
		r.applyStrict(log, &out, expected)
	} else {
		r.applyExploratory(log, &out, rec)
	}
	return out
}

func (r *Runner) applyStrict(log *zap.Logger, out *Outcome, expected string) {
	res := r.validator.IsAcceptable(out.Actual, expected)
	out.Match = &res
	out.Passed = res.IsMatch
	if out.Passed {
		log.Debug("Scenario passed.", zap.String("strategy", string(res.Strategy)), zap.Float64("score", res.Score))
		return
	}
	err := fmt.Errorf("%w: expected %q, got %q (score %.2f)", ErrValidationMismatch, expected, out.Actual, res.Score)
	out.Code = CodeValidationMismatch
	out.Err = err.Error()
	log.Info("Scenario did not match.", zap.Error(err))
}

// applyExploratory passes on any non-empty output or any true signal.
// Reference mismatches are logged and never fail the scenario.
func (r *Runner) applyExploratory(log *zap.Logger, out *Outcome, rec corpus.Record) {
	anySignal := false
	scope := corpus.SignalScope{Target: r.opts.Target, Validator: r.validator}
	for _, src := range rec.Signals {
		sr := SignalResult{Expr: src}
		sig, err := corpus.CompileSignal(src)
		if err == nil {
			sr.Value, err = sig.Eval(scope, rec, out.Actual)
		}
		if err != nil {
			sr.Err = err.Error()
			log.Warn("Signal could not be evaluated.", zap.String("signal", src), zap.Error(err))
		}
		anySignal = anySignal || sr.Value
		out.Signals = append(out.Signals, sr)
	}

	if reference, ok := rec.ReferenceOutput(); ok {
		res := r.validator.IsAcceptable(out.Actual, reference)
		out.Match = &res
		if !res.IsMatch {
			log.Warn("Exploratory output differs from the reference.",
				zap.String("actual", out.Actual),
				zap.String("reference", reference),
				zap.Float64("score", res.Score),
			)
		}
	}

	out.Passed = strings.TrimSpace(out.Actual) != "" || anySignal
	if !out.Passed {
		out.Code = CodeValidationMismatch
		out.Err = fmt.Errorf("%w: empty output and no signal held", ErrValidationMismatch).Error()
		log.Info("Exploratory scenario produced nothing.")
	}
}

// captureFailure saves a screenshot and returns its location, or "" when
// no sink is configured or the capture failed.
func (r *Runner) captureFailure(ctx context.Context, log *zap.Logger, sess browser.Session, id string) string {
	if r.opts.Sink == nil || errors.Is(ctx.Err(), context.Canceled) {
		return ""
	}
	cctx, cancel := context.WithTimeout(ctx, artifactTimeout)
	defer cancel()

	data, err := sess.Screenshot(cctx)
	if err != nil {
		log.Warn("Failed to capture failure screenshot.", zap.Error(err))
		return ""
	}
	path, err := r.opts.Sink.SavePNG(cctx, id, "failure", data)
	if err != nil {
		log.Warn("Failed to save failure screenshot.", zap.Error(err))
		return ""
	}
	log.Info("Failure screenshot saved.", zap.String("path", path))
	return path
}
