// Package runner implements the Task Runner (component C7): one goroutine
// per active task, woken on that task's own cron schedule, that fetches
// the task descriptor, compiles and evaluates its query, and hands the
// result to the Page Writer.
//
// Grounded on original_source/src/routine/taskrunner.rs: the alignment
// rule (the first tick after Start computes the next fire time but never
// executes immediately), the 10-minute backoff on fetch/schedule
// failures, and per-cycle timeout via context. The Page Writer is invoked
// once per OutputFormat entry on every cycle, success or failure alike,
// per pagewriter.rs's always-write guarantee.
package runner

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/milkydeferwm/pagelist-bot/internal/config"
	"github.com/milkydeferwm/pagelist-bot/internal/evaluator"
	"github.com/milkydeferwm/pagelist-bot/internal/logging"
	"github.com/milkydeferwm/pagelist-bot/internal/metrics"
	"github.com/milkydeferwm/pagelist-bot/internal/optimizer"
	"github.com/milkydeferwm/pagelist-bot/internal/parser"
	"github.com/milkydeferwm/pagelist-bot/internal/title"
	"github.com/milkydeferwm/pagelist-bot/internal/writer"
)

const fetchBackoff = 10 * time.Minute

// Gateway is the subset of gateway.Client a Runner cycle needs; it
// satisfies both evaluator.Gateway and writer.Gateway in addition to the
// task-descriptor fetch below.
type Gateway interface {
	evaluator.Gateway
	writer.Gateway
	Content(ctx context.Context, t title.Title) (string, error)
	Lock()
	Unlock()
}

// Runner drives one task page to completion on its own schedule.
type Runner struct {
	TaskPage title.Title
	Gateway  Gateway
	Config   *config.Manager
	Log      logging.Logger
	// Metrics is optional; a nil Metrics disables instrumentation.
	Metrics *metrics.Recorder
}

// Outcome classifies the terminal state of one Run cycle, for metrics and
// log correlation.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeParseError
	OutcomeEvalError
	OutcomeTimeout
	OutcomeWriteError
	OutcomeSkipped
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeParseError:
		return "parse_error"
	case OutcomeEvalError:
		return "eval_error"
	case OutcomeTimeout:
		return "timeout"
	case OutcomeWriteError:
		return "write_error"
	case OutcomeSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Start runs the task's cron-scheduled loop until ctx is canceled. The
// first computed fire time is never executed immediately: Start aligns to
// the next scheduled tick before running the first cycle, matching the
// original implementation's "first iteration doesn't execute" rule so a
// bot restart does not immediately re-run every task.
func (r *Runner) Start(ctx context.Context) {
	lastCron := ""
	var sched cron.Schedule

	for {
		site := r.Config.Current()
		if !site.Activate {
			if !sleepOrDone(ctx, fetchBackoff) {
				return
			}
			continue
		}

		desc, err := r.fetchDescriptor(ctx)
		if err != nil {
			r.Log.Warn("runner %s: fetching task config: %v", r.TaskPage.Base, err)
			if !sleepOrDone(ctx, fetchBackoff) {
				return
			}
			continue
		}
		if !desc.Activate {
			if !sleepOrDone(ctx, fetchBackoff) {
				return
			}
			continue
		}

		if desc.Cron != lastCron || sched == nil {
			parsed, err := cron.ParseStandard(desc.Cron)
			if err != nil {
				r.Log.Warn("runner %s: invalid cron %q: %v", r.TaskPage.Base, desc.Cron, err)
				if !sleepOrDone(ctx, fetchBackoff) {
					return
				}
				continue
			}
			sched = parsed
			lastCron = desc.Cron
		}

		next := sched.Next(time.Now())
		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		if !sleepOrDone(ctx, wait) {
			return
		}

		outcome := r.RunOnce(ctx, desc, site)
		r.Log.Info("runner %s: cycle finished with outcome %s", r.TaskPage.Base, outcome)
	}
}

func (r *Runner) fetchDescriptor(ctx context.Context) (config.TaskDescriptor, error) {
	raw, err := r.Gateway.Content(ctx, r.TaskPage)
	if err != nil {
		return config.TaskDescriptor{}, err
	}
	return config.ParseTaskDescriptor([]byte(raw))
}

// RunOnce compiles, optimizes and evaluates desc's expression bounded by
// the task's effective timeout, then writes the outcome (success or
// failure alike) to every one of desc.Output's target pages. The Page
// Writer always runs: a parse, evaluation, or timeout failure still
// produces a status marker on every output page rather than skipping the
// write, matching the original implementation.
func (r *Runner) RunOnce(ctx context.Context, desc config.TaskDescriptor, site config.SiteConfig) (outcome Outcome) {
	if r.Metrics != nil {
		defer func() { r.Metrics.RecordRunnerCycle(ctx, r.TaskPage.Base, outcome.String()) }()
	}

	effective := desc.Config().Effective(site.Default)

	timeout := 60 * time.Second
	if effective.Timeout != nil && *effective.Timeout > 0 {
		timeout = time.Duration(*effective.Timeout) * time.Second
	}
	cycleCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		status writer.Status
		result title.Set
	)

	query, err := parser.Parse(desc.Expr)
	if err != nil {
		r.Log.Warn("runner %s: parse error: %v", r.TaskPage.Base, err)
		status, outcome = writer.StatusParse, OutcomeParseError
	} else {
		optimizer.Optimize(query)

		r.Gateway.Lock()
		evalStart := time.Now()
		evaluated, evalErr := evaluator.Evaluate(cycleCtx, query, r.Gateway)
		if r.Metrics != nil {
			r.Metrics.RecordEvalDuration(ctx, time.Since(evalStart).Seconds())
		}
		r.Gateway.Unlock()

		switch {
		case evalErr == nil:
			result = evaluated
			if effective.QueryLimit != nil && *effective.QueryLimit >= 0 && len(result) > *effective.QueryLimit {
				titles := result.Slice()
				title.SortTitles(titles)
				result = title.NewSet(titles[:*effective.QueryLimit]...)
			}
			status, outcome = writer.StatusSuccess, OutcomeSuccess
		case errors.Is(cycleCtx.Err(), context.DeadlineExceeded):
			r.Log.Warn("runner %s: evaluation timed out", r.TaskPage.Base)
			status, outcome = writer.StatusTimeout, OutcomeTimeout
		default:
			r.Log.Warn("runner %s: evaluation error: %v", r.TaskPage.Base, evalErr)
			status, outcome = writer.StatusRuntime, OutcomeEvalError
		}
	}

	writeCtx, writeCancel := context.WithTimeout(ctx, timeout)
	defer writeCancel()

	writeFailed := false
	for _, format := range desc.Output {
		writeOutcome, err := writer.Write(writeCtx, r.Gateway, r.Config, site.ResultHeader, r.TaskPage.Base, format, status, result)
		if err != nil {
			writeFailed = true
			if r.Metrics != nil {
				r.Metrics.RecordEditOutcome(ctx, "error")
			}
			r.Log.Warn("runner %s: write to %q failed: %v", r.TaskPage.Base, format.Target, err)
			continue
		}
		if r.Metrics != nil {
			outcomeLabel := "edited"
			if writeOutcome == writer.OutcomeNoChange {
				outcomeLabel = "no_change"
			}
			r.Metrics.RecordEditOutcome(ctx, outcomeLabel)
		}
	}

	if writeFailed && outcome == OutcomeSuccess {
		return OutcomeWriteError
	}
	return outcome
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
