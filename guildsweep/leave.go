package guildsweep

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/lmittmann/tint"
)

var ErrLeaveInProgress = errors.New("a leave run is already in progress")

// LeaveProgress is reported after each guild in a run.
type LeaveProgress struct {
	// Index is the 1-based position of Guild in the run
	Index int

	Total int

	// Completed is the number of guilds successfully left so far
	Completed int

	Guild   Guild
	Outcome LeaveOutcome
}

// LeaveResult pairs a guild with the outcome of leaving it.
type LeaveResult struct {
	Guild   Guild        `json:"guild"`
	Outcome LeaveOutcome `json:"outcome"`
}

// LeaveReport summarizes a leave run. Results has one entry per selected
// guild, in selection order.
type LeaveReport struct {
	Results     []LeaveResult `json:"results"`
	Left        int           `json:"left"`
	RateLimited int           `json:"rate_limited"`
	Failed      int           `json:"failed"`
	Started     time.Time     `json:"started"`
	Finished    time.Time     `json:"finished"`
}

func (r LeaveReport) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("total", len(r.Results)),
		slog.Int("left", r.Left),
		slog.Int("rate_limited", r.RateLimited),
		slog.Int("failed", r.Failed),
		slog.Duration("elapsed", r.Finished.Sub(r.Started)),
	)
}

// LeaveOrchestrator leaves a selection of guilds one at a time.
//
// Only one run may be active at once. Runs are strictly sequential, with
// a fixed pace delay after every guild. A rate limited guild is waited on
// but not retried: the run moves on to the next guild, and the rate
// limited one stays joined.
type LeaveOrchestrator struct {
	directory GuildDirectory
	guilds    *GuildList
	paceDelay time.Duration
	logger    *slog.Logger
	running   atomic.Bool
}

func NewLeaveOrchestrator(
	directory GuildDirectory,
	guilds *GuildList,
	paceDelay time.Duration,
	logger *slog.Logger,
) *LeaveOrchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &LeaveOrchestrator{
		directory: directory,
		guilds:    guilds,
		paceDelay: paceDelay,
		logger:    logger,
	}
}

// Running reports whether a run is in progress.
func (o *LeaveOrchestrator) Running() bool {
	return o.running.Load()
}

// Run leaves every guild in sel, in order, reporting progress to
// reporter. If another run is in progress, Run returns
// ErrLeaveInProgress without touching sel.
//
// A failure on one guild never ends the run early. If ctx is canceled,
// the remaining guilds are reported as failed without making requests,
// so the report still has one result per selected guild. sel is cleared
// when the run ends.
func (o *LeaveOrchestrator) Run(
	ctx context.Context,
	sel *Selection,
	reporter Reporter,
) (LeaveReport, error) {
	if !o.running.CompareAndSwap(false, true) {
		o.logger.WarnContext(ctx, "leave requested while a run is in progress")
		return LeaveReport{}, ErrLeaveInProgress
	}
	defer o.running.Store(false)

	if reporter == nil {
		reporter = NopReporter{}
	}

	guilds := sel.Guilds()
	report := LeaveReport{
		Results: make([]LeaveResult, 0, len(guilds)),
		Started: time.Now(),
	}
	defer sel.Clear()

	o.logger.InfoContext(ctx, "starting leave run", "count", len(guilds))

	for i, g := range guilds {
		logger := o.logger.With("guild", g)

		outcome := o.leave(ctx, g)
		switch outcome.Status {
		case LeaveSuccess:
			report.Left++
		case LeaveRateLimited:
			report.RateLimited++
		default:
			report.Failed++
		}
		report.Results = append(report.Results, LeaveResult{Guild: g, Outcome: outcome})
		logger.InfoContext(ctx, "leave result", "outcome", outcome)

		reporter.LeaveProgress(
			LeaveProgress{
				Index:     i + 1,
				Total:     len(guilds),
				Completed: report.Left,
				Guild:     g,
				Outcome:   outcome,
			},
		)

		switch outcome.Status {
		case LeaveSuccess:
			o.resync(ctx)
		case LeaveRateLimited:
			logger.InfoContext(ctx, "waiting on rate limit", "retry_after", outcome.RetryAfter)
			_ = sleepContext(ctx, outcome.RetryAfter)
		}

		_ = sleepContext(ctx, o.paceDelay)
	}

	report.Finished = time.Now()
	o.logger.InfoContext(ctx, "leave run finished", "report", report)
	reporter.LeaveCompleted(report)
	return report, nil
}

func (o *LeaveOrchestrator) leave(ctx context.Context, g Guild) LeaveOutcome {
	if err := ctx.Err(); err != nil {
		return leaveFailed(0, fmt.Errorf("%w: %w", ErrTransport, err))
	}
	if g.ID == "" {
		return leaveFailed(0, ErrMissingGuildID)
	}
	return o.directory.LeaveGuild(ctx, g.ID)
}

// resync refreshes the guild list after a successful leave. Failures are
// ignored; the background refresher will catch up.
func (o *LeaveOrchestrator) resync(ctx context.Context) {
	if o.guilds == nil || ctx.Err() != nil {
		return
	}
	guilds, err := o.directory.ListGuilds(ctx)
	if err != nil {
		o.logger.DebugContext(ctx, "error refreshing guilds after leave", tint.Err(err))
		return
	}
	o.guilds.Replace(guilds)
}
