package guildsweep

import (
	"context"
	"log/slog"
	"time"

	"github.com/lmittmann/tint"
)

// Refresher keeps a GuildList current by re-listing guilds in a loop.
// Errors are never surfaced: the list keeps its last good snapshot and
// the next iteration tries again.
type Refresher struct {
	directory GuildDirectory
	guilds    *GuildList
	interval  time.Duration
	logger    *slog.Logger

	// afterRefresh, if set, is called at the end of each iteration
	// with the error from that iteration (nil on success)
	afterRefresh func(err error)
}

func NewRefresher(
	directory GuildDirectory,
	guilds *GuildList,
	interval time.Duration,
	logger *slog.Logger,
) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		directory: directory,
		guilds:    guilds,
		interval:  interval,
		logger:    logger,
	}
}

// Run refreshes until ctx is canceled. The wait between iterations is
// measured from the end of the previous one, so slow responses push
// later refreshes back rather than piling up. An in-flight request is
// never abandoned by Run itself; cancellation is noticed at the top of
// the loop and during the wait.
func (r *Refresher) Run(ctx context.Context) {
	r.logger.DebugContext(ctx, "refresher started", "interval", r.interval)
	defer r.logger.DebugContext(ctx, "refresher stopped")

	for {
		if ctx.Err() != nil {
			return
		}
		err := r.refresh(ctx)
		if r.afterRefresh != nil {
			r.afterRefresh(err)
		}
		if sleepContext(ctx, r.interval) != nil {
			return
		}
	}
}

func (r *Refresher) refresh(ctx context.Context) (err error) {
	defer func() {
		if rc := recover(); rc != nil {
			r.logger.ErrorContext(ctx, "recovered from panic refreshing guilds", "panic", rc)
			err = ErrTransport
		}
	}()

	guilds, err := r.directory.ListGuilds(ctx)
	if err != nil {
		r.logger.DebugContext(ctx, "background refresh failed", tint.Err(err))
		return err
	}
	r.guilds.Replace(guilds)
	return nil
}
