package guildsweep

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
)

var (
	// When building, set these like:
	// -ldflags "-X github.com/arcward/guildsweep/guildsweep.Version=$$(date +'%Y%m%d')"

	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

var (
	ErrDeclined      = errors.New("leave canceled")
	ErrNoGuilds      = errors.New("no servers loaded yet")
	ErrGuildNotFound = errors.New("server not found")
)

const (
	menuLeaveByPosition = "1"
	menuLeaveByID       = "2"
	menuShowGuilds      = "3"
	menuExit            = "4"
)

// GuildSweep ties together the guild directory, the shared guild list,
// the background refresher and the leave orchestrator.
type GuildSweep struct {
	config       *Config
	logger       *slog.Logger
	directory    GuildDirectory
	guilds       *GuildList
	refresher    *Refresher
	orchestrator *LeaveOrchestrator
}

// New creates a GuildSweep from the given config. A missing token is not
// an error here: it surfaces as ErrUnauthorized on the first request.
func New(config *Config) (*GuildSweep, error) {
	if err := ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	if config.HTTPClient == nil {
		config.HTTPClient = &http.Client{Timeout: config.Discord.RequestTimeout}
	}

	logHandler := newLogHandler(defaultLogWriter, config.LogLevel, config.NoColor)
	logger := slog.New(logHandler)
	slog.SetDefault(logger)

	discordgo.Logger = discordgoLoggerFunc(
		context.Background(),
		newLogHandler(
			defaultLogWriter,
			config.Discord.DiscordGoLogLevel,
			config.NoColor,
		).WithAttrs([]slog.Attr{slog.String(loggerNameKey, "discordgo")}),
	)

	directoryLogger := slog.New(
		newLogHandler(defaultLogWriter, config.Discord.LogLevel, config.NoColor),
	).With(loggerNameKey, "directory")

	directory, err := NewDiscordDirectory(
		config.Discord,
		config.Leave.DefaultRetryAfter,
		config.HTTPClient,
		directoryLogger,
	)
	if err != nil {
		return nil, err
	}

	return newGuildSweep(config, directory, logger), nil
}

// newGuildSweep wires everything around an existing directory
func newGuildSweep(config *Config, directory GuildDirectory, logger *slog.Logger) *GuildSweep {
	guilds := NewGuildList()
	return &GuildSweep{
		config:    config,
		logger:    logger,
		directory: directory,
		guilds:    guilds,
		refresher: NewRefresher(
			directory,
			guilds,
			config.Refresh.Interval,
			logger.With(loggerNameKey, "refresher"),
		),
		orchestrator: NewLeaveOrchestrator(
			directory,
			guilds,
			config.Leave.PaceDelay,
			logger.With(loggerNameKey, "leave"),
		),
	}
}

// Guilds returns the current guild list snapshot.
func (g *GuildSweep) Guilds() []Guild {
	return g.guilds.Snapshot()
}

// Load lists guilds once and stores the result. Errors are passed to
// reporter as well as returned.
func (g *GuildSweep) Load(ctx context.Context, reporter Reporter) error {
	if reporter == nil {
		reporter = NopReporter{}
	}
	guilds, err := g.directory.ListGuilds(ctx)
	if err != nil {
		err = fmt.Errorf("failed to load servers: %w", err)
		g.logger.ErrorContext(ctx, "error loading guilds", tint.Err(err))
		reporter.Error(err)
		return err
	}
	g.guilds.Replace(guilds)
	g.logger.InfoContext(ctx, "loaded guilds", "count", len(guilds))
	reporter.GuildsLoaded(g.guilds.Snapshot())
	return nil
}

// LeaveByPosition selects guilds by their 1-based position in the sorted
// list (or "all"), asks ui for confirmation, then leaves them.
func (g *GuildSweep) LeaveByPosition(
	ctx context.Context,
	input string,
	ui Prompter,
) (LeaveReport, error) {
	guilds := g.guilds.Snapshot()
	if len(guilds) == 0 {
		return LeaveReport{}, ErrNoGuilds
	}
	selected, err := SelectByPosition(guilds, input)
	if err != nil {
		return LeaveReport{}, err
	}
	return g.leave(ctx, selected, ui)
}

// LeaveByID selects guilds by ID, asks ui for confirmation, then leaves
// them. Each ID that doesn't match a guild is reported to ui as an error
// wrapping ErrGuildNotFound; the rest are still left.
func (g *GuildSweep) LeaveByID(
	ctx context.Context,
	input string,
	ui Prompter,
) (LeaveReport, error) {
	selected, notFound, err := SelectByID(g.guilds.Snapshot(), input)
	for _, id := range notFound {
		ui.Error(fmt.Errorf("%w: %s", ErrGuildNotFound, id))
	}
	if err != nil {
		return LeaveReport{}, err
	}
	return g.leave(ctx, selected, ui)
}

func (g *GuildSweep) leave(
	ctx context.Context,
	selected []Guild,
	ui Prompter,
) (LeaveReport, error) {
	if g.orchestrator.Running() {
		return LeaveReport{}, ErrLeaveInProgress
	}
	sel := NewSelection(selected)

	confirmed, err := ui.Confirm(
		ctx,
		fmt.Sprintf("Are you sure you want to leave %d server(s)?", sel.Len()),
	)
	if err != nil {
		sel.Clear()
		return LeaveReport{}, err
	}
	if !confirmed {
		sel.Clear()
		g.logger.InfoContext(ctx, "leave declined", "count", len(selected))
		return LeaveReport{}, ErrDeclined
	}

	ui.SelectionConfirmed(sel.Guilds())
	return g.orchestrator.Run(ctx, sel, ui)
}

// Run starts the background refresher, loads the guild list and runs the
// interactive menu on console until the operator exits, input ends or ctx
// is canceled. The refresher is then stopped, waiting at most
// Config.ShutdownTimeout for it.
func (g *GuildSweep) Run(ctx context.Context, console *Console) error {
	g.logger.InfoContext(ctx, "starting", "config", g.config)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, egCtx := errgroup.WithContext(runCtx)
	if g.config.Refresh.Enabled {
		eg.Go(
			func() error {
				g.refresher.Run(egCtx)
				return nil
			},
		)
	}

	_ = g.Load(runCtx, console)

	menuErr := g.menu(runCtx, console)
	cancel()

	stopped := make(chan error, 1)
	go func() {
		stopped <- eg.Wait()
	}()
	select {
	case err := <-stopped:
		if err != nil {
			g.logger.ErrorContext(ctx, "error stopping background tasks", tint.Err(err))
		}
	case <-time.After(g.config.ShutdownTimeout):
		g.logger.WarnContext(
			ctx,
			"background refresh did not stop in time",
			"shutdown_timeout", g.config.ShutdownTimeout,
		)
	}

	if errors.Is(menuErr, io.EOF) || errors.Is(menuErr, context.Canceled) {
		return nil
	}
	return menuErr
}

func (g *GuildSweep) menu(ctx context.Context, console *Console) error {
	for {
		console.Clear()
		console.ShowMenu(g.guilds.Len(), g.guilds.UpdatedAt())

		choice, err := console.ReadLine(ctx, "Enter your choice (1-4): ")
		if err != nil {
			return err
		}

		switch strings.TrimSpace(choice) {
		case menuLeaveByPosition:
			console.ShowGuilds(g.guilds.Snapshot())
			input, e := console.ReadLine(
				ctx,
				"Enter server numbers to select (comma-separated) or 'all' for all servers: ",
			)
			if e != nil {
				return e
			}
			_, e = g.LeaveByPosition(ctx, input, console)
			g.reportMenuError(ctx, console, e)
		case menuLeaveByID:
			input, e := console.ReadLine(ctx, "Enter server IDs (comma-separated): ")
			if e != nil {
				return e
			}
			_, e = g.LeaveByID(ctx, input, console)
			g.reportMenuError(ctx, console, e)
		case menuShowGuilds:
			console.ShowGuilds(g.guilds.Snapshot())
		case menuExit:
			console.Goodbye()
			return nil
		default:
			console.Error(errors.New("invalid choice, please try again"))
		}

		if err = console.Pause(ctx); err != nil {
			return err
		}
	}
}

func (g *GuildSweep) reportMenuError(ctx context.Context, console *Console, err error) {
	switch {
	case err == nil:
		//
	case errors.Is(err, ErrDeclined):
		console.Notice("Canceled, no servers were left.")
	case errors.Is(err, context.Canceled), errors.Is(err, io.EOF):
		//
	default:
		g.logger.DebugContext(ctx, "menu action failed", tint.Err(err))
		console.Error(err)
	}
}
