package guildsweep

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/gookit/color"
	"golang.org/x/term"
)

const (
	clearScreen = "\033[H\033[2J"
	banner      = `
   ____       _ _     _  ____
  / ___|_   _(_) | __| |/ ___|_      _____  ___ _ __
 | |  _| | | | | |/ _` + "`" + ` |\___ \ \ /\ / / _ \/ _ \ '_ \
 | |_| | |_| | | | (_| | ___) \ V  V /  __/  __/ |_) |
  \____|\__,_|_|_|\__,_||____/ \_/\_/ \___|\___| .__/
                                               |_|
`
)

var (
	styleTitle   = color.New(color.FgCyan, color.OpBold)
	styleMenu    = color.New(color.FgYellow)
	styleExit    = color.New(color.FgRed)
	styleSuccess = color.New(color.FgGreen)
	styleWarn    = color.New(color.FgYellow)
	styleError   = color.New(color.FgRed, color.OpBold)
	styleDim     = color.New(color.OpFuzzy)
	styleHeader  = color.New(color.FgMagenta, color.OpBold)
)

var _ Prompter = (*Console)(nil)

// Console is the interactive front end: it renders the menu, the guild
// table and progress, and reads the operator's input.
type Console struct {
	in     io.Reader
	out    io.Writer
	logger *slog.Logger

	colors   bool
	terminal bool

	startReader sync.Once
	lines       chan string
	readErr     error
}

// NewConsole creates a Console reading from in and writing to out.
// Colors and screen clearing are only used when out is a terminal and
// noColor is false.
func NewConsole(in io.Reader, out io.Writer, noColor bool, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Console{
		in:     in,
		out:    out,
		logger: logger,
		lines:  make(chan string),
	}
	if f, ok := out.(*os.File); ok {
		c.terminal = term.IsTerminal(int(f.Fd()))
	}
	c.colors = c.terminal && !noColor
	return c
}

func (c *Console) paint(style color.Style, s string) string {
	if !c.colors {
		return s
	}
	return style.Sprint(s)
}

func (c *Console) println(style color.Style, s string) {
	_, _ = fmt.Fprintln(c.out, c.paint(style, s))
}

// ReadLine writes prompt and waits for a line of input. Lines are read
// on a separate goroutine, so a canceled ctx returns right away even
// while input is blocked. io.EOF is returned once input is exhausted.
func (c *Console) ReadLine(ctx context.Context, prompt string) (string, error) {
	c.startReader.Do(
		func() {
			go c.readLines()
		},
	)
	_, _ = fmt.Fprint(c.out, prompt)

	select {
	case <-ctx.Done():
		_, _ = fmt.Fprintln(c.out)
		return "", ctx.Err()
	case line, ok := <-c.lines:
		if !ok {
			if c.readErr != nil {
				return "", c.readErr
			}
			return "", io.EOF
		}
		return line, nil
	}
}

func (c *Console) readLines() {
	defer close(c.lines)
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		c.lines <- scanner.Text()
	}
	if err := scanner.Err(); err != nil {
		c.logger.Error("error reading input", "error", err)
		c.readErr = err
	}
}

// Confirm asks a yes/no question. Only "y" or "yes" (in any case) is
// taken as yes.
func (c *Console) Confirm(ctx context.Context, prompt string) (bool, error) {
	answer, err := c.ReadLine(ctx, c.paint(styleError, prompt)+" [y/n]: ")
	if err != nil {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true, nil
	default:
		return false, nil
	}
}

// Pause waits for the operator to press Enter.
func (c *Console) Pause(ctx context.Context) error {
	_, err := c.ReadLine(ctx, "\nPress Enter to continue...")
	return err
}

// Clear clears the screen, if output is a terminal.
func (c *Console) Clear() {
	if c.terminal {
		_, _ = fmt.Fprint(c.out, clearScreen)
	}
}

// ShowMenu renders the main menu, along with the size and age of the
// current guild list.
func (c *Console) ShowMenu(guildCount int, updatedAt time.Time) {
	c.println(styleTitle, banner)
	if updatedAt.IsZero() {
		c.println(styleDim, "Servers: not loaded yet")
	} else {
		c.println(
			styleDim,
			fmt.Sprintf("Servers: %d (updated %s)", guildCount, updatedAt.Format(time.TimeOnly)),
		)
	}
	_, _ = fmt.Fprintln(c.out, "\nChoose an option:")
	_, _ = fmt.Fprintf(c.out, "[%s] %s\n", menuLeaveByPosition, c.paint(styleMenu, "Select servers to leave"))
	_, _ = fmt.Fprintf(c.out, "[%s] %s\n", menuLeaveByID, c.paint(styleMenu, "Leave servers by ID"))
	_, _ = fmt.Fprintf(c.out, "[%s] %s\n", menuShowGuilds, c.paint(styleMenu, "Show servers"))
	_, _ = fmt.Fprintf(c.out, "[%s] %s\n\n", menuExit, c.paint(styleExit, "Exit"))
}

// ShowGuilds renders guilds as a table, sorted the same way positions
// are assigned when selecting by number.
func (c *Console) ShowGuilds(guilds []Guild) {
	if len(guilds) == 0 {
		c.println(styleWarn, "No servers found.")
		return
	}

	c.println(styleHeader, "Available Servers")
	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "#\tServer Name\tServer ID\tCreated")
	for i, g := range SortGuilds(guilds) {
		created := "-"
		if t, ok := g.CreatedAt(); ok {
			created = t.Format(time.DateOnly)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", strconv.Itoa(i+1), g.Name, g.ID, created)
	}
	_ = tw.Flush()
	c.println(styleDim, fmt.Sprintf("\nTotal Servers: %d", len(guilds)))
}

// Notice prints an informational line.
func (c *Console) Notice(msg string) {
	c.println(styleWarn, msg)
}

func (c *Console) Goodbye() {
	c.println(styleTitle, "Goodbye!")
}

func (c *Console) GuildsLoaded(guilds []Guild) {
	c.ShowGuilds(guilds)
}

func (c *Console) SelectionConfirmed(guilds []Guild) {
	c.println(styleWarn, fmt.Sprintf("Leaving %d server(s)...", len(guilds)))
}

func (c *Console) LeaveProgress(p LeaveProgress) {
	switch p.Outcome.Status {
	case LeaveSuccess:
		c.println(
			styleSuccess,
			fmt.Sprintf("[%d/%d] Left %s", p.Index, p.Total, p.Guild.Name),
		)
	case LeaveRateLimited:
		c.println(
			styleWarn,
			fmt.Sprintf(
				"[%d/%d] Rate limited on %s. Waiting %s...",
				p.Index,
				p.Total,
				p.Guild.Name,
				p.Outcome.RetryAfter,
			),
		)
	default:
		c.println(
			styleError,
			fmt.Sprintf("[%d/%d] Failed to leave %s: %s", p.Index, p.Total, p.Guild.Name, p.Outcome),
		)
	}
}

func (c *Console) LeaveCompleted(report LeaveReport) {
	c.println(styleSuccess, "Server leave operations completed!")
	_, _ = fmt.Fprintf(
		c.out,
		"Left: %d  Rate limited: %d  Failed: %d\n",
		report.Left,
		report.RateLimited,
		report.Failed,
	)
}

func (c *Console) Error(err error) {
	c.println(styleError, "Error: "+err.Error())
}
