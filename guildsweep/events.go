package guildsweep

import "context"

// Reporter receives the events a front end needs to show what's going on.
// Calls are made synchronously from the goroutine doing the work.
type Reporter interface {
	// GuildsLoaded is called after an explicit (non-background) listing
	GuildsLoaded(guilds []Guild)

	// SelectionConfirmed is called once the operator has confirmed a
	// selection, right before the leave run starts
	SelectionConfirmed(guilds []Guild)

	// LeaveProgress is called after each guild in a run
	LeaveProgress(p LeaveProgress)

	// LeaveCompleted is called once at the end of every run
	LeaveCompleted(report LeaveReport)

	// Error is called for errors the operator should see
	Error(err error)
}

// Confirmer asks the operator a yes/no question.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

// Prompter is a Reporter that can also ask for confirmation.
type Prompter interface {
	Reporter
	Confirmer
}

// NopReporter discards all events.
type NopReporter struct{}

func (NopReporter) GuildsLoaded([]Guild)        {}
func (NopReporter) SelectionConfirmed([]Guild)  {}
func (NopReporter) LeaveProgress(LeaveProgress) {}
func (NopReporter) LeaveCompleted(LeaveReport)  {}
func (NopReporter) Error(error)                 {}

// AutoConfirm answers every confirmation with its own value.
type AutoConfirm bool

func (a AutoConfirm) Confirm(context.Context, string) (bool, error) {
	return bool(a), nil
}
