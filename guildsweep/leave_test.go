package guildsweep

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockDirectory struct {
	mock.Mock
}

func (m *mockDirectory) ListGuilds(ctx context.Context) ([]Guild, error) {
	args := m.Called(ctx)
	guilds, _ := args.Get(0).([]Guild)
	return guilds, args.Error(1)
}

func (m *mockDirectory) LeaveGuild(ctx context.Context, guildID string) LeaveOutcome {
	args := m.Called(ctx, guildID)
	return args.Get(0).(LeaveOutcome)
}

// recordingReporter keeps every event it receives
type recordingReporter struct {
	NopReporter
	mu        sync.Mutex
	progress  []LeaveProgress
	completed []LeaveReport
	errs      []error
}

func (r *recordingReporter) LeaveProgress(p LeaveProgress) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.progress = append(r.progress, p)
}

func (r *recordingReporter) LeaveCompleted(report LeaveReport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, report)
}

func (r *recordingReporter) Error(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func TestLeaveOrchestrator_Run(t *testing.T) {
	guilds := []Guild{
		{ID: "1", Name: "One"},
		{ID: "2", Name: "Two"},
		{ID: "3", Name: "Three"},
	}
	remaining := []Guild{{ID: "2", Name: "Two"}}

	dir := &mockDirectory{}
	dir.On("LeaveGuild", mock.Anything, "1").
		Return(LeaveOutcome{Status: LeaveSuccess}).Once()
	dir.On("LeaveGuild", mock.Anything, "2").
		Return(LeaveOutcome{Status: LeaveRateLimited, RetryAfter: time.Millisecond}).Once()
	dir.On("LeaveGuild", mock.Anything, "3").
		Return(LeaveOutcome{Status: LeaveFailed, StatusCode: 403}).Once()
	dir.On("ListGuilds", mock.Anything).Return(remaining, nil).Once()

	list := NewGuildList()
	list.Replace(guilds)

	o := NewLeaveOrchestrator(dir, list, 0, discardLogger())
	sel := NewSelection(guilds)
	reporter := &recordingReporter{}

	report, err := o.Run(context.Background(), sel, reporter)
	require.NoError(t, err)
	dir.AssertExpectations(t)

	require.Len(t, report.Results, 3)
	assert.Equal(t, LeaveSuccess, report.Results[0].Outcome.Status)
	assert.Equal(t, LeaveRateLimited, report.Results[1].Outcome.Status)
	assert.Equal(t, LeaveFailed, report.Results[2].Outcome.Status)
	assert.Equal(t, 1, report.Left)
	assert.Equal(t, 1, report.RateLimited)
	assert.Equal(t, 1, report.Failed)
	assert.False(t, report.Finished.Before(report.Started))

	require.Len(t, reporter.progress, 3)
	for i, p := range reporter.progress {
		assert.Equal(t, i+1, p.Index)
		assert.Equal(t, 3, p.Total)
		assert.Equal(t, guilds[i], p.Guild)
		assert.Equal(t, 1, p.Completed)
	}
	require.Len(t, reporter.completed, 1)
	assert.Equal(t, report, reporter.completed[0])

	assert.Equal(t, 0, sel.Len(), "selection should be cleared")
	assert.Equal(t, remaining, list.Snapshot(), "list should be resynced after a success")
	assert.False(t, o.Running())
}

// A rate limited guild is waited on, then skipped rather than retried
func TestLeaveOrchestrator_RateLimitedIsNotRetried(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("LeaveGuild", mock.Anything, "1").
		Return(LeaveOutcome{Status: LeaveRateLimited, RetryAfter: 20 * time.Millisecond}).Once()
	dir.On("LeaveGuild", mock.Anything, "2").
		Return(LeaveOutcome{Status: LeaveSuccess}).Once()
	dir.On("ListGuilds", mock.Anything).Return([]Guild{{ID: "1", Name: "One"}}, nil)

	o := NewLeaveOrchestrator(dir, NewGuildList(), 0, discardLogger())
	sel := NewSelection([]Guild{{ID: "1", Name: "One"}, {ID: "2", Name: "Two"}})

	start := time.Now()
	report, err := o.Run(context.Background(), sel, nil)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
	dir.AssertNumberOfCalls(t, "LeaveGuild", 2)
	assert.Equal(t, 1, report.RateLimited)
	assert.Equal(t, 1, report.Left)
}

func TestLeaveOrchestrator_ResyncFailureIgnored(t *testing.T) {
	original := []Guild{{ID: "1", Name: "One"}}
	dir := &mockDirectory{}
	dir.On("LeaveGuild", mock.Anything, "1").Return(LeaveOutcome{Status: LeaveSuccess})
	dir.On("ListGuilds", mock.Anything).Return(nil, ErrTransport)

	list := NewGuildList()
	list.Replace(original)
	o := NewLeaveOrchestrator(dir, list, 0, discardLogger())

	report, err := o.Run(context.Background(), NewSelection(original), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Left)
	assert.Equal(t, original, list.Snapshot())
}

func TestLeaveOrchestrator_PaceDelay(t *testing.T) {
	dir := &mockDirectory{}
	dir.On("LeaveGuild", mock.Anything, mock.Anything).
		Return(LeaveOutcome{Status: LeaveFailed, StatusCode: 500})

	pace := 15 * time.Millisecond
	o := NewLeaveOrchestrator(dir, NewGuildList(), pace, discardLogger())
	sel := NewSelection([]Guild{{ID: "1"}, {ID: "2"}, {ID: "3"}})

	start := time.Now()
	report, err := o.Run(context.Background(), sel, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 3*pace)
	assert.Equal(t, 3, report.Failed)
}

func TestLeaveOrchestrator_MissingID(t *testing.T) {
	dir := &mockDirectory{}
	o := NewLeaveOrchestrator(dir, NewGuildList(), 0, discardLogger())

	report, err := o.Run(
		context.Background(),
		NewSelection([]Guild{{Name: "No ID"}}),
		nil,
	)
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	assert.ErrorIs(t, report.Results[0].Outcome.Err, ErrMissingGuildID)
	dir.AssertNotCalled(t, "LeaveGuild", mock.Anything, mock.Anything)
}

// blockingDirectory holds every LeaveGuild call until release is closed
type blockingDirectory struct {
	started chan string
	release chan struct{}
}

func (b *blockingDirectory) ListGuilds(context.Context) ([]Guild, error) {
	return nil, errors.New("unused")
}

func (b *blockingDirectory) LeaveGuild(_ context.Context, guildID string) LeaveOutcome {
	b.started <- guildID
	<-b.release
	return LeaveOutcome{Status: LeaveSuccess}
}

func TestLeaveOrchestrator_SingleFlight(t *testing.T) {
	dir := &blockingDirectory{
		started: make(chan string, 10),
		release: make(chan struct{}),
	}
	o := NewLeaveOrchestrator(dir, NewGuildList(), 0, discardLogger())

	first := NewSelection([]Guild{{ID: "1", Name: "One"}})
	done := make(chan LeaveReport, 1)
	go func() {
		report, err := o.Run(context.Background(), first, nil)
		assert.NoError(t, err)
		done <- report
	}()

	select {
	case id := <-dir.started:
		assert.Equal(t, "1", id)
	case <-time.After(5 * time.Second):
		t.Fatal("first run never started")
	}
	assert.True(t, o.Running())

	second := NewSelection([]Guild{{ID: "2", Name: "Two"}})
	report, err := o.Run(context.Background(), second, nil)
	assert.ErrorIs(t, err, ErrLeaveInProgress)
	assert.Empty(t, report.Results)
	assert.Equal(t, 1, second.Len(), "rejected selection should be untouched")

	close(dir.release)
	select {
	case report = <-done:
		assert.Equal(t, 1, report.Left)
	case <-time.After(5 * time.Second):
		t.Fatal("first run never finished")
	}
	assert.Empty(t, dir.started, "second run should not have made requests")
	assert.False(t, o.Running())
}

func TestLeaveOrchestrator_Canceled(t *testing.T) {
	dir := &mockDirectory{}
	ctx, cancel := context.WithCancel(context.Background())
	dir.On("LeaveGuild", mock.Anything, "1").
		Run(func(mock.Arguments) { cancel() }).
		Return(LeaveOutcome{Status: LeaveRateLimited, RetryAfter: time.Hour}).Once()

	o := NewLeaveOrchestrator(dir, NewGuildList(), time.Hour, discardLogger())
	sel := NewSelection([]Guild{{ID: "1"}, {ID: "2"}, {ID: "3"}})

	done := make(chan LeaveReport, 1)
	go func() {
		report, err := o.Run(ctx, sel, nil)
		assert.NoError(t, err)
		done <- report
	}()

	var report LeaveReport
	select {
	case report = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not stop after cancellation")
	}

	require.Len(t, report.Results, 3)
	assert.Equal(t, 1, report.RateLimited)
	assert.Equal(t, 2, report.Failed)
	assert.ErrorIs(t, report.Results[2].Outcome.Err, context.Canceled)
	dir.AssertNumberOfCalls(t, "LeaveGuild", 1)
	assert.Equal(t, 0, sel.Len())
}
