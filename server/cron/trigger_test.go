package cron

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockRunnable is a test implementation of Runnable.
type mockRunnable struct {
	runCount atomic.Int32
	runErr   error
}

func (m *mockRunnable) Run() error {
	m.runCount.Add(1)
	return m.runErr
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestNewCronTrigger(t *testing.T) {
	runnable := &mockRunnable{}

	tests := []struct {
		name    string
		spec    string
		wantErr bool
	}{
		{
			name:    "valid spec - daily at 2am",
			spec:    "0 2 * * *",
			wantErr: false,
		},
		{
			name:    "valid spec - every five minutes",
			spec:    "*/5 * * * *",
			wantErr: false,
		},
		{
			name:    "valid spec - every minute",
			spec:    "* * * * *",
			wantErr: false,
		},
		{
			name:    "invalid spec - empty",
			spec:    "",
			wantErr: true,
		},
		{
			name:    "invalid spec - wrong format",
			spec:    "not a cron spec",
			wantErr: true,
		},
		{
			name:    "invalid spec - too few fields",
			spec:    "0 2 *",
			wantErr: true,
		},
		{
			name:    "invalid spec - invalid value",
			spec:    "60 2 * * *",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trigger, err := NewCronTrigger(tt.spec, runnable, testLogger())

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidCronSpec)
				assert.Nil(t, trigger)
			} else {
				require.NoError(t, err)
				assert.NotNil(t, trigger)
				assert.Equal(t, tt.spec, trigger.spec)
			}
		})
	}
}

func TestCronTrigger_NextRun(t *testing.T) {
	trigger, err := NewCronTrigger("0 2 * * *", &mockRunnable{}, testLogger())
	require.NoError(t, err)

	nextRun := trigger.NextRun()
	assert.True(t, nextRun.After(time.Now()), "next run should be in the future")
	assert.Equal(t, 2, nextRun.Hour(), "next run should be at 2am")
	assert.Equal(t, 0, nextRun.Minute(), "next run should be at minute 0")
}

func TestCronTrigger_Start_CancellationStopsLoop(t *testing.T) {
	runnable := &mockRunnable{}

	// Every minute, so no run happens in the test window.
	trigger, err := NewCronTrigger("* * * * *", runnable, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	trigger.Start(ctx)
	time.Sleep(10 * time.Millisecond)
	cancel()
	time.Sleep(10 * time.Millisecond)

	assert.Equal(t, int32(0), runnable.runCount.Load())
}

func TestCronTrigger_ExecuteRun(t *testing.T) {
	ok := &mockRunnable{}
	trigger, err := NewCronTrigger("* * * * *", ok, testLogger())
	require.NoError(t, err)
	assert.Nil(t, trigger.LastRun())

	trigger.executeRun()
	assert.Equal(t, int32(1), ok.runCount.Load())
	last := trigger.LastRun()
	require.NotNil(t, last)
	assert.Empty(t, last.Error)
	assert.WithinDuration(t, time.Now(), last.Started, time.Second)

	failing := &mockRunnable{runErr: errors.New("alpha-1: list unavailable")}
	trigger, err = NewCronTrigger("* * * * *", failing, testLogger())
	require.NoError(t, err)
	trigger.executeRun()
	assert.Equal(t, int32(1), failing.runCount.Load())
	require.NotNil(t, trigger.LastRun())
	assert.Equal(t, "alpha-1: list unavailable", trigger.LastRun().Error)
}

func TestCronTrigger_SkipsOverlappingRuns(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	var runs atomic.Int32
	trigger, err := NewCronTrigger("* * * * *", RunnableFunc(func() error {
		if runs.Add(1) == 1 {
			close(started)
			<-release
		}
		return nil
	}), testLogger())
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		trigger.executeRun()
		close(done)
	}()
	<-started

	trigger.executeRun()
	assert.Equal(t, int32(1), runs.Load())
	assert.Equal(t, 1, trigger.Skipped())

	close(release)
	<-done
	trigger.executeRun()
	assert.Equal(t, int32(2), runs.Load())
}

func TestRunnableFunc(t *testing.T) {
	called := false
	var r Runnable = RunnableFunc(func() error {
		called = true
		return nil
	})
	require.NoError(t, r.Run())
	assert.True(t, called)
}
