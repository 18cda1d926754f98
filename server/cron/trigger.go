// Package cron runs the server's maintenance jobs (panel expiry and the
// property bag refresh) on 5-field cron schedules.
//
//	trigger, err := cron.NewCronTrigger("*/5 * * * *", registry, logger)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	trigger.Start(ctx)
package cron

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
)

// ErrInvalidCronSpec is returned when the cron specification cannot be parsed.
var ErrInvalidCronSpec = errors.New("invalid cron spec")

// Runnable is a job the scheduler can run.
type Runnable interface {
	Run() error
}

// RunnableFunc adapts a function to Runnable.
type RunnableFunc func() error

// Run calls f.
func (f RunnableFunc) Run() error { return f() }

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// RunResult records one completed run.
type RunResult struct {
	Started  time.Time     `json:"started"`
	Duration time.Duration `json:"duration"`
	Error    string        `json:"error,omitempty"`
}

// CronTrigger executes a Runnable according to a cron schedule. A tick that
// arrives while the previous run is still going is skipped.
type CronTrigger struct {
	spec     string
	schedule cron.Schedule
	runnable Runnable
	logger   *slog.Logger

	running atomic.Bool
	mu      sync.Mutex
	last    *RunResult
	skipped int
}

// NewCronTrigger parses spec and returns ErrInvalidCronSpec if it is not a
// 5-field cron expression.
func NewCronTrigger(spec string, runnable Runnable, logger *slog.Logger) (*CronTrigger, error) {
	schedule, err := parser.Parse(spec)
	if err != nil {
		return nil, errors.Join(ErrInvalidCronSpec, err)
	}

	return &CronTrigger{
		spec:     spec,
		schedule: schedule,
		runnable: runnable,
		logger:   logger,
	}, nil
}

// Start runs the schedule in a goroutine until ctx is cancelled.
func (ct *CronTrigger) Start(ctx context.Context) {
	go ct.loop(ctx)
}

// NextRun returns the next scheduled run time from now.
func (ct *CronTrigger) NextRun() time.Time {
	return ct.schedule.Next(time.Now())
}

// LastRun returns the most recent completed run, or nil before the first.
func (ct *CronTrigger) LastRun() *RunResult {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if ct.last == nil {
		return nil
	}
	last := *ct.last
	return &last
}

// Skipped returns how many ticks were dropped because a run was in progress.
func (ct *CronTrigger) Skipped() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.skipped
}

func (ct *CronTrigger) loop(ctx context.Context) {
	for {
		next := ct.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		ct.logger.Debug("waiting for next scheduled run", "next_run", next)

		select {
		case <-ctx.Done():
			timer.Stop()
			ct.logger.Info("cron trigger shutting down")
			return
		case <-timer.C:
			go ct.executeRun()
		}
	}
}

// executeRun runs the job unless a previous run is still in progress.
func (ct *CronTrigger) executeRun() {
	if !ct.running.CompareAndSwap(false, true) {
		ct.mu.Lock()
		ct.skipped++
		ct.mu.Unlock()
		ct.logger.Warn("previous run still in progress, skipping")
		return
	}
	defer ct.running.Store(false)

	start := time.Now()
	err := ct.runnable.Run()
	result := RunResult{Started: start, Duration: time.Since(start)}
	if err != nil {
		result.Error = err.Error()
		ct.logger.Warn("scheduled job completed with error", "duration", result.Duration, "error", err)
	} else {
		ct.logger.Debug("scheduled job completed", "duration", result.Duration)
	}

	ct.mu.Lock()
	ct.last = &result
	ct.mu.Unlock()
}
