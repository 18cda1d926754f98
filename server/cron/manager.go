package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Job is a named Runnable with its schedule. An empty Spec disables the job.
type Job struct {
	Name     string
	Spec     string
	Runnable Runnable
}

// CronTriggerManager manages one CronTrigger per scheduled job.
type CronTriggerManager struct {
	triggers []*CronTrigger
	names    []string
	logger   *slog.Logger
}

// NewCronTriggerManager creates a trigger for every job with a schedule.
// Returns an error naming the first job whose schedule is invalid.
func NewCronTriggerManager(jobs []Job, logger *slog.Logger) (*CronTriggerManager, error) {
	m := &CronTriggerManager{logger: logger}

	for _, job := range jobs {
		if job.Spec == "" {
			logger.Info("scheduled job disabled", "job", job.Name)
			continue
		}
		trigger, err := NewCronTrigger(job.Spec, job.Runnable, logger.With("job", job.Name))
		if err != nil {
			return nil, fmt.Errorf("creating trigger for %s %q: %w", job.Name, job.Spec, err)
		}
		m.triggers = append(m.triggers, trigger)
		m.names = append(m.names, job.Name)

		logger.Info("trigger registered",
			"job", job.Name,
			"schedule", job.Spec,
			"next_run", trigger.NextRun(),
		)
	}

	return m, nil
}

// Start launches all triggers. Each trigger runs in its own goroutine.
// Returns immediately. All goroutines exit when ctx is cancelled.
func (m *CronTriggerManager) Start(ctx context.Context) {
	for _, trigger := range m.triggers {
		trigger.Start(ctx)
	}
}

// JobStatus describes one scheduled job.
type JobStatus struct {
	Name     string     `json:"name"`
	Schedule string     `json:"schedule"`
	NextRun  time.Time  `json:"next_run"`
	LastRun  *RunResult `json:"last_run,omitempty"`
	Skipped  int        `json:"skipped,omitempty"`
}

// Status reports every scheduled job in registration order.
func (m *CronTriggerManager) Status() []JobStatus {
	out := make([]JobStatus, 0, len(m.triggers))
	for i, trigger := range m.triggers {
		out = append(out, JobStatus{
			Name:     m.names[i],
			Schedule: trigger.spec,
			NextRun:  trigger.NextRun(),
			LastRun:  trigger.LastRun(),
			Skipped:  trigger.Skipped(),
		})
	}
	return out
}

// Jobs returns the names of the scheduled jobs.
func (m *CronTriggerManager) Jobs() []string {
	return append([]string(nil), m.names...)
}

// NextRun returns the earliest scheduled run time across all triggers.
// Returns zero time if there are no triggers.
func (m *CronTriggerManager) NextRun() time.Time {
	if len(m.triggers) == 0 {
		return time.Time{}
	}

	earliest := m.triggers[0].NextRun()
	for _, trigger := range m.triggers[1:] {
		if next := trigger.NextRun(); next.Before(earliest) {
			earliest = next
		}
	}
	return earliest
}
