package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bbys_backend/platform/config"
	"bbys_backend/platform/logger"

	"github.com/hibiken/asynq"
	"github.com/robfig/cron/v3"
)

// sweepUniqueFor keeps replicas of the scheduler from queueing the same tick twice.
const sweepUniqueFor = 30 * time.Minute

// Schedule is one row of the periodic table.
type Schedule struct {
	Name string
	Spec string
	Task string
}

// DefaultSchedule is the sweep table of the worker process.
func DefaultSchedule(cfg config.ScheduleConfig) []Schedule {
	return []Schedule{
		{Name: "hourly_sweep", Spec: cfg.GetHourlySweepSpec(), Task: TaskHourlySweep},
		{Name: "daily_sweep", Spec: cfg.GetDailySweepSpec(), Task: TaskDailySweep},
	}
}

type entry struct {
	Schedule
	schedule cron.Schedule
}

// Periodic enqueues the task of each schedule row when its spec fires.
type Periodic struct {
	client  *Client
	entries map[string]entry
	loc     *time.Location
	log     *logger.Logger
}

// NewPeriodic parses every spec up front so a bad table fails at startup.
func NewPeriodic(client *Client, table []Schedule, loc *time.Location, log *logger.Logger) (*Periodic, error) {
	if loc == nil {
		loc = time.UTC
	}
	p := &Periodic{client: client, entries: make(map[string]entry, len(table)), loc: loc, log: log}
	for _, row := range table {
		sched, err := cron.ParseStandard(row.Spec)
		if err != nil {
			return nil, fmt.Errorf("schedule %s: %w", row.Name, err)
		}
		if _, dup := p.entries[row.Name]; dup {
			return nil, fmt.Errorf("schedule %s: duplicate name", row.Name)
		}
		p.entries[row.Name] = entry{Schedule: row, schedule: sched}
	}
	return p, nil
}

// Next reports when the named row fires after t.
func (p *Periodic) Next(name string, t time.Time) (time.Time, bool) {
	e, ok := p.entries[name]
	if !ok {
		return time.Time{}, false
	}
	return e.schedule.Next(t.In(p.loc)), true
}

// Fire enqueues the task of the named row now.
func (p *Periodic) Fire(ctx context.Context, name string) error {
	e, ok := p.entries[name]
	if !ok {
		return fmt.Errorf("unknown schedule %s", name)
	}
	err := p.client.enqueue(ctx, asynq.NewTask(e.Task, nil), asynq.Unique(sweepUniqueFor))
	if err != nil && !isDuplicate(err) {
		return err
	}
	return nil
}

// Run drives the table until ctx is done.
func (p *Periodic) Run(ctx context.Context) {
	c := cron.New(cron.WithLocation(p.loc))
	for name, e := range p.entries {
		c.Schedule(e.schedule, cron.FuncJob(func() {
			if err := p.Fire(ctx, name); err != nil {
				p.log.Error("periodic enqueue failed", "schedule", name, "error", err)
			}
		}))
	}
	c.Start()
	p.log.Info("periodic schedule started", "entries", len(p.entries), "timezone", p.loc.String())
	<-ctx.Done()
	<-c.Stop().Done()
}

func isDuplicate(err error) bool {
	return errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict)
}
