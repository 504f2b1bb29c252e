package collector

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/p-blackswan/opsengine/internal/event"
	"github.com/p-blackswan/opsengine/internal/models"
)

// Request parameterizes a collection.
type Request struct {
	HorizonDays int      // look-back days; look-ahead is 2x
	TeamIDs     []string // optional team filter (teams sub-context only)
	EventTypes  []string // optional event-type filter for the event count
}

// Collector builds context snapshots. The six domain reads are independent
// and run in parallel; a failure in one yields a degraded sub-context and a
// warning, never a failed collection.
type Collector struct {
	dir      Directory
	registry *event.Registry
	nowFn    func() time.Time
	logger   zerolog.Logger
}

// Directory is the read-model contract the collector consumes. It is
// satisfied by models.Directory and kept local so tests can stub single
// domains.
type Directory interface {
	ListTasks(ctx context.Context) ([]models.Task, error)
	ListWorkflows(ctx context.Context) ([]models.Workflow, error)
	ListCalendarEvents(ctx context.Context) ([]models.CalendarEvent, error)
	ListPlaybooks(ctx context.Context) ([]models.Playbook, error)
	ListTeams(ctx context.Context) ([]models.Team, error)
}

// New creates a collector.
func New(dir Directory, registry *event.Registry, logger zerolog.Logger) *Collector {
	return &Collector{
		dir:      dir,
		registry: registry,
		nowFn:    time.Now,
		logger:   logger.With().Str("component", "collector").Logger(),
	}
}

// Collect produces one snapshot for the request's horizon. Collecting twice
// against unchanged domain state at the same instant yields identical
// summaries.
func (c *Collector) Collect(ctx context.Context, req Request) (*Context, error) {
	now := c.nowFn()
	horizonStart := now.AddDate(0, 0, -req.HorizonDays)
	// Plan further ahead than behind.
	horizonEnd := now.AddDate(0, 0, 2*req.HorizonDays)

	snap := &Context{
		CollectedAt:     now,
		TimeHorizonDays: req.HorizonDays,
		SnapshotVersion: SnapshotVersion,
	}

	if c.registry != nil {
		snap.TotalEvents = c.registry.Count(ctx, event.Filter{
			Since:   &horizonStart,
			Until:   &horizonEnd,
			Types:   req.EventTypes,
			TeamIDs: req.TeamIDs,
		})
	}

	var warnMu sync.Mutex
	degrade := func(domain string, err error) {
		c.logger.Warn().Err(err).Str("domain", domain).Msg("domain read failed, sub-context degraded")
		warnMu.Lock()
		snap.Warnings = append(snap.Warnings, domain)
		warnMu.Unlock()
	}

	// A calendar read feeds both the calendar and orders sub-contexts but
	// the reads stay independent: each goroutine issues its own query.
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		tasks, err := c.dir.ListTasks(gctx)
		if err != nil {
			degrade("tasks", err)
			return nil
		}
		snap.Tasks = collectTasks(tasks, now, horizonStart, horizonEnd)
		return nil
	})

	g.Go(func() error {
		workflows, err := c.dir.ListWorkflows(gctx)
		if err != nil {
			degrade("workflows", err)
			return nil
		}
		snap.Workflows = collectWorkflows(workflows)
		return nil
	})

	g.Go(func() error {
		events, err := c.dir.ListCalendarEvents(gctx)
		if err != nil {
			degrade("calendar", err)
			return nil
		}
		snap.Calendar = collectCalendar(events, now, horizonEnd)
		return nil
	})

	g.Go(func() error {
		playbooks, err := c.dir.ListPlaybooks(gctx)
		if err != nil {
			degrade("playbooks", err)
			return nil
		}
		snap.Playbooks = collectPlaybooks(playbooks)
		return nil
	})

	g.Go(func() error {
		teams, err := c.dir.ListTeams(gctx)
		if err != nil {
			degrade("teams", err)
			return nil
		}
		tasks, err := c.dir.ListTasks(gctx)
		if err != nil {
			degrade("teams", err)
			return nil
		}
		snap.Teams = collectTeams(teams, tasks, req.TeamIDs)
		return nil
	})

	g.Go(func() error {
		events, err := c.dir.ListCalendarEvents(gctx)
		if err != nil {
			degrade("orders", err)
			return nil
		}
		snap.Orders = collectOrders(events, now)
		return nil
	})

	if err := g.Wait(); err != nil {
		// Unreachable today: domain failures degrade instead of erroring.
		return nil, err
	}

	c.logger.Debug().
		Int("total_events", snap.TotalEvents).
		Int("horizon_days", req.HorizonDays).
		Strs("degraded", snap.Warnings).
		Msg("context collected")

	return snap, nil
}

// SetNowFunc overrides the clock. Tests only.
func (c *Collector) SetNowFunc(fn func() time.Time) { c.nowFn = fn }
