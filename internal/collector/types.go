// Package collector aggregates the six operational read-models into a
// normalized, time-windowed context snapshot.
package collector

import (
	"time"

	"github.com/p-blackswan/opsengine/internal/models"
)

// SnapshotVersion tags the snapshot layout. Bump when sub-context shapes
// change incompatibly.
const SnapshotVersion = "v1"

// TaskSummary is derived purely from the categorized task lists.
type TaskSummary struct {
	TotalActive              int     `json:"total_active"`
	TotalCompleted           int     `json:"total_completed"`
	TotalBlocked             int     `json:"total_blocked"`
	TotalUpcoming            int     `json:"total_upcoming"`
	CompletionRate           float64 `json:"completion_rate"`            // completed / all tasks * 100
	BlockedPercentage        float64 `json:"blocked_percentage"`         // blocked / active * 100
	AverageCompletionMinutes float64 `json:"average_completion_minutes"` // outliers excluded
}

// TaskContext partitions tasks relative to the horizon window.
type TaskContext struct {
	Active    []models.Task `json:"active"`
	Completed []models.Task `json:"completed"`
	Blocked   []models.Task `json:"blocked"`
	Upcoming  []models.Task `json:"upcoming"`
	Summary   TaskSummary   `json:"summary"`
}

// Bottleneck marks a workflow stage with more than two declared
// dependencies. ItemCount is the number of downstream stages that depend
// on it.
type Bottleneck struct {
	WorkflowID      string `json:"workflow_id"`
	WorkflowName    string `json:"workflow_name"`
	StageID         string `json:"stage_id"`
	StageName       string `json:"stage_name"`
	DependencyCount int    `json:"dependency_count"`
	ItemCount       int    `json:"item_count"`
}

// WorkflowSummary is derived from the active workflow list.
type WorkflowSummary struct {
	TotalActive           int     `json:"total_active"`
	TotalActiveItems      int     `json:"total_active_items"`
	TotalBottlenecks      int     `json:"total_bottlenecks"`
	AverageCompletionRate float64 `json:"average_completion_rate"`
}

// WorkflowContext holds active workflows and their bottleneck stages.
type WorkflowContext struct {
	Active      []models.Workflow `json:"active"`
	Bottlenecks []Bottleneck      `json:"bottlenecks"`
	Summary     WorkflowSummary   `json:"summary"`
}

// CalendarSummary is derived from the categorized calendar lists.
type CalendarSummary struct {
	TotalUpcoming  int `json:"total_upcoming"`
	TotalDeadlines int `json:"total_deadlines"`
	TotalMeetings  int `json:"total_meetings"`
	Next7Days      int `json:"next_7_days"`
	Next14Days     int `json:"next_14_days"`
}

// CalendarContext holds upcoming calendar entries within the horizon.
type CalendarContext struct {
	Upcoming  []models.CalendarEvent `json:"upcoming"`
	Deadlines []models.CalendarEvent `json:"deadlines"`
	Meetings  []models.CalendarEvent `json:"meetings"`
	Summary   CalendarSummary        `json:"summary"`
}

// PlaybookSummary is derived from the active playbook list.
type PlaybookSummary struct {
	TotalActive          int     `json:"total_active"`
	TotalExecutions      int     `json:"total_executions"`
	AverageExecutionRate float64 `json:"average_execution_rate"`
}

// PlaybookContext holds active playbooks.
type PlaybookContext struct {
	Active  []models.Playbook `json:"active"`
	Summary PlaybookSummary   `json:"summary"`
}

// TeamUtilization pairs a team with its current load.
type TeamUtilization struct {
	Team          models.Team `json:"team"`
	ActiveTasks   int         `json:"active_tasks"`
	Utilization   float64     `json:"utilization"` // activeTasks / capacity
	Overloaded    bool        `json:"overloaded"`  // utilization > 0.9
	Underutilized bool        `json:"underutilized"` // utilization < 0.3
}

// TeamSummary aggregates capacity across teams.
type TeamSummary struct {
	TotalTeams         int `json:"total_teams"`
	TotalCapacity      int `json:"total_capacity"`
	UsedCapacity       int `json:"used_capacity"`
	AvailableCapacity  int `json:"available_capacity"`
	OverloadedTeams    int `json:"overloaded_teams"`
	UnderutilizedTeams int `json:"underutilized_teams"`
}

// TeamContext holds per-team utilization.
type TeamContext struct {
	Teams   []TeamUtilization `json:"teams"`
	Summary TeamSummary       `json:"summary"`
}

// Order is derived from a calendar deadline entry carrying an order
// reference; there is no standalone order read-model.
type Order struct {
	OrderID   string    `json:"order_id"`
	Title     string    `json:"title"`
	Deadline  time.Time `json:"deadline"`
	TeamID    string    `json:"team_id,omitempty"`
	IsOverdue bool      `json:"is_overdue"`
}

// OrderSummary is derived from the order lists.
type OrderSummary struct {
	TotalOrders  int `json:"total_orders"`
	TotalOverdue int `json:"total_overdue"`
}

// OrderContext holds derived orders.
type OrderContext struct {
	Orders  []Order      `json:"orders"`
	Overdue []Order      `json:"overdue"`
	Summary OrderSummary `json:"summary"`
}

// Context is the point-in-time, read-only aggregate fed to the prompt
// builder. Every sub-context summary is derivable from its lists alone.
type Context struct {
	Tasks     TaskContext     `json:"tasks"`
	Workflows WorkflowContext `json:"workflows"`
	Calendar  CalendarContext `json:"calendar"`
	Playbooks PlaybookContext `json:"playbooks"`
	Teams     TeamContext     `json:"teams"`
	Orders    OrderContext    `json:"orders"`

	CollectedAt     time.Time `json:"collected_at"`
	TimeHorizonDays int       `json:"time_horizon_days"`
	TotalEvents     int       `json:"total_events"`
	SnapshotVersion string    `json:"snapshot_version"`

	// Warnings names domains that returned a degraded (zero) sub-context.
	Warnings []string `json:"warnings,omitempty"`
}
