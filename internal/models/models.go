// Package models defines the shapes of the upstream operational read-models.
// The engine never mutates these; it only lists current items (§ read-only
// collaborator contract) and observes changes as events.
package models

import "time"

// Priority is the closed set of task priorities.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// TaskStatus is the closed set of task states.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskBlocked    TaskStatus = "blocked"
	TaskCompleted  TaskStatus = "completed"
	TaskArchived   TaskStatus = "archived"
)

// CalendarEventType is the closed set of calendar entry kinds.
type CalendarEventType string

const (
	CalendarDeadline  CalendarEventType = "deadline"
	CalendarMilestone CalendarEventType = "milestone"
	CalendarMeeting   CalendarEventType = "meeting"
	CalendarGeneric   CalendarEventType = "event"
)

// User is a member of the organization.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

// Team groups users and carries a task capacity.
type Team struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	MemberIDs []string `json:"member_ids"`
	Capacity  int      `json:"capacity"` // concurrent active tasks the team can absorb
}

// HasMember reports whether userID belongs to the team.
func (t Team) HasMember(userID string) bool {
	for _, id := range t.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}

// Task is a unit of work in the production plan.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Status      TaskStatus `json:"status"`
	Priority    Priority   `json:"priority"`
	AssigneeIDs []string   `json:"assignee_ids,omitempty"`
	TeamID      string     `json:"team_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	DueStart    *time.Time `json:"due_start,omitempty"`
	DueEnd      *time.Time `json:"due_end,omitempty"`
}

// Active reports whether the task still counts against capacity.
func (t Task) Active() bool {
	return t.Status != TaskCompleted && t.Status != TaskArchived
}

// Stage is a step in a workflow with declared dependencies on other stages.
type Stage struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	DependsOn []string `json:"depends_on,omitempty"`
}

// Workflow is a production workflow template with ordered stages.
type Workflow struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Active         bool    `json:"active"`
	Stages         []Stage `json:"stages,omitempty"`
	ActiveItems    int     `json:"active_items"`
	CompletionRate float64 `json:"completion_rate"` // 0..100
}

// CalendarEvent is a dated entry: deadline, milestone, meeting or generic event.
type CalendarEvent struct {
	ID        string            `json:"id"`
	Title     string            `json:"title"`
	Type      CalendarEventType `json:"type"`
	Date      time.Time         `json:"date"`
	Completed bool              `json:"completed"`
	OrderID   string            `json:"order_id,omitempty"` // set when the entry tracks an order deadline
	TeamID    string            `json:"team_id,omitempty"`
}

// Playbook is a reusable operating procedure with execution tracking.
type Playbook struct {
	ID                  string `json:"id"`
	Name                string `json:"name"`
	Active              bool   `json:"active"`
	TotalExecutions     int    `json:"total_executions"`
	CompletedExecutions int    `json:"completed_executions"`
}
