package models

import (
	"context"
	"sync"
)

// Directory is the read-only contract the six upstream domains expose.
// Every method returns the current items; implementations must not require
// any ordering between calls (the collector reads them in parallel).
type Directory interface {
	ListUsers(ctx context.Context) ([]User, error)
	ListTeams(ctx context.Context) ([]Team, error)
	ListTasks(ctx context.Context) ([]Task, error)
	ListWorkflows(ctx context.Context) ([]Workflow, error)
	ListCalendarEvents(ctx context.Context) ([]CalendarEvent, error)
	ListPlaybooks(ctx context.Context) ([]Playbook, error)
}

// StaticDirectory is an in-memory Directory backed by plain slices.
// Used by tests and by deployments that sync read-models in-process.
type StaticDirectory struct {
	mu        sync.RWMutex
	users     []User
	teams     []Team
	tasks     []Task
	workflows []Workflow
	calendar  []CalendarEvent
	playbooks []Playbook
}

// NewStaticDirectory returns an empty directory.
func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{}
}

func (d *StaticDirectory) ListUsers(ctx context.Context) ([]User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]User(nil), d.users...), nil
}

func (d *StaticDirectory) ListTeams(ctx context.Context) ([]Team, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Team(nil), d.teams...), nil
}

func (d *StaticDirectory) ListTasks(ctx context.Context) ([]Task, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Task(nil), d.tasks...), nil
}

func (d *StaticDirectory) ListWorkflows(ctx context.Context) ([]Workflow, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Workflow(nil), d.workflows...), nil
}

func (d *StaticDirectory) ListCalendarEvents(ctx context.Context) ([]CalendarEvent, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]CalendarEvent(nil), d.calendar...), nil
}

func (d *StaticDirectory) ListPlaybooks(ctx context.Context) ([]Playbook, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]Playbook(nil), d.playbooks...), nil
}

// SetUsers replaces the user list.
func (d *StaticDirectory) SetUsers(users []User) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users = users
}

// SetTeams replaces the team list.
func (d *StaticDirectory) SetTeams(teams []Team) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.teams = teams
}

// SetTasks replaces the task list.
func (d *StaticDirectory) SetTasks(tasks []Task) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = tasks
}

// SetWorkflows replaces the workflow list.
func (d *StaticDirectory) SetWorkflows(workflows []Workflow) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.workflows = workflows
}

// SetCalendarEvents replaces the calendar list.
func (d *StaticDirectory) SetCalendarEvents(events []CalendarEvent) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calendar = events
}

// SetPlaybooks replaces the playbook list.
func (d *StaticDirectory) SetPlaybooks(playbooks []Playbook) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.playbooks = playbooks
}
