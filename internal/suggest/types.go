// Package suggest owns the lifecycle of suggestions and optimizations and
// the content-hash snapshot cache that guards redundant inference calls.
package suggest

import (
	"time"

	"github.com/p-blackswan/opsengine/internal/models"
)

// Status is the suggestion lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusApproved  Status = "approved"
	StatusDismissed Status = "dismissed"
	StatusCreated   Status = "created"
)

// Terminal reports whether no further transition is modeled from s.
func (s Status) Terminal() bool { return s != StatusPending }

// OptStatus is the optimization lifecycle state.
type OptStatus string

const (
	OptPending     OptStatus = "pending"
	OptApplied     OptStatus = "applied"
	OptRejected    OptStatus = "rejected"
	OptAutoApplied OptStatus = "auto_applied"
)

// Terminal reports whether no further transition is modeled from s.
func (s OptStatus) Terminal() bool { return s != OptPending }

// Action is the closed set of optimization actions.
type Action string

const (
	ActionReschedule   Action = "reschedule"
	ActionReassign     Action = "reassign"
	ActionReprioritize Action = "reprioritize"
	ActionSplit        Action = "split"
	ActionMerge        Action = "merge"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionReschedule, ActionReassign, ActionReprioritize, ActionSplit, ActionMerge:
		return true
	}
	return false
}

// AssigneeRole distinguishes the owner (first assignee) from collaborators.
type AssigneeRole string

const (
	RoleOwner        AssigneeRole = "owner"
	RoleCollaborator AssigneeRole = "collaborator"
)

// Assignee is a resolved assignee reference. Placeholder marks a reference
// that did not resolve to a known user and was substituted.
type Assignee struct {
	UserID      string       `json:"user_id"`
	Name        string       `json:"name"`
	Role        AssigneeRole `json:"role"`
	Reason      string       `json:"reason,omitempty"`
	Placeholder bool         `json:"placeholder,omitempty"`
}

// ContextLink ties a suggestion to a context item that motivated it.
type ContextLink struct {
	Type        string `json:"type"`
	ReferenceID string `json:"reference_id"`
	Label       string `json:"label,omitempty"`
	Role        string `json:"role"` // primary | supporting
}

// Suggestion is a validated, enriched proposal for a new unit of work.
// Validation failures flag the suggestion rather than discarding it.
type Suggestion struct {
	ID               string          `json:"id"`
	Title            string          `json:"title"`
	Description      string          `json:"description,omitempty"`
	Rationale        string          `json:"rationale"`
	Assignees        []Assignee      `json:"assignees"`
	TeamID           string          `json:"team_id,omitempty"`
	TeamName         string          `json:"team_name,omitempty"`
	TeamFromOverride bool            `json:"team_from_override,omitempty"`
	SuggestedDueDate *time.Time      `json:"suggested_due_date,omitempty"`
	Priority         models.Priority `json:"priority"`
	EstimatedMinutes int             `json:"estimated_minutes,omitempty"`
	Tags             []string        `json:"tags,omitempty"`
	Checklist        []string        `json:"checklist,omitempty"`
	Dependencies     []string        `json:"dependencies,omitempty"`
	WorkflowContext  string          `json:"workflow_context,omitempty"`
	Location         string          `json:"location,omitempty"`
	Contexts         []ContextLink   `json:"contexts"`
	Confidence       float64         `json:"confidence"`
	ExpectedOutcome  string          `json:"expected_outcome"`
	Highlights       []string        `json:"highlights,omitempty"`

	Status           Status     `json:"status"`
	ValidationErrors []string   `json:"validation_errors,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy       string     `json:"resolved_by,omitempty"`
}

// Optimization is a validated proposal to mutate an existing task.
type Optimization struct {
	ID               string  `json:"id"`
	TaskID           string  `json:"task_id"`
	TaskTitle        string  `json:"task_title"`
	Action           Action  `json:"action"`
	CurrentValue     string  `json:"current_value"`
	SuggestedValue   string  `json:"suggested_value"`
	Rationale        string  `json:"rationale"`
	Confidence       float64 `json:"confidence"`
	ExpectedImpact   string  `json:"expected_impact"`
	RequiresApproval bool    `json:"requires_approval"`
	CanAutoApply     bool    `json:"can_auto_apply"`

	Status           OptStatus  `json:"status"`
	ValidationErrors []string   `json:"validation_errors,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy       string     `json:"resolved_by,omitempty"`
}
