// Package event implements the append-only registry of operational context
// events and its derived snapshot cache. Every domain mutation in the six
// upstream read-models is observed here as an immutable Event.
package event

import (
	"encoding/json"
	"strings"
	"time"
)

// Source identifiers for the six operational domains.
const (
	SourceTasks     = "tasks"
	SourceWorkflows = "workflows"
	SourceCalendar  = "calendar"
	SourcePlaybooks = "playbooks"
	SourceTeams     = "teams"
	SourceOrders    = "orders"
)

// Type identifiers for well-known event types. Types are dot-namespaced;
// the prefix names the owning domain.
const (
	TypeTaskCreated     = "task.created"
	TypeTaskAssigned    = "task.assigned"
	TypeTaskBlocked     = "task.blocked"
	TypeTaskUnblocked   = "task.unblocked"
	TypeTaskCompleted   = "task.completed"
	TypeTaskArchived    = "task.archived"
	TypeWorkflowStarted        = "workflow.started"
	TypeWorkflowStageCompleted = "workflow.stage_completed"
	TypeWorkflowCompleted      = "workflow.completed"
	TypeCalendarCreated        = "calendar.event_created"
	TypeCalendarCompleted      = "calendar.event_completed"
	TypeCalendarDeadlineMissed = "calendar.deadline_missed"
	TypePlaybookActivated = "playbook.activated"
	TypePlaybookExecuted  = "playbook.executed"
	TypeTeamMemberAdded     = "team.member_added"
	TypeTeamMemberRemoved   = "team.member_removed"
	TypeTeamCapacityChanged = "team.capacity_changed"
	TypeOrderCreated   = "order.created"
	TypeOrderUpdated   = "order.updated"
	TypeOrderFulfilled = "order.fulfilled"
)

// typeSource maps a type's dot prefix to its source domain.
var typeSource = map[string]string{
	"task":     SourceTasks,
	"workflow": SourceWorkflows,
	"calendar": SourceCalendar,
	"playbook": SourcePlaybooks,
	"team":     SourceTeams,
	"order":    SourceOrders,
}

var knownTypes = map[string]bool{
	TypeTaskCreated: true, TypeTaskAssigned: true, TypeTaskBlocked: true,
	TypeTaskUnblocked: true, TypeTaskCompleted: true, TypeTaskArchived: true,
	TypeWorkflowStarted: true, TypeWorkflowStageCompleted: true, TypeWorkflowCompleted: true,
	TypeCalendarCreated: true, TypeCalendarCompleted: true, TypeCalendarDeadlineMissed: true,
	TypePlaybookActivated: true, TypePlaybookExecuted: true,
	TypeTeamMemberAdded: true, TypeTeamMemberRemoved: true, TypeTeamCapacityChanged: true,
	TypeOrderCreated: true, TypeOrderUpdated: true, TypeOrderFulfilled: true,
}

// ValidType reports whether evType belongs to the closed event-type set.
func ValidType(evType string) bool { return knownTypes[evType] }

// SourceForType returns the owning domain for a dot-namespaced type,
// or "" when the prefix is unknown.
func SourceForType(evType string) string {
	prefix, _, ok := strings.Cut(evType, ".")
	if !ok {
		return ""
	}
	return typeSource[prefix]
}

// Metadata carries optional context attached at registration time.
type Metadata struct {
	ActorID   string   `json:"actor_id,omitempty"`
	TeamID    string   `json:"team_id,omitempty"`
	LinkedIDs []string `json:"linked_ids,omitempty"`
}

// Event is an immutable record of a domain mutation. Once registered it is
// never modified; ordering is by timestamp with ties broken by insertion
// order.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Source     string          `json:"source"`
	EntityID   string          `json:"entity_id"`
	EntityType string          `json:"entity_type"`
	Action     string          `json:"action"`
	Payload    json.RawMessage `json:"payload,omitempty"` // type-specific, see Decode helpers
	Metadata   Metadata        `json:"metadata"`
	Timestamp  time.Time       `json:"timestamp"`

	seq uint64 // insertion order, assigned by the registry
}

// TaskPayload is the decoded Payload for task.* events.
type TaskPayload struct {
	TaskID     string `json:"task_id"`
	Title      string `json:"title,omitempty"`
	Status     string `json:"status,omitempty"`
	Priority   string `json:"priority,omitempty"`
	AssigneeID string `json:"assignee_id,omitempty"`
}

// WorkflowPayload is the decoded Payload for workflow.* events.
type WorkflowPayload struct {
	WorkflowID string `json:"workflow_id"`
	StageID    string `json:"stage_id,omitempty"`
}

// CalendarPayload is the decoded Payload for calendar.* events.
type CalendarPayload struct {
	EventID string    `json:"event_id"`
	Kind    string    `json:"kind,omitempty"`
	Date    time.Time `json:"date,omitempty"`
	OrderID string    `json:"order_id,omitempty"`
}

// PlaybookPayload is the decoded Payload for playbook.* events.
type PlaybookPayload struct {
	PlaybookID string `json:"playbook_id"`
	Execution  string `json:"execution,omitempty"`
}

// TeamPayload is the decoded Payload for team.* events.
type TeamPayload struct {
	TeamID   string `json:"team_id"`
	UserID   string `json:"user_id,omitempty"`
	Capacity int    `json:"capacity,omitempty"`
}

// OrderPayload is the decoded Payload for order.* events.
type OrderPayload struct {
	OrderID  string    `json:"order_id"`
	Status   string    `json:"status,omitempty"`
	Deadline time.Time `json:"deadline,omitempty"`
}

// DecodePayload decodes the event payload into the typed struct for its
// domain. The returned value is one of *TaskPayload, *WorkflowPayload,
// *CalendarPayload, *PlaybookPayload, *TeamPayload or *OrderPayload.
func DecodePayload(ev Event) (any, error) {
	var dst any
	switch SourceForType(ev.Type) {
	case SourceTasks:
		dst = &TaskPayload{}
	case SourceWorkflows:
		dst = &WorkflowPayload{}
	case SourceCalendar:
		dst = &CalendarPayload{}
	case SourcePlaybooks:
		dst = &PlaybookPayload{}
	case SourceTeams:
		dst = &TeamPayload{}
	case SourceOrders:
		dst = &OrderPayload{}
	default:
		return nil, ErrUnknownType
	}
	if len(ev.Payload) == 0 {
		return dst, nil
	}
	if err := json.Unmarshal(ev.Payload, dst); err != nil {
		return nil, err
	}
	return dst, nil
}

// NewEvent constructs an unregistered Event with a marshaled payload.
// Register assigns the ID and timestamp.
func NewEvent(evType, entityID, entityType, action string, payload any, meta Metadata) (Event, error) {
	var raw json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return Event{}, err
		}
		raw = b
	}
	return Event{
		Type:       evType,
		Source:     SourceForType(evType),
		EntityID:   entityID,
		EntityType: entityType,
		Action:     action,
		Payload:    raw,
		Metadata:   meta,
	}, nil
}
