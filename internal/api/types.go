package api

import (
	"encoding/json"

	"github.com/p-blackswan/opsengine/internal/event"
	"github.com/p-blackswan/opsengine/internal/goals"
)

// ProblemDetail is an RFC 7807 error response body.
type ProblemDetail struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// RegisterEventRequest is the body of POST /api/v1/events.
type RegisterEventRequest struct {
	Type       string          `json:"type"`
	EntityID   string          `json:"entity_id"`
	EntityType string          `json:"entity_type"`
	Action     string          `json:"action"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Metadata   event.Metadata  `json:"metadata"`
}

// EventListResponse is the body of GET /api/v1/events.
type EventListResponse struct {
	Events []event.Event `json:"events"`
	Total  int           `json:"total"`
}

// CollectRequest is the body of POST /api/v1/context.
type CollectRequest struct {
	HorizonDays int      `json:"horizon_days"`
	TeamIDs     []string `json:"team_ids,omitempty"`
	EventTypes  []string `json:"event_types,omitempty"`
}

// AnalyzeRequest is the body of POST /api/v1/analyze.
type AnalyzeRequest struct {
	HorizonDays int            `json:"horizon_days"`
	TeamIDs     []string       `json:"team_ids,omitempty"`
	Weights     *goals.Weights `json:"weights,omitempty"`
	Preset      string         `json:"preset,omitempty"`
}

// ActorRequest attributes a lifecycle transition to a user.
type ActorRequest struct {
	ActorID string `json:"actor_id"`
}

// HealthDetailResponse is the body of GET /api/v1/health.
type HealthDetailResponse struct {
	Status       string            `json:"status"`
	Integrations map[string]string `json:"integrations"`
	Uptime       string            `json:"uptime"`
	Version      string            `json:"version"`
}
