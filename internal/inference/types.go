// Package inference owns both sides of the wire boundary to the external
// inference service: the request pair built by the prompt builder and the
// raw JSON result the processor validates.
package inference

import (
	"context"
	"fmt"

	oerrors "github.com/p-blackswan/opsengine/internal/errors"
	"github.com/p-blackswan/opsengine/internal/prompt"
)

// Service is the inference boundary. Implementations must be safe to
// retry: downstream validation and deduplication are idempotent for
// identical raw input.
type Service interface {
	Analyze(ctx context.Context, p prompt.Prompt) (*RawResult, error)
}

// Unconfigured is the Service used when no inference endpoint is set.
// Every call fails with ErrUnavailable.
type Unconfigured struct{}

func (Unconfigured) Analyze(ctx context.Context, p prompt.Prompt) (*RawResult, error) {
	return nil, fmt.Errorf("no inference endpoint configured: %w", oerrors.ErrUnavailable)
}

// RawAssignee is a recommended assignee reference as returned by the model.
type RawAssignee struct {
	UserID string `json:"userId"`
	Reason string `json:"reason,omitempty"`
}

// RawContextLink ties a suggestion to the context items that motivated it.
type RawContextLink struct {
	Type        string `json:"type"`
	ReferenceID string `json:"referenceId"`
	Label       string `json:"label,omitempty"`
	Role        string `json:"role,omitempty"` // primary | supporting
}

// RawSuggestion is a proposed new unit of work, unvalidated.
type RawSuggestion struct {
	Title                string           `json:"title"`
	Description          string           `json:"description,omitempty"`
	Rationale            string           `json:"rationale"`
	RecommendedAssignees []RawAssignee    `json:"recommendedAssignees"`
	RecommendedTeamID    string           `json:"recommendedTeamId,omitempty"`
	SuggestedDueDate     string           `json:"suggestedDueDate,omitempty"`
	Priority             string           `json:"priority"`
	EstimatedMinutes     int              `json:"estimatedMinutes,omitempty"`
	Tags                 []string         `json:"tags,omitempty"`
	Checklist            []string         `json:"checklist,omitempty"`
	Dependencies         []string         `json:"dependencies,omitempty"`
	WorkflowContext      string           `json:"workflowContext,omitempty"`
	Location             string           `json:"location,omitempty"`
	Contexts             []RawContextLink `json:"contexts"`
	Confidence           float64          `json:"confidence"`
	ExpectedOutcome      string           `json:"expectedOutcome"`
	Highlights           []string         `json:"highlights,omitempty"`
}

// RawOptimization is a proposed mutation to an existing task, unvalidated.
type RawOptimization struct {
	TaskID           string  `json:"taskId"`
	TaskTitle        string  `json:"taskTitle"`
	Action           string  `json:"action"`
	CurrentValue     string  `json:"currentValue"`
	SuggestedValue   string  `json:"suggestedValue"`
	Rationale        string  `json:"rationale"`
	Confidence       float64 `json:"confidence"`
	ExpectedImpact   string  `json:"expectedImpact"`
	RequiresApproval bool    `json:"requiresApproval"`
}

// RawAnalysis is the model's self-reported analysis block.
type RawAnalysis struct {
	TotalContextItems         int                `json:"totalContextItems"`
	OptimizationOpportunities int                `json:"optimizationOpportunities"`
	RiskFactors               []string           `json:"riskFactors"`
	OptimizationGoalWeights   map[string]float64 `json:"optimizationGoalWeights"`
}

// RawResult is the full inference response, schema version prompt.SchemaVersion.
type RawResult struct {
	Suggestions   []RawSuggestion   `json:"suggestions"`
	Optimizations []RawOptimization `json:"optimizations"`
	Analysis      RawAnalysis       `json:"analysis"`
}
