// Package processor validates, enriches and deduplicates raw inference
// output against current domain state.
package processor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	oerrors "github.com/p-blackswan/opsengine/internal/errors"
	"github.com/p-blackswan/opsengine/internal/inference"
	"github.com/p-blackswan/opsengine/internal/models"
	"github.com/p-blackswan/opsengine/internal/suggest"
)

const (
	minTitleLength      = 5
	autoApplyConfidence = 0.85
	// Reschedules further out than this from now never auto-apply.
	autoApplyMaxRescheduleDrift = 7 * 24 * time.Hour
	// Prior suggestions younger than this participate in deduplication.
	dedupeWindow = 24 * time.Hour
)

// Result is the processed output of one inference run. Flagged items carry
// their validation errors; duplicates are counted but not surfaced.
type Result struct {
	Suggestions       []suggest.Suggestion   `json:"suggestions"`
	Optimizations     []suggest.Optimization `json:"optimizations"`
	DroppedDuplicates int                    `json:"dropped_duplicates"`
	Analysis          inference.RawAnalysis  `json:"analysis"`
}

// Processor resolves raw inference output against the directory.
type Processor struct {
	dir    models.Directory
	nowFn  func() time.Time
	logger zerolog.Logger
}

// New creates a processor. An empty user directory is a configuration
// error and aborts construction (startup precondition, not a per-request
// failure).
func New(ctx context.Context, dir models.Directory, logger zerolog.Logger) (*Processor, error) {
	users, err := dir.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	if len(users) == 0 {
		return nil, oerrors.ErrNoUsers
	}
	return &Processor{
		dir:    dir,
		nowFn:  time.Now,
		logger: logger.With().Str("component", "processor").Logger(),
	}, nil
}

// Process validates and enriches raw output. prior holds recent and
// pending suggestions used for deduplication; processing identical raw
// input against identical state is idempotent.
func (p *Processor) Process(ctx context.Context, raw *inference.RawResult, prior []suggest.Suggestion) (*Result, error) {
	users, err := p.dir.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	teams, err := p.dir.ListTeams(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing teams: %w", err)
	}
	tasks, err := p.dir.ListTasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tasks: %w", err)
	}

	state := newDomainState(users, teams, tasks, prior, p.nowFn())

	result := &Result{
		Suggestions:   []suggest.Suggestion{},
		Optimizations: []suggest.Optimization{},
	}
	if raw.Analysis.RiskFactors != nil || raw.Analysis.TotalContextItems > 0 {
		result.Analysis = raw.Analysis
	}

	for _, rs := range raw.Suggestions {
		sugg := p.processSuggestion(rs, state)
		if sugg == nil {
			result.DroppedDuplicates++
			continue
		}
		state.remember(*sugg)
		result.Suggestions = append(result.Suggestions, *sugg)
	}

	for _, ro := range raw.Optimizations {
		result.Optimizations = append(result.Optimizations, p.processOptimization(ro, state))
	}

	p.logger.Info().
		Int("suggestions", len(result.Suggestions)).
		Int("optimizations", len(result.Optimizations)).
		Int("duplicates_dropped", result.DroppedDuplicates).
		Msg("inference output processed")

	return result, nil
}

// processSuggestion validates and enriches one raw suggestion. A nil
// return means the suggestion duplicated an existing task or a recent
// prior suggestion and was silently dropped.
func (p *Processor) processSuggestion(rs inference.RawSuggestion, state *domainState) *suggest.Suggestion {
	now := state.now
	sugg := &suggest.Suggestion{
		ID:               uuid.New().String(),
		Title:            strings.TrimSpace(rs.Title),
		Description:      rs.Description,
		Rationale:        rs.Rationale,
		Priority:         models.Priority(rs.Priority),
		EstimatedMinutes: rs.EstimatedMinutes,
		Tags:             rs.Tags,
		Checklist:        rs.Checklist,
		Dependencies:     rs.Dependencies,
		WorkflowContext:  rs.WorkflowContext,
		Location:         rs.Location,
		Confidence:       rs.Confidence,
		ExpectedOutcome:  rs.ExpectedOutcome,
		Highlights:       rs.Highlights,
		Status:           suggest.StatusPending,
		CreatedAt:        now,
	}

	var errs []string

	if len(sugg.Title) < minTitleLength {
		errs = append(errs, fmt.Sprintf("title shorter than %d characters", minTitleLength))
	}
	if !sugg.Priority.Valid() {
		errs = append(errs, fmt.Sprintf("unknown priority %q", rs.Priority))
	}
	if rs.Confidence < 0 || rs.Confidence > 1 {
		errs = append(errs, fmt.Sprintf("confidence %v outside [0,1]", rs.Confidence))
	}

	if rs.SuggestedDueDate != "" {
		due, err := parseTimestamp(rs.SuggestedDueDate)
		if err != nil {
			errs = append(errs, fmt.Sprintf("unparseable suggestedDueDate %q", rs.SuggestedDueDate))
		} else {
			sugg.SuggestedDueDate = &due
		}
	}

	// Enrich assignees. The first is the owner; unresolvable references
	// get a flagged placeholder instead of crashing or vanishing.
	resolvedAny := false
	for i, ra := range rs.RecommendedAssignees {
		role := suggest.RoleCollaborator
		if i == 0 {
			role = suggest.RoleOwner
		}
		if u, ok := state.users[ra.UserID]; ok {
			resolvedAny = true
			sugg.Assignees = append(sugg.Assignees, suggest.Assignee{
				UserID: u.ID, Name: u.Name, Role: role, Reason: ra.Reason,
			})
		} else {
			errs = append(errs, fmt.Sprintf("assignee %q is not a known user", ra.UserID))
			sugg.Assignees = append(sugg.Assignees, suggest.Assignee{
				UserID: ra.UserID, Name: "unknown user", Role: role, Reason: ra.Reason, Placeholder: true,
			})
		}
	}
	if len(rs.RecommendedAssignees) == 0 {
		errs = append(errs, "no recommended assignees")
	} else if !resolvedAny {
		errs = append(errs, "no assignee resolves to a known user")
	}

	// Team resolution walks only the owner's membership, then falls back
	// to the explicit override, then stays unresolved.
	if len(sugg.Assignees) > 0 && !sugg.Assignees[0].Placeholder {
		if team, ok := state.teamOf(sugg.Assignees[0].UserID); ok {
			sugg.TeamID = team.ID
			sugg.TeamName = team.Name
		}
	}
	if sugg.TeamID == "" && rs.RecommendedTeamID != "" {
		if team, ok := state.teams[rs.RecommendedTeamID]; ok {
			sugg.TeamID = team.ID
			sugg.TeamName = team.Name
			sugg.TeamFromOverride = true
		} else {
			errs = append(errs, fmt.Sprintf("recommendedTeamId %q is not a known team", rs.RecommendedTeamID))
		}
	}
	if sugg.TeamID == "" {
		errs = append(errs, "no resolvable team")
	}

	for _, link := range rs.Contexts {
		role := link.Role
		if role == "" {
			role = "supporting"
		}
		sugg.Contexts = append(sugg.Contexts, suggest.ContextLink{
			Type: link.Type, ReferenceID: link.ReferenceID, Label: link.Label, Role: role,
		})
	}
	if len(sugg.Contexts) == 0 {
		errs = append(errs, "no context links")
	}

	if state.isDuplicate(sugg.Title, sugg.TeamID) {
		p.logger.Debug().Str("title", sugg.Title).Str("team", sugg.TeamID).Msg("duplicate suggestion dropped")
		return nil
	}

	sugg.ValidationErrors = errs
	return sugg
}

func (p *Processor) processOptimization(ro inference.RawOptimization, state *domainState) suggest.Optimization {
	now := state.now
	opt := suggest.Optimization{
		ID:               uuid.New().String(),
		TaskID:           ro.TaskID,
		TaskTitle:        ro.TaskTitle,
		Action:           suggest.Action(ro.Action),
		CurrentValue:     ro.CurrentValue,
		SuggestedValue:   ro.SuggestedValue,
		Rationale:        ro.Rationale,
		Confidence:       ro.Confidence,
		ExpectedImpact:   ro.ExpectedImpact,
		RequiresApproval: ro.RequiresApproval,
		Status:           suggest.OptPending,
		CreatedAt:        now,
	}

	var errs []string
	var rescheduleDate time.Time

	if _, ok := state.tasks[ro.TaskID]; !ok {
		errs = append(errs, fmt.Sprintf("taskId %q is not a known task", ro.TaskID))
	}
	if !opt.Action.Valid() {
		errs = append(errs, fmt.Sprintf("unknown action %q", ro.Action))
	}
	if ro.Confidence < 0 || ro.Confidence > 1 {
		errs = append(errs, fmt.Sprintf("confidence %v outside [0,1]", ro.Confidence))
	}

	switch opt.Action {
	case suggest.ActionReschedule:
		d, err := parseTimestamp(ro.SuggestedValue)
		if err != nil {
			errs = append(errs, fmt.Sprintf("reschedule value %q is not a valid date", ro.SuggestedValue))
		} else {
			rescheduleDate = d
		}
	case suggest.ActionReassign:
		if _, ok := state.users[ro.SuggestedValue]; !ok {
			errs = append(errs, fmt.Sprintf("reassign target %q is not a known user", ro.SuggestedValue))
		}
	case suggest.ActionReprioritize:
		if !models.Priority(ro.SuggestedValue).Valid() {
			errs = append(errs, fmt.Sprintf("reprioritize value %q is not a valid priority", ro.SuggestedValue))
		}
	}

	opt.ValidationErrors = errs
	opt.CanAutoApply = canAutoApply(opt, rescheduleDate, now)
	return opt
}

// canAutoApply applies the fixed eligibility rule: validation passed,
// confidence at or above the threshold, never for split/merge, never when
// raising priority to critical, never for reschedules drifting more than
// seven days from now.
func canAutoApply(opt suggest.Optimization, rescheduleDate, now time.Time) bool {
	if len(opt.ValidationErrors) > 0 {
		return false
	}
	if opt.Confidence < autoApplyConfidence {
		return false
	}
	if opt.Action == suggest.ActionSplit || opt.Action == suggest.ActionMerge {
		return false
	}
	if opt.Action == suggest.ActionReprioritize && opt.SuggestedValue == string(models.PriorityCritical) {
		return false
	}
	if opt.Action == suggest.ActionReschedule {
		drift := rescheduleDate.Sub(now)
		if drift < 0 {
			drift = -drift
		}
		if drift > autoApplyMaxRescheduleDrift {
			return false
		}
	}
	return true
}

// parseTimestamp accepts RFC 3339 timestamps and bare dates.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

// SetNowFunc overrides the clock. Tests only.
func (p *Processor) SetNowFunc(fn func() time.Time) { p.nowFn = fn }
