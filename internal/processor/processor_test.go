package processor

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oerrors "github.com/p-blackswan/opsengine/internal/errors"
	"github.com/p-blackswan/opsengine/internal/inference"
	"github.com/p-blackswan/opsengine/internal/models"
	"github.com/p-blackswan/opsengine/internal/suggest"
)

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testDirectory() *models.StaticDirectory {
	dir := models.NewStaticDirectory()
	dir.SetUsers([]models.User{
		{ID: "u1", Name: "Dana"},
		{ID: "u2", Name: "Mikko"},
	})
	dir.SetTeams([]models.Team{
		{ID: "team-a", Name: "Fabrication", MemberIDs: []string{"u1"}, Capacity: 5},
		{ID: "team-b", Name: "Logistics", MemberIDs: []string{"u2"}, Capacity: 5},
	})
	dir.SetTasks([]models.Task{
		{ID: "t1", Title: "Weld chassis", Status: models.TaskInProgress, TeamID: "team-a"},
	})
	return dir
}

func newTestProcessor(t *testing.T) *Processor {
	t.Helper()
	p, err := New(context.Background(), testDirectory(), zerolog.Nop())
	require.NoError(t, err)
	p.SetNowFunc(func() time.Time { return testNow })
	return p
}

func validRawSuggestion() inference.RawSuggestion {
	return inference.RawSuggestion{
		Title:                "Expedite paint booth maintenance",
		Rationale:            "Booth downtime blocks three tasks",
		RecommendedAssignees: []inference.RawAssignee{{UserID: "u1", Reason: "owns the booth"}},
		Priority:             "high",
		Confidence:           0.8,
		Contexts:             []inference.RawContextLink{{Type: "task", ReferenceID: "t1", Role: "primary"}},
		ExpectedOutcome:      "booth back online",
	}
}

func TestNew_EmptyDirectoryRefused(t *testing.T) {
	_, err := New(context.Background(), models.NewStaticDirectory(), zerolog.Nop())
	assert.ErrorIs(t, err, oerrors.ErrNoUsers)
}

func TestProcess_ValidSuggestionEnriched(t *testing.T) {
	p := newTestProcessor(t)

	result, err := p.Process(context.Background(), &inference.RawResult{
		Suggestions: []inference.RawSuggestion{validRawSuggestion()},
	}, nil)
	require.NoError(t, err)
	require.Len(t, result.Suggestions, 1)

	sg := result.Suggestions[0]
	assert.NotEmpty(t, sg.ID)
	assert.Empty(t, sg.ValidationErrors)
	assert.Equal(t, suggest.StatusPending, sg.Status)
	assert.Equal(t, testNow, sg.CreatedAt)

	// The first assignee is the owner and resolves by directory lookup.
	require.Len(t, sg.Assignees, 1)
	assert.Equal(t, suggest.RoleOwner, sg.Assignees[0].Role)
	assert.Equal(t, "Dana", sg.Assignees[0].Name)

	// Team derives from the owner's membership.
	assert.Equal(t, "team-a", sg.TeamID)
	assert.Equal(t, "Fabrication", sg.TeamName)
	assert.False(t, sg.TeamFromOverride)
}

func TestProcess_InvalidSuggestionFlaggedNotDiscarded(t *testing.T) {
	p := newTestProcessor(t)

	raw := validRawSuggestion()
	raw.Title = "Hm"
	raw.Priority = "urgent"
	raw.Confidence = 1.3
	raw.SuggestedDueDate = "next tuesday"

	result, err := p.Process(context.Background(), &inference.RawResult{
		Suggestions: []inference.RawSuggestion{raw},
	}, nil)
	require.NoError(t, err)
	require.Len(t, result.Suggestions, 1, "invalid items are flagged, never dropped")

	sg := result.Suggestions[0]
	assert.Equal(t, suggest.StatusPending, sg.Status)
	assert.Len(t, sg.ValidationErrors, 4)
}

func TestProcess_UnknownAssigneeGetsPlaceholder(t *testing.T) {
	p := newTestProcessor(t)

	raw := validRawSuggestion()
	raw.RecommendedAssignees = []inference.RawAssignee{{UserID: "ghost"}}
	raw.RecommendedTeamID = "team-b"

	result, err := p.Process(context.Background(), &inference.RawResult{
		Suggestions: []inference.RawSuggestion{raw},
	}, nil)
	require.NoError(t, err)
	require.Len(t, result.Suggestions, 1)

	sg := result.Suggestions[0]
	require.Len(t, sg.Assignees, 1)
	assert.True(t, sg.Assignees[0].Placeholder)
	assert.Equal(t, "unknown user", sg.Assignees[0].Name)
	assert.NotEmpty(t, sg.ValidationErrors)

	// With no resolvable owner, the explicit team override applies.
	assert.Equal(t, "team-b", sg.TeamID)
	assert.True(t, sg.TeamFromOverride)
}

func TestProcess_NoResolvableTeamFlagged(t *testing.T) {
	p := newTestProcessor(t)

	raw := validRawSuggestion()
	raw.RecommendedAssignees = []inference.RawAssignee{{UserID: "ghost"}}

	result, err := p.Process(context.Background(), &inference.RawResult{
		Suggestions: []inference.RawSuggestion{raw},
	}, nil)
	require.NoError(t, err)
	require.Len(t, result.Suggestions, 1)
	assert.Contains(t, result.Suggestions[0].ValidationErrors, "no resolvable team")
}

func TestProcess_DuplicateOfExistingTaskDropped(t *testing.T) {
	p := newTestProcessor(t)

	raw := validRawSuggestion()
	raw.Title = "  Weld   CHASSIS " // normalizes to the existing task's title

	result, err := p.Process(context.Background(), &inference.RawResult{
		Suggestions: []inference.RawSuggestion{raw},
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, result.Suggestions)
	assert.Equal(t, 1, result.DroppedDuplicates)
}

func TestProcess_DuplicateOfRecentPriorDropped(t *testing.T) {
	p := newTestProcessor(t)

	prior := []suggest.Suggestion{{
		Title:     "Expedite paint booth maintenance",
		TeamID:    "team-a",
		Status:    suggest.StatusCreated,
		CreatedAt: testNow.Add(-2 * time.Hour),
	}}

	result, err := p.Process(context.Background(), &inference.RawResult{
		Suggestions: []inference.RawSuggestion{validRawSuggestion()},
	}, prior)
	require.NoError(t, err)
	assert.Empty(t, result.Suggestions)
	assert.Equal(t, 1, result.DroppedDuplicates)
}

func TestProcess_OldResolvedPriorDoesNotDedupe(t *testing.T) {
	p := newTestProcessor(t)

	prior := []suggest.Suggestion{{
		Title:     "Expedite paint booth maintenance",
		TeamID:    "team-a",
		Status:    suggest.StatusCreated,
		CreatedAt: testNow.Add(-25 * time.Hour), // outside the window, resolved
	}}

	result, err := p.Process(context.Background(), &inference.RawResult{
		Suggestions: []inference.RawSuggestion{validRawSuggestion()},
	}, prior)
	require.NoError(t, err)
	assert.Len(t, result.Suggestions, 1)
	assert.Zero(t, result.DroppedDuplicates)
}

func TestProcess_PendingPriorAlwaysDedupes(t *testing.T) {
	p := newTestProcessor(t)

	prior := []suggest.Suggestion{{
		Title:     "Expedite paint booth maintenance",
		TeamID:    "team-a",
		Status:    suggest.StatusPending,
		CreatedAt: testNow.Add(-80 * time.Hour), // stale but still pending
	}}

	result, err := p.Process(context.Background(), &inference.RawResult{
		Suggestions: []inference.RawSuggestion{validRawSuggestion()},
	}, prior)
	require.NoError(t, err)
	assert.Empty(t, result.Suggestions)
	assert.Equal(t, 1, result.DroppedDuplicates)
}

func TestProcess_InBatchDuplicateDropped(t *testing.T) {
	p := newTestProcessor(t)

	result, err := p.Process(context.Background(), &inference.RawResult{
		Suggestions: []inference.RawSuggestion{validRawSuggestion(), validRawSuggestion()},
	}, nil)
	require.NoError(t, err)
	assert.Len(t, result.Suggestions, 1)
	assert.Equal(t, 1, result.DroppedDuplicates)
}

func TestProcess_ContextLinkRoleDefaults(t *testing.T) {
	p := newTestProcessor(t)

	raw := validRawSuggestion()
	raw.Contexts = []inference.RawContextLink{{Type: "task", ReferenceID: "t1"}}

	result, err := p.Process(context.Background(), &inference.RawResult{
		Suggestions: []inference.RawSuggestion{raw},
	}, nil)
	require.NoError(t, err)
	require.Len(t, result.Suggestions, 1)
	require.Len(t, result.Suggestions[0].Contexts, 1)
	assert.Equal(t, "supporting", result.Suggestions[0].Contexts[0].Role)
}

func validRawOptimization() inference.RawOptimization {
	return inference.RawOptimization{
		TaskID:         "t1",
		TaskTitle:      "Weld chassis",
		Action:         "reprioritize",
		CurrentValue:   "medium",
		SuggestedValue: "high",
		Rationale:      "blocks downstream assembly",
		Confidence:     0.9,
	}
}

func processOne(t *testing.T, p *Processor, ro inference.RawOptimization) suggest.Optimization {
	t.Helper()
	result, err := p.Process(context.Background(), &inference.RawResult{
		Optimizations: []inference.RawOptimization{ro},
	}, nil)
	require.NoError(t, err)
	require.Len(t, result.Optimizations, 1)
	return result.Optimizations[0]
}

func TestProcess_AutoApplyAtThreshold(t *testing.T) {
	p := newTestProcessor(t)

	ro := validRawOptimization()
	ro.Confidence = 0.85
	assert.True(t, processOne(t, p, ro).CanAutoApply, "0.85 meets the threshold")

	ro.Confidence = 0.84
	assert.False(t, processOne(t, p, ro).CanAutoApply, "0.84 is below the threshold")
}

func TestProcess_SplitAndMergeNeverAutoApply(t *testing.T) {
	p := newTestProcessor(t)

	ro := validRawOptimization()
	ro.Action = "split"
	ro.SuggestedValue = "two tasks"
	ro.Confidence = 0.99
	assert.False(t, processOne(t, p, ro).CanAutoApply)

	ro.Action = "merge"
	assert.False(t, processOne(t, p, ro).CanAutoApply)
}

func TestProcess_ReprioritizeToCriticalNeverAutoApplies(t *testing.T) {
	p := newTestProcessor(t)

	ro := validRawOptimization()
	ro.SuggestedValue = "critical"
	ro.Confidence = 0.95
	assert.False(t, processOne(t, p, ro).CanAutoApply)
}

func TestProcess_RescheduleDriftBound(t *testing.T) {
	p := newTestProcessor(t)

	ro := validRawOptimization()
	ro.Action = "reschedule"
	ro.Confidence = 0.95

	ro.SuggestedValue = testNow.Add(3 * 24 * time.Hour).Format(time.RFC3339)
	assert.True(t, processOne(t, p, ro).CanAutoApply, "3 days out is within drift")

	ro.SuggestedValue = testNow.Add(10 * 24 * time.Hour).Format(time.RFC3339)
	assert.False(t, processOne(t, p, ro).CanAutoApply, "10 days out exceeds drift")
}

func TestProcess_InvalidOptimizationNeverAutoApplies(t *testing.T) {
	p := newTestProcessor(t)

	ro := validRawOptimization()
	ro.TaskID = "ghost-task"
	ro.Confidence = 0.99

	opt := processOne(t, p, ro)
	assert.NotEmpty(t, opt.ValidationErrors)
	assert.False(t, opt.CanAutoApply)
}

func TestProcess_OptimizationActionValidation(t *testing.T) {
	p := newTestProcessor(t)

	ro := validRawOptimization()
	ro.Action = "reassign"
	ro.SuggestedValue = "u2"
	assert.Empty(t, processOne(t, p, ro).ValidationErrors)

	ro.SuggestedValue = "ghost"
	assert.NotEmpty(t, processOne(t, p, ro).ValidationErrors)

	ro.Action = "reschedule"
	ro.SuggestedValue = "not-a-date"
	assert.NotEmpty(t, processOne(t, p, ro).ValidationErrors)

	ro.Action = "reprioritize"
	ro.SuggestedValue = "whenever"
	assert.NotEmpty(t, processOne(t, p, ro).ValidationErrors)
}

func TestProcess_Idempotent(t *testing.T) {
	raw := &inference.RawResult{
		Suggestions:   []inference.RawSuggestion{validRawSuggestion()},
		Optimizations: []inference.RawOptimization{validRawOptimization()},
	}

	p1 := newTestProcessor(t)
	first, err := p1.Process(context.Background(), raw, nil)
	require.NoError(t, err)

	p2 := newTestProcessor(t)
	second, err := p2.Process(context.Background(), raw, nil)
	require.NoError(t, err)

	require.Len(t, second.Suggestions, len(first.Suggestions))
	assert.Equal(t, first.Suggestions[0].Title, second.Suggestions[0].Title)
	assert.Equal(t, first.Suggestions[0].TeamID, second.Suggestions[0].TeamID)
	assert.Equal(t, first.Optimizations[0].CanAutoApply, second.Optimizations[0].CanAutoApply)
	assert.Equal(t, first.DroppedDuplicates, second.DroppedDuplicates)
}
