// Package prompt turns a context snapshot and weighted optimization goals
// into the deterministic two-part prompt for the inference service.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/p-blackswan/opsengine/internal/collector"
	"github.com/p-blackswan/opsengine/internal/goals"
	"github.com/p-blackswan/opsengine/internal/models"
)

// Strategy selects the system prompt template.
type Strategy string

const (
	StrategyMinimal     Strategy = "minimal"
	StrategyOptimized   Strategy = "optimized"
	StrategyFewShot     Strategy = "few_shot"
	StrategyConstrained Strategy = "constrained"
)

// Valid reports whether s is a known strategy.
func (s Strategy) Valid() bool {
	switch s {
	case StrategyMinimal, StrategyOptimized, StrategyFewShot, StrategyConstrained:
		return true
	}
	return false
}

// Prompt is the two-part inference request payload.
type Prompt struct {
	System string `json:"systemPrompt"`
	User   string `json:"userMessage"`
}

// Input bundles everything a build needs. Users and Teams are the closed
// identifier lists the model output is constrained to.
type Input struct {
	Snapshot *collector.Context
	Weights  goals.Weights
	Users    []models.User
	Teams    []models.Team
}

// Builder builds prompts. Pure and synchronous: identical input produces
// an identical prompt.
type Builder struct {
	strategy    Strategy
	tokenBudget int
	topN        int
}

// NewBuilder creates a builder. tokenBudget bounds the user message size
// (approximated at four characters per token); zero means the default.
func NewBuilder(strategy Strategy, tokenBudget int) (*Builder, error) {
	if !strategy.Valid() {
		return nil, fmt.Errorf("unknown prompt strategy %q", strategy)
	}
	if tokenBudget <= 0 {
		tokenBudget = 4000
	}
	return &Builder{strategy: strategy, tokenBudget: tokenBudget, topN: 5}, nil
}

// Build produces the prompt pair for the input.
func (b *Builder) Build(in Input) (Prompt, error) {
	if in.Snapshot == nil {
		return Prompt{}, fmt.Errorf("nil snapshot")
	}
	if err := in.Weights.Validate(); err != nil {
		return Prompt{}, err
	}
	w := in.Weights.Normalize()

	system := b.systemPrompt(w)

	// Shrink the per-section item cap until the message fits the budget.
	user := ""
	for n := b.topN; n >= 1; n-- {
		user = b.userMessage(in, n)
		if estimateTokens(user) <= b.tokenBudget {
			break
		}
	}

	return Prompt{System: system, User: user}, nil
}

func (b *Builder) systemPrompt(w goals.Weights) string {
	var sb strings.Builder

	switch b.strategy {
	case StrategyMinimal:
		sb.WriteString("You are a manufacturing operations analyst. Review the operational context and propose new tasks (suggestions) and changes to existing tasks (optimizations).\n\n")
	case StrategyFewShot:
		sb.WriteString("You are a manufacturing operations analyst for a production planning system. Study the operational context below and propose actionable suggestions and optimizations.\n\n")
	case StrategyConstrained:
		sb.WriteString("You are a conservative manufacturing operations analyst. Propose only changes with strong evidence in the context; prefer fewer, higher-confidence items. When in doubt, omit the item.\n\n")
	default: // StrategyOptimized
		sb.WriteString("You are an expert manufacturing operations analyst for a production planning system. Analyze the operational context holistically: blocked work, workflow bottlenecks, approaching deadlines, team load and overdue orders. Propose new tasks (suggestions) that unblock or de-risk the operation, and targeted mutations to existing tasks (optimizations).\n\n")
	}

	fmt.Fprintf(&sb, "Optimization goal weighting: capacity utilization %.0f%%, timeline optimization %.0f%%, process efficiency %.0f%%.\n\n",
		w.CapacityUtilization*100, w.TimelineOptimization*100, w.ProcessEfficiency*100)

	sb.WriteString("Output schema (version " + SchemaVersion + "):\n")
	sb.WriteString(outputSchema)
	sb.WriteString("\n\n")
	sb.WriteString(promptRules)

	if b.strategy == StrategyFewShot {
		sb.WriteString("\n\n")
		sb.WriteString(fewShotExample)
	}

	return sb.String()
}

func (b *Builder) userMessage(in Input, topN int) string {
	snap := in.Snapshot
	var sb strings.Builder

	fmt.Fprintf(&sb, "OPERATIONAL CONTEXT (collected %s, horizon %d days, %d events observed, snapshot %s)\n\n",
		snap.CollectedAt.UTC().Format("2006-01-02 15:04:05"),
		snap.TimeHorizonDays, snap.TotalEvents, snap.SnapshotVersion)

	ts := snap.Tasks.Summary
	fmt.Fprintf(&sb, "TASKS: %d active, %d blocked (%.1f%% of active), %d completed in window, %d upcoming. Completion rate %.1f%%, avg completion %.0f min.\n",
		ts.TotalActive, ts.TotalBlocked, ts.BlockedPercentage, ts.TotalCompleted, ts.TotalUpcoming, ts.CompletionRate, ts.AverageCompletionMinutes)
	for i, t := range topTasks(snap.Tasks.Blocked, topN) {
		fmt.Fprintf(&sb, "  blocked[%d]: %s (id=%s, priority=%s, team=%s)\n", i+1, t.Title, t.ID, t.Priority, t.TeamID)
	}

	ws := snap.Workflows.Summary
	fmt.Fprintf(&sb, "WORKFLOWS: %d active, %d items in flight, avg completion %.1f%%, %d bottlenecks.\n",
		ws.TotalActive, ws.TotalActiveItems, ws.AverageCompletionRate, ws.TotalBottlenecks)
	for i, bn := range topBottlenecks(snap.Workflows.Bottlenecks, topN) {
		fmt.Fprintf(&sb, "  bottleneck[%d]: %s / %s (%d dependencies, %d dependents)\n",
			i+1, bn.WorkflowName, bn.StageName, bn.DependencyCount, bn.ItemCount)
	}

	cs := snap.Calendar.Summary
	fmt.Fprintf(&sb, "CALENDAR: %d upcoming (%d deadlines, %d meetings); %d in next 7 days, %d in next 14.\n",
		cs.TotalUpcoming, cs.TotalDeadlines, cs.TotalMeetings, cs.Next7Days, cs.Next14Days)
	for i, ev := range topDeadlines(snap.Calendar.Deadlines, topN) {
		fmt.Fprintf(&sb, "  deadline[%d]: %s on %s\n", i+1, ev.Title, ev.Date.UTC().Format("2006-01-02"))
	}

	ps := snap.Playbooks.Summary
	fmt.Fprintf(&sb, "PLAYBOOKS: %d active, %d executions, avg execution rate %.1f%%.\n",
		ps.TotalActive, ps.TotalExecutions, ps.AverageExecutionRate)

	tms := snap.Teams.Summary
	fmt.Fprintf(&sb, "TEAMS: %d teams, capacity %d used / %d total (%d available); %d overloaded, %d underutilized.\n",
		tms.TotalTeams, tms.UsedCapacity, tms.TotalCapacity, tms.AvailableCapacity, tms.OverloadedTeams, tms.UnderutilizedTeams)
	for _, tu := range snap.Teams.Teams {
		if tu.Overloaded {
			fmt.Fprintf(&sb, "  OVERLOADED: %s at %.0f%% (%d/%d)\n", tu.Team.Name, tu.Utilization*100, tu.ActiveTasks, tu.Team.Capacity)
		} else if tu.Underutilized {
			fmt.Fprintf(&sb, "  underutilized: %s at %.0f%% (%d/%d)\n", tu.Team.Name, tu.Utilization*100, tu.ActiveTasks, tu.Team.Capacity)
		}
	}

	ords := snap.Orders.Summary
	fmt.Fprintf(&sb, "ORDERS: %d tracked, %d overdue.\n", ords.TotalOrders, ords.TotalOverdue)
	for i, o := range snap.Orders.Overdue {
		if i >= topN {
			break
		}
		fmt.Fprintf(&sb, "  overdue[%d]: %s (order=%s, due %s)\n", i+1, o.Title, o.OrderID, o.Deadline.UTC().Format("2006-01-02"))
	}

	if len(snap.Warnings) > 0 {
		fmt.Fprintf(&sb, "\nNOTE: degraded domains in this snapshot: %s.\n", strings.Join(snap.Warnings, ", "))
	}

	sb.WriteString("\nVALID USERS:\n")
	for _, u := range in.Users {
		fmt.Fprintf(&sb, "  %s: %s\n", u.ID, u.Name)
	}
	sb.WriteString("VALID TEAMS:\n")
	for _, t := range in.Teams {
		fmt.Fprintf(&sb, "  %s: %s\n", t.ID, t.Name)
	}

	return sb.String()
}

// topTasks orders blocked tasks by priority (critical first) then title,
// and caps the list at n.
func topTasks(tasks []models.Task, n int) []models.Task {
	rank := map[models.Priority]int{
		models.PriorityCritical: 0,
		models.PriorityHigh:     1,
		models.PriorityMedium:   2,
		models.PriorityLow:      3,
	}
	sorted := append([]models.Task(nil), tasks...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if rank[sorted[i].Priority] != rank[sorted[j].Priority] {
			return rank[sorted[i].Priority] < rank[sorted[j].Priority]
		}
		return sorted[i].Title < sorted[j].Title
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// topBottlenecks orders by dependency count descending, then stage name.
func topBottlenecks(bns []collector.Bottleneck, n int) []collector.Bottleneck {
	sorted := append([]collector.Bottleneck(nil), bns...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].DependencyCount != sorted[j].DependencyCount {
			return sorted[i].DependencyCount > sorted[j].DependencyCount
		}
		return sorted[i].StageName < sorted[j].StageName
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// topDeadlines orders by date ascending.
func topDeadlines(events []models.CalendarEvent, n int) []models.CalendarEvent {
	sorted := append([]models.CalendarEvent(nil), events...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}

// estimateTokens approximates token count at four characters per token.
func estimateTokens(s string) int {
	return len(s) / 4
}
