package collector

import (
	"time"

	"github.com/p-blackswan/opsengine/internal/models"
)

// completionOutlierMinutes excludes completions whose duration exceeds this
// from the average (bulk-imported or misdated tasks).
const completionOutlierMinutes = 100000

// Team utilization thresholds.
const (
	overloadedThreshold    = 0.9
	underutilizedThreshold = 0.3
)

// bottleneckDependencyThreshold: a stage with more declared dependencies
// than this is a bottleneck.
const bottleneckDependencyThreshold = 2

func collectTasks(tasks []models.Task, now, horizonStart, horizonEnd time.Time) TaskContext {
	tc := TaskContext{
		Active:    []models.Task{},
		Completed: []models.Task{},
		Blocked:   []models.Task{},
		Upcoming:  []models.Task{},
	}

	for _, t := range tasks {
		if t.Active() {
			tc.Active = append(tc.Active, t)
		}
		if t.Status == models.TaskCompleted && t.CompletedAt != nil && !t.CompletedAt.Before(horizonStart) {
			tc.Completed = append(tc.Completed, t)
		}
		if t.Status == models.TaskBlocked {
			tc.Blocked = append(tc.Blocked, t)
		}
		if t.DueEnd != nil && t.DueEnd.After(now) && !t.DueEnd.After(horizonEnd) {
			tc.Upcoming = append(tc.Upcoming, t)
		}
	}

	tc.Summary = TaskSummary{
		TotalActive:    len(tc.Active),
		TotalCompleted: len(tc.Completed),
		TotalBlocked:   len(tc.Blocked),
		TotalUpcoming:  len(tc.Upcoming),
	}
	if len(tasks) > 0 {
		tc.Summary.CompletionRate = float64(len(tc.Completed)) / float64(len(tasks)) * 100
	}
	if len(tc.Active) > 0 {
		tc.Summary.BlockedPercentage = float64(len(tc.Blocked)) / float64(len(tc.Active)) * 100
	}

	var totalMinutes float64
	counted := 0
	for _, t := range tc.Completed {
		if t.CompletedAt == nil || t.CreatedAt.IsZero() || t.CompletedAt.Before(t.CreatedAt) {
			continue
		}
		minutes := t.CompletedAt.Sub(t.CreatedAt).Minutes()
		if minutes > completionOutlierMinutes {
			continue
		}
		totalMinutes += minutes
		counted++
	}
	if counted > 0 {
		tc.Summary.AverageCompletionMinutes = totalMinutes / float64(counted)
	}

	return tc
}

func collectWorkflows(workflows []models.Workflow) WorkflowContext {
	wc := WorkflowContext{
		Active:      []models.Workflow{},
		Bottlenecks: []Bottleneck{},
	}

	var rateSum float64
	for _, w := range workflows {
		if !w.Active {
			continue
		}
		wc.Active = append(wc.Active, w)
		wc.Summary.TotalActiveItems += w.ActiveItems
		rateSum += w.CompletionRate

		// Dependent-stage count per stage; this is the bottleneck's
		// deterministic item metric.
		dependents := make(map[string]int, len(w.Stages))
		for _, s := range w.Stages {
			for _, dep := range s.DependsOn {
				dependents[dep]++
			}
		}
		for _, s := range w.Stages {
			if len(s.DependsOn) > bottleneckDependencyThreshold {
				wc.Bottlenecks = append(wc.Bottlenecks, Bottleneck{
					WorkflowID:      w.ID,
					WorkflowName:    w.Name,
					StageID:         s.ID,
					StageName:       s.Name,
					DependencyCount: len(s.DependsOn),
					ItemCount:       dependents[s.ID],
				})
			}
		}
	}

	wc.Summary.TotalActive = len(wc.Active)
	wc.Summary.TotalBottlenecks = len(wc.Bottlenecks)
	if len(wc.Active) > 0 {
		wc.Summary.AverageCompletionRate = rateSum / float64(len(wc.Active))
	}
	return wc
}

func collectCalendar(events []models.CalendarEvent, now, horizonEnd time.Time) CalendarContext {
	cc := CalendarContext{
		Upcoming:  []models.CalendarEvent{},
		Deadlines: []models.CalendarEvent{},
		Meetings:  []models.CalendarEvent{},
	}

	next7 := now.AddDate(0, 0, 7)
	next14 := now.AddDate(0, 0, 14)

	for _, ev := range events {
		if ev.Completed || !ev.Date.After(now) || !ev.Date.Before(horizonEnd) {
			continue
		}
		cc.Upcoming = append(cc.Upcoming, ev)
		switch ev.Type {
		case models.CalendarDeadline, models.CalendarMilestone:
			cc.Deadlines = append(cc.Deadlines, ev)
		case models.CalendarMeeting:
			cc.Meetings = append(cc.Meetings, ev)
		}
		if ev.Date.Before(next7) {
			cc.Summary.Next7Days++
		}
		if ev.Date.Before(next14) {
			cc.Summary.Next14Days++
		}
	}

	cc.Summary.TotalUpcoming = len(cc.Upcoming)
	cc.Summary.TotalDeadlines = len(cc.Deadlines)
	cc.Summary.TotalMeetings = len(cc.Meetings)
	return cc
}

func collectPlaybooks(playbooks []models.Playbook) PlaybookContext {
	pc := PlaybookContext{Active: []models.Playbook{}}

	var rateSum float64
	for _, p := range playbooks {
		if !p.Active {
			continue
		}
		pc.Active = append(pc.Active, p)
		pc.Summary.TotalExecutions += p.TotalExecutions
		if p.TotalExecutions > 0 {
			rateSum += float64(p.CompletedExecutions) / float64(p.TotalExecutions) * 100
		}
	}

	pc.Summary.TotalActive = len(pc.Active)
	if len(pc.Active) > 0 {
		pc.Summary.AverageExecutionRate = rateSum / float64(len(pc.Active))
	}
	return pc
}

func collectTeams(teams []models.Team, tasks []models.Task, teamIDs []string) TeamContext {
	tc := TeamContext{Teams: []TeamUtilization{}}

	filter := make(map[string]bool, len(teamIDs))
	for _, id := range teamIDs {
		filter[id] = true
	}

	activeByTeam := make(map[string]int)
	for _, t := range tasks {
		if t.Active() && t.TeamID != "" {
			activeByTeam[t.TeamID]++
		}
	}

	for _, team := range teams {
		if len(filter) > 0 && !filter[team.ID] {
			continue
		}
		active := activeByTeam[team.ID]
		var utilization float64
		if team.Capacity > 0 {
			utilization = float64(active) / float64(team.Capacity)
		}

		tu := TeamUtilization{
			Team:          team,
			ActiveTasks:   active,
			Utilization:   utilization,
			Overloaded:    utilization > overloadedThreshold,
			Underutilized: utilization < underutilizedThreshold,
		}
		tc.Teams = append(tc.Teams, tu)

		tc.Summary.TotalCapacity += team.Capacity
		tc.Summary.UsedCapacity += active
		if tu.Overloaded {
			tc.Summary.OverloadedTeams++
		}
		if tu.Underutilized {
			tc.Summary.UnderutilizedTeams++
		}
	}

	tc.Summary.TotalTeams = len(tc.Teams)
	tc.Summary.AvailableCapacity = tc.Summary.TotalCapacity - tc.Summary.UsedCapacity
	return tc
}

func collectOrders(events []models.CalendarEvent, now time.Time) OrderContext {
	oc := OrderContext{
		Orders:  []Order{},
		Overdue: []Order{},
	}

	for _, ev := range events {
		if ev.Type != models.CalendarDeadline || ev.OrderID == "" {
			continue
		}
		order := Order{
			OrderID:   ev.OrderID,
			Title:     ev.Title,
			Deadline:  ev.Date,
			TeamID:    ev.TeamID,
			IsOverdue: ev.Date.Before(now) && !ev.Completed,
		}
		oc.Orders = append(oc.Orders, order)
		if order.IsOverdue {
			oc.Overdue = append(oc.Overdue, order)
		}
	}

	oc.Summary.TotalOrders = len(oc.Orders)
	oc.Summary.TotalOverdue = len(oc.Overdue)
	return oc
}
