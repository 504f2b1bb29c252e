package processor

import (
	"strings"
	"time"

	"github.com/p-blackswan/opsengine/internal/models"
	"github.com/p-blackswan/opsengine/internal/suggest"
)

// dedupeKey identifies a suggestion for duplicate detection: normalized
// title plus resolved team.
type dedupeKey struct {
	title string
	team  string
}

// domainState is the immutable view of the domains one Process call
// resolves against, plus the duplicate index it accretes while running.
type domainState struct {
	users map[string]models.User
	teams map[string]models.Team
	// teamOrder preserves directory order so owner-membership resolution
	// is deterministic when a user belongs to several teams.
	teamOrder []models.Team
	tasks     map[string]models.Task
	seen      map[dedupeKey]bool
	now       time.Time
}

func newDomainState(users []models.User, teams []models.Team, tasks []models.Task, prior []suggest.Suggestion, now time.Time) *domainState {
	s := &domainState{
		users:     make(map[string]models.User, len(users)),
		teams:     make(map[string]models.Team, len(teams)),
		teamOrder: teams,
		tasks:     make(map[string]models.Task, len(tasks)),
		seen:      make(map[dedupeKey]bool),
		now:       now,
	}
	for _, u := range users {
		s.users[u.ID] = u
	}
	for _, t := range teams {
		s.teams[t.ID] = t
	}
	for _, t := range tasks {
		s.tasks[t.ID] = t
		s.seen[dedupeKey{title: normalizeTitle(t.Title), team: t.TeamID}] = true
	}
	for _, sg := range prior {
		if sg.Status == suggest.StatusPending || now.Sub(sg.CreatedAt) <= dedupeWindow {
			s.seen[dedupeKey{title: normalizeTitle(sg.Title), team: sg.TeamID}] = true
		}
	}
	return s
}

// teamOf returns the first team (in directory order) the user belongs to.
func (s *domainState) teamOf(userID string) (models.Team, bool) {
	for _, t := range s.teamOrder {
		if t.HasMember(userID) {
			return t, true
		}
	}
	return models.Team{}, false
}

func (s *domainState) isDuplicate(title, teamID string) bool {
	return s.seen[dedupeKey{title: normalizeTitle(title), team: teamID}]
}

// remember indexes an accepted suggestion so later items in the same batch
// deduplicate against it too.
func (s *domainState) remember(sg suggest.Suggestion) {
	s.seen[dedupeKey{title: normalizeTitle(sg.Title), team: sg.TeamID}] = true
}

// normalizeTitle lowercases and collapses interior whitespace.
func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}
