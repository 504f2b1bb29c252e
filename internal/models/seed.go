package models

import (
	"encoding/json"
	"fmt"
	"os"
)

// Seed is the on-disk shape of a directory bootstrap file.
type Seed struct {
	Users     []User          `json:"users"`
	Teams     []Team          `json:"teams"`
	Tasks     []Task          `json:"tasks"`
	Workflows []Workflow      `json:"workflows"`
	Calendar  []CalendarEvent `json:"calendar"`
	Playbooks []Playbook      `json:"playbooks"`
}

// LoadSeed reads a JSON seed file and returns a populated directory.
func LoadSeed(path string) (*StaticDirectory, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory seed: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(b, &seed); err != nil {
		return nil, fmt.Errorf("parsing directory seed %s: %w", path, err)
	}

	dir := NewStaticDirectory()
	dir.SetUsers(seed.Users)
	dir.SetTeams(seed.Teams)
	dir.SetTasks(seed.Tasks)
	dir.SetWorkflows(seed.Workflows)
	dir.SetCalendarEvents(seed.Calendar)
	dir.SetPlaybooks(seed.Playbooks)
	return dir, nil
}
