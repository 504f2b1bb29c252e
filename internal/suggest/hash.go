package suggest

import (
	"encoding/json"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/p-blackswan/opsengine/internal/collector"
)

// HashSnapshot computes the content identity of a snapshot: a 64-bit
// xxhash over its canonical JSON. Volatile metadata (collection instant,
// observed event count, degradation warnings) is excluded so an unchanged
// operational context hashes identically across collections.
func HashSnapshot(snap *collector.Context) (string, error) {
	canonical := struct {
		Tasks     collector.TaskContext     `json:"tasks"`
		Workflows collector.WorkflowContext `json:"workflows"`
		Calendar  collector.CalendarContext `json:"calendar"`
		Playbooks collector.PlaybookContext `json:"playbooks"`
		Teams     collector.TeamContext     `json:"teams"`
		Orders    collector.OrderContext    `json:"orders"`
		Horizon   int                       `json:"horizon"`
		Version   string                    `json:"version"`
	}{
		Tasks:     snap.Tasks,
		Workflows: snap.Workflows,
		Calendar:  snap.Calendar,
		Playbooks: snap.Playbooks,
		Teams:     snap.Teams,
		Orders:    snap.Orders,
		Horizon:   snap.TimeHorizonDays,
		Version:   snap.SnapshotVersion,
	}

	b, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("marshal snapshot for hashing: %w", err)
	}
	return fmt.Sprintf("%016x", xxhash.Sum64(b)), nil
}
