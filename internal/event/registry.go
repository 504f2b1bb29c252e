package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/opsengine/internal/cache"
)

// ErrUnknownType is returned for event types outside the closed set.
var ErrUnknownType = errors.New("unknown event type")

// Snapshot cache keys, one per domain.
const (
	SnapshotTasks     = "snapshot:tasks"
	SnapshotWorkflows = "snapshot:workflows"
	SnapshotCalendar  = "snapshot:calendar"
	SnapshotPlaybooks = "snapshot:playbooks"
	SnapshotTeams     = "snapshot:teams"
	SnapshotOrders    = "snapshot:orders"
)

// invalidationTable maps a type's domain prefix to the extra snapshot keys
// it invalidates beyond snapshot:<source>. Fixed; changing a row changes
// observable cache behavior.
var invalidationTable = map[string][]string{
	"task":     {SnapshotTasks, SnapshotTeams},
	"workflow": {SnapshotWorkflows, SnapshotTasks},
	"calendar": {SnapshotCalendar, SnapshotTasks},
	"order":    {SnapshotOrders, SnapshotWorkflows},
	"team":     {SnapshotTeams},
	"playbook": {SnapshotPlaybooks, SnapshotTasks},
}

// InvalidationKeys returns the snapshot cache keys an event of the given
// type and source invalidates, deduplicated.
func InvalidationKeys(evType, source string) []string {
	seen := map[string]bool{"snapshot:" + source: true}
	keys := []string{"snapshot:" + source}

	prefix, _, _ := strings.Cut(evType, ".")
	for _, k := range invalidationTable[prefix] {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

// Filter constrains a registry query. All set fields combine with AND
// semantics; Since and Until are inclusive.
type Filter struct {
	Since       *time.Time
	Until       *time.Time
	Types       []string
	Sources     []string
	TeamIDs     []string
	EntityIDs   []string
	EntityTypes []string
}

// Registry is the shared append-only event log. Appends serialize through
// the writer lock; queries take the read lock and never block each other.
// Secondary indexes by type, source and team avoid full-log scans for
// filtered queries.
type Registry struct {
	mu     sync.RWMutex
	log    []Event
	byType map[string][]int
	bySrc  map[string][]int
	byTeam map[string][]int

	kv     cache.KV
	ttl    time.Duration
	nowFn  func() time.Time
	logger zerolog.Logger
}

// NewRegistry creates a registry whose snapshot cache is backed by kv with
// the given default TTL.
func NewRegistry(kv cache.KV, snapshotTTL time.Duration, logger zerolog.Logger) *Registry {
	return &Registry{
		byType: make(map[string][]int),
		bySrc:  make(map[string][]int),
		byTeam: make(map[string][]int),
		kv:     kv,
		ttl:    snapshotTTL,
		nowFn:  time.Now,
		logger: logger.With().Str("component", "event_registry").Logger(),
	}
}

// Register assigns an ID and timestamp, appends the event and invalidates
// the snapshot keys its type maps to. The stored event is returned.
func (r *Registry) Register(ctx context.Context, ev Event) (Event, error) {
	if !ValidType(ev.Type) {
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownType, ev.Type)
	}
	if ev.Source == "" {
		ev.Source = SourceForType(ev.Type)
	}

	r.mu.Lock()
	ev.ID = uuid.New().String()
	ev.Timestamp = r.nowFn()
	ev.seq = uint64(len(r.log))

	idx := len(r.log)
	r.log = append(r.log, ev)
	r.byType[ev.Type] = append(r.byType[ev.Type], idx)
	r.bySrc[ev.Source] = append(r.bySrc[ev.Source], idx)
	if ev.Metadata.TeamID != "" {
		r.byTeam[ev.Metadata.TeamID] = append(r.byTeam[ev.Metadata.TeamID], idx)
	}
	r.mu.Unlock()

	for _, key := range InvalidationKeys(ev.Type, ev.Source) {
		if err := r.kv.Delete(ctx, key); err != nil {
			r.logger.Warn().Err(err).Str("key", key).Msg("snapshot invalidation failed")
		}
	}

	r.logger.Debug().
		Str("event_id", ev.ID).
		Str("type", ev.Type).
		Str("entity_id", ev.EntityID).
		Msg("event registered")

	return ev, nil
}

// Query returns all events matching the filter, newest first. Timestamp
// ties are broken by insertion order.
func (r *Registry) Query(ctx context.Context, f Filter) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matched := make([]Event, 0)
	for _, idx := range r.candidates(f) {
		ev := r.log[idx]
		if matches(ev, f) {
			matched = append(matched, ev)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].Timestamp.Equal(matched[j].Timestamp) {
			return matched[i].Timestamp.After(matched[j].Timestamp)
		}
		return matched[i].seq > matched[j].seq
	})
	return matched
}

// Recent returns events registered within the last windowHours.
func (r *Registry) Recent(ctx context.Context, windowHours int) []Event {
	since := r.nowFn().Add(-time.Duration(windowHours) * time.Hour)
	return r.Query(ctx, Filter{Since: &since})
}

// Count returns the number of events matching the filter.
func (r *Registry) Count(ctx context.Context, f Filter) int {
	return len(r.Query(ctx, f))
}

// Len returns the total number of registered events.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.log)
}

// candidates picks the narrowest index cover for the filter, falling back
// to a full-log scan. Caller holds at least the read lock.
func (r *Registry) candidates(f Filter) []int {
	best := -1
	var bestIdx []int

	consider := func(keys []string, index map[string][]int) {
		if len(keys) == 0 {
			return
		}
		total := 0
		merged := make([]int, 0)
		for _, k := range keys {
			total += len(index[k])
			merged = append(merged, index[k]...)
		}
		if best == -1 || total < best {
			best = total
			bestIdx = merged
		}
	}

	consider(f.Types, r.byType)
	consider(f.Sources, r.bySrc)
	consider(f.TeamIDs, r.byTeam)

	if best == -1 {
		all := make([]int, len(r.log))
		for i := range r.log {
			all[i] = i
		}
		return all
	}
	sort.Ints(bestIdx)
	return bestIdx
}

func matches(ev Event, f Filter) bool {
	if f.Since != nil && ev.Timestamp.Before(*f.Since) {
		return false
	}
	if f.Until != nil && ev.Timestamp.After(*f.Until) {
		return false
	}
	if len(f.Types) > 0 && !contains(f.Types, ev.Type) {
		return false
	}
	if len(f.Sources) > 0 && !contains(f.Sources, ev.Source) {
		return false
	}
	if len(f.TeamIDs) > 0 && !contains(f.TeamIDs, ev.Metadata.TeamID) {
		return false
	}
	if len(f.EntityIDs) > 0 && !contains(f.EntityIDs, ev.EntityID) {
		return false
	}
	if len(f.EntityTypes) > 0 && !contains(f.EntityTypes, ev.EntityType) {
		return false
	}
	return true
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// StoreSnapshot caches value under key for ttlMinutes (the registry default
// when ttlMinutes <= 0).
func (r *Registry) StoreSnapshot(ctx context.Context, key string, value any, ttlMinutes int) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal snapshot %q: %w", key, err)
	}
	ttl := r.ttl
	if ttlMinutes > 0 {
		ttl = time.Duration(ttlMinutes) * time.Minute
	}
	return r.kv.Put(ctx, key, b, ttl)
}

// GetSnapshot loads a cached snapshot into dst. Returns false on a miss;
// expired entries are evicted by the underlying store.
func (r *Registry) GetSnapshot(ctx context.Context, key string, dst any) (bool, error) {
	b, ok, err := r.kv.Get(ctx, key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("unmarshal snapshot %q: %w", key, err)
	}
	return true, nil
}

// SetNowFunc overrides the clock. Tests only.
func (r *Registry) SetNowFunc(fn func() time.Time) { r.nowFn = fn }
