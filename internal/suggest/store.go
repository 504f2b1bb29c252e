package suggest

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	oerrors "github.com/p-blackswan/opsengine/internal/errors"
)

// Batch pairs the suggestions and optimizations of one inference run.
type Batch struct {
	Suggestions   []Suggestion   `json:"suggestions"`
	Optimizations []Optimization `json:"optimizations"`
}

// snapshotRecord caches one inference run keyed by the content hash of the
// input snapshot.
type snapshotRecord struct {
	batch     Batch
	expiresAt time.Time
}

// Stats counts entities per lifecycle status.
type Stats struct {
	Suggestions   map[Status]int    `json:"suggestions"`
	Optimizations map[OptStatus]int `json:"optimizations"`
}

// Store owns suggestion and optimization lifecycles. All mutation
// serializes through the store lock; status transitions re-check the
// current status inside the lock so concurrent deciders cannot both win.
type Store struct {
	mu            sync.RWMutex
	suggestions   map[string]*Suggestion
	optimizations map[string]*Optimization

	snapshots  map[string]*snapshotRecord
	latestHash string

	ttl    time.Duration
	nowFn  func() time.Time
	logger zerolog.Logger
}

// NewStore creates a store whose snapshot records live for snapshotTTL.
func NewStore(snapshotTTL time.Duration, logger zerolog.Logger) *Store {
	return &Store{
		suggestions:   make(map[string]*Suggestion),
		optimizations: make(map[string]*Optimization),
		snapshots:     make(map[string]*snapshotRecord),
		ttl:           snapshotTTL,
		nowFn:         time.Now,
		logger:        logger.With().Str("component", "suggestion_store").Logger(),
	}
}

// StoreResults stores a processed batch under the snapshot hash it was
// derived from. Optimizations eligible for auto-apply transition to
// auto_applied immediately. Expired snapshot records are purged first.
func (s *Store) StoreResults(snapshotHash string, batch Batch) Batch {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.purgeExpiredLocked()

	now := s.nowFn()
	stored := Batch{}

	for _, sg := range batch.Suggestions {
		cp := sg
		if cp.Status == "" {
			cp.Status = StatusPending
		}
		s.suggestions[cp.ID] = &cp
		stored.Suggestions = append(stored.Suggestions, cp)
	}

	for _, opt := range batch.Optimizations {
		cp := opt
		if cp.Status == "" {
			cp.Status = OptPending
		}
		if cp.Status == OptPending && cp.CanAutoApply {
			cp.Status = OptAutoApplied
			cp.ResolvedBy = "auto"
			resolved := now
			cp.ResolvedAt = &resolved
		}
		s.optimizations[cp.ID] = &cp
		stored.Optimizations = append(stored.Optimizations, cp)
	}

	s.snapshots[snapshotHash] = &snapshotRecord{
		batch:     stored,
		expiresAt: now.Add(s.ttl),
	}
	s.latestHash = snapshotHash

	s.logger.Info().
		Str("snapshot_hash", snapshotHash).
		Int("suggestions", len(stored.Suggestions)).
		Int("optimizations", len(stored.Optimizations)).
		Msg("analysis results stored")

	return stored
}

// IsSnapshotValid reports whether hash matches the latest stored snapshot
// and its TTL has not lapsed. Used to skip a redundant inference call.
func (s *Store) IsSnapshotValid(hash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if hash == "" || hash != s.latestHash {
		return false
	}
	rec, ok := s.snapshots[hash]
	return ok && s.nowFn().Before(rec.expiresAt)
}

// CachedBatch returns the batch stored for hash when still valid.
func (s *Store) CachedBatch(hash string) (Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.snapshots[hash]
	if !ok || !s.nowFn().Before(rec.expiresAt) {
		return Batch{}, false
	}
	return rec.batch, true
}

// PendingSuggestions returns pending suggestions, highest confidence first.
func (s *Store) PendingSuggestions() []Suggestion {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Suggestion, 0)
	for _, sg := range s.suggestions {
		if sg.Status == StatusPending {
			out = append(out, *sg)
		}
	}
	sortSuggestions(out)
	return out
}

// RecentSuggestions returns suggestions that are pending or were created
// within the window. The processor deduplicates against this set.
func (s *Store) RecentSuggestions(window time.Duration) []Suggestion {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cutoff := s.nowFn().Add(-window)
	out := make([]Suggestion, 0)
	for _, sg := range s.suggestions {
		if sg.Status == StatusPending || sg.CreatedAt.After(cutoff) {
			out = append(out, *sg)
		}
	}
	sortSuggestions(out)
	return out
}

// PendingOptimizations returns pending optimizations, highest confidence
// first.
func (s *Store) PendingOptimizations() []Optimization {
	return s.optimizationsByStatus(OptPending)
}

// AutoAppliedOptimizations returns auto-applied optimizations, highest
// confidence first.
func (s *Store) AutoAppliedOptimizations() []Optimization {
	return s.optimizationsByStatus(OptAutoApplied)
}

func (s *Store) optimizationsByStatus(status OptStatus) []Optimization {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Optimization, 0)
	for _, opt := range s.optimizations {
		if opt.Status == status {
			out = append(out, *opt)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// GetSuggestion returns a suggestion by id.
func (s *Store) GetSuggestion(id string) (Suggestion, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sg, ok := s.suggestions[id]
	if !ok {
		return Suggestion{}, false
	}
	return *sg, true
}

// GetOptimization returns an optimization by id.
func (s *Store) GetOptimization(id string) (Optimization, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	opt, ok := s.optimizations[id]
	if !ok {
		return Optimization{}, false
	}
	return *opt, true
}

// ApproveSuggestion transitions pending → approved.
func (s *Store) ApproveSuggestion(id, actorID string) (Suggestion, error) {
	return s.transitionSuggestion(id, actorID, StatusApproved)
}

// DismissSuggestion transitions pending → dismissed.
func (s *Store) DismissSuggestion(id, actorID string) (Suggestion, error) {
	return s.transitionSuggestion(id, actorID, StatusDismissed)
}

// MarkSuggestionCreated transitions pending → created (a task was made
// from it).
func (s *Store) MarkSuggestionCreated(id, actorID string) (Suggestion, error) {
	return s.transitionSuggestion(id, actorID, StatusCreated)
}

func (s *Store) transitionSuggestion(id, actorID string, to Status) (Suggestion, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sg, ok := s.suggestions[id]
	if !ok {
		return Suggestion{}, fmt.Errorf("suggestion %s: %w", id, oerrors.ErrNotFound)
	}
	if sg.Status != StatusPending {
		return *sg, fmt.Errorf("suggestion %s is %s: %w", id, sg.Status, oerrors.ErrInvalidTransition)
	}

	sg.Status = to
	sg.ResolvedBy = actorID
	now := s.nowFn()
	sg.ResolvedAt = &now

	s.logger.Info().
		Str("suggestion_id", id).
		Str("status", string(to)).
		Str("actor", actorID).
		Msg("suggestion transitioned")

	return *sg, nil
}

// ApplyOptimization transitions pending → applied.
func (s *Store) ApplyOptimization(id, actorID string) (Optimization, error) {
	return s.transitionOptimization(id, actorID, OptApplied)
}

// RejectOptimization transitions pending → rejected.
func (s *Store) RejectOptimization(id, actorID string) (Optimization, error) {
	return s.transitionOptimization(id, actorID, OptRejected)
}

func (s *Store) transitionOptimization(id, actorID string, to OptStatus) (Optimization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	opt, ok := s.optimizations[id]
	if !ok {
		return Optimization{}, fmt.Errorf("optimization %s: %w", id, oerrors.ErrNotFound)
	}
	if opt.Status != OptPending {
		return *opt, fmt.Errorf("optimization %s is %s: %w", id, opt.Status, oerrors.ErrInvalidTransition)
	}

	opt.Status = to
	opt.ResolvedBy = actorID
	now := s.nowFn()
	opt.ResolvedAt = &now

	s.logger.Info().
		Str("optimization_id", id).
		Str("status", string(to)).
		Str("actor", actorID).
		Msg("optimization transitioned")

	return *opt, nil
}

// GetStats counts suggestions and optimizations per status.
func (s *Store) GetStats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := Stats{
		Suggestions:   make(map[Status]int),
		Optimizations: make(map[OptStatus]int),
	}
	for _, sg := range s.suggestions {
		stats.Suggestions[sg.Status]++
	}
	for _, opt := range s.optimizations {
		stats.Optimizations[opt.Status]++
	}
	return stats
}

// purgeExpiredLocked drops lapsed snapshot records. Caller holds the lock.
func (s *Store) purgeExpiredLocked() {
	now := s.nowFn()
	for hash, rec := range s.snapshots {
		if !now.Before(rec.expiresAt) {
			delete(s.snapshots, hash)
			if s.latestHash == hash {
				s.latestHash = ""
			}
		}
	}
}

func sortSuggestions(out []Suggestion) {
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].ID < out[j].ID
	})
}

// SetNowFunc overrides the clock. Tests only.
func (s *Store) SetNowFunc(fn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = fn
}
