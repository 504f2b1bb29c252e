package event

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/opsengine/internal/cache"
)

func newTestRegistry(t *testing.T) (*Registry, *cache.Memory) {
	t.Helper()
	kv := cache.NewMemory()
	return NewRegistry(kv, 5*time.Minute, zerolog.Nop()), kv
}

func TestRegistry_RegisterAssignsIdentity(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	ev, err := NewEvent(TypeTaskCreated, "task-1", "task", "created",
		TaskPayload{TaskID: "task-1", Title: "Weld frame"}, Metadata{TeamID: "team-a"})
	require.NoError(t, err)

	stored, err := r.Register(ctx, ev)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.ID)
	assert.False(t, stored.Timestamp.IsZero())
	assert.Equal(t, SourceTasks, stored.Source)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_RegisterRejectsUnknownType(t *testing.T) {
	r, _ := newTestRegistry(t)

	_, err := r.Register(context.Background(), Event{Type: "task.exploded", EntityID: "x"})
	assert.ErrorIs(t, err, ErrUnknownType)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_QueryInclusiveBounds(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.SetNowFunc(func() time.Time { return at })

	_, err := r.Register(ctx, Event{Type: TypeTaskBlocked, EntityID: "task-1"})
	require.NoError(t, err)

	// An event stamped exactly at since==until matches both bounds.
	got := r.Query(ctx, Filter{Since: &at, Until: &at})
	assert.Len(t, got, 1)

	before := at.Add(-time.Second)
	got = r.Query(ctx, Filter{Until: &before})
	assert.Empty(t, got)
}

func TestRegistry_QueryFiltersCombineWithAND(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.Register(ctx, Event{Type: TypeTaskBlocked, EntityID: "task-1", Metadata: Metadata{TeamID: "team-a"}})
	require.NoError(t, err)
	_, err = r.Register(ctx, Event{Type: TypeTaskBlocked, EntityID: "task-2", Metadata: Metadata{TeamID: "team-b"}})
	require.NoError(t, err)
	_, err = r.Register(ctx, Event{Type: TypeOrderCreated, EntityID: "order-1", Metadata: Metadata{TeamID: "team-a"}})
	require.NoError(t, err)

	got := r.Query(ctx, Filter{Types: []string{TypeTaskBlocked}, TeamIDs: []string{"team-a"}})
	require.Len(t, got, 1)
	assert.Equal(t, "task-1", got[0].EntityID)

	got = r.Query(ctx, Filter{Sources: []string{SourceOrders}})
	require.Len(t, got, 1)
	assert.Equal(t, "order-1", got[0].EntityID)

	got = r.Query(ctx, Filter{EntityIDs: []string{"task-2"}})
	require.Len(t, got, 1)
}

func TestRegistry_QueryNewestFirstWithStableTies(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	r.SetNowFunc(func() time.Time { return at })

	for _, id := range []string{"first", "second", "third"} {
		_, err := r.Register(ctx, Event{Type: TypeTaskCreated, EntityID: id})
		require.NoError(t, err)
	}

	got := r.Query(ctx, Filter{})
	require.Len(t, got, 3)
	// Identical timestamps: later insertions sort first.
	assert.Equal(t, "third", got[0].EntityID)
	assert.Equal(t, "second", got[1].EntityID)
	assert.Equal(t, "first", got[2].EntityID)
}

func TestRegistry_Recent(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	r.SetNowFunc(func() time.Time { return base.Add(-48 * time.Hour) })
	_, err := r.Register(ctx, Event{Type: TypeTaskCreated, EntityID: "old"})
	require.NoError(t, err)

	r.SetNowFunc(func() time.Time { return base.Add(-time.Hour) })
	_, err = r.Register(ctx, Event{Type: TypeTaskCreated, EntityID: "fresh"})
	require.NoError(t, err)

	r.SetNowFunc(func() time.Time { return base })
	got := r.Recent(ctx, 24)
	require.Len(t, got, 1)
	assert.Equal(t, "fresh", got[0].EntityID)
}

func TestRegistry_InvalidationDeletesMappedKeys(t *testing.T) {
	r, kv := newTestRegistry(t)
	ctx := context.Background()

	for _, key := range []string{SnapshotTasks, SnapshotTeams, SnapshotCalendar} {
		require.NoError(t, kv.Put(ctx, key, []byte("cached"), time.Hour))
	}

	_, err := r.Register(ctx, Event{Type: TypeTaskBlocked, EntityID: "task-1"})
	require.NoError(t, err)

	// task.* invalidates tasks and teams snapshots but leaves calendar alone.
	_, ok, _ := kv.Get(ctx, SnapshotTasks)
	assert.False(t, ok, "snapshot:tasks should be invalidated")
	_, ok, _ = kv.Get(ctx, SnapshotTeams)
	assert.False(t, ok, "snapshot:teams should be invalidated")
	_, ok, _ = kv.Get(ctx, SnapshotCalendar)
	assert.True(t, ok, "snapshot:calendar should survive")
}

func TestInvalidationKeys_Table(t *testing.T) {
	tests := []struct {
		evType string
		source string
		want   []string
	}{
		{TypeTaskBlocked, SourceTasks, []string{SnapshotTasks, SnapshotTeams}},
		{TypeWorkflowStarted, SourceWorkflows, []string{SnapshotWorkflows, SnapshotTasks}},
		{TypeCalendarCreated, SourceCalendar, []string{SnapshotCalendar, SnapshotTasks}},
		{TypeOrderFulfilled, SourceOrders, []string{SnapshotOrders, SnapshotWorkflows}},
		{TypeTeamMemberAdded, SourceTeams, []string{SnapshotTeams}},
		{TypePlaybookExecuted, SourcePlaybooks, []string{SnapshotPlaybooks, SnapshotTasks}},
	}

	for _, tt := range tests {
		t.Run(tt.evType, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, InvalidationKeys(tt.evType, tt.source))
		})
	}
}

func TestRegistry_SnapshotRoundTrip(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	type payload struct {
		Count int `json:"count"`
	}

	require.NoError(t, r.StoreSnapshot(ctx, SnapshotTasks, payload{Count: 7}, 0))

	var got payload
	ok, err := r.GetSnapshot(ctx, SnapshotTasks, &got)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 7, got.Count)

	ok, err = r.GetSnapshot(ctx, "snapshot:missing", &got)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSourceForType(t *testing.T) {
	assert.Equal(t, SourceTasks, SourceForType(TypeTaskBlocked))
	assert.Equal(t, SourceOrders, SourceForType(TypeOrderCreated))
	assert.Equal(t, "", SourceForType("bogus"))
}

func TestDecodePayload(t *testing.T) {
	ev, err := NewEvent(TypeOrderCreated, "order-1", "order", "created",
		OrderPayload{OrderID: "order-1", Status: "open"}, Metadata{})
	require.NoError(t, err)

	decoded, err := DecodePayload(ev)
	require.NoError(t, err)
	op, ok := decoded.(*OrderPayload)
	require.True(t, ok)
	assert.Equal(t, "order-1", op.OrderID)
	assert.Equal(t, "open", op.Status)
}
