package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/opsengine/internal/cache"
	"github.com/p-blackswan/opsengine/internal/collector"
	"github.com/p-blackswan/opsengine/internal/engine"
	"github.com/p-blackswan/opsengine/internal/event"
	"github.com/p-blackswan/opsengine/internal/goals"
	"github.com/p-blackswan/opsengine/internal/health"
	"github.com/p-blackswan/opsengine/internal/inference"
	"github.com/p-blackswan/opsengine/internal/metrics"
	"github.com/p-blackswan/opsengine/internal/models"
	"github.com/p-blackswan/opsengine/internal/processor"
	"github.com/p-blackswan/opsengine/internal/prompt"
	"github.com/p-blackswan/opsengine/internal/suggest"
)

// cannedService replays a fixed raw result.
type cannedService struct {
	result inference.RawResult
}

func (s *cannedService) Analyze(ctx context.Context, p prompt.Prompt) (*inference.RawResult, error) {
	out := s.result
	return &out, nil
}

type testEnv struct {
	app   *fiber.App
	store *suggest.Store
}

func testServer(t *testing.T, authMode, apiKey string, svc inference.Service) *testEnv {
	t.Helper()
	logger := zerolog.Nop()

	dir := models.NewStaticDirectory()
	dir.SetUsers([]models.User{{ID: "u1", Name: "Dana"}})
	dir.SetTeams([]models.Team{{ID: "team-a", Name: "Fabrication", MemberIDs: []string{"u1"}, Capacity: 3}})
	dir.SetTasks([]models.Task{
		{ID: "t1", Title: "Paint shell", Status: models.TaskBlocked, Priority: models.PriorityHigh, TeamID: "team-a"},
	})

	registry := event.NewRegistry(cache.NewMemory(), 5*time.Minute, logger)
	col := collector.New(dir, registry, logger)

	builder, err := prompt.NewBuilder(prompt.StrategyOptimized, 4000)
	require.NoError(t, err)

	if svc == nil {
		svc = &cannedService{}
	}

	proc, err := processor.New(context.Background(), dir, logger)
	require.NoError(t, err)

	store := suggest.NewStore(30*time.Minute, logger)

	eng := engine.New(col, builder, svc, proc, store, dir, engine.Options{
		Weights: goals.DefaultWeights(),
	}, logger)

	checker := health.NewChecker(logger)
	checker.Register("directory", func(ctx context.Context) health.Status {
		return health.StatusOK
	})

	srv := NewServer(ServerConfig{
		ListenAddr:         ":0",
		AuthConfig:         AuthConfig{Mode: authMode, APIKey: apiKey},
		RateLimit:          RateLimitConfig{RPS: 1000, Burst: 1000},
		Version:            "test",
		DefaultHorizonDays: 7,
	}, registry, col, eng, store, goals.Presets{
		"throughput": {CapacityUtilization: 0.6, TimelineOptimization: 0.3, ProcessEfficiency: 0.1},
	}, checker, metrics.New(), logger)

	return &testEnv{app: srv.App(), store: store}
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any, headers map[string]string) *http.Response {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func TestServer_Healthz(t *testing.T) {
	env := testServer(t, "none", "", nil)
	resp := doJSON(t, env.app, "GET", "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_AuthRequired(t *testing.T) {
	env := testServer(t, "api-key", "sesame", nil)

	resp := doJSON(t, env.app, "GET", "/api/v1/events", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, env.app, "GET", "/api/v1/events", nil, map[string]string{
		"Authorization": "Bearer wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doJSON(t, env.app, "GET", "/api/v1/events", nil, map[string]string{
		"Authorization": "Bearer sesame",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_ProbesBypassAuth(t *testing.T) {
	env := testServer(t, "api-key", "sesame", nil)

	resp := doJSON(t, env.app, "GET", "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp = doJSON(t, env.app, "GET", "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_RegisterAndListEvents(t *testing.T) {
	env := testServer(t, "none", "", nil)

	resp := doJSON(t, env.app, "POST", "/api/v1/events", RegisterEventRequest{
		Type:       event.TypeTaskBlocked,
		EntityID:   "t1",
		EntityType: "task",
		Action:     "blocked",
		Metadata:   event.Metadata{TeamID: "team-a"},
	}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var stored event.Event
	decodeBody(t, resp, &stored)
	assert.NotEmpty(t, stored.ID)
	assert.Equal(t, event.SourceTasks, stored.Source)

	resp = doJSON(t, env.app, "GET", "/api/v1/events?types=task.blocked&team_ids=team-a", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var list EventListResponse
	decodeBody(t, resp, &list)
	assert.Equal(t, 1, list.Total)

	resp = doJSON(t, env.app, "GET", "/api/v1/events?sources=orders", nil, nil)
	var empty EventListResponse
	decodeBody(t, resp, &empty)
	assert.Equal(t, 0, empty.Total)
}

func TestServer_RegisterEventValidation(t *testing.T) {
	env := testServer(t, "none", "", nil)

	resp := doJSON(t, env.app, "POST", "/api/v1/events", RegisterEventRequest{
		Type: "task.exploded", EntityID: "t1",
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = doJSON(t, env.app, "POST", "/api/v1/events", RegisterEventRequest{
		Type: event.TypeTaskBlocked,
	}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_Collect(t *testing.T) {
	env := testServer(t, "none", "", nil)

	resp := doJSON(t, env.app, "POST", "/api/v1/context", CollectRequest{HorizonDays: 7}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap collector.Context
	decodeBody(t, resp, &snap)
	assert.Equal(t, 1, snap.Tasks.Summary.TotalBlocked)
	assert.Equal(t, collector.SnapshotVersion, snap.SnapshotVersion)
}

func TestServer_CollectEmptyBodyUsesConfiguredHorizon(t *testing.T) {
	env := testServer(t, "none", "", nil)

	resp := doJSON(t, env.app, "POST", "/api/v1/context", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap collector.Context
	decodeBody(t, resp, &snap)
	assert.Equal(t, 7, snap.TimeHorizonDays, "omitted horizon_days falls back to the server default")
	assert.Equal(t, 1, snap.Tasks.Summary.TotalBlocked, "default horizon still yields a populated window")
}

func TestServer_AnalyzeEmptyBodyUsesConfiguredHorizon(t *testing.T) {
	svc := &cannedService{result: inference.RawResult{}}
	env := testServer(t, "none", "", svc)

	resp := doJSON(t, env.app, "POST", "/api/v1/analyze", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result engine.AnalyzeResult
	decodeBody(t, resp, &result)
	require.NotNil(t, result.Snapshot)
	assert.Equal(t, 7, result.Snapshot.TimeHorizonDays)
}

func TestServer_AnalyzeAndLifecycle(t *testing.T) {
	svc := &cannedService{result: inference.RawResult{
		Suggestions: []inference.RawSuggestion{{
			Title:                "Unblock paint shell",
			Rationale:            "painting is blocked",
			RecommendedAssignees: []inference.RawAssignee{{UserID: "u1"}},
			Priority:             "high",
			Confidence:           0.8,
			Contexts:             []inference.RawContextLink{{Type: "task", ReferenceID: "t1"}},
		}},
	}}
	env := testServer(t, "none", "", svc)

	resp := doJSON(t, env.app, "POST", "/api/v1/analyze", AnalyzeRequest{HorizonDays: 7}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var result engine.AnalyzeResult
	decodeBody(t, resp, &result)
	require.Len(t, result.Batch.Suggestions, 1)
	id := result.Batch.Suggestions[0].ID

	resp = doJSON(t, env.app, "GET", "/api/v1/suggestions", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var pending []suggest.Suggestion
	decodeBody(t, resp, &pending)
	require.Len(t, pending, 1)

	// Approve, then verify the terminal state rejects further transitions.
	resp = doJSON(t, env.app, "POST", "/api/v1/suggestions/"+id+"/approve", ActorRequest{ActorID: "dana"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var approved suggest.Suggestion
	decodeBody(t, resp, &approved)
	assert.Equal(t, suggest.StatusApproved, approved.Status)
	assert.Equal(t, "dana", approved.ResolvedBy)

	resp = doJSON(t, env.app, "POST", "/api/v1/suggestions/"+id+"/dismiss", ActorRequest{ActorID: "mikko"}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = doJSON(t, env.app, "POST", "/api/v1/suggestions/ghost/approve", ActorRequest{ActorID: "dana"}, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_TransitionRequiresActor(t *testing.T) {
	env := testServer(t, "none", "", nil)

	resp := doJSON(t, env.app, "POST", "/api/v1/suggestions/any/approve", ActorRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_AnalyzeUnknownPreset(t *testing.T) {
	env := testServer(t, "none", "", nil)

	resp := doJSON(t, env.app, "POST", "/api/v1/analyze", AnalyzeRequest{HorizonDays: 7, Preset: "vibes"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_AnalyzeWithPreset(t *testing.T) {
	env := testServer(t, "none", "", nil)

	resp := doJSON(t, env.app, "POST", "/api/v1/analyze", AnalyzeRequest{HorizonDays: 7, Preset: "throughput"}, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_Stats(t *testing.T) {
	env := testServer(t, "none", "", nil)
	env.store.StoreResults("h", suggest.Batch{Suggestions: []suggest.Suggestion{
		{ID: "s1", Title: "A item", Status: suggest.StatusPending},
	}})

	resp := doJSON(t, env.app, "GET", "/api/v1/stats", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats suggest.Stats
	decodeBody(t, resp, &stats)
	assert.Equal(t, 1, stats.Suggestions[suggest.StatusPending])
}

func TestServer_HealthDetail(t *testing.T) {
	env := testServer(t, "none", "", nil)

	resp := doJSON(t, env.app, "GET", "/api/v1/health", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var detail HealthDetailResponse
	decodeBody(t, resp, &detail)
	assert.Equal(t, "ok", detail.Status)
	assert.Equal(t, "ok", detail.Integrations["directory"])
	assert.Equal(t, "test", detail.Version)
}

func TestServer_OptimizationListFilters(t *testing.T) {
	env := testServer(t, "none", "", nil)
	env.store.StoreResults("h", suggest.Batch{Optimizations: []suggest.Optimization{
		{ID: "o1", TaskID: "t1", Action: suggest.ActionReassign, Confidence: 0.9, CanAutoApply: true},
		{ID: "o2", TaskID: "t1", Action: suggest.ActionReassign, Confidence: 0.5},
	}})

	resp := doJSON(t, env.app, "GET", "/api/v1/optimizations", nil, nil)
	var pending []suggest.Optimization
	decodeBody(t, resp, &pending)
	require.Len(t, pending, 1)
	assert.Equal(t, "o2", pending[0].ID)

	resp = doJSON(t, env.app, "GET", "/api/v1/optimizations?status=auto_applied", nil, nil)
	var auto []suggest.Optimization
	decodeBody(t, resp, &auto)
	require.Len(t, auto, 1)
	assert.Equal(t, "o1", auto[0].ID)

	resp = doJSON(t, env.app, "GET", "/api/v1/optimizations?status=weird", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
