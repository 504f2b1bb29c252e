package api

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/p-blackswan/opsengine/internal/collector"
	"github.com/p-blackswan/opsengine/internal/engine"
	oerrors "github.com/p-blackswan/opsengine/internal/errors"
	"github.com/p-blackswan/opsengine/internal/event"
	"github.com/p-blackswan/opsengine/internal/suggest"
)

// handleRegisterEvent appends a typed event to the registry and invalidates
// the snapshot keys its type maps to.
func (s *Server) handleRegisterEvent(c *fiber.Ctx) error {
	var req RegisterEventRequest
	if err := c.BodyParser(&req); err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_body", "Bad Request", "Request body is not valid JSON")
	}
	if req.Type == "" || req.EntityID == "" {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_field", "Bad Request", "type and entity_id are required")
	}

	ev := event.Event{
		Type:       req.Type,
		EntityID:   req.EntityID,
		EntityType: req.EntityType,
		Action:     req.Action,
		Payload:    req.Payload,
		Metadata:   req.Metadata,
	}

	stored, err := s.registry.Register(c.Context(), ev)
	if err != nil {
		if errors.Is(err, event.ErrUnknownType) {
			return problemResponse(c, fiber.StatusUnprocessableEntity,
				"unknown_event_type", "Unprocessable Entity", err.Error())
		}
		return s.internalError(c, "registering event", err)
	}

	s.metrics.RecordEvent(stored.Source, stored.Type)
	return c.Status(fiber.StatusCreated).JSON(stored)
}

// handleListEvents queries the registry. All filters arrive as query
// parameters; list-valued ones are comma separated.
func (s *Server) handleListEvents(c *fiber.Ctx) error {
	var f event.Filter

	if v := c.Query("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return problemResponse(c, fiber.StatusBadRequest,
				"invalid_timestamp", "Bad Request", "since must be RFC 3339")
		}
		f.Since = &t
	}
	if v := c.Query("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return problemResponse(c, fiber.StatusBadRequest,
				"invalid_timestamp", "Bad Request", "until must be RFC 3339")
		}
		f.Until = &t
	}
	if v := c.Query("window_hours"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil || hours <= 0 {
			return problemResponse(c, fiber.StatusBadRequest,
				"invalid_window", "Bad Request", "window_hours must be a positive integer")
		}
		since := time.Now().Add(-time.Duration(hours) * time.Hour)
		f.Since = &since
	}
	f.Types = splitParam(c.Query("types"))
	f.Sources = splitParam(c.Query("sources"))
	f.TeamIDs = splitParam(c.Query("team_ids"))
	f.EntityIDs = splitParam(c.Query("entity_ids"))
	f.EntityTypes = splitParam(c.Query("entity_types"))

	events := s.registry.Query(c.Context(), f)
	return c.JSON(EventListResponse{Events: events, Total: len(events)})
}

// horizonOrDefault substitutes the configured horizon when a request omits
// it. A zero horizon would collapse the collection window to a single
// instant, so it never reaches the collector.
func (s *Server) horizonOrDefault(days int) int {
	if days > 0 {
		return days
	}
	return s.config.DefaultHorizonDays
}

// handleCollect builds a context snapshot without running inference.
func (s *Server) handleCollect(c *fiber.Ctx) error {
	var req CollectRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return problemResponse(c, fiber.StatusBadRequest,
				"invalid_body", "Bad Request", "Request body is not valid JSON")
		}
	}

	snap, err := s.collector.Collect(c.Context(), collector.Request{
		HorizonDays: s.horizonOrDefault(req.HorizonDays),
		TeamIDs:     req.TeamIDs,
		EventTypes:  req.EventTypes,
	})
	if err != nil {
		return s.internalError(c, "collecting context", err)
	}
	return c.JSON(snap)
}

// handleAnalyze runs the full pipeline. A preset name resolves to stored
// goal weights; explicit weights win over the preset.
func (s *Server) handleAnalyze(c *fiber.Ctx) error {
	var req AnalyzeRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return problemResponse(c, fiber.StatusBadRequest,
				"invalid_body", "Bad Request", "Request body is not valid JSON")
		}
	}

	weights := req.Weights
	if weights == nil && req.Preset != "" {
		preset, ok := s.presets[req.Preset]
		if !ok {
			return problemResponse(c, fiber.StatusBadRequest,
				"unknown_preset", "Bad Request", "no goal preset named "+req.Preset)
		}
		weights = &preset
	}
	if weights != nil {
		if err := weights.Validate(); err != nil {
			return problemResponse(c, fiber.StatusBadRequest,
				"invalid_weights", "Bad Request", err.Error())
		}
	}

	result, err := s.engine.Analyze(c.Context(), engine.AnalyzeRequest{
		HorizonDays: s.horizonOrDefault(req.HorizonDays),
		TeamIDs:     req.TeamIDs,
		Weights:     weights,
	})
	if err != nil {
		if errors.Is(err, oerrors.ErrTimeout) || errors.Is(err, oerrors.ErrUnavailable) {
			return problemResponse(c, fiber.StatusBadGateway,
				"inference_unavailable", "Bad Gateway", "Inference service is unavailable")
		}
		return s.internalError(c, "running analysis", err)
	}
	return c.JSON(result)
}

// handleListSuggestions lists pending suggestions, or recent ones with
// ?window_hours=N.
func (s *Server) handleListSuggestions(c *fiber.Ctx) error {
	if v := c.Query("window_hours"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil || hours <= 0 {
			return problemResponse(c, fiber.StatusBadRequest,
				"invalid_window", "Bad Request", "window_hours must be a positive integer")
		}
		return c.JSON(s.store.RecentSuggestions(time.Duration(hours) * time.Hour))
	}
	return c.JSON(s.store.PendingSuggestions())
}

func (s *Server) handleGetSuggestion(c *fiber.Ctx) error {
	sg, ok := s.store.GetSuggestion(c.Params("id"))
	if !ok {
		return problemResponse(c, fiber.StatusNotFound,
			"not_found", "Not Found", "No suggestion with that id")
	}
	return c.JSON(sg)
}

func (s *Server) handleApproveSuggestion(c *fiber.Ctx) error {
	return s.transitionSuggestion(c, s.store.ApproveSuggestion)
}

func (s *Server) handleDismissSuggestion(c *fiber.Ctx) error {
	return s.transitionSuggestion(c, s.store.DismissSuggestion)
}

func (s *Server) handleCreateFromSuggestion(c *fiber.Ctx) error {
	return s.transitionSuggestion(c, s.store.MarkSuggestionCreated)
}

func (s *Server) transitionSuggestion(c *fiber.Ctx, fn func(id, actorID string) (suggest.Suggestion, error)) error {
	actor, err := parseActor(c)
	if err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_actor", "Bad Request", "actor_id is required")
	}
	sg, err := fn(c.Params("id"), actor)
	if err != nil {
		return s.transitionError(c, err)
	}
	return c.JSON(sg)
}

// handleListOptimizations lists pending optimizations, or auto-applied
// ones with ?status=auto_applied.
func (s *Server) handleListOptimizations(c *fiber.Ctx) error {
	switch c.Query("status") {
	case "", string(suggest.OptPending):
		return c.JSON(s.store.PendingOptimizations())
	case string(suggest.OptAutoApplied):
		return c.JSON(s.store.AutoAppliedOptimizations())
	default:
		return problemResponse(c, fiber.StatusBadRequest,
			"invalid_status", "Bad Request", "status must be pending or auto_applied")
	}
}

func (s *Server) handleGetOptimization(c *fiber.Ctx) error {
	opt, ok := s.store.GetOptimization(c.Params("id"))
	if !ok {
		return problemResponse(c, fiber.StatusNotFound,
			"not_found", "Not Found", "No optimization with that id")
	}
	return c.JSON(opt)
}

func (s *Server) handleApplyOptimization(c *fiber.Ctx) error {
	return s.transitionOptimization(c, s.store.ApplyOptimization)
}

func (s *Server) handleRejectOptimization(c *fiber.Ctx) error {
	return s.transitionOptimization(c, s.store.RejectOptimization)
}

func (s *Server) transitionOptimization(c *fiber.Ctx, fn func(id, actorID string) (suggest.Optimization, error)) error {
	actor, err := parseActor(c)
	if err != nil {
		return problemResponse(c, fiber.StatusBadRequest,
			"missing_actor", "Bad Request", "actor_id is required")
	}
	opt, err := fn(c.Params("id"), actor)
	if err != nil {
		return s.transitionError(c, err)
	}
	return c.JSON(opt)
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	return c.JSON(s.store.GetStats())
}

// handleHealthDetail reports per-integration health plus uptime.
func (s *Server) handleHealthDetail(c *fiber.Ctx) error {
	results := s.checker.RunAll(c.Context())

	overall := "ok"
	integrations := make(map[string]string, len(results))
	for name, status := range results {
		integrations[name] = string(status)
		if status != "ok" {
			overall = "degraded"
		}
	}

	return c.JSON(HealthDetailResponse{
		Status:       overall,
		Integrations: integrations,
		Uptime:       time.Since(s.startTime).Round(time.Second).String(),
		Version:      s.version,
	})
}

func (s *Server) handleLiveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleReadiness(c *fiber.Ctx) error {
	if !s.checker.IsReady(c.Context()) {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"status": "not ready"})
	}
	return c.JSON(fiber.Map{"status": "ready"})
}

func (s *Server) transitionError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, oerrors.ErrNotFound):
		return problemResponse(c, fiber.StatusNotFound,
			"not_found", "Not Found", err.Error())
	case errors.Is(err, oerrors.ErrInvalidTransition):
		return problemResponse(c, fiber.StatusConflict,
			"invalid_transition", "Conflict", err.Error())
	default:
		return s.internalError(c, "applying transition", err)
	}
}

func (s *Server) internalError(c *fiber.Ctx, action string, err error) error {
	s.logger.Error().Err(err).Str("path", c.Path()).Msg(action + " failed")
	s.metrics.RecordError("api", "internal")
	return problemResponse(c, fiber.StatusInternalServerError,
		"internal_error", "Internal Server Error", "An unexpected error occurred")
}

func parseActor(c *fiber.Ctx) (string, error) {
	var req ActorRequest
	if err := c.BodyParser(&req); err != nil {
		return "", err
	}
	if req.ActorID == "" {
		return "", oerrors.ErrInvalidInput
	}
	return req.ActorID, nil
}

func splitParam(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
