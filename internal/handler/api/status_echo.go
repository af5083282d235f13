package api

import (
	"time"

	models "PerpHelm/internal/domain/models"
	domrepo "PerpHelm/internal/domain/repository"
	"PerpHelm/internal/usecase"
	"PerpHelm/pkg/cache"
	xhttp "PerpHelm/pkg/http"
	xlogger "PerpHelm/pkg/logger"

	"github.com/labstack/echo/v4"
)

// StatusEchoHandler exposes the pipeline's state over Echo: provider
// health, confirmed regime, governor state and the tripwire journal.
type StatusEchoHandler struct {
	logger       *xlogger.Logger
	orchestrator *usecase.SignalOrchestrator
	detector     *usecase.RegimeDetector
	governor     *usecase.StrategyGovernor
	tripwires    *usecase.TripwireService
	scorekeeper  *usecase.PlanScorekeeper
	signalCache  cache.Store
}

func NewStatusEchoHandler(
	logger *xlogger.Logger,
	orchestrator *usecase.SignalOrchestrator,
	detector *usecase.RegimeDetector,
	governor *usecase.StrategyGovernor,
	tripwires *usecase.TripwireService,
	scorekeeper *usecase.PlanScorekeeper,
	signalCache cache.Store,
) *StatusEchoHandler {
	return &StatusEchoHandler{
		logger:       logger,
		orchestrator: orchestrator,
		detector:     detector,
		governor:     governor,
		tripwires:    tripwires,
		scorekeeper:  scorekeeper,
		signalCache:  signalCache,
	}
}

func (h *StatusEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/health", h.Health)
	g.GET("/signals", h.Signals)
	g.GET("/regime", h.Regime)
	g.GET("/governor", h.Governor)
	g.POST("/governor/ack", h.AcknowledgeHalt)
	g.GET("/journal", h.Journal)
	g.GET("/plan/metrics", h.PlanMetrics)
}

func (h *StatusEchoHandler) Health(c echo.Context) error {
	resp := map[string]interface{}{
		"providers": h.orchestrator.HealthStatus(),
	}
	if h.signalCache != nil {
		resp["cache"] = h.signalCache.Metrics()
	}
	return xhttp.SuccessResponse(c, resp)
}

func (h *StatusEchoHandler) Signals(c echo.Context) error {
	req := &models.SignalsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ts := domrepo.NormalizeTimescale(req.Timescale)

	batch, err := h.orchestrator.CollectSignals(c.Request().Context(), req.Symbol, ts)
	if err != nil {
		h.logger.Error("signal collection error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, batch)
}

func (h *StatusEchoHandler) Regime(c echo.Context) error {
	n := xhttp.ParseIntDefault(c.QueryParam("n"), 20)

	current, confirmedAt := h.detector.Current()
	return xhttp.SuccessResponse(c, map[string]interface{}{
		"regime":       current,
		"confirmed_at": confirmedAt,
		"history":      h.detector.History(n),
	})
}

func (h *StatusEchoHandler) Governor(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.governor.State())
}

func (h *StatusEchoHandler) AcknowledgeHalt(c echo.Context) error {
	req := &models.AcknowledgeHaltRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	if err := h.governor.AcknowledgeHalt(c.Request().Context(), req.Operator); err != nil {
		return xhttp.BadRequestResponse(c, map[string]string{"error": err.Error()})
	}
	return xhttp.SuccessResponse(c, h.governor.State())
}

func (h *StatusEchoHandler) Journal(c echo.Context) error {
	n := xhttp.ParseIntDefault(c.QueryParam("n"), 50)
	since := xhttp.ParseTimeDefault(c.QueryParam("since"), time.Time{})

	events := h.tripwires.Journal(n)
	if !since.IsZero() {
		filtered := events[:0]
		for _, ev := range events {
			if !ev.Timestamp.Before(since) {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
	}
	return xhttp.SuccessResponse(c, events)
}

func (h *StatusEchoHandler) PlanMetrics(c echo.Context) error {
	m := h.scorekeeper.LiveMetrics()
	if m == nil {
		return xhttp.NotFoundResponse(c, map[string]string{"error": "no plan being tracked"})
	}
	return xhttp.SuccessResponse(c, m)
}
