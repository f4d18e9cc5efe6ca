package api

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"TrendScan/internal/domain/models"
	domrepo "TrendScan/internal/domain/repository"
	"TrendScan/internal/service/metrics"
	"TrendScan/internal/service/ratelimit"
	xhttp "TrendScan/pkg/http"
	xlogger "TrendScan/pkg/logger"
	"TrendScan/pkg/util"
)

// LatestRequest filters the latest snapshot.
type LatestRequest struct {
	Trend  string `query:"trend" validate:"omitempty,oneof=red yellow blue green invalid"`
	Signal string `query:"signal" validate:"omitempty,oneof=buy sell none invalid"`
	Limit  int    `query:"limit" default:"0" validate:"gte=0,lte=10000"`
}

// SymbolRequest asks for one or more comma separated symbols.
type SymbolRequest struct {
	Symbol string `query:"symbol" validate:"required,max=2048"`
}

// RunRequest asks for an out-of-schedule batch.
type RunRequest struct {
	RequestedBy string `json:"requested_by" validate:"required,max=64"`
	Reason      string `json:"reason" validate:"max=256"`
}

// LatestResponse is the filtered latest snapshot.
type LatestResponse struct {
	Meta  models.RunMeta       `json:"meta"`
	Date  string               `json:"date"`
	Total int                  `json:"total"`
	Rows  []models.SnapshotRow `json:"rows"`
}

// RateLimit is the per-client token bucket for the API group.
type RateLimit struct {
	Capacity     float64
	RefillPerSec float64
}

// TrailStopEchoHandler serves the latest trailing-stop snapshot. Reads go to
// the snapshot cache first and fall back to the result store.
type TrailStopEchoHandler struct {
	logger  *xlogger.Logger
	cache   domrepo.SnapshotCache
	store   domrepo.ResultStore
	rl      *ratelimit.Limiter
	limit   RateLimit
	trigger domrepo.RunTrigger
}

func NewTrailStopEchoHandler(logger *xlogger.Logger, cache domrepo.SnapshotCache, store domrepo.ResultStore, limit RateLimit) *TrailStopEchoHandler {
	metrics.Register()
	if logger == nil {
		logger = xlogger.Nop()
	}
	return &TrailStopEchoHandler{logger: logger, cache: cache, store: store, rl: ratelimit.New(), limit: limit}
}

// SetRunTrigger enables POST /api/trailstop/runs.
func (h *TrailStopEchoHandler) SetRunTrigger(t domrepo.RunTrigger) { h.trigger = t }

func (h *TrailStopEchoHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)

	g := e.Group("/api/trailstop")
	if h.limit.Capacity > 0 {
		g.Use(h.rl.Middleware(h.limit.Capacity, h.limit.RefillPerSec))
	}
	g.GET("/latest", h.Latest)
	g.GET("/symbol", h.Symbol)
	if h.trigger != nil {
		g.POST("/runs", h.RequestRun)
	}
}

func (h *TrailStopEchoHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *TrailStopEchoHandler) Latest(c echo.Context) error {
	start := time.Now()
	defer observe("latest", start)

	req := &LatestRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	snap, err := h.snapshot(c.Request().Context())
	if err != nil {
		return h.fail(c, "latest", err)
	}

	rows := snap.Filter(req.Trend, req.Signal)
	total := len(rows)
	if req.Limit > 0 && len(rows) > req.Limit {
		rows = rows[:req.Limit]
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "public, max-age=300")
	return xhttp.SuccessResponse(c, &LatestResponse{
		Meta:  snap.Meta,
		Date:  snap.Date.Format(time.DateOnly),
		Total: total,
		Rows:  rows,
	})
}

func (h *TrailStopEchoHandler) Symbol(c echo.Context) error {
	start := time.Now()
	defer observe("symbol", start)

	req := &SymbolRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	symbols := util.SplitList(req.Symbol)
	if len(symbols) == 0 {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestError("symbol is required").WithField("symbol"))
	}

	ctx := c.Request().Context()
	found := make(map[string]models.SnapshotRow, len(symbols))
	if h.cache != nil {
		rows, err := h.cache.Rows(ctx, symbols...)
		if err != nil {
			h.logger.Warn("snapshot row cache error", xlogger.Error(err))
		}
		for k, v := range rows {
			found[k] = v
		}
	}
	if len(found) < len(symbols) {
		snap, err := h.snapshot(ctx)
		if err != nil {
			return h.fail(c, "symbol", err)
		}
		for _, s := range symbols {
			if r, ok := snap.Row(s); ok {
				found[s] = r
			}
		}
	}

	out := make([]models.SnapshotRow, 0, len(symbols))
	var missing []string
	for _, s := range symbols {
		if r, ok := found[s]; ok {
			out = append(out, r)
		} else {
			missing = append(missing, s)
		}
	}
	if len(out) == 0 {
		return h.fail(c, "symbol", xhttp.NotFoundErrorf("no trailing-stop row for %s", req.Symbol))
	}
	if len(missing) > 0 {
		c.Response().Header().Set("X-Missing-Symbols", strings.Join(missing, ","))
	}
	return xhttp.ListResponse(c, out, int64(len(out)))
}

func (h *TrailStopEchoHandler) RequestRun(c echo.Context) error {
	start := time.Now()
	defer observe("runs", start)

	req := &RunRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	err := h.trigger.RequestRun(c.Request().Context(), models.RunRequest{
		RequestedBy: req.RequestedBy,
		Reason:      req.Reason,
		RequestedAt: start.UTC(),
	})
	if err != nil {
		return h.fail(c, "runs", xhttp.InternalError("enqueue run").WithError(err))
	}
	h.logger.Info("manual run queued", xlogger.String("requested_by", req.RequestedBy))
	return xhttp.DataResponse(c, http.StatusAccepted, map[string]string{"status": "queued"})
}

// snapshot reads the cached snapshot, rebuilding it from the store on a miss.
func (h *TrailStopEchoHandler) snapshot(ctx context.Context) (*models.Snapshot, error) {
	if h.cache != nil {
		snap, err := h.cache.Latest(ctx)
		if err == nil {
			metrics.SnapshotReads.WithLabelValues("cache").Inc()
			return snap, nil
		}
		if !errors.Is(err, domrepo.ErrNotFound) {
			h.logger.Warn("snapshot cache error", xlogger.Error(err))
		}
	}
	if h.store == nil {
		return nil, xhttp.NotFoundError("no trailing-stop run available")
	}
	snap, err := h.store.LatestSnapshot(ctx)
	if errors.Is(err, domrepo.ErrNotFound) {
		return nil, xhttp.NotFoundError("no trailing-stop run available")
	}
	if err != nil {
		return nil, xhttp.InternalError("load snapshot").WithError(err)
	}
	metrics.SnapshotReads.WithLabelValues("store").Inc()
	if h.cache != nil {
		if err := h.cache.Put(ctx, snap); err != nil {
			h.logger.Warn("snapshot cache refill failed", xlogger.Error(err))
		}
	}
	return snap, nil
}

func (h *TrailStopEchoHandler) fail(c echo.Context, endpoint string, err error) error {
	metrics.APIErrors.WithLabelValues(endpoint).Inc()
	var appErr *xhttp.AppError
	if errors.As(err, &appErr) && appErr.Status < http.StatusInternalServerError {
		return xhttp.AppErrorResponse(c, appErr)
	}
	h.logger.Error(endpoint+" handler error", xlogger.Error(err))
	return xhttp.AppErrorResponse(c, err)
}

func observe(endpoint string, start time.Time) {
	metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
}
