package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"TrendScan/internal/domain/models"
	domrepo "TrendScan/internal/domain/repository"
	"TrendScan/internal/repository"
	"TrendScan/pkg/cache"
)

type stubCache struct {
	snap *models.Snapshot
	puts int
}

func (s *stubCache) Put(_ context.Context, snap *models.Snapshot) error {
	s.snap = snap
	s.puts++
	return nil
}

func (s *stubCache) Latest(context.Context) (*models.Snapshot, error) {
	if s.snap == nil {
		return nil, domrepo.ErrNotFound
	}
	return s.snap, nil
}

func (s *stubCache) Rows(_ context.Context, symbols ...string) (map[string]models.SnapshotRow, error) {
	out := map[string]models.SnapshotRow{}
	if s.snap == nil {
		return out, nil
	}
	for _, sym := range symbols {
		if r, ok := s.snap.Row(sym); ok {
			out[sym] = r
		}
	}
	return out, nil
}

type stubStore struct {
	snap *models.Snapshot
	err  error
}

func (s *stubStore) Init(context.Context) error                            { return nil }
func (s *stubStore) SaveRun(context.Context, models.RunMeta) error         { return nil }
func (s *stubStore) SaveResults(context.Context, []models.ResultRow) error { return nil }
func (s *stubStore) Close() error                                          { return nil }
func (s *stubStore) LatestSnapshot(context.Context) (*models.Snapshot, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.snap == nil {
		return nil, domrepo.ErrNotFound
	}
	return s.snap, nil
}

func fixture() *models.Snapshot {
	return &models.Snapshot{
		Meta: models.RunMeta{RunID: "run-7", Timeframe: "weekly", TrendMap: models.TrendMap()},
		Date: time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
		Rows: []models.SnapshotRow{
			{Symbol: "AAPL", Trend: "green", Signal: "buy", Fast: models.OptFloat(101), Slow: models.OptFloat(95), Close: models.OptFloat(104)},
			{Symbol: "MSFT", Trend: "green", Signal: "none", Fast: models.OptFloat(401), Slow: models.OptFloat(380), Close: models.OptFloat(410)},
			{Symbol: "TSLA", Trend: "red", Signal: "sell", Fast: models.OptFloat(180), Slow: models.OptFloat(200), Close: models.OptFloat(175)},
		},
	}
}

type envelope struct {
	Status  int             `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func serve(t *testing.T, h *TrailStopEchoHandler, target string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func TestLatestFromCacheWithFilters(t *testing.T) {
	h := NewTrailStopEchoHandler(nil, &stubCache{snap: fixture()}, nil, RateLimit{})

	rec, env := serve(t, h, "/api/trailstop/latest?trend=green")
	require.Equal(t, http.StatusOK, rec.Code)

	var body LatestResponse
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, "run-7", body.Meta.RunID)
	assert.Equal(t, "2024-03-08", body.Date)
	assert.Equal(t, 2, body.Total)
	require.Len(t, body.Rows, 2)
	assert.Equal(t, "AAPL", body.Rows[0].Symbol)

	_, env = serve(t, h, "/api/trailstop/latest?trend=green&signal=buy&limit=1")
	require.NoError(t, json.Unmarshal(env.Data, &body))
	assert.Equal(t, 1, body.Total)
}

func TestLatestRejectsUnknownTrend(t *testing.T) {
	h := NewTrailStopEchoHandler(nil, &stubCache{snap: fixture()}, nil, RateLimit{})
	rec, env := serve(t, h, "/api/trailstop/latest?trend=purple")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, http.StatusBadRequest, env.Status)
}

func TestLatestFallsBackToStoreAndRefillsCache(t *testing.T) {
	cache := &stubCache{}
	h := NewTrailStopEchoHandler(nil, cache, &stubStore{snap: fixture()}, RateLimit{})

	rec, _ := serve(t, h, "/api/trailstop/latest")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, cache.puts)
}

func TestLatestNotFound(t *testing.T) {
	h := NewTrailStopEchoHandler(nil, &stubCache{}, &stubStore{}, RateLimit{})
	rec, _ := serve(t, h, "/api/trailstop/latest")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLatestStoreError(t *testing.T) {
	h := NewTrailStopEchoHandler(nil, &stubCache{}, &stubStore{err: errors.New("ch down")}, RateLimit{})
	rec, _ := serve(t, h, "/api/trailstop/latest")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSymbol(t *testing.T) {
	h := NewTrailStopEchoHandler(nil, &stubCache{snap: fixture()}, nil, RateLimit{})

	rec, env := serve(t, h, "/api/trailstop/symbol?symbol=TSLA,NVDA")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "NVDA", rec.Header().Get("X-Missing-Symbols"))

	var list struct {
		Rows  []models.SnapshotRow `json:"rows"`
		Total int64                `json:"total"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Rows, 1)
	assert.Equal(t, "sell", list.Rows[0].Signal)
	assert.Equal(t, 200.0, *list.Rows[0].Slow)
}

func TestSymbolIgnoresRowsOfPreviousWeek(t *testing.T) {
	mc := cache.NewMemoryCache()
	defer mc.Close()
	snaps := repository.NewSnapshotCache(mc, time.Hour)
	ctx := context.Background()

	prev := fixture()
	prev.Meta.RunID = "run-6"
	prev.Date = prev.Date.AddDate(0, 0, -7)
	require.NoError(t, snaps.Put(ctx, prev))

	cur := fixture()
	cur.Rows = cur.Rows[:2]
	require.NoError(t, snaps.Put(ctx, cur))

	h := NewTrailStopEchoHandler(nil, snaps, nil, RateLimit{})
	rec, _ := serve(t, h, "/api/trailstop/symbol?symbol=TSLA")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env := serve(t, h, "/api/trailstop/symbol?symbol=AAPL,TSLA")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "TSLA", rec.Header().Get("X-Missing-Symbols"))
	var list struct {
		Rows []models.SnapshotRow `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list.Rows, 1)
	assert.Equal(t, "AAPL", list.Rows[0].Symbol)
}

func TestSymbolValidation(t *testing.T) {
	h := NewTrailStopEchoHandler(nil, &stubCache{snap: fixture()}, nil, RateLimit{})

	rec, _ := serve(t, h, "/api/trailstop/symbol")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = serve(t, h, "/api/trailstop/symbol?symbol=ZZZZ")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRateLimited(t *testing.T) {
	h := NewTrailStopEchoHandler(nil, &stubCache{snap: fixture()}, nil, RateLimit{Capacity: 1, RefillPerSec: 0.001})
	e := echo.New()
	h.RegisterRoutes(e)

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/trailstop/latest", nil)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
}

func TestHealth(t *testing.T) {
	h := NewTrailStopEchoHandler(nil, nil, nil, RateLimit{})
	rec, env := serve(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, string(env.Data))
}

type stubTrigger struct {
	reqs []models.RunRequest
	err  error
}

func (s *stubTrigger) RequestRun(_ context.Context, req models.RunRequest) error {
	s.reqs = append(s.reqs, req)
	return s.err
}

func post(t *testing.T, h *TrailStopEchoHandler, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	h.RegisterRoutes(e)
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestRequestRunQueues(t *testing.T) {
	trig := &stubTrigger{}
	h := NewTrailStopEchoHandler(nil, nil, nil, RateLimit{})
	h.SetRunTrigger(trig)

	rec := post(t, h, "/api/trailstop/runs", `{"requested_by":"ops","reason":"late data"}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	require.Len(t, trig.reqs, 1)
	assert.Equal(t, "ops", trig.reqs[0].RequestedBy)
	assert.Equal(t, "late data", trig.reqs[0].Reason)
	assert.False(t, trig.reqs[0].RequestedAt.IsZero())
}

func TestRequestRunValidation(t *testing.T) {
	trig := &stubTrigger{}
	h := NewTrailStopEchoHandler(nil, nil, nil, RateLimit{})
	h.SetRunTrigger(trig)

	rec := post(t, h, "/api/trailstop/runs", `{"reason":"no owner"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, trig.reqs)
}

func TestRequestRunEnqueueError(t *testing.T) {
	h := NewTrailStopEchoHandler(nil, nil, nil, RateLimit{})
	h.SetRunTrigger(&stubTrigger{err: errors.New("redis down")})

	rec := post(t, h, "/api/trailstop/runs", `{"requested_by":"ops"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRequestRunDisabledWithoutTrigger(t *testing.T) {
	h := NewTrailStopEchoHandler(nil, nil, nil, RateLimit{})
	rec := post(t, h, "/api/trailstop/runs", `{"requested_by":"ops"}`)
	assert.Contains(t, []int{http.StatusNotFound, http.StatusMethodNotAllowed}, rec.Code)
}
