package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
)

type runsHandler struct{}

func (runsHandler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/trailstop/runs", func(c echo.Context) error { return c.NoContent(http.StatusAccepted) })
}

func TestServerAllowsCrossOriginRunRequests(t *testing.T) {
	s := NewServer(runsHandler{})

	req := httptest.NewRequest(http.MethodOptions, "/api/trailstop/runs", nil)
	req.Header.Set(echo.HeaderOrigin, "https://dashboard.example")
	req.Header.Set(echo.HeaderAccessControlRequestMethod, http.MethodPost)
	req.Header.Set(echo.HeaderAccessControlRequestHeaders, echo.HeaderContentType)
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://dashboard.example", rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
	assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlAllowMethods), http.MethodPost)
	assert.Contains(t, rec.Header().Get(echo.HeaderAccessControlAllowHeaders), echo.HeaderContentType)
}

func TestServerWithoutCORS(t *testing.T) {
	s := NewServer(runsHandler{}, WithCORS(false))

	req := httptest.NewRequest(http.MethodPost, "/api/trailstop/runs", nil)
	req.Header.Set(echo.HeaderOrigin, "https://dashboard.example")
	rec := httptest.NewRecorder()
	s.Echo().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, rec.Header().Get(echo.HeaderAccessControlAllowOrigin))
}
