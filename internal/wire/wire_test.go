package wire

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"telehealth-core/internal/data/repository"
	"telehealth-core/internal/usecase"
	"telehealth-core/pkg/gateway"
	"telehealth-core/pkg/metrics"
	"telehealth-core/pkg/utils"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestApp(t *testing.T, db Pinger) *App {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.ObserveSlotConflict()

	deps := usecase.Deps{
		Repo:    &repository.Repository{},
		Gateway: gateway.NewPaystackClient(gateway.Config{SecretKey: "sk_test"}, m, zap.NewNop()),
		Metrics: m,
		Config:  &utils.Config{},
	}
	return Wiring(deps, db, reg, zap.NewNop())
}

func serve(app *App, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestRouter_Health(t *testing.T) {
	assert.Equal(t, http.StatusOK, serve(newTestApp(t, fakePinger{}), http.MethodGet, "/health", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, serve(newTestApp(t, fakePinger{err: errors.New("down")}), http.MethodGet, "/health", "").Code)
}

func TestRouter_Metrics(t *testing.T) {
	rec := serve(newTestApp(t, nil), http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "telehealth_booking_slot_conflicts_total 1")
}

func TestRouter_ProtectedRoutesNeedSession(t *testing.T) {
	app := newTestApp(t, nil)
	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/api/bookings"},
		{http.MethodPost, "/api/bookings"},
		{http.MethodGet, "/api/bookings/123"},
		{http.MethodPost, "/api/bookings/123/start"},
		{http.MethodPost, "/api/bookings/123/confirm"},
		{http.MethodPost, "/api/payments/initialize"},
		{http.MethodGet, "/api/payments/verify/ref-1"},
	} {
		t.Run(route.method+" "+route.path, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, serve(app, route.method, route.path, "{}").Code)
		})
	}
}

func TestRouter_WebhookIsPublicButSigned(t *testing.T) {
	rec := serve(newTestApp(t, nil), http.MethodPost, "/api/payments/webhook", `{"event":"charge.success"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
