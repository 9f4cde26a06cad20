package reservation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"chargeslot/internal/domain"
	"chargeslot/internal/events"
	"chargeslot/internal/middleware"
	"chargeslot/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.ReservationEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, ev events.ReservationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) types() []events.Type {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Type, 0, len(p.events))
	for _, ev := range p.events {
		out = append(out, ev.Type)
	}
	return out
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type reservationBody struct {
	Reservation ReservationResponse `json:"reservation"`
}

type listBody struct {
	Reservations []ReservationResponse `json:"reservations"`
	Total        int64                 `json:"total"`
	Page         int                   `json:"page"`
	PerPage      int                   `json:"per_page"`
}

// fakeAuth stands in for JWTAuth and trusts the X-User-ID and X-Role headers.
func fakeAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, _ := strconv.ParseInt(c.GetHeader("X-User-ID"), 10, 64)
		c.Set("user_id", id)
		c.Set("role", c.GetHeader("X-Role"))
		c.Next()
	}
}

func setupRouter(t *testing.T) (*env, *gin.Engine, *recordingPublisher) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	e := setupEnv(t)

	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	pub := &recordingPublisher{}
	ownership := middleware.NewOwnershipChecker(repository.NewStationRepository(e.db))
	h := NewHandler(e.svc, pub, ownership, "EUR", log)

	router := gin.New()
	h.RegisterRoutes(router.Group("/api/v1", fakeAuth()))
	return e, router, pub
}

func doRequest(router *gin.Engine, method, path string, user domain.User, body any) (*httptest.ResponseRecorder, envelope) {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-User-ID", strconv.FormatInt(user.ID, 10))
	req.Header.Set("X-Role", string(user.Role))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var out envelope
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func decodeReservation(t *testing.T, resp envelope) ReservationResponse {
	t.Helper()
	var body reservationBody
	require.NoError(t, json.Unmarshal(resp.Data, &body))
	return body.Reservation
}

func createBody(stationID int64, startH, endH int) gin.H {
	return gin.H{
		"station_id": stationID,
		"start_time": at(startH, 0),
		"end_time":   at(endH, 30),
	}
}

func TestHandler_CreateAcceptLifecycle(t *testing.T) {
	e, router, pub := setupRouter(t)

	w, resp := doRequest(router, http.MethodPost, "/api/v1/reservations", e.client, createBody(e.station.ID, 10, 11))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeReservation(t, resp)
	assert.Equal(t, domain.ReservationPending, created.Status)
	assert.Equal(t, "45.00 EUR", created.PriceFormatted)
	assert.Equal(t, int64(90), created.DurationMin)
	assert.False(t, created.HasReceipt)

	w, resp = doRequest(router, http.MethodPost, "/api/v1/reservations", e.client, createBody(e.station.ID, 11, 12))
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "RESERVATION_CONFLICT", resp.Error.Code)

	path := fmt.Sprintf("/api/v1/reservations/%d", created.ID)

	w, resp = doRequest(router, http.MethodPatch, path+"/accept", e.other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", resp.Error.Code)

	e.other.Role = domain.RoleOwner
	w, resp = doRequest(router, http.MethodPatch, path+"/accept", e.other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, resp.Error.Message, "station owner")

	w, resp = doRequest(router, http.MethodPatch, path+"/accept", e.owner, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	accepted := decodeReservation(t, resp)
	assert.Equal(t, domain.ReservationConfirmed, accepted.Status)
	assert.True(t, accepted.HasReceipt)

	w, _ = doRequest(router, http.MethodGet, path+"/receipt", e.client, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "reservation-")

	w, resp = doRequest(router, http.MethodPatch, path+"/cancel", e.client, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_STATUS_TRANSITION", resp.Error.Code)

	w, resp = doRequest(router, http.MethodPatch, path+"/complete", e.owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.ReservationCompleted, decodeReservation(t, resp).Status)

	assert.Equal(t, []events.Type{
		events.ReservationCreated,
		events.ReservationAccepted,
		events.ReservationCompleted,
	}, pub.types())
	assert.Equal(t, e.owner.ID, pub.events[0].OwnerID)
}

func TestHandler_CreateValidation(t *testing.T) {
	e, router, pub := setupRouter(t)

	w, resp := doRequest(router, http.MethodPost, "/api/v1/reservations", e.client, gin.H{"station_id": e.station.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)

	w, resp = doRequest(router, http.MethodPost, "/api/v1/reservations", e.client, createBody(e.station.ID, 12, 11))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)

	w, resp = doRequest(router, http.MethodPost, "/api/v1/reservations", e.client, createBody(9999, 10, 11))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)

	w, _ = doRequest(router, http.MethodPost, "/api/v1/reservations", e.owner, createBody(e.station.ID, 10, 11))
	assert.Equal(t, http.StatusForbidden, w.Code)

	assert.Empty(t, pub.types())
}

func TestHandler_RefuseAndCancel(t *testing.T) {
	e, router, pub := setupRouter(t)

	first := e.create(t, at(10, 0), at(11, 0))
	second := e.create(t, at(12, 0), at(13, 0))

	w, resp := doRequest(router, http.MethodPatch, fmt.Sprintf("/api/v1/reservations/%d/refuse", first.ID), e.owner,
		gin.H{"reason": "station reserved for fleet"})
	require.Equal(t, http.StatusOK, w.Code)
	refused := decodeReservation(t, resp)
	assert.Equal(t, domain.ReservationRefused, refused.Status)
	require.NotNil(t, refused.RefusalReason)
	assert.Equal(t, "station reserved for fleet", *refused.RefusalReason)

	w, _ = doRequest(router, http.MethodPatch, fmt.Sprintf("/api/v1/reservations/%d/refuse", first.ID), e.owner, nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w, _ = doRequest(router, http.MethodPatch, fmt.Sprintf("/api/v1/reservations/%d/cancel", second.ID), e.other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, resp = doRequest(router, http.MethodPatch, fmt.Sprintf("/api/v1/reservations/%d/cancel", second.ID), e.client, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.ReservationCancelled, decodeReservation(t, resp).Status)

	assert.Equal(t, []events.Type{events.ReservationRefused, events.ReservationCancelled}, pub.types())
	assert.Equal(t, "station reserved for fleet", pub.events[0].Reason)
}

func TestHandler_PublisherFailureDoesNotFailRequest(t *testing.T) {
	e, router, pub := setupRouter(t)
	pub.err = errors.New("broker unavailable")

	w, _ := doRequest(router, http.MethodPost, "/api/v1/reservations", e.client, createBody(e.station.ID, 10, 11))
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Len(t, pub.types(), 1)
}

func TestHandler_GetVisibility(t *testing.T) {
	e, router, _ := setupRouter(t)
	r := e.create(t, at(10, 0), at(11, 0))
	path := fmt.Sprintf("/api/v1/reservations/%d", r.ID)

	w, _ := doRequest(router, http.MethodGet, path, e.client, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = doRequest(router, http.MethodGet, path, e.owner, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = doRequest(router, http.MethodGet, path, e.other, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin := domain.User{ID: 999, Role: domain.RoleAdmin}
	w, _ = doRequest(router, http.MethodGet, path, admin, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, resp := doRequest(router, http.MethodGet, "/api/v1/reservations/abc", e.client, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ID", resp.Error.Code)

	w, _ = doRequest(router, http.MethodGet, "/api/v1/reservations/4242", e.client, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, resp = doRequest(router, http.MethodGet, path+"/receipt", e.client, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestHandler_Lists(t *testing.T) {
	e, router, _ := setupRouter(t)
	e.create(t, at(10, 0), at(11, 0))
	e.create(t, at(12, 0), at(13, 0))
	e.insert(t, at(14, 0), at(15, 0), domain.ReservationConfirmed)

	decodeList := func(resp envelope) listBody {
		var body listBody
		require.NoError(t, json.Unmarshal(resp.Data, &body))
		return body
	}

	w, resp := doRequest(router, http.MethodGet, "/api/v1/reservations/me?per_page=1", e.client, nil)
	require.Equal(t, http.StatusOK, w.Code)
	mine := decodeList(resp)
	assert.Equal(t, int64(2), mine.Total)
	assert.Len(t, mine.Reservations, 1)
	assert.Equal(t, 1, mine.PerPage)

	w, resp = doRequest(router, http.MethodGet, "/api/v1/owner/reservations", e.owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(3), decodeList(resp).Total)

	stationPath := fmt.Sprintf("/api/v1/stations/%d/reservations", e.station.ID)
	w, resp = doRequest(router, http.MethodGet, stationPath, e.owner, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(3), decodeList(resp).Total)

	strangerOwner := domain.User{ID: e.other.ID, Role: domain.RoleOwner}
	w, _ = doRequest(router, http.MethodGet, stationPath, strangerOwner, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w, _ = doRequest(router, http.MethodGet, "/api/v1/owner/reservations", e.client, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandler_AdminSearch(t *testing.T) {
	e, router, _ := setupRouter(t)
	e.create(t, at(10, 0), at(11, 0))
	e.insert(t, at(14, 0), at(15, 0), domain.ReservationConfirmed)
	admin := domain.User{ID: 999, Role: domain.RoleAdmin}

	w, resp := doRequest(router, http.MethodGet, "/api/v1/reservations?status=confirmed", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body listBody
	require.NoError(t, json.Unmarshal(resp.Data, &body))
	assert.Equal(t, int64(1), body.Total)
	assert.Equal(t, 1, body.Page)
	assert.Equal(t, 20, body.PerPage)

	w, resp = doRequest(router, http.MethodGet, "/api/v1/reservations?status=lost", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)

	w, _ = doRequest(router, http.MethodGet, "/api/v1/reservations?from=yesterday", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doRequest(router, http.MethodGet, "/api/v1/reservations", e.client, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandler_AdminSearchTimeWindowWithOffset(t *testing.T) {
	e, router, _ := setupRouter(t)
	e.create(t, at(10, 0), at(11, 0))
	e.insert(t, at(14, 0), at(15, 0), domain.ReservationConfirmed)
	admin := domain.User{ID: 999, Role: domain.RoleAdmin}

	// 14:00+02:00 is 12:00 UTC, so only the afternoon reservation ends after it.
	for _, from := range []string{"2030-05-14T14:00:00+02:00", "2030-05-14T14:00:00%2B02:00", "2030-05-14T12:00:00Z"} {
		w, resp := doRequest(router, http.MethodGet, "/api/v1/reservations?from="+from, admin, nil)
		require.Equal(t, http.StatusOK, w.Code, from)
		var body listBody
		require.NoError(t, json.Unmarshal(resp.Data, &body))
		assert.Equal(t, int64(1), body.Total, from)
	}

	w, resp := doRequest(router, http.MethodGet, "/api/v1/reservations?to=2030-05-14T12:00:00-03:00", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body listBody
	require.NoError(t, json.Unmarshal(resp.Data, &body))
	assert.Equal(t, int64(2), body.Total)

	w, _ = doRequest(router, http.MethodGet, "/api/v1/reservations?to=2030-05-14+12:00", admin, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
