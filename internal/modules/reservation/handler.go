package reservation

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chargeslot/internal/domain"
	"chargeslot/internal/events"
	"chargeslot/internal/middleware"
	"chargeslot/internal/pkg/response"
	"chargeslot/internal/pkg/validator"
	"chargeslot/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const publishTimeout = 3 * time.Second

type Handler struct {
	service   *Service
	publisher events.Publisher
	ownership *middleware.OwnershipChecker
	currency  string
	log       *logrus.Entry
}

func NewHandler(
	service *Service,
	publisher events.Publisher,
	ownership *middleware.OwnershipChecker,
	currency string,
	log *logrus.Logger,
) *Handler {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		service:   service,
		publisher: publisher,
		ownership: ownership,
		currency:  currency,
		log:       log.WithField("component", "reservation_handler"),
	}
}

// RegisterRoutes expects a group already behind JWTAuth.
func (h *Handler) RegisterRoutes(protected *gin.RouterGroup) {
	owner := middleware.RequireRole(string(domain.RoleOwner), string(domain.RoleAdmin))

	g := protected.Group("/reservations")
	{
		g.POST("", middleware.RequireRole(string(domain.RoleClient)), h.Create)
		g.GET("", middleware.AdminOnly(), h.Search)
		g.GET("/me", h.ListMine)
		g.GET("/:id", h.Get)
		g.GET("/:id/receipt", h.Receipt)
		g.PATCH("/:id/cancel", h.Cancel)
		g.PATCH("/:id/accept", owner, h.Accept)
		g.PATCH("/:id/refuse", owner, h.Refuse)
		g.PATCH("/:id/complete", owner, h.Complete)
	}

	protected.GET("/owner/reservations", owner, h.ListOwned)

	stationRoute := []gin.HandlerFunc{owner}
	if h.ownership != nil {
		stationRoute = append(stationRoute, h.ownership.CheckStationOwnership())
	}
	protected.GET("/stations/:id/reservations", append(stationRoute, h.ListByStation)...)
}

func (h *Handler) Create(c *gin.Context) {
	var req CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
		return
	}

	r, err := h.service.Create(c.Request.Context(), c.GetInt64("user_id"), req.StationID, req.StartTime, req.EndTime)
	if err != nil {
		h.writeError(c, err)
		return
	}

	h.publish(c, events.ReservationCreated, r)
	response.Success(c, http.StatusCreated, gin.H{"reservation": toResponse(r, h.currency)})
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	var (
		r   *domain.Reservation
		err error
	)
	if c.GetString("role") == string(domain.RoleAdmin) {
		r, err = h.service.GetByID(c.Request.Context(), id)
	} else {
		r, err = h.service.GetForActor(c.Request.Context(), id, c.GetInt64("user_id"))
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"reservation": toResponse(r, h.currency)})
}

func (h *Handler) ListMine(c *gin.Context) {
	page, perPage := pagination(c)
	items, total, err := h.service.ListByRequester(c.Request.Context(), c.GetInt64("user_id"), page, perPage)
	h.writeList(c, items, total, page, perPage, err)
}

func (h *Handler) ListOwned(c *gin.Context) {
	page, perPage := pagination(c)
	items, total, err := h.service.ListByOwner(c.Request.Context(), c.GetInt64("user_id"), page, perPage)
	h.writeList(c, items, total, page, perPage, err)
}

func (h *Handler) ListByStation(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	page, perPage := pagination(c)
	items, total, err := h.service.ListByStation(c.Request.Context(), id, page, perPage)
	h.writeList(c, items, total, page, perPage, err)
}

func (h *Handler) Search(c *gin.Context) {
	var q SearchQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid query parameters")
		return
	}
	q.From, q.To = restorePlus(q.From), restorePlus(q.To)
	if errs := validator.Validate(q); errs != nil {
		response.ErrorWithDetails(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid query parameters", errs)
		return
	}
	from, err := parseQueryTime(q.From)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "from must be an RFC3339 timestamp")
		return
	}
	to, err := parseQueryTime(q.To)
	if err != nil {
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "to must be an RFC3339 timestamp")
		return
	}

	if q.Page == 0 {
		q.Page = 1
	}
	if q.PerPage == 0 {
		q.PerPage = 20
	}
	f := repository.ReservationFilter{
		Status:    domain.ReservationStatus(q.Status),
		StationID: q.StationID,
		UserID:    q.UserID,
		Page:      q.Page,
		PerPage:   q.PerPage,
		From:      from,
		To:        to,
	}

	items, total, err := h.service.Search(c.Request.Context(), f)
	h.writeList(c, items, total, f.Page, f.PerPage, err)
}

func (h *Handler) Cancel(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	r, err := h.service.Cancel(c.Request.Context(), id, c.GetInt64("user_id"))
	h.writeTransition(c, events.ReservationCancelled, r, err)
}

func (h *Handler) Accept(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	r, err := h.service.Accept(c.Request.Context(), id, c.GetInt64("user_id"))
	h.writeTransition(c, events.ReservationAccepted, r, err)
}

func (h *Handler) Refuse(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req RefuseRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", "Invalid request body")
			return
		}
	}
	r, err := h.service.Refuse(c.Request.Context(), id, c.GetInt64("user_id"), req.Reason)
	h.writeTransition(c, events.ReservationRefused, r, err)
}

// Complete is limited to owners and admins by route; the service itself does
// not check the actor.
func (h *Handler) Complete(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	r, err := h.service.Complete(c.Request.Context(), id)
	h.writeTransition(c, events.ReservationCompleted, r, err)
}

func (h *Handler) Receipt(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	content, err := h.service.ReceiptContent(c.Request.Context(), id, c.GetInt64("user_id"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=reservation-"+strconv.FormatInt(id, 10)+".pdf")
	c.Data(http.StatusOK, "application/pdf", content)
}

func (h *Handler) writeTransition(c *gin.Context, t events.Type, r *domain.Reservation, err error) {
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.publish(c, t, r)
	response.Success(c, http.StatusOK, gin.H{"reservation": toResponse(r, h.currency)})
}

func (h *Handler) writeList(c *gin.Context, items []domain.Reservation, total int64, page, perPage int, err error) {
	if err != nil {
		h.writeError(c, err)
		return
	}
	response.List(c, "reservations", toResponses(items, h.currency), response.Page{
		Total:   total,
		Page:    page,
		PerPage: perPage,
	})
}

// publish notifies the broker and live clients within publishTimeout.
// Failures never affect the response.
func (h *Handler) publish(c *gin.Context, t events.Type, r *domain.Reservation) {
	ev := events.FromReservation(t, r)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), publishTimeout)
	defer cancel()
	if err := h.publisher.Publish(ctx, ev); err != nil {
		h.log.WithError(err).WithFields(logrus.Fields{
			"reservation_id": r.ID,
			"event":          t,
		}).Warn("reservation event not delivered")
	}
}

func (h *Handler) writeError(c *gin.Context, err error) {
	msg := Message(err)
	switch {
	case errors.Is(err, ErrNotFound):
		response.Error(c, http.StatusNotFound, "NOT_FOUND", msg)
	case errors.Is(err, ErrValidation):
		response.Error(c, http.StatusBadRequest, "VALIDATION_ERROR", msg)
	case errors.Is(err, ErrConflict):
		response.Error(c, http.StatusConflict, "RESERVATION_CONFLICT", msg)
	case errors.Is(err, ErrForbidden):
		response.Error(c, http.StatusForbidden, "FORBIDDEN", msg)
	case errors.Is(err, ErrIllegalState):
		response.Error(c, http.StatusConflict, "INVALID_STATUS_TRANSITION", msg)
	default:
		_ = c.Error(err)
		response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Something went wrong")
	}
}

// restorePlus undoes query decoding of an unescaped "+" in a UTC offset.
func restorePlus(v string) string {
	return strings.ReplaceAll(v, " ", "+")
}

func parseQueryTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid ID")
		return 0, false
	}
	return id, true
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}
