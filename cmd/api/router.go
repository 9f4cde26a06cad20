package main

import (
	"net/http"

	"chargeslot/internal/middleware"
	"chargeslot/internal/modules/notification"
	"chargeslot/internal/modules/reservation"
	jwtsvc "chargeslot/internal/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

func newRouter(
	log *logrus.Logger,
	j *jwtsvc.Service,
	corsOrigins []string,
	reservations *reservation.Handler,
	ws *notification.WSHandler,
) *gin.Engine {
	r := gin.New()
	r.Use(middleware.ErrorLogger(log))
	r.Use(middleware.CORS(corsOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.Group("/api/v1")
	{
		// public; the websocket authenticates with ?token=
		ws.RegisterRoutes(v1)

		protected := v1.Group("")
		protected.Use(middleware.JWTAuth(j))
		{
			reservations.RegisterRoutes(protected)
		}
	}
	return r
}
