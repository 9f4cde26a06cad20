package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"chargeslot/internal/domain"
	"chargeslot/internal/pkg/jwt"
	"chargeslot/internal/pkg/response"
	"chargeslot/internal/repository"

	"github.com/gin-gonic/gin"
)

// JWTAuth validates the bearer token and stores user_id and role in the context.
func JWTAuth(jwtService *jwt.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, http.StatusUnauthorized, "AUTH_HEADER_MISSING", "Authorization header is required")
			c.Abort()
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
			response.Error(c, http.StatusUnauthorized, "INVALID_AUTH_FORMAT", "Authorization header must be 'Bearer <token>'")
			c.Abort()
			return
		}

		claims, err := jwtService.ValidateToken(strings.TrimSpace(parts[1]))
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "INVALID_TOKEN", "Invalid or expired token")
			c.Abort()
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("role", claims.Role)
		c.Next()
	}
}

type StationLookup interface {
	GetByID(ctx context.Context, id int64) (*domain.Station, error)
}

// OwnershipChecker verifies that the caller owns the station in the URL.
type OwnershipChecker struct {
	stations StationLookup
}

func NewOwnershipChecker(stations StationLookup) *OwnershipChecker {
	return &OwnershipChecker{stations: stations}
}

// CheckStationOwnership expects the station ID in URL param "id". Admins pass.
func (oc *OwnershipChecker) CheckStationOwnership() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetInt64("user_id")
		if userID == 0 {
			response.Error(c, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
			c.Abort()
			return
		}

		stationID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || stationID <= 0 {
			response.Error(c, http.StatusBadRequest, "INVALID_ID", "Invalid station ID")
			c.Abort()
			return
		}

		if c.GetString("role") == string(domain.RoleAdmin) {
			c.Next()
			return
		}

		station, err := oc.stations.GetByID(c.Request.Context(), stationID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				response.Error(c, http.StatusNotFound, "NOT_FOUND", "Station not found")
			} else {
				_ = c.Error(err)
				response.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load station")
			}
			c.Abort()
			return
		}

		if station.OwnerID != userID {
			response.Error(c, http.StatusForbidden, "FORBIDDEN", "You don't own this station")
			c.Abort()
			return
		}

		c.Next()
	}
}
