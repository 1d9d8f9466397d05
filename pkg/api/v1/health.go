package apiv1

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/salesmap/pkg/common"
)

type HealthGroup struct {
	redisClient *common.RedisClient
	routerGroup *echo.Group
}

// NewHealthGroup registers the liveness route. rdb is nil in local mode.
func NewHealthGroup(g *echo.Group, rdb *common.RedisClient) *HealthGroup {
	group := &HealthGroup{routerGroup: g, redisClient: rdb}

	g.GET("", group.HealthCheck)

	return group
}

type HealthResponse struct {
	OK            bool `json:"ok"`
	Authenticated bool `json:"authenticated"`
}

// HealthCheck reports liveness and whether the caller holds a live session.
// A failed redis ping is logged but does not fail the check.
func (h *HealthGroup) HealthCheck(c echo.Context) error {
	if h.redisClient != nil {
		if err := h.redisClient.Ping(c.Request().Context()).Err(); err != nil {
			log.Error().Err(err).Msg("redis ping failed")
		}
	}

	return c.JSON(http.StatusOK, HealthResponse{
		OK:            true,
		Authenticated: SessionFromContext(c) != nil,
	})
}
