package apiv1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/beam-cloud/salesmap/pkg/sales"
	"github.com/beam-cloud/salesmap/pkg/types"
)

const (
	HeaderWarnings = "X-Salesmap-Warnings"
	HeaderCache    = "X-Salesmap-Cache"
)

// SalesGroup serves the aggregate and the diagnostic probe. Both routes
// require a session.
type SalesGroup struct {
	routerGroup *echo.Group
	service     *sales.Service
}

func NewSalesGroup(g *echo.Group, service *sales.Service) *SalesGroup {
	group := &SalesGroup{routerGroup: g, service: service}

	g.GET("/sales-data", group.SalesData, RequireSession())
	g.GET("/debug", group.Debug, RequireSession())

	return group
}

// SalesData returns the session's per-country aggregate. refresh=true skips
// the cache read; verbose=true wraps the aggregate with its warnings.
func (g *SalesGroup) SalesData(c echo.Context) error {
	refresh, _ := strconv.ParseBool(c.QueryParam("refresh"))
	verbose, _ := strconv.ParseBool(c.QueryParam("verbose"))

	result, err := g.service.Run(c.Request().Context(), sales.RunRequest{
		Session:  SessionFromContext(c),
		Template: g.service.Resolver().FromParam(c.QueryParam("template")),
		Refresh:  refresh,
	})
	if err != nil {
		return g.pipelineError(c, err)
	}

	cacheStatus := "miss"
	if result.Cached {
		cacheStatus = "hit"
	}
	c.Response().Header().Set(HeaderCache, cacheStatus)
	c.Response().Header().Set(HeaderWarnings, strconv.Itoa(len(result.Warnings)))

	if verbose {
		return c.JSON(http.StatusOK, result)
	}
	return c.JSONBlob(http.StatusOK, result.Payload)
}

// Debug runs the template against a single message and reports what it saw
func (g *SalesGroup) Debug(c echo.Context) error {
	result, err := g.service.Probe(
		c.Request().Context(),
		SessionFromContext(c),
		g.service.Resolver().FromParam(c.QueryParam("template")),
	)
	if err != nil {
		if upstream, ok := types.AsUpstreamError(err); ok {
			return UpstreamErrorResponse(c, upstream.Status, upstream.Body)
		}
		return g.pipelineError(c, err)
	}

	return c.JSON(http.StatusOK, result)
}

func (g *SalesGroup) pipelineError(c echo.Context, err error) error {
	if errors.Is(err, types.ErrUnauthenticated) || errors.Is(err, types.ErrTokenUnavailable) {
		return ErrorResponse(c, http.StatusUnauthorized, errMsgUnauthorized)
	}
	log.Error().Err(err).Msg("sales pipeline failed")
	return ErrorResponse(c, http.StatusInternalServerError, errMsgInternal)
}
