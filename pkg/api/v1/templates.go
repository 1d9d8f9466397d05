package apiv1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/beam-cloud/salesmap/pkg/sales"
)

type TemplatesGroup struct {
	routerGroup *echo.Group
	catalog     *sales.Catalog
}

func NewTemplatesGroup(g *echo.Group, catalog *sales.Catalog) *TemplatesGroup {
	group := &TemplatesGroup{routerGroup: g, catalog: catalog}

	g.GET("", group.List)

	return group
}

// List returns the built-in template catalog
func (g *TemplatesGroup) List(c echo.Context) error {
	return c.JSON(http.StatusOK, g.catalog.List())
}
