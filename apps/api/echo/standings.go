package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	standingssvc "github.com/trezcool/ekipa/services/standings"
)

type standingsApi struct {
	svc *standingssvc.Service
}

func registerStandingsAPI(g *echo.Group, svc *standingssvc.Service) {
	if svc == nil {
		return
	}
	api := standingsApi{svc: svc}
	g.GET("/standings", api.query)
}

func (api *standingsApi) query(ctx echo.Context) error {
	rows, err := api.svc.Get(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "fetching standings")
	}
	if rows == nil {
		rows = []standingssvc.Row{}
	}
	return ctx.JSON(http.StatusOK, rows)
}
