package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ekipa/core"
	"github.com/trezcool/ekipa/core/ride"
	"github.com/trezcool/ekipa/core/user"
)

type rideApi struct {
	svc     ride.Service
	userSvc user.Service
}

func registerRideAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc ride.Service, userSvc user.Service) {
	api := rideApi{svc: svc, userSvc: userSvc}

	cg := g.Group("/carpooling", jwt)
	cg.GET("/:eventId", api.query)
	cg.POST("/:eventId/ride", api.create)
	cg.POST("/ride/:rideId/join", api.join)
	cg.DELETE("/ride/:rideId/join", api.leave)
	cg.DELETE("/ride/:rideId", api.destroy)
}

// Handlers

func (api *rideApi) query(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	infos, err := api.svc.Query(ctx.Request().Context(), actor, ctx.Param("eventId"))
	if err != nil {
		return errors.Wrap(err, "querying rides")
	}
	if infos == nil {
		infos = []ride.Info{}
	}
	return ctx.JSON(http.StatusOK, infos)
}

func (api *rideApi) create(ctx echo.Context) error {
	var data ride.NewRide
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewRide")
	}

	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	r, err := api.svc.Create(ctx.Request().Context(), actor, ctx.Param("eventId"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, r)
}

func (api *rideApi) join(ctx echo.Context) error {
	var data ride.JoinRide
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to JoinRide")
	}

	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	p, err := api.svc.Join(ctx.Request().Context(), actor, ctx.Param("rideId"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *rideApi) leave(ctx echo.Context) error {
	var data LeaveRideRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LeaveRideRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err = api.svc.Leave(ctx.Request().Context(), actor, ctx.Param("rideId"), data.PersonID); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *rideApi) destroy(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err = api.svc.Delete(ctx.Request().Context(), actor, ctx.Param("rideId")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

type LeaveRideRequest struct {
	PersonID string `json:"person_id" query:"person_id" validate:"required,uuid4"`
}

func (r *LeaveRideRequest) Validate() error {
	return core.Validate.Struct(r)
}
