package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ekipa/core"
	"github.com/trezcool/ekipa/core/event"
	"github.com/trezcool/ekipa/core/user"
)

type eventApi struct {
	svc     event.Service
	userSvc user.Service
}

func registerEventAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc event.Service, userSvc user.Service) {
	api := eventApi{svc: svc, userSvc: userSvc}

	eg := g.Group("/events", jwt)
	eg.POST("", api.create, staffMiddleware())
	eg.GET("", api.query)
	eg.POST("/generate-recurring", api.generateRecurring, staffMiddleware())
	eg.DELETE("/cleanup", api.cleanupPast, staffMiddleware())
	eg.PUT("/:id", api.update, staffMiddleware())
	eg.DELETE("/:id", api.destroy, staffMiddleware())
	eg.POST("/:id/convocations", api.reconcileConvocations, staffMiddleware())
	eg.PUT("/:id/attendance", api.setAttendanceStatus)
}

// Handlers

func (api *eventApi) create(ctx echo.Context) error {
	var data event.NewEvent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewEvent")
	}

	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	evt, err := api.svc.Create(ctx.Request().Context(), actor, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, evt)
}

func (api *eventApi) query(ctx echo.Context) error {
	var query TeamScopedRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to TeamScopedRequest")
	}
	if err := query.Validate(); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	events, err := api.svc.Query(ctx.Request().Context(), actor, query.TeamID)
	if err != nil {
		return errors.Wrap(err, "querying events")
	}
	if events == nil {
		events = []event.Event{}
	}
	return ctx.JSON(http.StatusOK, events)
}

func (api *eventApi) update(ctx echo.Context) error {
	var data event.UpdateEvent
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateEvent")
	}

	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	evt, err := api.svc.Update(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, evt)
}

func (api *eventApi) destroy(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err = api.svc.Delete(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// reconcileConvocations full-replaces the event's convocation target set with
// the entries marked is_convoked; recorded statuses of re-convoked persons
// survive the rewrite.
func (api *eventApi) reconcileConvocations(ctx echo.Context) error {
	var data ConvocationsRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to ConvocationsRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	target := make([]string, 0, len(data.Updates))
	for _, upd := range data.Updates {
		if upd.IsConvoked {
			target = append(target, upd.PersonID)
		}
	}
	rows, err := api.svc.Reconcile(ctx.Request().Context(), actor, ctx.Param("id"), target)
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []event.Attendance{}
	}
	return ctx.JSON(http.StatusOK, rows)
}

func (api *eventApi) setAttendanceStatus(ctx echo.Context) error {
	var data AttendanceRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AttendanceRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	att, err := api.svc.SetStatus(ctx.Request().Context(), actor, ctx.Param("id"), data.UserID, data.Status)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, att)
}

func (api *eventApi) generateRecurring(ctx echo.Context) error {
	var query TeamScopedRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to TeamScopedRequest")
	}
	if err := query.Validate(); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	count, err := api.svc.GenerateRecurring(ctx.Request().Context(), actor, query.TeamID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: count})
}

func (api *eventApi) cleanupPast(ctx echo.Context) error {
	var query TeamScopedRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to TeamScopedRequest")
	}
	if err := query.Validate(); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	count, err := api.svc.CleanupPast(ctx.Request().Context(), actor, query.TeamID)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, CountResponse{Count: count})
}

type (
	TeamScopedRequest struct {
		TeamID string `json:"team_id" query:"team_id" validate:"required,uuid4"`
	}

	ConvocationsRequest struct {
		Updates []event.ConvocationUpdate `json:"updates" validate:"omitempty,dive"`
	}

	AttendanceRequest struct {
		UserID string       `json:"user_id" validate:"required,uuid4"`
		Status event.Status `json:"status" validate:"required,oneof=UNKNOWN PRESENT ABSENT LATE SICK INJURED"`
	}

	CountResponse struct {
		Count int `json:"count"`
	}
)

func (r *TeamScopedRequest) Validate() error {
	return core.Validate.Struct(r)
}

func (r *ConvocationsRequest) Validate() error {
	return core.Validate.Struct(r)
}

func (r *AttendanceRequest) Validate() error {
	return core.Validate.Struct(r)
}
