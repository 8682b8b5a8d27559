package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/ekipa/core"
	"github.com/trezcool/ekipa/core/team"
	"github.com/trezcool/ekipa/core/user"
)

type teamApi struct {
	svc     team.Service
	userSvc user.Service
}

func registerTeamAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc team.Service, userSvc user.Service) {
	api := teamApi{svc: svc, userSvc: userSvc}

	tg := g.Group("/teams", jwt)
	tg.POST("", api.create, adminMiddleware())
	tg.GET("", api.query)
	tg.GET("/:id", api.retrieve)
	tg.POST("/:id/coaches", api.addCoach, adminMiddleware())
	tg.POST("/:id/players", api.addPlayer, staffMiddleware())
	tg.GET("/:id/players", api.queryRoster)
	tg.GET("/:id/my-players", api.queryMyPlayers)
	tg.POST("/:id/groups", api.createGroup, staffMiddleware())
	tg.GET("/:id/groups", api.queryGroups)

	pg := g.Group("/players", jwt)
	pg.PUT("/:id", api.updatePlayer, staffMiddleware())

	gg := g.Group("/groups", jwt)
	gg.PUT("/:id/members", api.setGroupMembers, staffMiddleware())
	gg.DELETE("/:id", api.destroyGroup, staffMiddleware())
}

// Handlers

func (api *teamApi) create(ctx echo.Context) error {
	var data team.NewTeam
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTeam")
	}

	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	t, err := api.svc.CreateTeam(ctx.Request().Context(), actor, data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, t)
}

func (api *teamApi) query(ctx echo.Context) error {
	teams, err := api.svc.QueryTeams(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying teams")
	}
	if teams == nil {
		teams = []team.Team{}
	}
	return ctx.JSON(http.StatusOK, teams)
}

func (api *teamApi) retrieve(ctx echo.Context) error {
	t, err := api.svc.GetTeam(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, t)
}

func (api *teamApi) addCoach(ctx echo.Context) error {
	var data AddCoachRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to AddCoachRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err = api.svc.AddCoach(ctx.Request().Context(), actor, ctx.Param("id"), data.UserID); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *teamApi) addPlayer(ctx echo.Context) error {
	var data team.NewPlayer
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPlayer")
	}

	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	p, err := api.svc.AddPlayer(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, p)
}

func (api *teamApi) updatePlayer(ctx echo.Context) error {
	var data team.UpdatePlayer
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePlayer")
	}

	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	p, err := api.svc.UpdatePlayer(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, p)
}

func (api *teamApi) queryRoster(ctx echo.Context) error {
	players, err := api.svc.QueryRoster(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying roster")
	}
	if players == nil {
		players = []team.Player{}
	}
	return ctx.JSON(http.StatusOK, players)
}

// queryMyPlayers lists the roster players managed by the calling guardian.
func (api *teamApi) queryMyPlayers(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	players, err := api.svc.QueryGuardianPlayers(ctx.Request().Context(), ctx.Param("id"), actor.ID)
	if err != nil {
		return errors.Wrap(err, "querying guardian players")
	}
	if players == nil {
		players = []team.Player{}
	}
	return ctx.JSON(http.StatusOK, players)
}

func (api *teamApi) createGroup(ctx echo.Context) error {
	var data team.NewGroup
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewGroup")
	}

	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	grp, err := api.svc.CreateGroup(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusCreated, grp)
}

func (api *teamApi) queryGroups(ctx echo.Context) error {
	groups, err := api.svc.QueryGroups(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "querying groups")
	}
	if groups == nil {
		groups = []team.Group{}
	}
	return ctx.JSON(http.StatusOK, groups)
}

func (api *teamApi) setGroupMembers(ctx echo.Context) error {
	var data SetGroupMembersRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to SetGroupMembersRequest")
	}
	if err := data.Validate(); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	grp, err := api.svc.SetGroupMembers(ctx.Request().Context(), actor, ctx.Param("id"), data.MemberIDs)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, grp)
}

func (api *teamApi) destroyGroup(ctx echo.Context) error {
	actor, err := getContextUser(ctx, api.userSvc)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}

	if err = api.svc.DeleteGroup(ctx.Request().Context(), actor, ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

type (
	AddCoachRequest struct {
		UserID string `json:"user_id" validate:"required,uuid4"`
	}

	SetGroupMembersRequest struct {
		MemberIDs []string `json:"member_ids" validate:"omitempty,dive,uuid4"`
	}
)

func (r *AddCoachRequest) Validate() error {
	return core.Validate.Struct(r)
}

func (r *SetGroupMembersRequest) Validate() error {
	return core.Validate.Struct(r)
}
