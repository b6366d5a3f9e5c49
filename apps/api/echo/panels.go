package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Joeboy77/dms-backend-sub000/core/defense"
)

type panelApi struct {
	panels     *defense.PanelRegistry
	resolver   *defense.CandidateResolver
	validate   *validator.Validate
}

func registerPanelAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := panelApi{
		panels:     deps.Panels,
		resolver:   deps.Candidates,
		validate:   deps.Validate,
	}

	pg := g.Group("/defense-panels", jwt, coordinatorMiddleware())
	pg.POST("", api.create)
	pg.GET("", api.list)
	pg.GET("/:id", api.retrieve)
	pg.PATCH("/:id", api.update)
	pg.DELETE("/:id", api.destroy)
	pg.GET("/:id/students", api.candidates)
}

// Handlers

func (api *panelApi) create(ctx echo.Context) error {
	var data defense.NewPanel
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewPanel")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	panel, err := api.panels.Create(ctx.Request().Context(), data, actor)
	if err != nil {
		return errors.Wrap(err, "creating panel")
	}
	return ctx.JSON(http.StatusCreated, panel)
}

func (api *panelApi) list(ctx echo.Context) error {
	pq, err := bindPageQuery(ctx)
	if err != nil {
		return err
	}
	page, err := api.panels.List(ctx.Request().Context(), pq)
	if err != nil {
		return errors.Wrap(err, "listing panels")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *panelApi) retrieve(ctx echo.Context) error {
	panel, err := api.panels.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting panel")
	}
	return ctx.JSON(http.StatusOK, panel)
}

func (api *panelApi) update(ctx echo.Context) error {
	var data defense.UpdatePanel
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdatePanel")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	panel, err := api.panels.Update(ctx.Request().Context(), ctx.Param("id"), data, actor)
	if err != nil {
		return errors.Wrap(err, "updating panel")
	}
	return ctx.JSON(http.StatusOK, panel)
}

func (api *panelApi) destroy(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	if err = api.panels.Delete(ctx.Request().Context(), ctx.Param("id"), actor); err != nil {
		return errors.Wrap(err, "deleting panel")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"message": "Panel deleted successfully"})
}

func (api *panelApi) candidates(ctx echo.Context) error {
	pool, err := api.resolver.ForPanel(ctx.Request().Context(), ctx.Param("id"), queryParam(ctx, "academic_year_id"))
	if err != nil {
		return errors.Wrap(err, "resolving candidates")
	}
	return ctx.JSON(http.StatusOK, pool)
}
