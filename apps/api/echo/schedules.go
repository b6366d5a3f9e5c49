package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Joeboy77/dms-backend-sub000/core/defense"
)

type scheduleApi struct {
	scheduler *defense.Scheduler
	calendar  *defense.Calendar
	validate  *validator.Validate
}

func registerScheduleAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps ServerDeps) {
	api := scheduleApi{
		scheduler: deps.Scheduler,
		calendar:  deps.Calendar,
		validate:  deps.Validate,
	}

	sg := g.Group("/defense-schedules", jwt, coordinatorMiddleware())
	sg.POST("", api.create)
	sg.GET("", api.list)
	// static routes take precedence over /:id
	sg.GET("/date/:date", api.byDate)
	sg.GET("/calendar/markers", api.markers)
	sg.GET("/:id", api.retrieve)
	sg.PATCH("/:id", api.update)
	sg.POST("/:id/cancel", api.cancel)
}

// Handlers

func (api *scheduleApi) create(ctx echo.Context) error {
	var data defense.NewSchedule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSchedule")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	sched, err := api.scheduler.Create(ctx.Request().Context(), data, actor)
	if err != nil {
		return errors.Wrap(err, "creating schedule")
	}
	return ctx.JSON(http.StatusCreated, sched)
}

func (api *scheduleApi) list(ctx echo.Context) error {
	filter, err := bindScheduleFilter(ctx)
	if err != nil {
		return err
	}
	page, err := api.calendar.List(ctx.Request().Context(), filter)
	if err != nil {
		return errors.Wrap(err, "listing schedules")
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *scheduleApi) retrieve(ctx echo.Context) error {
	sched, err := api.calendar.Get(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting schedule")
	}
	return ctx.JSON(http.StatusOK, sched)
}

func (api *scheduleApi) byDate(ctx echo.Context) error {
	date, err := bindDate(ctx.Param("date"), "date")
	if err != nil {
		return err
	}
	scheds, err := api.calendar.ByDate(ctx.Request().Context(), date, queryParam(ctx, "academic_year_id"))
	if err != nil {
		return errors.Wrap(err, "getting schedules by date")
	}
	return ctx.JSON(http.StatusOK, scheds)
}

func (api *scheduleApi) markers(ctx echo.Context) error {
	from, err := bindDate(ctx.QueryParam("start_date"), "start_date")
	if err != nil {
		return err
	}
	to, err := bindDate(ctx.QueryParam("end_date"), "end_date")
	if err != nil {
		return err
	}
	markers, err := api.calendar.Markers(ctx.Request().Context(), from, to, queryParam(ctx, "academic_year_id"))
	if err != nil {
		return errors.Wrap(err, "getting calendar markers")
	}
	return ctx.JSON(http.StatusOK, markers)
}

func (api *scheduleApi) update(ctx echo.Context) error {
	var data defense.UpdateSchedule
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSchedule")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	sched, err := api.scheduler.Update(ctx.Request().Context(), ctx.Param("id"), data, actor)
	if err != nil {
		return errors.Wrap(err, "updating schedule")
	}
	return ctx.JSON(http.StatusOK, sched)
}

func (api *scheduleApi) cancel(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	sched, err := api.scheduler.Cancel(ctx.Request().Context(), ctx.Param("id"), actor)
	if err != nil {
		return errors.Wrap(err, "cancelling schedule")
	}
	return ctx.JSON(http.StatusOK, sched)
}
