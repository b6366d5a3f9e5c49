package echoapi

import (
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/Joeboy77/dms-backend-sub000/core/defense"
)

var (
	errInvalidLimit = errors.New("limit must be a positive integer")
	errInvalidDate  = errors.New("date must be formatted as YYYY-MM-DD")
)

func queryParam(ctx echo.Context, name string) string {
	return strings.TrimSpace(ctx.QueryParam(name))
}

func bindPageQuery(ctx echo.Context) (defense.PageQuery, error) {
	pq := defense.PageQuery{Cursor: queryParam(ctx, "cursor")}
	if raw := queryParam(ctx, "limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return defense.PageQuery{}, badRequest(errInvalidLimit, "limit")
		}
		pq.Limit = limit
	}
	return pq, nil
}

func bindScheduleFilter(ctx echo.Context) (defense.ScheduleFilter, error) {
	pq, err := bindPageQuery(ctx)
	if err != nil {
		return defense.ScheduleFilter{}, err
	}
	return defense.ScheduleFilter{
		PageQuery:      pq,
		AcademicYearID: queryParam(ctx, "academic_year_id"),
		Status:         defense.Status(queryParam(ctx, "status")),
		PanelID:        queryParam(ctx, "panel_id"),
	}, nil
}

// bindDate parses a required "YYYY-MM-DD" value.
func bindDate(raw, field string) (defense.Date, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return defense.Date{}, badRequest(errInvalidDate, field)
	}
	date, err := defense.ParseDate(raw)
	if err != nil {
		return defense.Date{}, badRequest(errInvalidDate, field)
	}
	return date, nil
}
