package echoapi

import (
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

func coordinatorMiddleware(roles ...string) echo.MiddlewareFunc {
	if len(roles) == 0 {
		roles = []string{RoleCoordinator}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if _, err := getContextClaims(ctx); err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
