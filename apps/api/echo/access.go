package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pariksha/lms/core/access"
)

type accessApi struct {
	svc *access.Service
}

func registerAccessAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *access.Service) {
	api := accessApi{svc: svc}

	self := selfOrAdminMiddleware("userId")
	g.GET("/access/:userId/:courseId", api.courseAccess, jwt, self)
	g.GET("/entitlements/:userId", api.entitlements, jwt, self)
}

// Handlers

func (api *accessApi) courseAccess(ctx echo.Context) error {
	res, err := api.svc.HasCourseAccess(ctx.Request().Context(), ctx.Param("userId"), ctx.Param("courseId"))
	if err != nil {
		return errors.Wrap(err, "checking course access")
	}
	return ctx.JSON(http.StatusOK, res)
}

func (api *accessApi) entitlements(ctx echo.Context) error {
	view, err := api.svc.ListEntitlements(ctx.Request().Context(), ctx.Param("userId"))
	if err != nil {
		return errors.Wrap(err, "listing entitlements")
	}
	return ctx.JSON(http.StatusOK, view)
}
