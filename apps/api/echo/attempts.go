package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pariksha/lms/core/attempt"
)

type attemptApi struct {
	svc      *attempt.Service
	validate *validator.Validate
}

func registerAttemptAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *attempt.Service, validate *validator.Validate) {
	api := attemptApi{svc: svc, validate: validate}

	ag := g.Group("/attempts", jwt)
	ag.POST("", api.submit)

	ug := ag.Group("/:userId", selfOrAdminMiddleware("userId"))
	ug.GET("", api.query)
	ug.GET("/stats", api.stats)

	g.GET("/results/:id", api.retrieve, jwt)
}

// Handlers

func (api *attemptApi) submit(ctx echo.Context) error {
	var body attemptRequest
	if err := ctx.Bind(&body); err != nil {
		return errors.Wrap(err, "binding to attemptRequest")
	}
	data, err := body.normalize()
	if err != nil {
		return err
	}
	if data.UserID == "" {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return err
		}
		data.UserID = claims.Subject
	}
	if _, err = canActFor(ctx, data.UserID); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	res, err := api.svc.Submit(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "submitting attempt")
	}
	return ctx.JSON(http.StatusCreated, res.Summary())
}

func (api *attemptApi) query(ctx echo.Context) error {
	page, err := bindPage(ctx)
	if err != nil {
		return err
	}
	results, err := api.svc.ListResults(ctx.Request().Context(), attempt.QueryFilter{
		UserID: ctx.Param("userId"),
		TestID: ctx.QueryParam("test_id"),
		Page:   page,
	})
	if err != nil {
		return errors.Wrap(err, "querying results")
	}
	return ctx.JSON(http.StatusOK, results)
}

func (api *attemptApi) stats(ctx echo.Context) error {
	stats, err := api.svc.Stats(ctx.Request().Context(), ctx.Param("userId"))
	if err != nil {
		return errors.Wrap(err, "computing stats")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *attemptApi) retrieve(ctx echo.Context) error {
	res, err := api.svc.GetResult(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "finding result")
	}
	// other users' results are reported missing
	if _, err = canActFor(ctx, res.UserID); err != nil {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, res)
}
