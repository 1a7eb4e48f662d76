package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pariksha/lms/core/payment"
)

type credentialApi struct {
	svc      *payment.CredentialService
	validate *validator.Validate
}

func registerCredentialAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *payment.CredentialService, validate *validator.Validate) {
	api := credentialApi{svc: svc, validate: validate}

	cg := g.Group("/gateway/credentials", jwt, adminMiddleware())
	cg.POST("", api.create)
	cg.GET("", api.query)
	cg.PUT("/:id/activate", api.activate)
}

// Handlers

func (api *credentialApi) create(ctx echo.Context) error {
	var data payment.NewCredential
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewCredential")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	cred, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating credential")
	}
	return ctx.JSON(http.StatusCreated, cred)
}

func (api *credentialApi) query(ctx echo.Context) error {
	creds, err := api.svc.List(ctx.Request().Context())
	if err != nil {
		return errors.Wrap(err, "querying credentials")
	}
	return ctx.JSON(http.StatusOK, creds)
}

func (api *credentialApi) activate(ctx echo.Context) error {
	cred, err := api.svc.Activate(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "activating credential")
	}
	return ctx.JSON(http.StatusOK, cred)
}
