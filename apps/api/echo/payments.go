package echoapi

import (
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/pariksha/lms/core"
	"github.com/pariksha/lms/core/payment"
)

const (
	signatureHeader = "X-VERIFY"
	maxCallbackSize = 64 << 10
)

type paymentApi struct {
	svc      *payment.Service
	validate *validator.Validate
}

func registerPaymentAPI(g *echo.Group, jwt echo.MiddlewareFunc, svc *payment.Service, validate *validator.Validate) {
	api := paymentApi{svc: svc, validate: validate}

	pg := g.Group("/payments")

	// gateway endpoints
	pg.POST("/callback", api.callback)
	pg.GET("/redirect", api.redirect)

	// authed endpoints
	pg.POST("/order", api.createOrder, jwt)
	pg.GET("/history/:userId", api.history, jwt, selfOrAdminMiddleware("userId"))
}

// Handlers

func (api *paymentApi) createOrder(ctx echo.Context) error {
	var body orderRequest
	if err := ctx.Bind(&body); err != nil {
		return errors.Wrap(err, "binding to orderRequest")
	}
	data := body.normalize()
	if data.UserID == "" {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return err
		}
		data.UserID = claims.Subject
	}
	if _, err := canActFor(ctx, data.UserID); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	order, err := api.svc.CreateOrder(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating order")
	}
	return ctx.JSON(http.StatusCreated, order)
}

// callback always answers 200 once the payload is authentic, so that the gateway stops
// redelivering it; business anomalies are only logged.
func (api *paymentApi) callback(ctx echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(ctx.Request().Body, maxCallbackSize))
	if err != nil {
		return core.NewValidationError(errors.Wrap(err, "reading callback body"))
	}

	err = api.svc.HandleCallback(ctx.Request().Context(), payment.CallbackPayload{
		Body:      body,
		Signature: ctx.Request().Header.Get(signatureHeader),
	})
	if err != nil {
		return errors.Wrap(err, "handling callback")
	}
	return ctx.JSON(http.StatusOK, echo.Map{"success": true})
}

// redirect is where the gateway sends the user back after checkout. It polls the gateway
// when the outcome is not known yet. The caller is anonymous, so only the status is exposed.
func (api *paymentApi) redirect(ctx echo.Context) error {
	txnID := core.CleanString(ctx.QueryParam("txnId"))
	if txnID == "" {
		return core.NewValidationError(
			errors.New("missing transaction id"),
			core.FieldError{Field: "txnId", Error: "this field is required"},
		)
	}

	rec, err := api.svc.PollStatus(ctx.Request().Context(), txnID)
	if err != nil {
		return errors.Wrap(err, "polling payment status")
	}
	return ctx.JSON(http.StatusOK, rec.View())
}

func (api *paymentApi) history(ctx echo.Context) error {
	var ord Ordering
	ord.Bind(ctx)
	page, err := bindPage(ctx)
	if err != nil {
		return err
	}

	recs, err := api.svc.History(ctx.Request().Context(), payment.QueryFilter{
		UserID:   ctx.Param("userId"),
		Kind:     payment.Kind(ctx.QueryParam("kind")),
		TargetID: ctx.QueryParam("target_id"),
		Status:   payment.Status(ctx.QueryParam("status")),
		Ordering: ord.Orderings,
		Page:     page,
	})
	if err != nil {
		return errors.Wrap(err, "querying payments")
	}
	return ctx.JSON(http.StatusOK, recs)
}
