package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/vilmosmisota/sportapp/core/tenant"
	"github.com/vilmosmisota/sportapp/core/user"
)

type tenantApi struct {
	svc      *tenant.Service
	validate *validator.Validate
}

func registerTenantAPI(g *echo.Group, auth echo.MiddlewareFunc, s *Server) {
	api := tenantApi{svc: s.TenantSvc, validate: s.Validate}

	tg := g.Group("/tenant", auth)
	tg.GET("/settings", api.settings, roleMiddleware(user.StaffRoles...))
	tg.PUT("/settings", api.updateSettings, roleMiddleware(user.AdminRoles...))
}

func (api *tenantApi) settings(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	s, err := api.svc.GetSettings(ctx.Request().Context(), claims.TenantID)
	if err != nil {
		return errors.Wrap(err, "getting settings")
	}
	return ctx.JSON(http.StatusOK, s)
}

func (api *tenantApi) updateSettings(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data tenant.UpdateSettings
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateSettings")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	s, err := api.svc.UpdateSettings(ctx.Request().Context(), claims.TenantID, data)
	if err != nil {
		return errors.Wrap(err, "updating settings")
	}
	return ctx.JSON(http.StatusOK, s)
}
