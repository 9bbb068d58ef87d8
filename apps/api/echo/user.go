package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/vilmosmisota/sportapp/core"
	"github.com/vilmosmisota/sportapp/core/user"
)

type userApi struct {
	svc      *user.Service
	validate *validator.Validate
}

func registerUserAPI(g *echo.Group, auth echo.MiddlewareFunc, s *Server) {
	api := userApi{svc: s.UserSvc, validate: s.Validate}

	ug := g.Group("/users", auth)
	ug.GET("", api.query, roleMiddleware(user.AdminRoles...))
	ug.POST("", api.create, roleMiddleware(user.AdminRoles...))
	ug.PUT("", api.update) // admins, or users updating themselves
	ug.DELETE("", api.destroy, roleMiddleware(user.AdminRoles...))
	ug.GET("/me", api.me)
	ug.GET("/roles", api.queryRoles, roleMiddleware(user.AdminRoles...))
}

type (
	RemoveUserRequest struct {
		ID string `json:"id" query:"id" validate:"required,uuid"`
	}

	RemoveUserResponse struct {
		AccountDeleted bool `json:"account_deleted"`
	}
)

func (api *userApi) query(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var filter user.QueryFilter
	if err = (&echo.DefaultBinder{}).BindQueryParams(ctx, &filter); err != nil {
		return ctx.JSON(http.StatusOK, []user.TenantUser{})
	}
	filter.Clean()

	users, err := api.svc.Query(ctx.Request().Context(), claims.TenantID, filter)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) create(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data user.NewUser
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	tu, err := api.svc.Create(ctx.Request().Context(), claims.TenantID, claims.Actor(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}
	return ctx.JSON(http.StatusCreated, tu)
}

func (api *userApi) update(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data user.UpdateUser
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}
	data.ID = core.CleanString(data.ID)

	isAdmin := user.HasAnyRole(claims.Role, user.AdminRoles)
	if !isAdmin && data.ID != claims.Subject {
		return errHttpNotFound
	}
	if !isAdmin && (data.IsActive != nil || data.Role != "") {
		// `IsActive` and `Role` can only be changed by admins
		return errHttpForbidden
	}

	orig, err := api.svc.Get(ctx.Request().Context(), claims.TenantID, data.ID)
	if err != nil {
		if errors.Cause(err) == user.ErrNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "getting user")
	}
	if err = data.Validate(orig, api.validate); err != nil {
		return err
	}

	tu, err := api.svc.Update(ctx.Request().Context(), claims.TenantID, claims.Actor(), orig, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}
	return ctx.JSON(http.StatusOK, tu)
}

func (api *userApi) destroy(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data RemoveUserRequest
	if err = (&echo.DefaultBinder{}).BindQueryParams(ctx, &data); err != nil {
		return errors.Wrap(err, "binding to RemoveUserRequest")
	}
	if err = api.validate.Struct(&data); err != nil {
		return err
	}

	deleted, err := api.svc.Remove(ctx.Request().Context(), claims.TenantID, claims.Actor(), data.ID)
	if err != nil {
		return errors.Wrap(err, "removing user")
	}
	return ctx.JSON(http.StatusOK, RemoveUserResponse{AccountDeleted: deleted})
}

func (api *userApi) me(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	tu, err := api.svc.Get(ctx.Request().Context(), claims.TenantID, claims.Subject)
	if err != nil {
		return errors.Wrap(err, "getting context user")
	}
	return ctx.JSON(http.StatusOK, tu)
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}
