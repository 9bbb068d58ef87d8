package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/vilmosmisota/sportapp/core/user"
	storagesvc "github.com/vilmosmisota/sportapp/services/storage"
)

type uploadApi struct {
	uploader *storagesvc.Uploader
}

func registerUploadAPI(g *echo.Group, auth echo.MiddlewareFunc, s *Server) {
	if s.Uploader == nil {
		return
	}
	api := uploadApi{uploader: s.Uploader}
	g.POST("/upload", api.upload, auth, roleMiddleware(user.StaffRoles...))
}

func (api *uploadApi) upload(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	fh, err := ctx.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	up, err := api.uploader.Upload(ctx.Request().Context(), claims.TenantID, fh)
	if err != nil {
		return errors.Wrap(err, "uploading file")
	}
	return ctx.JSON(http.StatusCreated, up)
}
