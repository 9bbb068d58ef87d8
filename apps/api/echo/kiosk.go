package echoapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/vilmosmisota/sportapp/core"
	"github.com/vilmosmisota/sportapp/core/attendance"
	"github.com/vilmosmisota/sportapp/core/user"
	cachesvc "github.com/vilmosmisota/sportapp/services/cache"
)

type kioskApi struct {
	svc      *attendance.Service
	limiter  cachesvc.PINAttemptLimiter
	logger   core.Logger
	validate *validator.Validate
	now      func() time.Time
}

func registerKioskAPI(g *echo.Group, auth echo.MiddlewareFunc, s *Server) {
	api := kioskApi{svc: s.AttendanceSvc, limiter: s.Limiter, logger: s.Logger, validate: s.Validate, now: time.Now}

	kg := g.Group("/kiosk/sessions/:id", auth, roleMiddleware(user.StaffRoles...))
	kg.POST("/lookup", api.lookup)
	kg.POST("/checkin", api.checkin)
}

type PINRequest struct {
	PIN string `json:"pin" validate:"required"`
}

// attemptKey scopes failed attempts to one session and one device.
func attemptKey(ctx echo.Context) string {
	return ctx.Param("id") + ":" + ctx.RealIP()
}

// bind reads the PIN and refuses the request while the device is locked out.
func (api *kioskApi) bind(ctx echo.Context) (Claims, string, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return Claims{}, "", err
	}
	var data PINRequest
	if err = ctx.Bind(&data); err != nil {
		return Claims{}, "", errors.Wrap(err, "binding to PINRequest")
	}
	data.PIN = core.CleanString(data.PIN)
	if err = api.validate.Struct(&data); err != nil {
		return Claims{}, "", err
	}

	exceeded, retryAfter, err := api.limiter.Exceeded(ctx.Request().Context(), attemptKey(ctx))
	if err != nil {
		// the limiter is best effort
		api.logger.Warn("checking PIN attempts", err)
	}
	if exceeded {
		secs := int(retryAfter.Round(time.Second) / time.Second)
		if secs < 1 {
			secs = 1
		}
		ctx.Response().Header().Set("Retry-After", strconv.Itoa(secs))
		return Claims{}, "", errTooManyAttempts
	}
	return claims, data.PIN, nil
}

// track counts unknown PINs against the device and forgets them after a match.
func (api *kioskApi) track(ctx context.Context, key string, err error) {
	var lErr error
	switch {
	case err == nil:
		lErr = api.limiter.Reset(ctx, key)
	case attendance.IsRejected(err, attendance.ReasonNotFound):
		lErr = api.limiter.RecordFailure(ctx, key)
	default:
		return
	}
	if lErr != nil {
		api.logger.Warn("tracking PIN attempts", lErr)
	}
}

func (api *kioskApi) lookup(ctx echo.Context) error {
	claims, pin, err := api.bind(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	match, err := api.svc.Lookup(reqCtx, claims.TenantID, ctx.Param("id"), pin)
	api.track(reqCtx, attemptKey(ctx), err)
	if err != nil {
		return errors.Wrap(err, "looking up PIN")
	}
	return ctx.JSON(http.StatusOK, match)
}

func (api *kioskApi) checkin(ctx echo.Context) error {
	claims, pin, err := api.bind(ctx)
	if err != nil {
		return err
	}
	reqCtx := ctx.Request().Context()
	res, err := api.svc.CheckIn(reqCtx, claims.TenantID, ctx.Param("id"), pin, api.now())
	api.track(reqCtx, attemptKey(ctx), err)
	if err != nil {
		return errors.Wrap(err, "checking in")
	}

	code := http.StatusCreated
	if res.Outcome == attendance.OutcomeAlreadyCheckedIn {
		code = http.StatusOK
	}
	return ctx.JSON(code, res)
}
