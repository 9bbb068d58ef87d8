package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/vilmosmisota/sportapp/core"
	"github.com/vilmosmisota/sportapp/core/attendance"
	"github.com/vilmosmisota/sportapp/core/member"
	"github.com/vilmosmisota/sportapp/core/tenant"
	"github.com/vilmosmisota/sportapp/core/user"
	storagesvc "github.com/vilmosmisota/sportapp/services/storage"
)

var (
	errUnauthorized         = echo.NewHTTPError(http.StatusUnauthorized, "user not authenticated")
	errInvalidToken         = echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
	errAuthenticationFailed = echo.NewHTTPError(http.StatusBadRequest, "authentication failed")
	errAccountDeactivated   = echo.NewHTTPError(http.StatusForbidden, "account deactivated")
	errHttpForbidden        = echo.NewHTTPError(http.StatusForbidden, "permission denied")
	errHttpNotFound         = echo.NewHTTPError(http.StatusNotFound, "not found")
	errTooManyAttempts      = echo.NewHTTPError(http.StatusTooManyRequests, "too many attempts, try again later")
)

// statusCodes maps domain sentinel errors to HTTP status codes.
var statusCodes = map[error]int{
	tenant.ErrNotFound:            http.StatusNotFound,
	user.ErrNotFound:              http.StatusNotFound,
	user.ErrMembershipNotFound:    http.StatusNotFound,
	member.ErrNotFound:            http.StatusNotFound,
	member.ErrTeamNotFound:        http.StatusNotFound,
	attendance.ErrSessionNotFound: http.StatusNotFound,
	attendance.ErrSeasonNotFound:  http.StatusNotFound,
	attendance.ErrRecordNotFound:  http.StatusNotFound,
	attendance.ErrSessionClosed:   http.StatusConflict,
	member.ErrTeamExists:          http.StatusConflict,
	tenant.ErrSlugExists:          http.StatusConflict,
	storagesvc.ErrFileTooLarge:    http.StatusRequestEntityTooLarge,
	storagesvc.ErrUnsupportedType: http.StatusUnsupportedMediaType,
	storagesvc.ErrEmptyFile:       http.StatusBadRequest,
}

var rejectionCodes = map[attendance.Reason]int{
	attendance.ReasonNotFound:         http.StatusNotFound,
	attendance.ReasonNotEligible:      http.StatusForbidden,
	attendance.ReasonAlreadyCheckedIn: http.StatusOK,
}

// newAppHTTPErrorHandler returns a custom echo.HTTPErrorHandler that knows how to handle our errors.
// signalShutdown is called in order to gracefully shutdown the Server whenever a core.shutdown error is caught.
func newAppHTTPErrorHandler(logger core.Logger, translator ut.Translator, signalShutdown func()) echo.HTTPErrorHandler {
	return func(err error, ctx echo.Context) {
		var code int
		var message interface{}

		cause := errors.Cause(err)
		switch origErr := cause.(type) {
		case *echo.HTTPError:
			if origErr.Internal != nil {
				if herr, ok := origErr.Internal.(*echo.HTTPError); ok {
					origErr = herr
				}
			}
			code = origErr.Code
			message = origErr.Message
		case validator.ValidationErrors:
			fldErrs := make(map[string]string, len(origErr))
			for _, vErr := range origErr {
				fldErrs[vErr.Field()] = vErr.Translate(translator)
			}
			code = http.StatusBadRequest
			message = fldErrs
		case *core.ValidationError:
			if origErr.Fields != nil {
				fldErrs := make(map[string]string, len(origErr.Fields))
				for _, fErr := range origErr.Fields {
					fldErrs[fErr.Field] = fErr.Error
				}
				message = fldErrs
			} else {
				message = origErr.Error()
			}
			code = http.StatusBadRequest
		case *attendance.Rejection:
			code = rejectionCodes[origErr.Reason]
			message = echo.Map{"error": origErr.Error(), "reason": origErr.Reason.String()}
		default:
			if c, ok := statusCodes[cause]; ok {
				code = c
				message = cause.Error()
				break
			}

			// any other error is a server error
			code = http.StatusInternalServerError
			msg := http.StatusText(http.StatusInternalServerError)
			message = msg

			var usr user.User
			if claims, cErr := getContextClaims(ctx); cErr == nil {
				usr.ID = claims.Subject
				usr.Name = claims.Name
				usr.Email = claims.Email
			}
			logger.Error(msg, errors.Wrap(err, msg), usr)

			// shutting down...
			if core.IsShutdown(err) {
				signalShutdown()
			}
		}

		if ctx.Echo().Debug {
			message = err.Error()
		}
		if m, ok := message.(string); ok {
			message = echo.Map{"error": m}
		}

		// Send response
		if !ctx.Response().Committed {
			if ctx.Request().Method == http.MethodHead { // Issue #608
				err = ctx.NoContent(code)
			} else {
				err = ctx.JSON(code, message)
			}
			if err != nil {
				ctx.Echo().Logger.Error(err)
			}
		}
	}
}
