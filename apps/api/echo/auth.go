package echoapi

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/vilmosmisota/sportapp/core"
	"github.com/vilmosmisota/sportapp/core/tenant"
	"github.com/vilmosmisota/sportapp/core/user"
)

const (
	contextClaimsKey = "claims"
	tokenAudience    = "sportapp"
)

// Claims represents the authorization claims transmitted via a JWT. A token is scoped to one tenant.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tid"`
	Role     string `json:"role"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
}

func (c Claims) Actor() user.Actor {
	return user.Actor{UserID: c.Subject, Role: c.Role}
}

func NewClaims(conf *core.Config, tenantID string, tu user.TenantUser) *Claims {
	now := time.Now()
	return &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    conf.AppName,
			Subject:   tu.ID,
			Audience:  jwt.ClaimStrings{tokenAudience},
			ExpiresAt: jwt.NewNumericDate(now.Add(conf.Server.JWTExpirationDelta)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		TenantID: tenantID,
		Role:     tu.Role,
		Name:     tu.Name,
		Email:    tu.Email,
	}
}

// GenerateToken generates a signed JWT token string representing the user Claims.
func GenerateToken(conf *core.Config, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(conf.SecretKey))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func parseToken(conf *core.Config, raw string) (*Claims, error) {
	claims := new(Claims)
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(conf.SecretKey), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(tokenAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// authMiddleware requires a valid bearer token and stores its Claims in the context.
func authMiddleware(conf *core.Config) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			header := ctx.Request().Header.Get(echo.HeaderAuthorization)
			scheme, raw, found := strings.Cut(header, " ")
			if !found || !strings.EqualFold(scheme, "Bearer") || raw == "" {
				return errUnauthorized
			}
			claims, err := parseToken(conf, strings.TrimSpace(raw))
			if err != nil {
				return errInvalidToken
			}
			ctx.Set(contextClaimsKey, *claims)
			return next(ctx)
		}
	}
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if claims, ok := ctx.Get(contextClaimsKey).(Claims); ok {
		return claims, nil
	}
	return Claims{}, errUnauthorized
}

// roleMiddleware only lets users with one of roles through. Must run after authMiddleware.
func roleMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if user.HasAnyRole(claims.Role, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

type authApi struct {
	conf      *core.Config
	tenantSvc *tenant.Service
	userSvc   *user.Service
	validate  *validator.Validate
}

func registerAuthAPI(g *echo.Group, s *Server) {
	api := authApi{conf: s.Conf, tenantSvc: s.TenantSvc, userSvc: s.UserSvc, validate: s.Validate}
	g.POST("/auth/login", api.login)
}

type (
	LoginRequest struct {
		Tenant   string `json:"tenant" validate:"required"`
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string          `json:"token"`
		User  user.TenantUser `json:"user"`
	}
)

func (lr *LoginRequest) Clean() {
	lr.Tenant = core.CleanString(lr.Tenant, true /* lower */)
	lr.Email = core.CleanString(lr.Email, true /* lower */)
}

func (api *authApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	data.Clean()
	if err := api.validate.Struct(&data); err != nil {
		return err
	}

	tnt, err := api.tenantSvc.GetBySlug(ctx.Request().Context(), data.Tenant)
	if err != nil {
		if errors.Cause(err) == tenant.ErrNotFound {
			return errAuthenticationFailed
		}
		return errors.Wrap(err, "getting tenant")
	}

	tu, err := api.userSvc.Authenticate(ctx.Request().Context(), tnt.ID, data.Email, data.Password)
	switch errors.Cause(err) {
	case nil:
	case user.ErrInvalidCredentials:
		return errAuthenticationFailed
	case user.ErrAccountDeactivated:
		return errAccountDeactivated
	default:
		return errors.Wrap(err, "authenticating")
	}

	token, err := GenerateToken(api.conf, NewClaims(api.conf, tnt.ID, tu))
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	return ctx.JSON(http.StatusOK, LoginResponse{Token: token, User: tu})
}
