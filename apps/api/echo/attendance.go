package echoapi

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/vilmosmisota/sportapp/core/attendance"
	"github.com/vilmosmisota/sportapp/core/member"
	"github.com/vilmosmisota/sportapp/core/user"
)

type attendanceApi struct {
	svc       *attendance.Service
	memberSvc *member.Service
	reports   attendance.ReportWriter
	validate  *validator.Validate
}

func registerAttendanceAPI(g *echo.Group, auth echo.MiddlewareFunc, s *Server) {
	api := attendanceApi{svc: s.AttendanceSvc, memberSvc: s.MemberSvc, reports: s.Reports, validate: s.Validate}
	staff := roleMiddleware(user.StaffRoles...)
	admin := roleMiddleware(user.AdminRoles...)

	tg := g.Group("/teams", auth)
	tg.GET("", api.queryTeams, staff)
	tg.POST("", api.createTeam, admin)

	sg := g.Group("/seasons", auth)
	sg.GET("", api.querySeasons, staff)
	sg.POST("", api.createSeason, admin)

	ssg := g.Group("/sessions", auth, staff)
	ssg.POST("", api.openSession)
	ssg.GET("", api.querySessions)
	ssg.GET("/:id", api.retrieveSession)
	ssg.GET("/:id/attendance", api.sessionAttendance)
	ssg.POST("/:id/close", api.closeSession)
	ssg.GET("/:id/export", api.exportSession)

	g.PATCH("/attendance/:id", api.updateRecord, auth, staff)
}

func (api *attendanceApi) queryTeams(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	teams, err := api.memberSvc.ListTeams(ctx.Request().Context(), claims.TenantID)
	if err != nil {
		return errors.Wrap(err, "querying teams")
	}
	return ctx.JSON(http.StatusOK, teams)
}

func (api *attendanceApi) createTeam(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data member.NewTeam
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewTeam")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	team, err := api.memberSvc.CreateTeam(ctx.Request().Context(), claims.TenantID, data)
	if err != nil {
		return errors.Wrap(err, "creating team")
	}
	return ctx.JSON(http.StatusCreated, team)
}

func (api *attendanceApi) querySeasons(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	seasons, err := api.svc.ListSeasons(ctx.Request().Context(), claims.TenantID)
	if err != nil {
		return errors.Wrap(err, "querying seasons")
	}
	return ctx.JSON(http.StatusOK, seasons)
}

func (api *attendanceApi) createSeason(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data attendance.NewSeason
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSeason")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	season, err := api.svc.CreateSeason(ctx.Request().Context(), claims.TenantID, data)
	if err != nil {
		return errors.Wrap(err, "creating season")
	}
	return ctx.JSON(http.StatusCreated, season)
}

func (api *attendanceApi) openSession(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data attendance.NewSession
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewSession")
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}
	sess, err := api.svc.OpenSession(ctx.Request().Context(), claims.TenantID, data)
	if err != nil {
		return errors.Wrap(err, "opening session")
	}
	return ctx.JSON(http.StatusCreated, sess)
}

func (api *attendanceApi) querySessions(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var filter attendance.SessionFilter
	if err = (&echo.DefaultBinder{}).BindQueryParams(ctx, &filter); err != nil {
		return err
	}
	sessions, err := api.svc.ListSessions(ctx.Request().Context(), claims.TenantID, filter)
	if err != nil {
		return errors.Wrap(err, "querying sessions")
	}
	return ctx.JSON(http.StatusOK, sessions)
}

func (api *attendanceApi) retrieveSession(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	sess, err := api.svc.GetSession(ctx.Request().Context(), claims.TenantID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *attendanceApi) sessionAttendance(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	rep, err := api.svc.Report(ctx.Request().Context(), claims.TenantID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting session attendance")
	}
	return ctx.JSON(http.StatusOK, rep)
}

func (api *attendanceApi) closeSession(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	summary, err := api.svc.CloseSession(ctx.Request().Context(), claims.TenantID, ctx.Param("id"), time.Now())
	if err != nil {
		return errors.Wrap(err, "closing session")
	}
	return ctx.JSON(http.StatusOK, summary)
}

func (api *attendanceApi) exportSession(ctx echo.Context) error {
	if api.reports == nil {
		return errHttpNotFound
	}
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	rep, err := api.svc.Report(ctx.Request().Context(), claims.TenantID, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting session report")
	}

	var buf bytes.Buffer
	if err = api.reports.WriteReport(&buf, rep); err != nil {
		return errors.Wrap(err, "writing report")
	}
	filename := attendance.ReportFilename(rep, api.reports)
	ctx.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	return ctx.Blob(http.StatusOK, api.reports.ContentType(), buf.Bytes())
}

func (api *attendanceApi) updateRecord(ctx echo.Context) error {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return err
	}
	var data attendance.UpdateRecord
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateRecord")
	}
	if err = api.validate.Struct(&data); err != nil {
		return err
	}
	rec, err := api.svc.UpdateRecordStatus(ctx.Request().Context(), claims.TenantID, ctx.Param("id"), data.Status)
	if err != nil {
		return errors.Wrap(err, "updating attendance record")
	}
	return ctx.JSON(http.StatusOK, rec)
}
