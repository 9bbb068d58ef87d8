package attendance

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/vilmosmisota/sportapp/core"
	"github.com/vilmosmisota/sportapp/core/member"
	"github.com/vilmosmisota/sportapp/core/tenant"
)

const (
	EventCheckedIn     = "attendance.checked_in"
	EventSessionClosed = "attendance.session_closed"
)

var (
	// errors
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session is closed")
	ErrSeasonNotFound  = errors.New("season not found")
	ErrRecordNotFound  = errors.New("attendance record not found")
	// ErrDuplicateRecord is returned by Repository.CreateRecord when the (session, member) record already exists.
	ErrDuplicateRecord = errors.New("attendance record already exists")
)

type (
	Repository interface {
		CreateSeason(ctx context.Context, s Season) (Season, error)
		GetSeason(ctx context.Context, tenantID, id string) (Season, error)
		QuerySeasons(ctx context.Context, tenantID string) ([]Season, error)

		CreateSession(ctx context.Context, s Session) (Session, error)
		GetSession(ctx context.Context, tenantID, id string) (Session, error)
		QuerySessions(ctx context.Context, tenantID string, filter SessionFilter) ([]Session, error)
		// QueryActiveSessions returns the active sessions of every tenant.
		QueryActiveSessions(ctx context.Context) ([]Session, error)
		// CloseSession deactivates an active session; ErrSessionClosed if it is not active anymore.
		CloseSession(ctx context.Context, tenantID, id string, closedAt time.Time) (Session, error)

		// CreateRecord returns ErrDuplicateRecord on a (session, member) unique violation.
		CreateRecord(ctx context.Context, r Record) (Record, error)
		GetRecord(ctx context.Context, tenantID, id string) (Record, error)
		GetSessionRecord(ctx context.Context, sessionID, memberID string) (Record, error)
		QuerySessionRecords(ctx context.Context, tenantID, sessionID string) ([]Record, error)
		UpdateRecordStatus(ctx context.Context, tenantID, id string, status Status, updatedAt time.Time) (Record, error)
	}

	// MemberDirectory gives access to members and teams.
	MemberDirectory interface {
		FindByPIN(ctx context.Context, tenantID, pin string) ([]member.Member, error)
		Get(ctx context.Context, tenantID, id string) (member.Member, error)
		GetTeam(ctx context.Context, tenantID, id string) (member.Team, error)
		ListTeamMembers(ctx context.Context, tenantID, teamID string) ([]member.Member, error)
	}

	SettingsProvider interface {
		GetSettings(ctx context.Context, tenantID string) (tenant.Settings, error)
	}

	StaffDirectory interface {
		StaffEmails(ctx context.Context, tenantID string) ([]mail.Address, error)
	}

	// ReportWriter renders a session Report, eg: as a spreadsheet.
	ReportWriter interface {
		ContentType() string
		Extension() string
		WriteReport(w io.Writer, rep Report) error
	}

	Deps struct {
		Tx       core.Transactor
		Repo     Repository
		Members  MemberDirectory
		Settings SettingsProvider
		Staff    StaffDirectory // optional: session close reports are not mailed without it
		Reports  ReportWriter   // optional
		Events   core.EventPublisher
		MailSvc  core.EmailService
		Logger   core.Logger
	}

	Service struct {
		tx       core.Transactor
		repo     Repository
		members  MemberDirectory
		settings SettingsProvider
		staff    StaffDirectory
		reports  ReportWriter
		events   core.EventPublisher
		mailSvc  core.EmailService
		logger   core.Logger
	}
)

func NewService(deps Deps) *Service {
	return &Service{
		tx:       deps.Tx,
		repo:     deps.Repo,
		members:  deps.Members,
		settings: deps.Settings,
		staff:    deps.Staff,
		reports:  deps.Reports,
		events:   deps.Events,
		mailSvc:  deps.MailSvc,
		logger:   deps.Logger,
	}
}

// Seasons

func (svc *Service) CreateSeason(ctx context.Context, tenantID string, ns NewSeason) (Season, error) {
	s, err := svc.repo.CreateSeason(ctx, Season{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Name:      ns.Name,
		StartsOn:  ns.StartsOn,
		EndsOn:    ns.EndsOn,
		Breaks:    ns.Breaks,
		CreatedAt: time.Now().UTC(),
	})
	return s, errors.Wrap(err, "creating season")
}

func (svc *Service) ListSeasons(ctx context.Context, tenantID string) ([]Season, error) {
	return svc.repo.QuerySeasons(ctx, tenantID)
}

// Sessions

// OpenSession schedules an active session for a team, on a training day of the season.
func (svc *Service) OpenSession(ctx context.Context, tenantID string, ns NewSession) (Session, error) {
	if _, err := svc.members.GetTeam(ctx, tenantID, ns.TeamID); err != nil {
		if errors.Cause(err) == member.ErrTeamNotFound {
			return Session{}, core.NewValidationError(err, core.FieldError{Field: "team_id", Error: err.Error()})
		}
		return Session{}, errors.Wrap(err, "getting team")
	}
	season, err := svc.repo.GetSeason(ctx, tenantID, ns.SeasonID)
	if err != nil {
		if errors.Cause(err) == ErrSeasonNotFound {
			return Session{}, core.NewValidationError(err, core.FieldError{Field: "season_id", Error: err.Error()})
		}
		return Session{}, errors.Wrap(err, "getting season")
	}
	if !season.IsTrainingDay(ns.Date) {
		return Session{}, core.NewValidationError(nil, core.FieldError{Field: "date", Error: "date is outside the season or inside one of its breaks"})
	}

	s, err := svc.repo.CreateSession(ctx, Session{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		TeamID:    ns.TeamID,
		SeasonID:  ns.SeasonID,
		Date:      ns.Date,
		StartTime: ns.StartTime,
		EndTime:   ns.EndTime,
		IsActive:  true,
		CreatedAt: time.Now().UTC(),
	})
	return s, errors.Wrap(err, "creating session")
}

func (svc *Service) GetSession(ctx context.Context, tenantID, id string) (Session, error) {
	return svc.repo.GetSession(ctx, tenantID, id)
}

func (svc *Service) ListSessions(ctx context.Context, tenantID string, filter SessionFilter) ([]Session, error) {
	return svc.repo.QuerySessions(ctx, tenantID, filter)
}

func (svc *Service) activeSession(ctx context.Context, tenantID, sessionID string) (Session, error) {
	sess, err := svc.repo.GetSession(ctx, tenantID, sessionID)
	if err != nil {
		return Session{}, err
	}
	if !sess.IsActive {
		return Session{}, ErrSessionClosed
	}
	return sess, nil
}

// Check-in

// lookup finds the member of the tenant using pin.
func (svc *Service) lookup(ctx context.Context, tenantID, pin string) (member.Member, error) {
	if !core.IsValidPIN(pin) {
		return member.Member{}, &Rejection{Reason: ReasonNotFound}
	}
	candidates, err := svc.members.FindByPIN(ctx, tenantID, pin)
	if err != nil {
		return member.Member{}, errors.Wrap(err, "finding members by PIN")
	}
	m, err := LookupByPIN(candidates, pin)
	if err == ErrAmbiguousPIN {
		svc.logger.Error(fmt.Sprintf("tenant %s: %v", tenantID, err), errors.WithStack(err))
	}
	return m, err
}

func (svc *Service) existingRecord(ctx context.Context, sessionID, memberID string) (*Record, error) {
	rec, err := svc.repo.GetSessionRecord(ctx, sessionID, memberID)
	switch errors.Cause(err) {
	case nil:
		return &rec, nil
	case ErrRecordNotFound:
		return nil, nil
	default:
		return nil, errors.Wrap(err, "getting session record")
	}
}

// Lookup resolves pin for the confirmation step of the kiosk. Nothing is written.
func (svc *Service) Lookup(ctx context.Context, tenantID, sessionID, pin string) (Match, error) {
	sess, err := svc.activeSession(ctx, tenantID, sessionID)
	if err != nil {
		return Match{}, err
	}
	m, err := svc.lookup(ctx, tenantID, pin)
	if err != nil {
		return Match{}, err
	}
	existing, err := svc.existingRecord(ctx, sess.ID, m.ID)
	if err != nil {
		return Match{}, err
	}
	if err = CheckEligibility(sess, m, existing); err != nil {
		if IsRejected(err, ReasonAlreadyCheckedIn) {
			return Match{Member: m, AlreadyCheckedIn: true}, nil
		}
		return Match{}, err
	}
	return Match{Member: m}, nil
}

// CheckIn records the attendance of the member using pin to the session, at the given instant.
// Checking in twice is not an error: the second call reports the existing record.
func (svc *Service) CheckIn(ctx context.Context, tenantID, sessionID, pin string, at time.Time) (Result, error) {
	sess, err := svc.activeSession(ctx, tenantID, sessionID)
	if err != nil {
		return Result{}, err
	}
	m, err := svc.lookup(ctx, tenantID, pin)
	if err != nil {
		return Result{}, err
	}

	existing, err := svc.existingRecord(ctx, sess.ID, m.ID)
	if err != nil {
		return Result{}, err
	}
	if err = CheckEligibility(sess, m, existing); err != nil {
		if IsRejected(err, ReasonAlreadyCheckedIn) {
			return alreadyCheckedIn(m, *existing), nil
		}
		return Result{}, err
	}

	settings, err := svc.settings.GetSettings(ctx, tenantID)
	if err != nil {
		return Result{}, errors.Wrap(err, "getting tenant settings")
	}
	local := at.In(settings.Location())
	status, err := DeriveStatus(sess.StartTime, local.Format("15:04:05"), settings.LateThresholdMinutes)
	if err != nil {
		return Result{}, errors.Wrap(err, "deriving status")
	}

	now := time.Now().UTC()
	rec, err := svc.repo.CreateRecord(ctx, Record{
		ID:          uuid.NewString(),
		TenantID:    tenantID,
		SessionID:   sess.ID,
		MemberID:    m.ID,
		Status:      status,
		CheckedInAt: null.TimeFrom(at.UTC()),
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		if errors.Cause(err) != ErrDuplicateRecord {
			return Result{}, errors.Wrap(err, "creating attendance record")
		}
		// a concurrent check-in won the race
		winner, err := svc.repo.GetSessionRecord(ctx, sess.ID, m.ID)
		if err != nil {
			return Result{}, errors.Wrap(err, "getting concurrent record")
		}
		return alreadyCheckedIn(m, winner), nil
	}

	svc.publish(ctx, core.Event{
		Type:       EventCheckedIn,
		TenantID:   tenantID,
		OccurredAt: now,
		Payload:    rec,
	})
	return Result{
		Outcome: OutcomeCheckedIn,
		Message: fmt.Sprintf("Welcome %s! You are checked in as %s.", m.FirstName, rec.Status),
		Member:  m,
		Record:  rec,
	}, nil
}

func alreadyCheckedIn(m member.Member, rec Record) Result {
	return Result{
		Outcome: OutcomeAlreadyCheckedIn,
		Message: fmt.Sprintf("%s is already checked in.", m.FirstName),
		Member:  m,
		Record:  rec,
	}
}

func (svc *Service) publish(ctx context.Context, evt core.Event) {
	if svc.events == nil {
		return
	}
	if err := svc.events.Publish(ctx, evt); err != nil {
		svc.logger.Error(fmt.Sprintf("publishing %s: %v", evt.Type, err), err)
	}
}

// Records

func (svc *Service) SessionRecords(ctx context.Context, tenantID, sessionID string) ([]Record, error) {
	if _, err := svc.repo.GetSession(ctx, tenantID, sessionID); err != nil {
		return nil, err
	}
	return svc.repo.QuerySessionRecords(ctx, tenantID, sessionID)
}

// UpdateRecordStatus is the explicit staff correction of a record.
func (svc *Service) UpdateRecordStatus(ctx context.Context, tenantID, recordID string, status Status) (Record, error) {
	if !status.IsValid() {
		return Record{}, core.NewValidationError(nil, core.FieldError{Field: "status", Error: "invalid status"})
	}
	return svc.repo.UpdateRecordStatus(ctx, tenantID, recordID, status, time.Now().UTC())
}

// Report lists every member of the session's team with their record, if any.
func (svc *Service) Report(ctx context.Context, tenantID, sessionID string) (Report, error) {
	sess, err := svc.repo.GetSession(ctx, tenantID, sessionID)
	if err != nil {
		return Report{}, err
	}
	return svc.report(ctx, sess)
}

func (svc *Service) report(ctx context.Context, sess Session) (Report, error) {
	team, err := svc.members.GetTeam(ctx, sess.TenantID, sess.TeamID)
	if err != nil {
		return Report{}, errors.Wrap(err, "getting team")
	}
	members, err := svc.members.ListTeamMembers(ctx, sess.TenantID, sess.TeamID)
	if err != nil {
		return Report{}, errors.Wrap(err, "listing team members")
	}
	records, err := svc.repo.QuerySessionRecords(ctx, sess.TenantID, sess.ID)
	if err != nil {
		return Report{}, errors.Wrap(err, "querying session records")
	}

	byMember := make(map[string]Record, len(records))
	for _, r := range records {
		byMember[r.MemberID] = r
	}
	rows := make([]ReportRow, 0, len(members))
	for _, m := range members {
		row := ReportRow{Member: m}
		if r, ok := byMember[m.ID]; ok {
			r := r
			row.Record = &r
		}
		rows = append(rows, row)
	}
	return Report{Session: sess, Team: team, Rows: rows}, nil
}

// Closing

// CloseSession closes an active session and marks every team member without a record as absent.
// Both happen in one transaction: a failure leaves the session active.
func (svc *Service) CloseSession(ctx context.Context, tenantID, sessionID string, at time.Time) (CloseSummary, error) {
	var summary CloseSummary
	now := time.Now().UTC()
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		summary, err = svc.closeSession(ctx, tenantID, sessionID, at.UTC(), now)
		return err
	})
	if err != nil {
		return CloseSummary{}, err
	}

	svc.publish(ctx, core.Event{
		Type:       EventSessionClosed,
		TenantID:   tenantID,
		OccurredAt: now,
		Payload:    summary,
	})
	svc.mailCloseReport(ctx, summary.Session, summary)
	return summary, nil
}

func (svc *Service) closeSession(ctx context.Context, tenantID, sessionID string, at, now time.Time) (CloseSummary, error) {
	sess, err := svc.repo.CloseSession(ctx, tenantID, sessionID, at)
	if err != nil {
		return CloseSummary{}, err
	}

	members, err := svc.members.ListTeamMembers(ctx, tenantID, sess.TeamID)
	if err != nil {
		return CloseSummary{}, errors.Wrap(err, "listing team members")
	}
	records, err := svc.repo.QuerySessionRecords(ctx, tenantID, sess.ID)
	if err != nil {
		return CloseSummary{}, errors.Wrap(err, "querying session records")
	}

	summary := CloseSummary{Session: sess}
	recorded := make(map[string]bool, len(records))
	for _, r := range records {
		recorded[r.MemberID] = true
		switch r.Status {
		case StatusPresent:
			summary.Present++
		case StatusLate:
			summary.Late++
		}
	}

	for _, m := range members {
		if recorded[m.ID] {
			continue
		}
		_, err = svc.repo.CreateRecord(ctx, Record{
			ID:        uuid.NewString(),
			TenantID:  tenantID,
			SessionID: sess.ID,
			MemberID:  m.ID,
			Status:    StatusAbsent,
			CreatedAt: now,
			UpdatedAt: now,
		})
		switch errors.Cause(err) {
		case nil:
			summary.MarkedAbsent++
		case ErrDuplicateRecord: // checked in while closing
		default:
			return CloseSummary{}, errors.Wrap(err, "marking member absent")
		}
	}
	return summary, nil
}

// CloseOverdueSessions closes every active session whose end time has passed. Returns the number closed.
func (svc *Service) CloseOverdueSessions(ctx context.Context, now time.Time) (int, error) {
	sessions, err := svc.repo.QueryActiveSessions(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "querying active sessions")
	}

	var closed int
	for _, sess := range sessions {
		settings, err := svc.settings.GetSettings(ctx, sess.TenantID)
		if err != nil {
			svc.logger.Error(fmt.Sprintf("auto-closing session %s: %v", sess.ID, err), err)
			continue
		}
		endsAt, err := sess.EndsAt(settings.Location())
		if err != nil {
			svc.logger.Error(fmt.Sprintf("auto-closing session %s: %v", sess.ID, err), err)
			continue
		}
		if now.Before(endsAt) {
			continue
		}
		if _, err = svc.CloseSession(ctx, sess.TenantID, sess.ID, now); err != nil {
			if errors.Cause(err) != ErrSessionClosed {
				svc.logger.Error(fmt.Sprintf("auto-closing session %s: %v", sess.ID, err), err)
			}
			continue
		}
		closed++
	}
	return closed, nil
}

func (svc *Service) mailCloseReport(ctx context.Context, sess Session, summary CloseSummary) {
	if svc.staff == nil || svc.mailSvc == nil {
		return
	}
	to, err := svc.staff.StaffEmails(ctx, sess.TenantID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("getting staff emails: %v", err), err)
		return
	}
	if len(to) == 0 {
		return
	}

	rep, err := svc.report(ctx, sess)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("building close report: %v", err), err)
		return
	}
	msg := &core.EmailMessage{
		To:           to,
		Subject:      fmt.Sprintf("Attendance %s %s (%s)", sess.Date, sess.StartTime, rep.Team.Name),
		TemplateName: "session_closed",
		TemplateData: map[string]interface{}{
			"Date":      sess.Date,
			"StartTime": sess.StartTime,
			"EndTime":   sess.EndTime,
			"TeamName":  rep.Team.Name,
			"Present":   summary.Present,
			"Late":      summary.Late,
			"Absent":    summary.MarkedAbsent,
		},
	}
	if svc.reports != nil {
		var buf bytes.Buffer
		if err = svc.reports.WriteReport(&buf, rep); err != nil {
			svc.logger.Error(fmt.Sprintf("writing close report: %v", err), err)
		} else if err = msg.Attach(&buf, ReportFilename(rep, svc.reports), svc.reports.ContentType()); err != nil {
			svc.logger.Error(fmt.Sprintf("attaching close report: %v", err), err)
		}
	}
	svc.mailSvc.SendMessages(msg)
}

// ReportFilename names the rendered report file, eg: attendance-u12-2024-05-01-1800.xlsx
func ReportFilename(rep Report, w ReportWriter) string {
	return fmt.Sprintf("attendance-%s-%s-%s%s", core.Slugify(rep.Team.Name), rep.Session.Date,
		rep.Session.StartTime[:2]+rep.Session.StartTime[3:], w.Extension())
}
