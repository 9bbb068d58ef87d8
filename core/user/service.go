package user

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/vilmosmisota/sportapp/core"
	"github.com/vilmosmisota/sportapp/core/member"
	"github.com/vilmosmisota/sportapp/core/tenant"
)

var (
	// errors
	ErrNotFound            = errors.New("user not found")
	ErrEmailExists         = errors.New("a user with this email already exists")
	ErrMembershipNotFound  = errors.New("user is not a member of this tenant")
	ErrMembershipExists    = errors.New("user is already a member of this tenant")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountDeactivated  = errors.New("account deactivated")
	ErrNoMemberProfile     = errors.New("user has no member profile")
	errNoPermsToSetRoles   = errors.New("not enough rights to set this role")
	errCannotRemoveSelf    = errors.New("users cannot remove themselves")
	errCannotRemoveHigher  = errors.New("not enough rights to remove this user")
	errCannotModifyHigher  = errors.New("not enough rights to modify this user")
	errInactiveNotAllowed  = errors.New("users cannot deactivate themselves")
	errPasswordNotModified = errors.New("password can only be changed by its owner")
	errSharedAccount       = errors.New("the account belongs to other clubs too, only its owner can rename it")
)

type (
	Repository interface {
		CreateUser(ctx context.Context, usr User) (User, error)
		GetUser(ctx context.Context, id string) (User, error)
		GetUserByEmail(ctx context.Context, email string) (User, error)
		UpdateUser(ctx context.Context, usr User) (User, error)
		DeleteUser(ctx context.Context, id string) error
		SetLastLogin(ctx context.Context, id string, at time.Time) error

		// AddMembership returns ErrMembershipExists if the user already belongs to the tenant.
		AddMembership(ctx context.Context, m Membership) error
		GetMembership(ctx context.Context, tenantID, userID string) (Membership, error)
		UpdateMembership(ctx context.Context, m Membership) error
		DeleteMembership(ctx context.Context, tenantID, userID string) error
		CountMemberships(ctx context.Context, userID string) (int, error)
		QueryTenantUsers(ctx context.Context, tenantID string, filter QueryFilter) ([]TenantUser, error)
	}

	Service struct {
		tx      core.Transactor
		repo    Repository
		members *member.Service
		tenants *tenant.Service
		mailSvc core.EmailService
		logger  core.Logger
	}

	// Actor is the authenticated user performing an operation.
	Actor struct {
		UserID string
		Role   string
	}
)

func NewService(
	tx core.Transactor,
	repo Repository,
	members *member.Service,
	tenants *tenant.Service,
	mailSvc core.EmailService,
	logger core.Logger,
) *Service {
	return &Service{
		tx:      tx,
		repo:    repo,
		members: members,
		tenants: tenants,
		mailSvc: mailSvc,
		logger:  logger,
	}
}

// Create adds a User to the tenant, creating the account and the optional member profile.
// Everything is rolled back if any step fails, so no orphan account is left behind.
func (svc *Service) Create(ctx context.Context, tenantID string, actor Actor, nu NewUser) (TenantUser, error) {
	if RolePriority(nu.Role) > RolePriority(actor.Role) {
		return TenantUser{}, core.NewValidationError(nil, core.FieldError{Field: "role", Error: errNoPermsToSetRoles.Error()})
	}

	var tu TenantUser
	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		usr, err := svc.repo.GetUserByEmail(ctx, nu.Email)
		switch errors.Cause(err) {
		case nil:
			if _, err = svc.repo.GetMembership(ctx, tenantID, usr.ID); err == nil {
				return core.NewValidationError(ErrMembershipExists, core.FieldError{Field: "email", Error: ErrMembershipExists.Error()})
			} else if errors.Cause(err) != ErrMembershipNotFound {
				return errors.Wrap(err, "getting membership")
			}
		case ErrNotFound:
			now := time.Now().UTC()
			usr = User{
				ID:        uuid.NewString(),
				Name:      nu.Name,
				Email:     nu.Email,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err = usr.SetPassword(nu.Password); err != nil {
				return errors.Wrap(err, "setting password")
			}
			if usr, err = svc.repo.CreateUser(ctx, usr); err != nil {
				if errors.Cause(err) == ErrEmailExists {
					return core.NewValidationError(err, core.FieldError{Field: "email", Error: err.Error()})
				}
				return errors.Wrap(err, "creating user")
			}
		default:
			return errors.Wrap(err, "getting user by email")
		}

		tu = TenantUser{User: usr, Role: nu.Role, IsActive: true}
		if nu.Member != nil {
			m, err := svc.members.Create(ctx, tenantID, *nu.Member)
			if err != nil {
				return err
			}
			tu.Member = &m
			tu.MemberID = null.StringFrom(m.ID)
		}

		ms := Membership{TenantID: tenantID, UserID: usr.ID, Role: nu.Role, MemberID: tu.MemberID, IsActive: true}
		if err = svc.repo.AddMembership(ctx, ms); err != nil {
			return errors.Wrap(err, "adding membership")
		}
		return nil
	})
	if err != nil {
		return TenantUser{}, err
	}

	svc.sendWelcomeMail(ctx, tenantID, tu)
	return tu, nil
}

func (svc *Service) sendWelcomeMail(ctx context.Context, tenantID string, tu TenantUser) {
	tnt, err := svc.tenants.Get(ctx, tenantID)
	if err != nil {
		svc.logger.Error(fmt.Sprintf("sending welcome mail: %v", err), err)
		return
	}
	svc.mailSvc.SendMessages(&core.EmailMessage{
		To:           []mail.Address{{Name: tu.Name, Address: tu.Email}},
		Subject:      "Welcome to " + tnt.Name,
		TemplateName: "welcome",
		TemplateData: map[string]string{
			"Name":       tu.Name,
			"Email":      tu.Email,
			"Role":       tu.Role,
			"TenantName": tnt.Name,
		},
	})
}

// Get returns the tenant User with its member profile, if any.
func (svc *Service) Get(ctx context.Context, tenantID, userID string) (TenantUser, error) {
	ms, err := svc.repo.GetMembership(ctx, tenantID, userID)
	if err != nil {
		if errors.Cause(err) == ErrMembershipNotFound {
			return TenantUser{}, ErrNotFound
		}
		return TenantUser{}, errors.Wrap(err, "getting membership")
	}
	usr, err := svc.repo.GetUser(ctx, userID)
	if err != nil {
		return TenantUser{}, err
	}

	tu := TenantUser{User: usr, Role: ms.Role, MemberID: ms.MemberID, IsActive: ms.IsActive}
	if ms.MemberID.Valid {
		m, err := svc.members.Get(ctx, tenantID, ms.MemberID.String)
		if err != nil && errors.Cause(err) != member.ErrNotFound {
			return TenantUser{}, errors.Wrap(err, "getting member profile")
		}
		if err == nil {
			tu.Member = &m
		}
	}
	return tu, nil
}

func (svc *Service) Query(ctx context.Context, tenantID string, filter QueryFilter) ([]TenantUser, error) {
	return svc.repo.QueryTenantUsers(ctx, tenantID, filter)
}

// StaffEmails returns the addresses of the active owners, admins and coaches of the tenant.
func (svc *Service) StaffEmails(ctx context.Context, tenantID string) ([]mail.Address, error) {
	active := true
	users, err := svc.repo.QueryTenantUsers(ctx, tenantID, QueryFilter{Roles: StaffRoles, IsActive: &active})
	if err != nil {
		return nil, err
	}
	addrs := make([]mail.Address, 0, len(users))
	for _, u := range users {
		addrs = append(addrs, mail.Address{Name: u.Name, Address: u.Email})
	}
	return addrs, nil
}

// Update modifies the tenant User. uu must have been validated against orig.
func (svc *Service) Update(ctx context.Context, tenantID string, actor Actor, orig TenantUser, uu UpdateUser) (TenantUser, error) {
	self := actor.UserID == orig.ID
	if !self && RolePriority(orig.Role) > RolePriority(actor.Role) {
		return TenantUser{}, core.NewValidationError(errCannotModifyHigher)
	}
	if uu.Role != "" && uu.Role != orig.Role && RolePriority(uu.Role) > RolePriority(actor.Role) {
		return TenantUser{}, core.NewValidationError(nil, core.FieldError{Field: "role", Error: errNoPermsToSetRoles.Error()})
	}
	if self && uu.IsActive != nil && !*uu.IsActive {
		return TenantUser{}, core.NewValidationError(nil, core.FieldError{Field: "is_active", Error: errInactiveNotAllowed.Error()})
	}
	if !self && uu.Password != "" {
		return TenantUser{}, core.NewValidationError(nil, core.FieldError{Field: "password", Error: errPasswordNotModified.Error()})
	}
	if uu.Member != nil && !orig.MemberID.Valid {
		return TenantUser{}, core.NewValidationError(nil, core.FieldError{Field: "member", Error: ErrNoMemberProfile.Error()})
	}

	err := svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		usr := orig.User
		if uu.Name != orig.Name || uu.Password != "" {
			if !self {
				n, err := svc.repo.CountMemberships(ctx, orig.ID)
				if err != nil {
					return errors.Wrap(err, "counting memberships")
				}
				if n > 1 {
					return core.NewValidationError(nil, core.FieldError{Field: "name", Error: errSharedAccount.Error()})
				}
			}
			usr.Name = uu.Name
			if uu.Password != "" {
				if err := usr.SetPassword(uu.Password); err != nil {
					return errors.Wrap(err, "setting password")
				}
			}
			usr.UpdatedAt = time.Now().UTC()
			if _, err := svc.repo.UpdateUser(ctx, usr); err != nil {
				return errors.Wrap(err, "updating user")
			}
		}

		ms := Membership{TenantID: tenantID, UserID: orig.ID, Role: orig.Role, MemberID: orig.MemberID, IsActive: orig.IsActive}
		if uu.Role != "" {
			ms.Role = uu.Role
		}
		if uu.IsActive != nil {
			ms.IsActive = *uu.IsActive
		}
		if ms.Role != orig.Role || ms.IsActive != orig.IsActive {
			if err := svc.repo.UpdateMembership(ctx, ms); err != nil {
				return errors.Wrap(err, "updating membership")
			}
		}

		if uu.Member != nil && !uu.Member.IsEmpty() {
			if _, err := svc.members.Update(ctx, tenantID, orig.MemberID.String, *uu.Member); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return TenantUser{}, err
	}
	return svc.Get(ctx, tenantID, orig.ID)
}

// Remove removes the User from the tenant. The account itself is deleted when it belongs to no other tenant.
// Reports whether the account was deleted.
func (svc *Service) Remove(ctx context.Context, tenantID string, actor Actor, userID string) (bool, error) {
	if actor.UserID == userID {
		return false, core.NewValidationError(errCannotRemoveSelf)
	}
	orig, err := svc.Get(ctx, tenantID, userID)
	if err != nil {
		return false, err
	}
	if RolePriority(orig.Role) > RolePriority(actor.Role) {
		return false, core.NewValidationError(errCannotRemoveHigher)
	}

	var deleted bool
	err = svc.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := svc.repo.DeleteMembership(ctx, tenantID, userID); err != nil {
			return errors.Wrap(err, "deleting membership")
		}
		n, err := svc.repo.CountMemberships(ctx, userID)
		if err != nil {
			return errors.Wrap(err, "counting memberships")
		}
		if n == 0 {
			if err = svc.repo.DeleteUser(ctx, userID); err != nil {
				return errors.Wrap(err, "deleting user")
			}
			deleted = true
		}
		return nil
	})
	return deleted, err
}

// Authenticate checks the credentials of a tenant User and records the login.
func (svc *Service) Authenticate(ctx context.Context, tenantID, email, pwd string) (TenantUser, error) {
	usr, err := svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return TenantUser{}, ErrInvalidCredentials
		}
		return TenantUser{}, errors.Wrap(err, "getting user by email")
	}
	if err = usr.CheckPassword(pwd); err != nil {
		return TenantUser{}, ErrInvalidCredentials
	}

	tu, err := svc.Get(ctx, tenantID, usr.ID)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return TenantUser{}, ErrInvalidCredentials
		}
		return TenantUser{}, err
	}
	if !tu.IsActive {
		return TenantUser{}, ErrAccountDeactivated
	}

	now := time.Now().UTC()
	if err = svc.repo.SetLastLogin(ctx, usr.ID, now); err != nil {
		return TenantUser{}, errors.Wrap(err, "setting last login")
	}
	tu.LastLogin = null.TimeFrom(now)
	return tu, nil
}

// SetPassword sets the password of the account registered with email (admin CLI).
func (svc *Service) SetPassword(ctx context.Context, email, pwd string) error {
	usr, err := svc.repo.GetUserByEmail(ctx, core.CleanString(email, true /* lower */))
	if err != nil {
		return err
	}
	if err = usr.SetPassword(pwd); err != nil {
		return err
	}
	usr.UpdatedAt = time.Now().UTC()
	_, err = svc.repo.UpdateUser(ctx, usr)
	return err
}
