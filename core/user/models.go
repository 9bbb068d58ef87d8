package user

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/vilmosmisota/sportapp/core"
	"github.com/vilmosmisota/sportapp/core/member"
)

// Roles (per tenant)
const (
	RoleOwner  = "owner"
	RoleAdmin  = "admin"
	RoleCoach  = "coach"
	RoleMember = "member"
)

var (
	AdminRoles = []string{RoleOwner, RoleAdmin}
	StaffRoles = []string{RoleOwner, RoleAdmin, RoleCoach}
	AllRoles   = []string{RoleOwner, RoleAdmin, RoleCoach, RoleMember}

	rolePriorities = map[string]int{
		RoleOwner:  40,
		RoleAdmin:  30,
		RoleCoach:  20,
		RoleMember: 10,
	}

	Roles = []Role{
		{Name: "Member", Value: RoleMember},
		{Name: "Coach", Value: RoleCoach},
		{Name: "Admin", Value: RoleAdmin},
		{Name: "Owner", Value: RoleOwner},
	}
)

func RolePriority(role string) int {
	return rolePriorities[role]
}

// HasAnyRole reports whether role is one of roles.
func HasAnyRole(role string, roles []string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// User is the global account, shared by every tenant the person belongs to.
type User struct {
	ID           string    `json:"id" db:"id"`
	Name         string    `json:"name" db:"name"`
	Email        string    `json:"email" db:"email"`
	PasswordHash []byte    `json:"-" db:"password_hash"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"` // UTC
	LastLogin    null.Time `json:"last_login" db:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

// Membership links a User to a tenant. A deactivated membership cannot log in to that tenant.
type Membership struct {
	TenantID string      `json:"-" db:"tenant_id"`
	UserID   string      `json:"-" db:"user_id"`
	Role     string      `json:"role" db:"role"`
	MemberID null.String `json:"member_id" db:"member_id"`
	IsActive bool        `json:"is_active" db:"is_active"`
}

func (m Membership) IsAdmin() bool { return HasAnyRole(m.Role, AdminRoles) }
func (m Membership) IsStaff() bool { return HasAnyRole(m.Role, StaffRoles) }

// TenantUser is a User as seen from one tenant.
type TenantUser struct {
	User
	Role     string         `json:"role"`
	MemberID null.String    `json:"member_id"`
	IsActive bool           `json:"is_active"`
	Member   *member.Member `json:"member,omitempty"`
}

// NewUser contains information needed to add a User to a tenant.
// The account is reused when the email is already known.
type NewUser struct {
	Name            string            `json:"name" validate:"required,notblank"`
	Email           string            `json:"email" validate:"required,email"`
	Password        string            `json:"password" validate:"required"`
	PasswordConfirm string            `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            string            `json:"role" validate:"required,tenantrole"`
	Member          *member.NewMember `json:"member"`
}

func (nu *NewUser) Validate(validate *validator.Validate) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	if nu.Member != nil {
		nu.Member.Clean()
	}
	return validate.Struct(nu)
}

// UpdateUser defines what information may be provided to modify an existing tenant User.
type UpdateUser struct {
	ID              string               `json:"id" validate:"required,uuid"`
	Name            string               `json:"name"`
	IsActive        *bool                `json:"is_active"`
	Role            string               `json:"role" validate:"omitempty,tenantrole"`
	Password        string               `json:"password"`
	PasswordConfirm string               `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
	Member          *member.UpdateMember `json:"member"`

	// set by Validate, used by the password policy
	email string
}

func (uu *UpdateUser) Validate(orig TenantUser, validate *validator.Validate) error {
	uu.ID = core.CleanString(uu.ID)
	if name := core.CleanString(uu.Name); name != "" {
		uu.Name = name
	} else {
		uu.Name = orig.Name
	}
	uu.email = orig.Email
	if uu.Member != nil {
		uu.Member.Clean()
	}
	return validate.Struct(uu)
}

type QueryFilter struct {
	Search   string   `query:"search"`
	Roles    []string `query:"role"`
	IsActive *bool    `query:"is_active"`
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
