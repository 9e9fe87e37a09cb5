package user

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/insightlab/insightlab/core"
)

// Roles
const (
	RoleAdmin       = "admin"
	RoleResearcher  = "researcher"
	RoleParticipant = "participant"
	RoleReviewer    = "reviewer"
)

var (
	AllRoles = []string{RoleAdmin, RoleResearcher, RoleParticipant, RoleReviewer}

	Roles = []Role{
		{Name: "Participant", Value: RoleParticipant},
		{Name: "Reviewer", Value: RoleReviewer},
		{Name: "Researcher", Value: RoleResearcher},
		{Name: "Admin", Value: RoleAdmin},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type User struct {
	ID           int       `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	IsActive     bool      `json:"is_active"`
	Role         string    `json:"role"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
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

func (u *User) IsAdmin() bool       { return u.Role == RoleAdmin }
func (u *User) IsResearcher() bool  { return u.Role == RoleResearcher }
func (u *User) IsParticipant() bool { return u.Role == RoleParticipant }
func (u *User) IsReviewer() bool    { return u.Role == RoleReviewer }

// DisplayName falls back to the email when no name was provided.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string `json:"name" validate:"required"`
	Username        string `json:"username" validate:"omitempty,min=6,alphanum"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required"`
	PasswordConfirm string `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            string `json:"role" validate:"omitempty,oneof=admin researcher participant reviewer"`
}

func (nu *NewUser) Validate(svc Service) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)

	if err := core.Validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(nu.Username, nu.Email)
}

// UpdateUser contains information needed to update an existing User.
type UpdateUser struct {
	Name            string `json:"name"`
	Username        string `json:"username" validate:"omitempty,min=6,alphanum"`
	Email           string `json:"email" validate:"omitempty,email"`
	Password        string `json:"password" validate:"omitempty"`
	PasswordConfirm string `json:"password_confirm" validate:"required_with=Password,omitempty,eqfield=Password"`
	Role            string `json:"role" validate:"omitempty,oneof=admin researcher participant reviewer"`
	IsActive        *bool  `json:"is_active"`
}

func (uu *UpdateUser) Validate(svc Service, origUser User) error {
	uu.Name = core.CleanString(uu.Name)
	uu.Username = core.CleanString(uu.Username, true /* lower */)
	uu.Email = core.CleanString(uu.Email, true /* lower */)

	if err := core.Validate.Struct(uu); err != nil {
		return err
	}
	if uu.Username != "" || uu.Email != "" {
		return svc.CheckUniqueness(uu.Username, uu.Email, origUser)
	}
	return nil
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Role        string    `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Role == "" && qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}
