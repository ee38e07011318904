package models

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	ROLE_USER   = "user"
	ROLE_MEMBER = "member"
	ROLE_ADMIN  = "admin"

	STATUS_ACTIVE   = "active"
	STATUS_INACTIVE = "inactive"
	STATUS_DISABLED = "disabled"
)

type User struct {
	ID                  uint           `gorm:"primaryKey" json:"id"`
	Name                string         `gorm:"type:varchar(150)" json:"name" validate:"required,min=3,max=150"`
	Email               string         `gorm:"uniqueIndex;type:varchar(200) CHARACTER SET utf8 COLLATE utf8_bin" json:"email" validate:"required,email,min=5,max=200"`
	Password            string         `gorm:"type:text" json:"-" validate:"required,min=6"`
	Roles               string         `gorm:"type:varchar(255);default:'user'" json:"roles"`
	Status              string         `gorm:"type:varchar(50);default:'active'" json:"status" validate:"oneof=active inactive disabled"`
	HasActiveMembership bool           `gorm:"default:false" json:"has_active_membership"`
	LastLoginAt         *time.Time     `gorm:"type:timestamp;default:null" json:"last_login_at"`
	CreatedAt           time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt           gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) Validate() error {
	v := validator.New()

	return v.Struct(u)
}

func CreateUser(username string, email string, password string) (*User, error) {
	pw, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	u := &User{
		Name:     username,
		Email:    email,
		Password: pw,
		Roles:    ROLE_USER,
		Status:   STATUS_ACTIVE,
	}

	err = u.Validate()
	if err != nil {
		return nil, err
	}

	return u, nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)

	return string(bytes), err
}

// CheckPasswordHash compares the given password with the stored hash.
func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))

	return err == nil
}

// IsActive reports whether the user status is active
func (u *User) IsActive() bool {
	return u.Status == STATUS_ACTIVE
}

// CheckPassword verifies if the provided password matches the user's stored password
func (u *User) CheckPassword(password string) bool {
	return CheckPasswordHash(password, u.Password)
}

// SetPassword hashes and sets a new password for the user
func (u *User) SetPassword(password string) error {
	hashedPassword, err := HashPassword(password)
	if err != nil {
		return err
	}
	u.Password = hashedPassword
	return nil
}

// RoleList returns the user's roles as a slice. Roles are stored as a
// comma-separated list so a membership role can be granted next to whatever
// roles the user already carries.
func (u *User) RoleList() []string {
	if strings.TrimSpace(u.Roles) == "" {
		return []string{}
	}
	parts := strings.Split(u.Roles, ",")
	roles := make([]string, 0, len(parts))
	for _, p := range parts {
		if r := strings.TrimSpace(p); r != "" {
			roles = append(roles, r)
		}
	}
	return roles
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.RoleList() {
		if r == role {
			return true
		}
	}
	return false
}

// AddRole grants a role without touching the user's other roles.
func (u *User) AddRole(role string) {
	role = strings.TrimSpace(role)
	if role == "" || u.HasRole(role) {
		return
	}
	roles := append(u.RoleList(), role)
	u.Roles = strings.Join(roles, ",")
}

// RemoveRole drops a role. If that would leave the user role-less the
// fallback role is assigned instead, so a user always keeps at least one role.
func (u *User) RemoveRole(role string, fallback string) {
	kept := make([]string, 0)
	for _, r := range u.RoleList() {
		if r != role {
			kept = append(kept, r)
		}
	}
	if len(kept) == 0 && fallback != "" {
		kept = append(kept, fallback)
	}
	u.Roles = strings.Join(kept, ",")
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool {
	return u.HasRole(ROLE_ADMIN)
}
