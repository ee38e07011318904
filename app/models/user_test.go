package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRoleList(t *testing.T) {
	tests := []struct {
		name     string
		roles    string
		expected []string
	}{
		{"Empty", "", []string{}},
		{"Single", "user", []string{"user"}},
		{"Multiple", "user,member,admin", []string{"user", "member", "admin"}},
		{"Whitespace and empties", " user, ,member,", []string{"user", "member"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := User{Roles: tt.roles}
			assert.Equal(t, tt.expected, u.RoleList())
		})
	}
}

func TestAddRoleKeepsExisting(t *testing.T) {
	u := User{Roles: "user,editor"}

	u.AddRole(ROLE_MEMBER)
	assert.Equal(t, "user,editor,member", u.Roles)

	// Adding again is a no-op.
	u.AddRole(ROLE_MEMBER)
	assert.Equal(t, "user,editor,member", u.Roles)
}

func TestRemoveRoleFallback(t *testing.T) {
	u := User{Roles: "member"}
	u.RemoveRole(ROLE_MEMBER, ROLE_USER)

	// Removing the last role falls back instead of leaving the user role-less.
	assert.Equal(t, []string{ROLE_USER}, u.RoleList())

	u = User{Roles: "user,member"}
	u.RemoveRole(ROLE_MEMBER, ROLE_USER)
	assert.Equal(t, []string{"user"}, u.RoleList())
}

func TestHasRoleAndIsAdmin(t *testing.T) {
	u := User{Roles: "user,admin"}
	assert.True(t, u.HasRole("user"))
	assert.False(t, u.HasRole("member"))
	assert.True(t, u.IsAdmin())
}

func TestCreateUserDefaults(t *testing.T) {
	u, err := CreateUser("testuser", "test@example.com", "secret123")
	assert.NoError(t, err)
	assert.Equal(t, ROLE_USER, u.Roles)
	assert.Equal(t, STATUS_ACTIVE, u.Status)
	assert.True(t, u.CheckPassword("secret123"))
	assert.False(t, u.CheckPassword("wrong"))
}
