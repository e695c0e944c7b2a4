package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRoles(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		in   []UserRole
		want []UserRole
	}{
		{"nil list", nil, nil},
		{"lowercases and trims", []UserRole{" Admin ", "VIEWER"}, []UserRole{"admin", "viewer"}},
		{"dedupes keeping first-seen order", []UserRole{"operator", "admin", "operator"}, []UserRole{"operator", "admin"}},
		{"drops empties", []UserRole{"", "  ", "viewer"}, []UserRole{"viewer"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeRoles(tc.in))
		})
	}
}

func TestEnsureDefaultRole(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []UserRole{RoleViewer}, EnsureDefaultRole(nil))
	assert.Equal(t, []UserRole{RoleAdmin}, EnsureDefaultRole([]UserRole{RoleAdmin}))
}

func TestIsValidRoleList(t *testing.T) {
	t.Parallel()
	assert.True(t, IsValidRoleList([]UserRole{RoleViewer, RoleOperator, RoleAdmin}))
	assert.True(t, IsValidRoleList(nil))
	assert.False(t, IsValidRoleList([]UserRole{RoleViewer, "superuser"}))
}

func TestHasAtLeast(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name     string
		roles    []UserRole
		required UserRole
		want     bool
	}{
		{"viewer cannot operate", []UserRole{RoleViewer}, RoleOperator, false},
		{"operator can view", []UserRole{RoleOperator}, RoleViewer, true},
		{"admin can do anything", []UserRole{RoleAdmin}, RoleAdmin, true},
		{"any role in the list counts", []UserRole{RoleViewer, RoleAdmin}, RoleOperator, true},
		{"no roles no access", nil, RoleViewer, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HasAtLeast(tc.roles, tc.required))
		})
	}
}

func TestHighestRole(t *testing.T) {
	t.Parallel()
	assert.Equal(t, RoleViewer, HighestRole(nil))
	assert.Equal(t, RoleAdmin, HighestRole([]UserRole{RoleViewer, RoleAdmin, RoleOperator}))
	assert.Equal(t, RoleOperator, HighestRole([]UserRole{RoleOperator, RoleViewer}))
}
