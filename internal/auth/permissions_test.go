package auth

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleViewer, PermFireplaceRead, true},
		{RoleViewer, PermFireplaceOperate, false},
		{RoleViewer, PermFireplaceConfig, false},
		{RoleOperator, PermFireplaceRead, true},
		{RoleOperator, PermFireplaceOperate, true},
		{RoleOperator, PermFireplaceConfig, true},
		{Role("nobody"), PermFireplaceRead, false},
	}
	for _, tt := range tests {
		if got := HasPermission(tt.role, tt.perm); got != tt.want {
			t.Errorf("HasPermission(%s, %s) = %v, want %v", tt.role, tt.perm, got, tt.want)
		}
	}
}

func TestRoleIsValid(t *testing.T) {
	for _, r := range []Role{RoleViewer, RoleOperator} {
		if !r.IsValid() {
			t.Errorf("%q should be valid", r)
		}
	}
	if Role("admin").IsValid() {
		t.Error(`"admin" should not be valid`)
	}
}
