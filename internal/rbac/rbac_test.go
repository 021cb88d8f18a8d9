package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		role   Role
		action Action
		owner  bool
		want   bool
	}{
		{RoleAnonymous, ActionEdit, true, false},
		{RoleAnonymous, ActionDelete, true, false},
		{RoleUser, ActionEdit, true, true},
		{RoleUser, ActionEdit, false, false},
		{RoleElevated, ActionEdit, false, false},
		{RoleUser, ActionDelete, true, true},
		{RoleUser, ActionDelete, false, false},
		{RoleElevated, ActionDelete, false, true},
		{RoleUser, Action("publish"), true, false},
	}
	for _, tc := range cases {
		if got := Can(tc.role, tc.action, tc.owner); got != tc.want {
			t.Fatalf("Can(%s, %s, owner=%v) = %v, want %v", tc.role, tc.action, tc.owner, got, tc.want)
		}
	}
}

func TestFor(t *testing.T) {
	if For("", false) != RoleAnonymous {
		t.Fatal("expected anonymous role")
	}
	if For("u1", false) != RoleUser {
		t.Fatal("expected user role")
	}
	if For("u1", true) != RoleElevated {
		t.Fatal("expected elevated role")
	}
}
