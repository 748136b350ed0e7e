package domain

import (
	"testing"
	"time"
)

func TestSortMostRecent(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	list := []*Membership{
		{ID: "a", TenantID: "t1", CreatedAt: base},
		{ID: "b", TenantID: "t2", CreatedAt: base.Add(time.Hour)},
		{ID: "c", TenantID: "t3", CreatedAt: base.Add(time.Hour)},
		{ID: "d", TenantID: "t4", CreatedAt: base.Add(-time.Hour)},
	}
	SortMostRecent(list)
	want := []string{"t3", "t2", "t1", "t4"}
	for i, m := range list {
		if m.TenantID != want[i] {
			t.Fatalf("order[%d] = %s, want %s", i, m.TenantID, want[i])
		}
	}
}

func TestRoleValid(t *testing.T) {
	for _, r := range []Role{RoleOwner, RoleAdmin, RoleMember} {
		if !r.Valid() {
			t.Errorf("%q should be valid", r)
		}
	}
	if Role("guest").Valid() {
		t.Error("guest should not be valid")
	}
}

func TestContains(t *testing.T) {
	list := []*Membership{{TenantID: "t1"}, {TenantID: "t2"}}
	if !Contains(list, "t2") {
		t.Error("Contains(t2) = false")
	}
	if Contains(list, "t3") || Contains(nil, "t1") {
		t.Error("Contains reported a missing tenant")
	}
}
