package roles

import (
	"sort"

	"github.com/meridian-hr/meridian-hr/internal/audit"
)

// computeChanges builds the per-field diff recorded on UPDATE_ROLE entries.
// Permission and user sets are compared order-independently so reordering an
// assignment never produces a spurious diff.
func computeChanges(before, after Role) *audit.ChangeSet {
	changes := &audit.ChangeSet{}

	if before.Name != after.Name {
		changes.Name = &audit.StringChange{From: before.Name, To: after.Name}
	}
	if before.Description != after.Description {
		changes.Description = &audit.StringChange{From: before.Description, To: after.Description}
	}
	if !samePermissionSet(before.Permissions, after.Permissions) {
		changes.Permissions = &audit.PermissionsChange{
			From: permissionRefs(before.Permissions),
			To:   permissionRefs(after.Permissions),
		}
	}
	if !sameMemberSet(before.Users, after.Users) {
		changes.Users = &audit.UsersChange{
			From: memberRefs(before.Users),
			To:   memberRefs(after.Users),
		}
	}
	return changes
}

func samePermissionSet(a, b []Permission) bool {
	if len(a) != len(b) {
		return false
	}
	left := make([]string, len(a))
	right := make([]string, len(b))
	for i, p := range a {
		left[i] = p.ID
	}
	for i, p := range b {
		right[i] = p.ID
	}
	sort.Strings(left)
	sort.Strings(right)
	for i := range left {
		if left[i] != right[i] {
			return false
		}
	}
	return true
}

func sameMemberSet(a, b []Member) bool {
	if len(a) != len(b) {
		return false
	}
	left := make([]int64, len(a))
	right := make([]int64, len(b))
	for i, m := range a {
		left[i] = m.ID
	}
	for i, m := range b {
		right[i] = m.ID
	}
	sort.Slice(left, func(i, j int) bool { return left[i] < left[j] })
	sort.Slice(right, func(i, j int) bool { return right[i] < right[j] })
	for i := range left {
		if left[i] != right[i] {
			return false
		}
	}
	return true
}

func permissionRefs(perms []Permission) []audit.PermissionRef {
	refs := make([]audit.PermissionRef, 0, len(perms))
	for _, p := range perms {
		refs = append(refs, audit.PermissionRef{ID: p.ID, Name: p.Name})
	}
	return refs
}

func memberRefs(members []Member) []audit.UserRef {
	refs := make([]audit.UserRef, 0, len(members))
	for _, m := range members {
		refs = append(refs, audit.UserRef{ID: m.ID, Name: m.Name})
	}
	return refs
}

func permissionIDList(perms []Permission) []string {
	ids := make([]string, 0, len(perms))
	for _, p := range perms {
		ids = append(ids, p.ID)
	}
	return ids
}

func memberIDList(members []Member) []int64 {
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.ID)
	}
	return ids
}
