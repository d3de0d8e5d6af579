// Package perms implements the namespace authorization evaluator. Every
// handler consults it before disclosing or mutating namespaced entities.
//
// The evaluator is a pure predicate: callers resolve existence first (and
// report not-found before any permission check), then ask whether the caller
// may perform the operation. Read denial is reported to clients as not-found
// so that permission boundaries do not leak existence; denied mutations on a
// visible target are reported as forbidden.
package perms

import (
	"errors"

	"gorm.io/gorm"

	"github.com/bakkenl/kartotek/pkg/kartotek/models"
)

var (
	// ErrAmbiguousGroup is returned when a non-admin creates a namespace
	// without naming a grantee group while belonging to several groups.
	ErrAmbiguousGroup = errors.New("no group provided and no singular default available")
	// ErrNotGroupMember is returned when the named grantee group exists but
	// the caller is not a member of it.
	ErrNotGroupMember = errors.New("user is not a member of the requested group")
)

// permissionColumn maps an operation to its permission column. Only values
// from models.Operations() reach the query builder.
func permissionColumn(op models.Operation) string {
	switch op {
	case models.OpCreate:
		return "has_create"
	case models.OpRead:
		return "has_read"
	case models.OpUpdate:
		return "has_update"
	case models.OpDelete:
		return "has_delete"
	case models.OpNamespace:
		return "has_namespace"
	}
	return ""
}

// CanPerform reports whether user may perform op within the namespace.
// Admin users always pass. Otherwise the user must be a member of a group
// holding a permission row for the namespace with the matching bit set.
func CanPerform(db *gorm.DB, user *models.User, op models.Operation, namespaceID uint) bool {
	if user.IsAdmin() {
		return true
	}
	column := permissionColumn(op)
	if column == "" {
		return false
	}
	var count int64
	db.Model(&models.Permission{}).
		Joins("JOIN group_memberships ON group_memberships.group_id = permissions.group_id").
		Where("permissions.namespace_id = ?", namespaceID).
		Where("group_memberships.user_id = ?", user.ID).
		Where(column+" = ?", true).
		Count(&count)
	return count > 0
}

// ReadableNamespaceIDs returns the ids of every namespace the user can read.
// Admins read everything.
func ReadableNamespaceIDs(db *gorm.DB, user *models.User) []uint {
	var ids []uint
	if user.IsAdmin() {
		db.Model(&models.Namespace{}).Pluck("id", &ids)
		return ids
	}
	db.Model(&models.Permission{}).
		Joins("JOIN group_memberships ON group_memberships.group_id = permissions.group_id").
		Where("group_memberships.user_id = ?", user.ID).
		Where("permissions.has_read = ?", true).
		Distinct().
		Pluck("permissions.namespace_id", &ids)
	return ids
}

// CanCreateNamespace decides whether user may create a namespace with the
// given name. Root namespaces (no dot in the name) are admin-only; scoped
// names require the namespace permission on the parent. A missing parent is
// reported as (false, false).
func CanCreateNamespace(db *gorm.DB, user *models.User, name string) (allowed bool, parentFound bool) {
	if user.IsAdmin() {
		return true, true
	}
	parent := models.ParentName(name)
	if parent == "" {
		return false, true
	}
	var parentNS models.Namespace
	if err := db.Where("name = ?", parent).First(&parentNS).Error; err != nil {
		return false, false
	}
	return CanPerform(db, user, models.OpNamespace, parentNS.ID), true
}

// ResolveGrantee determines the group that receives full permissions on a
// newly created namespace. An explicit group wins, but the caller must be a
// member of it (admins are exempt). With no explicit group, a user belonging
// to exactly one group gets that group implicitly; admins may proceed without
// a grantee, anyone else is rejected as ambiguous.
func ResolveGrantee(db *gorm.DB, user *models.User, explicitGroupID uint) (*models.Group, error) {
	if explicitGroupID != 0 {
		var group models.Group
		if err := db.First(&group, explicitGroupID).Error; err != nil {
			return nil, err
		}
		if !user.IsAdmin() && !IsMember(db, user.ID, group.ID) {
			return nil, ErrNotGroupMember
		}
		return &group, nil
	}

	var memberships []models.GroupMembership
	db.Where("user_id = ?", user.ID).Find(&memberships)
	if len(memberships) == 1 {
		var group models.Group
		if err := db.First(&group, memberships[0].GroupID).Error; err != nil {
			return nil, err
		}
		return &group, nil
	}
	if user.IsAdmin() {
		return nil, nil
	}
	return nil, ErrAmbiguousGroup
}

// IsMember reports whether the user belongs to the group.
func IsMember(db *gorm.DB, userID, groupID uint) bool {
	var count int64
	db.Model(&models.GroupMembership{}).
		Where("user_id = ? AND group_id = ?", userID, groupID).
		Count(&count)
	return count > 0
}
