package models

import "time"

// Operation is a namespace permission operation.
type Operation string

const (
	OpCreate    Operation = "create"
	OpRead      Operation = "read"
	OpUpdate    Operation = "update"
	OpDelete    Operation = "delete"
	OpNamespace Operation = "namespace"
)

// Operations lists every valid namespace permission operation.
func Operations() []Operation {
	return []Operation{OpCreate, OpRead, OpUpdate, OpDelete, OpNamespace}
}

// Permission grants a group a set of operations within one namespace.
// HasNamespace authorizes creating child namespaces and managing other
// groups' access to this one.
type Permission struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	NamespaceID uint `gorm:"not null;uniqueIndex:idx_namespace_group" json:"namespace_id"`
	GroupID     uint `gorm:"not null;uniqueIndex:idx_namespace_group" json:"group_id"`

	HasCreate    bool `gorm:"not null;default:false" json:"has_create"`
	HasRead      bool `gorm:"not null;default:false" json:"has_read"`
	HasUpdate    bool `gorm:"not null;default:false" json:"has_update"`
	HasDelete    bool `gorm:"not null;default:false" json:"has_delete"`
	HasNamespace bool `gorm:"not null;default:false" json:"has_namespace"`

	// Relationships
	Namespace Namespace `gorm:"foreignKey:NamespaceID" json:"namespace,omitempty"`
	Group     Group     `gorm:"foreignKey:GroupID" json:"group,omitempty"`
}

// Allows reports whether this permission row grants the given operation.
func (p *Permission) Allows(op Operation) bool {
	switch op {
	case OpCreate:
		return p.HasCreate
	case OpRead:
		return p.HasRead
	case OpUpdate:
		return p.HasUpdate
	case OpDelete:
		return p.HasDelete
	case OpNamespace:
		return p.HasNamespace
	}
	return false
}

// Set sets the bit for the given operation.
func (p *Permission) Set(op Operation, value bool) {
	switch op {
	case OpCreate:
		p.HasCreate = value
	case OpRead:
		p.HasRead = value
	case OpUpdate:
		p.HasUpdate = value
	case OpDelete:
		p.HasDelete = value
	case OpNamespace:
		p.HasNamespace = value
	}
}

// GrantAll returns a permission granting every operation on a namespace to a group.
func GrantAll(namespaceID, groupID uint) Permission {
	p := Permission{NamespaceID: namespaceID, GroupID: groupID}
	for _, op := range Operations() {
		p.Set(op, true)
	}
	return p
}
