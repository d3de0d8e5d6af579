package models

import (
	"strings"
	"time"
)

// Namespace is the ownership and authorization scope for every dynamic
// entity. Names form a dot-scoped hierarchy by convention ("it.hosts" is a
// child of "it"); the hierarchy only matters when creating namespaces.
type Namespace struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Name        string    `gorm:"uniqueIndex;not null" json:"name"`
	Description string    `json:"description"`

	// Relationships
	Permissions []Permission `gorm:"foreignKey:NamespaceID" json:"permissions,omitempty"`
}

// ParentName returns the name of the parent namespace, or "" for a root
// namespace ("it.hosts" -> "it").
func ParentName(name string) string {
	idx := strings.LastIndex(name, ".")
	if idx < 0 {
		return ""
	}
	return name[:idx]
}
