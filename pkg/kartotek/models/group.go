package models

import "time"

// Group represents a group that holds namespace permissions.
// Users can belong to multiple groups; all authorization is group-based.
type Group struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Name        string    `gorm:"uniqueIndex;not null" json:"name"`
	Description string    `json:"description"`

	// Relationships
	Members     []GroupMembership `gorm:"foreignKey:GroupID" json:"members,omitempty"`
	Permissions []Permission      `gorm:"foreignKey:GroupID" json:"permissions,omitempty"`
}
