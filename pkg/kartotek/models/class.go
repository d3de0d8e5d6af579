package models

import "time"

// DynamicClass is a user-defined type. Objects of the class may carry an
// arbitrary JSON payload; when ValidateSchema is set and Schema is non-empty,
// payloads must validate against Schema on every save.
type DynamicClass struct {
	ID             uint      `gorm:"primarykey" json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	Name           string    `gorm:"uniqueIndex;not null" json:"name"`
	NamespaceID    uint      `gorm:"not null;index" json:"namespace_id"`
	Schema         JSONMap   `gorm:"type:text" json:"json_schema"`
	ValidateSchema bool      `gorm:"default:false" json:"validate_schema"`

	// Relationships
	Namespace Namespace `gorm:"foreignKey:NamespaceID" json:"namespace,omitempty"`
}

// HasSchema reports whether the class carries a schema document.
func (c *DynamicClass) HasSchema() bool {
	return len(c.Schema) > 0
}

// ValidationRequired reports whether object payloads must be validated.
func (c *DynamicClass) ValidationRequired() bool {
	return c.ValidateSchema && c.HasSchema()
}
