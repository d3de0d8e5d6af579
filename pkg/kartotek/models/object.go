package models

import "time"

// DynamicObject is an instance of a DynamicClass holding a JSON payload.
// Names are unique within their class.
type DynamicObject struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	Name        string    `gorm:"not null;uniqueIndex:idx_object_name_class" json:"name"`
	ClassID     uint      `gorm:"not null;uniqueIndex:idx_object_name_class;index" json:"class_id"`
	NamespaceID uint      `gorm:"not null;index" json:"namespace_id"`
	Data        JSONMap   `gorm:"type:text" json:"json_data"`

	// Relationships
	Class     DynamicClass `gorm:"foreignKey:ClassID" json:"class,omitempty"`
	Namespace Namespace    `gorm:"foreignKey:NamespaceID" json:"namespace,omitempty"`
}
