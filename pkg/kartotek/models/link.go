package models

import "time"

// Link is a symmetric edge between two objects, governed by a LinkType.
// A single row represents the edge in both directions; the pair is stored in
// canonical order (lower object id in ObjectAID) and exactly one link may
// exist between any two objects.
type Link struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ObjectAID   uint `gorm:"not null;uniqueIndex:idx_link_pair;index" json:"object_a_id"`
	ObjectBID   uint `gorm:"not null;uniqueIndex:idx_link_pair;index" json:"object_b_id"`
	LinkTypeID  uint `gorm:"not null;index" json:"link_type_id"`
	NamespaceID uint `gorm:"not null;index" json:"namespace_id"`

	// Relationships
	ObjectA   DynamicObject `gorm:"foreignKey:ObjectAID" json:"object_a,omitempty"`
	ObjectB   DynamicObject `gorm:"foreignKey:ObjectBID" json:"object_b,omitempty"`
	LinkType  LinkType      `gorm:"foreignKey:LinkTypeID" json:"link_type,omitempty"`
	Namespace Namespace     `gorm:"foreignKey:NamespaceID" json:"namespace,omitempty"`
}

// PeerObjectID returns the other endpoint of the link, given one of them.
func (l *Link) PeerObjectID(objectID uint) uint {
	if l.ObjectAID == objectID {
		return l.ObjectBID
	}
	return l.ObjectAID
}
