package models

import "time"

// LinkType permits links between objects of two classes, with a cardinality
// cap. The pair is unordered: exactly one LinkType may exist per pair of
// classes, and it is queryable from either class's perspective. Internally
// the pair is stored in canonical order (lower class id in ClassAID), so one
// row serves both directions.
type LinkType struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ClassAID    uint `gorm:"not null;uniqueIndex:idx_linktype_pair" json:"class_a_id"`
	ClassBID    uint `gorm:"not null;uniqueIndex:idx_linktype_pair" json:"class_b_id"`
	NamespaceID uint `gorm:"not null;index" json:"namespace_id"`

	// MaxLinks caps how many links an object may have to objects of the
	// peer class. Zero means unlimited.
	MaxLinks int `gorm:"not null;default:0" json:"max_links"`

	// Relationships
	ClassA    DynamicClass `gorm:"foreignKey:ClassAID" json:"class_a,omitempty"`
	ClassB    DynamicClass `gorm:"foreignKey:ClassBID" json:"class_b,omitempty"`
	Namespace Namespace    `gorm:"foreignKey:NamespaceID" json:"namespace,omitempty"`
}

// CanonicalPair orders two ids so that the lower one comes first. Both
// LinkType and Link store their pair this way; lookups canonicalize their
// input before querying, which makes symmetry fall out of a single row.
func CanonicalPair(a, b uint) (uint, uint) {
	if a > b {
		return b, a
	}
	return a, b
}

// PeerClassID returns the other class of the pair, given one of them.
func (lt *LinkType) PeerClassID(classID uint) uint {
	if lt.ClassAID == classID {
		return lt.ClassBID
	}
	return lt.ClassAID
}
