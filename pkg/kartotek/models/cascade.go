package models

import "gorm.io/gorm"

// Cascading deletes are explicit and run inside the caller's transaction: a
// partially applied cascade (objects gone, links dangling) is never an
// acceptable state, so callers wrap these in db.Transaction.

// DeleteObjectCascade removes an object and every link touching it.
func DeleteObjectCascade(tx *gorm.DB, objectID uint) error {
	if err := tx.Where("object_a_id = ? OR object_b_id = ?", objectID, objectID).
		Delete(&Link{}).Error; err != nil {
		return err
	}
	return tx.Delete(&DynamicObject{}, objectID).Error
}

// DeleteLinkTypeCascade removes a link type and every link of that type.
func DeleteLinkTypeCascade(tx *gorm.DB, linkTypeID uint) error {
	if err := tx.Where("link_type_id = ?", linkTypeID).Delete(&Link{}).Error; err != nil {
		return err
	}
	return tx.Delete(&LinkType{}, linkTypeID).Error
}

// DeleteClassCascade removes a class, its objects, every link type involving
// the class, and every link governed by those link types or touching those
// objects.
func DeleteClassCascade(tx *gorm.DB, classID uint) error {
	var objectIDs []uint
	if err := tx.Model(&DynamicObject{}).Where("class_id = ?", classID).
		Pluck("id", &objectIDs).Error; err != nil {
		return err
	}
	var linkTypeIDs []uint
	if err := tx.Model(&LinkType{}).Where("class_a_id = ? OR class_b_id = ?", classID, classID).
		Pluck("id", &linkTypeIDs).Error; err != nil {
		return err
	}
	if err := tx.Where("link_type_id IN ? OR object_a_id IN ? OR object_b_id IN ?",
		linkTypeIDs, objectIDs, objectIDs).Delete(&Link{}).Error; err != nil {
		return err
	}
	if len(linkTypeIDs) > 0 {
		if err := tx.Delete(&LinkType{}, linkTypeIDs).Error; err != nil {
			return err
		}
	}
	if len(objectIDs) > 0 {
		if err := tx.Delete(&DynamicObject{}, objectIDs).Error; err != nil {
			return err
		}
	}
	return tx.Delete(&DynamicClass{}, classID).Error
}

// DeleteNamespaceCascade removes a namespace and everything scoped to it:
// permissions, classes (with their own cascades, which may reach into other
// namespaces via link types), objects, and links.
func DeleteNamespaceCascade(tx *gorm.DB, namespaceID uint) error {
	var classIDs []uint
	if err := tx.Model(&DynamicClass{}).Where("namespace_id = ?", namespaceID).
		Pluck("id", &classIDs).Error; err != nil {
		return err
	}
	for _, classID := range classIDs {
		if err := DeleteClassCascade(tx, classID); err != nil {
			return err
		}
	}

	// Objects, link types, and links may live in this namespace while their
	// classes live elsewhere.
	var objectIDs []uint
	if err := tx.Model(&DynamicObject{}).Where("namespace_id = ?", namespaceID).
		Pluck("id", &objectIDs).Error; err != nil {
		return err
	}
	for _, objectID := range objectIDs {
		if err := DeleteObjectCascade(tx, objectID); err != nil {
			return err
		}
	}
	var linkTypeIDs []uint
	if err := tx.Model(&LinkType{}).Where("namespace_id = ?", namespaceID).
		Pluck("id", &linkTypeIDs).Error; err != nil {
		return err
	}
	for _, linkTypeID := range linkTypeIDs {
		if err := DeleteLinkTypeCascade(tx, linkTypeID); err != nil {
			return err
		}
	}
	if err := tx.Where("namespace_id = ?", namespaceID).Delete(&Link{}).Error; err != nil {
		return err
	}

	if err := tx.Where("namespace_id = ?", namespaceID).Delete(&Permission{}).Error; err != nil {
		return err
	}
	return tx.Delete(&Namespace{}, namespaceID).Error
}
