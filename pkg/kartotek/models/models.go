package models

import "gorm.io/gorm"

// AllModels returns all models for migration.
// Note: Namespace must be migrated before the entities that reference it.
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Group{},
		&GroupMembership{},
		&Namespace{},
		&Permission{},
		&DynamicClass{},
		&DynamicObject{},
		&LinkType{},
		&Link{},
		&APIKey{},
	}
}

// AutoMigrate runs GORM auto-migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
