package db

import "gorm.io/gorm"

// DBApp describes one application schema hosted by this package. Reset walks
// its model list and lifecycle hooks when installing or rebuilding the schema.
type DBApp interface {
	// Models lists every model Reset migrates.
	Models() []interface{}

	// IsEmpty reports whether the schema has not been installed yet.
	IsEmpty(db *gorm.DB) bool

	// PreReset runs inside a transaction before tables are dropped.
	PreReset(db *gorm.DB) error

	// PostReset runs after migration completes, for seeding.
	PostReset(db *gorm.DB) error
}
