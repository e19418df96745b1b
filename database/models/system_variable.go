package models

import "github.com/roamstake/staking-engine/types"

// System defines a system variable record.
type System struct {
	Name  types.SysVar `gorm:"column:name;type:varchar(64);primary_key;not null"`
	Value string       `gorm:"column:value;type:varchar(256);not null"`

	Base
}

// ForeignKeyConstraints create foreign key constraints.
func (*System) ForeignKeyConstraints() []ForeignKeyConstraint {
	return nil
}

// Indexes returns information to create index.
func (*System) Indexes() []CustomIndex {
	return nil
}
