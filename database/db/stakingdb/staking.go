package stakingdb

import (
	"strconv"

	"gorm.io/gorm"

	"github.com/roamstake/staking-engine/common/logging"
	"github.com/roamstake/staking-engine/database/models"
	"github.com/roamstake/staking-engine/database/models/staking"
	"github.com/roamstake/staking-engine/types"
)

var logger = logging.NewLoggerTag("database")

// StakingDBApp is the database application.
type StakingDBApp struct {
}

// Models returns the models for a given database app.
func (e *StakingDBApp) Models() []interface{} {
	return staking.AllModels
}

// IsEmpty check if a given database is empty.
func (e *StakingDBApp) IsEmpty(db *gorm.DB) bool {
	return !db.Migrator().HasTable("stake")
}

// PreReset is executed before db is reset.
func (e *StakingDBApp) PreReset(tx *gorm.DB) error {
	return nil
}

// PostReset is executed after db is reset.
func (e *StakingDBApp) PostReset(tx *gorm.DB) error {
	return initSchemaVersion(tx)
}

func initSchemaVersion(db *gorm.DB) error {
	var result models.System
	err := db.Model(&models.System{}).Select("*").Where(
		"name = ?", types.SysVarSchemaVersion).Last(&result).Error
	var v int
	if err == nil {
		if parsed, perr := strconv.Atoi(result.Value); perr == nil {
			v = parsed
		}
	}
	if res := db.Where("name = ?", types.SysVarSchemaVersion).Save(
		&models.System{
			Name:  types.SysVarSchemaVersion,
			Value: strconv.Itoa(v + 1),
		}); res.Error != nil {
		return res.Error
	}
	logger.Info("Initialized DB schema version to %v.", v+1)
	return nil
}
