package db

import (
	"database/sql"
	"fmt"
	"regexp"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"github.com/roamstake/staking-engine/common/config"
	"github.com/roamstake/staking-engine/common/logging"
	"github.com/roamstake/staking-engine/database/db/stakingdb"
	"github.com/roamstake/staking-engine/database/models"
	"github.com/roamstake/staking-engine/types"
)

// Host specifies the database host.
type Host string

// Host enums.
const (
	Default Host = "default"
	Master  Host = "master"
)

var logger = logging.NewLoggerTag("database")

var dbMap map[Host]*gorm.DB
var dbMapMutex sync.Mutex

// NewDB returns an ORM DB instance for the given connection string.
func NewDB(args string) (db *gorm.DB, err error) {
	dialector := postgres.Open(args)
	db, err = gorm.Open(dialector,
		&gorm.Config{
			NamingStrategy: schema.NamingStrategy{
				SingularTable: true,
			},
		},
	)
	if err != nil {
		logger.Warn("failed to open gorm db err=%v", err)
		return
	}
	db.Logger.LogMode(0)
	var sqlDB *sql.DB
	sqlDB, err = db.DB()
	if err != nil {
		logger.Warn("failed to get sql.DB from gorm db err=%v", err)
		return
	}

	// Set database parameters.
	sqlDB.SetMaxIdleConns(config.GetInt("DB_MAX_IDLE_CONNS", 4))
	sqlDB.SetMaxOpenConns(config.GetInt("DB_MAX_OPEN_CONNS", 16))
	sqlDB.SetConnMaxLifetime(10 * time.Minute)
	return
}

// Initialize initializes connection instances. It doesn't reset or migrate anything.
func Initialize(extraHosts ...Host) {
	dbMapMutex.Lock()
	defer dbMapMutex.Unlock()

	hosts := append(extraHosts, Default)
	dbMap = make(map[Host]*gorm.DB)

	for _, host := range hosts {
		if _, e := dbMap[host]; !e {
			logger.Info("Initializing %s database ...", host)
			dbMap[host] = dialDB(host)
		}
	}
	logger.Info("Initialize DONE")
}

// Finalize closes the database and delete it from dbMap.
func Finalize() {
	dbMapMutex.Lock()
	defer dbMapMutex.Unlock()

	for key, db := range dbMap {
		sqlDB, err := db.DB()
		if err != nil {
			logger.Warn("failed to get db %v, err=%v", sqlDB, err)
			continue
		}
		if sqlDB != nil {
			if err = sqlDB.Close(); err != nil {
				logger.Warn("failed to close db %v, err=%v", sqlDB, err)
			}
			delete(dbMap, key)
		}
	}
}

// GetDB returns the database handle.
func GetDB(host ...Host) *gorm.DB {
	if len(host) > 1 {
		panic("invalid usage of GetDB")
	}

	target := Default
	if len(host) == 1 {
		target = host[0]
	}

	dbMapMutex.Lock()
	ret := dbMap[target]
	dbMapMutex.Unlock()

	if ret != nil {
		return ret
	}
	Initialize(target)

	dbMapMutex.Lock()
	ret = dbMap[target]
	dbMapMutex.Unlock()

	if ret == nil {
		panic("gets nil db: " + target)
	}
	return ret
}

// Return DBApp given an app type.
func dbAppFromType(appType types.AppType) (dbApp DBApp) {
	switch appType {
	case types.Staking:
		dbApp = &stakingdb.StakingDBApp{}
	default:
		panic("undefined application environment")
	}
	return
}

// Reset resets the entire database. It will:
// 1. Drop all tables. 2. Do migration (contains initial schema & default records).
func Reset(db *gorm.DB, appType types.AppType, force bool) {
	dbApp := dbAppFromType(appType)

	if !force && !dbApp.IsEmpty(db) {
		logger.Critical("staking database exists, reset aborted.")
	}

	logger.Info("Resetting database ...")

	if err := Transaction(db, dbApp.PreReset); err != nil {
		logger.Error("pre reset: %v", err)
	}

	dropAllTables(db, dbApp)

	logger.Info("Creating models ...")
	err := Transaction(db, func(tx *gorm.DB) error {
		stmt := &gorm.Statement{DB: db}
		for _, model := range dbApp.Models() {
			if err := stmt.Parse(model); err != nil {
				logger.Warn("failed to parse model %+v, err=%v", model, err)
				continue
			}
			logger.Info("tableName %+v", stmt.Schema.Table)
			if e := tx.AutoMigrate(model); e != nil {
				return e
			}
		}
		return nil
	})
	if err != nil {
		panic(err)
	}

	err = Transaction(db, func(tx *gorm.DB) error {
		logger.Info("Creating indices and constraints ...")
		stmt := &gorm.Statement{DB: db}
		for _, v := range dbApp.Models() {
			if err := stmt.Parse(v); err != nil {
				logger.Warn("failed to parse model %+v, err=%v", v, err)
				continue
			}
			tableName := stmt.Schema.Table
			if e := CreateCustomIndices(tx, v, tableName); e != nil {
				return e
			}
			if e := CreateForeignKeyConstraintsSelf(tx, v, tableName); e != nil {
				return e
			}
		}

		logger.Info("Running post reset hook ...")
		return dbApp.PostReset(tx)
	})
	if err != nil {
		panic(err)
	}
	logger.Info("Reset Done")
}

func dropAllTables(db *gorm.DB, dbApp DBApp) {
	stmt := &gorm.Statement{DB: db}
	allModels := dbApp.Models()
	// Reverse order so dependents go first.
	for i := len(allModels) - 1; i >= 0; i-- {
		if err := stmt.Parse(allModels[i]); err != nil {
			logger.Warn("failed to parse model %+v, err=%v", allModels[i], err)
			continue
		}
		db.Exec(fmt.Sprintf(`DROP TABLE IF EXISTS "%s" CASCADE`, stmt.Schema.Table))
	}
}

func dialDB(host Host) *gorm.DB {
	var (
		args string
		db   *gorm.DB
		err  error
	)
	switch host {
	case Default, Master:
		args = config.GetString("DB_ARGS")
	}
	db, err = NewDB(args)
	if err != nil {
		logger.Critical(err.Error())
	}
	return db
}

// Transaction wraps the database transaction and to proper error handling.
func Transaction(db *gorm.DB, body func(*gorm.DB) error) (err error) {
	tx := db.Begin()
	if tx.Error != nil {
		logger.Error("Transaction: Cannot open transaction %s", tx.Error.Error())
		return tx.Error
	}

	// Error checking and panic safenet.
	defer func() {
		if err != nil {
			logger.Warn("Transaction: rollback due to error: %v", err)
			if rollbackErr := tx.Rollback().Error; rollbackErr != nil {
				panic(rollbackErr)
			}
		}

		if recovered := recover(); recovered != nil {
			logger.Error("Transaction: rollback due to panic: %v\n%s",
				recovered, string(debug.Stack()))

			err = tx.Rollback().Error
			if err != nil {
				logger.Error("Transaction: rollback failed: %v", err)
			}
			panic(recovered)
		}
	}()

	// Execute main body.
	if err = body(tx); err != nil {
		return err
	}

	return tx.Commit().Error
}

// CreateCustomIndices creates custom indices if model implements models.CustomIndexer.
func CreateCustomIndices(tx *gorm.DB, model interface{}, tableName string) error {
	if m, ok := model.(models.CustomIndexer); ok {
		for _, idx := range m.Indexes() {
			unique := ""
			extension := ""
			condition := ""
			if idx.Unique {
				unique = "UNIQUE"
			}
			if len(idx.Type) != 0 {
				extension = "USING " + idx.Type
			}
			if len(idx.Condition) != 0 {
				condition = "WHERE " + idx.Condition
			}
			columns := strings.Join(idx.Fields, ",")
			idxStat := fmt.Sprintf(
				`CREATE %s INDEX IF NOT EXISTS %s ON "%s" %s(%s) %s`,
				unique, idx.Name, tableName, extension, columns, condition)
			if err := tx.Model(model).Exec(idxStat).Error; err != nil {
				return err
			}
		}
	}
	return nil
}

// buildForeignKeyName is copy from gorm.
func buildForeignKeyName(tableName, field, dest string) string {
	keyName := fmt.Sprintf("%s_%s_%s_foreign", tableName, field, dest)
	keyName = regexp.MustCompile("(_*[^a-zA-Z]+_*|_+)").ReplaceAllString(keyName, "_")
	return keyName
}

// CreateForeignKeyConstraintsSelf creates foreign key constraint if model implements
// models.ForeignKeyConstrainer.
func CreateForeignKeyConstraintsSelf(tx *gorm.DB, model interface{}, tableName string) error {
	if m, ok := model.(models.ForeignKeyConstrainer); ok {
		for _, c := range m.ForeignKeyConstraints() {
			keyName := buildForeignKeyName(tableName, c.Field, c.Dest)
			err := tx.Exec(fmt.Sprintf("ALTER TABLE IF EXISTS \"%s\" ADD CONSTRAINT "+
				"%s FOREIGN KEY (%s) REFERENCES %s ON DELETE %s ON UPDATE %s",
				tableName, keyName, c.Field, c.Dest, c.OnDelete, c.OnUpdate)).Error
			if err != nil {
				return err
			}
		}
	}
	return nil
}
