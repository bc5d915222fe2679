// Package datastore persists the run log, analysis results and
// database-backed observations with GORM.
package datastore

import (
	"fmt"
	"io"
	"time"

	"gorm.io/gorm"

	"github.com/guianderson/terrama2/internal/conf"
	"github.com/guianderson/terrama2/internal/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// Store is the GORM-backed run log, result writer and observation store.
type Store struct {
	DB     *gorm.DB
	dbType string
	log    logger.Logger
}

// Open connects to the configured output database and migrates the schema.
// MySQL wins when both outputs are enabled.
func Open(settings *conf.Settings, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewSlogLogger(io.Discard, logger.LogLevelError, nil)
	}
	log = log.Module("datastore")

	var (
		dialector gorm.Dialector
		dbType    string
		err       error
	)
	switch {
	case settings.Output.MySQL.Enabled:
		dialector, err = mysqlDialector(&settings.Output.MySQL)
		dbType = "MySQL"
	case settings.Output.SQLite.Enabled:
		dialector, err = sqliteDialector(&settings.Output.SQLite)
		dbType = "SQLite"
	default:
		return nil, dbError(fmt.Errorf("no output database enabled"), "open")
	}
	if err != nil {
		return nil, dbError(err, "open", "db_type", dbType)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.NewGormLoggerAdapter(log.Module("gorm"), slowQueryThreshold),
	})
	if err != nil {
		log.Error("failed to open database", logger.String("db_type", dbType), logger.Error(err))
		return nil, dbError(err, "open", "db_type", dbType)
	}

	if dbType == "SQLite" {
		// in-memory databases exist per connection
		sqlDB, err := db.DB()
		if err != nil {
			return nil, dbError(err, "open", "db_type", dbType)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	store := &Store{DB: db, dbType: dbType, log: log}
	if err := store.migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	start := time.Now()
	if err := s.DB.AutoMigrate(&RunLog{}, &ResultRow{}, &ObservationRow{}); err != nil {
		return dbError(err, "migrate", "db_type", s.dbType)
	}
	s.log.Debug("database migration completed",
		logger.String("db_type", s.dbType),
		logger.Duration("total_duration", time.Since(start)))
	return nil
}

// Close releases the database connections.
func (s *Store) Close() error {
	if s.DB == nil {
		return nil
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return dbError(err, "close")
	}
	if err := sqlDB.Close(); err != nil {
		return dbError(err, "close")
	}
	return nil
}
