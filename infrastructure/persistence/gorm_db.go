package persistence

import (
	"database/sql"
	"fmt"
	"time"

	"content-distributor/domain/model"
	"content-distributor/infrastructure/logger"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewAuditDB opens the GORM connection for the publish audit log and migrates its table.
func NewAuditDB(dialect, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch dialect {
	case "mysql":
		dialector = mysql.Open(dsn)
	case "postgres", "":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported audit dialect %q", dialect)
	}
	return openAudit(dialector)
}

// NewAuditDBFromConn reuses an open PostgreSQL pool for the audit log.
func NewAuditDBFromConn(conn *sql.DB) (*gorm.DB, error) {
	return openAudit(postgres.New(postgres.Config{Conn: conn}))
}

func openAudit(dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.New(logger.Base(), gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&model.PublishAudit{}); err != nil {
		return nil, fmt.Errorf("migrate publish_audits: %w", err)
	}
	return db, nil
}
