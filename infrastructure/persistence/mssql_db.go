package persistence

import (
	"database/sql"
	"net/url"
	"time"

	"content-distributor/infrastructure/configuration"

	_ "github.com/microsoft/go-mssqldb"
)

// NewMSSQLDB opens the Azure SQL account store.
func NewMSSQLDB(cfg configuration.Db) (*sql.DB, error) {
	return openPool("sqlserver", mssqlDSN(cfg), poolLimits{maxIdle: 10, idleTime: time.Minute, maxLifetime: 5 * time.Minute})
}

// Local containers run with a self-signed certificate.
func mssqlDSN(cfg configuration.Db) string {
	q := url.Values{"encrypt": {"true"}}
	if cfg.Name != "" {
		q.Set("database", cfg.Name)
	}
	if cfg.Host == "localhost" || cfg.Host == "127.0.0.1" {
		q.Set("TrustServerCertificate", "true")
	}
	return dbURL("sqlserver", "", cfg, q)
}
