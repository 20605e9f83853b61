package persistence

import (
	"database/sql"
	"fmt"
)

// EnsureAccountSchemaMSSQL creates the accounts table for SQL Server if it does not exist.
func EnsureAccountSchemaMSSQL(db *sql.DB) error {
	ddl := `IF NOT EXISTS (SELECT * FROM sys.objects WHERE object_id = OBJECT_ID(N'dbo.accounts') AND type in (N'U'))
BEGIN
    CREATE TABLE dbo.[accounts] (
        id BIGINT IDENTITY(1,1) PRIMARY KEY,
        user_id NVARCHAR(128) NULL,
        platform NVARCHAR(32) NOT NULL,
        access_token NVARCHAR(MAX) NOT NULL,
        refresh_token NVARCHAR(MAX) NOT NULL,
        token_expires_at DATETIME2 NULL,
        metadata NVARCHAR(MAX) NOT NULL,
        auto_publish BIT NOT NULL,
        account_type NVARCHAR(16) NOT NULL,
        created_at DATETIME2 NOT NULL,
        updated_at DATETIME2 NOT NULL
    );
    CREATE INDEX IX_accounts_auto_publish ON dbo.[accounts](auto_publish, account_type, user_id);
END`
	if _, err := db.Exec(ddl); err != nil {
		return fmt.Errorf("create accounts (mssql): %w", err)
	}
	return nil
}
