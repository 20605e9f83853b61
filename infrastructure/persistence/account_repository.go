package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"content-distributor/domain/model"
	"content-distributor/domain/repository"
)

const accountColumns = `id, user_id, platform, access_token, refresh_token, token_expires_at, metadata, auto_publish, account_type, created_at, updated_at`

type AccountRepository struct{ db *sql.DB }

func NewAccountRepository(db *sql.DB) *AccountRepository { return &AccountRepository{db: db} }

func (r *AccountRepository) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1`, id)
	acct, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return acct, err
}

func (r *AccountRepository) ListAutoPublish(ctx context.Context, scope model.AccountScope) ([]*model.Account, error) {
	var rows *sql.Rows
	var err error
	if scope.Official {
		rows, err = r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE auto_publish = TRUE AND account_type = $1 ORDER BY id`, model.AccountOfficial)
	} else {
		rows, err = r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM accounts WHERE auto_publish = TRUE AND account_type = $1 AND user_id = $2 ORDER BY id`, model.AccountPersonal, scope.UserID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*model.Account
	for rows.Next() {
		acct, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, acct)
	}
	return list, rows.Err()
}

func (r *AccountRepository) UpdateCredentials(ctx context.Context, id int64, creds model.Credentials) error {
	var exp sql.NullTime
	if creds.ExpiresAt != nil {
		exp = sql.NullTime{Time: creds.ExpiresAt.UTC(), Valid: true}
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE accounts SET access_token=$1, refresh_token=$2, token_expires_at=$3, updated_at=$4 WHERE id=$5`,
		creds.AccessToken, creds.RefreshToken, exp, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*model.Account, error) {
	acct := &model.Account{}
	var userID sql.NullString
	var exp sql.NullTime
	var meta []byte
	var accountType string
	if err := row.Scan(&acct.ID, &userID, &acct.Platform, &acct.AccessToken, &acct.RefreshToken, &exp, &meta, &acct.AutoPublish, &accountType, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
		return nil, err
	}
	if userID.Valid {
		v := userID.String
		acct.UserID = &v
	}
	if exp.Valid {
		t := exp.Time
		acct.TokenExpiresAt = &t
	}
	acct.AccountType = model.AccountType(accountType)
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &acct.Metadata); err != nil {
			return nil, fmt.Errorf("decode account %d metadata: %w", acct.ID, err)
		}
	}
	return acct, nil
}
