package persistence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"content-distributor/domain/model"
	"content-distributor/domain/repository"
)

type AccountRepositoryMSSQL struct{ db *sql.DB }

func NewAccountRepositoryMSSQL(db *sql.DB) *AccountRepositoryMSSQL {
	return &AccountRepositoryMSSQL{db: db}
}

func (r *AccountRepositoryMSSQL) GetByID(ctx context.Context, id int64) (*model.Account, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM dbo.[accounts] WHERE id=@p1`, id)
	acct, err := scanAccount(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	return acct, err
}

func (r *AccountRepositoryMSSQL) ListAutoPublish(ctx context.Context, scope model.AccountScope) ([]*model.Account, error) {
	var rows *sql.Rows
	var err error
	if scope.Official {
		rows, err = r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM dbo.[accounts] WHERE auto_publish = 1 AND account_type = @p1 ORDER BY id`, string(model.AccountOfficial))
	} else {
		rows, err = r.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM dbo.[accounts] WHERE auto_publish = 1 AND account_type = @p1 AND user_id = @p2 ORDER BY id`, string(model.AccountPersonal), scope.UserID)
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

// UpdateCredentials writes the whole token bundle in a single statement.
func (r *AccountRepositoryMSSQL) UpdateCredentials(ctx context.Context, id int64, creds model.Credentials) error {
	var exp sql.NullTime
	if creds.ExpiresAt != nil {
		exp = sql.NullTime{Time: creds.ExpiresAt.UTC(), Valid: true}
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE dbo.[accounts] SET access_token=@p1, refresh_token=@p2, token_expires_at=@p3, updated_at=@p4 WHERE id=@p5`,
		creds.AccessToken, creds.RefreshToken, exp, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
