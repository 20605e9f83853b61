package repository

import (
	"context"

	"content-distributor/domain/model"
)

type IAccount interface {
	GetByID(ctx context.Context, id int64) (*model.Account, error)
	// ListAutoPublish returns accounts with auto_publish enabled inside scope, ordered by id.
	ListAutoPublish(ctx context.Context, scope model.AccountScope) ([]*model.Account, error)
	// UpdateCredentials atomically replaces the token bundle of one account.
	UpdateCredentials(ctx context.Context, id int64, creds model.Credentials) error
}
