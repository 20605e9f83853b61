package repository

import (
	"context"

	"content-distributor/domain/model"
)

type IContent interface {
	GetByID(ctx context.Context, id string) (*model.ContentItem, error)
}
