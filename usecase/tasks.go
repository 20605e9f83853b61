package usecase

import (
	"context"

	"content-distributor/domain/repository"
	"content-distributor/infrastructure/scheduler"
)

// Task class names.
const (
	TaskPublish        = "publish"
	TaskMetricsRefresh = "metrics_refresh"
)

// Enqueuer is the part of the scheduler the use cases produce work through.
type Enqueuer interface {
	Enqueue(ctx context.Context, class string, payload any, opts ...scheduler.EnqueueOption) (string, error)
}

// PublisherLookup resolves a platform name to its adapter.
type PublisherLookup interface {
	Get(platform string) (repository.IPublisher, bool)
	Platforms() []string
}
